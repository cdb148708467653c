package httpmsg

import (
	"bytes"
	"testing"
)

func TestIsCompleteNoHeaderEnd(t *testing.T) {
	if IsComplete([]byte("GET / HTTP/1.1\r\nHost: x")) {
		t.Fatal("should be incomplete without a terminated header block")
	}
}

func TestIsCompleteNoBodyExpected(t *testing.T) {
	if !IsComplete([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")) {
		t.Fatal("should be complete with no Content-Length and no body")
	}
}

func TestIsCompleteWaitsForBody(t *testing.T) {
	msg := "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nab"
	if IsComplete([]byte(msg)) {
		t.Fatal("should be incomplete with a partial body")
	}
	msg2 := "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\nabcde"
	if !IsComplete([]byte(msg2)) {
		t.Fatal("should be complete once body length is satisfied")
	}
}

func TestIsCompleteCaseInsensitiveContentLength(t *testing.T) {
	msg := "POST / HTTP/1.1\r\nCONTENT-LENGTH: 2\r\n\r\nhi"
	if !IsComplete([]byte(msg)) {
		t.Fatal("Content-Length header match should be case-insensitive")
	}
}

func TestParseRequestLineAndHeaders(t *testing.T) {
	raw := []byte("GET /foo HTTP/1.1\r\nHost: example.com\r\nX-Test: 1\r\n\r\n")
	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if req.Method != "GET" || req.Path != "/foo" || req.Version != "HTTP/1.1" {
		t.Fatalf("unexpected request line: %+v", req)
	}
	host, ok := req.Get("host")
	if !ok || host != "example.com" {
		t.Fatalf("Get(host) = %q, %v", host, ok)
	}
}

func TestParseWithBody(t *testing.T) {
	raw := []byte("POST /x HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc")
	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(req.Body, []byte("abc")) {
		t.Fatalf("Body = %q, want abc", req.Body)
	}
}

func TestParseMalformedRequestLine(t *testing.T) {
	raw := []byte("GARBAGE\r\n\r\n")
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected error for malformed request line")
	}
}

func TestRebuildOverwritesHostAndAddsForwardedFor(t *testing.T) {
	req := &Request{
		Method:  "GET",
		Path:    "/",
		Version: "HTTP/1.1",
		Headers: []Header{{Key: "Host", Value: "original.example"}, {Key: "Accept", Value: "*/*"}},
	}
	out, err := Rebuild(req, "backend.internal:9000", "203.0.113.5")
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	s := string(out)
	if !bytes.Contains(out, []byte("Host: backend.internal:9000\r\n")) {
		t.Fatalf("Host not rewritten: %s", s)
	}
	if !bytes.Contains(out, []byte("X-Forwarded-For: 203.0.113.5\r\n")) {
		t.Fatalf("X-Forwarded-For not added: %s", s)
	}
	if !bytes.Contains(out, []byte("Connection: close\r\n")) {
		t.Fatalf("Connection not rewritten: %s", s)
	}
	if !bytes.Contains(out, []byte("Accept: */*\r\n")) {
		t.Fatalf("original header dropped: %s", s)
	}
}

func TestRebuildAppendsSecondForwardedForHeader(t *testing.T) {
	req := &Request{
		Method:  "GET",
		Path:    "/",
		Version: "HTTP/1.1",
		Headers: []Header{{Key: "X-Forwarded-For", Value: "198.51.100.1"}},
	}
	out, err := Rebuild(req, "backend:80", "203.0.113.5")
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if !bytes.Contains(out, []byte("X-Forwarded-For: 198.51.100.1\r\n")) {
		t.Fatalf("client's original X-Forwarded-For not preserved: %s", out)
	}
	if !bytes.Contains(out, []byte("X-Forwarded-For: 203.0.113.5\r\n")) {
		t.Fatalf("proxy's X-Forwarded-For not appended: %s", out)
	}
}

func TestRebuildRejectsHeaderInjection(t *testing.T) {
	req := &Request{Method: "GET", Path: "/", Version: "HTTP/1.1"}
	_, err := Rebuild(req, "backend:80\r\nX-Evil: 1", "1.2.3.4")
	if err == nil {
		t.Fatal("expected error for header value containing CRLF")
	}
}
