// Package httpmsg parses, completeness-checks, rebuilds, and error-renders
// HTTP/1.1 request messages as they pass through the proxy. It works
// directly on proxybuf.Buffer contents rather than net/http's Request
// type because the proxy needs to know whether a message is complete
// before it can hand it to anything resembling net/http's reader.
package httpmsg

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Header preserves declaration order, unlike a map, so Rebuild can emit
// headers in the order the client sent them.
type Header struct {
	Key   string
	Value string
}

// Request is a parsed HTTP/1.1 request line plus headers and body.
type Request struct {
	Method  string
	Path    string
	Version string
	Headers []Header
	Body    []byte
}

// Get returns the first header matching key, case-insensitively, and
// whether it was found.
func (r *Request) Get(key string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// Set replaces the first header matching key (case-insensitively) with
// value, or appends a new header if none matched.
func (r *Request) Set(key, value string) {
	for i := range r.Headers {
		if strings.EqualFold(r.Headers[i].Key, key) {
			r.Headers[i].Value = value
			return
		}
	}
	r.Headers = append(r.Headers, Header{Key: key, Value: value})
}

const headerEnd = "\r\n\r\n"

// IsComplete reports whether data contains a full HTTP/1.1 request: a
// terminated header block, and (if Content-Length is present) a body at
// least that long. It is the gate the dispatcher checks after every read
// before attempting Parse.
func IsComplete(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	idx := bytes.Index(data, []byte(headerEnd))
	if idx < 0 {
		return false
	}
	headerLen := idx + len(headerEnd)
	headerBlock := data[:idx]
	contentLength := findContentLength(headerBlock)
	if contentLength < 0 {
		return true
	}
	bodyReceived := len(data) - headerLen
	return bodyReceived >= contentLength
}

// findContentLength scans the header block case-insensitively for a
// Content-Length header and returns its value, parsed as the decimal
// digits after any leading whitespace up to the first non-digit, or -1 if
// absent or without digits (treated the same as absent: no body is
// expected).
func findContentLength(headerBlock []byte) int {
	lower := bytes.ToLower(headerBlock)
	idx := bytes.Index(lower, []byte("content-length:"))
	if idx < 0 {
		return -1
	}
	rest := bytes.TrimLeft(headerBlock[idx+len("content-length:"):], " \t")
	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	n, err := strconv.Atoi(string(rest[:digits]))
	if err != nil {
		return -1
	}
	return n
}

// Parse splits a complete HTTP/1.1 request (as IsComplete has already
// verified it to be) into its request line, headers, and body. Header
// names and values are validated with httpguts, and the body is cut at
// Content-Length when that header is present. It does not mutate data.
func Parse(data []byte) (*Request, error) {
	idx := bytes.Index(data, []byte(headerEnd))
	if idx < 0 {
		return nil, fmt.Errorf("httpmsg: Parse called on an incomplete message")
	}
	head := data[:idx]
	body := data[idx+len(headerEnd):]

	lines := bytes.Split(head, []byte("\r\n"))
	if len(lines) == 0 || len(lines[0]) == 0 {
		return nil, fmt.Errorf("httpmsg: request line is missing")
	}

	fields := strings.Fields(string(lines[0]))
	if len(fields) != 3 {
		return nil, fmt.Errorf("httpmsg: malformed request line: %q", lines[0])
	}
	req := &Request{Method: fields[0], Path: fields[1], Version: fields[2]}

	for _, line := range lines[1:] {
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		key := string(line[:colon])
		value := strings.TrimLeft(string(line[colon+1:]), " \t")
		if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(value) {
			return nil, fmt.Errorf("httpmsg: invalid header line: %q", line)
		}
		req.Headers = append(req.Headers, Header{Key: key, Value: value})
	}

	if cl := findContentLength(head); cl >= 0 && cl < len(body) {
		body = body[:cl]
	}
	if len(body) > 0 {
		req.Body = append([]byte(nil), body...)
	}
	return req, nil
}

// Rebuild re-serializes req as a wire-format HTTP/1.1 request, with Host
// and Connection overwritten (or added) to the values the dispatcher
// supplies, an X-Forwarded-For header appended with the client's address,
// and every other header (including a pre-existing X-Forwarded-For from
// the client) left untouched in its original position. httpguts.
// ValidHeaderFieldValue guards against header injection from a value the
// proxy itself constructs (e.g. a malformed client IP string should never
// be able to smuggle a second header).
func Rebuild(req *Request, host, forwardedFor string) ([]byte, error) {
	out := &Request{
		Method:  req.Method,
		Path:    req.Path,
		Version: req.Version,
		Headers: append([]Header(nil), req.Headers...),
		Body:    req.Body,
	}
	out.Set("Host", host)
	out.Set("Connection", "close")
	out.Headers = append(out.Headers, Header{Key: "X-Forwarded-For", Value: forwardedFor})

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s %s\r\n", out.Method, out.Path, out.Version)
	for _, h := range out.Headers {
		if !httpguts.ValidHeaderFieldValue(h.Value) {
			return nil, fmt.Errorf("httpmsg: invalid value for header %q", h.Key)
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Key, h.Value)
	}
	buf.WriteString("\r\n")
	buf.Write(out.Body)
	return buf.Bytes(), nil
}
