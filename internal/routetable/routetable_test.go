package routetable

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.conf")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFileBasic(t *testing.T) {
	path := writeTemp(t, "/api backend-a 8080\n/ backend-b 8081\n")
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(table.Routes()) != 2 {
		t.Fatalf("got %d routes, want 2", len(table.Routes()))
	}
}

func TestLoadFileSkipsCommentsAndBlankLines(t *testing.T) {
	path := writeTemp(t, "# a comment\n\n/api backend-a 8080\n")
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(table.Routes()) != 1 {
		t.Fatalf("got %d routes, want 1", len(table.Routes()))
	}
}

func TestLoadFileAcceptsValidSchemaPragma(t *testing.T) {
	path := writeTemp(t, "# turboproxy-config: 1.0.0\n/api backend-a 8080\n")
	if _, err := LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
}

func TestLoadFileRejectsIncompatibleSchema(t *testing.T) {
	path := writeTemp(t, "# turboproxy-config: 2.0.0\n/api backend-a 8080\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for incompatible schema version")
	}
}

func TestLoadFileRejectsPragmaNotOnFirstLine(t *testing.T) {
	path := writeTemp(t, "/api backend-a 8080\n# turboproxy-config: 1.0.0\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for pragma appearing after the first line")
	}
}

func TestLoadFileRejectsMalformedLine(t *testing.T) {
	path := writeTemp(t, "/api backend-a\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for a line missing a field")
	}
}

func TestLoadFileRejectsEmbeddedPort(t *testing.T) {
	path := writeTemp(t, "/api backend-a:8080 8080\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for a host with an embedded port")
	}
}

func TestLoadFileRejectsEmptyTable(t *testing.T) {
	path := writeTemp(t, "# just a comment\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for a route file with no routes")
	}
}

func TestMatchFirstInDeclarationOrder(t *testing.T) {
	path := writeTemp(t, "/ backend-catchall 8080\n/api backend-api 8081\n")
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	route, ok := table.Match("/api/users")
	if !ok {
		t.Fatal("expected a match")
	}
	if route.Host != "backend-catchall" {
		t.Fatalf("Match picked %q, want the first declared prefix match (backend-catchall)", route.Host)
	}
}

func TestMatchNoRoute(t *testing.T) {
	path := writeTemp(t, "/api backend-a 8080\n")
	table, _ := LoadFile(path)
	if _, ok := table.Match("/other"); ok {
		t.Fatal("expected no match for an unregistered prefix")
	}
}

func TestValidateBackendsAcceptsLiteralIPs(t *testing.T) {
	path := writeTemp(t, "/api 127.0.0.1 8080\n")
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ValidateBackends(ctx, table); err != nil {
		t.Fatalf("ValidateBackends: %v", err)
	}
}
