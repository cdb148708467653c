// Package routetable loads, matches against, and (optionally) hot-reloads
// the proxy's route list: an ordered set of path-prefix-to-backend
// mappings read from a flat config file.
package routetable

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Route maps one path prefix to a single backend address.
type Route struct {
	Prefix string
	Host   string
	Port   uint16
}

// Table is an ordered, immutable-after-load set of routes. Match scans it
// in declaration order, not by prefix length, matching spec.md's
// first-match-at-dispatch-time semantics.
type Table struct {
	routes []Route
}

// schemaConstraint is the only config schema version this loader accepts.
var schemaConstraint = mustConstraint("^1.0.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

const schemaPragmaPrefix = "# turboproxy-config:"

// LoadFile reads a route config file: one "prefix host port" line per
// route, blank lines and '#' comments ignored, except a leading
// "# turboproxy-config: <semver>" pragma line, which is validated against
// schemaConstraint instead of being treated as an ordinary comment.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("routetable: open %s: %w", path, err)
	}
	defer f.Close()

	var t Table
	scanner := bufio.NewScanner(f)
	lineNo := 0
	sawPragma := false
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, schemaPragmaPrefix) {
			if lineNo != 1 {
				return nil, fmt.Errorf("routetable: %s:%d: schema pragma must be the first line", path, lineNo)
			}
			sawPragma = true
			version := strings.TrimSpace(strings.TrimPrefix(line, schemaPragmaPrefix))
			if err := checkSchemaVersion(version); err != nil {
				return nil, fmt.Errorf("routetable: %s:%d: %w", path, lineNo, err)
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		route, err := parseRouteLine(line)
		if err != nil {
			return nil, fmt.Errorf("routetable: %s:%d: %w", path, lineNo, err)
		}
		t.routes = append(t.routes, route)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("routetable: read %s: %w", path, err)
	}
	_ = sawPragma // pragma is optional; its absence just skips the version check
	if len(t.routes) == 0 {
		return nil, fmt.Errorf("routetable: %s: no routes defined", path)
	}
	return &t, nil
}

func checkSchemaVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", version, err)
	}
	if !schemaConstraint.Check(v) {
		return fmt.Errorf("config schema %s is not compatible with %s", version, schemaConstraint)
	}
	return nil
}

func parseRouteLine(line string) (Route, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Route{}, fmt.Errorf("expected 3 fields (prefix host port), got %d: %q", len(fields), line)
	}
	prefix, host, portStr := fields[0], fields[1], fields[2]
	if strings.Contains(host, ":") {
		return Route{}, fmt.Errorf("host %q must not embed a port; use the third field", host)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Route{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return Route{Prefix: prefix, Host: host, Port: uint16(port)}, nil
}

// Match returns the first route whose Prefix is a prefix of path, scanning
// in declaration order (not longest-prefix order).
func (t *Table) Match(path string) (Route, bool) {
	for _, r := range t.routes {
		if strings.HasPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return Route{}, false
}

// Routes returns a copy of the table's routes in declaration order.
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}
