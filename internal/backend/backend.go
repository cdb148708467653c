// Package backend resolves and opens non-blocking connections to the
// upstream servers routes point at.
package backend

import (
	"context"
	"fmt"
	"net"

	"github.com/nazibul7/turboproxy/internal/rawsock"
)

// Dialer opens non-blocking connections to backend hosts. It exists as an
// interface (rather than a bare function) so the dispatcher's tests can
// substitute a fake that never touches a real socket.
type Dialer interface {
	Dial(ctx context.Context, host string, port uint16) (fd int, err error)
}

// Resolver is the subset of *net.Resolver Dial needs; satisfied directly
// by net.DefaultResolver.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// NonblockingDialer is the production Dialer: resolve one A record, then
// hand off to rawsock for the actual non-blocking connect.
type NonblockingDialer struct {
	Resolver Resolver
}

// NewDialer builds a NonblockingDialer using net.DefaultResolver.
func NewDialer() *NonblockingDialer {
	return &NonblockingDialer{Resolver: net.DefaultResolver}
}

// Dial resolves host to an IPv4 address and opens a non-blocking
// connection to it on port. host must already be free of any ":port"
// suffix; routetable.LoadFile validates that at load time rather than this
// function silently truncating it, per the decision recorded in
// SPEC_FULL.md about the original's in-place host mutation.
func (d *NonblockingDialer) Dial(ctx context.Context, host string, port uint16) (int, error) {
	if ip := net.ParseIP(host); ip != nil {
		return rawsock.ConnectNonblocking(ip, port)
	}
	ips, err := d.Resolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return -1, fmt.Errorf("backend: resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return -1, fmt.Errorf("backend: no such host: %s", host)
	}
	return rawsock.ConnectNonblocking(ips[0], port)
}
