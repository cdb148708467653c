package routetable

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ValidateBackends resolves every route's Host concurrently and returns a
// combined error naming every route whose backend could not be resolved.
// Unlike the dispatcher's per-connection dial, this runs once at startup
// so a typo'd or dead backend is caught before the proxy accepts traffic.
// A plain errgroup only surfaces the first failure; since the point here
// is a complete startup diagnostic, failures are collected under a mutex
// instead of being allowed to shadow one another.
func ValidateBackends(ctx context.Context, t *Table) error {
	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var failures []error
	for _, route := range t.routes {
		route := route
		g.Go(func() error {
			if net.ParseIP(route.Host) != nil {
				return nil
			}
			if _, err := net.DefaultResolver.LookupHost(ctx, route.Host); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("route %s -> %s:%d: %w", route.Prefix, route.Host, route.Port, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	return nil
}
