// Package dispatcher implements the single-threaded event loop: accept
// client connections, drive each one through its per-state handler as
// readiness events arrive, and batch-free connections once a full event
// round has been processed.
package dispatcher

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/nazibul7/turboproxy/internal/backend"
	"github.com/nazibul7/turboproxy/internal/ioevent"
	"github.com/nazibul7/turboproxy/internal/metrics"
	"github.com/nazibul7/turboproxy/internal/proxyconn"
	"github.com/nazibul7/turboproxy/internal/proxylog"
	"github.com/nazibul7/turboproxy/internal/rawsock"
	"github.com/nazibul7/turboproxy/internal/routetable"
)

// listenerMarker is the UserData value Register is given for the
// listening socket, distinguishing its events from every client
// connection's without a type assertion that could panic.
type listenerMarker struct{}

// Dispatcher owns the listening socket, the route table, the readiness
// notifier, and the backend dialer, and runs the accept/dispatch loop.
//
// routes is swapped via atomic.Pointer rather than a plain field because
// routetable.Watch delivers reloads from its own fsnotify goroutine,
// concurrently with the event loop reading it on every request.
type Dispatcher struct {
	Notifier ioevent.Notifier
	Dialer   backend.Dialer
	ListenFD int

	routes atomic.Pointer[routetable.Table]
}

// New constructs a Dispatcher ready to Run; Run registers the listening
// socket with the notifier itself.
func New(notifier ioevent.Notifier, routes *routetable.Table, dialer backend.Dialer, listenFD int) *Dispatcher {
	d := &Dispatcher{
		Notifier: notifier,
		Dialer:   dialer,
		ListenFD: listenFD,
	}
	d.routes.Store(routes)
	return d
}

// Routes returns the currently active route table.
func (d *Dispatcher) Routes() *routetable.Table {
	return d.routes.Load()
}

// SetRoutes atomically replaces the active route table, for use by a
// hot-reload callback running on another goroutine.
func (d *Dispatcher) SetRoutes(routes *routetable.Table) {
	d.routes.Store(routes)
}

// Run registers the listening socket and processes events until ctx is
// canceled or the notifier returns a fatal error.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.Notifier.Register(d.ListenFD, ioevent.Readable, listenerMarker{}); err != nil {
		return fmt.Errorf("dispatcher: register listener: %w", err)
	}

	var events []ioevent.Event
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := d.Notifier.Wait(events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("dispatcher: wait: %w", err)
		}
		events = batch

		pendingFree := make([]*proxyconn.Connection, 0, len(events))
		for _, ev := range events {
			if _, isListener := ev.UserData.(listenerMarker); isListener {
				d.acceptLoop()
				continue
			}

			conn, ok := ev.UserData.(*proxyconn.Connection)
			if !ok || conn == nil || conn.ShouldFree {
				continue
			}

			status := handlerOK
			if ev.Err != nil {
				proxylog.Debugf("dispatcher: notifier reported error on fd (client=%d backend=%d): %v", conn.ClientFD, conn.BackendFD, ev.Err)
				status = handlerError
			} else {
				if ev.Readable {
					status = d.dispatchReadable(conn)
				}
				if status != handlerError && status != handlerClosed && ev.Writable {
					status = d.dispatchWritable(conn)
				}
			}

			if status == handlerError || status == handlerClosed || conn.State == proxyconn.Done {
				conn.ShouldFree = true
			}
			if conn.ShouldFree {
				pendingFree = append(pendingFree, conn)
			}
		}

		for _, conn := range pendingFree {
			metrics.ConnectionClosed()
			conn.Free(d.Notifier)
		}
	}
}

func (d *Dispatcher) dispatchReadable(c *proxyconn.Connection) handlerStatus {
	switch c.State {
	case proxyconn.ReadingRequest:
		return d.onClientReadable(c)
	case proxyconn.ReadingResponse:
		return d.onBackendReadable(c)
	default:
		return handlerOK
	}
}

func (d *Dispatcher) dispatchWritable(c *proxyconn.Connection) handlerStatus {
	switch c.State {
	case proxyconn.ConnectingBackend, proxyconn.SendingRequest:
		return d.onBackendWritable(c)
	case proxyconn.SendingResponse:
		return d.onClientWritable(c)
	default:
		return handlerOK
	}
}

// acceptLoop drains the listen backlog, registering a Connection for
// every client accepted, looping until accept reports EAGAIN (no more
// pending connections) the way level-triggered readiness allows.
//
// This runs inline in the single dispatcher goroutine, which also drives
// every other connection's I/O, so it never blocks: a transient accept
// error is logged and the loop either retries (EINTR) or gives up for
// this readiness event (anything else), the same way the original just
// logs and continues/breaks on accept failure without sleeping.
func (d *Dispatcher) acceptLoop() {
	for {
		fd, addr, err := rawsock.Accept(d.ListenFD)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			metrics.IncAcceptTempError()
			proxylog.Error("dispatcher: accept error: %v", err)
			return
		}

		clientIP := addr
		if host, _, err := net.SplitHostPort(addr); err == nil {
			clientIP = host
		}
		conn := proxyconn.New(fd, clientIP)
		if err := d.Notifier.Register(fd, ioevent.Readable, conn); err != nil {
			proxylog.Error("dispatcher: failed to register accepted client fd %d: %v", fd, err)
			unix.Close(fd)
			continue
		}
		metrics.ConnectionOpened()
	}
}
