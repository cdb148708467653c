// Package proxyconn defines the per-transaction connection record the
// dispatcher's handlers read and mutate, and its lifecycle: one
// Connection per accepted client, carrying exactly the state needed to
// carry that one request/response pair through to completion.
package proxyconn

import (
	"fmt"

	"github.com/nazibul7/turboproxy/internal/httpmsg"
	"github.com/nazibul7/turboproxy/internal/ioevent"
	"github.com/nazibul7/turboproxy/internal/proxybuf"
	"github.com/nazibul7/turboproxy/internal/proxylog"
	"github.com/nazibul7/turboproxy/internal/routetable"
)

// State is the connection's position in the request/response state
// machine. Handlers transition it; the dispatcher never sets it directly.
type State int

const (
	ReadingRequest State = iota
	RequestComplete
	ConnectingBackend
	SendingRequest
	ReadingResponse
	BackendEOF
	SendingResponse
	ErrorState
	Done
)

func (s State) String() string {
	switch s {
	case ReadingRequest:
		return "reading_request"
	case RequestComplete:
		return "request_complete"
	case ConnectingBackend:
		return "connecting_backend"
	case SendingRequest:
		return "sending_request"
	case ReadingResponse:
		return "reading_response"
	case BackendEOF:
		return "backend_eof"
	case SendingResponse:
		return "sending_response"
	case ErrorState:
		return "error"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Connection is one client's in-flight transaction: its raw fds, its
// three buffers, the request once parsed, the route it matched, and the
// bookkeeping the dispatcher's deferred-destruction batching needs.
type Connection struct {
	ClientFD  int
	BackendFD int // -1 until ConnectingBackend dials out

	RequestIn       proxybuf.Buffer // raw bytes read from the client
	RequestRebuilt  proxybuf.Buffer // rewritten request queued to the backend
	Response        proxybuf.Buffer // raw bytes read from the backend

	ParsedRequest *httpmsg.Request
	Route         *routetable.Route
	ClientIP      string

	State      State
	ShouldFree bool // set once; the dispatcher frees it at the end of the current batch
}

// New allocates and initializes a Connection for a just-accepted client
// fd. BackendFD starts at -1, matching the original's sentinel for "not
// yet dialed", and all three buffers start in inline mode.
func New(clientFD int, clientIP string) *Connection {
	c := &Connection{
		ClientFD:  clientFD,
		BackendFD: -1,
		ClientIP:  clientIP,
		State:     ReadingRequest,
	}
	c.RequestIn.Init()
	c.RequestRebuilt.Init()
	c.Response.Init()
	return c
}

// Free releases c's fds and buffers. notifier may be nil if c's fds were
// never registered (e.g. the connection failed before registration).
// Deregistration happens before close, and backend before client, mirroring
// connection_free's cleanup order so a stale fd is never left registered
// with the notifier after being closed and potentially reused by the
// kernel for something else.
func (c *Connection) Free(notifier ioevent.Notifier) {
	if c.BackendFD >= 0 {
		if notifier != nil {
			if err := notifier.Deregister(c.BackendFD); err != nil {
				proxylog.Debugf("proxyconn: deregister backend fd %d: %v", c.BackendFD, err)
			}
		}
		if err := closeFD(c.BackendFD); err != nil {
			proxylog.Debugf("proxyconn: close backend fd %d: %v", c.BackendFD, err)
		}
		c.BackendFD = -1
	}
	if c.ClientFD >= 0 {
		if notifier != nil {
			if err := notifier.Deregister(c.ClientFD); err != nil {
				proxylog.Debugf("proxyconn: deregister client fd %d: %v", c.ClientFD, err)
			}
		}
		if err := closeFD(c.ClientFD); err != nil {
			proxylog.Debugf("proxyconn: close client fd %d: %v", c.ClientFD, err)
		}
		c.ClientFD = -1
	}
	c.RequestIn.Cleanup()
	c.RequestRebuilt.Cleanup()
	c.Response.Cleanup()
}
