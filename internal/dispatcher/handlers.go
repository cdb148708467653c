package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/nazibul7/turboproxy/internal/httpmsg"
	"github.com/nazibul7/turboproxy/internal/ioevent"
	"github.com/nazibul7/turboproxy/internal/metrics"
	"github.com/nazibul7/turboproxy/internal/proxybuf"
	"github.com/nazibul7/turboproxy/internal/proxyconn"
	"github.com/nazibul7/turboproxy/internal/proxylog"
	"github.com/nazibul7/turboproxy/internal/rawsock"
	"github.com/nazibul7/turboproxy/internal/routetable"
)

const rebuildSpace = 4096

// onClientReadable reads more of the client's request, and once it is
// complete, parses it, picks a route, rewrites it into RequestRebuilt,
// and starts a non-blocking connect to the chosen backend.
func (d *Dispatcher) onClientReadable(c *proxyconn.Connection) handlerStatus {
	c.State = proxyconn.ReadingRequest
	n, outcome, err := c.RequestIn.ReadFromFD(c.ClientFD)

	switch outcome {
	case proxybuf.IOOutcomeError:
		proxylog.Debugf("onClientReadable: read error from client fd %d: %v", c.ClientFD, err)
		c.State = proxyconn.ErrorState
		return handlerError
	case proxybuf.IOOutcomeEOF:
		return handlerClosed
	}
	if n == 0 {
		return handlerOK
	}

	if !httpmsg.IsComplete(c.RequestIn.Readable()) {
		proxylog.Debugf("onClientReadable: waiting for more data from client fd %d", c.ClientFD)
		return handlerOK
	}

	c.State = proxyconn.RequestComplete
	req, err := httpmsg.Parse(c.RequestIn.Readable())
	if err != nil {
		proxylog.Error("onClientReadable: failed to parse request from client fd %d: %v", c.ClientFD, err)
		_ = httpmsg.WriteError(c.ClientFD, 400, "Bad Request")
		metrics.IncErrorResponseSent()
		c.State = proxyconn.ErrorState
		return handlerError
	}
	c.ParsedRequest = req

	route, ok := d.Routes().Match(req.Path)
	if !ok {
		proxylog.Error("onClientReadable: no backend route for path %q", req.Path)
		_ = httpmsg.WriteError(c.ClientFD, 502, "Bad Gateway")
		metrics.IncErrorResponseSent()
		c.State = proxyconn.ErrorState
		return handlerError
	}
	c.Route = &route

	if err := c.RequestRebuilt.EnsureSpace(rebuildSpace); err != nil {
		proxylog.Error("onClientReadable: failed to reserve rebuild space for client fd %d: %v", c.ClientFD, err)
		_ = httpmsg.WriteError(c.ClientFD, 500, "Internal Server Error")
		metrics.IncErrorResponseSent()
		c.State = proxyconn.ErrorState
		return handlerError
	}

	rebuilt, err := httpmsg.Rebuild(req, hostHeaderFor(route), c.ClientIP)
	if err != nil {
		proxylog.Error("onClientReadable: failed to rebuild request for client fd %d: %v", c.ClientFD, err)
		_ = httpmsg.WriteError(c.ClientFD, 500, "Internal Server Error")
		metrics.IncErrorResponseSent()
		c.State = proxyconn.ErrorState
		return handlerError
	}
	if err := c.RequestRebuilt.Append(rebuilt); err != nil {
		proxylog.Error("onClientReadable: failed to buffer rebuilt request for client fd %d: %v", c.ClientFD, err)
		_ = httpmsg.WriteError(c.ClientFD, 500, "Internal Server Error")
		metrics.IncErrorResponseSent()
		c.State = proxyconn.ErrorState
		return handlerError
	}

	backendFD, err := d.Dialer.Dial(context.Background(), route.Host, route.Port)
	if err != nil {
		proxylog.Error("onClientReadable: failed to connect to backend %s:%d: %v", route.Host, route.Port, err)
		_ = httpmsg.WriteError(c.ClientFD, 502, "Bad Gateway")
		metrics.IncErrorResponseSent()
		metrics.IncBackendDialFailure()
		c.State = proxyconn.ErrorState
		return handlerError
	}
	c.BackendFD = backendFD
	c.State = proxyconn.ConnectingBackend

	if err := d.Notifier.Register(c.BackendFD, ioevent.Writable, c); err != nil {
		unix.Close(c.BackendFD)
		c.BackendFD = -1
		proxylog.Error("onClientReadable: failed to register backend fd with notifier: %v", err)
		c.State = proxyconn.ErrorState
		return handlerError
	}
	return handlerOK
}

// onBackendWritable advances a connection through CONNECTING_BACKEND (by
// checking SO_ERROR once the non-blocking connect completes) and then
// SENDING_REQUEST (by draining RequestRebuilt to the backend).
func (d *Dispatcher) onBackendWritable(c *proxyconn.Connection) handlerStatus {
	if c.State == proxyconn.ConnectingBackend {
		if err := socketError(c.BackendFD); err != nil {
			proxylog.Error("onBackendWritable: backend connect failed for fd %d: %v", c.BackendFD, err)
			c.State = proxyconn.ErrorState
			return handlerError
		}
		c.State = proxyconn.SendingRequest
	}

	if c.State != proxyconn.SendingRequest {
		return handlerOK
	}

	n, outcome, err := c.RequestRebuilt.WriteToFD(c.BackendFD)
	switch outcome {
	case proxybuf.IOOutcomeError:
		proxylog.Error("onBackendWritable: failed to forward request to backend fd %d: %v", c.BackendFD, err)
		_ = httpmsg.WriteError(c.ClientFD, 502, "Bad Gateway")
		metrics.IncErrorResponseSent()
		c.State = proxyconn.ErrorState
		return handlerError
	case proxybuf.IOOutcomeEOF:
		proxylog.Debugf("onBackendWritable: backend fd %d closed during request send", c.BackendFD)
		return handlerClosed
	}
	if n == 0 {
		return handlerOK
	}

	if c.RequestRebuilt.ReadableLen() == 0 {
		if err := d.Notifier.Modify(c.BackendFD, ioevent.Readable); err != nil {
			proxylog.Error("onBackendWritable: failed to switch backend fd %d to readable: %v", c.BackendFD, err)
			c.State = proxyconn.ErrorState
			return handlerError
		}
		c.State = proxyconn.ReadingResponse
	}
	return handlerOK
}

// onBackendReadable reads more of the backend's response and immediately
// tries to forward what it has to the client, mirroring the original's
// "always check for data to send, even after EOF" comment.
func (d *Dispatcher) onBackendReadable(c *proxyconn.Connection) handlerStatus {
	if c.State != proxyconn.ReadingResponse {
		return handlerOK
	}

	_, outcome, err := c.Response.ReadFromFD(c.BackendFD)
	switch outcome {
	case proxybuf.IOOutcomeError:
		proxylog.Error("onBackendReadable: backend read error on fd %d: %v", c.BackendFD, err)
		c.State = proxyconn.ErrorState
		return handlerError
	case proxybuf.IOOutcomeEOF:
		proxylog.Debugf("onBackendReadable: backend fd %d sent EOF", c.BackendFD)
		c.State = proxyconn.BackendEOF
		_ = d.Notifier.Deregister(c.BackendFD)
	}

	if c.Response.ReadableLen() == 0 {
		if c.State == proxyconn.BackendEOF {
			proxylog.Debugf("onBackendReadable: backend EOF with no data - closing fd %d", c.BackendFD)
			return handlerClosed
		}
		return handlerOK
	}

	backendEOF := c.State == proxyconn.BackendEOF
	c.State = proxyconn.SendingResponse
	sent, sendOutcome, sendErr := c.Response.WriteToFD(c.ClientFD)
	switch sendOutcome {
	case proxybuf.IOOutcomeError:
		proxylog.Error("onBackendReadable: client write error on fd %d: %v", c.ClientFD, sendErr)
		c.State = proxyconn.ErrorState
		return handlerError
	case proxybuf.IOOutcomeEOF:
		proxylog.Debugf("onBackendReadable: client fd %d closed connection", c.ClientFD)
		return handlerClosed
	}
	_ = sent

	if c.Response.ReadableLen() == 0 {
		if backendEOF {
			proxylog.Debugf("onBackendReadable: backend EOF and all data sent - closing fd %d", c.ClientFD)
			return handlerClosed
		}
		c.State = proxyconn.ReadingResponse
		return handlerOK
	}

	if err := d.Notifier.Modify(c.ClientFD, ioevent.Writable); err != nil {
		proxylog.Error("onBackendReadable: failed to switch client fd %d to writable: %v", c.ClientFD, err)
		c.State = proxyconn.ErrorState
		return handlerError
	}
	return handlerOK
}

// onClientWritable drains whatever of the response is still buffered to
// the client, switching back to reading from the backend once the buffer
// empties (unless the backend already hit EOF, in which case the
// transaction is complete).
func (d *Dispatcher) onClientWritable(c *proxyconn.Connection) handlerStatus {
	if c.State == proxyconn.Done {
		return handlerClosed
	}
	if c.State != proxyconn.SendingResponse {
		return handlerOK
	}

	_, outcome, err := c.Response.WriteToFD(c.ClientFD)
	switch outcome {
	case proxybuf.IOOutcomeError:
		proxylog.Error("onClientWritable: client write error on fd %d: %v", c.ClientFD, err)
		c.State = proxyconn.ErrorState
		return handlerError
	case proxybuf.IOOutcomeEOF:
		proxylog.Debugf("onClientWritable: client fd %d closed connection during write", c.ClientFD)
		return handlerClosed
	}

	if c.Response.ReadableLen() == 0 {
		if c.State == proxyconn.BackendEOF {
			proxylog.Debugf("onClientWritable: backend closed and all data sent - closing fd %d", c.ClientFD)
			return handlerClosed
		}
		c.State = proxyconn.ReadingResponse
		if err := d.Notifier.Modify(c.BackendFD, ioevent.Readable); err != nil {
			proxylog.Error("onClientWritable: failed to switch backend fd %d to readable: %v", c.BackendFD, err)
			c.State = proxyconn.ErrorState
			return handlerError
		}
		if err := d.Notifier.Modify(c.ClientFD, 0); err != nil {
			proxylog.Error("onClientWritable: failed to stop watching client fd %d for writable: %v", c.ClientFD, err)
			c.State = proxyconn.ErrorState
			return handlerError
		}
	}
	return handlerOK
}

// hostHeaderFor formats the Host header value sent to the backend, always
// including the port so a backend listening on a non-default port sees
// the one the route actually dials.
func hostHeaderFor(route routetable.Route) string {
	return fmt.Sprintf("%s:%d", route.Host, route.Port)
}

func socketError(fd int) error {
	return rawsock.SocketError(fd)
}
