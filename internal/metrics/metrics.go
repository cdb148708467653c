// Package metrics holds the proxy's lightweight runtime counters: atomic
// uint64s incremented on the hot path and read back through a snapshot,
// mirroring the teacher's TCP server metrics rather than pulling in a
// metrics client library.
package metrics

import "sync/atomic"

var (
	acceptTempErrors    uint64
	activeConnections   int64
	requestsTotal       uint64
	backendDialFailures uint64
	errorResponsesSent  uint64
)

// IncAcceptTempError records a non-EAGAIN, non-EINTR error from accept()
// that aborted the current accept pass.
func IncAcceptTempError() { atomic.AddUint64(&acceptTempErrors, 1) }

// ConnectionOpened records a newly accepted connection.
func ConnectionOpened() { atomic.AddInt64(&activeConnections, 1) }

// ConnectionClosed records a connection's teardown.
func ConnectionClosed() { atomic.AddInt64(&activeConnections, -1) }

// RequestCompleted records one full request/response transaction.
func RequestCompleted() { atomic.AddUint64(&requestsTotal, 1) }

// IncBackendDialFailure records a failed non-blocking connect to a backend.
func IncBackendDialFailure() { atomic.AddUint64(&backendDialFailures, 1) }

// IncErrorResponseSent records a synthesized error response sent to a client.
func IncErrorResponseSent() { atomic.AddUint64(&errorResponsesSent, 1) }

// Snapshot returns a point-in-time copy of every counter, keyed the same
// way the teacher's TCPMetrics does.
func Snapshot() map[string]uint64 {
	return map[string]uint64{
		"accept_temp_errors":    atomic.LoadUint64(&acceptTempErrors),
		"active_connections":    uint64(atomic.LoadInt64(&activeConnections)),
		"requests_total":        atomic.LoadUint64(&requestsTotal),
		"backend_dial_failures": atomic.LoadUint64(&backendDialFailures),
		"error_responses_sent":  atomic.LoadUint64(&errorResponsesSent),
	}
}
