package httpmsg

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/nazibul7/turboproxy/internal/proxylog"
)

// maxErrorResponseLen bounds the synthesized error response the way the
// original's 512-byte stack buffer did; WriteError refuses to send
// anything larger rather than silently truncating a status message.
const maxErrorResponseLen = 512

// WriteError synthesizes a minimal "HTTP/1.1 <code> <message>" response
// with a text/plain body equal to message, and writes it to fd, retrying
// only on EINTR. fd is always non-blocking, so EAGAIN is not retried: a
// client that isn't draining its receive buffer would otherwise spin this
// call forever on the single dispatcher goroutine, starving every other
// connection. On EAGAIN the write is abandoned and reported as an error,
// matching the original's fallthrough to its generic log-and-return branch.
func WriteError(fd int, statusCode int, message string) error {
	response := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		statusCode, message, len(message), message,
	)
	if len(response) > maxErrorResponseLen {
		proxylog.Error("httpmsg: error response too large for buffer (%d bytes), not sent", len(response))
		return fmt.Errorf("httpmsg: error response too large for buffer (%d bytes)", len(response))
	}

	buf := []byte(response)
	total := 0
	for total < len(buf) {
		n, err := unix.Write(fd, buf[total:])
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EPIPE, unix.ECONNRESET:
				proxylog.Error("httpmsg: client fd %d closed before error response was sent: %v", fd, err)
				return nil
			default:
				return fmt.Errorf("httpmsg: write error response to fd %d: %w", fd, err)
			}
		}
		if n == 0 {
			return nil
		}
		total += n
	}
	return nil
}
