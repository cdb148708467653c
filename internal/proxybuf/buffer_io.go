package proxybuf

import (
	"golang.org/x/sys/unix"
)

// IOOutcome distinguishes "got data", "peer closed", and "error" without
// overloading a byte count's sign. spec.md's sentinel scheme (-1 error,
// -2 EOF, >=0 bytes) is represented this way instead, per the Open
// Questions decision in SPEC_FULL.md: a shared return channel for a byte
// count and a magic negative value is the kind of hazard spec.md's own
// "possibly-buggy source behavior" notes call out.
type IOOutcome int

const (
	// IOOutcomeData means n bytes were read/written; n may be 0 (EAGAIN,
	// nothing ready yet).
	IOOutcomeData IOOutcome = iota
	// IOOutcomeEOF means the peer closed its write half cleanly.
	IOOutcomeEOF
	// IOOutcomeError means a non-recoverable error occurred; the returned
	// error holds the cause.
	IOOutcomeError
)

// readFromFDChunk is how much writable space ReadFromFD guarantees before
// each recv, matching spec.md §4.A's "ensure >= 4 KiB writable" step.
const readFromFDChunk = 4096

// ReadFromFD drains fd into the buffer in a loop until EAGAIN, EOF, or an
// error, accumulating the total bytes read. Returns (n, IOOutcomeData, nil) for a
// successful drain (n may be 0, and an EOF that arrives after n > 0 bytes is
// reported this way too), (0, IOOutcomeEOF, nil) if the peer sent EOF before
// any byte was read this call, or (n, IOOutcomeError, err) on failure, n being
// the bytes read before it.
func (b *Buffer) ReadFromFD(fd int) (int, IOOutcome, error) {
	total := 0
	for {
		if err := b.EnsureSpace(readFromFDChunk); err != nil {
			if total > 0 {
				return total, IOOutcomeData, nil
			}
			return 0, IOOutcomeError, err
		}
		n, err := unix.Read(fd, b.Writable())
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				return total, IOOutcomeData, nil
			case unix.ECONNRESET:
				return total, IOOutcomeError, err
			default:
				return total, IOOutcomeError, err
			}
		}
		if n == 0 {
			if total > 0 {
				return total, IOOutcomeData, nil
			}
			return 0, IOOutcomeEOF, nil
		}
		b.CommitWrite(n)
		total += n
	}
}

// WriteToFD drains the buffer's readable region into fd in a loop until
// EAGAIN/EINTR or the buffer empties, advancing offset as bytes are sent.
// Returns (n, IOOutcomeData, nil) for a partial-or-complete send (n may be 0), or
// (n, IOOutcomeError, err) if the peer is gone.
func (b *Buffer) WriteToFD(fd int) (int, IOOutcome, error) {
	total := 0
	for {
		readable := b.Readable()
		if len(readable) == 0 {
			return total, IOOutcomeData, nil
		}
		n, err := unix.Write(fd, readable)
		if err != nil {
			switch err {
			case unix.EAGAIN, unix.EINTR:
				return total, IOOutcomeData, nil
			case unix.EPIPE, unix.ECONNRESET:
				return total, IOOutcomeError, err
			default:
				return total, IOOutcomeError, err
			}
		}
		if n == 0 {
			if total > 0 {
				return total, IOOutcomeData, nil
			}
			return 0, IOOutcomeEOF, nil
		}
		b.Consume(n)
		total += n
	}
}
