// Package proxybuf implements the hybrid inline/heap byte buffer that
// every connection buffer (request_in, request_rebuilt, response) is built
// from: small appends stay in the inline array, larger ones migrate to a
// heap-backed slice and never shrink back. ReadFromFD reserves 4 KiB
// before each read, so a buffer filled from an fd always migrates.
package proxybuf

import "fmt"

// InlineCap is the capacity a Buffer starts with before any heap migration.
const InlineCap = 1024

// Buffer is a contiguous byte container with producer/consumer offsets.
//
// Invariant: 0 <= offset <= len <= capacity, and capacity >= InlineCap.
// The consumed region is [0, offset), the readable region is
// [offset, len), and the writable region is [len, capacity).
type Buffer struct {
	inline   [InlineCap]byte
	data     []byte // always has len(data) == capacity
	capacity int
	len      int
	offset   int
	heap     bool
}

// Init resets b to inline mode with no data. Safe to call on a zero Buffer.
func (b *Buffer) Init() {
	b.data = b.inline[:]
	b.capacity = InlineCap
	b.len = 0
	b.offset = 0
	b.heap = false
}

// Cleanup releases the heap block, if any. Idempotent and safe on a zeroed Buffer.
func (b *Buffer) Cleanup() {
	if b.heap {
		b.data = nil
	}
	b.capacity = 0
	b.len = 0
	b.offset = 0
	b.heap = false
}

// ReadableLen returns the number of unconsumed bytes.
func (b *Buffer) ReadableLen() int { return b.len - b.offset }

// WritableLen returns the number of bytes of free space.
func (b *Buffer) WritableLen() int { return b.capacity - b.len }

// Readable returns a slice over the unconsumed bytes [offset, len).
// The slice is only valid until the next call that may reallocate or
// compact the buffer.
func (b *Buffer) Readable() []byte { return b.data[b.offset:b.len] }

// Writable returns a slice over the free region [len, capacity).
func (b *Buffer) Writable() []byte { return b.data[b.len:b.capacity] }

// EnsureSpace guarantees capacity-len >= need, growing (and migrating to
// heap storage on first growth) if necessary.
func (b *Buffer) EnsureSpace(need int) error {
	if b.capacity-b.len >= need {
		return nil
	}
	newCap := b.capacity * 2
	if min := b.len + need; newCap < min {
		newCap = min
	}
	newData := make([]byte, newCap)
	copy(newData, b.data[:b.len])
	b.data = newData
	b.capacity = newCap
	b.heap = true
	return nil
}

// Append grows the buffer if needed and copies p into the writable region.
func (b *Buffer) Append(p []byte) error {
	if err := b.EnsureSpace(len(p)); err != nil {
		return err
	}
	n := copy(b.data[b.len:b.capacity], p)
	b.len += n
	return nil
}

// Consume advances offset by n, marking n bytes as consumed. It does not
// move any bytes. Precondition: offset+n <= len.
func (b *Buffer) Consume(n int) {
	if b.offset+n > b.len {
		panic(fmt.Sprintf("proxybuf: consume(%d) exceeds readable region (offset=%d len=%d)", n, b.offset, b.len))
	}
	b.offset += n
}

// Compact moves the readable region to the front and resets offset to 0.
// Callers are not required to call this; growing offset is tolerated.
func (b *Buffer) Compact() {
	if b.offset == 0 {
		return
	}
	n := copy(b.data, b.data[b.offset:b.len])
	b.len = n
	b.offset = 0
}

// CommitWrite advances len by n after a caller has written n bytes directly
// into the slice returned by Writable (used when an external component,
// e.g. the request rebuilder, writes into the buffer's backing memory).
func (b *Buffer) CommitWrite(n int) {
	if b.len+n > b.capacity {
		panic("proxybuf: CommitWrite exceeds capacity")
	}
	b.len += n
}

// Len and Capacity expose buffer bookkeeping for tests and invariant checks.
func (b *Buffer) Len() int      { return b.len }
func (b *Buffer) Offset() int   { return b.offset }
func (b *Buffer) Capacity() int { return b.capacity }
func (b *Buffer) IsHeap() bool  { return b.heap }
