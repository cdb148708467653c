package proxybuf

import (
	"bytes"
	"testing"
)

func TestInitStartsInline(t *testing.T) {
	var b Buffer
	b.Init()
	if b.IsHeap() {
		t.Fatal("fresh buffer should not be heap-backed")
	}
	if b.Capacity() != InlineCap {
		t.Fatalf("capacity = %d, want %d", b.Capacity(), InlineCap)
	}
	if b.ReadableLen() != 0 || b.WritableLen() != InlineCap {
		t.Fatalf("unexpected lengths: readable=%d writable=%d", b.ReadableLen(), b.WritableLen())
	}
}

func TestAppendConsumeRoundTrip(t *testing.T) {
	var b Buffer
	b.Init()
	want := []byte("hello world")
	if err := b.Append(want); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := b.Readable(); !bytes.Equal(got, want) {
		t.Fatalf("Readable() = %q, want %q", got, want)
	}
	b.Consume(len(want))
	if b.ReadableLen() != 0 {
		t.Fatalf("ReadableLen after full consume = %d, want 0", b.ReadableLen())
	}
	if b.Offset() != len(want) {
		t.Fatalf("offset = %d, want %d", b.Offset(), len(want))
	}
}

func TestAppendConcatenationLaw(t *testing.T) {
	var a, b Buffer
	a.Init()
	b.Init()
	parts := [][]byte{[]byte("abc"), []byte("def"), []byte("ghi")}
	for _, p := range parts {
		if err := a.Append(p); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := b.Append(bytes.Join(parts, nil)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !bytes.Equal(a.Readable(), b.Readable()) {
		t.Fatalf("appending piecewise != appending joined: %q vs %q", a.Readable(), b.Readable())
	}
}

func TestHeapMigrationPreservesBytes(t *testing.T) {
	var b Buffer
	b.Init()
	want := bytes.Repeat([]byte("x"), InlineCap+500)
	if err := b.Append(want); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !b.IsHeap() {
		t.Fatal("buffer should have migrated to heap storage")
	}
	if !bytes.Equal(b.Readable(), want) {
		t.Fatal("bytes not preserved across heap migration")
	}
}

func TestEnsureSpaceDoublingPolicy(t *testing.T) {
	var b Buffer
	b.Init()
	if err := b.Append(bytes.Repeat([]byte("a"), InlineCap)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.EnsureSpace(1); err != nil {
		t.Fatalf("EnsureSpace: %v", err)
	}
	if b.Capacity() != InlineCap*2 {
		t.Fatalf("capacity after one growth = %d, want %d", b.Capacity(), InlineCap*2)
	}

	var c Buffer
	c.Init()
	if err := c.EnsureSpace(10000); err != nil {
		t.Fatalf("EnsureSpace: %v", err)
	}
	if c.Capacity() != 10000 {
		t.Fatalf("capacity for large single request = %d, want %d", c.Capacity(), 10000)
	}
}

func TestConsumeBeyondLenPanics(t *testing.T) {
	var b Buffer
	b.Init()
	b.Append([]byte("ab"))
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic consuming beyond readable region")
		}
	}()
	b.Consume(3)
}

func TestCompactResetsOffset(t *testing.T) {
	var b Buffer
	b.Init()
	b.Append([]byte("abcdef"))
	b.Consume(3)
	b.Compact()
	if b.Offset() != 0 {
		t.Fatalf("offset after compact = %d, want 0", b.Offset())
	}
	if got := string(b.Readable()); got != "def" {
		t.Fatalf("Readable() after compact = %q, want %q", got, "def")
	}
}

func TestCommitWriteAdvancesLen(t *testing.T) {
	var b Buffer
	b.Init()
	w := b.Writable()
	n := copy(w, []byte("xyz"))
	b.CommitWrite(n)
	if got := string(b.Readable()); got != "xyz" {
		t.Fatalf("Readable() after CommitWrite = %q, want %q", got, "xyz")
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	var b Buffer
	b.Init()
	b.Append(bytes.Repeat([]byte("z"), InlineCap+10))
	b.Cleanup()
	b.Cleanup()
	if b.Capacity() != 0 || b.Len() != 0 {
		t.Fatalf("cleanup did not reset bookkeeping: cap=%d len=%d", b.Capacity(), b.Len())
	}
}
