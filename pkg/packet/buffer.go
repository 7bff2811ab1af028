package packet

import (
	"fmt"
	"sync/atomic"
)

// prependHeadroom is the default amount of reserved space before the data
// start, so ConsumeData can move the read pointer backward (e.g. to
// re-prepend a length prefix or NAL start code) without reallocating.
const prependHeadroom = 32

// Buffer is a reference-counted byte buffer with a single consume_data
// pointer that can move forward or backward within the buffer, including
// into reserved prepend headroom. All sharing of a Buffer across streamer
// stages is by Ref()/Release() handle; callers never alias the underlying
// slice for writes once it has been shared.
type Buffer struct {
	storage []byte // full allocation, including prepend headroom
	start   int    // index into storage where caller-visible data begins
	cursor  int    // index into storage of the current consume pointer
	end     int    // index into storage just past the last valid byte
	refs    *int32
}

// NewBuffer wraps data in a new Buffer with one reference and default
// prepend headroom.
func NewBuffer(data []byte) *Buffer {
	storage := make([]byte, prependHeadroom+len(data))
	copy(storage[prependHeadroom:], data)
	refs := int32(1)
	return &Buffer{
		storage: storage,
		start:   prependHeadroom,
		cursor:  prependHeadroom,
		end:     prependHeadroom + len(data),
		refs:    &refs,
	}
}

// Ref increments the reference count and returns a handle sharing the same
// backing storage (not a copy).
func (b *Buffer) Ref() *Buffer {
	atomic.AddInt32(b.refs, 1)
	clone := *b
	return &clone
}

// Release decrements the reference count. Callers must not use b after
// calling Release if the count reaches zero.
func (b *Buffer) Release() {
	atomic.AddInt32(b.refs, -1)
}

// RefCount returns the current reference count, for tests/diagnostics.
func (b *Buffer) RefCount() int32 {
	return atomic.LoadInt32(b.refs)
}

// Peek returns the bytes from the current consume pointer to the end of
// valid data, without moving the pointer.
func (b *Buffer) Peek() []byte {
	return b.storage[b.cursor:b.end]
}

// Len returns the number of unconsumed bytes remaining.
func (b *Buffer) Len() int {
	return b.end - b.cursor
}

// ConsumeData advances (n > 0) or rewinds (n < 0) the consume pointer by n
// bytes. Rewinding past the original data start is allowed up to the
// reserved prepend headroom; rewinding further, or advancing past the end
// of valid data, is an error.
func (b *Buffer) ConsumeData(n int) error {
	next := b.cursor + n
	if next < b.cursor-prependHeadroom && next < 0 {
		return fmt.Errorf("packet: ConsumeData(%d) would rewind past reserved headroom", n)
	}
	if next < 0 {
		return fmt.Errorf("packet: ConsumeData(%d) underflows buffer", n)
	}
	if next > b.end {
		return fmt.Errorf("packet: ConsumeData(%d) overflows buffer (cursor %d, end %d)", n, b.cursor, b.end)
	}
	b.cursor = next
	return nil
}

// Prepend writes data immediately before the current consume pointer,
// using reserved headroom, and rewinds the pointer to cover it. It fails
// if there isn't enough headroom.
func (b *Buffer) Prepend(data []byte) error {
	if b.cursor-len(data) < 0 {
		return fmt.Errorf("packet: Prepend(%d bytes) exceeds available headroom", len(data))
	}
	copy(b.storage[b.cursor-len(data):b.cursor], data)
	b.cursor -= len(data)
	return nil
}

// Bytes returns a copy of the unconsumed data, safe to retain independently
// of the Buffer's lifecycle.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, b.Len())
	copy(out, b.Peek())
	return out
}
