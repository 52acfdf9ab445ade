package wire

import "errors"

// ErrBufferFull is returned when a write does not fit in the remaining capacity of a buffer.
var ErrBufferFull = errors.New("wire: buffer full")

// Buffer is a byte buffer with a fixed capacity and a write cursor.
// Writes never grow the capacity: a write that does not fit fails
// with [ErrBufferFull] and leaves the buffer unchanged.
type Buffer struct {
	data []byte
}

// NewBuffer returns an empty buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		data: make([]byte, 0, capacity),
	}
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Cap returns the capacity of the buffer.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Free returns the number of bytes that can still be written.
func (b *Buffer) Free() int {
	return cap(b.data) - len(b.data)
}

// Bytes returns the written bytes.
// The slice is only valid until the next write or reset.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// Truncate discards all but the first n written bytes.
// It is a no-op if n is greater than the length.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n > len(b.data) {
		return
	}
	b.data = b.data[:n]
}

// Append copies p at the end of the buffer.
func (b *Buffer) Append(p []byte) error {
	window, err := b.alloc(len(p))
	if err != nil {
		return err
	}

	copy(window, p)
	return nil
}

// alloc extends the buffer by n zeroed bytes and returns them.
func (b *Buffer) alloc(n int) ([]byte, error) {
	if n > b.Free() {
		return nil, ErrBufferFull
	}

	start := len(b.data)
	b.data = b.data[:start+n]

	window := b.data[start:]
	clear(window)

	return window, nil
}
