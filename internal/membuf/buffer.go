// Package membuf provides the fixed-capacity byte buffer used for in-memory
// chain endpoints.
package membuf

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBufferOverflow is returned when a write would exceed the buffer capacity.
var ErrBufferOverflow = errors.New("no more space in buffer")

// Buffer is a fixed-capacity byte buffer. It never grows: the destination is
// expected to be pre-sized to the exact decoded length.
//
// Buffer is safe for concurrent use, but only one writer is supported per run.
type Buffer struct {
	mu       sync.RWMutex
	data     []byte
	capacity int
}

// New creates an empty buffer that accepts at most capacity bytes.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{
		data:     make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// From creates a full buffer holding a copy of b. It is intended for sources.
func From(b []byte) *Buffer {
	data := make([]byte, len(b))
	copy(data, b)
	return &Buffer{
		data:     data,
		capacity: len(b),
	}
}

// Write appends p. If p does not fit in the remaining capacity nothing is
// written and ErrBufferOverflow is returned.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if remaining := b.capacity - len(b.data); len(p) > remaining {
		return 0, fmt.Errorf("%w: %d bytes offered, %d remaining of %d",
			ErrBufferOverflow, len(p), remaining, b.capacity)
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// Bytes returns a copy of the buffered bytes.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// View returns the buffered bytes without copying. The caller must not
// modify the slice or use it while a run is still writing.
func (b *Buffer) View() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Cap returns the declared capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Remaining returns how many more bytes can be written.
func (b *Buffer) Remaining() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.capacity - len(b.data)
}

// Reset empties the buffer, keeping its capacity.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.mu.Unlock()
}
