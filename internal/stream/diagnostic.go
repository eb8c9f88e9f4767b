package stream

import (
	"fmt"
	"sync"
)

// DefaultDiagnosticLimit bounds captured stderr.
const DefaultDiagnosticLimit = 64 * 1024

// DiagnosticBuffer captures the head of a process's stderr up to a limit.
// Writes never fail, so a chatty process cannot stall on stderr.
type DiagnosticBuffer struct {
	mu        sync.Mutex
	limit     int
	data      []byte
	truncated int64
}

// NewDiagnosticBuffer returns a buffer keeping at most limit bytes.
func NewDiagnosticBuffer(limit int) *DiagnosticBuffer {
	if limit <= 0 {
		limit = DefaultDiagnosticLimit
	}
	return &DiagnosticBuffer{limit: limit}
}

func (d *DiagnosticBuffer) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room := d.limit - len(d.data)
	if room >= len(p) {
		d.data = append(d.data, p...)
		return len(p), nil
	}
	if room > 0 {
		d.data = append(d.data, p[:room]...)
	}
	d.truncated += int64(len(p) - max(room, 0))
	return len(p), nil
}

// String returns the captured text, noting how much was dropped.
func (d *DiagnosticBuffer) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.truncated == 0 {
		return string(d.data)
	}
	return fmt.Sprintf("%s\n[%d bytes truncated]", d.data, d.truncated)
}

// Len returns the number of bytes kept.
func (d *DiagnosticBuffer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.data)
}

// Truncated returns the number of bytes dropped.
func (d *DiagnosticBuffer) Truncated() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.truncated
}
