package stream

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/randomizedcoder/go-sox-chain/internal/membuf"
)

const (
	// DefaultChunkSize is the stdin write size. It matches the Linux default
	// pipe capacity.
	DefaultChunkSize = 64 * 1024

	// DefaultReadSize is the stdout and stderr read size.
	DefaultReadSize = 32 * 1024
)

// WriteChunked writes all of payload to w in chunks of at most chunkSize
// bytes. It returns the number of bytes written. The caller closes w only
// after WriteChunked returns.
func WriteChunked(w io.Writer, payload []byte, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	written := 0
	for written < len(payload) {
		chunk := payload[written:min(written+chunkSize, len(payload))]
		n, err := w.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		if n < len(chunk) {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// SinkWriter appends process output to a fixed-capacity buffer. The first
// chunk that does not fit is rejected whole and returned as an error; after
// that every byte is discarded so the process never blocks on a full pipe.
type SinkWriter struct {
	buf *membuf.Buffer

	mu        sync.Mutex
	overflow  error
	discarded int64
}

// NewSinkWriter returns a writer appending to buf.
func NewSinkWriter(buf *membuf.Buffer) *SinkWriter {
	return &SinkWriter{buf: buf}
}

// Write appends p. It returns an error only for the chunk that overflowed.
func (s *SinkWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overflow != nil {
		s.discarded += int64(len(p))
		return len(p), nil
	}
	if _, err := s.buf.Write(p); err != nil {
		s.overflow = err
		s.discarded += int64(len(p))
		return 0, err
	}
	return len(p), nil
}

// Overflow returns the overflow error, or nil.
func (s *SinkWriter) Overflow() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflow
}

// Discarded returns the number of bytes dropped since the overflow.
func (s *SinkWriter) Discarded() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}

// Drain reads r until EOF, passing every chunk to sink in order. onOverflow
// is called once, from Drain's goroutine, when the sink first overflows.
// Reading continues after an overflow. A closed pipe counts as EOF.
func Drain(r io.Reader, sink *SinkWriter, readSize int, onOverflow func(error)) (int64, error) {
	if readSize <= 0 {
		readSize = DefaultReadSize
	}

	buf := make([]byte, readSize)
	var total int64
	reported := false
	for {
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if _, werr := sink.Write(buf[:n]); werr != nil && !reported {
				reported = true
				if onOverflow != nil {
					onOverflow(fmt.Errorf("after %d bytes: %w", total-int64(n), werr))
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || isClosedPipe(err) {
				return total, nil
			}
			return total, err
		}
	}
}

func isClosedPipe(err error) bool {
	return errors.Is(err, os.ErrClosed)
}
