package stream

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
	"github.com/randomizedcoder/go-sox-chain/internal/membuf"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
)

// =============================================================================
// Resolve
// =============================================================================

func TestResolve_Endpoints(t *testing.T) {
	mem := chain.Memory{Buffer: membuf.From([]byte("RIFF"))}
	sink := chain.Memory{Buffer: membuf.New(16)}
	dir := t.TempDir()

	tests := []struct {
		name       string
		desc       chain.Descriptor
		wantErr    error
		wantStdin  bool
		wantStdout bool
	}{
		{"missing both reports source", chain.New(nil, nil), outcome.ErrMissingSource, false, false},
		{"missing sink", chain.New(mem, nil), outcome.ErrMissingSink, false, false},
		{"memory to memory", chain.New(mem, sink), nil, true, true},
		{"file to memory", chain.New(chain.File{Path: "/in.wav"}, sink), nil, false, true},
		{"memory to new file", chain.New(mem, chain.File{Path: filepath.Join(dir, "out.wav")}), nil, true, false},
		{"nil buffer source", chain.New(chain.Memory{}, sink), outcome.ErrMissingSource, false, false},
		{"empty path sink", chain.New(mem, chain.File{}), outcome.ErrMissingSink, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Resolve(tt.desc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if plan.PumpsStdin() != tt.wantStdin {
				t.Errorf("PumpsStdin() = %v, want %v", plan.PumpsStdin(), tt.wantStdin)
			}
			if plan.PumpsStdout() != tt.wantStdout {
				t.Errorf("PumpsStdout() = %v, want %v", plan.PumpsStdout(), tt.wantStdout)
			}
		})
	}
}

func TestResolve_ExistingSinkFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := chain.File{Path: "/in.wav"}

	_, err := Resolve(chain.New(src, chain.File{Path: path}))
	if !errors.Is(err, outcome.ErrSinkExists) {
		t.Errorf("Resolve() error = %v, want ErrSinkExists", err)
	}

	if _, err := Resolve(chain.New(src, chain.File{Path: path, AllowOverwrite: true})); err != nil {
		t.Errorf("Resolve() with AllowOverwrite error = %v", err)
	}
}

func TestResolve_EmptyMemorySourceStillPumps(t *testing.T) {
	plan, err := Resolve(chain.New(chain.Memory{Buffer: membuf.New(0)}, chain.Memory{Buffer: membuf.New(0)}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !plan.PumpsStdin() {
		t.Error("empty memory source should still pump (and close) stdin")
	}
}

// =============================================================================
// WriteChunked
// =============================================================================

type recordingWriter struct {
	chunks []int
	buf    bytes.Buffer
	failAt int
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.failAt > 0 && len(w.chunks)+1 == w.failAt {
		return 0, errors.New("broken pipe")
	}
	w.chunks = append(w.chunks, len(p))
	return w.buf.Write(p)
}

func TestWriteChunked(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 10)
	w := &recordingWriter{}

	n, err := WriteChunked(w, payload, 4)
	if err != nil {
		t.Fatalf("WriteChunked() error = %v", err)
	}
	if n != len(payload) {
		t.Errorf("wrote %d bytes, want %d", n, len(payload))
	}
	if got := w.chunks; len(got) != 3 || got[0] != 4 || got[1] != 4 || got[2] != 2 {
		t.Errorf("chunks = %v, want [4 4 2]", got)
	}
	if !bytes.Equal(w.buf.Bytes(), payload) {
		t.Error("payload corrupted")
	}
}

func TestWriteChunked_StopsOnError(t *testing.T) {
	w := &recordingWriter{failAt: 2}

	n, err := WriteChunked(w, make([]byte, 10), 4)
	if err == nil {
		t.Fatal("WriteChunked() expected error")
	}
	if n != 4 {
		t.Errorf("wrote %d bytes before failure, want 4", n)
	}
}

// =============================================================================
// SinkWriter / Drain
// =============================================================================

func TestDrain_ExactCapacityNeverOverflows(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 100_000)
	buf := membuf.New(len(payload))
	sink := NewSinkWriter(buf)

	called := false
	n, err := Drain(bytes.NewReader(payload), sink, 4096, func(error) { called = true })
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if called || sink.Overflow() != nil {
		t.Error("exact-capacity sink overflowed")
	}
	if n != int64(len(payload)) || !bytes.Equal(buf.Bytes(), payload) {
		t.Errorf("sink holds %d bytes, want %d", buf.Len(), len(payload))
	}
}

func TestDrain_OneByteShortOverflows(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 100_000)
	sink := NewSinkWriter(membuf.New(len(payload) - 1))

	var calls int
	var got error
	n, err := Drain(bytes.NewReader(payload), sink, 4096, func(e error) {
		calls++
		got = e
	})
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("onOverflow called %d times, want 1", calls)
	}
	if !errors.Is(got, membuf.ErrBufferOverflow) {
		t.Errorf("overflow error = %v, want ErrBufferOverflow", got)
	}
	if n != int64(len(payload)) {
		t.Errorf("Drain read %d bytes, want all %d", n, len(payload))
	}
	if sink.Discarded() == 0 {
		t.Error("no bytes recorded as discarded")
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestDrain_ClosedPipeIsEOF(t *testing.T) {
	sink := NewSinkWriter(membuf.New(8))
	if _, err := Drain(errReader{os.ErrClosed}, sink, 0, nil); err != nil {
		t.Errorf("Drain() on closed pipe = %v, want nil", err)
	}
	if _, err := Drain(errReader{io.ErrUnexpectedEOF}, sink, 0, nil); err == nil {
		t.Error("Drain() should surface unexpected read errors")
	}
}

// =============================================================================
// DiagnosticBuffer
// =============================================================================

func TestDiagnosticBuffer_KeepsHead(t *testing.T) {
	d := NewDiagnosticBuffer(8)

	for _, s := range []string{"sox ", "WARN ", "dither clipped"} {
		if n, err := d.Write([]byte(s)); err != nil || n != len(s) {
			t.Fatalf("Write(%q) = %d, %v", s, n, err)
		}
	}

	if d.Len() != 8 {
		t.Errorf("Len() = %d, want 8", d.Len())
	}
	if d.Truncated() != 15 {
		t.Errorf("Truncated() = %d, want 15", d.Truncated())
	}
	if got := d.String(); !strings.HasPrefix(got, "sox WARN") || !strings.Contains(got, "15 bytes truncated") {
		t.Errorf("String() = %q", got)
	}
}

func TestDiagnosticBuffer_UnderLimit(t *testing.T) {
	d := NewDiagnosticBuffer(0)
	d.Write([]byte("sox FAIL"))
	if d.String() != "sox FAIL" {
		t.Errorf("String() = %q", d.String())
	}
}
