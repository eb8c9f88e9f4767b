package executor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-sox-chain/internal/future"
	"github.com/randomizedcoder/go-sox-chain/internal/logging"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
)

// installFakeSox puts a shell script named "sox" first on PATH so that
// command lines keep "sox" as argv[0]. The script sees the real sox
// arguments in "$@".
func installFakeSox(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "sox")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("writing fake sox: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return dir
}

// newTestExecutor returns an executor that is closed at the end of the test.
func newTestExecutor(t *testing.T, cfg Config) *SoxExecutor {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	e := New(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Close(ctx); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return e
}

func awaitResult(t *testing.T, fut *future.Future[outcome.RunResult]) outcome.RunResult {
	t.Helper()
	res, err := fut.AwaitTimeout(10 * time.Second)
	if err != nil {
		t.Fatalf("run did not settle: %v", err)
	}
	return res
}

func pattern(n int) []byte {
	return bytes.Repeat([]byte("0123456789abcdef"), n/16+1)[:n]
}

// recordingObserver counts lifecycle events.
type recordingObserver struct {
	mu      sync.Mutex
	started []string
	settled []outcome.RunResult
}

func (o *recordingObserver) RunStarted(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, runID)
}

func (o *recordingObserver) RunSettled(r outcome.RunResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settled = append(o.settled, r)
}

func (o *recordingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.started), len(o.settled)
}
