package orchestrator

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
	"github.com/randomizedcoder/go-sox-chain/internal/config"
	"github.com/randomizedcoder/go-sox-chain/internal/logging"
	"github.com/randomizedcoder/go-sox-chain/internal/membuf"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
	"github.com/randomizedcoder/go-sox-chain/internal/wavinfo"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Concurrency = 2
	cfg.Runs = 3
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestRun_FakeExecutor(t *testing.T) {
	var out bytes.Buffer
	reg := prometheus.NewRegistry()

	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	orch := New(cfg, []config.Job{fileJob("a"), fileJob("b")}, logging.Discard(), Options{
		Version:  "test",
		Stdout:   &out,
		Registry: reg,
		Executor: &fakeExecutor{delay: 5 * time.Millisecond, kind: outcome.Success},
	})

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Settled != 6 || result.Succeeded != 6 {
		t.Errorf("settled=%d succeeded=%d, want 6/6", result.Settled, result.Succeeded)
	}
	if !strings.Contains(out.String(), "sox-chain Batch Summary") {
		t.Errorf("summary missing:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Target Runs:            6") {
		t.Errorf("summary target runs wrong:\n%s", out.String())
	}
}

func TestRun_RejectedRunsInSummary(t *testing.T) {
	var out bytes.Buffer

	cfg := testConfig()
	cfg.Runs = 1
	orch := New(cfg, []config.Job{fileJob("a")}, logging.Discard(), Options{
		Stdout:   &out,
		Registry: prometheus.NewRegistry(),
		Executor: &fakeExecutor{err: outcome.ErrSinkExists},
	})

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Rejected != 1 || result.Settled != 0 {
		t.Errorf("rejected=%d settled=%d", result.Rejected, result.Settled)
	}
	if !strings.Contains(out.String(), "a#1") {
		t.Errorf("failure listing missing task label:\n%s", out.String())
	}
}

func TestRun_CancelledContext(t *testing.T) {
	cfg := testConfig()
	orch := New(cfg, []config.Job{fileJob("a")}, logging.Discard(), Options{
		Stdout:   &bytes.Buffer{},
		Registry: prometheus.NewRegistry(),
		Executor: &fakeExecutor{kind: outcome.Success},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Settled != 0 {
		t.Errorf("Settled = %d, want 0", result.Settled)
	}
}

// TestRun_SoxExecutorWithInspect drives the real executor against a fake
// sox that copies stdin to stdout, then inspects the in-memory sink.
func TestRun_SoxExecutorWithInspect(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	soxPath := filepath.Join(dir, "sox")
	if err := os.WriteFile(soxPath, []byte("#!/bin/sh\nexec cat\n"), 0o755); err != nil {
		t.Fatalf("write fake sox: %v", err)
	}

	tone := wavinfo.DefaultTone()
	tone.Duration = 100 * time.Millisecond
	inPath := filepath.Join(dir, "in.wav")
	if err := tone.WriteFile(inPath); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg := testConfig()
	cfg.SoxPath = soxPath
	cfg.Runs = 2
	cfg.Inspect = true

	job := config.Job{
		Name:         "copy",
		In:           inPath,
		InMemory:     true,
		SinkCapacity: 1 << 20,
		Effects:      []config.EffectConfig{{Name: "gain", Args: []string{"0"}}},
	}

	var logs bytes.Buffer
	reg := prometheus.NewRegistry()
	orch := New(cfg, []config.Job{job}, logging.NewLoggerWithWriter(&logs, "text", "info"), Options{
		Stdout:   &bytes.Buffer{},
		Registry: reg,
	})

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Succeeded != 2 {
		t.Fatalf("succeeded = %d, failures = %+v", result.Succeeded, result.RecentFailures)
	}
	if !strings.Contains(logs.String(), "sink_inspected") || !strings.Contains(logs.String(), "sample_rate=44100") {
		t.Errorf("inspection not logged:\n%s", logs.String())
	}

	if snap := orch.Metrics().Snapshot(); snap.TotalStarts != 2 || snap.Settled["success"] != 2 {
		t.Errorf("metrics snapshot = %+v", snap)
	}
}

func TestInspectSink(t *testing.T) {
	tone := wavinfo.DefaultTone()
	data, err := tone.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	d := chain.New(chain.File{Path: "/in.wav"}, chain.Memory{Buffer: membuf.From(data)})
	info, err := InspectSink(d)
	if err != nil {
		t.Fatalf("InspectSink(memory) error = %v", err)
	}
	if info.SampleRate != 44100 || info.NumChannels != 1 {
		t.Errorf("info = %+v", info)
	}

	path := filepath.Join(t.TempDir(), "out.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := InspectSink(chain.New(chain.File{Path: "/in.wav"}, chain.File{Path: path})); err != nil {
		t.Errorf("InspectSink(file) error = %v", err)
	}

	if _, err := InspectSink(chain.New(chain.File{Path: "/in.wav"}, nil)); err == nil {
		t.Error("InspectSink(nil sink) should fail")
	}
}
