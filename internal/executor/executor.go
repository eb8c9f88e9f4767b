// Package executor runs effects chains in an external sox process.
//
// Execute never blocks: it validates the chain, spawns sox and returns a
// future. Four goroutines then drive the run (stdin writer, stdout reader,
// stderr reader, exit waiter) while a watchdog on the injected scheduler
// enforces the time budget. Exactly one terminal result is delivered.
//
// Precedence when several things go wrong in one run:
//
//	timeout > sink overflow > non-zero exit > stdin write failure > success
//
// A stdin write failure is therefore only reported when sox otherwise
// exited 0; a broken pipe caused by sox failing early reports sox's exit.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
	"github.com/randomizedcoder/go-sox-chain/internal/future"
	"github.com/randomizedcoder/go-sox-chain/internal/logging"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
	"github.com/randomizedcoder/go-sox-chain/internal/process"
	"github.com/randomizedcoder/go-sox-chain/internal/scheduler"
	"github.com/randomizedcoder/go-sox-chain/internal/stream"
	"github.com/randomizedcoder/go-sox-chain/internal/supervisor"
	"github.com/randomizedcoder/go-sox-chain/internal/watchdog"
)

// DefaultTimeout is the wall-clock budget of one run.
const DefaultTimeout = 10 * time.Minute

// Executor runs a chain and reports its result through a future. The
// out-of-process executor and an in-process binding are interchangeable
// behind this interface.
type Executor interface {
	Execute(d chain.Descriptor) (*future.Future[outcome.RunResult], error)
}

// Func adapts a function to the Executor interface.
type Func func(d chain.Descriptor) (*future.Future[outcome.RunResult], error)

// Execute calls f(d).
func (f Func) Execute(d chain.Descriptor) (*future.Future[outcome.RunResult], error) {
	return f(d)
}

// Observer is notified about run lifecycle events, e.g. for metrics.
// Calls happen on run goroutines and must not block.
type Observer interface {
	RunStarted(runID string)
	RunSettled(result outcome.RunResult)
}

// Config holds the executor settings.
type Config struct {
	// Runner renders command lines. Defaults to a sox runner.
	Runner process.Runner

	// Scheduler runs watchdog deadlines. If nil, the executor creates one
	// and shuts it down in Close.
	Scheduler scheduler.Scheduler

	Timeout     time.Duration
	Grace       time.Duration
	ReapTimeout time.Duration

	// ChunkSize is the stdin write size, ReadSize the stdout/stderr read
	// size and StderrLimit the captured stderr bound.
	ChunkSize   int
	ReadSize    int
	StderrLimit int

	// DrainTimeout bounds the wait for stdout and stderr to reach EOF after
	// the process has been reaped.
	DrainTimeout time.Duration

	Logger   *slog.Logger
	Verbose  bool
	Observer Observer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      DefaultTimeout,
		Grace:        watchdog.DefaultGrace,
		ReapTimeout:  watchdog.DefaultReapTimeout,
		ChunkSize:    stream.DefaultChunkSize,
		ReadSize:     stream.DefaultReadSize,
		StderrLimit:  stream.DefaultDiagnosticLimit,
		DrainTimeout: 5 * time.Second,
	}
}

// SoxExecutor is the out-of-process Executor.
type SoxExecutor struct {
	cfg           Config
	logger        *slog.Logger
	ownsScheduler bool

	// runs tracks every goroutine started for a run.
	runs sync.WaitGroup
}

// New creates an executor. Zero fields in cfg take their defaults.
func New(cfg Config) *SoxExecutor {
	def := DefaultConfig()
	if cfg.Runner == nil {
		cfg.Runner = process.NewSoxRunner(nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.ReapTimeout <= 0 {
		cfg.ReapTimeout = def.ReapTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = def.ReadSize
	}
	if cfg.StderrLimit <= 0 {
		cfg.StderrLimit = def.StderrLimit
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	e := &SoxExecutor{cfg: cfg, logger: cfg.Logger}
	if cfg.Scheduler == nil {
		e.cfg.Scheduler = scheduler.New()
		e.ownsScheduler = true
	}
	return e
}

// Config returns the effective configuration.
func (e *SoxExecutor) Config() Config {
	return e.cfg
}

// Execute validates d, spawns sox and returns the run's future. Validation
// and spawn failures are returned directly; everything after the spawn is
// reported once through the future.
func (e *SoxExecutor) Execute(d chain.Descriptor) (*future.Future[outcome.RunResult], error) {
	plan, err := stream.Resolve(d)
	if err != nil {
		return nil, err
	}

	cmd, argv, err := e.cfg.Runner.BuildCommand(d)
	if err != nil {
		return nil, err
	}

	r := newRun(e, uuid.NewString(), argv, plan)

	handle, err := supervisor.Spawn(cmd, supervisor.Pipes{
		Stdin:  plan.PumpsStdin(),
		Stdout: plan.PumpsStdout(),
	}, supervisor.Callbacks{
		OnStateChange: func(pid int, oldState, newState supervisor.State) {
			r.logger.Debug("process_state", "pid", pid, "from", oldState.String(), "to", newState.String())
		},
	})
	if err != nil {
		e.logger.Error("failed_to_start_process",
			"run_id", r.id,
			"command", outcome.QuoteCommandLine(argv),
			"error", err,
		)
		return nil, &outcome.SpawnError{Err: err, Cmd: argv}
	}

	r.start(handle)
	return r.fut, nil
}

// Close waits for every run to finish its goroutines, then shuts down the
// scheduler if the executor created it.
func (e *SoxExecutor) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if e.ownsScheduler {
		return e.cfg.Scheduler.Shutdown(ctx)
	}
	return nil
}

// ExecuteNow runs d and waits for its result. The returned error is the
// classified run error (see outcome.Classify), a synchronous Execute error,
// or ctx's error if the wait was abandoned. Abandoning the wait does not
// stop the process.
func ExecuteNow(ctx context.Context, e Executor, d chain.Descriptor) (outcome.RunResult, error) {
	fut, err := e.Execute(d)
	if err != nil {
		return outcome.RunResult{}, err
	}
	res, err := fut.Await(ctx)
	if err != nil {
		return outcome.RunResult{}, err
	}
	return res, outcome.Classify(res)
}
