package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-sox-chain/internal/future"
	"github.com/randomizedcoder/go-sox-chain/internal/logging"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
	"github.com/randomizedcoder/go-sox-chain/internal/stream"
	"github.com/randomizedcoder/go-sox-chain/internal/supervisor"
	"github.com/randomizedcoder/go-sox-chain/internal/watchdog"
)

// run is the state of one execution. Whoever sets claimed first (exit
// waiter, watchdog or a panic handler) delivers the result.
type run struct {
	e      *SoxExecutor
	id     string
	argv   []string
	plan   stream.Plan
	fut    *future.Future[outcome.RunResult]
	logger *slog.Logger

	handle    *supervisor.Handle
	startTime time.Time

	diag      *stream.DiagnosticBuffer
	stderrLog *logging.StderrHandler
	sink      *stream.SinkWriter

	mu          sync.Mutex
	watchdog    *watchdog.Watchdog
	claimed     bool
	overflowErr error
	writeErr    error

	bytesIn atomic.Int64

	readers sync.WaitGroup
	writer  sync.WaitGroup
}

func newRun(e *SoxExecutor, id string, argv []string, plan stream.Plan) *run {
	logger := logging.ForRun(e.logger, id)
	r := &run{
		e:         e,
		id:        id,
		argv:      argv,
		plan:      plan,
		fut:       future.New[outcome.RunResult](),
		logger:    logger,
		diag:      stream.NewDiagnosticBuffer(e.cfg.StderrLimit),
		stderrLog: logging.NewStderrHandler(id, logger, e.cfg.Verbose),
	}
	if plan.PumpsStdout() {
		r.sink = stream.NewSinkWriter(plan.Sink)
	}
	return r
}

// start arms the watchdog and launches the run goroutines. It runs on the
// caller of Execute; the exit waiter's slot in e.runs is taken first so that
// every later goTask is added while the count is held.
func (r *run) start(h *supervisor.Handle) {
	r.e.runs.Add(1)
	r.handle = h
	r.startTime = h.StartTime()

	r.logger.Info("run_started",
		"pid", h.PID(),
		"command", outcome.QuoteCommandLine(r.argv),
		"stdin_bytes", len(r.plan.SourcePayload),
	)
	if obs := r.e.cfg.Observer; obs != nil {
		obs.RunStarted(r.id)
	}

	wd, err := watchdog.Arm(watchdog.Config{
		Scheduler:   r.e.cfg.Scheduler,
		Timeout:     r.e.cfg.Timeout,
		Grace:       r.e.cfg.Grace,
		ReapTimeout: r.e.cfg.ReapTimeout,
		Logger:      r.logger,
		OnPanic:     r.onWatchdogPanic,
	}, h, r.claim, r.onTimeout)
	if err != nil {
		r.fail(fmt.Errorf("arming watchdog: %w", err))
	} else {
		r.mu.Lock()
		r.watchdog = wd
		r.mu.Unlock()
	}

	if r.plan.PumpsStdin() {
		r.writer.Add(1)
		r.goTask("stdin_writer", func() {
			defer r.writer.Done()
			r.writeStdin()
		})
	}
	if r.plan.PumpsStdout() {
		r.readers.Add(1)
		r.goTask("stdout_reader", func() {
			defer r.readers.Done()
			r.readStdout()
		})
	}
	r.readers.Add(1)
	r.goTask("stderr_reader", func() {
		defer r.readers.Done()
		r.readStderr()
	})
	go r.track("exit_waiter", r.waitExit)
}

// goTask runs fn on a tracked goroutine. A panic settles the run as an
// internal failure. Callers must hold a slot in e.runs.
func (r *run) goTask(name string, fn func()) {
	r.e.runs.Add(1)
	go r.track(name, fn)
}

// track runs fn and releases one slot of e.runs after any panic handling.
func (r *run) track(name string, fn func()) {
	defer r.e.runs.Done()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("run_panic", "task", name, "panic", p, "stack", string(debug.Stack()))
			r.fail(fmt.Errorf("panic in %s: %v", name, p))
		}
	}()
	fn()
}

func (r *run) writeStdin() {
	n, err := stream.WriteChunked(r.handle.Stdin, r.plan.SourcePayload, r.e.cfg.ChunkSize)
	r.bytesIn.Store(int64(n))
	if err != nil {
		r.mu.Lock()
		r.writeErr = fmt.Errorf("after %d of %d bytes: %w", n, len(r.plan.SourcePayload), err)
		r.mu.Unlock()
		r.logger.Debug("stdin_write_failed", "bytes_written", n, "error", err)
	}
	// EOF for sox only once the whole payload is written.
	r.handle.CloseStdin()
}

func (r *run) readStdout() {
	_, err := stream.Drain(r.handle.Stdout, r.sink, r.e.cfg.ReadSize, r.onOverflow)
	if err != nil {
		r.logger.Warn("stdout_read_failed", "error", err)
	}
}

func (r *run) readStderr() {
	w := io.MultiWriter(r.diag, r.stderrLog)
	buf := make([]byte, r.e.cfg.ReadSize)
	_, err := io.CopyBuffer(w, r.handle.Stderr, buf)
	r.stderrLog.Flush()
	if err != nil && !errors.Is(err, io.EOF) {
		r.logger.Debug("stderr_read_stopped", "error", err)
	}
}

// onOverflow records the overflow and terminates sox; the exit waiter
// reports it once sox is gone.
func (r *run) onOverflow(err error) {
	r.mu.Lock()
	if r.overflowErr == nil {
		r.overflowErr = err
	}
	r.mu.Unlock()

	r.logger.Warn("sink_overflow", "capacity", r.plan.Sink.Cap(), "error", err)
	r.goTask("overflow_stop", func() {
		r.handle.Stop(r.e.cfg.Grace)
	})
}

// waitExit reaps sox, lets the pumps finish and settles the run unless the
// watchdog or a panic handler already did.
func (r *run) waitExit() {
	exitCode, _ := r.handle.Wait()

	if !waitTimeout(&r.readers, r.e.cfg.DrainTimeout) {
		r.logger.Warn("drain_timeout",
			"timeout", r.e.cfg.DrainTimeout.String(),
			"reason", "output pipes still open after process exit",
		)
		r.handle.Close()
		r.readers.Wait()
	}
	if !waitTimeout(&r.writer, r.e.cfg.DrainTimeout) {
		r.handle.CloseStdin()
		r.writer.Wait()
	}
	r.handle.Close()

	r.mu.Lock()
	if r.claimed {
		r.mu.Unlock()
		return
	}
	r.claimed = true
	overflowErr, writeErr := r.overflowErr, r.writeErr
	r.mu.Unlock()

	res := r.result()
	res.ExitCode = exitCode
	switch {
	case overflowErr != nil:
		res.Kind = outcome.OverflowFailure
		res.Err = overflowErr
	case exitCode != 0:
		res.Kind = outcome.ProcessFailure
	case writeErr != nil:
		res.Kind = outcome.WriteFailure
		res.Err = writeErr
	default:
		res.Kind = outcome.Success
	}
	r.settle(res)
}

// claim reserves the right to settle the run. Only the first caller wins.
func (r *run) claim() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed {
		return false
	}
	r.claimed = true
	return true
}

func (r *run) onTimeout(forced bool) {
	res := r.result()
	res.Kind = outcome.TimeoutFailure
	if code, ok := r.handle.ExitCode(); ok {
		res.ExitCode = code
	}
	r.logger.Warn("run_timed_out",
		"pid", r.handle.PID(),
		"forced", forced,
		"last_stderr", r.stderrLog.LastLine(),
	)
	r.settle(res)
}

// fail settles an internal failure and terminates sox.
func (r *run) fail(err error) {
	if !r.claim() {
		return
	}
	r.settleInternal(err)

	if r.handle != nil && r.handle.Alive() {
		r.goTask("failure_stop", func() {
			r.handle.Stop(r.e.cfg.Grace)
		})
	}
}

// onWatchdogPanic runs on the scheduler goroutine, outside e.runs, so sox
// is killed here rather than through goTask.
func (r *run) onWatchdogPanic(p any, claimed bool) {
	r.logger.Error("run_panic", "task", "watchdog", "panic", p, "stack", string(debug.Stack()))
	if !claimed && !r.claim() {
		return
	}
	r.settleInternal(fmt.Errorf("panic in watchdog: %v", p))

	if r.handle.Alive() {
		if err := r.handle.Terminate(syscall.SIGKILL); err != nil {
			r.logger.Warn("kill_failed", "pid", r.handle.PID(), "error", err)
		}
	}
}

func (r *run) settleInternal(err error) {
	res := r.result()
	res.Kind = outcome.InternalFailure
	res.Err = err
	r.settle(res)
}

// result returns the fields common to every outcome.
func (r *run) result() outcome.RunResult {
	res := outcome.RunResult{
		RunID:       r.id,
		CommandLine: r.argv,
		Stderr:      r.diag.String(),
		Duration:    time.Since(r.startTime),
		BytesIn:     r.bytesIn.Load(),

		StderrTruncated: r.diag.Truncated(),
	}
	if r.handle != nil {
		res.PID = r.handle.PID()
	}
	if r.plan.Sink != nil {
		res.BytesOut = int64(r.plan.Sink.Len())
	}
	return res
}

// settle delivers res. Only the goroutine that claimed the run calls it.
func (r *run) settle(res outcome.RunResult) {
	if !r.fut.Settle(res) {
		return
	}

	r.mu.Lock()
	wd := r.watchdog
	r.mu.Unlock()
	if wd != nil {
		wd.Disarm()
	}

	tags := r.stderrLog.TagCounts()
	level := slog.LevelInfo
	if !res.OK() {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "run_settled",
		"kind", res.Kind.String(),
		"pid", res.PID,
		"exit_code", res.ExitCode,
		"duration", res.Duration.String(),
		"bytes_in", res.BytesIn,
		"bytes_out", res.BytesOut,
		"sox_warnings", tags[logging.TagWarn],
		"sox_failures", tags[logging.TagFail],
	)

	if obs := r.e.cfg.Observer; obs != nil {
		obs.RunSettled(res)
	}
}

// waitTimeout waits for wg up to d. It reports whether wg finished.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
