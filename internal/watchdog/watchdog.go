// Package watchdog enforces the wall-clock budget of a sox run.
package watchdog

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-sox-chain/internal/scheduler"
)

const (
	// DefaultGrace is the wait between the graceful and the forced signal.
	DefaultGrace = 500 * time.Millisecond

	// DefaultReapTimeout bounds the wait for the kernel to reap the process
	// after the forced signal.
	DefaultReapTimeout = 2 * time.Second
)

// Target is the process the watchdog terminates.
type Target interface {
	PID() int

	// Stop sends a graceful signal, waits up to grace and then forces
	// termination. It reports whether the forced signal was needed.
	Stop(grace time.Duration) bool

	// Exited is closed once the process has been reaped.
	Exited() <-chan struct{}
}

// Config holds the watchdog settings.
type Config struct {
	Scheduler   scheduler.Scheduler
	Timeout     time.Duration
	Grace       time.Duration
	ReapTimeout time.Duration
	Logger      *slog.Logger

	// OnPanic receives a panic raised while the deadline is handled, with
	// whether the run had been claimed by then. If nil the panic propagates.
	OnPanic func(p any, claimed bool)
}

// Watchdog is an armed deadline for one run.
type Watchdog struct {
	task  scheduler.Task
	fired atomic.Bool
}

// Arm schedules the deadline. When it fires, claim is called first; if it
// returns false the run has already settled and the watchdog does nothing.
// Otherwise the target is stopped and onTimeout is called with whether a
// forced kill was needed. onTimeout runs on the scheduler's goroutine.
// Panics there go to cfg.OnPanic.
func Arm(cfg Config, target Target, claim func() bool, onTimeout func(forced bool)) (*Watchdog, error) {
	grace := cfg.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	reap := cfg.ReapTimeout
	if reap <= 0 {
		reap = DefaultReapTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watchdog{}
	task, err := cfg.Scheduler.Schedule(cfg.Timeout, func() {
		defer func() {
			if p := recover(); p != nil {
				if cfg.OnPanic == nil {
					panic(p)
				}
				cfg.OnPanic(p, w.fired.Load())
			}
		}()

		if !claim() {
			logger.Debug("watchdog_noop", "pid", target.PID(), "reason", "already_settled")
			return
		}
		w.fired.Store(true)

		logger.Warn("watchdog_fired",
			"pid", target.PID(),
			"timeout", cfg.Timeout.String(),
			"grace", grace.String(),
		)

		forced := target.Stop(grace)
		if forced {
			logger.Warn("force_killing_process", "pid", target.PID())
		}

		select {
		case <-target.Exited():
		case <-time.After(reap):
			logger.Error("process_not_reaped",
				"pid", target.PID(),
				"reap_timeout", reap.String(),
			)
		}

		onTimeout(forced)
	})
	if err != nil {
		return nil, err
	}
	w.task = task
	return w, nil
}

// Disarm cancels the deadline. It reports whether the deadline was still
// pending.
func (w *Watchdog) Disarm() bool {
	return w.task.Cancel()
}

// Fired reports whether the deadline fired and claimed the run.
func (w *Watchdog) Fired() bool {
	return w.fired.Load()
}
