// Package scheduler provides the timer service that runs watchdog deadlines.
//
// A Scheduler is constructed and owned by whoever builds the executor, and
// must be shut down by that owner. Nothing here is process-wide.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrShutdown is returned by Schedule once the scheduler has been shut down.
var ErrShutdown = errors.New("scheduler is shut down")

// Task is a handle to a scheduled function.
type Task interface {
	// Cancel prevents the function from running. It reports whether the
	// function was still pending.
	Cancel() bool
}

// Scheduler runs functions after a delay.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (Task, error)
	Shutdown(ctx context.Context) error
}

// TimerScheduler is a Scheduler backed by runtime timers.
type TimerScheduler struct {
	mu       sync.Mutex
	pending  map[*timerTask]struct{}
	running  sync.WaitGroup
	shutdown bool
}

// New returns a running TimerScheduler.
func New() *TimerScheduler {
	return &TimerScheduler{pending: make(map[*timerTask]struct{})}
}

type timerTask struct {
	s     *TimerScheduler
	timer *time.Timer
}

// Schedule runs fn on its own goroutine after d.
func (s *TimerScheduler) Schedule(d time.Duration, fn func()) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return nil, ErrShutdown
	}

	t := &timerTask{s: s}
	s.pending[t] = struct{}{}
	s.running.Add(1)
	t.timer = time.AfterFunc(d, func() {
		if !s.claim(t) {
			return
		}
		defer s.running.Done()
		fn()
	})
	return t, nil
}

// claim removes t from the pending set. Exactly one of the timer firing and
// Cancel succeeds.
func (s *TimerScheduler) claim(t *timerTask) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[t]; !ok {
		return false
	}
	delete(s.pending, t)
	return true
}

func (t *timerTask) Cancel() bool {
	t.timer.Stop()
	if !t.s.claim(t) {
		return false
	}
	t.s.running.Done()
	return true
}

// Pending returns the number of scheduled functions that have not fired.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Shutdown cancels pending functions, rejects new ones and waits for
// functions already running to return.
func (s *TimerScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	tasks := make([]*timerTask, 0, len(s.pending))
	for t := range s.pending {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
