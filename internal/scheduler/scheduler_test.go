package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSchedule_Fires(t *testing.T) {
	s := New()
	defer s.Shutdown(context.Background())

	fired := make(chan struct{})
	if _, err := s.Schedule(5*time.Millisecond, func() { close(fired) }); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("task did not fire")
	}
}

func TestCancel_PreventsRun(t *testing.T) {
	s := New()
	defer s.Shutdown(context.Background())

	var ran atomic.Bool
	task, err := s.Schedule(20*time.Millisecond, func() { ran.Store(true) })
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	if !task.Cancel() {
		t.Error("Cancel() on pending task returned false")
	}
	if task.Cancel() {
		t.Error("second Cancel() returned true")
	}

	time.Sleep(40 * time.Millisecond)
	if ran.Load() {
		t.Error("cancelled task ran")
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

func TestCancel_AfterFireReturnsFalse(t *testing.T) {
	s := New()
	defer s.Shutdown(context.Background())

	fired := make(chan struct{})
	task, _ := s.Schedule(time.Millisecond, func() { close(fired) })
	<-fired

	if task.Cancel() {
		t.Error("Cancel() after fire returned true")
	}
}

func TestShutdown_CancelsPendingAndRejectsNew(t *testing.T) {
	s := New()

	var ran atomic.Bool
	if _, err := s.Schedule(time.Hour, func() { ran.Store(true) }); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after shutdown", s.Pending())
	}

	if _, err := s.Schedule(time.Millisecond, func() {}); !errors.Is(err, ErrShutdown) {
		t.Errorf("Schedule() after shutdown error = %v, want ErrShutdown", err)
	}
}

func TestShutdown_WaitsForRunningTask(t *testing.T) {
	s := New()

	started := make(chan struct{})
	release := make(chan struct{})
	s.Schedule(time.Millisecond, func() {
		close(started)
		<-release
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() with running task = %v, want DeadlineExceeded", err)
	}

	close(release)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() after release = %v", err)
	}
}
