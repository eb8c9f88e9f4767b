// Package future provides a write-once result that many goroutines can wait
// on.
package future

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotSettled is returned by AwaitTimeout when the deadline passes first.
var ErrNotSettled = errors.New("future not settled")

// Future holds at most one value. The first Settle wins; later calls are
// ignored. Waiting never affects whoever settles it.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	mu    sync.RWMutex
	value T
	set   bool
}

// New returns an unsettled future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Settle stores v if the future is unsettled. It reports whether this call
// performed the settlement.
func (f *Future[T]) Settle(v T) bool {
	won := false
	f.once.Do(func() {
		f.mu.Lock()
		f.value = v
		f.set = true
		f.mu.Unlock()
		close(f.done)
		won = true
	})
	return won
}

// Done returns a channel that is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether a value has been stored.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Peek returns the value without blocking.
func (f *Future[T]) Peek() (T, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value, f.set
}

// Await blocks until the future is settled or ctx is done. Cancelling ctx
// only stops this wait.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		v, _ := f.Peek()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AwaitTimeout blocks for at most d. It returns ErrNotSettled on expiry.
func (f *Future[T]) AwaitTimeout(d time.Duration) (T, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-f.done:
		v, _ := f.Peek()
		return v, nil
	case <-timer.C:
		var zero T
		return zero, ErrNotSettled
	}
}
