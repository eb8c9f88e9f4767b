// Package timeseries computes rolling rates of cumulative counters, such as
// runs settled and audio bytes moved through sox.
//
// Add is lock-free; Sample and Stats take the ring-buffer lock. Sample is
// expected about once per second.
package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSamples keeps five minutes of history at one sample per second.
const DefaultSamples = 300

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type point struct {
	at    time.Time
	total int64
}

// Rate tracks a cumulative counter and its rate over trailing windows.
type Rate struct {
	total atomic.Int64

	mu     sync.RWMutex
	ring   []point
	next   int // next slot to overwrite once the ring is full
	start  time.Time
	clock  Clock
	window []time.Duration
}

// RateStats is a snapshot of a Rate.
type RateStats struct {
	Total int64

	// PerSecond holds one rate per configured window, in order.
	PerSecond []float64

	// Overall is the rate since the tracker started or was reset.
	Overall float64
}

// NewRate creates a tracker reporting rates over windows (default 10s and
// 60s).
func NewRate(windows ...time.Duration) *Rate {
	return NewRateWithClock(realClock{}, windows...)
}

// NewRateWithClock creates a tracker with a custom clock for testing.
func NewRateWithClock(clock Clock, windows ...time.Duration) *Rate {
	if len(windows) == 0 {
		windows = []time.Duration{10 * time.Second, time.Minute}
	}
	r := &Rate{
		ring:   make([]point, 0, DefaultSamples),
		clock:  clock,
		window: windows,
	}
	r.resetLocked(clock.Now())
	return r
}

// Add increments the counter. Non-positive n is ignored.
func (r *Rate) Add(n int64) {
	if n > 0 {
		r.total.Add(n)
	}
}

// Total returns the counter value.
func (r *Rate) Total() int64 {
	return r.total.Load()
}

// Sample records the counter's current value.
func (r *Rate) Sample() {
	p := point{at: r.clock.Now(), total: r.total.Load()}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.ring) < cap(r.ring) {
		r.ring = append(r.ring, p)
		return
	}
	r.ring[r.next] = p
	r.next = (r.next + 1) % len(r.ring)
}

// Stats computes the rates at the current time.
func (r *Rate) Stats() RateStats {
	now := r.clock.Now()
	total := r.total.Load()

	r.mu.RLock()
	defer r.mu.RUnlock()

	s := RateStats{
		Total:     total,
		PerSecond: make([]float64, len(r.window)),
	}
	if elapsed := now.Sub(r.start).Seconds(); elapsed > 0 {
		s.Overall = float64(total) / elapsed
	}
	for i, w := range r.window {
		s.PerSecond[i] = r.rateSince(now, total, now.Add(-w))
	}
	return s
}

// Windows returns the configured windows.
func (r *Rate) Windows() []time.Duration {
	return append([]time.Duration(nil), r.window...)
}

// rateSince uses the newest sample taken at or before cutoff, or the oldest
// sample when history is shorter than the window. Must be called with mu
// held.
func (r *Rate) rateSince(now time.Time, total int64, cutoff time.Time) float64 {
	var base *point
	for i := range r.ring {
		p := &r.ring[i]
		if p.at.After(cutoff) {
			continue
		}
		if base == nil || p.at.After(base.at) {
			base = p
		}
	}
	if base == nil {
		base = r.oldest()
	}

	elapsed := now.Sub(base.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(total-base.total) / elapsed
}

// oldest must be called with mu held. The ring is never empty.
func (r *Rate) oldest() *point {
	if len(r.ring) < cap(r.ring) {
		return &r.ring[0]
	}
	return &r.ring[r.next]
}

// Reset clears the counter and history.
func (r *Rate) Reset() {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.total.Store(0)
	r.resetLocked(now)
}

func (r *Rate) resetLocked(now time.Time) {
	r.ring = append(r.ring[:0], point{at: now})
	r.next = 0
	r.start = now
}

// SampleCount returns the number of samples held.
func (r *Rate) SampleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ring)
}
