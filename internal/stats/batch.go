// Package stats aggregates settled runs of a batch for the TUI and the exit
// summary.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
	"github.com/randomizedcoder/go-sox-chain/internal/timeseries"
)

// RecentWindow is the trailing window of the recent rates.
const RecentWindow = 10 * time.Second

// MaxRecentFailures bounds the failures kept for display.
const MaxRecentFailures = 20

// Failure is a condensed failed run.
type Failure struct {
	RunID       string
	Kind        outcome.Kind
	ExitCode    int
	Message     string
	CommandLine string
}

// BatchStats is a snapshot of a batch.
type BatchStats struct {
	StartTime time.Time
	Elapsed   time.Duration

	Settled   int64
	Succeeded int64
	Rejected  int64 // runs that failed before spawning
	ByKind    map[outcome.Kind]int64
	ExitCodes map[int]int64

	BytesIn  int64
	BytesOut int64

	// Rates over the last RecentWindow, as of the last Sample call.
	RecentRunsPerSecond  float64
	RecentBytesPerSecond float64

	DurationMin  time.Duration
	DurationMean time.Duration
	DurationP50  time.Duration
	DurationP95  time.Duration
	DurationP99  time.Duration
	DurationMax  time.Duration

	RecentFailures []Failure
}

// SuccessRate returns the fraction of settled runs that succeeded.
func (s *BatchStats) SuccessRate() float64 {
	if s.Settled == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Settled)
}

// RunsPerSecond returns the settlement rate over the elapsed time.
func (s *BatchStats) RunsPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Settled) / s.Elapsed.Seconds()
}

// SortedExitCodes returns the observed exit codes in ascending order.
func (s *BatchStats) SortedExitCodes() []int {
	codes := make([]int, 0, len(s.ExitCodes))
	for code := range s.ExitCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// Batch accumulates settled runs. It is safe for concurrent use.
type Batch struct {
	mu        sync.Mutex
	startTime time.Time
	digest    *tdigest.TDigest

	settled   int64
	succeeded int64
	rejected  int64
	byKind    map[outcome.Kind]int64
	exitCodes map[int]int64
	bytesIn   int64
	bytesOut  int64

	durSum time.Duration
	durMin time.Duration
	durMax time.Duration

	failures []Failure

	runRate  *timeseries.Rate
	byteRate *timeseries.Rate
}

// NewBatch creates an empty batch starting now.
func NewBatch() *Batch {
	return &Batch{
		startTime: time.Now(),
		digest:    tdigest.NewWithCompression(100),
		byKind:    make(map[outcome.Kind]int64),
		exitCodes: make(map[int]int64),
		runRate:   timeseries.NewRate(RecentWindow),
		byteRate:  timeseries.NewRate(RecentWindow),
	}
}

// Sample records the rate counters. Call it about once per second.
func (b *Batch) Sample() {
	b.runRate.Sample()
	b.byteRate.Sample()
}

// Record adds a settled run.
func (b *Batch) Record(r outcome.RunResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.settled++
	b.byKind[r.Kind]++
	if r.OK() {
		b.succeeded++
	}
	if r.PID > 0 && r.Kind != outcome.InternalFailure {
		b.exitCodes[r.ExitCode]++
	}
	b.bytesIn += r.BytesIn
	b.bytesOut += r.BytesOut
	b.runRate.Add(1)
	b.byteRate.Add(r.BytesIn + r.BytesOut)

	b.digest.Add(float64(r.Duration.Nanoseconds()), 1)
	b.durSum += r.Duration
	if b.settled == 1 || r.Duration < b.durMin {
		b.durMin = r.Duration
	}
	if r.Duration > b.durMax {
		b.durMax = r.Duration
	}

	if !r.OK() {
		f := Failure{
			RunID:       r.RunID,
			Kind:        r.Kind,
			ExitCode:    r.ExitCode,
			CommandLine: outcome.QuoteCommandLine(r.CommandLine),
		}
		if err := outcome.Classify(r); err != nil {
			f.Message = err.Error()
		}
		b.addFailure(f)
	}
}

// RecordRejected adds a run that never spawned: its descriptor could not be
// built or Execute returned an error.
func (b *Batch) RecordRejected(label string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rejected++
	f := Failure{RunID: label, Kind: outcome.InternalFailure, ExitCode: -1}
	if err != nil {
		f.Message = err.Error()
		if cmd, ok := outcome.CommandLineOf(err); ok {
			f.CommandLine = cmd
		}
	}
	b.addFailure(f)
}

func (b *Batch) addFailure(f Failure) {
	b.failures = append(b.failures, f)
	if len(b.failures) > MaxRecentFailures {
		b.failures = b.failures[len(b.failures)-MaxRecentFailures:]
	}
}

// Aggregate returns a snapshot.
func (b *Batch) Aggregate() *BatchStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &BatchStats{
		StartTime:      b.startTime,
		Elapsed:        time.Since(b.startTime),
		Settled:        b.settled,
		Succeeded:      b.succeeded,
		Rejected:       b.rejected,
		ByKind:         make(map[outcome.Kind]int64, len(b.byKind)),
		ExitCodes:      make(map[int]int64, len(b.exitCodes)),
		BytesIn:        b.bytesIn,
		BytesOut:       b.bytesOut,
		DurationMin:    b.durMin,
		DurationMax:    b.durMax,
		RecentFailures: append([]Failure(nil), b.failures...),
	}
	s.RecentRunsPerSecond = b.runRate.Stats().PerSecond[0]
	s.RecentBytesPerSecond = b.byteRate.Stats().PerSecond[0]
	for k, n := range b.byKind {
		s.ByKind[k] = n
	}
	for code, n := range b.exitCodes {
		s.ExitCodes[code] = n
	}

	if b.settled > 0 {
		s.DurationMean = b.durSum / time.Duration(b.settled)
		s.DurationP50 = b.quantile(0.50)
		s.DurationP95 = b.quantile(0.95)
		s.DurationP99 = b.quantile(0.99)
	}
	return s
}

// quantile clamps the digest estimate to the observed range.
func (b *Batch) quantile(q float64) time.Duration {
	d := time.Duration(b.digest.Quantile(q))
	return min(max(d, b.durMin), b.durMax)
}

// Rejected returns the number of runs that never spawned.
func (b *Batch) Rejected() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

// Settled returns the number of recorded runs.
func (b *Batch) Settled() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settled
}

// StartTime returns when the batch started.
func (b *Batch) StartTime() time.Time {
	return b.startTime
}

// Reset clears all recorded runs and restarts the clock.
func (b *Batch) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.startTime = time.Now()
	b.digest = tdigest.NewWithCompression(100)
	b.settled, b.succeeded, b.rejected = 0, 0, 0
	b.byKind = make(map[outcome.Kind]int64)
	b.exitCodes = make(map[int]int64)
	b.bytesIn, b.bytesOut = 0, 0
	b.durSum, b.durMin, b.durMax = 0, 0, 0
	b.failures = nil
	b.runRate.Reset()
	b.byteRate.Reset()
}
