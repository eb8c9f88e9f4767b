// Package metrics provides Prometheus metrics for sox-chain runs.
//
// Run-level metrics are always registered:
//   - runs started, active and settled, labelled by outcome kind
//   - run duration histogram, labelled by outcome kind
//   - sox exit codes, grouped into success / error / signal
//   - payload bytes pumped into stdin and drained from stdout
//
// Batch metrics (target, progress, elapsed) are updated by the orchestrator.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-sox-chain/internal/executor"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
)

const namespace = "sox_chain"

// Collector records run lifecycle events as Prometheus metrics. It implements
// executor.Observer.
type Collector struct {
	info            *prometheus.GaugeVec
	batchTarget     prometheus.Gauge
	batchProgress   prometheus.Gauge
	batchElapsed    prometheus.Gauge
	runsStarted     prometheus.Counter
	runsActive      prometheus.Gauge
	runsSettled     *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	exitCodes       *prometheus.CounterVec
	bytesIn         prometheus.Counter
	bytesOut        prometheus.Counter
	stderrTruncated prometheus.Counter

	startTime   time.Time
	targetRuns  int
	mu          sync.Mutex
	active      int
	peakActive  int
	totalStarts int64
	settled     map[outcome.Kind]int64
}

// CollectorConfig holds static labels for the info metric.
type CollectorConfig struct {
	Version    string
	SoxPath    string
	TargetRuns int
}

var _ executor.Observer = (*Collector)(nil)

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector registered with registry.
// Use a fresh registry per test.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the sox-chain process (value always 1)",
		}, []string{"version", "sox_path"}),

		batchTarget: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_target_runs",
			Help:      "Number of runs in the current batch",
		}),
		batchProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_progress",
			Help:      "Fraction of batch runs settled (0.0 to 1.0)",
		}),
		batchElapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_elapsed_seconds",
			Help:      "Seconds since the batch started",
		}),

		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total sox processes spawned",
		}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Runs started but not yet settled",
		}),
		runsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_settled_total",
			Help:      "Total settled runs by outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time from spawn to settlement",
			Buckets: []float64{
				0.01, 0.05, 0.1, 0.25, 0.5,
				1, 2.5, 5, 10, 30, 60, 300, 600,
			},
		}, []string{"outcome"}),
		exitCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exits_total",
			Help:      "sox exits by category (success, error, signal)",
		}, []string{"category"}),

		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stdin_bytes_total",
			Help:      "Bytes written to sox stdin from memory sources",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stdout_bytes_total",
			Help:      "Bytes drained from sox stdout into memory sinks",
		}),
		stderrTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stderr_truncated_runs_total",
			Help:      "Runs whose stderr diagnostic exceeded the capture limit",
		}),

		startTime:  time.Now(),
		targetRuns: cfg.TargetRuns,
		settled:    make(map[outcome.Kind]int64),
	}

	registry.MustRegister(
		c.info,
		c.batchTarget,
		c.batchProgress,
		c.batchElapsed,
		c.runsStarted,
		c.runsActive,
		c.runsSettled,
		c.runDuration,
		c.exitCodes,
		c.bytesIn,
		c.bytesOut,
		c.stderrTruncated,
	)

	// Pre-create outcome series so dashboards see zeros.
	for _, k := range outcome.Kinds() {
		c.runsSettled.WithLabelValues(k.String())
	}

	c.info.WithLabelValues(cfg.Version, cfg.SoxPath).Set(1)
	c.batchTarget.Set(float64(cfg.TargetRuns))

	return c
}

// =============================================================================
// executor.Observer
// =============================================================================

// RunStarted records a spawned sox process.
func (c *Collector) RunStarted(runID string) {
	c.runsStarted.Inc()

	c.mu.Lock()
	c.totalStarts++
	c.active++
	if c.active > c.peakActive {
		c.peakActive = c.active
	}
	active := c.active
	c.mu.Unlock()

	c.runsActive.Set(float64(active))
}

// RunSettled records a settled run.
func (c *Collector) RunSettled(r outcome.RunResult) {
	kind := r.Kind.String()
	c.runsSettled.WithLabelValues(kind).Inc()
	c.runDuration.WithLabelValues(kind).Observe(r.Duration.Seconds())
	c.bytesIn.Add(float64(r.BytesIn))
	c.bytesOut.Add(float64(r.BytesOut))

	if r.PID > 0 && r.Kind != outcome.InternalFailure {
		c.exitCodes.WithLabelValues(ExitCategory(r.ExitCode)).Inc()
	}
	if r.StderrTruncated > 0 {
		c.RecordStderrTruncated()
	}

	c.mu.Lock()
	if c.active > 0 {
		c.active--
	}
	c.settled[r.Kind]++
	active := c.active
	var done int64
	for _, n := range c.settled {
		done += n
	}
	target := c.targetRuns
	c.mu.Unlock()

	c.runsActive.Set(float64(active))
	if target > 0 {
		c.batchProgress.Set(min(float64(done)/float64(target), 1))
	}
}

// RecordStderrTruncated counts a run whose stderr capture was truncated.
func (c *Collector) RecordStderrTruncated() {
	c.stderrTruncated.Inc()
}

// SetTargetRuns updates the batch size.
func (c *Collector) SetTargetRuns(n int) {
	c.mu.Lock()
	c.targetRuns = n
	c.mu.Unlock()
	c.batchTarget.Set(float64(n))
}

// UpdateElapsed refreshes the elapsed gauge.
func (c *Collector) UpdateElapsed() {
	c.batchElapsed.Set(time.Since(c.startTime).Seconds())
}

// ExitCategory groups a sox exit code.
func ExitCategory(code int) string {
	switch {
	case code == 0:
		return "success"
	case code > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is a point-in-time view of the collector's counters.
type Snapshot struct {
	Elapsed     time.Duration
	TargetRuns  int
	Active      int
	PeakActive  int
	TotalStarts int64
	Settled     map[string]int64
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Elapsed:     time.Since(c.startTime),
		TargetRuns:  c.targetRuns,
		Active:      c.active,
		PeakActive:  c.peakActive,
		TotalStarts: c.totalStarts,
		Settled:     make(map[string]int64, len(c.settled)),
	}
	for k, n := range c.settled {
		s.Settled[k.String()] = n
	}
	return s
}

// PeakActive returns the highest number of concurrent runs observed.
func (c *Collector) PeakActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakActive
}
