// Package orchestrator runs batches of effects chains: every job of a chain
// file (or the single job built from flags) repeated -runs times, at most
// -concurrency at once, with metrics, an optional TUI and an exit summary.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
	"github.com/randomizedcoder/go-sox-chain/internal/config"
	"github.com/randomizedcoder/go-sox-chain/internal/executor"
	"github.com/randomizedcoder/go-sox-chain/internal/metrics"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
	"github.com/randomizedcoder/go-sox-chain/internal/process"
	"github.com/randomizedcoder/go-sox-chain/internal/stats"
	"github.com/randomizedcoder/go-sox-chain/internal/tui"
	"github.com/randomizedcoder/go-sox-chain/internal/wavinfo"
)

// shutdownTimeout bounds the metrics server shutdown and the executor close.
const shutdownTimeout = 10 * time.Second

// Options holds the orchestrator's collaborators. Zero values use the
// process defaults.
type Options struct {
	Version string

	Stdin  io.Reader // source for jobs reading "-"
	Stdout io.Writer // exit summary

	// Registry receives the collectors. Defaults to a fresh registry with
	// the Go and process collectors.
	Registry *prometheus.Registry

	// Executor replaces the sox executor, e.g. in tests.
	Executor executor.Executor
}

// Orchestrator coordinates all components of a batch.
type Orchestrator struct {
	config *config.Config
	jobs   []config.Job
	tasks  []Task
	logger *slog.Logger
	out    io.Writer

	runner        *process.SoxRunner
	executor      executor.Executor
	ownedExecutor *executor.SoxExecutor
	manager       *RunManager
	batch         *stats.Batch
	metrics       *metrics.Collector
	metricsServer *metrics.Server

	startTime time.Time
}

// New creates an Orchestrator for jobs. jobs must already be validated.
func New(cfg *config.Config, jobs []config.Job, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	runner := process.NewSoxRunner(&process.SoxConfig{
		BinaryPath:    cfg.SoxPath,
		SinkType:      cfg.SinkType,
		GlobalOptions: cfg.GlobalOptions,
	})

	tasks := BuildTasks(jobs, cfg.Runs)

	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:    opts.Version,
		SoxPath:    cfg.SoxPath,
		TargetRuns: len(tasks),
	}, opts.Registry)

	o := &Orchestrator{
		config:  cfg,
		jobs:    jobs,
		tasks:   tasks,
		logger:  logger,
		out:     opts.Stdout,
		runner:  runner,
		batch:   stats.NewBatch(),
		metrics: collector,
	}

	if opts.Executor != nil {
		o.executor = opts.Executor
	} else {
		o.ownedExecutor = executor.New(executor.Config{
			Runner:      runner,
			Timeout:     cfg.Timeout,
			Grace:       cfg.Grace,
			StderrLimit: cfg.StderrLimit,
			Logger:      logger,
			Verbose:     cfg.Verbose,
			Observer:    collector,
		})
		o.executor = o.ownedExecutor
	}

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, opts.Registry, logger)
	}

	o.manager = NewRunManager(ManagerConfig{
		Executor:    o.executor,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
		Stdin:       opts.Stdin,
		Callbacks: ManagerCallbacks{
			OnRunSettled:  o.onSettled,
			OnRunRejected: o.onRejected,
		},
	})

	return o
}

// Run executes the batch. It blocks until every dispatched run settled and
// returns the final statistics. SIGINT and SIGTERM stop further dispatches.
func (o *Orchestrator) Run(ctx context.Context) (*stats.BatchStats, error) {
	o.startTime = time.Now()
	o.batch.Reset()

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		o.metricsServer.SetReady(true)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String(), "active", o.manager.Active())
			cancel()
		case <-ctx.Done():
		}
	}()

	program, tuiDone := o.startTUI(cancel)

	tickerDone := make(chan struct{})
	go o.tick(ctx, tickerDone)

	o.logger.Info("batch_starting",
		"jobs", len(o.jobs),
		"runs", o.config.Runs,
		"tasks", len(o.tasks),
		"concurrency", o.config.Concurrency,
	)

	dispatched := o.manager.Dispatch(ctx, o.tasks)

	result := o.batch.Aggregate()
	o.logger.Info("batch_complete",
		"dispatched", dispatched,
		"settled", result.Settled,
		"succeeded", result.Succeeded,
		"rejected", result.Rejected,
		"elapsed", result.Elapsed.String(),
	)

	if program != nil {
		tui.SendDone(program)
		select {
		case <-tuiDone:
		case <-ctx.Done():
			tui.SendQuit(program)
			<-tuiDone
		}
	}

	cancel()
	<-tickerDone
	o.metrics.UpdateElapsed()

	metricsAddr := o.config.MetricsAddr
	if o.metricsServer != nil {
		metricsAddr = o.metricsServer.Addr()
	}

	o.shutdown()

	fmt.Fprint(o.out, stats.FormatExitSummary(result, stats.SummaryConfig{
		TargetRuns:   len(o.tasks),
		Concurrency:  o.config.Concurrency,
		MetricsAddr:  metricsAddr,
		ShowFailures: true,
	}))

	return result, nil
}

// startTUI launches the dashboard if enabled. Quitting it stops dispatch.
func (o *Orchestrator) startTUI(stop context.CancelFunc) (*tea.Program, <-chan struct{}) {
	if !o.config.TUIEnabled {
		return nil, nil
	}

	model := tui.New(tui.Config{
		TargetRuns:   len(o.tasks),
		Concurrency:  o.config.Concurrency,
		SoxPath:      o.config.SoxPath,
		MetricsAddr:  o.config.MetricsAddr,
		StatsSource:  o.batch,
		ActiveSource: o.manager,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := program.Run(); err != nil {
			o.logger.Warn("tui_error", "error", err)
		}
		stop()
	}()
	return program, done
}

// tick samples batch rates and refreshes the elapsed gauge until ctx is done.
func (o *Orchestrator) tick(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.batch.Sample()
			o.metrics.UpdateElapsed()
		}
	}
}

func (o *Orchestrator) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if o.ownedExecutor != nil {
		if err := o.ownedExecutor.Close(ctx); err != nil {
			o.logger.Warn("executor_close_incomplete", "error", err)
		}
	}
	if o.metricsServer != nil {
		o.metricsServer.SetReady(false)
		if err := o.metricsServer.Shutdown(ctx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}
}

// Callback handlers

func (o *Orchestrator) onSettled(task Task, d chain.Descriptor, res outcome.RunResult) {
	o.batch.Record(res)

	if settled := o.batch.Settled(); settled%10 == 0 || int(settled) == len(o.tasks) {
		o.logger.Info("batch_progress",
			"settled", settled,
			"target", len(o.tasks),
			"active", o.manager.Active(),
		)
	}

	if o.config.Inspect && res.OK() {
		o.inspect(task, d)
	}
}

func (o *Orchestrator) onRejected(task Task, err error) {
	o.batch.RecordRejected(task.Label(), err)
}

// inspect logs the WAV header of the run's sink.
func (o *Orchestrator) inspect(task Task, d chain.Descriptor) {
	info, err := InspectSink(d)
	if err != nil {
		o.logger.Warn("sink_inspect_failed", "task", task.Label(), "error", err)
		return
	}
	o.logger.Info("sink_inspected",
		"task", task.Label(),
		"sample_rate", info.SampleRate,
		"bit_depth", info.BitDepth,
		"channels", info.NumChannels,
		"data_bytes", info.DataBytes,
		"duration", info.Duration.String(),
		"estimated", info.Estimated,
	)
}

// InspectSink reads the WAV header of a settled run's sink: the memory
// buffer, or the output file.
func InspectSink(d chain.Descriptor) (wavinfo.Info, error) {
	switch sink := d.Sink().(type) {
	case chain.Memory:
		return wavinfo.InspectBytes(sink.Buffer.View())
	case chain.File:
		return wavinfo.InspectFile(sink.Path)
	default:
		return wavinfo.Info{}, outcome.ErrMissingSink
	}
}

// Batch returns the batch statistics for external access.
func (o *Orchestrator) Batch() *stats.Batch {
	return o.batch
}

// Manager returns the run manager for external access.
func (o *Orchestrator) Manager() *RunManager {
	return o.manager
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}
