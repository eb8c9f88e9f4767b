package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
	"github.com/randomizedcoder/go-sox-chain/internal/config"
	"github.com/randomizedcoder/go-sox-chain/internal/executor"
	"github.com/randomizedcoder/go-sox-chain/internal/logging"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
)

// Task is one run of a job.
type Task struct {
	Job       config.Job
	Iteration int // 1-based repetition of Job
	Seq       int // dispatch order across the batch
}

// Label identifies the task in logs and failure listings, e.g. "job-1#3".
func (t Task) Label() string {
	return fmt.Sprintf("%s#%d", t.Job.Name, t.Iteration)
}

// BuildTasks expands jobs into runs repetitions each. All jobs run once
// before any job runs twice.
func BuildTasks(jobs []config.Job, runs int) []Task {
	runs = max(runs, 1)
	tasks := make([]Task, 0, len(jobs)*runs)
	for i := 1; i <= runs; i++ {
		for _, j := range jobs {
			tasks = append(tasks, Task{Job: j, Iteration: i, Seq: len(tasks)})
		}
	}
	return tasks
}

// ManagerCallbacks contains optional callbacks for run events. They are
// called from run goroutines.
type ManagerCallbacks struct {
	// OnRunSettled is called with the descriptor the run used, so memory
	// sinks can be read.
	OnRunSettled func(task Task, d chain.Descriptor, result outcome.RunResult)

	// OnRunRejected is called when a descriptor cannot be built or Execute
	// fails synchronously.
	OnRunRejected func(task Task, err error)
}

// ManagerConfig holds configuration for the RunManager.
type ManagerConfig struct {
	Executor    executor.Executor
	Concurrency int
	Logger      *slog.Logger
	Callbacks   ManagerCallbacks

	// Stdin feeds jobs whose source is "-". It is read once and replayed
	// for every run.
	Stdin io.Reader
}

// RunManager dispatches tasks through an executor with bounded concurrency.
type RunManager struct {
	exec      executor.Executor
	logger    *slog.Logger
	callbacks ManagerCallbacks
	sem       chan struct{}
	stdin     func() ([]byte, error)

	// wg tracks every task goroutine.
	wg sync.WaitGroup

	activeCount   atomic.Int64
	startedCount  atomic.Int64
	settledCount  atomic.Int64
	rejectedCount atomic.Int64
}

// NewRunManager creates a new RunManager.
func NewRunManager(cfg ManagerConfig) *RunManager {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	stdin := cfg.Stdin
	return &RunManager{
		exec:      cfg.Executor,
		logger:    cfg.Logger,
		callbacks: cfg.Callbacks,
		sem:       make(chan struct{}, max(cfg.Concurrency, 1)),
		stdin: sync.OnceValues(func() ([]byte, error) {
			if stdin == nil {
				return nil, errors.New("stdin source is not available")
			}
			return io.ReadAll(stdin)
		}),
	}
}

// Dispatch starts tasks in order, never more than the concurrency limit at
// once, and waits for every started run to settle. Cancelling ctx stops
// further dispatches; runs already started still settle. It returns the
// number of tasks dispatched.
func (m *RunManager) Dispatch(ctx context.Context, tasks []Task) int {
	dispatched := 0

loop:
	for _, task := range tasks {
		select {
		case <-ctx.Done():
			break loop
		case m.sem <- struct{}{}:
		}

		// A slot and a cancellation can be ready together.
		if ctx.Err() != nil {
			<-m.sem
			break loop
		}

		dispatched++
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer func() { <-m.sem }()
			m.runTask(task)
		}()
	}

	if dispatched < len(tasks) {
		m.logger.Info("dispatch_stopped",
			"dispatched", dispatched,
			"skipped", len(tasks)-dispatched,
			"active", m.Active(),
		)
	}

	m.wg.Wait()
	return dispatched
}

func (m *RunManager) runTask(task Task) {
	m.activeCount.Add(1)
	defer m.activeCount.Add(-1)

	d, err := m.descriptor(task.Job)
	if err != nil {
		m.reject(task, err)
		return
	}

	fut, err := m.exec.Execute(d)
	if err != nil {
		m.reject(task, err)
		return
	}
	m.startedCount.Add(1)

	// The executor's watchdog guarantees settlement.
	res, _ := fut.Await(context.Background())
	settled := m.settledCount.Add(1)

	m.logger.Debug("task_settled",
		"task", task.Label(),
		"run_id", res.RunID,
		"kind", res.Kind.String(),
		"settled", settled,
	)

	if m.callbacks.OnRunSettled != nil {
		m.callbacks.OnRunSettled(task, d, res)
	}
}

func (m *RunManager) descriptor(job config.Job) (chain.Descriptor, error) {
	if job.In != config.StdioPath {
		return job.Descriptor(nil)
	}
	data, err := m.stdin()
	if err != nil {
		return chain.Descriptor{}, fmt.Errorf("read stdin: %w", err)
	}
	return job.Descriptor(bytes.NewReader(data))
}

func (m *RunManager) reject(task Task, err error) {
	m.rejectedCount.Add(1)

	attrs := []any{"task", task.Label(), "error", err}
	if cmd, ok := outcome.CommandLineOf(err); ok {
		attrs = append(attrs, "command", cmd)
	}
	m.logger.Warn("task_rejected", attrs...)

	if m.callbacks.OnRunRejected != nil {
		m.callbacks.OnRunRejected(task, err)
	}
}

// Active returns the number of tasks currently in flight.
func (m *RunManager) Active() int {
	return int(m.activeCount.Load())
}

// StartedCount returns the number of runs whose process was spawned.
func (m *RunManager) StartedCount() int {
	return int(m.startedCount.Load())
}

// SettledCount returns the number of runs that delivered a result.
func (m *RunManager) SettledCount() int {
	return int(m.settledCount.Load())
}

// RejectedCount returns the number of tasks that never spawned.
func (m *RunManager) RejectedCount() int {
	return int(m.rejectedCount.Load())
}
