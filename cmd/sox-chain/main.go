// Package main provides the sox-chain CLI entry point.
//
// sox-chain runs sox effects chains as supervised child processes: it renders
// the sox command line, pumps in-memory audio through the process's standard
// streams, enforces a per-run timeout and reports exactly one outcome per run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
	"github.com/randomizedcoder/go-sox-chain/internal/config"
	"github.com/randomizedcoder/go-sox-chain/internal/executor"
	"github.com/randomizedcoder/go-sox-chain/internal/logging"
	"github.com/randomizedcoder/go-sox-chain/internal/orchestrator"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
	"github.com/randomizedcoder/go-sox-chain/internal/preflight"
	"github.com/randomizedcoder/go-sox-chain/internal/process"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/sox-chain
var version = "dev"

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitTimeout  = 124
	exitAbandon  = 130
	closeTimeout = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("sox-chain %s\n", version)
			return exitOK
		}
	}

	cfg, err := config.ParseFlags()
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return exitUsage
	}

	if cfg.Check {
		config.ApplyCheckMode(cfg)
	}

	// When the TUI is enabled, suppress logs to avoid interfering with rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitUsage
	}

	jobs, err := cfg.Jobs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitUsage
	}
	if err := config.ValidateJobs(jobs); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitUsage
	}

	runner := process.NewSoxRunner(&process.SoxConfig{
		BinaryPath:    cfg.SoxPath,
		SinkType:      cfg.SinkType,
		GlobalOptions: cfg.GlobalOptions,
	})

	if cfg.PrintCmd {
		if err := printCommands(os.Stdout, runner, jobs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitUsage
		}
		return exitOK
	}

	if cfg.Check || !cfg.SkipPreflight {
		if !runPreflight(cfg, runner, jobs) {
			if !cfg.Check {
				fmt.Fprintln(os.Stderr, "preflight checks failed (use -skip-preflight to override)")
			}
			return exitFailure
		}
	}

	if cfg.Check {
		logger.Info("check_passed", "jobs", len(jobs))
		if err := printCommands(os.Stdout, runner, jobs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitUsage
		}
		return exitOK
	}

	logger.Info("starting",
		"version", version,
		"sox", cfg.SoxPath,
		"jobs", len(jobs),
		"runs", cfg.Runs,
		"concurrency", cfg.Concurrency,
		"timeout", cfg.Timeout.String(),
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.IsBatch() {
		return runSingle(cfg, runner, jobs[0], logger)
	}

	orch := orchestrator.New(cfg, jobs, logger, orchestrator.Options{Version: version})
	result, err := orch.Run(context.Background())
	if err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return exitFailure
	}
	if result.Succeeded < int64(cfg.Runs*len(jobs)) {
		return exitFailure
	}
	return exitOK
}

// runPreflight runs and prints the startup checks.
func runPreflight(cfg *config.Config, runner *process.SoxRunner, jobs []config.Job) bool {
	var names []string
	if cfg.VerifyEffects {
		names = effectNames(jobs)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result := preflight.RunAll(ctx, preflight.Options{
		Concurrency: cfg.Concurrency,
		Runner:      runner,
		EffectNames: names,
	})
	if cfg.Verbose || !result.Passed {
		preflight.PrintResults(os.Stderr, result)
	}
	return result.Passed
}

// effectNames lists the sox effect names every job uses.
func effectNames(jobs []config.Job) []string {
	var names []string
	for _, j := range jobs {
		for _, e := range j.Effects {
			spec, err := e.Spec()
			if err != nil {
				continue
			}
			names = append(names, spec.Name())
		}
	}
	return names
}

// printCommands prints the sox command line of every job.
func printCommands(w io.Writer, runner *process.SoxRunner, jobs []config.Job) error {
	fmt.Fprintln(w, "# sox command line(s) that would be run:")
	for _, j := range jobs {
		d, err := printableDescriptor(j)
		if err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
		cmd, err := runner.CommandString(d)
		if err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
		fmt.Fprintf(w, "\n# %s\n%s\n", j.Name, cmd)
	}
	return nil
}

// printableDescriptor builds a job's descriptor without reading or
// generating any source: in-memory sources render as "-" either way.
func printableDescriptor(j config.Job) (chain.Descriptor, error) {
	if j.InMemory || j.Tone != nil {
		j.In, j.InMemory, j.Tone = config.StdioPath, false, nil
	}
	return j.Descriptor(strings.NewReader(""))
}

// runSingle executes one job and waits for its outcome. A memory sink is
// copied to stdout when -out is "-".
func runSingle(cfg *config.Config, runner *process.SoxRunner, job config.Job, logger *slog.Logger) int {
	exec := executor.New(executor.Config{
		Runner:      runner,
		Timeout:     cfg.Timeout,
		Grace:       cfg.Grace,
		StderrLimit: cfg.StderrLimit,
		Logger:      logger,
		Verbose:     cfg.Verbose,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := exec.Close(ctx); err != nil {
			logger.Warn("executor_close_incomplete", "error", err)
		}
	}()

	d, err := job.Descriptor(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUsage
	}

	// The run cannot be cancelled: a first signal only reports that, a
	// second one abandons the wait.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("received_signal",
				"signal", sig.String(),
				"note", "run continues until it finishes or times out; signal again to abandon",
			)
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	res, err := executor.ExecuteNow(ctx, exec, d)
	if errors.Is(err, context.Canceled) {
		logger.Error("run_abandoned")
		return exitAbandon
	}
	if err != nil && res.RunID == "" {
		// Rejected before spawning.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, outcome.ErrSpawn) {
			return exitFailure
		}
		return exitUsage
	}

	if !res.OK() {
		reportFailure(os.Stderr, res, err)
		return exitCodeFor(res)
	}

	if sink, ok := d.Sink().(chain.Memory); ok && job.Out == config.StdioPath {
		if _, err := os.Stdout.Write(sink.Buffer.View()); err != nil {
			logger.Error("stdout_write_failed", "error", err)
			return exitFailure
		}
	}

	if cfg.Inspect {
		info, err := orchestrator.InspectSink(d)
		if err != nil {
			fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "%s\n", info)
		}
	}
	return exitOK
}

// reportFailure prints the failure, the command line and sox's stderr.
func reportFailure(w io.Writer, res outcome.RunResult, err error) {
	fmt.Fprintf(w, "sox-chain: %v\n", err)
	fmt.Fprintf(w, "  command: %s\n", outcome.QuoteCommandLine(res.CommandLine))
	if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
		fmt.Fprintln(w, "  sox stderr:")
		for _, line := range strings.Split(stderr, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

// exitCodeFor maps a failed run to the process exit status: sox's own
// status for non-zero exits, 124 for timeouts as timeout(1) does.
func exitCodeFor(res outcome.RunResult) int {
	switch res.Kind {
	case outcome.Success:
		return exitOK
	case outcome.TimeoutFailure:
		return exitTimeout
	case outcome.ProcessFailure:
		if res.ExitCode > 0 && res.ExitCode < 256 {
			return res.ExitCode
		}
	}
	return exitFailure
}
