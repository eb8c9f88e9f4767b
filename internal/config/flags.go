package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// stringList is a custom flag type for repeatable flags.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ", ")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

// ParseFlags parses os.Args and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args into a Config. Usage is written to out.
func ParseArgs(args []string, out io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	var effects, globals stringList

	fs := flag.NewFlagSet("sox-chain", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.Usage = func() {
		fmt.Fprintf(out, `sox-chain - run sox effects chains as supervised child processes

Usage:
  sox-chain [flags] -in <source> -out <sink> -effect "<name> [args...]" ...
  sox-chain [flags] -chain <jobs.toml|jobs.yaml>

Chain Flags:
`)
		printFlagCategory(fs, out, []string{"in", "in-memory", "tone", "tone-freq", "out", "sink-capacity", "overwrite", "effect", "chain"})

		fmt.Fprintf(out, "\nsox:\n")
		printFlagCategory(fs, out, []string{"sox", "type", "global"})

		fmt.Fprintf(out, "\nExecution:\n")
		printFlagCategory(fs, out, []string{"timeout", "grace", "stderr-limit", "concurrency", "runs"})

		fmt.Fprintf(out, "\nDiagnostics:\n")
		printFlagCategory(fs, out, []string{"print-cmd", "check", "inspect", "verify-effects", "skip-preflight"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, out, []string{"metrics", "tui", "v", "log-format", "log-level"})

		fmt.Fprintf(out, `
Examples:
  # Highpass a file
  sox-chain -in in.wav -out out.wav -overwrite -effect "highpass -2 1000"

  # Stream stdin through sox into memory and write it to stdout
  cat in.wav | sox-chain -in - -out - -sink-capacity 10000000 -effect "gain -3" > out.wav

  # Generate a 2s test tone and filter it
  sox-chain -tone 2s -tone-freq 1000 -out tone.wav -overwrite -effect "lowpass 500"

  # Batch from a chain file, 4 at a time, with a dashboard
  sox-chain -chain jobs.toml -concurrency 4 -tui

`)
	}

	// Chain
	fs.StringVar(&cfg.InPath, "in", cfg.InPath, `Source file ("-" reads stdin into memory)`)
	fs.BoolVar(&cfg.InMemory, "in-memory", cfg.InMemory, "Load the source file into memory and pipe it to sox stdin")
	fs.DurationVar(&cfg.ToneDuration, "tone", cfg.ToneDuration, "Use a generated sine tone of this length as the source")
	fs.Float64Var(&cfg.ToneFrequency, "tone-freq", cfg.ToneFrequency, "Frequency of the -tone source in Hz")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, `Sink file ("-" collects stdout in memory and writes it to stdout)`)
	fs.IntVar(&cfg.SinkCapacity, "sink-capacity", cfg.SinkCapacity, "Memory sink capacity in bytes")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Allow replacing an existing sink file")
	fs.Var(&effects, "effect", `Effect with arguments, e.g. "highpass -2 1000" (can repeat)`)
	fs.StringVar(&cfg.ChainFile, "chain", cfg.ChainFile, "TOML or YAML file describing a batch of jobs")

	// sox
	fs.StringVar(&cfg.SoxPath, "sox", cfg.SoxPath, "Path to sox binary")
	fs.StringVar(&cfg.SinkType, "type", cfg.SinkType, "Output file type passed to sox -t")
	fs.Var(&globals, "global", "sox global option placed before the source (can repeat)")

	// Execution
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-run timeout")
	fs.DurationVar(&cfg.Grace, "grace", cfg.Grace, "Wait between SIGTERM and SIGKILL on timeout")
	fs.IntVar(&cfg.StderrLimit, "stderr-limit", cfg.StderrLimit, "Bytes of sox stderr kept for diagnostics")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Runs in flight at once")
	fs.IntVar(&cfg.Runs, "runs", cfg.Runs, "Repeat each job this many times")

	// Diagnostics
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the sox command line(s) and exit")
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config, query sox and exit")
	fs.BoolVar(&cfg.Inspect, "inspect", cfg.Inspect, "Print WAV header info of each successful output")
	fs.BoolVar(&cfg.VerifyEffects, "verify-effects", cfg.VerifyEffects, "Reject effects the sox binary does not list")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, `Prometheus metrics address, e.g. "0.0.0.0:17091" (empty = disabled)`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Live terminal dashboard for batches")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging (logs every sox stderr line)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if rest := fs.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments %q (use -effect for effects)", rest)
	}

	cfg.Effects = effects
	cfg.GlobalOptions = globals

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, out io.Writer, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(out, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
			fmt.Fprintf(out, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(out)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
