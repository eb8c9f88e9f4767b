// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-sox-chain/internal/process"
)

// unlimited is reported for RLIM_INFINITY and anything too large for an int.
const unlimited = 1 << 30

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool

	// Effects is the sorted effect list reported by sox, if listed.
	Effects []string
}

// Options selects what RunAll verifies.
type Options struct {
	Concurrency int
	Runner      *process.SoxRunner

	// EffectNames are checked against "sox --help" when non-empty.
	EffectNames []string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, opts Options) *Result {
	if opts.Runner == nil {
		opts.Runner = process.NewSoxRunner(nil)
	}
	concurrency := max(opts.Concurrency, 1)

	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors(concurrency))
	add(checkProcessLimit(concurrency))

	soxCheck := checkSox(ctx, opts.Runner)
	add(soxCheck)

	if len(opts.EffectNames) > 0 && soxCheck.Passed {
		check, available := checkEffects(ctx, opts.Runner, opts.EffectNames)
		result.Effects = available
		add(check)
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(concurrency int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read RLIMIT_NOFILE: %v", err),
		}
	}

	// Each run holds three pipe ends plus sox's own files; the process
	// needs some for the metrics server and logging.
	required := concurrency*8 + 64
	actual := clampLimit(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for concurrency %d)", actual, required, concurrency),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(concurrency int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NPROC, &limit); err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (restricted)",
		}
	}

	required := concurrency + 16
	actual := clampLimit(limit.Cur)

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

func clampLimit(v uint64) int {
	if v > unlimited {
		return unlimited
	}
	return int(v)
}

// checkSox verifies sox is available and working.
func checkSox(ctx context.Context, runner *process.SoxRunner) Check {
	path := runner.Config().BinaryPath
	version, err := runner.Version(ctx)
	if err != nil {
		return Check{
			Name:    "sox",
			Passed:  false,
			Message: fmt.Sprintf("not usable at %s: %v", path, err),
		}
	}

	// "sox:      SoX v14.4.2"
	if fields := strings.Fields(version); len(fields) > 0 {
		version = fields[len(fields)-1]
	}

	return Check{
		Name:    "sox",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, version),
	}
}

// checkEffects verifies every named effect is compiled into sox.
func checkEffects(ctx context.Context, runner *process.SoxRunner, names []string) (Check, []string) {
	available, err := runner.ListEffects(ctx)
	if err != nil {
		return Check{
			Name:    "sox_effects",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to list effects: %v", err),
		}, nil
	}

	unknown := missing(names, available)
	if len(unknown) > 0 {
		return Check{
			Name:    "sox_effects",
			Passed:  false,
			Message: fmt.Sprintf("not supported by this sox: %s", strings.Join(unknown, ", ")),
		}, available
	}

	return Check{
		Name:    "sox_effects",
		Passed:  true,
		Message: fmt.Sprintf("%d effects used, %d available", len(dedupe(names)), len(available)),
	}, available
}

// missing returns the sorted, de-duplicated names not in available.
func missing(names, available []string) []string {
	known := make(map[string]bool, len(available))
	for _, a := range available {
		known[a] = true
	}
	var out []string
	for _, n := range dedupe(names) {
		if !known[n] {
			out = append(out, n)
		}
	}
	return out
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or lower -concurrency)"
	case "process_limit":
		return "ulimit -u 4096 (or lower -concurrency)"
	case "sox":
		return "install sox (apt install sox / brew install sox) or pass -sox /path/to/sox"
	case "sox_effects":
		return "install a sox build with the missing effects (apt install libsox-fmt-all) or remove them from the chain"
	default:
		return "see documentation"
	}
}
