package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// TargetRuns is the number of runs in the batch
	TargetRuns int

	// Concurrency is the configured run parallelism
	Concurrency int

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// ShowFailures lists the most recent failures
	ShowFailures bool
}

// FormatExitSummary formats batch stats for display at program exit.
func FormatExitSummary(stats *BatchStats, cfg SummaryConfig) string {
	if stats == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                           sox-chain Batch Summary\n")
	b.WriteString(heavyRule + "\n")

	fmt.Fprintf(&b, "Batch Duration:         %s\n", FormatDuration(stats.Elapsed))
	fmt.Fprintf(&b, "Target Runs:            %d\n", cfg.TargetRuns)
	fmt.Fprintf(&b, "Concurrency:            %d\n", cfg.Concurrency)
	fmt.Fprintf(&b, "Settled Runs:           %d (%s)\n", stats.Settled, FormatRate(stats.RunsPerSecond()))
	if stats.Rejected > 0 {
		fmt.Fprintf(&b, "Rejected Runs:          %d\n", stats.Rejected)
	}
	b.WriteString("\n")

	b.WriteString(lightRule)
	b.WriteString("                                  Outcomes\n")
	b.WriteString(lightRule + "\n")

	for _, k := range outcome.Kinds() {
		n := stats.ByKind[k]
		if n == 0 && k != outcome.Success {
			continue
		}
		fmt.Fprintf(&b, "  %-20s %8d  %5.1f%%\n", k.String(), n, percent(n, stats.Settled))
	}
	b.WriteString("\n")

	b.WriteString(lightRule)
	b.WriteString("                                Run Duration\n")
	b.WriteString(lightRule + "\n")

	fmt.Fprintf(&b, "  min %-10s p50 %-10s p95 %-10s p99 %-10s max %s\n",
		FormatMs(stats.DurationMin),
		FormatMs(stats.DurationP50),
		FormatMs(stats.DurationP95),
		FormatMs(stats.DurationP99),
		FormatMs(stats.DurationMax),
	)
	fmt.Fprintf(&b, "  mean %s\n\n", FormatMs(stats.DurationMean))

	if stats.BytesIn > 0 || stats.BytesOut > 0 {
		fmt.Fprintf(&b, "  Bytes to stdin:       %s\n", FormatBytes(stats.BytesIn))
		fmt.Fprintf(&b, "  Bytes from stdout:    %s\n\n", FormatBytes(stats.BytesOut))
	}

	if len(stats.ExitCodes) > 0 {
		b.WriteString(lightRule)
		b.WriteString("                                 Exit Codes\n")
		b.WriteString(lightRule + "\n")
		for _, code := range stats.SortedExitCodes() {
			fmt.Fprintf(&b, "  %4d %-12s %8d\n", code, exitCodeLabel(code), stats.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if cfg.ShowFailures && len(stats.RecentFailures) > 0 {
		b.WriteString(renderFailures(stats.RecentFailures))
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(heavyRule)

	return b.String()
}

// formatBasicSummary formats a summary when no run settled.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                           sox-chain Batch Summary\n")
	b.WriteString(heavyRule + "\n")

	fmt.Fprintf(&b, "Target Runs:            %d\n\n", cfg.TargetRuns)
	b.WriteString("(No runs settled)\n\n")

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(heavyRule)

	return b.String()
}

func renderFailures(failures []Failure) string {
	var b strings.Builder
	b.WriteString(lightRule)
	b.WriteString("                              Recent Failures\n")
	b.WriteString(lightRule + "\n")
	for _, f := range failures {
		fmt.Fprintf(&b, "  [%s] %s\n", shortID(f.RunID), firstLine(f.Message))
		if f.CommandLine != "" {
			fmt.Fprintf(&b, "      %s\n", f.CommandLine)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 2:
		return "(usage)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a per-second rate.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
