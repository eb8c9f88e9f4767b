package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
	"github.com/randomizedcoder/go-sox-chain/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderSummaryView() string {
	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
	}

	if m.stats != nil && m.stats.Settled > 0 {
		sections = append(sections,
			m.renderOutcomes(),
			m.renderDurations(),
		)
		if len(m.stats.ExitCodes) > 0 {
			sections = append(sections, m.renderExitCodes())
		}
	}

	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDetailedView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderFailures(),
		m.renderFooter(),
	)
}

// =============================================================================
// Sections
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" sox-chain │ Runs: %d/%d │ Active: %d/%d │ Elapsed: %s ",
		m.Settled(),
		m.targetRuns,
		m.active,
		m.concurrency,
		stats.FormatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

func (m Model) renderProgress() string {
	progress := m.Progress()
	progressBar := RenderProgressBar(progress, max(m.width-30, 20))

	var status string
	switch {
	case m.done:
		status = statusOK.Render("✓ Batch complete")
	case m.Settled() == 0:
		status = statusInfo.Render("Waiting for the first run to settle...")
	default:
		status = statusInfo.Render(fmt.Sprintf("Running... %d/%d settled", m.Settled(), m.targetRuns))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Batch Progress"),
		progressBar,
		status,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

func (m Model) renderOutcomes() string {
	s := m.stats
	rows := []string{sectionHeaderStyle.Render("Outcomes")}

	for _, k := range outcome.Kinds() {
		n := s.ByKind[k]
		if n == 0 && k != outcome.Success {
			continue
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render(k.String()+":"),
			OutcomeStyle(k).Render(fmt.Sprintf("%8d", n)),
		))
	}

	rate := s.SuccessRate()
	rows = append(rows,
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Success rate:"),
			SuccessRateStyle(rate, s.Settled).Render(fmt.Sprintf("%.1f%%", rate*100)),
		),
		RenderKeyValue("Throughput", stats.FormatRate(s.RunsPerSecond())),
		RenderKeyValue("Last 10s", stats.FormatRate(s.RecentRunsPerSecond)),
	)

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderDurations() string {
	s := m.stats
	rows := []string{
		sectionHeaderStyle.Render("Run Duration"),
		RenderKeyValue("P50", stats.FormatMs(s.DurationP50)),
		RenderKeyValue("P95", stats.FormatMs(s.DurationP95)),
		RenderKeyValue("P99", stats.FormatMs(s.DurationP99)),
		RenderKeyValue("Max", stats.FormatMs(s.DurationMax)),
	}
	if s.BytesIn > 0 || s.BytesOut > 0 {
		rows = append(rows,
			RenderKeyValue("Stdin", stats.FormatBytes(s.BytesIn)),
			RenderKeyValue("Stdout", stats.FormatBytes(s.BytesOut)),
			RenderKeyValue("Audio/s", stats.FormatBytes(int64(s.RecentBytesPerSecond))+"/s"),
		)
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderExitCodes() string {
	rows := []string{sectionHeaderStyle.Render("Exit Codes")}
	for _, code := range m.stats.SortedExitCodes() {
		rows = append(rows, RenderKeyValue(fmt.Sprintf("exit %d", code), fmt.Sprintf("%d", m.stats.ExitCodes[code])))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderFailures() string {
	rows := []string{sectionHeaderStyle.Render("Recent Failures")}

	// Newest first; leave room for header and footer.
	limit := max(m.height-8, 1)
	failures := m.stats.RecentFailures
	for i := len(failures) - 1; i >= 0 && len(rows) <= limit; i-- {
		f := failures[i]
		line := fmt.Sprintf("%-16s %s", f.Kind.String(), truncate(firstLine(f.Message), m.width-24))
		rows = append(rows, OutcomeStyle(f.Kind).Render(line))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderFooter() string {
	keys := "q quit • d failures • r refresh"
	var extra []string
	if m.soxPath != "" {
		extra = append(extra, "sox: "+m.soxPath)
	}
	if m.metricsAddr != "" {
		extra = append(extra, "metrics: http://"+m.metricsAddr+"/metrics")
	}
	if len(extra) > 0 {
		keys += dimStyle.Render("  │  " + strings.Join(extra, "  "))
	}
	return footerStyle.Render(keys)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
