// Package tui provides a live terminal dashboard for sox-chain batches.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It shows batch progress, outcome counts, run duration percentiles,
// exit codes and the most recent failures.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
)

// =============================================================================
// Palette
// =============================================================================

var (
	colorAccent = lipgloss.Color("#0EA5A4") // Teal
	colorHeader = lipgloss.Color("#F97316") // Orange

	colorGood = lipgloss.Color("#22C55E")
	colorWarn = lipgloss.Color("#EAB308")
	colorBad  = lipgloss.Color("#DC2626")
	colorNote = lipgloss.Color("#60A5FA")

	colorFg     = lipgloss.Color("#F3F4F6")
	colorFgSoft = lipgloss.Color("#A1A1AA")
	colorFgDim  = lipgloss.Color("#71717A")
	colorRule   = lipgloss.Color("#3F3F46")
)

// =============================================================================
// Styles
// =============================================================================

func bold(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}

var (
	mutedStyle = lipgloss.NewStyle().Foreground(colorFgSoft)
	dimStyle   = lipgloss.NewStyle().Foreground(colorFgDim)

	statusOK   = bold(colorGood)
	statusWarn = bold(colorWarn)
	statusBad  = bold(colorBad)
	statusInfo = bold(colorNote)
	valueStyle = bold(colorFg)

	headerStyle = bold(colorFg).
			Background(colorHeader).
			Padding(0, 1).
			MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorRule).
			Padding(0, 1)

	sectionHeaderStyle = bold(colorAccent).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorRule)

	footerStyle = mutedStyle.MarginTop(1)
	labelStyle  = mutedStyle.Width(20)

	barFullStyle  = lipgloss.NewStyle().Foreground(colorAccent)
	barEmptyStyle = lipgloss.NewStyle().Foreground(colorRule)
)

// OutcomeStyle returns the style used for an outcome kind. Failures sox
// reported itself are warnings; failures the executor imposed are errors.
func OutcomeStyle(k outcome.Kind) lipgloss.Style {
	switch k {
	case outcome.Success:
		return statusOK
	case outcome.ProcessFailure, outcome.WriteFailure:
		return statusWarn
	case outcome.TimeoutFailure, outcome.OverflowFailure, outcome.InternalFailure:
		return statusBad
	default:
		return mutedStyle
	}
}

// SuccessRateStyle colors the batch success rate: green at 100%, amber from
// 90%, red below.
func SuccessRateStyle(rate float64, settled int64) lipgloss.Style {
	switch {
	case settled == 0:
		return mutedStyle
	case rate >= 1:
		return statusOK
	case rate >= 0.9:
		return statusWarn
	default:
		return statusBad
	}
}

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return labelStyle.Render(label+":") + valueStyle.Render(value)
}

// RenderProgressBar renders a bar of width cells followed by the percentage.
func RenderProgressBar(progress float64, width int) string {
	width = max(width, 10)
	filled := min(max(int(progress*float64(width)), 0), width)

	return barFullStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		valueStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))
}
