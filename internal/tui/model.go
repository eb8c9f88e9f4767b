package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-sox-chain/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatsMsg carries updated statistics.
type StatsMsg struct {
	Stats  *stats.BatchStats
	Active int
}

// DoneMsg marks the batch as finished. The dashboard stays up until the
// user quits.
type DoneMsg struct{}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// StatsSource provides batch statistics. *stats.Batch satisfies it.
type StatsSource interface {
	Aggregate() *stats.BatchStats
}

// ActiveSource reports runs in flight.
type ActiveSource interface {
	Active() int
}

// Config holds TUI configuration.
type Config struct {
	TargetRuns   int
	Concurrency  int
	SoxPath      string
	MetricsAddr  string
	StatsSource  StatsSource
	ActiveSource ActiveSource
}

// Model represents the TUI state.
type Model struct {
	targetRuns  int
	concurrency int
	soxPath     string
	metricsAddr string

	stats        *stats.BatchStats
	active       int
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool
	done         bool

	width  int
	height int

	statsSource  StatsSource
	activeSource ActiveSource

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		targetRuns:   cfg.TargetRuns,
		concurrency:  cfg.Concurrency,
		soxPath:      cfg.SoxPath,
		metricsAddr:  cfg.MetricsAddr,
		statsSource:  cfg.StatsSource,
		activeSource: cfg.ActiveSource,
		startTime:    time.Now(),
		lastUpdate:   time.Now(),
		width:        80,
		height:       24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case StatsMsg:
		m.stats = msg.Stats
		m.active = msg.Active
		m.lastUpdate = time.Now()
		return m, nil

	case DoneMsg:
		m.refresh()
		m.done = true
		m.active = 0
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) refresh() {
	if m.statsSource != nil {
		m.stats = m.statsSource.Aggregate()
	}
	if m.activeSource != nil {
		m.active = m.activeSource.Active()
	}
	m.lastUpdate = time.Now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.detailedView && m.stats != nil && len(m.stats.RecentFailures) > 0 {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the batch started.
func (m Model) Elapsed() time.Duration {
	if m.stats != nil {
		return m.stats.Elapsed
	}
	return time.Since(m.startTime)
}

// Settled returns the number of settled runs.
func (m Model) Settled() int64 {
	if m.stats == nil {
		return 0
	}
	return m.stats.Settled
}

// Progress returns the settled fraction of the batch (0.0 to 1.0).
func (m Model) Progress() float64 {
	if m.targetRuns == 0 {
		return 0
	}
	return min(float64(m.Settled())/float64(m.targetRuns), 1)
}

// Done reports whether the batch has finished.
func (m Model) Done() bool {
	return m.done
}

// =============================================================================
// Helpers for external use
// =============================================================================

// SendDone marks the batch finished.
func SendDone(p *tea.Program) {
	if p != nil {
		p.Send(DoneMsg{})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
