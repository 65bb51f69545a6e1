// Package tui holds the terminal views: live indexing progress and
// interactive search.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	runs "docrag/internal/progress"
)

// SnapshotSource provides tracker snapshots.
type SnapshotSource interface {
	Snapshot() runs.Snapshot
}

type tickMsg time.Time

// RunDoneMsg ends the progress view. Send it with Program.Send once the run
// returns.
type RunDoneMsg struct{}

// ProgressModel renders an indexing run by polling a tracker.
type ProgressModel struct {
	source   SnapshotSource
	interval time.Duration
	snap     runs.Snapshot
	bar      progress.Model
	spin     spinner.Model
	done     bool
}

// NewProgress creates a progress view polling source every interval.
func NewProgress(source SnapshotSource, interval time.Duration) ProgressModel {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	return ProgressModel{
		source:   source,
		interval: interval,
		snap:     source.Snapshot(),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spin:     sp,
	}
}

func (m ProgressModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts polling.
func (m ProgressModel) Init() tea.Cmd { return tea.Batch(m.spin.Tick, m.tick()) }

// Update handles ticks and the final RunDoneMsg.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(60, max(10, msg.Width-20))
	case tickMsg:
		m.snap = m.source.Snapshot()
		if m.done {
			return m, nil
		}
		return m, m.tick()
	case RunDoneMsg:
		m.snap = m.source.Snapshot()
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

var (
	doneMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("✓")
	errorMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("✗")
	pendingMark = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("·")
	labelStyle  = lipgloss.NewStyle().Width(12)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// View renders the steps, the chunk bar and counters.
func (m ProgressModel) View() string {
	var b strings.Builder
	for _, st := range m.snap.Steps {
		var mark string
		switch st.Status {
		case runs.StatusCompleted:
			mark = doneMark
		case runs.StatusError:
			mark = errorMark
		case runs.StatusProcessing:
			mark = m.spin.View()
		default:
			mark = pendingMark
		}
		fmt.Fprintf(&b, "%s %s %s\n", mark, labelStyle.Render(string(st.Step)), st.Message)
	}
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(chunkRatio(m.snap)))
	fmt.Fprintf(&b, "  %d/%d chunks  %d/%d files\n",
		m.snap.IndexedChunks, m.snap.TotalChunks, m.snap.ProcessedFiles, m.snap.TotalFiles)
	if m.snap.CurrentFile != "" && m.snap.Active {
		fmt.Fprintf(&b, "current: %s\n", m.snap.CurrentFile)
	}
	if m.snap.Error != "" {
		b.WriteString(errStyle.Render("error: "+m.snap.Error) + "\n")
	}
	return b.String()
}

func chunkRatio(s runs.Snapshot) float64 {
	if s.TotalChunks == 0 {
		if !s.Active && !s.StartedAt.IsZero() && !s.Failed() {
			return 1
		}
		return 0
	}
	return float64(s.IndexedChunks) / float64(s.TotalChunks)
}
