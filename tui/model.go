// Package tui provides the Bubble Tea terminal UI for linkguardian,
// displaying live scan progress and a styled summary of results.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lukemcguire/linkguardian/crawler"
	"github.com/lukemcguire/linkguardian/result"
)

// progressBuffer is the capacity of the channel between the scan and the UI.
const progressBuffer = 100

// ScanFunc runs one scan, streaming events to progress. It must not close
// progress.
type ScanFunc func(ctx context.Context, progress chan<- crawler.CrawlEvent) (*result.Report, error)

// Model is the Bubble Tea model for the scan TUI.
type Model struct {
	ctx        context.Context
	cancel     context.CancelFunc
	scan       ScanFunc
	spinner    spinner.Model
	bar        progress.Model
	progressCh chan crawler.CrawlEvent

	phase    crawler.Phase
	pages    int
	links    int
	checked  int
	total    int
	broken   int
	current  string
	quitting bool
	done     bool
	report   *result.Report
	err      error
	width    int
}

// NewModel creates a TUI model that runs scan when started.
func NewModel(ctx context.Context, cancel context.CancelFunc, scan ScanFunc) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		ctx:        ctx,
		cancel:     cancel,
		scan:       scan,
		spinner:    spin,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		progressCh: make(chan crawler.CrawlEvent, progressBuffer),
	}
}

// Init starts the spinner, the scan, and the progress listener concurrently.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startScan(), waitForProgress(m.progressCh))
}

// startScan returns a tea.Cmd that runs the scan and sends ScanDoneMsg.
// The progress channel is closed once the scan returns.
func (m Model) startScan() tea.Cmd {
	return func() tea.Msg {
		report, err := m.scan(m.ctx, m.progressCh)
		close(m.progressCh)
		return ScanDoneMsg{Report: report, Err: err}
	}
}

// Update handles messages from the Bubble Tea runtime.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(max(msg.Width-20, 10), 60)

	case ProgressMsg:
		m.apply(msg.Event)
		return m, waitForProgress(m.progressCh)

	case progressClosedMsg:
		return m, nil

	case ScanDoneMsg:
		m.done = true
		m.report = msg.Report
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) apply(evt crawler.CrawlEvent) {
	m.phase = evt.Phase
	m.current = evt.URL
	switch evt.Phase {
	case crawler.PhaseCrawl:
		m.pages = evt.Pages
		m.links = evt.Links
	case crawler.PhaseCheck:
		m.checked = evt.Checked
		m.total = evt.Total
		m.broken = evt.Broken
	}
}

func (m Model) percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.checked) / float64(m.total)
}

// View renders the current TUI state.
func (m Model) View() string {
	if m.done && m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	}
	if m.done && m.report != nil {
		return RenderSummary(m.report)
	}
	if m.quitting {
		return dimStyle.Render("Cancelled.") + "\n"
	}
	current := dimStyle.Render("  " + result.Truncate(m.current, max(m.width-4, 40)))
	if m.phase == crawler.PhaseCheck {
		return fmt.Sprintf("%s Checking links %s %d/%d, broken %d\n%s\n",
			m.spinner.View(), m.bar.ViewAs(m.percent()), m.checked, m.total, m.broken, current)
	}
	return fmt.Sprintf("%s Crawling... %d pages, %d links found\n%s\n",
		m.spinner.View(), m.pages, m.links, current)
}

// Report returns the finished scan report, or nil if the scan did not finish.
func (m Model) Report() *result.Report {
	return m.report
}

// Err returns the error the scan failed with.
func (m Model) Err() error {
	return m.err
}

// Cancelled reports whether the user quit before the scan finished.
func (m Model) Cancelled() bool {
	return m.quitting && !m.done
}
