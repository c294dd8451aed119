package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/linkguardian/crawler"
	"github.com/lukemcguire/linkguardian/result"
)

// ProgressMsg carries one crawl or check event.
type ProgressMsg struct {
	Event crawler.CrawlEvent
}

// ScanDoneMsg signals the scan has returned.
type ScanDoneMsg struct {
	Report *result.Report
	Err    error
}

// progressClosedMsg is sent once the progress channel is drained and closed.
type progressClosedMsg struct{}

// waitForProgress returns a tea.Cmd that reads one event from the progress
// channel.
func waitForProgress(ch <-chan crawler.CrawlEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return progressClosedMsg{}
		}
		return ProgressMsg{Event: evt}
	}
}
