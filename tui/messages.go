package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/linkcrawl/crawler"
	"github.com/lukemcguire/linkcrawl/result"
)

// CrawlProgressMsg reports that one URL has been checked.
type CrawlProgressMsg struct {
	URL    string
	Broken bool
}

// CrawlDoneMsg signals the run has finished.
type CrawlDoneMsg struct {
	Summary result.Summary
	Err     error
}

// waitForProgress returns a tea.Cmd that reads one notification from the
// sink. It yields nil once the channel is closed; CrawlDoneMsg comes from
// waitForFinish.
func waitForProgress(ch <-chan CrawlProgressMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// waitForFinish returns a tea.Cmd that blocks until the run ends.
func waitForFinish(handle *crawler.RunHandle) tea.Cmd {
	return func() tea.Msg {
		summary, err := handle.Wait()
		return CrawlDoneMsg{Summary: summary, Err: err}
	}
}
