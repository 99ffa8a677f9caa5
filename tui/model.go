// Package tui provides the Bubble Tea terminal UI for linkcrawl,
// displaying live check progress and a styled summary of results.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lukemcguire/linkcrawl/crawler"
	"github.com/lukemcguire/linkcrawl/result"
)

// Model is the Bubble Tea model for a running check.
type Model struct {
	handle  *crawler.RunHandle
	sink    *Sink
	spinner spinner.Model

	progress   crawler.Progress
	current    string
	cancelling bool
	done       bool
	summary    result.Summary
	results    []result.CheckResult
	err        error
	width      int
}

// NewModel creates a TUI model for a run started with sink.
func NewModel(handle *crawler.RunHandle, sink *Sink) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		handle:  handle,
		sink:    sink,
		spinner: spin,
	}
}

// Init starts the spinner and the progress and completion listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForProgress(m.sink.events), waitForFinish(m.handle))
}

// Update handles messages from the Bubble Tea runtime.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The first press cancels and waits for the partial summary;
			// a second one leaves immediately.
			if m.cancelling {
				return m, tea.Quit
			}
			m.cancelling = true
			if m.handle != nil {
				m.handle.Cancel()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case CrawlProgressMsg:
		m.current = msg.URL
		if m.handle != nil {
			m.progress = m.handle.Progress()
		}
		if m.sink == nil {
			return m, nil
		}
		return m, waitForProgress(m.sink.events)

	case CrawlDoneMsg:
		m.done = true
		m.summary = msg.Summary
		m.err = msg.Err
		if m.sink != nil {
			m.results = m.sink.Results()
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current TUI state.
func (m Model) View() string {
	if m.done {
		out := RenderSummary(m.results, m.summary)
		if m.err != nil {
			out += errorStyle.Render("Error: "+m.err.Error()) + "\n"
		}
		return out
	}

	status := "Checking..."
	if m.cancelling {
		status = "Cancelling..."
	}
	return fmt.Sprintf("%s %s checked %d, broken %d, queued %d\n%s\n",
		m.spinner.View(), status, m.progress.Checked, m.progress.Broken, m.progress.Queued,
		dimStyle.Render("  "+m.current))
}

// HasBrokenLinks reports whether the run found any broken links.
func (m Model) HasBrokenLinks() bool {
	return m.summary.Broken() > 0
}

// Done reports whether the UI saw the run finish.
func (m Model) Done() bool {
	return m.done
}

// Summary returns the run summary, valid once the run is done.
func (m Model) Summary() result.Summary {
	return m.summary
}

// Results returns the collected results for output formatting.
func (m Model) Results() []result.CheckResult {
	return m.results
}

// Err returns the error the run aborted with, if any.
func (m Model) Err() error {
	return m.err
}
