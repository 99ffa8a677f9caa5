package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/lukemcguire/linkcrawl/result"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true)
	successStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	categoryStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle         = lipgloss.NewStyle().Faint(true)
	urlStyle         = lipgloss.NewStyle()
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// kindOrder defines the display order for failure kinds (most to least actionable).
var kindOrder = []result.FailureKind{
	result.Kind4xx,
	result.Kind5xx,
	result.KindNotFound,
	result.KindTimeout,
	result.KindDNSFailure,
	result.KindConnectionRefused,
	result.KindConnection,
	result.KindRedirectLoop,
	result.KindInvalidURL,
	result.KindUnsupportedScheme,
	result.KindCancelled,
	result.KindInternal,
	result.KindUnknown,
}

// RenderSummary produces a Lip Gloss styled summary of a run: broken
// results grouped by failure kind, then the totals.
func RenderSummary(results []result.CheckResult, summary result.Summary) string {
	var builder strings.Builder
	elapsed := summary.Duration.Round(time.Millisecond)

	grouped := make(map[result.FailureKind][]result.CheckResult)
	for _, res := range results {
		if !res.Broken() {
			continue
		}
		kind := res.Failure
		if kind == "" {
			kind = result.KindUnknown
		}
		grouped[kind] = append(grouped[kind], res)
	}

	if len(grouped) == 0 {
		builder.WriteString(successStyle.Render("No broken links found!"))
		builder.WriteString("\n")
		builder.WriteString(dimStyle.Render(fmt.Sprintf("Checked %d URLs in %s", summary.Total, elapsed)))
		builder.WriteString("\n")
	} else {
		for _, kind := range kindOrder {
			links := grouped[kind]
			if len(links) == 0 {
				continue
			}
			builder.WriteString(categoryStyle.Render(fmt.Sprintf("## %s (%d)", result.FormatKind(kind), len(links))))
			builder.WriteString("\n")
			builder.WriteString(kindTable(links).Render())
			builder.WriteString("\n\n")
		}

		builder.WriteString(titleStyle.Render(fmt.Sprintf(
			"Found %d broken links out of %d URLs checked (%s)",
			summary.Broken(), summary.Total, elapsed,
		)))
		builder.WriteString("\n")
	}

	if summary.Warnings > 0 {
		builder.WriteString(warnStyle.Render(fmt.Sprintf("%d URLs checked with warnings", summary.Warnings)))
		builder.WriteString("\n")
	}
	switch summary.Status {
	case result.RunCancelled:
		builder.WriteString(warnStyle.Render(fmt.Sprintf("Cancelled: %d queued URLs were not checked", summary.Dropped)))
		builder.WriteString("\n")
	case result.RunFailed:
		builder.WriteString(errorStyle.Render("Aborted: " + summary.Err))
		builder.WriteString("\n")
	}

	return builder.String()
}

func kindTable(links []result.CheckResult) *table.Table {
	rows := make([][]string, 0, len(links))
	for _, link := range links {
		status := fmt.Sprintf("%d", link.StatusCode)
		if link.Error != "" {
			status = link.Error
		}
		foundOn := link.URL.Parent
		if foundOn != "" && link.URL.Line > 0 {
			foundOn = fmt.Sprintf("%s:%d:%d", foundOn, link.URL.Line, link.URL.Column)
		}
		rows = append(rows, []string{link.URL.Key(), status, foundOn})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("URL", "Status", "Found On").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 { // Status column
				return statusErrorStyle
			}
			return urlStyle
		}).
		Rows(rows...)
}
