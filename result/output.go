package result

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

// Report is the JSON document written by WriteJSON.
type Report struct {
	Root    string        `json:"root"`
	Summary Summary       `json:"summary"`
	Results []CheckResult `json:"results"`
}

// WriteJSON writes results and summary as an indented JSON document.
func WriteJSON(w io.Writer, root string, results []CheckResult, summary Summary) error {
	if results == nil {
		results = []CheckResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Report{Root: root, Summary: summary, Results: results}); err != nil {
		return fmt.Errorf("write json output: %w", err)
	}
	return nil
}

// csvRow is one CSV record. Column order follows field order.
type csvRow struct {
	Seq         uint64 `csv:"seq"`
	URL         string `csv:"url"`
	Parent      string `csv:"parent"`
	Line        string `csv:"line"`
	Column      string `csv:"column"`
	Depth       int    `csv:"depth"`
	Intern      bool   `csv:"intern"`
	Status      string `csv:"status"`
	StatusCode  string `csv:"status_code"`
	ContentType string `csv:"content_type"`
	Size        int64  `csv:"size"`
	Failure     string `csv:"failure"`
	Error       string `csv:"error"`
	Warnings    string `csv:"warnings"`
	DurationMS  int64  `csv:"duration_ms"`
}

// WriteCSV writes one CSV row per result, with a header row.
func WriteCSV(w io.Writer, results []CheckResult) error {
	rows := make([]csvRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, csvRow{
			Seq:         r.Seq,
			URL:         r.URL.Key(),
			Parent:      r.URL.Parent,
			Line:        intStr(r.URL.Line),
			Column:      intStr(r.URL.Column),
			Depth:       r.URL.Depth,
			Intern:      r.URL.Intern,
			Status:      string(r.Status),
			StatusCode:  intStr(r.StatusCode),
			ContentType: r.ContentType,
			Size:        r.Size,
			Failure:     string(r.Failure),
			Error:       r.Error,
			Warnings:    strings.Join(r.Warnings, "; "),
			DurationMS:  r.Duration.Milliseconds(),
		})
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("write csv output: %w", err)
	}
	return nil
}

// intStr converts a number to a string, returning empty string for 0.
func intStr(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
