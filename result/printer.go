package result

import (
	"fmt"
	"io"

	"github.com/rodaine/table"
)

// PrintResults writes a table of broken results and a summary line to w.
func PrintResults(w io.Writer, results []CheckResult, summary Summary) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	var broken []CheckResult
	for _, r := range results {
		if r.Broken() {
			broken = append(broken, r)
		}
	}

	if len(broken) == 0 {
		writef("No broken links found!\n")
	} else {
		tbl := table.New("URL", "Status", "Found On").WithWriter(w)
		for _, r := range broken {
			status := r.Error
			if status == "" {
				status = fmt.Sprintf("%d", r.StatusCode)
			}
			tbl.AddRow(r.URL.Key(), status, foundOn(r.URL))
		}
		tbl.Print()
	}

	writef("Checked %d URLs, found %d broken links (%d warnings)\n", summary.Total, summary.Broken(), summary.Warnings)
	switch summary.Status {
	case RunCancelled:
		writef("Run cancelled; %d queued URLs were not checked\n", summary.Dropped)
	case RunFailed:
		writef("Run aborted: %s\n", summary.Err)
	}
}

// foundOn formats the parent page with its line and column.
func foundOn(u URLData) string {
	if u.Parent == "" {
		return "-"
	}
	if u.Line == 0 {
		return u.Parent
	}
	return fmt.Sprintf("%s (%d:%d)", u.Parent, u.Line, u.Column)
}
