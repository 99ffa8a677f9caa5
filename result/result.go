// Package result defines check results, the failure taxonomy, run summaries
// and the sinks that consume them.
package result

import "time"

// Status is the terminal status of one checked URL.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// URLData describes a checkable unit and where it was found.
type URLData struct {
	Raw        string `json:"raw"`                  // The reference as found
	Normalized string `json:"url"`                  // Canonical form (empty when invalid)
	Scheme     string `json:"scheme,omitempty"`     // Lower-case scheme
	Parent     string `json:"parent,omitempty"`     // Page the reference was found on
	Line       int    `json:"line,omitempty"`       // 1-based line in the parent document
	Column     int    `json:"column,omitempty"`     // 1-based column in the parent document
	Depth      int    `json:"depth"`                // Recursion depth; the root is 0
	Intern     bool   `json:"intern"`               // Whether the URL is in scope for expansion
}

// Key returns the identity of the URL: its normalized form, or the raw
// reference when it could not be normalized.
func (u URLData) Key() string {
	if u.Normalized != "" {
		return u.Normalized
	}
	return u.Raw
}

// CheckResult is the outcome of checking one URL.
type CheckResult struct {
	Seq         uint64        `json:"seq"` // Arrival order within the run
	URL         URLData       `json:"url_data"`
	Status      Status        `json:"status"`
	StatusCode  int           `json:"status_code,omitempty"` // Protocol status (0 if none)
	ContentType string        `json:"content_type,omitempty"`
	Size        int64         `json:"size"`
	Failure     FailureKind   `json:"failure,omitempty"`
	Error       string        `json:"error,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Info        []string      `json:"info,omitempty"`
	Children    []string      `json:"children,omitempty"` // Extracted child URLs
	Duration    time.Duration `json:"duration_ns"`
	CheckedAt   time.Time     `json:"checked_at"`
}

// Fail marks the result failed with kind and message, deriving its status.
func (r *CheckResult) Fail(kind FailureKind, msg string) {
	r.Failure = kind
	r.Error = msg
	r.Status = kind.Status()
}

// Broken reports whether the result is an error or timeout.
func (r CheckResult) Broken() bool {
	return r.Status == StatusError || r.Status == StatusTimeout
}

// RunStatus is the terminal status of a whole run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// Summary contains aggregate statistics for a crawl run.
type Summary struct {
	Status   RunStatus     `json:"status"`
	Total    int           `json:"total"`    // Results produced
	OK       int           `json:"ok"`       // Results with StatusOK
	Warnings int           `json:"warnings"` // Results with StatusWarning
	Errors   int           `json:"errors"`   // Results with StatusError
	Timeouts int           `json:"timeouts"` // Results with StatusTimeout
	Dropped  int           `json:"dropped"`  // Queued tasks abandoned on cancellation
	Duration time.Duration `json:"duration_ns"`
	Err      string        `json:"error,omitempty"` // Internal error that aborted the run
}

// Broken returns the number of error and timeout results.
func (s Summary) Broken() int {
	return s.Errors + s.Timeouts
}

// Count adds one result to the tallies.
func (s *Summary) Count(r CheckResult) {
	s.Total++
	switch r.Status {
	case StatusOK:
		s.OK++
	case StatusWarning:
		s.Warnings++
	case StatusError:
		s.Errors++
	case StatusTimeout:
		s.Timeouts++
	}
}
