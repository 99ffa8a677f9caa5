package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/linkcrawl/config"
	"github.com/lukemcguire/linkcrawl/crawler"
	"github.com/lukemcguire/linkcrawl/fetch"
	"github.com/lukemcguire/linkcrawl/result"
)

// blockingFetcher holds every fetch until the run is cancelled.
type blockingFetcher struct {
	started chan struct{}
}

func (f *blockingFetcher) Supports(scheme string) bool { return scheme == "http" }

func (f *blockingFetcher) Fetch(ctx context.Context, _ fetch.Request) fetch.Outcome {
	select {
	case f.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return fetch.Fail(result.KindCancelled, ctx.Err())
}

// startBlockedRun starts a run whose root fetch blocks until cancelled.
func startBlockedRun(t *testing.T) (*crawler.RunHandle, *Sink) {
	t.Helper()
	cfg := config.Default()
	cfg.RespectRobots = false

	fetcher := &blockingFetcher{started: make(chan struct{}, 1)}
	sink := NewSink(10)
	handle, err := crawler.Start(context.Background(), "http://example.com/", cfg, sink, crawler.WithFetcher(fetcher))
	if err != nil {
		t.Fatalf("crawler.Start() error: %v", err)
	}
	t.Cleanup(func() {
		handle.Cancel()
		_, _ = handle.Wait()
	})
	<-fetcher.started
	return handle, sink
}

func brokenResult(u string, kind result.FailureKind, code int, msg string) result.CheckResult {
	res := result.CheckResult{
		URL:        result.URLData{Normalized: u, Parent: "https://example.com/", Line: 3, Column: 7},
		StatusCode: code,
	}
	res.Fail(kind, msg)
	return res
}

func TestNewModel(t *testing.T) {
	handle, sink := startBlockedRun(t)
	model := NewModel(handle, sink)

	if model.handle != handle {
		t.Error("expected handle to be stored in model")
	}
	if model.sink != sink {
		t.Error("expected sink to be stored in model")
	}
	if model.progress.Checked != 0 || model.progress.Broken != 0 {
		t.Error("expected initial counters to be zero")
	}
	if model.done {
		t.Error("expected done to be false initially")
	}
	if model.Init() == nil {
		t.Error("Init() should return a non-nil batch command")
	}
}

func TestSinkForwardsResults(t *testing.T) {
	sink := NewSink(1)
	sink.OnStart("https://example.com/", config.Default())
	sink.OnResult(result.CheckResult{Seq: 2, URL: result.URLData{Normalized: "https://example.com/b"}})
	sink.OnResult(brokenResult("https://example.com/a", result.Kind4xx, 404, "404 Not Found"))

	msg, ok := <-sink.events
	if !ok || msg.URL != "https://example.com/b" || msg.Broken {
		t.Errorf("first notification = %+v, %v", msg, ok)
	}
	// The second notification was dropped because the buffer was full.
	sink.OnFinish(result.Summary{Total: 2})
	if _, ok := <-sink.events; ok {
		t.Error("events should be closed after OnFinish")
	}

	if sink.Root() != "https://example.com/" {
		t.Errorf("Root() = %q", sink.Root())
	}
	if got := sink.Results(); len(got) != 2 || got[0].Seq != 0 {
		t.Errorf("Results() = %+v, want both results ordered by Seq", got)
	}
}

func TestWaitForProgressClosed(t *testing.T) {
	ch := make(chan CrawlProgressMsg)
	close(ch)
	if msg := waitForProgress(ch)(); msg != nil {
		t.Errorf("waitForProgress() on closed channel = %v, want nil", msg)
	}
}

func TestHasBrokenLinks(t *testing.T) {
	tests := []struct {
		name    string
		summary result.Summary
		want    bool
	}{
		{"empty summary", result.Summary{}, false},
		{"all ok", result.Summary{Total: 3, OK: 3}, false},
		{"errors", result.Summary{Total: 3, OK: 2, Errors: 1}, true},
		{"timeouts", result.Summary{Total: 3, OK: 2, Timeouts: 1}, true},
		{"warnings only", result.Summary{Total: 3, OK: 2, Warnings: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := Model{summary: tt.summary}
			if got := model.HasBrokenLinks(); got != tt.want {
				t.Errorf("HasBrokenLinks() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderSummary_NoBrokenLinks(t *testing.T) {
	output := RenderSummary(nil, result.Summary{Total: 10, OK: 10, Duration: 2 * time.Second})
	if !strings.Contains(output, "No broken links found") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !strings.Contains(output, "10") {
		t.Errorf("expected URL count in output, got: %s", output)
	}
}

func TestRenderSummary_WithBrokenLinks(t *testing.T) {
	results := []result.CheckResult{
		brokenResult("https://example.com/dead", result.Kind4xx, 404, ""),
		brokenResult("https://example.com/err", result.KindConnectionRefused, 0, "connection refused"),
		{URL: result.URLData{Normalized: "https://example.com/fine"}, Status: result.StatusOK},
	}
	summary := result.Summary{Total: 25, OK: 23, Errors: 2, Duration: 3 * time.Second}

	output := RenderSummary(results, summary)
	for _, want := range []string{
		"example.com/dead",
		"404",
		"connection refused",
		result.FormatKind(result.Kind4xx),
		result.FormatKind(result.KindConnectionRefused),
		"2 broken links",
		"https://example.com/:3:7",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "example.com/fine") {
		t.Errorf("ok results should not be listed, got: %s", output)
	}
	if strings.Index(output, result.FormatKind(result.Kind4xx)) > strings.Index(output, result.FormatKind(result.KindConnectionRefused)) {
		t.Error("4xx group should come before connection refused")
	}
}

func TestRenderSummary_RunStatus(t *testing.T) {
	tests := []struct {
		name    string
		summary result.Summary
		want    string
	}{
		{"cancelled", result.Summary{Status: result.RunCancelled, Dropped: 7}, "7 queued URLs were not checked"},
		{"failed", result.Summary{Status: result.RunFailed, Err: "internal error"}, "Aborted: internal error"},
		{"warnings", result.Summary{Status: result.RunCompleted, Total: 2, Warnings: 2}, "2 URLs checked with warnings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if output := RenderSummary(nil, tt.summary); !strings.Contains(output, tt.want) {
				t.Errorf("expected %q in output, got: %s", tt.want, output)
			}
		})
	}
}

func TestUpdate_CrawlProgressMsg(t *testing.T) {
	handle, sink := startBlockedRun(t)
	model := NewModel(handle, sink)

	updatedModel, cmd := model.Update(CrawlProgressMsg{URL: "https://example.com/page"})
	updated := updatedModel.(Model)

	if updated.current != "https://example.com/page" {
		t.Errorf("expected current URL to be set, got %s", updated.current)
	}
	if updated.progress.InFlight != 1 {
		t.Errorf("expected progress from the run handle, got %+v", updated.progress)
	}
	if cmd == nil {
		t.Error("expected non-nil cmd to re-subscribe to progress channel")
	}
}

func TestUpdate_QuitCancelsRun(t *testing.T) {
	handle, sink := startBlockedRun(t)
	model := NewModel(handle, sink)

	updatedModel, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	updated := updatedModel.(Model)
	if !updated.cancelling || cmd != nil {
		t.Fatalf("first q: cancelling=%v cmd=%v, want cancelling and no quit", updated.cancelling, cmd)
	}

	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after cancel")
	}
	summary, err := handle.Wait()
	if err != nil || summary.Status != result.RunCancelled {
		t.Errorf("run = %+v, %v, want cancelled", summary, err)
	}

	updatedModel, cmd = updated.Update(CrawlDoneMsg{Summary: summary})
	updated = updatedModel.(Model)
	if !updated.done || cmd == nil {
		t.Error("expected done and a quit command after CrawlDoneMsg")
	}
	if len(updated.Results()) != 1 || updated.Results()[0].Failure != result.KindCancelled {
		t.Errorf("Results() = %+v, want the cancelled root", updated.Results())
	}
	if !strings.Contains(updated.View(), "Cancelled") {
		t.Errorf("expected cancellation in view, got: %s", updated.View())
	}
}

func TestUpdate_SecondQuitLeaves(t *testing.T) {
	model := Model{cancelling: true}
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command on second ctrl+c")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestUpdate_CrawlDoneMsg(t *testing.T) {
	sink := NewSink(1)
	sink.OnResult(brokenResult("https://example.com/404", result.Kind4xx, 404, ""))
	model := Model{sink: sink}
	summary := result.Summary{Status: result.RunCompleted, Total: 1, Errors: 1}

	updatedModel, _ := model.Update(CrawlDoneMsg{Summary: summary})
	updated := updatedModel.(Model)

	if !updated.done {
		t.Error("expected done=true after CrawlDoneMsg")
	}
	if updated.Summary() != summary || len(updated.Results()) != 1 {
		t.Error("expected summary and results to be stored")
	}
	if !updated.HasBrokenLinks() {
		t.Error("expected HasBrokenLinks() to be true")
	}
}

func TestUpdate_SpinnerTickMsg(t *testing.T) {
	model := Model{}
	// Send a spinner tick; should not panic and should return a command.
	updatedModel, _ := model.Update(spinner.TickMsg{})
	_ = updatedModel.(Model)
}

func TestUpdate_WindowSizeMsg(t *testing.T) {
	model := Model{}
	updatedModel, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	updated := updatedModel.(Model)

	if updated.width != 120 {
		t.Errorf("expected width=120, got %d", updated.width)
	}
}

func TestView_InProgress(t *testing.T) {
	model := Model{
		progress: crawler.Progress{Checked: 3, Broken: 1, Queued: 4},
		current:  "https://example.com/checking",
	}
	output := model.View()
	if !strings.Contains(output, "Checking") {
		t.Errorf("expected 'Checking' in progress view, got: %s", output)
	}
	if !strings.Contains(output, "checked 3") || !strings.Contains(output, "queued 4") {
		t.Errorf("expected counters in view, got: %s", output)
	}
}

func TestView_DoneWithResult(t *testing.T) {
	model := Model{
		done:    true,
		summary: result.Summary{Total: 5, OK: 5, Duration: time.Second},
	}
	output := model.View()
	if !strings.Contains(output, "No broken links found") {
		t.Errorf("expected success message in done view, got: %s", output)
	}
}

func TestView_DoneWithError(t *testing.T) {
	model := Model{
		done: true,
		err:  errors.New("internal error while checking x"),
	}
	output := model.View()
	if !strings.Contains(output, "Error") {
		t.Errorf("expected error message in done view, got: %s", output)
	}
	if model.Err() == nil {
		t.Error("Err() should return the stored error")
	}
}
