package tui

import (
	"github.com/lukemcguire/linkcrawl/config"
	"github.com/lukemcguire/linkcrawl/result"
)

// Sink collects the results of a run for the final summary and forwards a
// notification per result to the UI. Notifications are dropped when the UI
// falls behind; the collected results are complete.
type Sink struct {
	collector *result.Collector
	events    chan CrawlProgressMsg
}

// NewSink creates a Sink whose notification channel holds up to buffer
// pending messages.
func NewSink(buffer int) *Sink {
	return &Sink{
		collector: result.NewCollector(),
		events:    make(chan CrawlProgressMsg, buffer),
	}
}

// OnStart implements result.Sink.
func (s *Sink) OnStart(rootURL string, cfg config.Config) {
	s.collector.OnStart(rootURL, cfg)
}

// OnResult implements result.Sink.
func (s *Sink) OnResult(res result.CheckResult) {
	s.collector.OnResult(res)
	select {
	case s.events <- CrawlProgressMsg{URL: res.URL.Key(), Broken: res.Broken()}:
	default:
	}
}

// OnFinish implements result.Sink. It closes the notification channel.
func (s *Sink) OnFinish(summary result.Summary) {
	s.collector.OnFinish(summary)
	close(s.events)
}

// Root returns the root URL of the run.
func (s *Sink) Root() string {
	return s.collector.Root()
}

// Results returns every result received, ordered by sequence number.
func (s *Sink) Results() []result.CheckResult {
	return s.collector.Results()
}
