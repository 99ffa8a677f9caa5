package result

import (
	"slices"
	"sync"

	"github.com/lukemcguire/linkcrawl/config"
)

// Sink consumes the results of a run. OnResult is called from worker
// goroutines, concurrently and in no particular order; implementations must
// be safe for concurrent use and must not block for long.
type Sink interface {
	OnStart(rootURL string, cfg config.Config)
	OnResult(res CheckResult)
	OnFinish(summary Summary)
}

// Tee fans every call out to all sinks in order.
func Tee(sinks ...Sink) Sink {
	return tee(slices.Clone(sinks))
}

type tee []Sink

func (t tee) OnStart(rootURL string, cfg config.Config) {
	for _, s := range t {
		s.OnStart(rootURL, cfg)
	}
}

func (t tee) OnResult(res CheckResult) {
	for _, s := range t {
		s.OnResult(res)
	}
}

func (t tee) OnFinish(summary Summary) {
	for _, s := range t {
		s.OnFinish(summary)
	}
}

// Collector is an in-memory Sink.
type Collector struct {
	mu       sync.Mutex
	root     string
	results  []CheckResult
	summary  Summary
	finished bool
	done     chan struct{}
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{done: make(chan struct{})}
}

// OnStart implements Sink.
func (c *Collector) OnStart(rootURL string, _ config.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root = rootURL
}

// OnResult implements Sink.
func (c *Collector) OnResult(res CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
}

// OnFinish implements Sink.
func (c *Collector) OnFinish(summary Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary = summary
	if !c.finished {
		c.finished = true
		close(c.done)
	}
}

// Done is closed once OnFinish has been called.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Root returns the root URL passed to OnStart.
func (c *Collector) Root() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// Results returns a copy of all results ordered by sequence number.
func (c *Collector) Results() []CheckResult {
	c.mu.Lock()
	out := slices.Clone(c.results)
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b CheckResult) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Broken returns error and timeout results ordered by sequence number.
func (c *Collector) Broken() []CheckResult {
	return slices.DeleteFunc(c.Results(), func(r CheckResult) bool { return !r.Broken() })
}

// Summary returns the summary passed to OnFinish and whether it was called.
func (c *Collector) Summary() (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary, c.finished
}
