package crawler

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/lukemcguire/linkcrawl/config"
	"github.com/lukemcguire/linkcrawl/fetch"
	"github.com/lukemcguire/linkcrawl/result"
	"github.com/lukemcguire/linkcrawl/urlutil"
)

// Aggregate is the mutable state of one run. It is created by Start and
// discarded when the run returns to Idle.
type Aggregate struct {
	cfg      config.Config
	root     result.URLData
	rootErr  error
	queue    *Queue
	visited  VisitedSet
	scope    *urlutil.Scope
	fetchers *fetch.Registry
	sink     result.Sink
	memory   *MemoryWatcher
	logger   *zap.Logger

	seq     atomic.Uint64
	dropped atomic.Int64

	mu      sync.Mutex
	summary result.Summary
}

func newAggregate(cfg config.Config, rootURL string, sink result.Sink, extra []fetch.Fetcher, logger *zap.Logger) (*Aggregate, error) {
	patterns, err := cfg.Patterns()
	if err != nil {
		return nil, fmt.Errorf("compile intern patterns: %w", err)
	}

	registry, err := fetch.NewDefaultRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, f := range extra {
		registry.Register(f)
	}

	visited, err := NewVisitedSet(cfg)
	if err != nil {
		return nil, fmt.Errorf("create visited set: %w", err)
	}

	agg := &Aggregate{
		cfg:      cfg,
		queue:    NewQueue(cfg.RecursionLevel, nil),
		visited:  visited,
		scope:    urlutil.NewScope(patterns...),
		fetchers: registry,
		sink:     sink,
		logger:   logger,
	}

	root, rootErr := urlutil.Normalize(rootURL, "")
	agg.root = result.URLData{
		Raw:        rootURL,
		Normalized: root.Normalized,
		Scheme:     root.Scheme,
		Intern:     true,
	}
	agg.rootErr = rootErr
	if rootErr == nil && agg.scope.Len() == 0 {
		agg.scope.Add(urlutil.RootPattern(root))
	}

	if cfg.MemoryLimitMB > 0 {
		agg.memory = NewMemoryWatcher(cfg.MemoryLimitMB)
		agg.memory.SetThrottleCallback(func(level ThrottleLevel) {
			logger.Info("memory pressure changed", zap.Stringer("level", level))
		})
	}
	return agg, nil
}

// seed announces the run to the sink and queues the root.
func (a *Aggregate) seed() {
	name := a.root.Normalized
	if name == "" {
		name = a.root.Raw
	}
	a.sink.OnStart(name, a.cfg)

	a.visited.VisitIfNew(a.root.Key())
	a.queue.Put(Task{URL: a.root, Err: a.rootErr})
}

// shouldRecurse reports whether u's links are extracted: it must be in
// scope and above the recursion level.
func (a *Aggregate) shouldRecurse(u result.URLData) bool {
	return u.Intern && (a.cfg.Unlimited() || u.Depth < a.cfg.RecursionLevel)
}

// childTasks resolves the links found on parent. Each URL appears once;
// links that cannot be normalized become tasks reporting the error.
func (a *Aggregate) childTasks(parent result.URLData, links []fetch.Link) []Task {
	tasks := make([]Task, 0, len(links))
	seen := make(map[string]bool, len(links))
	for _, link := range links {
		task := a.newTask(link.URL, link.Base, parent, parent.Depth+1)
		task.URL.Line = link.Line
		task.URL.Column = link.Column
		if seen[task.URL.Key()] {
			continue
		}
		seen[task.URL.Key()] = true
		tasks = append(tasks, task)
	}
	return tasks
}

// redirectTask queues a redirect target at the depth of the redirecting URL.
func (a *Aggregate) redirectTask(from result.URLData, target string) Task {
	return a.newTask(target, from.Normalized, from, from.Depth)
}

func (a *Aggregate) newTask(raw, base string, parent result.URLData, depth int) Task {
	data := result.URLData{
		Raw:    raw,
		Parent: parent.Normalized,
		Depth:  depth,
	}
	u, err := urlutil.Normalize(raw, base)
	if err != nil {
		return Task{URL: data, Err: err}
	}
	data.Normalized = u.Normalized
	data.Scheme = u.Scheme
	data.Intern = a.scope.IsIntern(u.Normalized)
	return Task{URL: data}
}

// enqueue queues tasks not seen before in this run. The depth check comes
// first so a refused task is not marked visited.
func (a *Aggregate) enqueue(tasks []Task) {
	for _, t := range tasks {
		if !a.cfg.Unlimited() && t.URL.Depth > a.cfg.RecursionLevel {
			continue
		}
		if !a.visited.VisitIfNew(t.URL.Key()) {
			continue
		}
		if !a.queue.Put(t) {
			a.dropped.Add(1)
			a.logger.Debug("queue closed, task not queued", zap.String("url", t.URL.Key()))
		}
	}
}

// record numbers res, counts it and hands it to the sink.
func (a *Aggregate) record(res result.CheckResult) {
	res.Seq = a.seq.Add(1)

	a.mu.Lock()
	a.summary.Count(res)
	a.mu.Unlock()

	a.sink.OnResult(res)
}

func (a *Aggregate) snapshot() result.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.summary
	s.Dropped = int(a.dropped.Load())
	return s
}

func (a *Aggregate) close() error {
	var errs []error
	if err := a.visited.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.memory != nil {
		a.memory.Release()
	}
	return errors.Join(errs...)
}

func patternStrings(patterns []urlutil.Pattern) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.String()
	}
	return out
}
