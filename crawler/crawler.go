// Package crawler checks a site's links with a bounded pool of concurrent
// workers. A run starts at a root URL, fetches every discovered URL once,
// expands in-scope pages up to the configured recursion level and streams
// each result to a result.Sink.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/linkcrawl/config"
	"github.com/lukemcguire/linkcrawl/fetch"
	"github.com/lukemcguire/linkcrawl/result"
)

// ErrRunning is returned by Start while a run is in progress.
var ErrRunning = errors.New("crawler: run already in progress")

// InternalError reports a panic inside a worker. It is the only
// error that aborts a run.
type InternalError struct {
	URL   string // URL being processed, if any
	Value any    // Recovered panic value
	Stack []byte
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error while checking %s: %v", e.URL, e.Value)
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFetcher registers an additional fetcher. It takes precedence over the
// built-in fetchers for the schemes it supports.
func WithFetcher(f fetch.Fetcher) Option {
	return func(c *Crawler) {
		c.fetchers = append(c.fetchers, f)
	}
}

// Crawler runs link checks. It runs one check at a time; its state moves
// Idle -> Running -> Draining -> Idle and is only changed by the crawler.
type Crawler struct {
	cfg      config.Config
	logger   *zap.Logger
	fetchers []fetch.Fetcher
	state    atomic.Int32
}

// New creates a Crawler working on a copy of cfg.
func New(cfg config.Config, opts ...Option) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Crawler{
		cfg:    cfg.Clone(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current run state.
func (c *Crawler) State() State {
	return State(c.state.Load())
}

// Start begins checking rootURL in the background and returns a handle to
// the run. Results are delivered to sink from the worker goroutines.
func (c *Crawler) Start(ctx context.Context, rootURL string, sink result.Sink) (*RunHandle, error) {
	if sink == nil {
		return nil, errors.New("crawler: nil sink")
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrRunning
	}

	logger := c.logger.With(zap.String("root", rootURL))
	agg, err := newAggregate(c.cfg.Clone(), rootURL, sink, c.fetchers, logger)
	if err != nil {
		c.state.Store(int32(StateIdle))
		return nil, err
	}
	agg.queue.onDrain = func() {
		c.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := &RunHandle{
		agg:     agg,
		crawler: c,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	agg.seed()
	logger.Info("crawl started",
		zap.Int("threads", agg.cfg.Threads),
		zap.Int("recursion_level", agg.cfg.RecursionLevel),
		zap.Strings("scope", patternStrings(agg.scope.Patterns())))

	go c.run(runCtx, handle)
	return handle, nil
}

// Start creates a Crawler for cfg and starts a run.
func Start(ctx context.Context, rootURL string, cfg config.Config, sink result.Sink, opts ...Option) (*RunHandle, error) {
	c, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return c.Start(ctx, rootURL, sink)
}

// Run checks rootURL and waits for the run to finish.
func Run(ctx context.Context, rootURL string, cfg config.Config, sink result.Sink, opts ...Option) (result.Summary, error) {
	handle, err := Start(ctx, rootURL, cfg, sink, opts...)
	if err != nil {
		return result.Summary{}, err
	}
	return handle.Wait()
}

func (c *Crawler) run(ctx context.Context, handle *RunHandle) {
	agg := handle.agg
	start := time.Now()

	errGroup, groupCtx := errgroup.WithContext(ctx)
	for range agg.cfg.Threads {
		errGroup.Go(func() error {
			return c.worker(groupCtx, agg)
		})
	}

	// Cancellation, from the caller or a failed worker, closes the queue
	// so idle workers wake up and queued tasks are dropped.
	stop := make(chan struct{})
	var watcher sync.WaitGroup
	watcher.Add(1)
	go func() {
		defer watcher.Done()
		select {
		case <-groupCtx.Done():
			c.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
			agg.dropped.Add(int64(agg.queue.Close()))
		case <-stop:
		}
	}()

	runErr := errGroup.Wait()
	close(stop)
	watcher.Wait()

	summary := agg.snapshot()
	summary.Duration = time.Since(start)
	switch {
	case runErr != nil:
		summary.Status = result.RunFailed
		summary.Err = runErr.Error()
	case handle.cancelled.Load() || ctx.Err() != nil:
		summary.Status = result.RunCancelled
	default:
		summary.Status = result.RunCompleted
	}
	handle.cancel()

	if closeErr := agg.close(); closeErr != nil {
		agg.logger.Warn("release run resources", zap.Error(closeErr))
		runErr = errors.Join(runErr, closeErr)
	}

	agg.logger.Info("crawl finished",
		zap.String("status", string(summary.Status)),
		zap.Int("total", summary.Total),
		zap.Int("broken", summary.Broken()),
		zap.Int("dropped", summary.Dropped),
		zap.Duration("duration", summary.Duration))
	agg.sink.OnFinish(summary)

	c.state.Store(int32(StateIdle))
	handle.finish(summary, runErr)
}

// worker processes tasks until the queue closes. It only returns an error
// for an InternalError.
func (c *Crawler) worker(ctx context.Context, agg *Aggregate) error {
	for {
		if agg.memory != nil && agg.memory.Throttle(ctx) {
			agg.logger.Debug("worker paused for memory pressure")
		}
		task, ok := agg.queue.Get()
		if !ok {
			return nil
		}
		if err := c.process(ctx, agg, task); err != nil {
			return err
		}
	}
}

// process checks one task: fetch, record, then expand its children.
func (c *Crawler) process(ctx context.Context, agg *Aggregate, task Task) (err error) {
	defer agg.queue.Done()

	start := time.Now()
	res := result.CheckResult{URL: task.URL, Status: result.StatusOK, CheckedAt: start}
	recorded := false

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		internal := &InternalError{URL: task.URL.Key(), Value: r, Stack: debug.Stack()}
		agg.logger.Error("worker panic",
			zap.String("url", internal.URL),
			zap.Any("panic", r),
			zap.ByteString("stack", internal.Stack))
		if !recorded {
			res.Fail(result.KindInternal, internal.Error())
			res.Duration = time.Since(start)
			agg.record(res)
		}
		err = internal
	}()

	if task.Err != nil {
		res.Fail(result.KindInvalidURL, task.Err.Error())
		res.Duration = time.Since(start)
		recorded = true
		agg.record(res)
		return nil
	}

	recurse := agg.shouldRecurse(task.URL)
	out := agg.fetchers.Fetch(ctx, task.URL.Scheme, fetch.Request{
		URL:     task.URL.Normalized,
		Recurse: recurse,
		Timeout: agg.cfg.Timeout,
	})
	if out.Kind == fetch.OutcomeFailure && ctx.Err() != nil {
		out.Failure = result.KindCancelled
	}

	res.Duration = time.Since(start)
	res.StatusCode = out.StatusCode
	res.ContentType = out.ContentType
	res.Size = out.Size
	res.Warnings = out.Warnings
	if len(out.Warnings) > 0 {
		res.Status = result.StatusWarning
	}

	var children []Task
	switch out.Kind {
	case fetch.OutcomeFailure:
		res.Fail(out.Failure, out.Message())
	case fetch.OutcomeRedirect:
		res.Info = append(res.Info, "redirected to "+out.Target)
		if recurse {
			children = []Task{agg.redirectTask(task.URL, out.Target)}
		}
	case fetch.OutcomeContent:
		if recurse {
			children = agg.childTasks(task.URL, out.Links)
		}
	}
	for _, child := range children {
		if child.URL.Normalized != "" {
			res.Children = append(res.Children, child.URL.Normalized)
		}
	}

	recorded = true
	agg.record(res)
	agg.enqueue(children)
	return nil
}
