package crawler

import (
	"sync/atomic"

	"github.com/lukemcguire/linkcrawl/result"
)

// RunHandle controls a run started by Start.
type RunHandle struct {
	agg       *Aggregate
	crawler   *Crawler
	cancel    func()
	cancelled atomic.Bool
	done      chan struct{}

	summary result.Summary
	err     error
}

// Cancel stops the run. Queued tasks are dropped and in-flight fetches are
// interrupted and reported as cancelled; results already delivered remain.
// Cancel returns immediately and is safe to call more than once.
func (h *RunHandle) Cancel() {
	if h.IsFinished() || !h.cancelled.CompareAndSwap(false, true) {
		return
	}
	h.crawler.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
	h.agg.dropped.Add(int64(h.agg.queue.Close()))
	h.cancel()
}

// IsFinished reports whether the run has ended and OnFinish was delivered.
func (h *RunHandle) IsFinished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the run ends.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run ends and returns its summary. The error is
// non-nil only when the run aborted on an InternalError or its resources
// could not be released.
func (h *RunHandle) Wait() (result.Summary, error) {
	<-h.done
	return h.summary, h.err
}

func (h *RunHandle) finish(summary result.Summary, err error) {
	h.summary = summary
	h.err = err
	close(h.done)
}
