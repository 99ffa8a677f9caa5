package crawler

import (
	"sync"

	"github.com/lukemcguire/linkcrawl/config"
	"github.com/lukemcguire/linkcrawl/result"
)

// Task is one URL waiting to be checked.
type Task struct {
	URL result.URLData
	Err error // Normalization error; the task is reported without a fetch
}

// Queue is the FIFO work queue shared by the workers of a run.
//
// It counts pending work, both queued and in flight. When the count drops
// to zero the run is quiescent: the queue closes itself and calls onDrain,
// so every worker blocked in Get observes end-of-stream.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []Task
	pending  int
	closed   bool
	maxDepth int
	onDrain  func()
}

// NewQueue creates a Queue refusing tasks deeper than maxDepth, unless
// maxDepth is config.RecursionUnlimited. onDrain may be nil.
func NewQueue(maxDepth int, onDrain func()) *Queue {
	q := &Queue{maxDepth: maxDepth, onDrain: onDrain}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends t. It reports false when the queue is closed or t is deeper
// than the recursion level.
func (q *Queue) Put(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.maxDepth != config.RecursionUnlimited && t.URL.Depth > q.maxDepth {
		return false
	}
	q.items = append(q.items, t)
	q.pending++
	q.cond.Signal()
	return true
}

// Get removes the oldest task, blocking while the queue is empty and open.
// It reports false once the queue is closed. Every task obtained from Get
// must be released with Done.
func (q *Queue) Get() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return Task{}, false
	}
	t := q.items[0]
	q.items[0] = Task{}
	q.items = q.items[1:]
	return t, true
}

// Done marks a task obtained from Get as finished.
func (q *Queue) Done() {
	q.mu.Lock()
	q.pending--
	drained := q.pending <= 0 && !q.closed
	if drained {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()

	if drained && q.onDrain != nil {
		q.onDrain()
	}
}

// Close closes the queue, waking every blocked Get, and returns the number
// of queued tasks it dropped. Closing a closed queue drops nothing.
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}
	q.closed = true
	dropped := len(q.items)
	q.pending -= dropped
	q.items = nil
	q.cond.Broadcast()
	return dropped
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns the number of queued and in-flight tasks.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Closed reports whether the queue has been closed.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
