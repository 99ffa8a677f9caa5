package crawler

import "fmt"

// State is the lifecycle state of a Crawler.
type State int32

const (
	// StateIdle means no run is active.
	StateIdle State = iota
	// StateRunning means workers are checking URLs.
	StateRunning
	// StateDraining means the queue is closed and workers are finishing.
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Progress is a point-in-time view of a run.
type Progress struct {
	State    State
	Checked  int // Results recorded so far
	Broken   int // Error and timeout results so far
	Queued   int // Tasks waiting for a worker
	InFlight int // Tasks being checked
}

// Progress returns the current progress of the run.
func (h *RunHandle) Progress() Progress {
	summary := h.agg.snapshot()
	queued := h.agg.queue.Len()
	state := h.crawler.State()
	if h.IsFinished() {
		state = StateIdle
	}
	return Progress{
		State:    state,
		Checked:  summary.Total,
		Broken:   summary.Broken(),
		Queued:   queued,
		InFlight: max(h.agg.queue.Pending()-queued, 0),
	}
}
