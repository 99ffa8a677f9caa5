package crawler

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// ThrottleLevel indicates memory pressure severity.
type ThrottleLevel int

const (
	// ThrottleNormal indicates memory usage is within normal bounds.
	ThrottleNormal ThrottleLevel = iota
	// ThrottleWarning indicates memory usage is elevated (75-90% of limit).
	ThrottleWarning
	// ThrottleCritical indicates memory usage is critical (>90% of limit).
	ThrottleCritical
)

func (l ThrottleLevel) String() string {
	switch l {
	case ThrottleNormal:
		return "normal"
	case ThrottleWarning:
		return "warning"
	case ThrottleCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// throttlePause is how long a worker sleeps between checks under critical pressure.
var throttlePause = 100 * time.Millisecond

// MemoryWatcher monitors heap usage against a soft limit. Workers call
// Throttle before taking new work so a run backs off instead of growing
// without bound.
type MemoryWatcher struct {
	mu         sync.RWMutex
	limitBytes int64
	prevLimit  int64
	callback   func(level ThrottleLevel)
	lastLevel  ThrottleLevel
}

// NewMemoryWatcher creates a memory watcher with the specified limit in MB
// and installs it as the runtime's soft memory limit until Release.
func NewMemoryWatcher(limitMB int64) *MemoryWatcher {
	limitBytes := limitMB * 1024 * 1024
	return &MemoryWatcher{
		limitBytes: limitBytes,
		prevLimit:  debug.SetMemoryLimit(limitBytes),
		lastLevel:  ThrottleNormal,
	}
}

// Check returns current memory usage percentage and throttle level.
func (m *MemoryWatcher) Check() (usedPercent float64, level ThrottleLevel) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	limitBytes := float64(m.limitBytes)
	m.mu.RUnlock()

	if limitBytes <= 0 {
		return 0, ThrottleNormal
	}

	// HeapAlloc is memory in use, not reserved
	usedPercent = float64(memStats.HeapAlloc) / limitBytes * 100

	switch {
	case usedPercent >= 90:
		level = ThrottleCritical
	case usedPercent >= 75:
		level = ThrottleWarning
	default:
		level = ThrottleNormal
	}

	m.mu.Lock()
	changed := level != m.lastLevel
	m.lastLevel = level
	callback := m.callback
	m.mu.Unlock()

	if changed && callback != nil {
		callback(level)
	}
	return usedPercent, level
}

// Throttle blocks while memory pressure is critical, forcing a collection
// between checks. It returns early when ctx is done and reports whether it
// had to wait.
func (m *MemoryWatcher) Throttle(ctx context.Context) bool {
	waited := false
	for {
		if _, level := m.Check(); level != ThrottleCritical {
			return waited
		}
		waited = true
		runtime.GC()

		timer := time.NewTimer(throttlePause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return waited
		case <-timer.C:
		}
	}
}

// SetThrottleCallback registers a callback invoked when the level changes.
func (m *MemoryWatcher) SetThrottleCallback(cb func(level ThrottleLevel)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = cb
}

// SetLimit updates the memory limit in bytes.
func (m *MemoryWatcher) SetLimit(limitBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limitBytes = limitBytes
	debug.SetMemoryLimit(limitBytes)
}

// Release restores the soft memory limit that was in effect before the
// watcher was created.
func (m *MemoryWatcher) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prevLimit <= 0 {
		m.prevLimit = math.MaxInt64
	}
	debug.SetMemoryLimit(m.prevLimit)
}
