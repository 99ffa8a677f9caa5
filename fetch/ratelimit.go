package fetch

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// minRateFloor is the slowest the adaptive limiter will go, in requests per second.
	minRateFloor = 5.0

	// maxRateCeiling is the fastest the adaptive limiter will go.
	maxRateCeiling = 100.0

	// emaAlpha weights a new RTT observation against the running average.
	emaAlpha = 0.2

	// recoveryFactor raises the rate after an observation faster than target.
	recoveryFactor = 1.1

	// backoffFactor bounds the drop caused by a single slow observation.
	backoffFactor = 0.5
)

// AdaptiveLimiter paces requests with a token bucket. When adaptive, the
// rate follows an exponential moving average of observed response times:
// slower than TargetRTT backs off, faster recovers gradually.
type AdaptiveLimiter struct {
	limiter   *rate.Limiter
	targetRTT time.Duration
	adaptive  bool

	mu          sync.Mutex
	emaRTT      time.Duration
	currentRate float64
}

// NewAdaptiveLimiter creates a limiter starting at rps requests per second.
// An adaptive limiter clamps its rate to [5, 100]; a fixed one keeps rps.
func NewAdaptiveLimiter(rps int, targetRTT time.Duration, adaptive bool) *AdaptiveLimiter {
	adaptive = adaptive && targetRTT > 0
	start := float64(rps)
	if adaptive {
		start = clampRate(start)
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(rate.Limit(start), int(math.Ceil(start))),
		targetRTT:   targetRTT,
		adaptive:    adaptive,
		emaRTT:      targetRTT,
		currentRate: start,
	}
}

// Wait blocks until the next request may start or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// ObserveRTT feeds one response time into the moving average and adjusts
// the rate. It is a no-op for non-adaptive limiters.
func (a *AdaptiveLimiter) ObserveRTT(rtt time.Duration) {
	if !a.adaptive || rtt <= 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.emaRTT = time.Duration(emaAlpha*float64(rtt) + (1-emaAlpha)*float64(a.emaRTT))
	ratio := float64(a.targetRTT) / float64(a.emaRTT)

	next := a.currentRate * recoveryFactor
	if ratio < 1 {
		next = math.Max(a.currentRate*ratio, a.currentRate*backoffFactor)
	}
	next = clampRate(next)

	// Ignore jitter below 0.1 rps
	if math.Abs(next-a.currentRate) <= 0.1 {
		return
	}
	a.currentRate = next
	a.limiter.SetLimit(rate.Limit(next))
	a.limiter.SetBurst(int(math.Ceil(next)))
}

// CurrentRate returns the current rate rounded to whole requests per second.
func (a *AdaptiveLimiter) CurrentRate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(math.Round(a.currentRate))
}

// CurrentEMA returns the moving average of observed response times.
func (a *AdaptiveLimiter) CurrentEMA() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.emaRTT
}

func clampRate(rps float64) float64 {
	return math.Min(math.Max(rps, minRateFloor), maxRateCeiling)
}
