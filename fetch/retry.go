package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lukemcguire/linkcrawl/result"
)

// RetryPolicy configures retry behavior for failed requests.
type RetryPolicy struct {
	MaxRetries int           // Maximum number of retries (2 = 3 total attempts)
	BaseDelay  time.Duration // Initial backoff delay
	MaxDelay   time.Duration // Maximum backoff cap
}

// DefaultRetryPolicy returns 2 retries (3 attempts) with a 1s base delay
// capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Do runs attempt until it succeeds, fails permanently or the retries are
// exhausted, doubling the delay between attempts. A failure that survives
// every retry has the attempt count appended to its error.
func (p RetryPolicy) Do(ctx context.Context, attempt func(context.Context) Outcome) Outcome {
	backoff := p.BaseDelay
	var last Outcome
	attempts := 0

	for i := 0; i <= p.MaxRetries; i++ {
		if i > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Fail(result.KindCancelled, ctx.Err()).WithStatus(last.StatusCode)
			case <-timer.C:
				backoff = min(backoff*2, p.MaxDelay)
			}
		}

		attempts++
		last = attempt(ctx)
		if !shouldRetry(last) {
			return last
		}
	}

	if attempts > 1 {
		last.Err = fmt.Errorf("%w (after %d attempts)", last.Err, attempts)
	}
	return last
}

// shouldRetry reports whether a failure is transient: network-level trouble,
// 429 Too Many Requests or a 5xx response.
func shouldRetry(o Outcome) bool {
	if o.Kind != OutcomeFailure {
		return false
	}
	switch o.Failure {
	case result.KindTimeout, result.KindDNSFailure, result.KindConnectionRefused, result.KindConnection:
		return true
	case result.Kind5xx:
		return true
	case result.Kind4xx:
		return o.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}
