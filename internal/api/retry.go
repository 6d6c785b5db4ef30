package api

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy bounds the transparent retry loop. Only transient failures
// (rate limits, 5xx, network errors, timeouts) consume the budget; other
// client errors surface immediately.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps the backoff, including server-provided Retry-After
	// values.
	MaxDelay time.Duration
}

// DefaultRetryPolicy matches the documented client defaults: three
// retries, 250ms base, 5s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// Delay computes how long to wait before the retry following attempt
// (zero-based). A server Retry-After hint wins over the computed backoff
// but still respects MaxDelay.
func (p RetryPolicy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, p.MaxDelay)
	}

	backoff := p.BaseDelay << attempt
	if backoff <= 0 || backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	// Full jitter keeps synchronized clients from stampeding.
	if backoff > 0 {
		backoff = time.Duration(rand.Int64N(int64(backoff))) + backoff/2
	}
	return min(backoff, p.MaxDelay)
}

// parseRetryAfter reads a Retry-After header, which carries either a
// delta in seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
