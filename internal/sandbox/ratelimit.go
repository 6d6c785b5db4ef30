package sandbox

import (
	"strconv"
	"sync"
	"time"
)

// rateLimiter is a per-client token bucket. Each client gets a bucket
// of perMinute tokens that refills continuously; a request costs one
// token. Disabled when perMinute <= 0.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perMinute int
	now       func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

func newRateLimiter(perMinute int, now func() time.Time) *rateLimiter {
	return &rateLimiter{
		buckets:   make(map[string]*bucket),
		perMinute: perMinute,
		now:       now,
	}
}

// allow spends one token for the client. When the bucket is empty it
// returns a Retry-After value in whole seconds.
func (rl *rateLimiter) allow(client string) (retryAfter string, ok bool) {
	if rl.perMinute <= 0 {
		return "", true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, exists := rl.buckets[client]
	if !exists {
		b = &bucket{tokens: float64(rl.perMinute), lastFill: now}
		rl.buckets[client] = b
	}

	refillPerSecond := float64(rl.perMinute) / 60
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens = min(b.tokens+elapsed*refillPerSecond, float64(rl.perMinute))
	b.lastFill = now

	if b.tokens < 1 {
		wait := (1 - b.tokens) / refillPerSecond
		seconds := int(wait)
		if wait > float64(seconds) {
			seconds++
		}
		if seconds < 1 {
			seconds = 1
		}
		return strconv.Itoa(seconds), false
	}
	b.tokens--
	return "", true
}
