package querycache

import (
	"context"
	"io"
	"log/slog"
	stdsync "sync"
	"time"

	"golang.org/x/sync/singleflight"

	"moviesnow/internal/querycache/metrics"
	"moviesnow/pkg/apierror"
	"moviesnow/pkg/platform/circuit"
	psync "moviesnow/pkg/platform/sync"
)

// entry holds one cached value. A zero fetchedAt marks the entry as
// invalidated: still displayable, but the next read must refetch.
type entry struct {
	value     any
	fetchedAt time.Time
	storedAt  time.Time
	version   uint64
}

// Cache is the process-wide query cache. All methods are safe for
// concurrent use.
type Cache struct {
	mu      stdsync.RWMutex
	entries map[string]*entry

	// locks serializes multi-step sequences (snapshot, optimistic apply,
	// rollback) per key; mu alone only guards individual map operations.
	locks *psync.ShardedRWMutex

	group   singleflight.Group
	breaker *circuit.Breaker

	ttl      time.Duration
	staleTTL time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long a fetched value counts as fresh. Default 30s.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithStaleTTL sets how long an expired value may still be served when
// the API is unhealthy. Default 15m.
func WithStaleTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.staleTTL = d
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Cache) {
		if b != nil {
			c.breaker = b
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]*entry),
		locks:    psync.NewShardedRWMutex(),
		breaker:  circuit.New("querycache", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		ttl:      30 * time.Second,
		staleTTL: 15 * time.Minute,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// FetchFunc loads the authoritative value for a key.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// GetOrFetch returns the cached value for key, fetching it when the cache
// is cold or expired. Concurrent calls for the same key share one fetch.
// When the fetch fails transiently (or the circuit is open), an expired
// value within the stale window is served instead of the error.
func GetOrFetch[T any](ctx context.Context, c *Cache, key Key, fetch FetchFunc[T]) (T, error) {
	var zero T
	v, err := c.getOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, apierror.New(apierror.CodeInternal, "cached value for "+key.String()+" has unexpected type")
	}
	return typed, nil
}

// Lookup returns the current cached value for key without fetching,
// regardless of freshness. It reports false when the key is absent or
// holds a different type.
func Lookup[T any](c *Cache, key Key) (T, bool) {
	var zero T
	c.mu.RLock()
	e, ok := c.entries[key.String()]
	if !ok {
		c.mu.RUnlock()
		return zero, false
	}
	v := e.value
	c.mu.RUnlock()

	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

func (c *Cache) getOrFetch(ctx context.Context, key Key, fetch func(context.Context) (any, error)) (any, error) {
	if v, ok := c.lookupFresh(key); ok {
		if c.metrics != nil {
			c.metrics.IncrementHit(key.Scope)
		}
		return v, nil
	}
	if c.metrics != nil {
		c.metrics.IncrementMiss(key.Scope)
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		// Another caller may have completed the fetch while this one
		// waited for the flight slot.
		if v, ok := c.lookupFresh(key); ok {
			return v, nil
		}

		stale, hasStale := c.lookupStale(key)

		if !c.breaker.Allow() {
			if hasStale {
				c.serveStale(ctx, key, "circuit open")
				return stale, nil
			}
			return nil, apierror.New(apierror.CodeUnavailable, "api unavailable and no cached value for "+key.String())
		}

		v, err := fetch(ctx)
		if err != nil {
			if !apierror.Retryable(err) {
				return nil, err
			}
			if _, change := c.breaker.RecordFailure(); change.Opened {
				c.logger.WarnContext(ctx, "api circuit opened", "scope", key.Scope)
			}
			if hasStale {
				c.serveStale(ctx, key, apierror.CodeOf(err))
				return stale, nil
			}
			return nil, err
		}

		if _, change := c.breaker.RecordSuccess(); change.Closed {
			c.logger.InfoContext(ctx, "api circuit closed")
		}
		c.store(key, v)
		return v, nil
	})
	return v, err
}

func (c *Cache) serveStale(ctx context.Context, key Key, reason any) {
	if c.metrics != nil {
		c.metrics.IncrementStaleServed(key.Scope)
	}
	c.logger.WarnContext(ctx, "serving stale cached value", "key", key.String(), "reason", reason)
}

// lookupFresh returns the value when it exists and is within the TTL.
func (c *Cache) lookupFresh(key Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.String()]
	if !ok || e.fetchedAt.IsZero() {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return e.value, true
}

// lookupStale returns the value when it exists and is within the stale
// window, fresh or not. Invalidated entries qualify.
func (c *Cache) lookupStale(key Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.staleTTL {
		return nil, false
	}
	return e.value, true
}

// store records a freshly fetched value.
func (c *Cache) store(key Key, v any) {
	k := key.String()
	c.locks.Lock(k)
	defer c.locks.Unlock(k)

	now := c.now()
	c.mu.Lock()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{}
		c.entries[k] = e
	}
	e.value = v
	e.fetchedAt = now
	e.storedAt = now
	e.version++
	c.pruneLocked(now)
	size := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetEntries(size)
	}
}

// pruneLocked drops entries past the stale window. Caller holds mu.
func (c *Cache) pruneLocked(now time.Time) {
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.staleTTL {
			delete(c.entries, k)
		}
	}
}

// Invalidate marks the given keys as expired without discarding their
// values, so the next read refetches while the old value stays available
// as a stale fallback.
func (c *Cache) Invalidate(keys ...Key) {
	for _, key := range keys {
		k := key.String()
		c.locks.Lock(k)
		c.mu.Lock()
		if e, ok := c.entries[k]; ok {
			e.fetchedAt = time.Time{}
			if c.metrics != nil {
				c.metrics.IncrementInvalidation(key.Scope)
			}
		}
		c.mu.Unlock()
		c.locks.Unlock(k)
	}
}

// InvalidateScope invalidates every key under the given scope.
func (c *Cache) InvalidateScope(scope string) {
	prefix := scope + ":"
	c.mu.Lock()
	for k, e := range c.entries {
		if k == scope || len(k) > len(prefix) && k[:len(prefix)] == prefix {
			e.fetchedAt = time.Time{}
			if c.metrics != nil {
				c.metrics.IncrementInvalidation(scope)
			}
		}
	}
	c.mu.Unlock()
}

// Clear empties the cache. Logout calls it so the next account sees
// nothing of the previous one.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	c.breaker.Reset()
	if c.metrics != nil {
		c.metrics.SetEntries(0)
	}
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
