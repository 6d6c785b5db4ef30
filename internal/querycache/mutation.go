package querycache

import (
	"context"
)

// Mutation describes a server-side change with an optimistic local
// projection. The cached value under Key is transformed by Apply before
// the call goes out, rolled back if the call fails, and invalidated
// either way once the call settles so the next read fetches the server's
// truth.
type Mutation[T any] struct {
	// Key is the cached query the mutation projects onto.
	Key Key

	// Invalidate lists additional keys that become stale once the
	// mutation settles (e.g. a stats query derived from the list).
	Invalidate []Key

	// Apply transforms the cached value into its expected post-mutation
	// shape. Nil (or a cold cache) skips the optimistic step.
	Apply func(T) T

	// Call performs the server-side mutation.
	Call func(ctx context.Context) error
}

// RunMutation executes m against the cache: optimistic apply, server
// call, rollback on failure, invalidation on settle. The error is the
// server call's error, unchanged.
func RunMutation[T any](ctx context.Context, c *Cache, m Mutation[T]) error {
	snapshot, version, applied := applyOptimistic(c, m.Key, m.Apply)

	err := m.Call(ctx)
	if err != nil && applied {
		c.rollback(m.Key, snapshot, version)
	}

	c.Invalidate(append([]Key{m.Key}, m.Invalidate...)...)
	return err
}

// applyOptimistic swaps the cached value for its projected form and
// returns the pre-mutation snapshot plus the version stamped on the
// optimistic value. applied is false when there was nothing to project
// onto.
func applyOptimistic[T any](c *Cache, key Key, apply func(T) T) (snapshot T, version uint64, applied bool) {
	var zero T
	if apply == nil {
		return zero, 0, false
	}

	k := key.String()
	c.locks.Lock(k)
	defer c.locks.Unlock(k)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		return zero, 0, false
	}
	current, ok := e.value.(T)
	if !ok {
		return zero, 0, false
	}

	e.value = apply(current)
	e.version++
	return current, e.version, true
}

// rollback restores the snapshot, unless something else (a fetch, another
// mutation) has already replaced the optimistic value.
func (c *Cache) rollback(key Key, snapshot any, version uint64) {
	k := key.String()
	c.locks.Lock(k)
	defer c.locks.Unlock(k)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok || e.version != version {
		return
	}
	e.value = snapshot
	e.version++
	// The rolled-back value reflects the server as of the last fetch;
	// mark when we knew it so the stale window still applies.
	if e.storedAt.IsZero() {
		e.storedAt = c.now()
	}
	if c.metrics != nil {
		c.metrics.IncrementRollback(key.Scope)
	}
}

// MutateValue is a convenience for callers that only need the optimistic
// projection with no extra invalidations.
func MutateValue[T any](ctx context.Context, c *Cache, key Key, apply func(T) T, call func(ctx context.Context) error) error {
	return RunMutation(ctx, c, Mutation[T]{Key: key, Apply: apply, Call: call})
}
