package querycache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviesnow/pkg/apierror"
	"moviesnow/pkg/platform/circuit"
)

// testClock is a manually advanced time source shared between the cache
// and its breaker.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(clock *testClock, opts ...Option) *Cache {
	base := []Option{
		WithTTL(30 * time.Second),
		WithStaleTTL(10 * time.Minute),
		WithClock(clock.Now),
		WithBreaker(circuit.New("test",
			circuit.WithFailureThreshold(3),
			circuit.WithSuccessThreshold(1),
			circuit.WithProbeInterval(time.Minute),
			circuit.WithClock(clock.Now),
		)),
	}
	return New(append(base, opts...)...)
}

func fetchCounter(value []string, calls *atomic.Int32) FetchFunc[[]string] {
	return func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "sessions", NewKey("sessions").String())
	assert.Equal(t, "sessions:list", NewKey("sessions", "list").String())
	assert.Equal(t, "bundles:detail:42", NewKey("bundles", "detail", "42").String())
}

func TestGetOrFetchCachesValue(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	key := NewKey("sessions", "list")
	var calls atomic.Int32

	got, err := GetOrFetch(context.Background(), c, key, fetchCounter([]string{"a", "b"}, &calls))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = GetOrFetch(context.Background(), c, key, fetchCounter([]string{"a", "b"}, &calls))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, int32(1), calls.Load(), "second read must hit the cache")
}

func TestGetOrFetchRefetchesAfterTTL(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	key := NewKey("sessions", "list")
	var calls atomic.Int32

	_, err := GetOrFetch(context.Background(), c, key, fetchCounter([]string{"a"}, &calls))
	require.NoError(t, err)

	clock.Advance(31 * time.Second)

	_, err = GetOrFetch(context.Background(), c, key, fetchCounter([]string{"a"}, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "expired entry must be refetched")
}

func TestGetOrFetchDeduplicatesConcurrentFetches(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	key := NewKey("notifications", "list")

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"n1"}, nil
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			got, err := GetOrFetch(context.Background(), c, key, fetch)
			assert.NoError(t, err)
			assert.Equal(t, []string{"n1"}, got)
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent reads must share one fetch")
}

func TestGetOrFetchServesStaleOnTransientError(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	key := NewKey("sessions", "list")
	var calls atomic.Int32

	_, err := GetOrFetch(context.Background(), c, key, fetchCounter([]string{"known"}, &calls))
	require.NoError(t, err)

	clock.Advance(time.Minute)

	got, err := GetOrFetch(context.Background(), c, key, func(ctx context.Context) ([]string, error) {
		return nil, apierror.New(apierror.CodeUnavailable, "api down")
	})
	require.NoError(t, err, "transient failure with a stale value must not surface")
	assert.Equal(t, []string{"known"}, got)
}

func TestGetOrFetchPropagatesNonTransientError(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	key := NewKey("bundles", "detail", "42")
	var calls atomic.Int32

	_, err := GetOrFetch(context.Background(), c, key, fetchCounter([]string{"b42"}, &calls))
	require.NoError(t, err)

	clock.Advance(time.Minute)

	_, err = GetOrFetch(context.Background(), c, key, func(ctx context.Context) ([]string, error) {
		return nil, apierror.New(apierror.CodeNotFound, "bundle deleted")
	})
	require.Error(t, err, "a 404 is the truth, not an outage")
	assert.True(t, apierror.HasCode(err, apierror.CodeNotFound))
}

func TestGetOrFetchStopsCallingWhenCircuitOpens(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	key := NewKey("sessions", "list")
	var calls atomic.Int32

	_, err := GetOrFetch(context.Background(), c, key, fetchCounter([]string{"known"}, &calls))
	require.NoError(t, err)

	failing := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		return nil, apierror.New(apierror.CodeUnavailable, "api down")
	}

	// Three transient failures trip the breaker.
	for range 3 {
		clock.Advance(time.Minute)
		got, err := GetOrFetch(context.Background(), c, key, failing)
		require.NoError(t, err)
		assert.Equal(t, []string{"known"}, got)
	}

	before := calls.Load()
	clock.Advance(31 * time.Second)
	got, err := GetOrFetch(context.Background(), c, key, failing)
	require.NoError(t, err)
	assert.Equal(t, []string{"known"}, got)
	assert.Equal(t, before, calls.Load(), "open circuit must serve stale without fetching")
}

func TestGetOrFetchErrorsWhenCircuitOpenAndNoStaleValue(t *testing.T) {
	clock := newTestClock()
	breaker := circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithProbeInterval(time.Hour), circuit.WithClock(clock.Now))
	breaker.RecordFailure()
	c := newTestCache(clock, WithBreaker(breaker))

	_, err := GetOrFetch(context.Background(), c, NewKey("sessions", "list"), func(ctx context.Context) ([]string, error) {
		t.Fatal("fetch must not run while the circuit is open")
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.CodeUnavailable))
}

func TestGetOrFetchRejectsMismatchedType(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	key := NewKey("sessions", "list")
	var calls atomic.Int32

	_, err := GetOrFetch(context.Background(), c, key, fetchCounter([]string{"a"}, &calls))
	require.NoError(t, err)

	_, err = GetOrFetch(context.Background(), c, key, func(ctx context.Context) (int, error) { return 7, nil })
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.CodeInternal))
}

func TestRunMutationAppliesOptimisticallyAndInvalidates(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	key := NewKey("notifications", "list")
	var calls atomic.Int32

	_, err := GetOrFetch(context.Background(), c, key, fetchCounter([]string{"unread"}, &calls))
	require.NoError(t, err)

	err = RunMutation(context.Background(), c, Mutation[[]string]{
		Key:   key,
		Apply: func([]string) []string { return []string{"read"} },
		Call: func(ctx context.Context) error {
			// The projection must be visible while the call is in flight.
			v, ok := Lookup[[]string](c, key)
			assert.True(t, ok)
			assert.Equal(t, []string{"read"}, v)
			return nil
		},
	})
	require.NoError(t, err)

	// Settled mutation leaves the entry stale: next read refetches.
	_, err = GetOrFetch(context.Background(), c, key, fetchCounter([]string{"read"}, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunMutationRollsBackOnFailure(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	key := NewKey("notifications", "list")
	var calls atomic.Int32

	_, err := GetOrFetch(context.Background(), c, key, fetchCounter([]string{"unread"}, &calls))
	require.NoError(t, err)

	mutErr := RunMutation(context.Background(), c, Mutation[[]string]{
		Key:   key,
		Apply: func([]string) []string { return []string{"read"} },
		Call: func(ctx context.Context) error {
			return apierror.New(apierror.CodeUnavailable, "api down")
		},
	})
	require.Error(t, mutErr)
	assert.True(t, apierror.HasCode(mutErr, apierror.CodeUnavailable))

	v, ok := Lookup[[]string](c, key)
	require.True(t, ok)
	assert.Equal(t, []string{"unread"}, v, "failed mutation must restore the snapshot")
}

func TestRunMutationOnColdCacheSkipsProjection(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	called := false

	err := RunMutation(context.Background(), c, Mutation[[]string]{
		Key:   NewKey("notifications", "list"),
		Apply: func([]string) []string { t.Fatal("nothing to project onto"); return nil },
		Call: func(ctx context.Context) error {
			called = true
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, called, "the server call runs even with a cold cache")
}

func TestRollbackSkippedWhenValueReplaced(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	key := NewKey("sessions", "list")
	var calls atomic.Int32

	_, err := GetOrFetch(context.Background(), c, key, fetchCounter([]string{"old"}, &calls))
	require.NoError(t, err)

	mutErr := RunMutation(context.Background(), c, Mutation[[]string]{
		Key:   key,
		Apply: func([]string) []string { return []string{"optimistic"} },
		Call: func(ctx context.Context) error {
			// A background fetch lands server truth mid-mutation.
			c.store(key, []string{"server-truth"})
			return apierror.New(apierror.CodeUnavailable, "api down")
		},
	})
	require.Error(t, mutErr)

	v, ok := Lookup[[]string](c, key)
	require.True(t, ok)
	assert.Equal(t, []string{"server-truth"}, v, "rollback must not clobber newer data")
}

func TestRunMutationInvalidatesExtraKeys(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	listKey := NewKey("notifications", "list")
	statsKey := NewKey("notifications", "stats")
	var listCalls, statsCalls atomic.Int32

	_, err := GetOrFetch(context.Background(), c, listKey, fetchCounter([]string{"n"}, &listCalls))
	require.NoError(t, err)
	_, err = GetOrFetch(context.Background(), c, statsKey, fetchCounter([]string{"1 unread"}, &statsCalls))
	require.NoError(t, err)

	err = RunMutation(context.Background(), c, Mutation[[]string]{
		Key:        listKey,
		Invalidate: []Key{statsKey},
		Call:       func(ctx context.Context) error { return nil },
	})
	require.NoError(t, err)

	_, err = GetOrFetch(context.Background(), c, statsKey, fetchCounter([]string{"0 unread"}, &statsCalls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), statsCalls.Load(), "derived keys must refetch after the mutation")
}

func TestInvalidateScope(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	var a, b, other atomic.Int32

	_, _ = GetOrFetch(context.Background(), c, NewKey("bundles", "list"), fetchCounter([]string{"l"}, &a))
	_, _ = GetOrFetch(context.Background(), c, NewKey("bundles", "detail", "42"), fetchCounter([]string{"d"}, &b))
	_, _ = GetOrFetch(context.Background(), c, NewKey("sessions", "list"), fetchCounter([]string{"s"}, &other))

	c.InvalidateScope("bundles")

	_, _ = GetOrFetch(context.Background(), c, NewKey("bundles", "list"), fetchCounter([]string{"l"}, &a))
	_, _ = GetOrFetch(context.Background(), c, NewKey("bundles", "detail", "42"), fetchCounter([]string{"d"}, &b))
	_, _ = GetOrFetch(context.Background(), c, NewKey("sessions", "list"), fetchCounter([]string{"s"}, &other))

	assert.Equal(t, int32(2), a.Load())
	assert.Equal(t, int32(2), b.Load())
	assert.Equal(t, int32(1), other.Load(), "other scopes stay fresh")
}

func TestClearEmptiesCache(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	var calls atomic.Int32

	_, _ = GetOrFetch(context.Background(), c, NewKey("sessions", "list"), fetchCounter([]string{"a"}, &calls))
	require.Equal(t, 1, c.Size())

	c.Clear()
	assert.Zero(t, c.Size())

	_, ok := Lookup[[]string](c, NewKey("sessions", "list"))
	assert.False(t, ok)
}

func TestLookupTypeMismatch(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(clock)
	var calls atomic.Int32

	_, _ = GetOrFetch(context.Background(), c, NewKey("sessions", "list"), fetchCounter([]string{"a"}, &calls))

	_, ok := Lookup[int](c, NewKey("sessions", "list"))
	assert.False(t, ok)
}
