package sandbox

import (
	"net/http"
	"sync"
	"time"
)

// recordedResponse is the replayable result of a completed mutation.
type recordedResponse struct {
	status int
	header http.Header
	body   []byte
}

type idempotencyEntry struct {
	response recordedResponse
	storedAt time.Time
}

// idempotencyStore keeps recorded responses keyed by method, path, and
// idempotency key. Entries expire after the configured TTL; the sweep
// runs lazily on access.
type idempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	ttl     time.Duration
	now     func() time.Time
}

func newIdempotencyStore(ttl time.Duration, now func() time.Time) *idempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &idempotencyStore{
		entries: make(map[string]idempotencyEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (is *idempotencyStore) get(key string) (recordedResponse, bool) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.sweepLocked()
	entry, ok := is.entries[key]
	if !ok {
		return recordedResponse{}, false
	}
	return entry.response, true
}

func (is *idempotencyStore) put(key string, resp recordedResponse) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.entries[key] = idempotencyEntry{response: resp, storedAt: is.now()}
}

func (is *idempotencyStore) sweepLocked() {
	cutoff := is.now().Add(-is.ttl)
	for key, entry := range is.entries {
		if entry.storedAt.Before(cutoff) {
			delete(is.entries, key)
		}
	}
}
