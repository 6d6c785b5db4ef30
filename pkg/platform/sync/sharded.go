// Package sync provides sharded locking primitives for key-addressed
// state shared across goroutines.
package sync

import (
	"sync"
)

// ShardedRWMutex provides fine-grained read/write locking using sharded
// mutexes. Instead of a single global lock, operations are distributed
// across N shards based on a hash of the resource key, so concurrent
// readers of unrelated keys rarely contend.
type ShardedRWMutex struct {
	shards [32]sync.RWMutex
}

// NewShardedRWMutex creates a new ShardedRWMutex with 32 shards.
func NewShardedRWMutex() *ShardedRWMutex {
	return &ShardedRWMutex{}
}

// Lock acquires the write lock for the given key's shard.
// Empty keys default to shard 0.
func (m *ShardedRWMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the write lock for the given key's shard.
func (m *ShardedRWMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// RLock acquires the read lock for the given key's shard.
func (m *ShardedRWMutex) RLock(key string) {
	m.shards[m.shardFor(key)].RLock()
}

// RUnlock releases the read lock for the given key's shard.
func (m *ShardedRWMutex) RUnlock(key string) {
	m.shards[m.shardFor(key)].RUnlock()
}

// shardFor returns the shard index for the given key.
func (m *ShardedRWMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % uint32(len(m.shards)))
}

// hashString provides a simple multiplicative hash for shard selection.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
