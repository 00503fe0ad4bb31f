// Package syncutil holds locking helpers shared by the stores and the engine.
package syncutil

import (
	"hash/fnv"
	"sync"
)

const shardCount = 256

// ShardedMutex serializes work per key using a fixed pool of mutexes.
// Distinct keys may share a shard; memory stays bounded however many
// accounts are seen.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the mutex guarding key and returns its unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := &s.shards[shardFor(key)]
	mu.Lock()
	return mu.Unlock
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
