package syncutil

import (
	"sync"
	"testing"
)

func TestShardedMutex_SerializesSameKey(t *testing.T) {
	var m ShardedMutex
	var wg sync.WaitGroup
	counter := 0

	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock := m.Lock("MULE_RINGLEADER_01")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != n {
		t.Fatalf("expected %d increments, got %d", n, counter)
	}
}

func TestShardedMutex_StableShard(t *testing.T) {
	if shardFor("MULE_BLR_001") != shardFor("MULE_BLR_001") {
		t.Fatal("same key must map to the same shard")
	}
	if s := shardFor(""); s >= shardCount {
		t.Fatalf("shard %d out of range", s)
	}
}
