package maps

import (
	"sync"
)

const numShards = 64 // must be a power of 2

type shard[K Integer, V any] struct {
	sync.RWMutex
	m map[K]V
}

// ShardedMap spreads keys over RWMutex-protected shards by their low bits.
type ShardedMap[K Integer, V any] struct {
	shards [numShards]shard[K, V]
}

func NewShardedMap[K Integer, V any]() ConcurrentMap[K, V] {
	m := &ShardedMap[K, V]{}
	for i := 0; i < numShards; i++ {
		m.shards[i].m = make(map[K]V)
	}
	return m
}

func (m *ShardedMap[K, V]) getShard(key K) *shard[K, V] {
	return &m.shards[uint64(key)&(numShards-1)]
}

func (m *ShardedMap[K, V]) Load(key K) (V, bool) {
	shard := m.getShard(key)
	shard.RLock()
	defer shard.RUnlock()
	val, exists := shard.m[key]
	return val, exists
}

func (m *ShardedMap[K, V]) Store(key K, value V) {
	shard := m.getShard(key)
	shard.Lock()
	defer shard.Unlock()
	shard.m[key] = value
}

func (m *ShardedMap[K, V]) Delete(key K) {
	shard := m.getShard(key)
	shard.Lock()
	defer shard.Unlock()
	delete(shard.m, key)
}

func (m *ShardedMap[K, V]) LoadAndDelete(key K) (V, bool) {
	shard := m.getShard(key)
	shard.Lock()
	defer shard.Unlock()
	val, exists := shard.m[key]
	if exists {
		delete(shard.m, key)
	}
	return val, exists
}

// Range copies each shard before calling f so f may use the map.
func (m *ShardedMap[K, V]) Range(f func(key K, value V) bool) {
	for i := 0; i < numShards; i++ {
		shard := &m.shards[i]
		shard.RLock()
		keys := make([]K, 0, len(shard.m))
		values := make([]V, 0, len(shard.m))
		for k, v := range shard.m {
			keys = append(keys, k)
			values = append(values, v)
		}
		shard.RUnlock()

		for j := range keys {
			if !f(keys[j], values[j]) {
				return
			}
		}
	}
}

func (m *ShardedMap[K, V]) Len() int {
	n := 0
	for i := 0; i < numShards; i++ {
		m.shards[i].RLock()
		n += len(m.shards[i].m)
		m.shards[i].RUnlock()
	}
	return n
}
