package cmap

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is the default number of shards.
const DefaultShardCount = 16

// Map is a concurrent-safe sharded map with string keys.
type Map[V any] struct {
	shards    []*shard[V]
	shardMask uint32
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// New creates a new sharded map with the default shard count.
func New[V any]() *Map[V] {
	return NewWithShards[V](DefaultShardCount)
}

// NewWithShards creates a sharded map with shardCount shards.
// shardCount must be a power of 2; other values fall back to the default.
func NewWithShards[V any](shardCount int) *Map[V] {
	if shardCount <= 0 || shardCount&(shardCount-1) != 0 {
		shardCount = DefaultShardCount
	}

	m := &Map[V]{
		shards:    make([]*shard[V], shardCount),
		shardMask: uint32(shardCount - 1),
	}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	return m.shards[murmur3.Sum32([]byte(key))&m.shardMask]
}

// Get retrieves a value by key.
func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores a key-value pair.
func (m *Map[V]) Set(key string, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
}

// Delete removes a key.
func (m *Map[V]) Delete(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Pop removes a key and returns the value it held.
func (m *Map[V]) Pop(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	return v, ok
}

// GetOrCreate returns the value for key, calling create to build and
// store it when absent. create runs at most once per absent key.
func (m *Map[V]) GetOrCreate(key string, create func() V) V {
	s := m.shardFor(key)

	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.items[key]; ok {
		return v
	}
	v = create()
	s.items[key] = v
	return v
}

// Count returns the total number of items.
func (m *Map[V]) Count() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every entry until fn returns false.
// The view is not a consistent snapshot across shards.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Values returns all values. Callers may mutate the map while iterating
// over the returned slice.
func (m *Map[V]) Values() []V {
	out := make([]V, 0, m.Count())
	m.Range(func(_ string, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Drain removes every entry and returns the removed values.
func (m *Map[V]) Drain() []V {
	var out []V
	for _, s := range m.shards {
		s.mu.Lock()
		for _, v := range s.items {
			out = append(out, v)
		}
		s.items = make(map[string]V)
		s.mu.Unlock()
	}
	return out
}
