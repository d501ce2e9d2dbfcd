package cache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const (
	// ShardCount is the number of shards. Must be a power of 2.
	ShardCount = 16

	shardMask = ShardCount - 1
)

// Hasher computes the hash used for shard selection.
type Hasher[K any] func(K) uint64

// StringHasher computes the FNV-1a hash of a string key.
func StringHasher(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s)) // fnv.Write never returns an error
	return h.Sum64()
}

// Uint64Hasher returns the key itself as the hash.
func Uint64Hasher(u uint64) uint64 {
	return u
}

// Sharded is a concurrent insert-or-find map.
//
// A key is stored at most once: the first LoadOrStore for a key wins and
// every later call for that key receives the winner.
type Sharded[K comparable, V any] struct {
	shards [ShardCount]*shard[K, V]
	hasher Hasher[K]

	hits   atomic.Uint64
	misses atomic.Uint64
	races  atomic.Uint64
}

type shard[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// NewSharded creates an empty sharded map.
func NewSharded[K comparable, V any](hasher Hasher[K]) *Sharded[K, V] {
	m := &Sharded[K, V]{hasher: hasher}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{entries: make(map[K]V)}
	}
	return m
}

func (m *Sharded[K, V]) shardFor(key K) *shard[K, V] {
	return m.shards[m.hasher(key)&shardMask]
}

// Load returns the value stored for key under the shard read lock.
func (m *Sharded[K, V]) Load(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	v, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return v, ok
}

// LoadOrStore stores value for key unless a value is already present.
// It returns the value held by the map afterwards and whether that value
// was already there. A true loaded result is counted as a lost race.
func (m *Sharded[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[key]; ok {
		m.races.Add(1)
		return existing, true
	}
	s.entries[key] = value
	return value, false
}

// Delete removes key and returns its value.
func (m *Sharded[K, V]) Delete(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	return v, ok
}

// Range calls fn for every entry until fn returns false. Each shard is
// read-locked while it is visited, so fn must not modify the map.
func (m *Sharded[K, V]) Range(fn func(K, V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.entries {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Drain empties the map and returns the removed values.
func (m *Sharded[K, V]) Drain() []V {
	var out []V
	for _, s := range m.shards {
		s.mu.Lock()
		for _, v := range s.entries {
			out = append(out, v)
		}
		s.entries = make(map[K]V)
		s.mu.Unlock()
	}
	return out
}

// Len returns the number of entries across all shards.
func (m *Sharded[K, V]) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// ShardLen returns the number of entries in each shard.
func (m *Sharded[K, V]) ShardLen() [ShardCount]int {
	var lens [ShardCount]int
	for i, s := range m.shards {
		s.mu.RLock()
		lens[i] = len(s.entries)
		s.mu.RUnlock()
	}
	return lens
}

// Stats returns the current counters.
func (m *Sharded[K, V]) Stats() Stats {
	hits, misses := m.hits.Load(), m.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Len:     m.Len(),
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
		Races:   m.races.Load(),
	}
}

// ResetStats zeroes the counters.
func (m *Sharded[K, V]) ResetStats() {
	m.hits.Store(0)
	m.misses.Store(0)
	m.races.Store(0)
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the soft limit (LRU only).
	Capacity int
	// Hits and Misses count lookups.
	Hits   uint64
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0 when nothing was looked up.
	HitRate float64
	// Races counts LoadOrStore calls that found a value already stored
	// (Sharded only).
	Races uint64
	// Evictions counts entries removed by the soft limit (LRU only).
	Evictions uint64
}
