package cache

import (
	"slices"
	"sync"
)

// LRU is a thread-safe cache with a soft limit.
// When an insertion exceeds the limit, the oldest quarter of the entries is
// evicted. A limit of 0 means unlimited.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	entries   map[K]*lruEntry[V]
	softLimit int
	tick      int64
	onEvict   func(K, V)

	hits      uint64
	misses    uint64
	evictions uint64
}

type lruEntry[V any] struct {
	value V
	atime int64
}

// NewLRU creates a cache with the given soft limit. onEvict, if non-nil, is
// called with the cache lock held for every entry removed by the limit or
// by Clear.
func NewLRU[K comparable, V any](softLimit int, onEvict func(K, V)) *LRU[K, V] {
	return &LRU[K, V]{
		entries:   make(map[K]*lruEntry[V]),
		softLimit: softLimit,
		onEvict:   onEvict,
	}
}

// Get returns the value for key and marks it as recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.tick++
	e.atime = c.tick
	return e.value, true
}

// GetOrCreate returns the cached value for key or stores the result of
// create. create runs under the cache lock; a failed create stores nothing.
func (c *LRU[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if e, ok := c.entries[key]; ok {
		c.hits++
		e.atime = c.tick
		return e.value, nil
	}
	c.misses++

	value, err := create()
	if err != nil {
		return value, err
	}
	c.entries[key] = &lruEntry[V]{value: value, atime: c.tick}
	if c.softLimit > 0 && len(c.entries) > c.softLimit {
		c.evictOldest()
	}
	return value, nil
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes every entry.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.onEvict != nil {
		for k, e := range c.entries {
			c.onEvict(k, e.value)
		}
	}
	c.entries = make(map[K]*lruEntry[V])
	c.tick = 0
}

// Stats returns the cache counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Len:       len(c.entries),
		Capacity:  c.softLimit,
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   rate,
		Evictions: c.evictions,
	}
}

// evictOldest shrinks the cache to three quarters of the soft limit.
// Caller must hold c.mu.
func (c *LRU[K, V]) evictOldest() {
	target := max(c.softLimit*3/4, 1)
	n := len(c.entries) - target
	if n <= 0 {
		return
	}

	type aged struct {
		key   K
		atime int64
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, atime: e.atime})
	}
	slices.SortFunc(all, func(a, b aged) int {
		switch {
		case a.atime < b.atime:
			return -1
		case a.atime > b.atime:
			return 1
		}
		return 0
	})
	for _, a := range all[:n] {
		if c.onEvict != nil {
			c.onEvict(a.key, c.entries[a.key].value)
		}
		delete(c.entries, a.key)
		c.evictions++
	}
}
