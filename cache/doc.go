// Package cache provides the two caches used by the frame compiler.
//
// # Sharded[K, V]
//
// A concurrent map with insert-or-find semantics, spread over 16 RW-locked
// shards. Readers take a shard read lock only. Writers never hold a lock
// while producing a value: they build it first and then call LoadOrStore,
// which keeps the first stored value and hands it back to every later
// writer. The caller discards its own value when loaded is true.
//
//	m := cache.NewSharded[Key, *Pipeline](keyHash)
//	if p, ok := m.Load(k); ok {
//	    return p
//	}
//	p := build(k)
//	if actual, loaded := m.LoadOrStore(k, p); loaded {
//	    p.Destroy()
//	    return actual
//	}
//	return p
//
// # LRU[K, V]
//
// A mutex-guarded cache with a soft limit. When the limit is exceeded the
// least recently used quarter of the entries is evicted and handed to an
// optional eviction callback.
//
// Both caches are safe for concurrent use and must not be copied.
package cache
