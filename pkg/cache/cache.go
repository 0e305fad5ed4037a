// Package cache provides a small thread-safe TTL cache. It backs the
// active-kid lookup, which tolerates sub-second staleness but must not cost
// a database round-trip per append.
package cache

import (
	"sync"
	"time"
)

// TTL is a generic expiring cache, reader-friendly and writer-exclusive.
// Expired entries are dropped lazily on read; with sub-second TTLs and a
// handful of keys there is nothing worth a cleanup goroutine.
type TTL[K comparable, V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[K]entry[V]
	now   func() time.Time
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New creates a cache whose entries live for ttl.
func New[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		ttl:   ttl,
		items: make(map[K]entry[V]),
		now:   time.Now,
	}
}

// Get returns the cached value and true if present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for the cache's TTL.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate drops key immediately. Promotion calls this so the new active
// kid is observed without waiting out the TTL.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}
