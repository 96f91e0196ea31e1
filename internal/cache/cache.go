// Package cache provides a bounded TTL cache for market snapshots and
// analyzed opportunities.
//
// Entries carry their storage time; anything older than the TTL is treated as
// absent on read and lazily dropped. When the cache is full, Put evicts the
// entry with the oldest storage time. The engine owns both cache instances;
// the single mutex only guards against scanner workers reading while the
// scheduler writes.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

const (
	DefaultTTL     = 60 * time.Second
	DefaultMaxSize = 200
)

// Entry wraps a cached value with its storage timestamp.
type Entry[T any] struct {
	Value    T
	StoredAt time.Time
}

// Cache is a bounded string-keyed TTL cache.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]Entry[T]
	ttl     time.Duration
	maxSize int

	now func() time.Time // injectable for tests
}

// New creates a cache with the given TTL and size bound. Non-positive
// arguments fall back to the defaults.
func New[T any](ttl time.Duration, maxSize int) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache[T]{
		entries: make(map[string]Entry[T]),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the cached value for key, or ok=false if the key is missing
// or the entry has expired. Expired entries are removed on access.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.StoredAt) > c.ttl {
		delete(c.entries, key)
		return zero, false
	}
	return e.Value, true
}

// Put inserts or replaces the value for key. If the cache is at capacity and
// key is new, the entry with the oldest StoredAt is evicted first.
// Returns ErrValidation for an empty key.
func (c *Cache[T]) Put(key string, value T) error {
	if key == "" {
		return fmt.Errorf("%w: empty cache key", types.ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.entries[key] = Entry[T]{Value: value, StoredAt: c.now()}
	return nil
}

// evictOldestLocked removes the entry with the smallest StoredAt. Ties break
// on key order so eviction is deterministic. The map stays small (maxSize
// defaults to 200) so a linear scan is fine.
func (c *Cache[T]) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.StoredAt.Before(oldest) || (e.StoredAt.Equal(oldest) && k < oldestKey) {
			oldestKey = k
			oldest = e.StoredAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Invalidate removes a single key.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry[T])
}

// Len returns the current number of entries, including not-yet-collected
// expired ones.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SetClock overrides the time source. Test hook.
func (c *Cache[T]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
