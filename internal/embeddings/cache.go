package embeddings

import (
	"sync"
	"time"
)

type cacheEntry struct {
	vector    []float64
	expiresAt time.Time
}

// Cache is a TTL map from embedding key to vector. Expired entries are
// evicted lazily on read; writes always overwrite and reset the TTL.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry

	hits   int64
	misses int64
}

// NewCache creates a cache with the given entry lifetime.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached vector for key, if present and fresh. An
// expired entry is removed and reported as a miss.
func (c *Cache) Get(key string, now time.Time) ([]float64, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && now.Before(e.expiresAt) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return e.vector, true
	}

	c.mu.Lock()
	if ok {
		// Re-check under the write lock: a concurrent Put may have
		// refreshed the entry.
		if e2, still := c.entries[key]; still && now.After(e2.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.misses++
	c.mu.Unlock()
	return nil, false
}

// Put stores the vector under key with a fresh TTL.
func (c *Cache) Put(key string, vector []float64, now time.Time) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{vector: vector, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *Cache) HitRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}
