package weights

import (
	"maps"
	"sync"
	"time"
)

type cacheKey struct {
	chatID     int64
	windowDays int
}

type cacheEntry struct {
	weights   Weights
	expiresAt time.Time
}

// ttlCache holds computed weight maps until they expire. Expired entries are
// dropped on read.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[cacheKey]cacheEntry
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl, entries: make(map[cacheKey]cacheEntry)}
}

func (c *ttlCache) get(key cacheKey, now time.Time) (Weights, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return maps.Clone(e.weights), true
}

func (c *ttlCache) put(key cacheKey, w Weights, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{weights: maps.Clone(w), expiresAt: now.Add(c.ttl)}
}

func (c *ttlCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
