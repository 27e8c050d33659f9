package registry

import (
	"sync"
	"time"
)

// overrideEntry holds a fetched override with a timestamp for TTL
// expiration. A nil override is a valid cached answer ("no override
// seeded"), so absence is cached too and Redis is not hit on every call.
type overrideEntry struct {
	override  *RuntimeOverride
	fetchedAt time.Time
}

// overrideCache is a thread-safe in-memory cache with TTL expiration.
// Expired entries are cleaned up lazily on get(); no background goroutine.
type overrideCache struct {
	mu      sync.RWMutex
	entries map[string]*overrideEntry
	ttl     time.Duration
}

func newOverrideCache(ttl time.Duration) *overrideCache {
	return &overrideCache{
		entries: make(map[string]*overrideEntry),
		ttl:     ttl,
	}
}

func (c *overrideCache) get(topicID string) (*RuntimeOverride, bool) {
	c.mu.RLock()
	entry, ok := c.entries[topicID]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		// Expired; clean up lazily.
		// Re-check under write lock: a concurrent set() may have replaced
		// the entry with a fresh one between RUnlock and Lock.
		c.mu.Lock()
		if current, ok := c.entries[topicID]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, topicID)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.override, true
}

func (c *overrideCache) set(topicID string, override *RuntimeOverride) {
	c.mu.Lock()
	c.entries[topicID] = &overrideEntry{
		override:  override,
		fetchedAt: time.Now(),
	}
	c.mu.Unlock()
}
