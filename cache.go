package smallbin

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// cacheItem is one resident plaintext payload
type cacheItem struct {
	data         []byte
	expiresAt    time.Time
	lastAccessed time.Time
}

// CacheStats is a point-in-time snapshot of cache counters
type CacheStats struct {
	Hits   int64
	Misses int64
	Items  int
	Bytes  int64
}

// Cache is a bounded plaintext read cache with per-item TTL and
// least-recently-used eviction. Unlike the rest of the engine it is
// safe for concurrent use: one mutex guards the item table, so an
// insert and the evictions it triggers happen atomically. The byte
// bound is enforced before each insert, which means the resident total
// can exceed the bound by at most one item until the next Put.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*cacheItem
	curBytes int64

	maxBytes int64
	ttl      time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	logger *zap.Logger
	now    func() time.Time
}

// NewCache creates a cache bounded to maxBytes with the given per-item
// TTL
func NewCache(maxBytes int64, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		items:    make(map[string]*cacheItem),
		maxBytes: maxBytes,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns a copy of the cached payload for id. An expired item is
// dropped and counts as a miss; a hit refreshes its recency.
func (c *Cache) Get(id string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	now := c.now()
	if now.After(item.expiresAt) {
		c.removeLocked(id)
		c.misses.Add(1)
		return nil, false
	}

	item.lastAccessed = now
	c.hits.Add(1)
	return cloneBytes(item.data), true
}

// Put stores a copy of data under id. Empty payloads are ignored and
// items larger than the whole cache are refused. Before the insert,
// expired items are dropped and least-recently-used items are evicted
// one at a time while the resident total exceeds the bound.
func (c *Cache) Put(id string, data []byte) {
	if len(data) == 0 {
		return
	}
	size := int64(len(data))
	if size > c.maxBytes {
		c.logger.Debug("cache refused oversized item",
			zap.String("id", id),
			zap.Int64("size", size),
			zap.Int64("max", c.maxBytes))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeExpiredLocked()
	for c.curBytes > c.maxBytes && len(c.items) > 0 {
		c.evictOldestLocked()
	}

	if _, ok := c.items[id]; ok {
		c.removeLocked(id)
	}

	now := c.now()
	c.items[id] = &cacheItem{
		data:         cloneBytes(data),
		expiresAt:    now.Add(c.ttl),
		lastAccessed: now,
	}
	c.curBytes += size
}

// Remove drops the payload for id, if resident
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
}

// RemoveExpired sweeps out every expired item and returns how many
// were dropped
func (c *Cache) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeExpiredLocked()
}

// Len returns the number of resident items
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	items := len(c.items)
	bytes := c.curBytes
	c.mu.Unlock()

	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Items:  items,
		Bytes:  bytes,
	}
}

// removeLocked drops one item. Callers hold the mutex.
func (c *Cache) removeLocked(id string) {
	if item, ok := c.items[id]; ok {
		c.curBytes -= int64(len(item.data))
		delete(c.items, id)
	}
}

// removeExpiredLocked drops every expired item. Callers hold the mutex.
func (c *Cache) removeExpiredLocked() int {
	now := c.now()
	removed := 0
	for id, item := range c.items {
		if now.After(item.expiresAt) {
			c.removeLocked(id)
			removed++
		}
	}
	return removed
}

// evictOldestLocked drops the least-recently-used item. Callers hold
// the mutex and have checked the table is non-empty.
func (c *Cache) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	first := true
	for id, item := range c.items {
		if first || item.lastAccessed.Before(oldest) {
			oldestID = id
			oldest = item.lastAccessed
			first = false
		}
	}
	c.logger.Debug("cache evicted least-recently-used item", zap.String("id", oldestID))
	c.removeLocked(oldestID)
}
