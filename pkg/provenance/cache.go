package provenance

import (
	"sort"
	"sync"
	"time"
)

// cacheItem pairs a cached aggregate with its storage time.
type cacheItem struct {
	prov     *Provenance
	storedAt time.Time
}

// provCache is a TTL-and-size-bounded cache for provenance aggregates.
// It is shared by the write worker and all read paths, so every access
// holds its own mutex. Duplicate fetches on a miss are tolerated
// (population is idempotent); map corruption is not.
type provCache struct {
	mu      sync.Mutex
	items   map[string]cacheItem
	ttl     time.Duration
	maxSize int
}

func newProvCache(ttl time.Duration, maxSize int) *provCache {
	return &provCache{
		items:   make(map[string]cacheItem),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns the cached aggregate for the memory id, expiring it on read
// when past the TTL.
func (c *provCache) Get(memoryID string) (*Provenance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[memoryID]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(item.storedAt) > c.ttl {
		delete(c.items, memoryID)
		return nil, false
	}
	return item.prov, true
}

// Put stores the aggregate, evicting the oldest ~10% when over capacity.
func (c *provCache) Put(memoryID string, p *Provenance) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[memoryID] = cacheItem{prov: p, storedAt: time.Now()}

	if c.maxSize > 0 && len(c.items) > c.maxSize {
		c.evictOldest()
	}
}

// Evict removes a single entry.
func (c *provCache) Evict(memoryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, memoryID)
}

// Len returns the number of cached aggregates.
func (c *provCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictOldest drops the oldest 10% of entries (at least one).
// Caller holds the mutex.
func (c *provCache) evictOldest() {
	type aged struct {
		id       string
		storedAt time.Time
	}

	entries := make([]aged, 0, len(c.items))
	for id, item := range c.items {
		entries = append(entries, aged{id: id, storedAt: item.storedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].storedAt.Before(entries[j].storedAt)
	})

	n := len(entries) / 10
	if n < 1 {
		n = 1
	}
	for _, e := range entries[:n] {
		delete(c.items, e.id)
	}
}
