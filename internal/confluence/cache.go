package confluence

import (
	"sync"
	"time"
)

// pageCache is a TTL cache for fetched pages. Entries expire lazily on
// read; the working set (pages under active analysis) is small enough
// that background eviction is not worth a goroutine.
type pageCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	page    Page
	expires time.Time
}

func newPageCache(ttl time.Duration) *pageCache {
	return &pageCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *pageCache) get(pageID string) (Page, bool) {
	if c.ttl <= 0 {
		return Page{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[pageID]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expires) {
		return Page{}, false
	}
	return entry.page, true
}

func (c *pageCache) put(pageID string, page Page) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[pageID] = cacheEntry{page: page, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
