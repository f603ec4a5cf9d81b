package register

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a fetched register page is reused. Within one
// scan many amendments point at the same base act, and its text and register
// pages do not change between those lookups.
const DefaultCacheTTL = 10 * time.Minute

type cacheEntry struct {
	page      []byte
	expiresAt time.Time
}

// PageCache is a thread-safe, in-memory TTL cache of register pages keyed by
// URL. Entries are lazily expired on access. A zero TTL disables caching.
type PageCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	defaultTTL time.Duration
}

// NewPageCache creates a cache with the given TTL.
func NewPageCache(defaultTTL time.Duration) *PageCache {
	return &PageCache{
		entries:    make(map[string]cacheEntry),
		defaultTTL: defaultTTL,
	}
}

// Get returns the cached page for url, if present and not expired.
func (pageCache *PageCache) Get(url string) ([]byte, bool) {
	pageCache.mu.RLock()
	entry, exists := pageCache.entries[url]
	pageCache.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		pageCache.mu.Lock()
		// Re-check in case another goroutine already replaced it.
		if current, stillExists := pageCache.entries[url]; stillExists && time.Now().After(current.expiresAt) {
			delete(pageCache.entries, url)
		}
		pageCache.mu.Unlock()
		return nil, false
	}

	return entry.page, true
}

// Set stores a page with the default TTL.
func (pageCache *PageCache) Set(url string, page []byte) {
	if pageCache.defaultTTL <= 0 {
		return
	}
	pageCache.mu.Lock()
	pageCache.entries[url] = cacheEntry{
		page:      page,
		expiresAt: time.Now().Add(pageCache.defaultTTL),
	}
	pageCache.mu.Unlock()
}

// Invalidate removes url from the cache.
func (pageCache *PageCache) Invalidate(url string) {
	pageCache.mu.Lock()
	delete(pageCache.entries, url)
	pageCache.mu.Unlock()
}

// Len returns the number of entries, including ones that have expired but
// not yet been evicted.
func (pageCache *PageCache) Len() int {
	pageCache.mu.RLock()
	count := len(pageCache.entries)
	pageCache.mu.RUnlock()
	return count
}
