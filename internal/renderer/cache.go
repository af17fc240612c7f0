// Package renderer implements Cashew's content rendering layer (C13):
// an LRU byte-and-item-capped cache in front of internal/content, range
// slicing, MIME-aware HTML sanitization, and chunked streaming.
// Grounded on core/storage.go's diskLRU (mutex-guarded index + ordered
// eviction list) generalized from an on-disk cache into an in-memory
// one built on hashicorp/golang-lru/v2, the teacher's declared-but-
// unused cache dependency wired here rather than hand-rolled.
package renderer

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"cashew/internal/content"
	"cashew/internal/crypto"
)

const (
	defaultMaxBytes = 100 * 1024 * 1024
	defaultMaxItems = 1000
	defaultTTL      = 3600 * time.Second
)

// ContentHash aliases the shared identifier type.
type ContentHash = crypto.Hash

type cacheEntry struct {
	data      []byte
	meta      content.Metadata
	insertedAt time.Time
}

// Cache is the mutex-guarded LRU over content bytes, with a separate
// stats mutex per spec §5's locking discipline ("statistics have a
// separate mutex to avoid contention on the hot path").
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache[ContentHash, *cacheEntry]
	maxBytes int64
	curBytes int64
	ttl      time.Duration

	statsMu sync.Mutex
	hits    uint64
	misses  uint64
}

func NewCache(maxBytes int64, maxItems int, ttl time.Duration) (*Cache, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c := &Cache{maxBytes: maxBytes, ttl: ttl}
	inner, err := lru.NewWithEvict[ContentHash, *cacheEntry](maxItems, func(_ ContentHash, e *cacheEntry) {
		c.curBytes -= int64(len(e.data))
	})
	if err != nil {
		return nil, err
	}
	c.lru = inner
	return c, nil
}

// get returns a live (non-expired) cache hit, evicting the entry and
// recording a miss if it has aged past the configured TTL.
func (c *Cache) get(hash ContentHash) (*cacheEntry, bool) {
	c.mu.Lock()
	e, ok := c.lru.Get(hash)
	if ok && time.Since(e.insertedAt) > c.ttl {
		c.lru.Remove(hash)
		ok = false
	}
	c.mu.Unlock()

	c.statsMu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.statsMu.Unlock()
	return e, ok
}

// put inserts data, evicting the oldest entries if the byte budget is
// exceeded.
func (c *Cache) put(hash ContentHash, data []byte, meta content.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(hash, &cacheEntry{data: data, meta: meta, insertedAt: time.Now()})
	c.curBytes += int64(len(data))
	for c.curBytes > c.maxBytes && c.lru.Len() > 0 {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}

func (c *Cache) invalidate(hash ContentHash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(hash)
}

func (c *Cache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.curBytes = 0
}

// Stats mirrors spec §4.6's cache_stats().
type Stats struct {
	Items    int
	Bytes    int64
	MaxBytes int64
	Hits     uint64
	Misses   uint64
}

func (c *Cache) stats() Stats {
	c.mu.Lock()
	items, bytes, maxBytes := c.lru.Len(), c.curBytes, c.maxBytes
	c.mu.Unlock()

	c.statsMu.Lock()
	hits, misses := c.hits, c.misses
	c.statsMu.Unlock()

	return Stats{Items: items, Bytes: bytes, MaxBytes: maxBytes, Hits: hits, Misses: misses}
}
