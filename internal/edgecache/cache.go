// Package edgecache implements the CDN edge's bounded in-memory LRU: one
// mutex guarding a hashicorp/golang-lru core plus the byte/hit counters
// layered on top of it.
package edgecache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// Entry is one cached object. Size() is always the length of the Content
// stored by Set; ExpiresAt is StoredAt plus the TTL of Entry's resource class.
type Entry struct {
	CacheKey         string
	NormalizedURL    string
	OriginHost       string
	Content          []byte
	ContentType      string
	StoredAt         time.Time
	ExpiresAt        time.Time
	HitCount         int64
	LastAccessedAt   time.Time

	size int
}

// Size returns the byte length of the content stored by Set. It stays
// correct on snapshots whose Content was omitted.
func (e *Entry) Size() int {
	return e.size
}

// Stats is a point-in-time snapshot of the cache's counters.
type Stats struct {
	Hits       int64
	Misses     int64
	Total      int64
	HitRate    float64
	Items      int
	Bytes      int64
	MegaBytes  float64
}

// Cache is a fixed-capacity LRU keyed by the signature-stripped fingerprint
// of a request URL (see Key). Get, Set, Stats and Clear are O(1); Entries
// walks every entry. All operations are serialized by a single mutex, per the
// single-process concurrency model this cache is built for.
type Cache struct {
	mu          sync.Mutex
	lru         *lru.LRU[string, *Entry]
	maxSize     int
	totalBytes  int64
	hits        int64
	misses      int64

	onEvict func(*Entry) // optional instrumentation hook, e.g. Prometheus counters
}

// New builds a Cache with room for maxSize entries.
func New(maxSize int) *Cache {
	c := &Cache{maxSize: maxSize}
	l, err := lru.NewLRU[string, *Entry](maxSize, func(_ string, evicted *Entry) {
		c.totalBytes -= int64(evicted.Size())
		if c.onEvict != nil {
			c.onEvict(evicted)
		}
	})
	if err != nil {
		// Only returned for maxSize <= 0; config validation guarantees
		// EdgeCacheMaxSize >= 100 before this is ever called.
		panic(err)
	}
	c.lru = l
	return c
}

// OnEvict registers a callback invoked (under the cache's lock) whenever an
// entry leaves the cache: evicted by capacity pressure, purged as expired by
// Get, or dropped by Clear. Intended for metrics wiring at startup, before
// any traffic.
func (c *Cache) OnEvict(fn func(*Entry)) {
	c.onEvict = fn
}

// Get looks up url's cache key. On hit it promotes the entry to
// most-recently-used, increments HitCount, stamps LastAccessedAt, and counts
// a hit, returning a copy of the entry as of this call. An entry whose
// ExpiresAt has passed is purged and treated as a miss, never returned to
// the caller.
func (c *Cache) Get(rawURL string) (*Entry, bool) {
	key := Key(rawURL)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		// Remove runs the eviction callback, which adjusts totalBytes.
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}

	entry.HitCount++
	entry.LastAccessedAt = time.Now()
	c.hits++
	snapshot := *entry
	return &snapshot, true
}

// Set stores content under url's cache key with the given content type and
// TTL, replacing any existing entry for that key and evicting
// least-recently-used entries as needed to stay within maxSize.
func (c *Cache) Set(rawURL string, content []byte, contentType string, ttl time.Duration) *Entry {
	key := Key(rawURL)
	now := time.Now()

	entry := &Entry{
		CacheKey:       key,
		NormalizedURL:  key,
		Content:        content,
		ContentType:    contentType,
		StoredAt:       now,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
		size:           len(content),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(key); ok {
		c.totalBytes -= int64(old.Size())
	}
	c.lru.Add(key, entry)
	c.totalBytes += int64(entry.Size())

	return entry
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Total:     total,
		HitRate:   hitRate,
		Items:     c.lru.Len(),
		Bytes:     c.totalBytes,
		MegaBytes: float64(c.totalBytes) / (1024 * 1024),
	}
}

// Clear drops every entry and resets all counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.totalBytes = 0
	c.hits = 0
	c.misses = 0
}

// Entries returns a snapshot of every live entry's metadata, most-recently-
// used first, for dashboard introspection. It never copies Content unless
// includeContent is true.
func (c *Cache) Entries(includeContent bool) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.lru.Keys()
	out := make([]Entry, 0, len(keys))
	// Keys() returns oldest-to-newest; reverse for most-recent-first.
	for i := len(keys) - 1; i >= 0; i-- {
		entry, ok := c.lru.Peek(keys[i])
		if !ok {
			continue
		}
		snapshot := *entry
		if !includeContent {
			snapshot.Content = nil
		}
		out = append(out, snapshot)
	}
	return out
}

// EntryByKey returns a snapshot of a single entry by its cache key, for the
// /cache/entries/{id} introspection endpoint.
func (c *Cache) EntryByKey(key string, includeContent bool) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Peek(key)
	if !ok {
		return Entry{}, false
	}
	snapshot := *entry
	if !includeContent {
		snapshot.Content = nil
	}
	return snapshot, true
}
