// Package cache implements the Response Cache: an LRU+TTL map from a
// content fingerprint to a rendered WAV result, verifying the original
// (text, language, voice) tuple on lookup to resolve hash collisions
// safely (spec's own named fix, per DESIGN.md).
package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/metrics"
)

// Entry is one cached synthesis result.
type Entry struct {
	AudioBase64 string
	SampleRate  int
	DurationMs  int64
	CachedAt    time.Time

	text, language, voice string
}

type record struct {
	key   uint64
	entry Entry
	elem  *list.Element
}

// Cache is a bounded LRU with per-entry TTL, keyed by a 64-bit hash of
// (text, language, voice) and verified against the stored tuple on read.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	byKey    map[uint64]*record

	hits, misses int64
}

// New creates a response cache with the given capacity and TTL.
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		byKey:    make(map[uint64]*record),
	}
}

// Key computes the 64-bit fingerprint for (text, language, voice). Callers
// must also pass the same tuple to Put/Get so collisions are caught.
func Key(text, language, voice string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(voice))
	return h.Sum64()
}

// Get returns the cached entry for (text, language, voice) if present,
// within TTL, and tuple-verified; otherwise it reports a miss.
func (c *Cache) Get(text, language, voice string) (Entry, bool) {
	key := Key(text, language, voice)

	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.byKey[key]
	if !ok {
		c.misses++
		metrics.ResponseCacheMisses.Inc()
		return Entry{}, false
	}
	if !tupleMatches(r.entry, text, language, voice) || time.Since(r.entry.CachedAt) >= c.ttl {
		c.misses++
		metrics.ResponseCacheMisses.Inc()
		return Entry{}, false
	}

	c.order.MoveToFront(r.elem)
	c.hits++
	metrics.ResponseCacheHits.Inc()
	return r.entry, true
}

func tupleMatches(e Entry, text, language, voice string) bool {
	return e.text == text && e.language == language && e.voice == voice
}

// Put inserts or overwrites the entry for (text, language, voice), evicting
// the least-recently-used entry if the cache is at capacity. A put
// overwrites any stale hash-colliding entry at the same key.
func (c *Cache) Put(text, language, voice string, entry Entry) {
	entry.text, entry.language, entry.voice = text, language, voice
	entry.CachedAt = time.Now()
	key := Key(text, language, voice)

	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.byKey[key]; ok {
		r.entry = entry
		c.order.MoveToFront(r.elem)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldestLocked()
	}

	r := &record{key: key, entry: entry}
	r.elem = c.order.PushFront(r)
	c.byKey[key] = r
}

func (c *Cache) evictOldestLocked() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	r := oldest.Value.(*record)
	c.order.Remove(oldest)
	delete(c.byKey, r.key)
}

// Stats reports cumulative hit/miss counts for the metrics collaborator.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
