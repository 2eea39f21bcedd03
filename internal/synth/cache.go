// Package synth holds the loaded-synthesizer cache and the chunked
// synthesis pipeline that drives it.
package synth

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/hubenschmidt/asr-llm-tts-poc/gateway/internal/metrics"
)

// Synth is an opaque, concurrency-safe speech synthesizer handle. Decode
// synthesizes text into PCM sub-buffers, invoking emit for each one as it
// is produced (mirroring the parallel decode iterator the handle wraps).
// Implementations must tolerate concurrent calls to Decode.
type Synth interface {
	Decode(ctx context.Context, text string, emit func([]float32) error) error
}

// Loader constructs a Synth handle for a model-config path and reports the
// model's native sample rate, read from the config's audio.sample_rate field.
type Loader func(configPath string) (Synth, int, error)

// ReadSampleRate reads audio.sample_rate from a model-config JSON file. It
// is the default building block Loader implementations use before
// constructing the underlying synthesizer.
func ReadSampleRate(configPath string) (int, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return 0, &BadConfigError{Path: configPath, Reason: err.Error()}
	}
	var cfg struct {
		Audio struct {
			SampleRate int `json:"sample_rate"`
		} `json:"audio"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return 0, &BadConfigError{Path: configPath, Reason: "not valid JSON: " + err.Error()}
	}
	if cfg.Audio.SampleRate == 0 {
		return 0, &BadConfigError{Path: configPath, Reason: "missing or invalid audio.sample_rate"}
	}
	return cfg.Audio.SampleRate, nil
}

// Handle is the shared, counted reference a consumer receives from the
// cache. It outlives eviction from the cache index — only the last holder
// dropping it matters, which in Go just means the GC keeps it alive as
// long as some caller's local variable still points to it.
type Handle struct {
	Synth      Synth
	SampleRate int
}

type cacheEntry struct {
	handle       *Handle
	lastAccessed time.Time
}

// Cache is the Synthesizer Cache: a bounded, concurrency-safe map from
// model-config path to a loaded synthesizer handle, evicting the entry
// with the smallest last-accessed timestamp when full.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	maxSize int
	load    Loader
}

// NewCache creates a cache bounded at maxSize entries, using load to
// construct a handle on a miss.
func NewCache(maxSize int, load Loader) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		load:    load,
	}
}

// GetOrLoad returns the cached handle for configPath, loading it on a miss.
// Concurrent misses for the same key may each load; the loser's handle is
// simply discarded once the winner's insert is visible, since handles are
// stateless between calls and correctness does not depend on which wins.
func (c *Cache) GetOrLoad(configPath string) (*Handle, error) {
	if h := c.touch(configPath); h != nil {
		metrics.SynthCacheHits.Inc()
		return h, nil
	}
	metrics.SynthCacheMisses.Inc()

	s, sampleRate, err := c.load(configPath)
	if err != nil {
		return nil, &ModelLoadError{Path: configPath, Cause: err}
	}
	handle := &Handle{Synth: s, SampleRate: sampleRate}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[configPath]; ok {
		existing.lastAccessed = time.Now()
		return existing.handle, nil
	}
	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[configPath] = &cacheEntry{handle: handle, lastAccessed: time.Now()}
	return handle, nil
}

func (c *Cache) touch(configPath string) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[configPath]
	if !ok {
		return nil
	}
	e.lastAccessed = time.Now()
	return e.handle
}

// evictOldestLocked removes the single entry with the smallest
// last-accessed timestamp, in one pass. Callers must hold c.mu.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.lastAccessed.Before(oldestTime) {
			oldestKey, oldestTime, first = k, e.lastAccessed, false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Len reports the number of entries currently indexed (test/ops helper).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
