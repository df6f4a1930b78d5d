package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// CacheStats reports cache performance counters.
type CacheStats struct {
	Size        int     `json:"size"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	HitRate     float64 `json:"hit_rate"`
	MemoryUsage int64   `json:"memory_bytes"`
}

// TTLCache is a generic, size-bounded, TTL-evicting cache keyed by a
// sha256 hash of the lookup string. It backs the pipeline attribute cache
// (AttributeAnalyzer results keyed by product query) and the session
// package's pipeline-state cache.
type TTLCache[V any] struct {
	mu              sync.RWMutex
	items           map[string]*cacheItem[V]
	stats           CacheStats
	maxSize         int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// NewTTLCache creates a cache with default size (1000 entries) and cleanup
// interval (5 minutes).
func NewTTLCache[V any]() *TTLCache[V] {
	return NewTTLCacheWithOptions[V](1000, 5*time.Minute)
}

// NewTTLCacheWithOptions creates a cache with custom capacity and
// background-cleanup cadence.
func NewTTLCacheWithOptions[V any](maxSize int, cleanupInterval time.Duration) *TTLCache[V] {
	c := &TTLCache[V]{
		items:           make(map[string]*cacheItem[V]),
		maxSize:         maxSize,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go c.cleanupRoutine()

	return c
}

// Get retrieves a cached value. The bool is false on miss or expiry.
// Takes the write lock: the hit/miss counters mutate on every lookup.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	hashed := hashKey(key)
	item, found := c.items[hashed]
	if !found {
		c.stats.Misses++
		return zero, false
	}

	if time.Now().After(item.expiresAt) {
		c.stats.Misses++
		return zero, false
	}

	c.stats.Hits++
	c.updateHitRate()
	return item.value, true
}

// Set stores a value under key with the given TTL, evicting expired (and
// if still over capacity, oldest) entries first.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.maxSize {
		c.evictExpired()
		if len(c.items) >= c.maxSize {
			c.evictOldest()
		}
	}

	hashed := hashKey(key)
	c.items[hashed] = &cacheItem[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}

	c.stats.Size = len(c.items)
	c.updateMemoryUsage()
}

// Clear removes all cached values.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*cacheItem[V])
	c.stats.Size = 0
	c.stats.MemoryUsage = 0
}

// Stats returns a snapshot of cache performance counters.
func (c *TTLCache[V]) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = len(c.items)
	return stats
}

// Stop halts the background cleanup goroutine. Safe to call more than once.
func (c *TTLCache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

func hashKey(key string) string {
	h := sha256.New()
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (c *TTLCache[V]) cleanupRoutine() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.evictExpired()
			c.stats.Size = len(c.items)
			c.updateMemoryUsage()
			c.mu.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *TTLCache[V]) evictExpired() {
	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
			c.stats.Evictions++
		}
	}
}

func (c *TTLCache[V]) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, item := range c.items {
		if oldestTime.IsZero() || item.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.expiresAt
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.stats.Evictions++
	}
}

func (c *TTLCache[V]) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}

func (c *TTLCache[V]) updateMemoryUsage() {
	c.stats.MemoryUsage = int64(len(c.items) * 1024)
}
