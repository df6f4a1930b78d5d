package pipeline

import (
	"testing"
	"time"
)

type attributeResult struct {
	Attributes []string
}

func TestTTLCache(t *testing.T) {
	cache := NewTTLCacheWithOptions[*attributeResult](10, 100*time.Millisecond)
	defer cache.Stop()

	result := &attributeResult{Attributes: []string{"price", "brand"}}

	cache.Set("test-query", result, 1*time.Second)

	retrieved, found := cache.Get("test-query")
	if !found {
		t.Error("expected to find cached value")
	}
	if retrieved.Attributes[0] != result.Attributes[0] {
		t.Errorf("Attributes[0] = %q, want %q", retrieved.Attributes[0], result.Attributes[0])
	}

	_, found = cache.Get("non-existent")
	if found {
		t.Error("expected cache miss for non-existent key")
	}

	cache.Set("expiring", result, 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	_, found = cache.Get("expiring")
	if found {
		t.Error("expected cached item to expire")
	}

	cache.Set("to-clear", result, 1*time.Second)
	cache.Clear()
	_, found = cache.Get("to-clear")
	if found {
		t.Error("expected cache to be cleared")
	}

	stats := cache.Stats()
	if stats.Size != 0 {
		t.Errorf("expected size 0 after clear, got %d", stats.Size)
	}
}

func TestTTLCache_MaxSize(t *testing.T) {
	cache := NewTTLCacheWithOptions[*attributeResult](2, 1*time.Minute)
	defer cache.Stop()

	r1 := &attributeResult{Attributes: []string{"r1"}}
	r2 := &attributeResult{Attributes: []string{"r2"}}
	r3 := &attributeResult{Attributes: []string{"r3"}}

	cache.Set("q1", r1, 1*time.Second)
	cache.Set("q2", r2, 1*time.Second)
	cache.Set("q3", r3, 1*time.Second)

	stats := cache.Stats()
	if stats.Size > 2 {
		t.Errorf("expected size <= 2, got %d", stats.Size)
	}

	if _, found := cache.Get("q3"); !found {
		t.Error("expected newest item to be in cache")
	}
}

func TestTTLCache_HitRate(t *testing.T) {
	cache := NewTTLCache[*attributeResult]()
	defer cache.Stop()

	result := &attributeResult{Attributes: []string{"price"}}
	cache.Set("q", result, 1*time.Hour)

	cache.Get("q")            // hit
	cache.Get("q")            // hit
	cache.Get("non-existent") // miss
	cache.Get("q")            // hit

	stats := cache.Stats()
	expectedHitRate := 3.0 / 4.0
	if stats.HitRate != expectedHitRate {
		t.Errorf("expected hit rate %f, got %f", expectedHitRate, stats.HitRate)
	}
	if stats.Hits != 3 {
		t.Errorf("expected 3 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestTTLCache_StopIsIdempotent(t *testing.T) {
	cache := NewTTLCacheWithOptions[*attributeResult](10, time.Hour)
	cache.Stop()
	cache.Stop()
}

func BenchmarkTTLCache_Get(b *testing.B) {
	cache := NewTTLCache[*attributeResult]()
	defer cache.Stop()

	result := &attributeResult{Attributes: []string{"bench"}}
	cache.Set("bench-query", result, 1*time.Hour)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			cache.Get("bench-query")
		}
	})
}
