package cache

import (
	"sort"
	"sync"
	"time"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
)

// PredictionCache holds recent prediction results keyed by the order
// fingerprint. Two orders differing only in size (premium, risk, reward)
// share a fingerprint and therefore a cached decision.
type PredictionCache struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.RWMutex
	entries map[string]predEntry

	metrics repository.Metrics
}

type predEntry struct {
	result   models.PredictionResult
	storedAt time.Time
}

// NewPredictionCache builds a cache with the given TTL and soft entry cap.
// Non-positive values take the defaults (300s, 1000 entries).
func NewPredictionCache(ttl time.Duration, maxEntries int, metrics repository.Metrics) *PredictionCache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &PredictionCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]predEntry),
		metrics:    metrics,
	}
}

// Get returns the cached result for an order fingerprint, if still fresh.
func (c *PredictionCache) Get(fingerprint string) (models.PredictionResult, bool) {
	c.mu.RLock()
	e, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if !ok || time.Since(e.storedAt) >= c.ttl {
		c.metrics.RecordCacheEvent("prediction", "miss")
		return models.PredictionResult{}, false
	}
	c.metrics.RecordCacheEvent("prediction", "hit")
	return e.result, true
}

// Set stores a result. When the soft cap is crossed, the oldest entries are
// evicted first until the cache is back within bounds.
func (c *PredictionCache) Set(fingerprint string, result models.PredictionResult) {
	c.mu.Lock()
	c.entries[fingerprint] = predEntry{result: result, storedAt: time.Now()}
	if len(c.entries) > c.maxEntries {
		c.evictOldestLocked(len(c.entries) - c.maxEntries)
	}
	c.mu.Unlock()
}

// Len reports the current entry count.
func (c *PredictionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops everything. Diagnostics only.
func (c *PredictionCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]predEntry)
	c.mu.Unlock()
}

func (c *PredictionCache) evictOldestLocked(n int) {
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, at: e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	for i := 0; i < n && i < len(all); i++ {
		delete(c.entries, all[i].key)
		c.metrics.RecordCacheEvent("prediction", "evict")
	}
}
