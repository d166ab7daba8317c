package server

import (
	"context"
	"sync"
	"time"

	"github.com/ctolnik/activity-tracker/server/report"
)

type usageEntry struct {
	summary  report.Summary
	cachedAt time.Time
}

// UsageCache holds computed usage summaries with a TTL, keyed by query.
type UsageCache struct {
	mu      sync.RWMutex
	entries map[string]usageEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewUsageCache creates a new usage cache with specified TTL. A zero TTL
// disables caching.
func NewUsageCache(ttl time.Duration) *UsageCache {
	return &UsageCache{
		entries: make(map[string]usageEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached summary for key if available and not expired,
// otherwise computes it with fetch.
func (uc *UsageCache) Get(ctx context.Context, key string, fetch func(context.Context) (report.Summary, error)) (report.Summary, error) {
	if uc.ttl <= 0 {
		return fetch(ctx)
	}

	// Try read lock first
	uc.mu.RLock()
	if e, ok := uc.entries[key]; ok && uc.now().Sub(e.cachedAt) < uc.ttl {
		uc.mu.RUnlock()
		return e.summary, nil
	}
	uc.mu.RUnlock()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine might have refreshed)
	if e, ok := uc.entries[key]; ok && uc.now().Sub(e.cachedAt) < uc.ttl {
		return e.summary, nil
	}

	summary, err := fetch(ctx)
	if err != nil {
		return report.Summary{}, err
	}

	uc.evictExpired()
	uc.entries[key] = usageEntry{summary: summary, cachedAt: uc.now()}
	return summary, nil
}

// evictExpired drops stale entries. Called with uc.mu held.
func (uc *UsageCache) evictExpired() {
	for key, e := range uc.entries {
		if uc.now().Sub(e.cachedAt) >= uc.ttl {
			delete(uc.entries, key)
		}
	}
}

// Invalidate clears the cache
func (uc *UsageCache) Invalidate() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.entries = make(map[string]usageEntry)
}
