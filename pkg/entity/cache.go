package entity

import (
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultTTL is how long an extraction result stays valid.
const DefaultTTL = time.Hour

// Cache stores extraction results by Key.
type Cache interface {
	// Get returns the entities stored under key. Expired entries are misses.
	Get(ctx context.Context, key string) ([]Entity, bool, error)

	// Set stores entities under key.
	Set(ctx context.Context, key string, entities []Entity) error
}

type cacheEntry struct {
	entities []Entity
	stored   time.Time
}

// MemoryCache is an in-process Cache. Expired entries are never returned and
// are dropped on the next Set; there is no background sweeper.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewMemoryCache creates a cache with the given TTL. A nil now uses time.Now.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns a copy of the live entry for key.
func (c *MemoryCache) Get(_ context.Context, key string) ([]Entity, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.expired(entry, c.now()) {
		return nil, false, nil
	}
	return slices.Clone(entry.entities), true, nil
}

// Set stores entities and purges every expired entry.
func (c *MemoryCache) Set(_ context.Context, key string, entities []Entity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, entry := range c.entries {
		if c.expired(entry, now) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{entities: slices.Clone(entities), stored: now}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) expired(entry cacheEntry, now time.Time) bool {
	return now.Sub(entry.stored) >= c.ttl
}

var _ Cache = (*MemoryCache)(nil)
