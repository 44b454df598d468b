package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Cache is a TTL key/value store for aggregation snapshots and exchange
// rates. Injected explicitly so lifecycle and teardown stay testable
// instead of hiding behind process-wide singletons.
type Cache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, val any, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

type memoryEntry struct {
	payload []byte
	expires time.Time
}

// MemoryCache is the in-process fallback used when redis is not
// configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string, dest any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return false
	}
	return json.Unmarshal(entry.payload, dest) == nil
}

func (c *MemoryCache) Set(_ context.Context, key string, val any, ttl time.Duration) {
	payload, err := json.Marshal(val)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{payload: payload, expires: time.Now().Add(ttl)}
}

func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
