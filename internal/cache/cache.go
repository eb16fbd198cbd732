// Package cache provides the TTL response cache used in front of expensive
// read paths, primarily node listing.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores small serialized responses under string keys with a TTL.
// Implementations must be safe for concurrent use; last writer wins on Set.
type Cache interface {
	// Set stores value under key, expiring ttl from now.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the live value for key. The second result is false when no
	// live entry exists, signalling the caller to continue to normal handling.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Delete removes a single key.
	Delete(ctx context.Context, key string) error
	// Clear removes all entries. Tests use it for isolation.
	Clear(ctx context.Context) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the in-process Cache backend. Expiration is lazy: entries
// are checked at read time and expired-but-unread entries stay in memory
// until overwritten. The cache protects read amplification, it does not
// bound memory.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}
