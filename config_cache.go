package flagdeck

import (
	"context"
	"sync"
)

// ConfigCache is a cache API used to make custom cache implementations.
// The stored value is the JSON text of the serialized config entry.
// Implementations may be shared across processes; readers use the ETag
// stored inside the entry as the source of truth.
type ConfigCache interface {
	// Get reads the configuration from the cache.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes the configuration into the cache.
	Set(ctx context.Context, key string, value []byte) error
}

// InMemoryConfigCache is a process-local ConfigCache implementation.
type InMemoryConfigCache struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewInMemoryConfigCache creates an in-memory cache implementation used
// to store the fetched configurations.
func NewInMemoryConfigCache() *InMemoryConfigCache {
	return &InMemoryConfigCache{items: map[string][]byte{}}
}

// Get reads the configuration from the cache.
func (cache *InMemoryConfigCache) Get(ctx context.Context, key string) ([]byte, error) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	return cache.items[key], nil
}

// Set writes the configuration into the cache.
func (cache *InMemoryConfigCache) Set(ctx context.Context, key string, value []byte) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.items[key] = value
	return nil
}
