package flagdeck

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfigCache is a ConfigCache implementation backed by redis,
// suitable for sharing the fetched configuration across processes.
type RedisConfigCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisConfigCache wraps an existing redis client. A zero ttl stores
// entries without expiration; expired entries are simply refetched on
// the next cache miss.
func NewRedisConfigCache(client redis.UniversalClient, ttl time.Duration) *RedisConfigCache {
	return &RedisConfigCache{client: client, ttl: ttl}
}

// Get reads the configuration from the cache. A missing key is not an
// error, it reports an empty value.
func (cache *RedisConfigCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := cache.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set writes the configuration into the cache.
func (cache *RedisConfigCache) Set(ctx context.Context, key string, value []byte) error {
	return cache.client.Set(ctx, key, value, cache.ttl).Err()
}
