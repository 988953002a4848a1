package flagdeck

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	qt "github.com/frankban/quicktest"
	"github.com/redis/go-redis/v9"
)

func newTestRedisCache(t *testing.T, ttl time.Duration) (*RedisConfigCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisConfigCache(client, ttl), s
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c := qt.New(t)
	cache, _ := newTestRedisCache(t, 0)
	ctx := context.Background()

	key := produceCacheKey(testSDKKey)
	c.Assert(cache.Set(ctx, key, []byte("payload")), qt.IsNil)

	value, err := cache.Get(ctx, key)
	c.Assert(err, qt.IsNil)
	c.Assert(string(value), qt.Equals, "payload")
}

func TestRedisCacheMissingKey(t *testing.T) {
	c := qt.New(t)
	cache, _ := newTestRedisCache(t, 0)

	value, err := cache.Get(context.Background(), "missing")
	c.Assert(err, qt.IsNil)
	c.Assert(value, qt.IsNil)
}

func TestRedisCacheTTL(t *testing.T) {
	c := qt.New(t)
	cache, s := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	c.Assert(cache.Set(ctx, "key", []byte("payload")), qt.IsNil)
	s.FastForward(2 * time.Minute)

	value, err := cache.Get(ctx, "key")
	c.Assert(err, qt.IsNil)
	c.Assert(value, qt.IsNil)
}

func TestRedisCacheBackedService(t *testing.T) {
	c := qt.New(t)
	cache, _ := newTestRedisCache(t, 0)

	provider := newFakeConfigProvider()
	provider.setResponse(fetchedResponse(c, testConfigBody, "e1"))
	writer := newTestService(c, Config{PollingMode: Manual, Cache: cache}, provider)
	c.Assert(writer.refresh(context.Background()).Success, qt.IsTrue)

	reader := newTestService(c, Config{PollingMode: Manual, Cache: cache}, newFakeConfigProvider())
	settings, fetchTime := reader.getSettings(context.Background())
	c.Assert(settings["flag"], qt.Not(qt.IsNil))
	c.Assert(fetchTime.After(distantPast), qt.IsTrue)
}
