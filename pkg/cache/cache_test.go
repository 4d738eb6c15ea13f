package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitekit/sitekit/pkg/repo"
)

func TestLRU(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2)

	t.Run("miss on empty cache", func(t *testing.T) {
		_, ok := c.Get(ctx, "eng")
		assert.False(t, ok)
	})

	t.Run("put then get", func(t *testing.T) {
		c.Put(ctx, "eng", "node-1")
		ref, ok := c.Get(ctx, "eng")
		require.True(t, ok)
		assert.Equal(t, repo.NodeRef("node-1"), ref)
	})

	t.Run("invalidate drops the entry", func(t *testing.T) {
		c.Invalidate(ctx, "eng")
		_, ok := c.Get(ctx, "eng")
		assert.False(t, ok)
	})

	t.Run("capacity evicts the least recently used", func(t *testing.T) {
		c.Put(ctx, "a", "node-a")
		c.Put(ctx, "b", "node-b")
		c.Get(ctx, "a")
		c.Put(ctx, "c", "node-c")

		_, ok := c.Get(ctx, "b")
		assert.False(t, ok, "b was least recently used")
		_, ok = c.Get(ctx, "a")
		assert.True(t, ok)
		_, ok = c.Get(ctx, "c")
		assert.True(t, ok)
	})
}

func TestLRUSizeFallback(t *testing.T) {
	assert.NotPanics(t, func() { NewLRU(0) })
	assert.NotPanics(t, func() { NewLRU(-5) })
}

func newRedisCache(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, ttl), srv
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	c, srv := newRedisCache(t, time.Minute)

	t.Run("put then get", func(t *testing.T) {
		c.Put(ctx, "eng", "node-1")
		ref, ok := c.Get(ctx, "eng")
		require.True(t, ok)
		assert.Equal(t, repo.NodeRef("node-1"), ref)
	})

	t.Run("keys are namespaced", func(t *testing.T) {
		assert.True(t, srv.Exists("sitekit:site:eng"))
	})

	t.Run("invalidate drops the entry", func(t *testing.T) {
		c.Invalidate(ctx, "eng")
		_, ok := c.Get(ctx, "eng")
		assert.False(t, ok)
	})

	t.Run("entries expire after the ttl", func(t *testing.T) {
		c.Put(ctx, "temp", "node-2")
		srv.FastForward(2 * time.Minute)
		_, ok := c.Get(ctx, "temp")
		assert.False(t, ok)
	})

	t.Run("server errors degrade to a miss", func(t *testing.T) {
		c.Put(ctx, "steady", "node-3")
		srv.SetError("simulated outage")
		_, ok := c.Get(ctx, "steady")
		assert.False(t, ok)
		srv.SetError("")
	})
}
