package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sitekit/sitekit/pkg/repo"
)

// DefaultTTL bounds the staleness window of shared cache entries.
const DefaultTTL = 15 * time.Minute

// Redis is a SiteCache backed by a shared Redis instance, for deployments
// where several processes resolve the same sites and invalidations must be
// visible across all of them.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedis creates a Redis-backed cache. A non-positive ttl falls back to
// DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, keyPrefix: "sitekit:site:", ttl: ttl}
}

// Get returns the cached node for a short name. Redis errors degrade to a
// cache miss.
func (c *Redis) Get(ctx context.Context, shortName string) (repo.NodeRef, bool) {
	val, err := c.client.Get(ctx, c.keyPrefix+shortName).Result()
	if err != nil {
		return "", false
	}
	return repo.NodeRef(val), true
}

// Put stores the node for a short name with the configured TTL.
func (c *Redis) Put(ctx context.Context, shortName string, ref repo.NodeRef) {
	c.client.Set(ctx, c.keyPrefix+shortName, string(ref), c.ttl)
}

// Invalidate drops a short name's entry.
func (c *Redis) Invalidate(ctx context.Context, shortName string) {
	c.client.Del(ctx, c.keyPrefix+shortName)
}
