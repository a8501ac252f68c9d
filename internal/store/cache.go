package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CatalogCache is a cache-aside layer over Redis for read-heavy catalog
// lookups. Cache errors degrade to a miss and are logged; they are never
// surfaced to the read path.
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCatalogCache wraps the Redis client. A nil client is allowed and turns
// every lookup into a miss, which keeps tests and cache-less deployments
// simple.
func NewCatalogCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *CatalogCache {
	return &CatalogCache{client: client, ttl: ttl, log: log}
}

// Get returns the cached bytes for key, or false on miss or error.
func (c *CatalogCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
		}
		return nil, false
	}
	return data, true
}

// Set stores the bytes under key with the configured TTL.
func (c *CatalogCache) Set(ctx context.Context, key string, value []byte) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
}

// Invalidate drops a cached entry, used when a tier is deleted.
func (c *CatalogCache) Invalidate(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("catalog cache invalidation failed")
	}
}
