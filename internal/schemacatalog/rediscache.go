package schemacatalog

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTagCache is an optional secondary cache in front of Catalog.GetFile,
// for deployments that run multiple loader replicas and want to avoid
// redundant `git show` subprocess calls for the same (tag, path) pair,
// grounded on the teacher's adapter/redis client shape.
type RedisTagCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTagCache wraps an existing redis client. ttl defaults to one hour.
func NewRedisTagCache(client *redis.Client, ttl time.Duration) *RedisTagCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisTagCache{client: client, ttl: ttl}
}

func cacheKey(tag, path string) string {
	return fmt.Sprintf("kaijs:schema:%s:%s", tag, path)
}

// Get returns the cached bytes for (tag, path), if present.
func (r *RedisTagCache) Get(ctx context.Context, tag, path string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, cacheKey(tag, path)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("schemacatalog: redis get: %w", err)
	}
	return val, true, nil
}

// Set stores raw under (tag, path) with the cache's configured TTL.
func (r *RedisTagCache) Set(ctx context.Context, tag, path string, raw []byte) error {
	if err := r.client.Set(ctx, cacheKey(tag, path), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("schemacatalog: redis set: %w", err)
	}
	return nil
}

// CachedCatalog wraps a Catalog with a RedisTagCache, used as a drop-in
// GetFile source by tagLoader when a cache is configured.
type CachedCatalog struct {
	*Catalog
	cache *RedisTagCache
}

// NewCachedCatalog wraps catalog with cache.
func NewCachedCatalog(catalog *Catalog, cache *RedisTagCache) *CachedCatalog {
	return &CachedCatalog{Catalog: catalog, cache: cache}
}

// GetFile checks the redis cache before falling back to the underlying
// Catalog, populating the cache on miss.
func (c *CachedCatalog) GetFile(ctx context.Context, tag, path string) ([]byte, error) {
	if raw, ok, err := c.cache.Get(ctx, tag, path); err == nil && ok {
		return raw, nil
	}

	raw, err := c.Catalog.GetFile(ctx, tag, path)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, tag, path, raw)
	return raw, nil
}
