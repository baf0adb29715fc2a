package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the key-value collaborator contract. Implementations must
// treat their own outages as misses: callers stay fully functional,
// just slower, when the cache is down.
type Cache interface {
	// Get unmarshals the value at key into dest and reports a hit.
	Get(ctx context.Context, key string, dest interface{}) bool
	// Set stores value as JSON with a TTL and reports success.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool
	// Delete removes keys and returns how many were deleted.
	Delete(ctx context.Context, keys ...string) int64
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) bool
	// ScanKeys returns up to limit keys matching a glob pattern.
	ScanKeys(ctx context.Context, pattern string, limit int64) ([]string, error)
}

// RedisCache backs the Cache contract with a Redis client.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Cache get failed for %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		log.Printf("Cache entry for %s is corrupt, dropping it: %v", key, err)
		c.rdb.Del(ctx, key)
		return false
	}
	return true
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	// Values are normalized once here so no NaN/Inf or raw timestamp
	// objects ever reach the cache.
	data, err := json.Marshal(SanitizeJSON(value))
	if err != nil {
		log.Printf("Cache set failed to marshal %s: %v", key, err)
		return false
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Printf("Cache set failed for %s: %v", key, err)
		return false
	}
	return true
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) int64 {
	if len(keys) == 0 {
		return 0
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		log.Printf("Cache delete failed: %v", err)
		return 0
	}
	return n
}

func (c *RedisCache) Exists(ctx context.Context, key string) bool {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		log.Printf("Cache exists check failed for %s: %v", key, err)
		return false
	}
	return n > 0
}

func (c *RedisCache) ScanKeys(ctx context.Context, pattern string, limit int64) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return keys, err
		}
		keys = append(keys, batch...)
		if limit > 0 && int64(len(keys)) >= limit {
			return keys[:limit], nil
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// NoopCache is used when Redis is not configured. Every read misses and
// every write is accepted and dropped.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, interface{}) bool               { return false }
func (NoopCache) Set(context.Context, string, interface{}, time.Duration) bool { return true }
func (NoopCache) Delete(context.Context, ...string) int64                     { return 0 }
func (NoopCache) Exists(context.Context, string) bool                         { return false }
func (NoopCache) ScanKeys(context.Context, string, int64) ([]string, error)   { return nil, nil }
