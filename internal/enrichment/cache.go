package enrichment

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Cache stores enrichment results keyed by IP. Implementations must be safe
// for unbounded concurrent callers; reads and writes are independent per key.
type Cache interface {
	Get(ctx context.Context, ip string) (*Result, bool)
	Set(ctx context.Context, ip string, r *Result, ttl time.Duration)
}

// MemoryCache is an in-process TTL cache. It is the default backend and the
// one used by tests.
type MemoryCache struct {
	inner *gocache.Cache
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{inner: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (c *MemoryCache) Get(_ context.Context, ip string) (*Result, bool) {
	v, ok := c.inner.Get(ip)
	if !ok {
		return nil, false
	}
	r, ok := v.(*Result)
	return r, ok
}

func (c *MemoryCache) Set(_ context.Context, ip string, r *Result, ttl time.Duration) {
	c.inner.Set(ip, r, ttl)
}

const redisKeyPrefix = "ip_enrichment:"

// RedisCache shares enrichment results across collector instances.
// Cache errors degrade to misses; they never surface to the pipeline.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, ip string) (*Result, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+ip).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("[Enrichment] Redis read failed", "ip", ip, "error", err)
		}
		return nil, false
	}

	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		slog.Warn("[Enrichment] Corrupt cache entry dropped", "ip", ip, "error", err)
		return nil, false
	}
	return &r, true
}

func (c *RedisCache) Set(ctx context.Context, ip string, r *Result, ttl time.Duration) {
	raw, err := json.Marshal(r)
	if err != nil {
		slog.Warn("[Enrichment] Failed to marshal cache entry", "ip", ip, "error", err)
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+ip, raw, ttl).Err(); err != nil {
		slog.Warn("[Enrichment] Redis write failed", "ip", ip, "error", err)
	}
}
