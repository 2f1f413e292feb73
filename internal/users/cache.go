package users

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds resolved display names. Misses and backend errors look the
// same to callers.
type Cache interface {
	Get(ctx context.Context, userID string) (string, bool)
	Set(ctx context.Context, userID, name string, ttl time.Duration)
}

type memoryEntry struct {
	name    string
	expires time.Time
}

// MemoryCache is a process-local TTL map.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, userID string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return "", false
	}
	return e.name, true
}

func (c *MemoryCache) Set(_ context.Context, userID, name string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[userID] = memoryEntry{name: name, expires: now.Add(ttl)}
}

const redisKeyPrefix = "USER_"

// RedisCache stores names under USER_<id> with a Redis expiry.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, userID string) (string, bool) {
	name, err := c.client.Get(ctx, redisKeyPrefix+userID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "user cache read failed", "user_id", userID, "error", err)
		}
		return "", false
	}
	return name, true
}

func (c *RedisCache) Set(ctx context.Context, userID, name string, ttl time.Duration) {
	if err := c.client.Set(ctx, redisKeyPrefix+userID, name, ttl).Err(); err != nil {
		slog.WarnContext(ctx, "user cache write failed", "user_id", userID, "error", err)
	}
}
