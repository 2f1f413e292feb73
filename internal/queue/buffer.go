package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PratikDhanave/offhours-digest/internal/models"
)

const (
	DefaultTTL      = 10 * time.Minute
	DefaultCapacity = 10000
)

// ErrBufferFull is returned by Put when the buffer is at capacity.
var ErrBufferFull = errors.New("queue: buffer full")

// Buffer is a bounded key/value store with per-item expiry. Claim removes
// and returns an item atomically so each item is handed out at most once.
type Buffer interface {
	Put(ctx context.Context, item models.QueuedItem) error
	Keys(ctx context.Context) ([]string, error)
	Claim(ctx context.Context, key string) (item models.QueuedItem, found bool, err error)
}

type memoryEntry struct {
	item    models.QueuedItem
	expires time.Time
}

// MemoryBuffer is a process-local Buffer.
type MemoryBuffer struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryBuffer(capacity int, ttl time.Duration) *MemoryBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryBuffer{
		entries:  make(map[string]memoryEntry),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (b *MemoryBuffer) Put(_ context.Context, item models.QueuedItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.expireLocked(now)
	if _, exists := b.entries[item.Key]; !exists && len(b.entries) >= b.capacity {
		return ErrBufferFull
	}
	b.entries[item.Key] = memoryEntry{item: item, expires: now.Add(b.ttl)}
	return nil
}

// Keys returns live keys in ascending order.
func (b *MemoryBuffer) Keys(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireLocked(b.now())
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *MemoryBuffer) Claim(_ context.Context, key string) (models.QueuedItem, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return models.QueuedItem{}, false, nil
	}
	delete(b.entries, key)
	if !b.now().Before(e.expires) {
		return models.QueuedItem{}, false, nil
	}
	return e.item, true, nil
}

// Len reports the number of live items.
func (b *MemoryBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(b.now())
	return len(b.entries)
}

func (b *MemoryBuffer) expireLocked(now time.Time) {
	for k, e := range b.entries {
		if !now.Before(e.expires) {
			delete(b.entries, k)
		}
	}
}

// putScript drops expired index entries, enforces capacity and stores the
// item together with its index entry in one step.
//
// KEYS[1] item key, KEYS[2] index key
// ARGV[1] payload, ARGV[2] ttl ms, ARGV[3] now ms, ARGV[4] capacity
var putScript = redis.NewScript(`
local now = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", now - tonumber(ARGV[2]))
if redis.call("ZCARD", KEYS[2]) >= tonumber(ARGV[4]) and redis.call("ZSCORE", KEYS[2], KEYS[1]) == false then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("ZADD", KEYS[2], now, KEYS[1])
return 1
`)

// RedisBuffer keeps each item as its own key with a Redis expiry, plus a
// sorted set of live keys scored by enqueue time. Items survive restarts and
// are shared between replicas.
type RedisBuffer struct {
	client   *redis.Client
	index    string
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

func NewRedisBuffer(client *redis.Client, keyPrefix string, capacity int, ttl time.Duration) *RedisBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisBuffer{client: client, index: keyPrefix + "index", capacity: capacity, ttl: ttl, now: time.Now}
}

func (b *RedisBuffer) Put(ctx context.Context, item models.QueuedItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode queued item: %w", err)
	}

	stored, err := putScript.Run(ctx, b.client, []string{item.Key, b.index},
		data, b.ttl.Milliseconds(), b.now().UnixMilli(), b.capacity).Int()
	if err != nil {
		return fmt.Errorf("put %s: %w", item.Key, err)
	}
	if stored == 0 {
		return ErrBufferFull
	}
	return nil
}

// Keys returns live keys in enqueue order.
func (b *RedisBuffer) Keys(ctx context.Context) ([]string, error) {
	cutoff := b.now().Add(-b.ttl).UnixMilli()
	if err := b.client.ZRemRangeByScore(ctx, b.index, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, fmt.Errorf("trim %s: %w", b.index, err)
	}
	keys, err := b.client.ZRange(ctx, b.index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.index, err)
	}
	return keys, nil
}

// Len reports the number of indexed items, expired ones included until the
// next Put or Keys trims them.
func (b *RedisBuffer) Len(ctx context.Context) (int64, error) {
	return b.client.ZCard(ctx, b.index).Result()
}

func (b *RedisBuffer) Claim(ctx context.Context, key string) (models.QueuedItem, bool, error) {
	var get *redis.StringCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.GetDel(ctx, key)
		pipe.ZRem(ctx, b.index, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.QueuedItem{}, false, fmt.Errorf("claim %s: %w", key, err)
	}

	data, err := get.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.QueuedItem{}, false, nil
		}
		return models.QueuedItem{}, false, fmt.Errorf("getdel %s: %w", key, err)
	}

	var item models.QueuedItem
	if err := json.Unmarshal(data, &item); err != nil {
		return models.QueuedItem{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return item, true, nil
}
