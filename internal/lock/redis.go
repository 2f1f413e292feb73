package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was re-acquired elsewhere is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lock shared by every process using the same Redis database.
type Redis struct {
	client *redis.Client
	key    string
	lease  time.Duration
	poll   time.Duration
}

// NewRedis returns a lock on key. lease bounds how long a crashed holder can
// keep the lock.
func NewRedis(client *redis.Client, key string, lease time.Duration) *Redis {
	if lease <= 0 {
		lease = 30 * time.Second
	}
	return &Redis{client: client, key: key, lease: lease, poll: 50 * time.Millisecond}
}

func (r *Redis) TryLock(ctx context.Context, timeout time.Duration) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := r.client.SetNX(ctx, r.key, token, r.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("setnx %s: %w", r.key, err)
		}
		if ok {
			break
		}
		if time.Now().Add(r.poll).After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-time.After(r.poll):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must not depend on the caller's (possibly expired) context.
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(relCtx, r.client, []string{r.key}, token).Err(); err != nil {
				slog.WarnContext(ctx, "failed to release lock", "key", r.key, "error", err)
			}
		})
	}, nil
}
