package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("account lock wait exceeded")

// releaseScript deletes the lock only while it is still owned by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisAccountLocker serializes account mutations across service replicas.
// Each lock carries a TTL so a crashed holder cannot block an account forever.
type RedisAccountLocker struct {
	client       *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
	maxWait      time.Duration
}

func NewRedisAccountLocker(client *redis.Client, ttl, maxWait time.Duration) *RedisAccountLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	return &RedisAccountLocker{client: client, ttl: ttl, pollInterval: 25 * time.Millisecond, maxWait: maxWait}
}

func lockKey(accountID string) string {
	return "escrow:lock:account:" + accountID
}

func (l *RedisAccountLocker) Lock(ctx context.Context, accountID string) (func(), error) {
	key := lockKey(accountID)
	token := uuid.NewString()
	deadline := time.NewTimer(l.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// Release must run even when the caller's context is done.
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, accountID)
		case <-ticker.C:
		}
	}
}
