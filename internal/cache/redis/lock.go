package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/outcomelab/predengine/internal/domain"
)

// releaseScript deletes a lock key only while it still carries the holder's
// token, so a lock that expired and was reacquired elsewhere is never
// released by the original holder.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockManager is the Redis-backed domain.LockManager: one SET NX key per
// lock, expiring after the TTL in case the holder dies without releasing.
type LockManager struct {
	rdb *redis.Client
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.Underlying()}
}

func lockKey(key string) string {
	return "predengine:lock:" + key
}

// Acquire takes the named lock for at most ttl and returns its release
// function, which is safe to call more than once. A lock held elsewhere
// fails with domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	k := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// The caller's context may already be done by release time.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, lm.rdb, []string{k}, token).Err()
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
