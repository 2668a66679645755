package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// releaseTimeout bounds the unlock round trip, which runs after the holder's
// context may already be cancelled.
const releaseTimeout = 5 * time.Second

// releaseScript deletes the lock only while it still carries the holder's
// token, so an expired holder cannot free a lock someone else now owns.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockManager elects one replica per market list rebuild.
type LockManager struct {
	c *Client
}

var _ domain.LockManager = (*LockManager)(nil)

func NewLockManager(c *Client) *LockManager {
	return &LockManager{c: c}
}

// Acquire takes key for ttl. It returns domain.ErrLockHeld when another
// holder has it. Calling the release func more than once is harmless.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	name := lm.c.key("lock", key)
	token := uuid.NewString()

	err := lm.c.rdb.SetArgs(ctx, name, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case err == redis.Nil:
		return nil, domain.ErrLockHeld
	case err != nil:
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			_ = releaseScript.Run(rctx, lm.c.rdb, []string{name}, token).Err()
		})
	}, nil
}
