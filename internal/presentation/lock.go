// Package presentation gates lot starts on the externally-owned results
// screen. The screen owner acquires the lock while a summary is showing; the
// engine only ever asks whether it is held.
package presentation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openbid/auctiond/internal/auction"
)

// unlockLua deletes the lock key only if its value matches the holder's
// token, so one holder cannot release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLock implements auction.PresentationLock on a Redis key with a TTL.
type RedisLock struct {
	rdb      *redis.Client
	key      string
	unlockSc *redis.Script
}

// NewRedisLock creates a lock on the given key.
func NewRedisLock(rdb *redis.Client, key string) *RedisLock {
	return &RedisLock{
		rdb:      rdb,
		key:      key,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Held reports whether the presentation lock is currently held.
func (l *RedisLock) Held(ctx context.Context) (bool, error) {
	n, err := l.rdb.Exists(ctx, l.key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check presentation lock: %w", err)
	}
	return n > 0, nil
}

// Acquire takes the lock for the given TTL on behalf of the results screen.
// Returns a release func; release is safe to call more than once.
func (l *RedisLock) Acquire(ctx context.Context, token string, ttl time.Duration) (func(), error) {
	ok, err := l.rdb.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire presentation lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("presentation lock already held")
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true

		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.unlockSc.Run(releaseCtx, l.rdb, []string{l.key}, token).Err()
	}
	return release, nil
}

var _ auction.PresentationLock = (*RedisLock)(nil)
