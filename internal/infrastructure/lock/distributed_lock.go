package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisLocker implements Locker on a shared Redis.
//
// Acquire is SET key value NX EX ttl: NX guarantees mutual exclusion across
// the whole fleet, EX bounds how long a crashed holder can block others.
// Release runs a Lua compare-and-delete so an expired holder cannot delete a
// lock that has since been taken by someone else.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	// Value identifies the holder; Release verifies it before deleting.
	value := uuid.NewString()

	for i := 0; i < l.maxRetries; i++ {
		ok, err := l.client.SetNX(ctx, key, value, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func(ctx context.Context) error {
				return l.release(ctx, key, value)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	return nil, ErrLockFailed
}

func (l *RedisLocker) release(ctx context.Context, key, value string) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{key}, value).Result()
	return err
}
