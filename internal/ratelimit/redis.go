package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisFixedWindow is a fixed-window limiter sharing state across replicas
// via Redis. Same increment-first policy as FixedWindow; the window is the
// key's TTL, set when the first request of a window arrives.
type RedisFixedWindow struct {
	rdb    goredis.UniversalClient
	max    int
	period time.Duration
}

// NewRedisFixedWindow creates a Redis-backed fixed-window limiter.
func NewRedisFixedWindow(rdb goredis.UniversalClient, max int, period time.Duration) *RedisFixedWindow {
	return &RedisFixedWindow{
		rdb:    rdb,
		max:    max,
		period: period,
	}
}

// Allow implements Limiter.
func (l *RedisFixedWindow) Allow(ctx context.Context, identity string) (bool, error) {
	key := "ratelimit:" + identity

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}

	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.period).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	return count <= int64(l.max), nil
}
