package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed window shared by every replica. The window
// starts at the first hit for a key.
type RedisRateLimiter struct {
	client  redis.Cmdable
	prefix  string
	maxHits int
	window  time.Duration
}

func NewRedisRateLimiter(client redis.Cmdable, maxHits int, window time.Duration) *RedisRateLimiter {
	maxHits, window = limiterDefaults(maxHits, window)
	return &RedisRateLimiter{client: client, prefix: "ratelimit:", maxHits: maxHits, window: window}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	key = l.prefix + key

	var (
		hits *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hits = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("count rate limit hit: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		if err := l.client.PExpire(ctx, key, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("start rate limit window: %w", err)
		}
		remaining = l.window
	}

	if hits.Val() > int64(l.maxHits) {
		return false, clampRetry(remaining), nil
	}
	return true, 0, nil
}
