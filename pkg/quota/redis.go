package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCounter is a Counter shared across instances through Redis. Buckets
// expire shortly after their window ends, so no sweep is needed.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter creates a Redis-backed counter. An empty prefix defaults
// to "quota".
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "quota"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

// Allow implements Counter with an INCR+EXPIREAT pipeline. The stored count
// can pass the limit under concurrency, but the overshoot is never visible
// as extra allowance: every increment past the limit is reported as denied.
func (c *RedisCounter) Allow(ctx context.Context, key string, limit int, window Window, now time.Time) (Decision, error) {
	if !window.Valid() {
		return Decision{}, ErrUnknownWindow
	}
	start := window.Truncate(now)
	resetAt := start.Add(window.Duration())
	redisKey := c.key(key, window, start)

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireAt(ctx, redisKey, resetAt.Add(time.Minute))
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	count := incr.Val()
	d := Decision{
		Allowed: count <= int64(limit),
		Limit:   limit,
		Window:  window,
		ResetAt: resetAt,
	}
	if remaining := limit - int(count); remaining > 0 {
		d.Remaining = remaining
	}
	return d, nil
}

// IncrBy implements Counter.
func (c *RedisCounter) IncrBy(ctx context.Context, key string, n int64, window Window, now time.Time) (int64, error) {
	if !window.Valid() {
		return 0, ErrUnknownWindow
	}
	start := window.Truncate(now)
	redisKey := c.key(key, window, start)

	pipe := c.client.Pipeline()
	incr := pipe.IncrBy(ctx, redisKey, n)
	pipe.ExpireAt(ctx, redisKey, start.Add(window.Duration()).Add(time.Minute))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return incr.Val(), nil
}

// Count implements Counter.
func (c *RedisCounter) Count(ctx context.Context, key string, window Window, now time.Time) (int64, error) {
	if !window.Valid() {
		return 0, ErrUnknownWindow
	}
	start := window.Truncate(now)

	count, err := c.client.Get(ctx, c.key(key, window, start)).Int64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return count, nil
}

// Reset implements Counter.
func (c *RedisCounter) Reset(ctx context.Context, key string, window Window, now time.Time) error {
	if !window.Valid() {
		return ErrUnknownWindow
	}
	start := window.Truncate(now)

	if err := c.client.Del(ctx, c.key(key, window, start)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Ping verifies backend connectivity for readiness checks.
func (c *RedisCounter) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (c *RedisCounter) key(key string, window Window, start time.Time) string {
	return c.prefix + ":" + bucketKey(key, window, start)
}
