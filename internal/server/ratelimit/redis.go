// Package ratelimit throttles download attempts per client with a fixed
// window counter kept in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dlkeeper:ratelimit:"

// Limiter decides whether another request from key is allowed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, addr string) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

// RedisLimiter allows at most limit requests per key in each window.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window, now: time.Now}
}

// Allow increments the counter of the current window. On a Redis error the
// request is allowed and the error returned for the caller to log.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	bucket := l.now().UnixNano() / int64(l.window)
	redisKey := keyPrefix + key + ":" + strconv.FormatInt(bucket, 10)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, fmt.Errorf("ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return true, fmt.Errorf("ratelimit expire: %w", err)
		}
	}
	return count <= int64(l.limit), nil
}
