// Package ratelimit throttles login attempts per source IP with Redis
// fixed-window counters.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config tunes the throttle window.
type Config struct {
	Limit  int           // attempts per window
	Window time.Duration // fixed window length
}

// Limiter counts login attempts per IP in Redis. It satisfies the auth
// service's LoginThrottle; errors surface so the caller can decide to
// fail open.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	cfg    Config
}

// New returns a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, prefix: "authcore:login:ip:", cfg: cfg}
}

// Allow counts the attempt and reports whether it fits the window.
// When denied, retryAfter is the remaining window.
func (l *Limiter) Allow(ctx context.Context, ip string) (bool, time.Duration, error) {
	key := l.prefix + ip

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("throttle incr: %w", err)
	}
	// Fixed-window semantics: the first hit in the window owns the TTL.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.cfg.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("throttle expire: %w", err)
		}
	}

	if count <= int64(l.cfg.Limit) {
		return true, 0, nil
	}

	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = l.cfg.Window
	}
	return false, ttl, nil
}

// Reset clears the counter after a successful login.
func (l *Limiter) Reset(ctx context.Context, ip string) error {
	if err := l.redis.Del(ctx, l.prefix+ip).Err(); err != nil {
		return fmt.Errorf("throttle reset: %w", err)
	}
	return nil
}
