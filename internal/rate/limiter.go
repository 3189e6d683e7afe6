package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	// CaptchaThreshold is the number of failed logins from one IP after
	// which a captcha is demanded. Zero disables the IP counter.
	CaptchaThreshold int
	IPWindow         time.Duration
}

// Limiter counts failed logins per client IP using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.IPWindow <= 0 {
		cfg.IPWindow = time.Hour
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// NeedsCaptcha reports whether ip crossed the failed-login threshold.
func (l *Limiter) NeedsCaptcha(ctx context.Context, ip string) (bool, error) {
	if l == nil || l.config.CaptchaThreshold <= 0 || ip == "" {
		return false, nil
	}
	count, err := l.IPAttempts(ctx, ip)
	if err != nil {
		return false, err
	}
	return count >= l.config.CaptchaThreshold, nil
}

// RecordFailure records a failed login from ip.
func (l *Limiter) RecordFailure(ctx context.Context, ip string) error {
	if l == nil || l.config.CaptchaThreshold <= 0 || ip == "" {
		return nil
	}
	_, err := Hit(ctx, l.redis, loginIPKey(ip), l.config.IPWindow)
	return err
}

// Reset clears the failed-login counter of ip. Called after a successful login.
func (l *Limiter) Reset(ctx context.Context, ip string) error {
	if l == nil || l.config.CaptchaThreshold <= 0 || ip == "" {
		return nil
	}
	if err := l.redis.Del(ctx, loginIPKey(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IPAttempts returns the current failed-login counter for ip.
// Missing keys return zero.
func (l *Limiter) IPAttempts(ctx context.Context, ip string) (int, error) {
	count, err := l.redis.Get(ctx, loginIPKey(ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Hit increments key and starts its window on the first hit.
func Hit(ctx context.Context, r redis.UniversalClient, key string, ttl time.Duration) (int64, error) {
	count, err := r.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := r.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// Enforce hits key and returns ErrRateLimited once the window holds more
// than max hits.
func Enforce(ctx context.Context, r redis.UniversalClient, key string, max int, ttl time.Duration) error {
	count, err := Hit(ctx, r, key, ttl)
	if err != nil {
		return err
	}
	if count > int64(max) {
		return ErrRateLimited
	}
	return nil
}

func loginIPKey(ip string) string {
	return "login:attempts:ip:" + ip
}
