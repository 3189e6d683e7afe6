package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrSendCooldown is returned while the per-address send cooldown runs.
	ErrSendCooldown = errors.New("code send cooling down")
	// ErrSendRateLimited is returned when the hourly send cap is exhausted.
	ErrSendRateLimited        = errors.New("code send rate limited")
	ErrSendLimiterUnavailable = errors.New("code send limiter unavailable")
)

type CodeSendConfig struct {
	// Cooldown is the minimum gap between two sends to the same address and purpose.
	Cooldown time.Duration
	// HourlyLimit caps sends to one address across purposes. Zero disables the cap.
	HourlyLimit int
	Window      time.Duration
}

// CodeSendLimiter throttles verification code sends per recipient.
type CodeSendLimiter struct {
	redis  redis.UniversalClient
	config CodeSendConfig
}

func NewCodeSendLimiter(redisClient redis.UniversalClient, cfg CodeSendConfig) *CodeSendLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &CodeSendLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckCooldown returns ErrSendCooldown and the time left when a code for
// email and purpose was sent less than Cooldown ago.
func (l *CodeSendLimiter) CheckCooldown(ctx context.Context, email, purpose string) (time.Duration, error) {
	if l == nil || l.config.Cooldown <= 0 {
		return 0, nil
	}
	ttl, err := l.redis.TTL(ctx, cooldownKey(email, purpose)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSendLimiterUnavailable, err)
	}
	if ttl > 0 {
		return ttl, ErrSendCooldown
	}
	return 0, nil
}

// CheckRequest counts a send against the hourly cap of email.
func (l *CodeSendLimiter) CheckRequest(ctx context.Context, email string) error {
	if l == nil || l.config.HourlyLimit <= 0 {
		return nil
	}
	err := rate.Enforce(ctx, l.redis, recipientKey(email), l.config.HourlyLimit, l.config.Window)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrSendRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrSendLimiterUnavailable, err)
	}
}

// StartCooldown starts the cooldown of email and purpose. Called only after
// a successful delivery.
func (l *CodeSendLimiter) StartCooldown(ctx context.Context, email, purpose string) error {
	if l == nil || l.config.Cooldown <= 0 {
		return nil
	}
	if err := l.redis.Set(ctx, cooldownKey(email, purpose), "1", l.config.Cooldown).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSendLimiterUnavailable, err)
	}
	return nil
}

func cooldownKey(email, purpose string) string {
	return "email:cooldown:" + email + ":" + purpose
}

func recipientKey(email string) string {
	return "email:rate:recipient:" + email
}
