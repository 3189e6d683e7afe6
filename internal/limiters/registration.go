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
	ErrRegistrationRateLimited      = errors.New("registration rate limited")
	ErrRegistrationRedisUnavailable = errors.New("registration redis unavailable")
)

type RegistrationConfig struct {
	EnableIPThrottle bool
	MaxAttempts      int
	Cooldown         time.Duration
}

// RegistrationLimiter throttles sign-ups per client IP.
type RegistrationLimiter struct {
	redis  redis.UniversalClient
	config RegistrationConfig
}

func NewRegistrationLimiter(redisClient redis.UniversalClient, cfg RegistrationConfig) *RegistrationLimiter {
	return &RegistrationLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *RegistrationLimiter) Enforce(ctx context.Context, ip string) error {
	if l == nil || !l.config.EnableIPThrottle || ip == "" {
		return nil
	}

	err := rate.Enforce(ctx, l.redis, registrationIPKey(ip), l.config.MaxAttempts, l.config.Cooldown)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRegistrationRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrRegistrationRedisUnavailable, err)
	}
}

func registrationIPKey(ip string) string {
	return "register:ip:" + ip
}
