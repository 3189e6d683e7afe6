package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds configuration for the automatic account lockout limiter.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// recordFailureLua increments the failure counter and swaps it for a lock
// key once the threshold is reached.
// KEYS[1] = failure counter, KEYS[2] = lock key
// ARGV[1] = threshold, ARGV[2] = duration in ms
// Returns {locked(0|1), count}.
var recordFailureLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if count >= tonumber(ARGV[1]) then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[2])
  redis.call('DEL', KEYS[1])
  return {1, count}
end
return {0, count}
`)

// LockoutLimiter tracks failed logins per account and locks the account
// for Duration once Threshold consecutive failures were recorded.
type LockoutLimiter struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockoutLimiter creates a new lockout limiter.
func NewLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutLimiter {
	return &LockoutLimiter{redis: redisClient, config: cfg}
}

func (l *LockoutLimiter) failuresKey(userID string) string {
	return "login:failures:" + userID
}

func (l *LockoutLimiter) lockKey(userID string) string {
	return "login:locked:" + userID
}

// Locked returns the time left on the lock of userID, or zero.
func (l *LockoutLimiter) Locked(ctx context.Context, userID string) (time.Duration, error) {
	if l == nil || !l.config.Enabled || userID == "" {
		return 0, nil
	}
	ttl, err := l.redis.PTTL(ctx, l.lockKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// RecordFailure records a failed login. It reports whether the account is
// now locked and how many attempts are left before it would be.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, userID string) (bool, int, error) {
	if l == nil || !l.config.Enabled || userID == "" {
		return false, 0, nil
	}

	res, err := recordFailureLua.Run(ctx, l.redis,
		[]string{l.failuresKey(userID), l.lockKey(userID)},
		l.config.Threshold,
		l.config.Duration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("%w: unexpected lua result", ErrLockoutUnavailable)
	}

	locked := res[0] == 1
	remaining := l.config.Threshold - int(res[1])
	if locked || remaining < 0 {
		remaining = 0
	}
	return locked, remaining, nil
}

// Reset clears the failure counter of userID after a successful login.
func (l *LockoutLimiter) Reset(ctx context.Context, userID string) error {
	if l == nil || !l.config.Enabled || userID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.failuresKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// GetFailureCount returns the current failure count for a user.
func (l *LockoutLimiter) GetFailureCount(ctx context.Context, userID string) (int, error) {
	if l == nil || !l.config.Enabled || userID == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.failuresKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}
