package rate

import "errors"

var (
	// ErrRateLimited is returned when a fixed window is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps any Redis failure of a counter operation.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
