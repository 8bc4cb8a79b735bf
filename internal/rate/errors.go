package rate

import "errors"

var (
	// ErrRateLimited marks a request rejected by the limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps failures of the Redis backend.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrBackendUnavailable is returned by Check when the backend fails and
	// fail-open is disabled.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)
