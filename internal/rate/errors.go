package rate

import "errors"

var (
	// ErrRateLimited is returned when a budget is exhausted for the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps key-value store failures.
	ErrStoreUnavailable = errors.New("rate limiter store unavailable")
)
