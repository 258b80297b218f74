/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest is returned when a rate limit request has invalid parameters (empty key, non-positive limit or window,
// unknown strategy). It's a configuration error, such requests are never coerced to valid ones.
var ErrInvalidRequest = errors.New("invalid rate limit request")

// ErrInvalidConfig is returned when rate limiting is misconfigured (unknown provider, missing Redis client, etc.).
var ErrInvalidConfig = errors.New("invalid rate limit configuration")

// ErrExceeded may be used with errors.Is for checking whether an error means the rate limit is exceeded.
var ErrExceeded = errors.New("rate limit exceeded")

// ExceededError is returned by Service.Enforce and the decorators when a request is denied by the policy.
// It's distinguishable from internal failures and carries the result of the check.
type ExceededError struct {
	Result Result
}

// Error implements error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded (strategy=%s, limit=%d, window=%s), retry after %s",
		e.Result.Strategy, e.Result.Limit, e.Result.Window, e.RetryAfter())
}

// Is makes errors.Is(err, ErrExceeded) work.
func (e *ExceededError) Is(target error) bool {
	return target == ErrExceeded
}

// RetryAfter returns a hint after which the client may retry.
func (e *ExceededError) RetryAfter() time.Duration {
	if e.Result.TimeUntilReset < 0 {
		return 0
	}
	return e.Result.TimeUntilReset
}

func invalidRequestErr(field string, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidRequest, field, fmt.Sprintf(format, args...))
}
