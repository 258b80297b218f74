/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable defines a func that can tell if error is retryable as opposed to persistent.
type IsRetryable func(error) bool

// RetryableFunc is function that does some work and can be potentially retried.
type RetryableFunc func(ctx context.Context) error

// Policy defines backoff strategy.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// DoWithRetry executes fn with retry according to policy p and with respect to context ctx.
// IsRetryable defines which errors lead to retry attempt (can be nil for any error).
// Notify can be used to receive notification on every retry with error and backoff delay
// (can be nil if no notifications required).
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	b := p.NewBackOff()
	bctx := backoff.WithContext(b, ctx)
	var op backoff.Operation = func() error {
		err := fn(bctx.Context())
		if err != nil &&
			(isRetryable != nil && !isRetryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, bctx, notify)
}

// WithAttemptTimeout returns a RetryableFunc that runs fn with a context limited by timeout.
// The timeout is applied to every attempt separately, so it doesn't consume the retry budget of the policy.
// Zero or negative timeout means no limit.
func WithAttemptTimeout(timeout time.Duration, fn RetryableFunc) RetryableFunc {
	if timeout <= 0 {
		return fn
	}
	return func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(attemptCtx)
	}
}

// The PolicyFunc type is an adapter to allow the use of ordinary functions as retry.Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements retry.Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// NoRetryPolicy makes DoWithRetry run the function exactly once.
var NoRetryPolicy Policy = PolicyFunc(func() backoff.BackOff { return &backoff.StopBackOff{} })

// DefaultExponentialMaxInterval caps a single delay of ExponentialBackoffPolicy unless another cap is set.
const DefaultExponentialMaxInterval = 5 * time.Second

// ExponentialBackoffPolicy retries with delays growing 1.5x per attempt (randomized by ±50%).
// Note that maxRetryAttempts is the number of retries, so the total number of attempts is maxRetryAttempts+1.
// Elapsed time isn't limited: the attempt count is the only retry budget.
type ExponentialBackoffPolicy struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	maxAttempts     int
}

// NewExponentialBackoffPolicy returns an exponential backoff policy with given initial interval and max retry attempt count.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{
		initialInterval: initialInterval,
		maxInterval:     DefaultExponentialMaxInterval,
		maxAttempts:     maxRetryAttempts,
	}
}

// WithMaxInterval returns a copy of the policy with a single delay capped by maxInterval.
func (p ExponentialBackoffPolicy) WithMaxInterval(maxInterval time.Duration) ExponentialBackoffPolicy {
	p.maxInterval = maxInterval
	return p
}

// NewBackOff implements retry.Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initialInterval
	if p.maxInterval > 0 {
		eb.MaxInterval = p.maxInterval
	}
	eb.MaxElapsedTime = 0
	return withMaxRetries(eb, p.maxAttempts)
}

// ConstantBackoffPolicy retries with the same delay between attempts.
// Note that maxRetryAttempts is the number of retries, so the total number of attempts is maxRetryAttempts+1.
type ConstantBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy with given interval and max retry attempt count.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval, maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return withMaxRetries(backoff.NewConstantBackOff(p.interval), p.maxAttempts)
}

// withMaxRetries limits retries when maxAttempts > 0, otherwise they are unlimited.
func withMaxRetries(b backoff.BackOff, maxAttempts int) backoff.BackOff {
	if maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(maxAttempts))
	}
	b.Reset()
	return b
}
