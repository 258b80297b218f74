/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package redisconn

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/acronis/go-resourcekit/log"
	"github.com/acronis/go-resourcekit/retry"
)

// Executor runs remote operations with a per-attempt timeout and a bounded retry budget.
type Executor struct {
	timeout time.Duration
	policy  retry.Policy
	logger  log.FieldLogger
}

// ExecutorOpts represents options for Executor.
type ExecutorOpts struct {
	// Timeout limits every attempt. Zero means no limit.
	Timeout time.Duration
	// MaxAttempts is the total number of attempts. Values < 1 are treated as 1.
	MaxAttempts int
	// RetryDelay is a delay between attempts, the initial one if ExponentialBackoff is set.
	RetryDelay time.Duration
	// ExponentialBackoff makes delays between attempts grow exponentially.
	ExponentialBackoff bool
	Logger             log.FieldLogger
}

// NewExecutor creates a new Executor.
func NewExecutor(opts ExecutorOpts) *Executor {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	maxRetries := opts.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}
	var policy retry.Policy
	switch {
	case maxRetries == 0:
		policy = retry.NoRetryPolicy
	case opts.ExponentialBackoff:
		policy = retry.NewExponentialBackoffPolicy(opts.RetryDelay, maxRetries)
	default:
		policy = retry.NewConstantBackoffPolicy(opts.RetryDelay, maxRetries)
	}
	return &Executor{timeout: opts.Timeout, policy: policy, logger: opts.Logger}
}

// NewExecutorFromConfig creates a new Executor from the connection configuration.
func NewExecutorFromConfig(cfg *Config, logger log.FieldLogger) *Executor {
	return NewExecutor(ExecutorOpts{
		Timeout:            cfg.OperationTimeout,
		MaxAttempts:        cfg.MaxAttempts,
		RetryDelay:         cfg.RetryDelay,
		ExponentialBackoff: strings.EqualFold(cfg.RetryBackoff, RetryBackoffExponential),
		Logger:             logger,
	})
}

// Do runs fn. A failed attempt is retried if the error is retryable (see IsRetryable)
// and the retry budget is not exhausted.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	notify := func(err error, delay time.Duration) {
		e.logger.Warn("redis operation failed, retrying",
			log.String("operation", op), log.Error(err), log.Duration("delay", delay))
	}
	return retry.DoWithRetry(ctx, e.policy, IsRetryable, notify, retry.WithAttemptTimeout(e.timeout, fn))
}

// IsRetryable reports whether a failed remote operation may succeed if it's repeated.
// Missing keys, cancellation of the caller's context and errors returned by the server
// (except the transient ones) are not retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
		return false
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		for _, prefix := range [...]string{"LOADING ", "READONLY ", "CLUSTERDOWN ", "TRYAGAIN ", "MASTERDOWN "} {
			if strings.HasPrefix(msg, prefix) {
				return true
			}
		}
		return false
	}
	return true
}
