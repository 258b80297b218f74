/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-redis/redis/v8"
	"github.com/rs/xid"

	"github.com/acronis/go-resourcekit/log"
	"github.com/acronis/go-resourcekit/redisconn"
)

// DefaultKeyPrefix is a default namespace of rate limiting keys in Redis.
const DefaultKeyPrefix = "rl:"

const (
	tokenBucketKeySuffix = ":tb"
	fixedWindowKeySuffix = ":fw"
)

// RedisProviderOpts represents options for RedisProvider.
type RedisProviderOpts struct {
	// KeyPrefix is prepended to every key. DefaultKeyPrefix is used if empty.
	KeyPrefix string
	// Executor runs every remote call with a timeout and a retry budget.
	// If nil, a single attempt without timeout is made.
	Executor *redisconn.Executor
	Clock    clock.Clock
	Logger   log.FieldLogger
	// NewMemberID generates a unique suffix of request ids, so requests made
	// in the same millisecond are counted separately.
	NewMemberID func() string
}

// RedisProvider is a Provider which keeps the state in Redis, so it may be shared by several application instances.
// Every check is a single Lua script which prunes, counts, conditionally records and sets expiration atomically.
type RedisProvider struct {
	client      redis.UniversalClient
	exec        *redisconn.Executor
	keyPrefix   string
	clock       clock.Clock
	logger      log.FieldLogger
	newMemberID func() string
}

var _ Provider = (*RedisProvider)(nil)

// NewRedisProvider creates a new RedisProvider.
func NewRedisProvider(client redis.UniversalClient, opts RedisProviderOpts) (*RedisProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrInvalidConfig)
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.Executor == nil {
		opts.Executor = redisconn.NewExecutor(redisconn.ExecutorOpts{MaxAttempts: 1, Logger: opts.Logger})
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.NewMemberID == nil {
		opts.NewMemberID = func() string { return xid.New().String() }
	}
	return &RedisProvider{
		client:      client,
		exec:        opts.Executor,
		keyPrefix:   opts.KeyPrefix,
		clock:       opts.Clock,
		logger:      opts.Logger,
		newMemberID: opts.NewMemberID,
	}, nil
}

// Name returns the provider name.
func (p *RedisProvider) Name() string {
	return ProviderRedis
}

// CheckRateLimit checks the request and records it if it's accepted.
func (p *RedisProvider) CheckRateLimit(ctx context.Context, req Request) (Result, error) {
	return p.check(ctx, req, true)
}

// PeekRateLimit evaluates the request without recording it.
func (p *RedisProvider) PeekRateLimit(ctx context.Context, req Request) (Result, error) {
	return p.check(ctx, req, false)
}

func (p *RedisProvider) check(ctx context.Context, req Request, consume bool) (Result, error) {
	if err := checkWindow(req); err != nil {
		return Result{}, err
	}

	now := p.clock.Now()
	nowMs := now.UnixMilli()
	windowMs := req.Window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}
	consumeArg := "0"
	if consume {
		consumeArg = "1"
	}

	// The id is generated outside of the retried function, so a retry can't consume the quota twice.
	var (
		script *redis.Script
		key    = p.keyPrefix + req.Key
		args   = []interface{}{nowMs, windowMs, int64(req.Limit), consumeArg, fmt.Sprintf("%d-%s", nowMs, p.newMemberID())}
	)
	switch req.Strategy {
	case StrategySlidingWindow:
		script = slidingWindowScript
	case StrategyTokenBucket:
		script = tokenBucketScript
		key += tokenBucketKeySuffix
	case StrategyFixedWindow:
		script = fixedWindowScript
		key += fixedWindowKeySuffix
	default:
		return Result{}, invalidRequestErr("strategy", "%q is unknown", req.Strategy)
	}

	var reply []int64
	if err := p.exec.Do(ctx, "ratelimit."+string(req.Strategy), func(ctx context.Context) (err error) {
		reply, err = script.Run(ctx, p.client, []string{key}, args...).Int64Slice()
		return err
	}); err != nil {
		return Result{}, fmt.Errorf("run %s script for key %q: %w", req.Strategy, req.Key, err)
	}
	if len(reply) != 4 {
		return Result{}, fmt.Errorf("unexpected reply of %s script for key %q: %v", req.Strategy, req.Key, reply)
	}

	timeUntilReset := time.Duration(reply[3]) * time.Millisecond
	return Result{
		Allowed:        reply[0] == 1,
		Remaining:      nonNegative(reply[1]),
		Total:          reply[2],
		TimeUntilReset: timeUntilReset,
		ResetTime:      now.Add(timeUntilReset),
		Strategy:       req.Strategy,
		Limit:          req.Limit,
		Window:         req.Window,
	}, nil
}

// ResetRateLimit removes all state of the key.
func (p *RedisProvider) ResetRateLimit(ctx context.Context, key string) error {
	fullKey := p.keyPrefix + key
	return p.exec.Do(ctx, "del", func(ctx context.Context) error {
		return p.client.Del(ctx, fullKey, fullKey+tokenBucketKeySuffix, fullKey+fixedWindowKeySuffix).Err()
	})
}

// ClearAll removes state of all keys under the key prefix.
func (p *RedisProvider) ClearAll(ctx context.Context) error {
	deleted, err := redisconn.DeleteMatching(ctx, p.client, p.exec, redisconn.EscapeGlob(p.keyPrefix)+"*")
	if err != nil {
		return fmt.Errorf("clear rate limit keys: %w", err)
	}
	p.logger.Debug("rate limit keys cleared", log.Int("deleted", deleted))
	return nil
}

// RequestCount returns the number of requests recorded for the key by the sliding window strategy
// plus the counter of the current fixed window.
// Sliding window members outside the window are pruned by the next check only, so they may be counted too.
func (p *RedisProvider) RequestCount(ctx context.Context, key string) (int64, error) {
	fullKey := p.keyPrefix + key

	var sliding int64
	if err := p.exec.Do(ctx, "zcard", func(ctx context.Context) (err error) {
		sliding, err = p.client.ZCard(ctx, fullKey).Result()
		return err
	}); err != nil {
		return 0, fmt.Errorf("count sliding window requests for key %q: %w", key, err)
	}

	var fixed int64
	if err := p.exec.Do(ctx, "hget", func(ctx context.Context) (err error) {
		fixed, err = p.client.HGet(ctx, fullKey+fixedWindowKeySuffix, "count").Int64()
		return err
	}); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("count fixed window requests for key %q: %w", key, err)
	}
	return sliding + fixed, nil
}

// Shutdown does nothing, the client is owned by the caller.
func (p *RedisProvider) Shutdown() error {
	return nil
}
