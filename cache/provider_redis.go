/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/acronis/go-resourcekit/log"
	"github.com/acronis/go-resourcekit/redisconn"
)

// DefaultKeyPrefix is a default namespace of cache keys in Redis.
const DefaultKeyPrefix = "cache:"

// DefaultCompressionThreshold is a size of the encoded value above which it's compressed.
const DefaultCompressionThreshold = 1024

// RedisProviderOpts represents options for RedisProvider.
type RedisProviderOpts struct {
	// KeyPrefix is prepended to every key. DefaultKeyPrefix is used if empty.
	KeyPrefix string
	// DefaultTTL is used when Put is called without TTL. Zero means no expiration.
	DefaultTTL time.Duration
	// EnableCompression enables zstd compression of values larger than CompressionThreshold bytes.
	EnableCompression    bool
	CompressionThreshold int
	// Executor runs every remote call with a timeout and a retry budget.
	// If nil, a single attempt without timeout is made.
	Executor *redisconn.Executor
	Logger   log.FieldLogger
}

// RedisProvider is a Provider which keeps JSON-encoded values in Redis under a key prefix.
// Pattern eviction, Size and Clear walk the keyspace with SCAN, so they must not be used in hot paths.
type RedisProvider struct {
	client     redis.UniversalClient
	exec       *redisconn.Executor
	keyPrefix  string
	defaultTTL time.Duration
	codec      *valueCodec
	logger     log.FieldLogger
}

var _ Provider = (*RedisProvider)(nil)

// NewRedisProvider creates a new RedisProvider.
func NewRedisProvider(client redis.UniversalClient, opts RedisProviderOpts) (*RedisProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrInvalidConfig)
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("%w: default TTL cannot be negative", ErrInvalidConfig)
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.CompressionThreshold <= 0 {
		opts.CompressionThreshold = DefaultCompressionThreshold
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.Executor == nil {
		opts.Executor = redisconn.NewExecutor(redisconn.ExecutorOpts{MaxAttempts: 1, Logger: opts.Logger})
	}
	codec, err := newValueCodec(opts.EnableCompression, opts.CompressionThreshold)
	if err != nil {
		return nil, fmt.Errorf("create value codec: %w", err)
	}
	return &RedisProvider{
		client:     client,
		exec:       opts.Executor,
		keyPrefix:  opts.KeyPrefix,
		defaultTTL: opts.DefaultTTL,
		codec:      codec,
		logger:     opts.Logger,
	}, nil
}

// Name returns the provider name.
func (p *RedisProvider) Name() string {
	return ProviderRedis
}

// Put stores the value with the expiration equal to ttl or the default TTL.
func (p *RedisProvider) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := p.codec.encode(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = p.defaultTTL
	}
	if err = p.exec.Do(ctx, "set", func(ctx context.Context) error {
		return p.client.Set(ctx, p.keyPrefix+key, data, ttl).Err()
	}); err != nil {
		return unavailableErr("put", key, err)
	}
	return nil
}

// Get decodes the stored value into dst.
// The value must be read into the same type it was put with (an interface type doesn't match either),
// otherwise ErrTypeMismatch is returned and dst is left untouched.
func (p *RedisProvider) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	var data []byte
	err := p.exec.Do(ctx, "get", func(ctx context.Context) (err error) {
		data, err = p.client.Get(ctx, p.keyPrefix+key).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, unavailableErr("get", key, err)
	}
	if err = p.codec.decode(data, dst); err != nil {
		return false, fmt.Errorf("decode value of key %q: %w", key, err)
	}
	return true, nil
}

// Evict removes the key.
func (p *RedisProvider) Evict(ctx context.Context, key string) error {
	if err := p.exec.Do(ctx, "del", func(ctx context.Context) error {
		return p.client.Del(ctx, p.keyPrefix+key).Err()
	}); err != nil {
		return unavailableErr("evict", key, err)
	}
	return nil
}

// EvictAll removes all keys under the key prefix.
func (p *RedisProvider) EvictAll(ctx context.Context) error {
	deleted, err := redisconn.DeleteMatching(ctx, p.client, p.exec, redisconn.EscapeGlob(p.keyPrefix)+"*")
	if err != nil {
		return unavailableErr("evict all", "*", err)
	}
	p.logger.Debug("cache keys evicted", log.Int("deleted", deleted))
	return nil
}

// EvictByPattern removes every key which un-prefixed form contains the pattern.
// Glob metacharacters of the pattern are matched literally.
func (p *RedisProvider) EvictByPattern(ctx context.Context, pattern string) (int, error) {
	match := redisconn.EscapeGlob(p.keyPrefix) + "*" + redisconn.EscapeGlob(pattern) + "*"
	deleted, err := redisconn.DeleteMatching(ctx, p.client, p.exec, match)
	if err != nil {
		return deleted, unavailableErr("evict by pattern", pattern, err)
	}
	return deleted, nil
}

// Exists reports whether the key is present.
func (p *RedisProvider) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	if err := p.exec.Do(ctx, "exists", func(ctx context.Context) (err error) {
		n, err = p.client.Exists(ctx, p.keyPrefix+key).Result()
		return err
	}); err != nil {
		return false, unavailableErr("exists", key, err)
	}
	return n > 0, nil
}

// Size returns the number of keys under the key prefix.
func (p *RedisProvider) Size(ctx context.Context) (int64, error) {
	var size int64
	if err := redisconn.ForEachMatching(ctx, p.client, p.exec, redisconn.EscapeGlob(p.keyPrefix)+"*", func(keys []string) error {
		size += int64(len(keys))
		return nil
	}); err != nil {
		return 0, unavailableErr("size", "*", err)
	}
	return size, nil
}

// Clear removes all keys under the key prefix.
func (p *RedisProvider) Clear(ctx context.Context) error {
	return p.EvictAll(ctx)
}

// Close releases resources of the value codec. The client is owned by the caller.
func (p *RedisProvider) Close() error {
	p.codec.close()
	return nil
}

func unavailableErr(op string, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", ErrProviderUnavailable, op, key, err)
}
