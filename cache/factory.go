/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/go-redis/redis/v8"

	"github.com/acronis/go-resourcekit/log"
	"github.com/acronis/go-resourcekit/lrucache"
	"github.com/acronis/go-resourcekit/redisconn"
)

// ProviderDeps contains dependencies which may be required by a provider.
type ProviderDeps struct {
	// RedisClient is required for the "redis" provider.
	RedisClient   redis.UniversalClient
	RedisExecutor *redisconn.Executor
	// RedisConfig provides compression settings of the "redis" provider. Compression is off if it's nil.
	RedisConfig *redisconn.Config
	// StoreMetrics collects metrics of the in-process store of the "caffeine" provider.
	// It's required if Config.Caffeine.RecordStats is set, registering it is up to the caller.
	StoreMetrics lrucache.MetricsCollector
	Clock        clock.Clock
	Logger       log.FieldLogger
}

// NewProvider creates the provider selected by cfg.Provider.
func NewProvider(cfg *Config, deps ProviderDeps) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderCaffeine, "":
		opts := BoundedProviderOpts{
			MaximumSize:       cfg.Caffeine.MaximumSize,
			ExpireAfterWrite:  cfg.Caffeine.ExpireAfterWrite,
			ExpireAfterAccess: cfg.Caffeine.ExpireAfterAccess,
			Clock:             deps.Clock,
		}
		if cfg.Caffeine.RecordStats {
			if deps.StoreMetrics == nil {
				return nil, fmt.Errorf("%w: store metrics collector is required when stats recording is enabled", ErrInvalidConfig)
			}
			opts.MetricsCollector = deps.StoreMetrics
		}
		p, err := NewBoundedProvider(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderMemory:
		return NewSimpleProvider(deps.Clock), nil
	case ProviderRedis:
		opts := RedisProviderOpts{
			KeyPrefix:  cfg.StoreKeyPrefix,
			DefaultTTL: cfg.DefaultTTL,
			Executor:   deps.RedisExecutor,
			Logger:     deps.Logger,
		}
		if deps.RedisConfig != nil {
			opts.EnableCompression = deps.RedisConfig.EnableCompression
			opts.CompressionThreshold = int(deps.RedisConfig.CompressionThreshold)
			if opts.Executor == nil {
				opts.Executor = redisconn.NewExecutorFromConfig(deps.RedisConfig, deps.Logger)
			}
		}
		p, err := NewRedisProvider(deps.RedisClient, opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// NewServiceFromConfig creates the provider selected by the configuration and a Service on top of it.
// If caching is disabled, no provider is created.
func NewServiceFromConfig(cfg *Config, deps ProviderDeps, opts ServiceOpts) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = deps.Logger
	}
	if !cfg.Enabled {
		return NewService(nil, cfg, opts)
	}
	provider, err := NewProvider(cfg, deps)
	if err != nil {
		return nil, err
	}
	return NewService(provider, cfg, opts)
}
