/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

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
	// StoreMetrics collects metrics of the in-process store of the "memory" provider.
	StoreMetrics lrucache.MetricsCollector
	Clock        clock.Clock
	Logger       log.FieldLogger
}

// NewProvider creates the provider selected by cfg.Provider.
func NewProvider(cfg *Config, deps ProviderDeps) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderMemory, "":
		p, err := NewMemoryProvider(MemoryProviderOpts{
			MaxEntries:       cfg.Memory.MaxEntries,
			CleanupInterval:  cfg.Memory.CleanupInterval,
			StaleAfter:       cfg.Memory.StaleAfter,
			ShutdownTimeout:  cfg.Memory.ShutdownTimeout,
			MetricsCollector: deps.StoreMetrics,
			Clock:            deps.Clock,
			Logger:           deps.Logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderSimple:
		return NewSimpleProvider(deps.Clock), nil
	case ProviderRedis:
		p, err := NewRedisProvider(deps.RedisClient, RedisProviderOpts{
			KeyPrefix: cfg.StoreKeyPrefix,
			Executor:  deps.RedisExecutor,
			Clock:     deps.Clock,
			Logger:    deps.Logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// NewServiceFromConfig creates the provider selected by the configuration and a Service on top of it.
// If rate limiting is disabled, no provider is created.
func NewServiceFromConfig(cfg *Config, deps ProviderDeps, opts ServiceOpts) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = deps.Logger
	}
	if opts.Clock == nil {
		opts.Clock = deps.Clock
	}
	if !cfg.Enabled {
		return NewService(nil, cfg, opts)
	}
	provider, err := NewProvider(cfg, deps)
	if err != nil {
		return nil, err
	}
	svc, err := NewService(provider, cfg, opts)
	if err != nil {
		_ = provider.Shutdown()
		return nil, err
	}
	return svc, nil
}
