/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-resourcekit/config"
	"github.com/acronis/go-resourcekit/lrucache"
	"github.com/acronis/go-resourcekit/redisconn"
)

func TestNewProvider(t *testing.T) {
	cfg := NewDefaultConfig()

	p, err := NewProvider(cfg, ProviderDeps{})
	require.NoError(t, err)
	require.IsType(t, &BoundedProvider{}, p)

	cfg.Provider = "Memory"
	p, err = NewProvider(cfg, ProviderDeps{})
	require.NoError(t, err)
	require.IsType(t, &SimpleProvider{}, p)

	cfg.Provider = ProviderRedis
	_, err = NewProvider(cfg, ProviderDeps{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	client, _ := redismock.NewClientMock()
	redisCfg := redisconn.NewDefaultConfig()
	redisCfg.EnableCompression = true
	redisCfg.CompressionThreshold = 2 * config.ByteSize(1024)
	p, err = NewProvider(cfg, ProviderDeps{RedisClient: client, RedisConfig: redisCfg})
	require.NoError(t, err)
	redisProvider := p.(*RedisProvider)
	require.Equal(t, DefaultKeyPrefix, redisProvider.keyPrefix)
	require.Equal(t, DefaultTTL, redisProvider.defaultTTL)
	require.True(t, redisProvider.codec.compress)
	require.Equal(t, 2048, redisProvider.codec.threshold)
	require.NoError(t, redisProvider.Close())

	cfg.Provider = "ehcache"
	_, err = NewProvider(cfg, ProviderDeps{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg.Provider = ProviderCaffeine
	cfg.Caffeine.RecordStats = true
	_, err = NewProvider(cfg, ProviderDeps{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	metrics := lrucache.NewPrometheusMetrics()
	p, err = NewProvider(cfg, ProviderDeps{StoreMetrics: metrics})
	require.NoError(t, err)
	require.NoError(t, p.Put(context.Background(), "k", "v", 0))
	var v string
	found, err := p.Get(context.Background(), "k", &v)
	require.NoError(t, err)
	require.True(t, found)
}

func TestNewServiceFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Enabled = false
		cfg.Provider = ProviderRedis // Not created, so the missing client is not an error.
		svc, err := NewServiceFromConfig(cfg, ProviderDeps{}, ServiceOpts{})
		require.NoError(t, err)
		require.False(t, svc.Enabled())
		require.Empty(t, svc.ProviderName())
		require.NoError(t, svc.Shutdown())
	})

	t.Run("enabled", func(t *testing.T) {
		svc, err := NewServiceFromConfig(NewDefaultConfig(), ProviderDeps{}, ServiceOpts{})
		require.NoError(t, err)
		require.Equal(t, ProviderCaffeine, svc.ProviderName())
		svc.Put(ctx, "k", 42)
		n, ok := Get[int](ctx, svc, "k")
		require.True(t, ok)
		require.Equal(t, 42, n)
		require.NoError(t, svc.Shutdown())
	})

	t.Run("misconfigured", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Provider = ProviderRedis
		_, err := NewServiceFromConfig(cfg, ProviderDeps{}, ServiceOpts{})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}
