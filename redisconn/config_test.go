/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package redisconn

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-resourcekit/config"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		expected := NewDefaultConfig()
		require.Equal(t, expected, cfg)
	})

	t.Run("custom values", func(t *testing.T) {
		cfgData := `
redis:
  address: redis.local:6380
  password: secret
  db: 2
  dialTimeout: 2s
  operationTimeout: 300ms
  maxAttempts: 5
  retryDelay: 50ms
  retryBackoff: Exponential
  enableCompression: true
  compressionThreshold: 4KB
`
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "redis.local:6380", cfg.Address)
		require.Equal(t, "secret", cfg.Password)
		require.Equal(t, 2, cfg.DB)
		require.Equal(t, 2*time.Second, cfg.DialTimeout)
		require.Equal(t, 300*time.Millisecond, cfg.OperationTimeout)
		require.Equal(t, 5, cfg.MaxAttempts)
		require.Equal(t, 50*time.Millisecond, cfg.RetryDelay)
		require.Equal(t, RetryBackoffExponential, cfg.RetryBackoff)
		require.True(t, cfg.EnableCompression)
		require.Equal(t, config.ByteSize(4096), cfg.CompressionThreshold)
	})

	t.Run("custom key prefix", func(t *testing.T) {
		cfg := NewConfig(WithKeyPrefix("storage.redis"))
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"storage":{"redis":{"address":"10.0.0.1:6379"}}}`), config.DataTypeJSON, cfg)
		require.NoError(t, err)
		require.Equal(t, "10.0.0.1:6379", cfg.Address)
		require.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			data   string
			errMsg string
		}{
			{"empty address", `{"redis":{"address":""}}`, "redis.address: cannot be empty"},
			{"negative db", `{"redis":{"db":-1}}`, "redis.db: should be >= 0"},
			{"zero operation timeout", `{"redis":{"operationTimeout":"0s"}}`, "redis.operationTimeout: should be > 0"},
			{"zero attempts", `{"redis":{"maxAttempts":0}}`, "redis.maxAttempts: should be >= 1"},
			{"negative retry delay", `{"redis":{"retryDelay":"-1s"}}`, "redis.retryDelay: should be >= 0"},
			{"unknown retry backoff", `{"redis":{"retryBackoff":"linear"}}`,
				`redis.retryBackoff: unknown value "linear", should be one of [constant exponential]`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
					bytes.NewBufferString(tt.data), config.DataTypeJSON, NewConfig())
				require.EqualError(t, err, tt.errMsg)
			})
		}
	})
}
