/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-resourcekit/config"
)

const cfgDefaultKeyPrefix = "cache"

const (
	cfgKeyEnabled                   = "enabled"
	cfgKeyProvider                  = "provider"
	cfgKeyDefaultTTL                = "defaultTtl"
	cfgKeyKeyPrefix                 = "keyPrefix"
	cfgKeyCaffeineMaximumSize       = "caffeine.maximumSize"
	cfgKeyCaffeineExpireAfterWrite  = "caffeine.expireAfterWrite"
	cfgKeyCaffeineExpireAfterAccess = "caffeine.expireAfterAccess"
	cfgKeyCaffeineRecordStats       = "caffeine.recordStats"
	cfgKeyAsyncMaxInFlight          = "async.maxInFlight"
)

// DefaultProvider is a provider which is used if it's not configured.
const DefaultProvider = ProviderCaffeine

// CaffeineConfig represents configuration of BoundedProvider.
type CaffeineConfig struct {
	MaximumSize       int           `mapstructure:"maximumSize" yaml:"maximumSize" json:"maximumSize"`
	ExpireAfterWrite  time.Duration `mapstructure:"expireAfterWrite" yaml:"expireAfterWrite" json:"expireAfterWrite"`
	ExpireAfterAccess time.Duration `mapstructure:"expireAfterAccess" yaml:"expireAfterAccess" json:"expireAfterAccess"`
	// RecordStats enables Prometheus metrics of the in-process store.
	RecordStats bool `mapstructure:"recordStats" yaml:"recordStats" json:"recordStats"`
}

// AsyncConfig represents configuration of async cache operations.
type AsyncConfig struct {
	MaxInFlight int `mapstructure:"maxInFlight" yaml:"maxInFlight" json:"maxInFlight"`
}

// Config represents a set of configuration parameters for caching.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Provider   string        `mapstructure:"provider" yaml:"provider" json:"provider"`
	DefaultTTL time.Duration `mapstructure:"defaultTtl" yaml:"defaultTtl" json:"defaultTtl"`

	// StoreKeyPrefix is a namespace of keys in the shared store (Redis).
	StoreKeyPrefix string `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`

	Caffeine CaffeineConfig `mapstructure:"caffeine" yaml:"caffeine" json:"caffeine"`
	Async    AsyncConfig    `mapstructure:"async" yaml:"async" json:"async"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Enabled = true
	cfg.Provider = DefaultProvider
	cfg.DefaultTTL = DefaultTTL
	cfg.StoreKeyPrefix = DefaultKeyPrefix
	cfg.Caffeine = CaffeineConfig{
		MaximumSize:       DefaultMaximumSize,
		ExpireAfterWrite:  DefaultExpireAfterWrite,
		ExpireAfterAccess: DefaultExpireAfterAccess,
	}
	cfg.Async = AsyncConfig{MaxInFlight: DefaultAsyncMaxInFlight}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, true)
	dp.SetDefault(cfgKeyProvider, DefaultProvider)
	dp.SetDefault(cfgKeyDefaultTTL, DefaultTTL.String())
	dp.SetDefault(cfgKeyKeyPrefix, DefaultKeyPrefix)
	dp.SetDefault(cfgKeyCaffeineMaximumSize, DefaultMaximumSize)
	dp.SetDefault(cfgKeyCaffeineExpireAfterWrite, DefaultExpireAfterWrite.String())
	dp.SetDefault(cfgKeyCaffeineExpireAfterAccess, DefaultExpireAfterAccess.String())
	dp.SetDefault(cfgKeyCaffeineRecordStats, false)
	dp.SetDefault(cfgKeyAsyncMaxInFlight, DefaultAsyncMaxInFlight)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.Provider, err = dp.GetStringFromSet(cfgKeyProvider, []string{ProviderCaffeine, ProviderRedis, ProviderMemory}, true); err != nil {
		return err
	}
	c.Provider = strings.ToLower(c.Provider)
	if c.DefaultTTL, err = getPositiveDuration(dp, cfgKeyDefaultTTL); err != nil {
		return err
	}
	if c.StoreKeyPrefix, err = dp.GetString(cfgKeyKeyPrefix); err != nil {
		return err
	}

	if c.Caffeine.MaximumSize, err = getPositiveInt(dp, cfgKeyCaffeineMaximumSize); err != nil {
		return err
	}
	if c.Caffeine.ExpireAfterWrite, err = getPositiveDuration(dp, cfgKeyCaffeineExpireAfterWrite); err != nil {
		return err
	}
	if c.Caffeine.ExpireAfterAccess, err = getPositiveDuration(dp, cfgKeyCaffeineExpireAfterAccess); err != nil {
		return err
	}
	if c.Caffeine.RecordStats, err = dp.GetBool(cfgKeyCaffeineRecordStats); err != nil {
		return err
	}

	if c.Async.MaxInFlight, err = getPositiveInt(dp, cfgKeyAsyncMaxInFlight); err != nil {
		return err
	}
	return nil
}

func getPositiveInt(dp config.DataProvider, key string) (int, error) {
	n, err := dp.GetInt(key)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("should be > 0"))
	}
	return n, nil
}

func getPositiveDuration(dp config.DataProvider, key string) (time.Duration, error) {
	d, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("should be > 0"))
	}
	return d, nil
}
