/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-resourcekit/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyEnabled               = "enabled"
	cfgKeyProvider              = "provider"
	cfgKeyDefaultStrategy       = "defaultStrategy"
	cfgKeyDefaultLimit          = "defaultLimit"
	cfgKeyDefaultWindow         = "defaultWindow"
	cfgKeySkipOnFailure         = "skipOnFailure"
	cfgKeyKeyPrefix             = "keyPrefix"
	cfgKeyMemoryMaxEntries      = "memory.maxEntries"
	cfgKeyMemoryCleanupInterval = "memory.cleanupInterval"
	cfgKeyMemoryStaleAfter      = "memory.staleAfter"
	cfgKeyMemoryShutdownTimeout = "memory.shutdownTimeout"
	cfgKeyEndpoints             = "endpoints"
	cfgKeyUserTypes             = "userTypes"
)

// Default values.
const (
	DefaultProvider = ProviderMemory
	DefaultStrategy = StrategySlidingWindow
	DefaultLimit    = 100
	DefaultWindow   = time.Minute
)

// MemoryConfig represents configuration of MemoryProvider.
type MemoryConfig struct {
	MaxEntries      int           `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`
	CleanupInterval time.Duration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`
	StaleAfter      time.Duration `mapstructure:"staleAfter" yaml:"staleAfter" json:"staleAfter"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout" yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// LimitConfig overrides the limit and the window. Zero values mean no override.
type LimitConfig struct {
	Limit  int           `mapstructure:"limit" yaml:"limit" json:"limit"`
	Window time.Duration `mapstructure:"window" yaml:"window" json:"window"`
}

// EndpointConfig represents rate limiting settings of a single endpoint.
type EndpointConfig struct {
	// Enabled may be used for switching off rate limiting of the endpoint. Nil means enabled.
	Enabled  *bool         `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Limit    int           `mapstructure:"limit" yaml:"limit" json:"limit"`
	Window   time.Duration `mapstructure:"window" yaml:"window" json:"window"`
	Strategy Strategy      `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	// UserTypeLimits overrides limits of the endpoint for the user types.
	UserTypeLimits map[string]LimitConfig `mapstructure:"userTypeLimits" yaml:"userTypeLimits" json:"userTypeLimits"`
}

// IsEnabled reports whether rate limiting of the endpoint is switched on.
func (c EndpointConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Config represents a set of configuration parameters for rate limiting.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Provider        string        `mapstructure:"provider" yaml:"provider" json:"provider"`
	DefaultStrategy Strategy      `mapstructure:"defaultStrategy" yaml:"defaultStrategy" json:"defaultStrategy"`
	DefaultLimit    int           `mapstructure:"defaultLimit" yaml:"defaultLimit" json:"defaultLimit"`
	DefaultWindow   time.Duration `mapstructure:"defaultWindow" yaml:"defaultWindow" json:"defaultWindow"`

	// SkipOnFailure selects the fail-open policy: requests are allowed when the provider fails.
	SkipOnFailure bool `mapstructure:"skipOnFailure" yaml:"skipOnFailure" json:"skipOnFailure"`

	// StoreKeyPrefix is a namespace of keys in the shared store (Redis).
	StoreKeyPrefix string `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`

	Memory MemoryConfig `mapstructure:"memory" yaml:"memory" json:"memory"`

	// Endpoints contains per-endpoint overrides. Names are case-insensitive and may contain "*" wildcards,
	// an exact name wins over patterns, and a longer pattern wins over a shorter one.
	Endpoints map[string]EndpointConfig `mapstructure:"endpoints" yaml:"endpoints" json:"endpoints"`

	// UserTypes contains per-user-type overrides of the default limit. Names are case-insensitive.
	UserTypes map[string]LimitConfig `mapstructure:"userTypes" yaml:"userTypes" json:"userTypes"`

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
	cfg.DefaultStrategy = DefaultStrategy
	cfg.DefaultLimit = DefaultLimit
	cfg.DefaultWindow = DefaultWindow
	cfg.SkipOnFailure = true
	cfg.StoreKeyPrefix = DefaultKeyPrefix
	cfg.Memory = MemoryConfig{
		MaxEntries:      DefaultMemoryMaxEntries,
		CleanupInterval: DefaultMemoryCleanupInterval,
		StaleAfter:      DefaultMemoryStaleAfter,
		ShutdownTimeout: DefaultMemoryShutdownTimeout,
	}
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
	dp.SetDefault(cfgKeyDefaultStrategy, string(DefaultStrategy))
	dp.SetDefault(cfgKeyDefaultLimit, DefaultLimit)
	dp.SetDefault(cfgKeyDefaultWindow, DefaultWindow.String())
	dp.SetDefault(cfgKeySkipOnFailure, true)
	dp.SetDefault(cfgKeyKeyPrefix, DefaultKeyPrefix)
	dp.SetDefault(cfgKeyMemoryMaxEntries, DefaultMemoryMaxEntries)
	dp.SetDefault(cfgKeyMemoryCleanupInterval, DefaultMemoryCleanupInterval.String())
	dp.SetDefault(cfgKeyMemoryStaleAfter, DefaultMemoryStaleAfter.String())
	dp.SetDefault(cfgKeyMemoryShutdownTimeout, DefaultMemoryShutdownTimeout.String())
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.Provider, err = dp.GetStringFromSet(cfgKeyProvider, []string{ProviderMemory, ProviderRedis, ProviderSimple}, true); err != nil {
		return err
	}
	c.Provider = strings.ToLower(c.Provider)

	strategyStr, err := dp.GetString(cfgKeyDefaultStrategy)
	if err != nil {
		return err
	}
	if c.DefaultStrategy, err = ParseStrategy(strategyStr); err != nil {
		return dp.WrapKeyErr(cfgKeyDefaultStrategy, err)
	}
	if c.DefaultLimit, err = dp.GetInt(cfgKeyDefaultLimit); err != nil {
		return err
	}
	if c.DefaultLimit <= 0 {
		return dp.WrapKeyErr(cfgKeyDefaultLimit, fmt.Errorf("should be > 0"))
	}
	if c.DefaultWindow, err = getPositiveDuration(dp, cfgKeyDefaultWindow); err != nil {
		return err
	}
	if c.SkipOnFailure, err = dp.GetBool(cfgKeySkipOnFailure); err != nil {
		return err
	}
	if c.StoreKeyPrefix, err = dp.GetString(cfgKeyKeyPrefix); err != nil {
		return err
	}

	if err = c.setMemoryConfig(dp); err != nil {
		return err
	}
	if err = c.setOverrides(dp); err != nil {
		return err
	}
	return nil
}

func (c *Config) setMemoryConfig(dp config.DataProvider) error {
	var err error
	if c.Memory.MaxEntries, err = dp.GetInt(cfgKeyMemoryMaxEntries); err != nil {
		return err
	}
	if c.Memory.MaxEntries <= 0 {
		return dp.WrapKeyErr(cfgKeyMemoryMaxEntries, fmt.Errorf("should be > 0"))
	}
	if c.Memory.CleanupInterval, err = getPositiveDuration(dp, cfgKeyMemoryCleanupInterval); err != nil {
		return err
	}
	if c.Memory.StaleAfter, err = getPositiveDuration(dp, cfgKeyMemoryStaleAfter); err != nil {
		return err
	}
	if c.Memory.ShutdownTimeout, err = getPositiveDuration(dp, cfgKeyMemoryShutdownTimeout); err != nil {
		return err
	}
	return nil
}

func (c *Config) setOverrides(dp config.DataProvider) error {
	c.Endpoints = nil
	if dp.IsSet(cfgKeyEndpoints) {
		var endpoints map[string]EndpointConfig
		if err := dp.UnmarshalKey(cfgKeyEndpoints, &endpoints); err != nil {
			return err
		}
		c.Endpoints = make(map[string]EndpointConfig, len(endpoints))
		for name, endpoint := range endpoints {
			key := cfgKeyEndpoints + "." + name
			if endpoint.Strategy != "" {
				st, err := ParseStrategy(string(endpoint.Strategy))
				if err != nil {
					return dp.WrapKeyErr(key+".strategy", err)
				}
				endpoint.Strategy = st
			}
			if err := validateLimitConfig(dp, key, LimitConfig{Limit: endpoint.Limit, Window: endpoint.Window}); err != nil {
				return err
			}
			userTypeLimits := make(map[string]LimitConfig, len(endpoint.UserTypeLimits))
			for userType, limitCfg := range endpoint.UserTypeLimits {
				if err := validateLimitConfig(dp, key+".userTypeLimits."+userType, limitCfg); err != nil {
					return err
				}
				userTypeLimits[strings.ToLower(userType)] = limitCfg
			}
			endpoint.UserTypeLimits = userTypeLimits
			c.Endpoints[strings.ToLower(name)] = endpoint
		}
	}

	c.UserTypes = nil
	if dp.IsSet(cfgKeyUserTypes) {
		var userTypes map[string]LimitConfig
		if err := dp.UnmarshalKey(cfgKeyUserTypes, &userTypes); err != nil {
			return err
		}
		c.UserTypes = make(map[string]LimitConfig, len(userTypes))
		for name, limitCfg := range userTypes {
			if err := validateLimitConfig(dp, cfgKeyUserTypes+"."+name, limitCfg); err != nil {
				return err
			}
			c.UserTypes[strings.ToLower(name)] = limitCfg
		}
	}
	return nil
}

func validateLimitConfig(dp config.DataProvider, key string, cfg LimitConfig) error {
	if cfg.Limit < 0 {
		return dp.WrapKeyErr(key+".limit", fmt.Errorf("should be >= 0"))
	}
	if cfg.Window < 0 {
		return dp.WrapKeyErr(key+".window", fmt.Errorf("should be >= 0"))
	}
	return nil
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
