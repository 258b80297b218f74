/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package redisconn

import (
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-resourcekit/config"
)

const cfgDefaultKeyPrefix = "redis"

const (
	cfgKeyAddress              = "address"
	cfgKeyPassword             = "password"
	cfgKeyDB                   = "db"
	cfgKeyDialTimeout          = "dialTimeout"
	cfgKeyOperationTimeout     = "operationTimeout"
	cfgKeyMaxAttempts          = "maxAttempts"
	cfgKeyRetryDelay           = "retryDelay"
	cfgKeyRetryBackoff         = "retryBackoff"
	cfgKeyEnableCompression    = "enableCompression"
	cfgKeyCompressionThreshold = "compressionThreshold"
)

// Default values.
const (
	DefaultAddress              = "localhost:6379"
	DefaultDialTimeout          = 5 * time.Second
	DefaultOperationTimeout     = time.Second
	DefaultMaxAttempts          = 3
	DefaultRetryDelay           = 100 * time.Millisecond
	DefaultRetryBackoff         = RetryBackoffConstant
	DefaultCompressionThreshold = config.ByteSize(1024)
)

// Retry backoff kinds.
const (
	RetryBackoffConstant    = "constant"
	RetryBackoffExponential = "exponential"
)

// Config represents a set of configuration parameters for the Redis connection
// shared by the networked rate limiting and caching providers.
type Config struct {
	Address  string `mapstructure:"address" yaml:"address" json:"address"`
	Password string `mapstructure:"password" yaml:"password" json:"password"`
	DB       int    `mapstructure:"db" yaml:"db" json:"db"`

	// DialTimeout limits establishing of a new connection and the connectivity test at startup.
	DialTimeout time.Duration `mapstructure:"dialTimeout" yaml:"dialTimeout" json:"dialTimeout"`

	// OperationTimeout limits every single attempt of a remote operation.
	OperationTimeout time.Duration `mapstructure:"operationTimeout" yaml:"operationTimeout" json:"operationTimeout"`

	// MaxAttempts is the retry budget of a remote operation (including the first attempt).
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`

	// RetryDelay is a delay between attempts. With the exponential backoff it's the initial delay.
	RetryDelay time.Duration `mapstructure:"retryDelay" yaml:"retryDelay" json:"retryDelay"`

	// RetryBackoff is either "constant" or "exponential".
	RetryBackoff string `mapstructure:"retryBackoff" yaml:"retryBackoff" json:"retryBackoff"`

	// EnableCompression enables compression of cached values bigger than CompressionThreshold.
	EnableCompression    bool            `mapstructure:"enableCompression" yaml:"enableCompression" json:"enableCompression"`
	CompressionThreshold config.ByteSize `mapstructure:"compressionThreshold" yaml:"compressionThreshold" json:"compressionThreshold"`

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
	cfg.Address = DefaultAddress
	cfg.DialTimeout = DefaultDialTimeout
	cfg.OperationTimeout = DefaultOperationTimeout
	cfg.MaxAttempts = DefaultMaxAttempts
	cfg.RetryDelay = DefaultRetryDelay
	cfg.RetryBackoff = DefaultRetryBackoff
	cfg.CompressionThreshold = DefaultCompressionThreshold
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
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	dp.SetDefault(cfgKeyDialTimeout, DefaultDialTimeout.String())
	dp.SetDefault(cfgKeyOperationTimeout, DefaultOperationTimeout.String())
	dp.SetDefault(cfgKeyMaxAttempts, DefaultMaxAttempts)
	dp.SetDefault(cfgKeyRetryDelay, DefaultRetryDelay.String())
	dp.SetDefault(cfgKeyRetryBackoff, DefaultRetryBackoff)
	dp.SetDefault(cfgKeyCompressionThreshold, uint64(DefaultCompressionThreshold))
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("cannot be empty"))
	}
	if c.Password, err = dp.GetString(cfgKeyPassword); err != nil {
		return err
	}
	if c.DB, err = dp.GetInt(cfgKeyDB); err != nil {
		return err
	}
	if c.DB < 0 {
		return dp.WrapKeyErr(cfgKeyDB, fmt.Errorf("should be >= 0"))
	}
	if c.DialTimeout, err = getPositiveDuration(dp, cfgKeyDialTimeout); err != nil {
		return err
	}
	if c.OperationTimeout, err = getPositiveDuration(dp, cfgKeyOperationTimeout); err != nil {
		return err
	}
	if c.MaxAttempts, err = dp.GetInt(cfgKeyMaxAttempts); err != nil {
		return err
	}
	if c.MaxAttempts < 1 {
		return dp.WrapKeyErr(cfgKeyMaxAttempts, fmt.Errorf("should be >= 1"))
	}
	if c.RetryDelay, err = dp.GetDuration(cfgKeyRetryDelay); err != nil {
		return err
	}
	if c.RetryDelay < 0 {
		return dp.WrapKeyErr(cfgKeyRetryDelay, fmt.Errorf("should be >= 0"))
	}
	if c.RetryBackoff, err = dp.GetStringFromSet(
		cfgKeyRetryBackoff, []string{RetryBackoffConstant, RetryBackoffExponential}, true); err != nil {
		return err
	}
	c.RetryBackoff = strings.ToLower(c.RetryBackoff)
	if c.EnableCompression, err = dp.GetBool(cfgKeyEnableCompression); err != nil {
		return err
	}
	if c.CompressionThreshold, err = dp.GetByteSize(cfgKeyCompressionThreshold); err != nil {
		return err
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
