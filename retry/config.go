/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"errors"
	"strings"
	"time"

	"github.com/acronis/go-admission/config"
)

// Policy kinds.
const (
	PolicyKindNone        = "none"
	PolicyKindExponential = "exponential"
	PolicyKindConstant    = "constant"
)

const cfgDefaultKeyPrefix = "retry"

const (
	cfgKeyPolicy      = "policy"
	cfgKeyInterval    = "interval"
	cfgKeyMaxAttempts = "maxAttempts"
)

// Default values of the retry configuration.
const (
	DefaultPolicyKind  = PolicyKindExponential
	DefaultInterval    = time.Millisecond * 100
	DefaultMaxAttempts = 3
)

// Config represents a retry policy configuration.
type Config struct {
	Policy      string        `mapstructure:"policy" yaml:"policy"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	MaxAttempts int           `mapstructure:"maxAttempts" yaml:"maxAttempts"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config with the specified key prefix.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyPolicy, DefaultPolicyKind)
	dp.SetDefault(cfgKeyInterval, DefaultInterval)
	dp.SetDefault(cfgKeyMaxAttempts, DefaultMaxAttempts)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Policy, err = dp.GetStringFromSet(
		cfgKeyPolicy, []string{PolicyKindNone, PolicyKindExponential, PolicyKindConstant}, true); err != nil {
		return err
	}
	c.Policy = strings.ToLower(c.Policy)
	if c.Interval, err = dp.GetDuration(cfgKeyInterval); err != nil {
		return err
	}
	if c.Interval <= 0 {
		return dp.WrapKeyErr(cfgKeyInterval, errors.New("should be positive"))
	}
	if c.MaxAttempts, err = dp.GetInt(cfgKeyMaxAttempts); err != nil {
		return err
	}
	if c.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyMaxAttempts, errors.New("cannot be negative"))
	}
	return nil
}

// NewPolicy returns the configured retry policy.
func (c *Config) NewPolicy() Policy {
	switch c.Policy {
	case PolicyKindNone:
		return NoRetryPolicy
	case PolicyKindConstant:
		return NewConstantBackoffPolicy(c.Interval, c.MaxAttempts)
	}
	return NewExponentialBackoffPolicy(c.Interval, c.MaxAttempts)
}
