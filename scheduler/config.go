/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acronis/go-admission/config"
	"github.com/acronis/go-admission/tier"
)

// Default values of the client configuration.
const (
	DefaultTier              = tier.NameLow
	DefaultAdmissionInterval = time.Millisecond
	DefaultExpiryInterval    = time.Millisecond * 10
	DefaultExpiryTimeout     = time.Second * 20
)

const cfgDefaultKeyPrefix = "admission"

const (
	cfgKeyClient            = "client"
	cfgKeyTier              = "tier"
	cfgKeyAdmissionInterval = "admissionInterval"
	cfgKeyExpiryInterval    = "expiryInterval"
	cfgKeyExpiryTimeout     = "expiryTimeout"
	cfgKeyClients           = "clients"
)

var errNonPositiveDuration = errors.New("should be positive")

// ClientConfig is the construction-time configuration of a single client's controller.
type ClientConfig struct {
	Client            string        `mapstructure:"client" yaml:"client"`
	Tier              string        `mapstructure:"tier" yaml:"tier"`
	AdmissionInterval time.Duration `mapstructure:"admissionInterval" yaml:"admissionInterval"`
	ExpiryInterval    time.Duration `mapstructure:"expiryInterval" yaml:"expiryInterval"`
	ExpiryTimeout     time.Duration `mapstructure:"expiryTimeout" yaml:"expiryTimeout"`
}

// NewDefaultClientConfig returns a ClientConfig for the client with default tier and intervals.
func NewDefaultClientConfig(client string) ClientConfig {
	return ClientConfig{
		Client:            client,
		Tier:              DefaultTier,
		AdmissionInterval: DefaultAdmissionInterval,
		ExpiryInterval:    DefaultExpiryInterval,
		ExpiryTimeout:     DefaultExpiryTimeout,
	}
}

// Validate checks that the configuration can be used for constructing a controller.
func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.Client) == "" {
		return config.WrapKeyErr(cfgKeyClient, errors.New("cannot be empty"))
	}
	if c.AdmissionInterval <= 0 {
		return config.WrapKeyErr(cfgKeyAdmissionInterval, errNonPositiveDuration)
	}
	if c.ExpiryInterval <= 0 {
		return config.WrapKeyErr(cfgKeyExpiryInterval, errNonPositiveDuration)
	}
	if c.ExpiryTimeout <= 0 {
		return config.WrapKeyErr(cfgKeyExpiryTimeout, errNonPositiveDuration)
	}
	return nil
}

// Config represents the configuration of admission controllers.
// Top-level values describe a single client and serve as defaults for the entries of Clients.
//
// Example (YAML):
//
//	admission:
//	  tier: low
//	  expiryTimeout: 20s
//	  clients:
//	    - client: Murli
//	    - client: Sam
//	      tier: high
type Config struct {
	ClientConfig `mapstructure:",squash" yaml:",inline"`
	Clients      []ClientConfig `mapstructure:"clients" yaml:"clients"`

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
	dp.SetDefault(cfgKeyTier, DefaultTier)
	dp.SetDefault(cfgKeyAdmissionInterval, DefaultAdmissionInterval)
	dp.SetDefault(cfgKeyExpiryInterval, DefaultExpiryInterval)
	dp.SetDefault(cfgKeyExpiryTimeout, DefaultExpiryTimeout)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Client, err = dp.GetString(cfgKeyClient); err != nil {
		return err
	}
	if c.Tier, err = dp.GetString(cfgKeyTier); err != nil {
		return err
	}
	if c.AdmissionInterval, err = dp.GetDuration(cfgKeyAdmissionInterval); err != nil {
		return err
	}
	if c.AdmissionInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyAdmissionInterval, errNonPositiveDuration)
	}
	if c.ExpiryInterval, err = dp.GetDuration(cfgKeyExpiryInterval); err != nil {
		return err
	}
	if c.ExpiryInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyExpiryInterval, errNonPositiveDuration)
	}
	if c.ExpiryTimeout, err = dp.GetDuration(cfgKeyExpiryTimeout); err != nil {
		return err
	}
	if c.ExpiryTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyExpiryTimeout, errNonPositiveDuration)
	}

	c.Clients = nil
	if err = dp.UnmarshalKey(cfgKeyClients, &c.Clients, config.WithStrictDecoding()); err != nil {
		return err
	}
	if len(c.Clients) == 0 && strings.TrimSpace(c.Client) == "" {
		return dp.WrapKeyErr(cfgKeyClient, errors.New("cannot be empty when no clients are listed"))
	}
	seen := make(map[string]bool)
	for i, cc := range c.ClientConfigs() {
		if err = cc.Validate(); err != nil {
			return dp.WrapKeyErr(fmt.Sprintf("%s[%d]", cfgKeyClients, i), err)
		}
		if seen[cc.Client] {
			return dp.WrapKeyErr(cfgKeyClients, fmt.Errorf("client %q is listed more than once", cc.Client))
		}
		seen[cc.Client] = true
	}
	return nil
}

// ClientConfigs returns the effective configuration of every client.
// If Clients is empty, the top-level client is the only one.
// Unset fields of the listed clients are taken from the top level.
func (c *Config) ClientConfigs() []ClientConfig {
	if len(c.Clients) == 0 {
		return []ClientConfig{c.ClientConfig}
	}
	res := make([]ClientConfig, 0, len(c.Clients))
	for _, cc := range c.Clients {
		if cc.Tier == "" {
			cc.Tier = c.Tier
		}
		if cc.AdmissionInterval == 0 {
			cc.AdmissionInterval = c.AdmissionInterval
		}
		if cc.ExpiryInterval == 0 {
			cc.ExpiryInterval = c.ExpiryInterval
		}
		if cc.ExpiryTimeout == 0 {
			cc.ExpiryTimeout = c.ExpiryTimeout
		}
		res = append(res, cc)
	}
	return res
}
