/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package tier

import (
	"strings"

	"github.com/acronis/go-admission/config"
)

const cfgDefaultKeyPrefix = "tiers"

const (
	cfgKeyUseDefaults = "useDefaults"
	cfgKeyDefinitions = "definitions"
)

// Config describes the set of license tiers available to clients.
//
// Example (YAML):
//
//	tiers:
//	  useDefaults: true
//	  definitions:
//	    - name: enterprise
//	      quotaPerWindow: 500
//	      windowSeconds: 60
type Config struct {
	UseDefaults bool   `mapstructure:"useDefaults" yaml:"useDefaults"`
	Definitions []Tier `mapstructure:"definitions" yaml:"definitions"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new tiers configuration.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
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
	dp.SetDefault(cfgKeyUseDefaults, true)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.UseDefaults, err = dp.GetBool(cfgKeyUseDefaults); err != nil {
		return err
	}
	c.Definitions = nil
	if err = dp.UnmarshalKey(cfgKeyDefinitions, &c.Definitions, config.WithStrictDecoding()); err != nil {
		return err
	}
	if _, err = c.Registry(); err != nil {
		return dp.WrapKeyErr(cfgKeyDefinitions, err)
	}
	return nil
}

// Registry builds a Registry from the configured definitions.
// When UseDefaults is set, built-in tiers that are not redefined are added too.
func (c *Config) Registry() (*Registry, error) {
	tiers := append([]Tier(nil), c.Definitions...)
	if c.UseDefaults {
		defined := make(map[string]bool, len(tiers))
		for _, t := range tiers {
			defined[strings.ToLower(strings.TrimSpace(t.Name))] = true
		}
		for _, t := range Defaults() {
			if !defined[t.Name] {
				tiers = append(tiers, t)
			}
		}
	}
	return NewRegistry(tiers...)
}
