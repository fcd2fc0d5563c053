/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"path/filepath"
	"strings"

	"github.com/acronis/go-admission/config"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/opsserver"
	"github.com/acronis/go-admission/retry"
	"github.com/acronis/go-admission/scheduler"
	"github.com/acronis/go-admission/tier"
)

const cfgKeyPrefixDispatchRetry = "dispatch.retry"

type appConfig struct {
	Log       *log.Config
	Tiers     *tier.Config
	Admission *scheduler.Config
	Retry     *retry.Config
	OpsServer *opsserver.Config
}

func newAppConfig() *appConfig {
	return &appConfig{
		Log:       log.NewConfig(),
		Tiers:     tier.NewConfig(),
		Admission: scheduler.NewConfig(),
		Retry:     retry.NewConfigWithKeyPrefix(cfgKeyPrefixDispatchRetry),
		OpsServer: opsserver.NewConfig(),
	}
}

func (c *appConfig) all() []config.Config {
	return []config.Config{c.Log, c.Tiers, c.Admission, c.Retry, c.OpsServer}
}

// loadAppConfig reads the file at path (if any) and environment variables.
// Values in overrides have the highest priority.
func loadAppConfig(path string, overrides map[string]interface{}) (*appConfig, error) {
	cfg := newAppConfig()
	loader := config.NewDefaultLoader(config.DefaultEnvVarsPrefix)
	for key, val := range overrides {
		loader.DataProvider.Set(key, val)
	}
	cfgs := cfg.all()
	if path == "" {
		return cfg, loader.LoadDefaults(cfgs[0], cfgs[1:]...)
	}
	return cfg, loader.LoadFromFile(path, dataTypeByPath(path), cfgs[0], cfgs[1:]...)
}

func dataTypeByPath(path string) config.DataType {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return config.DataTypeJSON
	}
	return config.DataTypeYAML
}
