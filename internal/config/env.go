package config

import (
	"fmt"
	"strconv"

	"grimm.is/ruleaudit/internal/brand"
)

// Environment variables that override file settings, without the brand
// prefix (RULEAUDIT_LOG_LEVEL and so on).
const (
	EnvLogLevel    = "LOG_LEVEL"
	EnvLogJSON     = "LOG_JSON"
	EnvWorkers     = "WORKERS"
	EnvListen      = "API_LISTEN"
	EnvHistoryPath = "HISTORY_PATH"
)

// EnvName returns the full variable name for key.
func EnvName(key string) string {
	return brand.ConfigEnvPrefix + "_" + key
}

// ApplyEnv overrides settings from the environment. lookup has the
// signature of os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvName(EnvLogLevel)); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvName(EnvLogJSON)); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvName(EnvLogJSON), err)
		}
		c.Logging.JSON = b
	}
	if v, ok := lookup(EnvName(EnvWorkers)); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvName(EnvWorkers), err)
		}
		c.Analysis.Workers = n
	}
	if v, ok := lookup(EnvName(EnvListen)); ok && v != "" {
		c.API.Listen = v
	}
	if v, ok := lookup(EnvName(EnvHistoryPath)); ok && v != "" {
		c.History.Path = v
		c.History.Enabled = true
	}
	return nil
}
