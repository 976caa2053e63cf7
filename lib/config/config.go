// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads warden's configuration from a single explicit
// YAML file, named by the WARDEN_CONFIG environment variable or a
// --config flag. There is no discovery and there are no fallbacks:
// a governance process must know exactly which configuration it runs
// under.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warden-works/warden/governance"
)

// EnvVar names the environment variable that locates the config file.
const EnvVar = "WARDEN_CONFIG"

// Config is the master configuration.
type Config struct {
	// Paths configures persistence locations. Every relative path is
	// resolved against DataDir.
	Paths PathsConfig `yaml:"paths"`

	// RequiredCredentials lists environment variables the integrity
	// guard requires at boot.
	RequiredCredentials []string `yaml:"required_credentials"`

	// Sentinel configures the semantic anomaly scanner. The
	// heuristic scanner is always on.
	Sentinel SentinelConfig `yaml:"sentinel"`

	// Grants is the governance validator's grant table.
	Grants []governance.Grant `yaml:"grants"`

	// ExpirySweep is how often the daemon sweeps for channels past
	// their max duration. Defaults to 30s.
	ExpirySweep time.Duration `yaml:"expiry_sweep"`
}

// PathsConfig configures persistence locations.
type PathsConfig struct {
	// DataDir is the base persistence directory. Required.
	DataDir string `yaml:"data_dir"`

	// EventDB is the ledger's SQLite file. Default: ledger.db.
	EventDB string `yaml:"event_db"`

	// Chain is the hash-chained decision file. Default: decisions.chain.
	Chain string `yaml:"chain"`

	// Lock is the process lock file. Default: warden.lock.
	Lock string `yaml:"lock"`

	// StoreLock is the external store's lock file. Empty disables
	// the store lock check.
	StoreLock string `yaml:"store_lock"`

	// Policies is the JSONC policy set file. Required.
	Policies string `yaml:"policies"`
}

// SentinelConfig configures the semantic scanner.
type SentinelConfig struct {
	// Enabled turns the semantic tier on. The API key env var then
	// becomes a required credential.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the provider base URL. Default:
	// https://api.anthropic.com.
	Endpoint string `yaml:"endpoint"`

	// APIKeyEnv names the environment variable holding the API key.
	// Default: ANTHROPIC_API_KEY.
	APIKeyEnv string `yaml:"api_key_env"`

	// Model is the model identifier to scan with.
	Model string `yaml:"model"`

	// Timeout bounds each scan. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`
}

// Locate returns the config file path from the flag value or the
// environment, the flag winning.
func Locate(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("config: no config file: pass --config or set %s", EnvVar)
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir is required")
	}
	if c.Paths.Policies == "" {
		return fmt.Errorf("paths.policies is required")
	}
	c.Paths.EventDB = c.resolve(c.Paths.EventDB, "ledger.db")
	c.Paths.Chain = c.resolve(c.Paths.Chain, "decisions.chain")
	c.Paths.Lock = c.resolve(c.Paths.Lock, "warden.lock")
	c.Paths.Policies = c.resolve(c.Paths.Policies, "")
	if c.Paths.StoreLock != "" {
		c.Paths.StoreLock = c.resolve(c.Paths.StoreLock, "")
	}
	if c.ExpirySweep <= 0 {
		c.ExpirySweep = 30 * time.Second
	}
	if c.Sentinel.Enabled {
		if c.Sentinel.Endpoint == "" {
			c.Sentinel.Endpoint = "https://api.anthropic.com"
		}
		if c.Sentinel.APIKeyEnv == "" {
			c.Sentinel.APIKeyEnv = "ANTHROPIC_API_KEY"
		}
		if c.Sentinel.Model == "" {
			return fmt.Errorf("sentinel.model is required when the sentinel is enabled")
		}
		if c.Sentinel.Timeout <= 0 {
			c.Sentinel.Timeout = 30 * time.Second
		}
	}
	return nil
}

// resolve joins a possibly-relative path to DataDir, applying the
// default name when the path is empty.
func (c *Config) resolve(path, defaultName string) string {
	if path == "" {
		path = defaultName
	}
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Paths.DataDir, path)
}

// GuardCredentials returns the credential env vars the guard must
// verify: the configured list plus the sentinel's API key variable
// when the semantic tier is enabled.
func (c *Config) GuardCredentials() []string {
	creds := append([]string(nil), c.RequiredCredentials...)
	if c.Sentinel.Enabled {
		creds = append(creds, c.Sentinel.APIKeyEnv)
	}
	return creds
}
