// Package config provides configuration loading and persistence for godlyd.
//
// Configuration is loaded from:
// 1. <config dir>/config.json (file)
// 2. Environment variables (override file values)
//
// Environment variables:
//   - GODLY_INSTANCE: instance name, selects the pipe suffix and pid file
//   - GODLY_PIPE_NAME: overrides the full pipe path derived from Instance
//   - GODLY_NO_DETACH: keeps the daemon attached to its launching console
//   - GODLY_IDLE_TIMEOUT_SECONDS: seconds of inactivity before shutdown
//   - GODLY_CONFIG_DIR: Override config directory (for testing)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultInstance is the pipe-suffix used when none is configured.
const DefaultInstance = "godly"

// Config holds all configuration for the daemon.
type Config struct {
	// Instance names this daemon for pipe-suffix and pid-file purposes.
	Instance string `json:"instance"`

	// PipeName overrides the full named pipe path when non-empty.
	PipeName string `json:"pipe_name,omitempty"`

	// NoDetach keeps the start command attached to its launching console,
	// for test harnesses that want to supervise the child directly. It also
	// disables the Job Object breakaway attempt.
	NoDetach bool `json:"no_detach"`

	// IdleTimeoutSeconds is how long the daemon waits with no sessions and
	// no connected client before shutting down.
	IdleTimeoutSeconds uint64 `json:"idle_timeout_seconds"`

	// PollIntervalSeconds is the idle-watcher's check cadence.
	PollIntervalSeconds uint64 `json:"poll_interval_seconds"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Instance:            DefaultInstance,
		PipeName:            "",
		NoDetach:            false,
		IdleTimeoutSeconds:  300,
		PollIntervalSeconds: 10,
	}
}

// ConfigDir returns the configuration directory path, creating it if
// necessary. Respects GODLY_CONFIG_DIR for test isolation.
func ConfigDir() (string, error) {
	if testDir := os.Getenv("GODLY_CONFIG_DIR"); testDir != "" {
		if err := os.MkdirAll(testDir, 0700); err != nil {
			return "", fmt.Errorf("could not create config directory: %w", err)
		}
		return testDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".godly")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create config directory: %w", err)
	}

	return dir, nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// PidPath returns the path to the pid file for the given instance name.
func PidPath(instance string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, instance+".pid"), nil
}

// PipePath returns the full named pipe path for this config, honoring an
// explicit PipeName override before falling back to the instance suffix.
func (c *Config) PipePath() string {
	if c.PipeName != "" {
		return c.PipeName
	}
	return `\\.\pipe\godlyd-` + c.Instance
}

// Load reads configuration from file and applies environment variable
// overrides. Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Try to load from file
	if err := cfg.loadFromFile(); err != nil {
		// File doesn't exist or is invalid - use defaults
		// This is not an error, we just use defaults
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// loadFromFile attempts to load configuration from the config file.
func (c *Config) loadFromFile() error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, c)
}

// applyEnvOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvOverrides() {
	if instance := os.Getenv("GODLY_INSTANCE"); instance != "" {
		c.Instance = instance
	}

	if pipeName := os.Getenv("GODLY_PIPE_NAME"); pipeName != "" {
		c.PipeName = pipeName
	}

	if noDetach := os.Getenv("GODLY_NO_DETACH"); noDetach != "" {
		c.NoDetach = noDetach == "1" || noDetach == "true"
	}

	if idleTimeout := os.Getenv("GODLY_IDLE_TIMEOUT_SECONDS"); idleTimeout != "" {
		if val, err := strconv.ParseUint(idleTimeout, 10, 64); err == nil {
			c.IdleTimeoutSeconds = val
		}
	}
}

// Save writes configuration to the config file.
func (c *Config) Save() error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}

	return nil
}
