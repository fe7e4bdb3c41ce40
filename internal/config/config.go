// Package config loads client settings from the config file, environment
// and defaults, in ascending precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the client.
type Config struct {
	// ServerURL is the translation backend's base URL.
	ServerURL string `mapstructure:"server_url"`

	// WSURL is the live-update websocket endpoint.
	WSURL string `mapstructure:"ws_url"`

	// DataDir holds the local database and blob files.
	DataDir string `mapstructure:"data_dir"`

	// ReconnectDelay is the live channel's wait between reconnects.
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`

	// StepDelay paces the local simulated pipeline's progress steps.
	StepDelay time.Duration `mapstructure:"step_delay"`

	// WatchDebounce is how long a dropped file must stay quiet before
	// it is uploaded.
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`

	// LogFile, when set, sends logs to a rotated file instead of stderr.
	LogFile string `mapstructure:"log_file"`
}

// Load reads configuration from ~/.scantrad/config.yaml (or the working
// directory), applies SCANTRAD_* environment overrides, and falls back
// to defaults. A missing config file is not an error.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".scantrad")

	v := viper.New()
	v.SetDefault("server_url", "http://localhost:8000")
	v.SetDefault("ws_url", "ws://localhost:8000/ws")
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("reconnect_delay", 3*time.Second)
	v.SetDefault("step_delay", 300*time.Millisecond)
	v.SetDefault("watch_debounce", 500*time.Millisecond)
	v.SetDefault("log_file", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)
	v.AddConfigPath(".")

	v.SetEnvPrefix("SCANTRAD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// StorePath is the local database file.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "scantrad.db")
}
