// Package config loads engine configuration from file, environment, and
// defaults, in that order of increasing precedence for the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the sync engine needs to run.
type Config struct {
	// DataDir is where the local SQLite store and legacy records live.
	DataDir string `mapstructure:"data_dir"`
	// SpoolDir is where front-end glue drops mutation records.
	SpoolDir string `mapstructure:"spool_dir"`

	// CloudBaseURL is the document store endpoint (http or https).
	CloudBaseURL string `mapstructure:"cloud_base_url"`
	// CloudAPIKey authenticates pushes and the live subscription.
	CloudAPIKey string `mapstructure:"cloud_api_key"`

	// UID identifies the signed-in user. Empty means signed out.
	UID string `mapstructure:"uid"`
	// PhoneNumber is attached to cloud pushes when present.
	PhoneNumber string `mapstructure:"phone_number"`

	// DebounceMs is the quiet period before an outbound push fires.
	DebounceMs int `mapstructure:"debounce_ms"`
	// ProbeIntervalSec is how often connectivity is probed.
	ProbeIntervalSec int `mapstructure:"probe_interval_sec"`

	// FeedPort is the status feed WebSocket port (0 disables the feed).
	FeedPort int `mapstructure:"feed_port"`

	// LogFile enables rotating file logging for the daemon when set.
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`
}

// DebounceDelay returns the debounce window as a duration.
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ProbeInterval returns the connectivity probe interval as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSec) * time.Second
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tastemaker"
	}
	return filepath.Join(home, ".tastemaker")
}

func setDefaults(v *viper.Viper) {
	dataDir := defaultDataDir()
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("spool_dir", filepath.Join(dataDir, "spool"))
	v.SetDefault("cloud_base_url", "https://api.tastemaker.dev")
	// Keys without meaningful defaults still need to be registered so
	// AutomaticEnv can resolve them during Unmarshal.
	v.SetDefault("cloud_api_key", "")
	v.SetDefault("uid", "")
	v.SetDefault("phone_number", "")
	v.SetDefault("log_file", "")
	v.SetDefault("debounce_ms", 2000)
	v.SetDefault("probe_interval_sec", 15)
	v.SetDefault("feed_port", 8565)
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 28)
}

// Load reads configuration from the given file (or, when path is empty,
// from config.yaml in the data directory if one exists), then overlays
// TASTEMAKER_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("tastemaker")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultDataDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// No config file is fine, defaults plus environment apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
