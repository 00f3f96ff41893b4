// Package config loads remindful settings from config.toml and the
// environment, and locates the .remindful data directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// DirName is the per-user (or per-project) data directory.
const DirName = ".remindful"

// FileName is the config file inside the data directory.
const FileName = "config.toml"

// Config holds all remindful settings. Field names map to TOML keys
// via mapstructure tags; every key can be overridden through the
// REMINDFUL_ environment (dots become underscores).
type Config struct {
	Server struct {
		// URL of the remote sync server, e.g. https://sync.example.com.
		// Empty disables sync.
		URL string `mapstructure:"url"`
		// Token for bearer auth.
		Token string `mapstructure:"token"`
	} `mapstructure:"server"`

	Sync struct {
		// Auto enables the daemon's periodic sync loop.
		Auto bool `mapstructure:"auto"`
		// IntervalMinutes between automatic rounds.
		IntervalMinutes int `mapstructure:"interval_minutes"`
		// MaxAttempts bounds transport retries per round.
		MaxAttempts int `mapstructure:"max_attempts"`
		// QueueCapacity bounds the offline change queue.
		QueueCapacity int `mapstructure:"queue_capacity"`
	} `mapstructure:"sync"`

	Recurrence struct {
		// HorizonDays is the rolling materialization window.
		HorizonDays int `mapstructure:"horizon_days"`
	} `mapstructure:"recurrence"`

	Daemon struct {
		// Inbox directory watched for dropped reminder JSON files.
		// Empty disables the watcher.
		Inbox string `mapstructure:"inbox"`
		// DashboardPort for the WebSocket status feed. 0 disables it.
		DashboardPort int `mapstructure:"dashboard_port"`
		// LogFile for daemon output. Empty logs to stderr.
		LogFile string `mapstructure:"log_file"`
	} `mapstructure:"daemon"`

	Serve struct {
		// Port for the self-hosted sync server.
		Port int `mapstructure:"port"`
		// Token clients must present. Empty disables auth.
		Token string `mapstructure:"token"`
	} `mapstructure:"serve"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Sync.Auto = true
	cfg.Sync.IntervalMinutes = 5
	cfg.Sync.MaxAttempts = 3
	cfg.Sync.QueueCapacity = 500
	cfg.Recurrence.HorizonDays = 90
	cfg.Daemon.DashboardPort = 8788
	cfg.Serve.Port = 8787
	return cfg
}

// Load reads config.toml from dataDir, layered under environment
// overrides. A missing file is not an error; defaults apply.
func Load(dataDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("toml")
	v.AddConfigPath(dataDir)

	v.SetEnvPrefix("REMINDFUL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a registered default, or AutomaticEnv overrides
	// never reach Unmarshal.
	def := Default()
	v.SetDefault("server.url", def.Server.URL)
	v.SetDefault("server.token", def.Server.Token)
	v.SetDefault("sync.auto", def.Sync.Auto)
	v.SetDefault("sync.interval_minutes", def.Sync.IntervalMinutes)
	v.SetDefault("sync.max_attempts", def.Sync.MaxAttempts)
	v.SetDefault("sync.queue_capacity", def.Sync.QueueCapacity)
	v.SetDefault("recurrence.horizon_days", def.Recurrence.HorizonDays)
	v.SetDefault("daemon.inbox", def.Daemon.Inbox)
	v.SetDefault("daemon.dashboard_port", def.Daemon.DashboardPort)
	v.SetDefault("daemon.log_file", def.Daemon.LogFile)
	v.SetDefault("serve.port", def.Serve.Port)
	v.SetDefault("serve.token", def.Serve.Token)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// FindDataDir walks up from the working directory looking for an
// existing .remindful directory, falling back to $HOME/.remindful.
// Returns "" when neither exists.
func FindDataDir() string {
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, DirName)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				return candidate
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	candidate := filepath.Join(home, DirName)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate
	}
	return ""
}

// EnsureDataDir returns the data directory, creating $HOME/.remindful
// on first run.
func EnsureDataDir() (string, error) {
	if dir := FindDataDir(); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := WriteDefault(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// fileConfig mirrors Config with toml tags for writing.
type fileConfig struct {
	Server struct {
		URL   string `toml:"url"`
		Token string `toml:"token"`
	} `toml:"server"`
	Sync struct {
		Auto            bool `toml:"auto"`
		IntervalMinutes int  `toml:"interval_minutes"`
		MaxAttempts     int  `toml:"max_attempts"`
		QueueCapacity   int  `toml:"queue_capacity"`
	} `toml:"sync"`
	Recurrence struct {
		HorizonDays int `toml:"horizon_days"`
	} `toml:"recurrence"`
	Daemon struct {
		Inbox         string `toml:"inbox"`
		DashboardPort int    `toml:"dashboard_port"`
		LogFile       string `toml:"log_file"`
	} `toml:"daemon"`
	Serve struct {
		Port  int    `toml:"port"`
		Token string `toml:"token"`
	} `toml:"serve"`
}

// WriteDefault writes a config.toml seeded with defaults, so a first
// run leaves an editable file behind. An existing file is left alone.
func WriteDefault(dataDir string) error {
	path := filepath.Join(dataDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	def := Default()
	fc := fileConfig{}
	fc.Sync.Auto = def.Sync.Auto
	fc.Sync.IntervalMinutes = def.Sync.IntervalMinutes
	fc.Sync.MaxAttempts = def.Sync.MaxAttempts
	fc.Sync.QueueCapacity = def.Sync.QueueCapacity
	fc.Recurrence.HorizonDays = def.Recurrence.HorizonDays
	fc.Daemon.DashboardPort = def.Daemon.DashboardPort
	fc.Serve.Port = def.Serve.Port

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(fc); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

// DatabasePath returns the SQLite file inside the data directory.
func DatabasePath(dataDir string) string {
	return filepath.Join(dataDir, "remindful.db")
}
