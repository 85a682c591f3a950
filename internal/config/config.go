package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete lodestar configuration
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Mode      ModeConfig      `mapstructure:"mode"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig controls where and how the session ledger is persisted
type StorageConfig struct {
	// Dir is the state directory holding the ledger and log files.
	// If empty, defaults to ~/.lodestar. Supports ~ for home expansion.
	Dir string `mapstructure:"dir"`
	// DebounceMs is the minimum interval in milliseconds between routine
	// (non-forced) ledger writes. Bursts of updates within the interval are
	// coalesced into a single write. 0 disables debouncing.
	DebounceMs int `mapstructure:"debounce_ms"`
	// SessionPrefix is the prefix used for generated session IDs
	// (default: "analysis"). Must be alphabetic.
	SessionPrefix string `mapstructure:"session_prefix"`
}

// ModeConfig controls execution-mode resolution and execution bounds
type ModeConfig struct {
	// Default is the globally configured execution mode: "local", "remote",
	// or "auto". "auto" defers the decision to the recommender.
	Default string `mapstructure:"default"`
	// ExecutionTimeoutMinutes is the maximum runtime for a single task
	// execution in minutes (0 = disabled)
	ExecutionTimeoutMinutes int `mapstructure:"execution_timeout_minutes"`
	// RemoteThreshold is the complexity score at or above which the built-in
	// recommender suggests remote deep analysis (1-10 scale, default: 7)
	RemoteThreshold float64 `mapstructure:"remote_threshold"`
}

// LifecycleConfig controls the background session sweep
type LifecycleConfig struct {
	// SweepIntervalMinutes is how often idle sessions are checked (default: 5)
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
	// MaxIdleMinutes is the inactivity window after which an active session
	// is transitioned to timeout (default: 30)
	MaxIdleMinutes int `mapstructure:"max_idle_minutes"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Dir:           "", // Empty means use default: ~/.lodestar
			DebounceMs:    1000,
			SessionPrefix: "analysis",
		},
		Mode: ModeConfig{
			Default:                 "auto",
			ExecutionTimeoutMinutes: 10,
			RemoteThreshold:         7,
		},
		Lifecycle: LifecycleConfig{
			SweepIntervalMinutes: 5,
			MaxIdleMinutes:       30,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Debounce returns the persistence debounce as a time.Duration
func (s *StorageConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

// ExecutionTimeout returns the execution timeout as a time.Duration (0 means disabled)
func (m *ModeConfig) ExecutionTimeout() time.Duration {
	return time.Duration(m.ExecutionTimeoutMinutes) * time.Minute
}

// SweepInterval returns the sweep interval as a time.Duration
func (l *LifecycleConfig) SweepInterval() time.Duration {
	return time.Duration(l.SweepIntervalMinutes) * time.Minute
}

// MaxIdle returns the idle window as a time.Duration
func (l *LifecycleConfig) MaxIdle() time.Duration {
	return time.Duration(l.MaxIdleMinutes) * time.Minute
}

// ResolveStateDir returns the resolved state directory path.
// If Dir is empty, it returns the default under the user's home directory.
// If Dir starts with ~, it expands to the user's home directory.
func (s *StorageConfig) ResolveStateDir() string {
	if s.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ".lodestar"
		}
		return filepath.Join(home, ".lodestar")
	}

	path := s.Dir

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Storage defaults
	viper.SetDefault("storage.dir", defaults.Storage.Dir)
	viper.SetDefault("storage.debounce_ms", defaults.Storage.DebounceMs)
	viper.SetDefault("storage.session_prefix", defaults.Storage.SessionPrefix)

	// Mode defaults
	viper.SetDefault("mode.default", defaults.Mode.Default)
	viper.SetDefault("mode.execution_timeout_minutes", defaults.Mode.ExecutionTimeoutMinutes)
	viper.SetDefault("mode.remote_threshold", defaults.Mode.RemoteThreshold)

	// Lifecycle defaults
	viper.SetDefault("lifecycle.sweep_interval_minutes", defaults.Lifecycle.SweepIntervalMinutes)
	viper.SetDefault("lifecycle.max_idle_minutes", defaults.Lifecycle.MaxIdleMinutes)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lodestar")
	}
	// Fall back to ~/.config/lodestar
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lodestar"
	}
	return filepath.Join(home, ".config", "lodestar")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidModes returns the list of valid mode.default values
func ValidModes() []string {
	return []string{"local", "remote", "auto"}
}

// IsValidMode checks if the given mode string is valid
func IsValidMode(mode string) bool {
	for _, valid := range ValidModes() {
		if mode == valid {
			return true
		}
	}
	return false
}
