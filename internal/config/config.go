package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete matlock configuration
type Config struct {
	Locks      LocksConfig      `mapstructure:"locks" yaml:"locks"`
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Simulation SimulationConfig `mapstructure:"simulation" yaml:"simulation"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// LocksConfig controls where reservation records are kept
type LocksConfig struct {
	// Dir is the lock directory shared by every cooperating process.
	// Lock files are named {session}.pid.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Backend selects the lock store: "file" (default) or "sqlite"
	Backend string `mapstructure:"backend" yaml:"backend"`
	// SQLitePath is the database file for the sqlite backend.
	// Empty means {dir}/locks.db
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	// CreateDir creates Dir on startup if it does not exist (default: true)
	CreateDir bool `mapstructure:"create_dir" yaml:"create_dir"`
}

// EngineConfig controls how engine sessions are discovered and connected
type EngineConfig struct {
	// BridgeURL is the websocket address of the engine bridge
	BridgeURL string `mapstructure:"bridge_url" yaml:"bridge_url"`
	// Token is sent as a bearer token to the bridge when set
	Token string `mapstructure:"token" yaml:"token"`
	// SessionPattern restricts the session pool to names matching this glob (e.g. "MATLAB_*")
	SessionPattern string `mapstructure:"session_pattern" yaml:"session_pattern"`
	// SyncWorkdir changes the engine working directory to ours on connect (default: true)
	SyncWorkdir bool `mapstructure:"sync_workdir" yaml:"sync_workdir"`
	// ConnectTimeoutSeconds bounds discovery and connection (0 = no timeout)
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
}

// SimulationConfig controls the simulate command
type SimulationConfig struct {
	// ModelDir is searched for {name}.yaml when simulate is given a bare model name
	ModelDir string `mapstructure:"model_dir" yaml:"model_dir"`
	// OutputFormat is the trace format: "csv" or "yaml"
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory for matlock.log. Empty means stderr
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size before rotation
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// DatabasePath returns the sqlite database path, defaulting to {dir}/locks.db
func (c *LocksConfig) DatabasePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.Dir, "locks.db")
}

// ConnectTimeout returns ConnectTimeoutSeconds as a Duration
func (c *EngineConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// DefaultLockDir returns the lock directory used when none is configured
func DefaultLockDir() string {
	return filepath.Join(os.TempDir(), "matlock", "locks")
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Locks: LocksConfig{
			Dir:        DefaultLockDir(),
			Backend:    BackendFile,
			SQLitePath: "",
			CreateDir:  true,
		},
		Engine: EngineConfig{
			BridgeURL:             "ws://127.0.0.1:9870",
			Token:                 "",
			SessionPattern:        "",
			SyncWorkdir:           true,
			ConnectTimeoutSeconds: 30,
		},
		Simulation: SimulationConfig{
			ModelDir:     "",
			OutputFormat: "csv",
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Dir:        "", // stderr
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Lock defaults
	viper.SetDefault("locks.dir", defaults.Locks.Dir)
	viper.SetDefault("locks.backend", defaults.Locks.Backend)
	viper.SetDefault("locks.sqlite_path", defaults.Locks.SQLitePath)
	viper.SetDefault("locks.create_dir", defaults.Locks.CreateDir)

	// Engine defaults
	viper.SetDefault("engine.bridge_url", defaults.Engine.BridgeURL)
	viper.SetDefault("engine.token", defaults.Engine.Token)
	viper.SetDefault("engine.session_pattern", defaults.Engine.SessionPattern)
	viper.SetDefault("engine.sync_workdir", defaults.Engine.SyncWorkdir)
	viper.SetDefault("engine.connect_timeout_seconds", defaults.Engine.ConnectTimeoutSeconds)

	// Simulation defaults
	viper.SetDefault("simulation.model_dir", defaults.Simulation.ModelDir)
	viper.SetDefault("simulation.output_format", defaults.Simulation.OutputFormat)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
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
		return filepath.Join(xdg, "matlock")
	}
	// Fall back to ~/.config/matlock
	home, err := os.UserHomeDir()
	if err != nil {
		return ".matlock"
	}
	return filepath.Join(home, ".config", "matlock")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
