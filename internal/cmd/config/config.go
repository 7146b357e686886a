// Package config provides CLI commands for managing matlock configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/matlock-dev/matlock/internal/cmd/output"
	appconfig "github.com/matlock-dev/matlock/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify matlock configuration",
	Long: `View or modify matlock configuration.

Use 'config show' to display the effective configuration.
Use subcommands to modify settings or create a config file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after defaults, the config file and MATLOCK_*
environment variables are applied. The bridge token is redacted.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  matlock config set locks.dir /shared/matlab-locks
  matlock config set locks.backend sqlite
  matlock config set engine.session_pattern 'MATLAB_*'
  matlock config set logging.level debug

Run 'matlock config show' to list every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/matlock/config.yaml with all available options.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// Register adds all config-related commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

const redacted = "********"

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}
	if cfg.Engine.Token != "" {
		cfg.Engine.Token = redacted
	}

	w := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(w, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// parseValue converts value to the type of key's current setting.
func parseValue(key, value string) (any, error) {
	switch viper.Get(key).(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if viper.Get(key) == nil {
		return fmt.Errorf("unknown configuration key: %s\nRun 'matlock config show' to see valid keys", key)
	}
	if _, isSection := viper.Get(key).(map[string]any); isSection {
		return fmt.Errorf("%s is a section, set one of its keys instead", key)
	}

	typedValue, err := parseValue(key, value)
	if err != nil {
		return err
	}
	viper.Set(key, typedValue)
	if _, err := appconfig.Load(); err != nil {
		return err
	}

	configDir := appconfig.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	configFile := appconfig.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	p := output.NewPrinter(cmd.OutOrStdout())
	p.Successf("Set %s = %v", key, typedValue)
	p.Infof("Config saved to %s", configFile)
	return nil
}

func defaultConfigContent() string {
	d := appconfig.Default()
	return fmt.Sprintf(`# matlock configuration
#
# Every key can be overridden by an environment variable: MATLOCK_ followed by
# the upper-cased key with dots replaced by underscores (e.g. MATLOCK_LOCKS_DIR).

# Reservation records
locks:
  # Directory shared by every process drawing from the same session pool.
  # Holds one {session}.pid file per reserved session.
  dir: %s
  # Lock store: file or sqlite
  backend: %s
  # Database for the sqlite backend (default: {dir}/locks.db)
  sqlite_path: ""
  # Create the lock directory if it does not exist
  create_dir: %t

# Engine bridge
engine:
  # Websocket address of the bridge exposing the engine sessions
  bridge_url: %s
  # Bearer token sent to the bridge (prefer MATLOCK_ENGINE_TOKEN)
  token: ""
  # Only consider sessions whose name matches this glob, e.g. "MATLAB_*"
  session_pattern: ""
  # Move the engine to the caller's working directory on connect
  sync_workdir: %t
  # Bound discovery and connection time in seconds (0 = no timeout)
  connect_timeout_seconds: %d

# simulate command
simulation:
  # Directory searched for {name}.yaml model definitions
  model_dir: ""
  # Trace format: csv or yaml
  output_format: %s

# Debug logging
logging:
  # Minimum level: debug, info, warn, error
  level: %s
  # Directory for matlock.log (empty = stderr)
  dir: ""
  # Rotate the log file at this size
  max_size_mb: %d
  # Rotated files to keep
  max_backups: %d
`,
		d.Locks.Dir, d.Locks.Backend, d.Locks.CreateDir,
		d.Engine.BridgeURL, d.Engine.SyncWorkdir, d.Engine.ConnectTimeoutSeconds,
		d.Simulation.OutputFormat,
		d.Logging.Level, d.Logging.MaxSizeMB, d.Logging.MaxBackups,
	)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := appconfig.ConfigDir()
	configFile := appconfig.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'matlock config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	p := output.NewPrinter(cmd.OutOrStdout())
	p.Successf("Created config file at %s", configFile)
	p.Infof("Edit this file to customize matlock's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	configFile := appconfig.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(w, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(w, "Default path: %s (not created)\n", configFile)
	}

	fmt.Fprintln(w, "\nSearch paths:")
	fmt.Fprintf(w, "  1. %s\n", filepath.Join(appconfig.ConfigDir(), "config.yaml"))
	fmt.Fprintln(w, "  2. $HOME/.config/matlock/config.yaml")
	fmt.Fprintln(w, "  3. ./config.yaml (current directory)")
	fmt.Fprintln(w, "\nEnvironment variables: MATLOCK_* (e.g., MATLOCK_LOCKS_DIR)")
	fmt.Fprintln(w, "A .env file in the current directory is loaded first.")
	return nil
}
