package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appconfig "github.com/matlock-dev/matlock/internal/config"
)

// setupViper isolates viper and the config directory for one test.
func setupViper(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	viper.Reset()
	appconfig.SetDefaults()
	t.Cleanup(viper.Reset)
	return filepath.Join(xdg, "matlock", "config.yaml")
}

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestConfigShow(t *testing.T) {
	setupViper(t)
	viper.Set("engine.token", "s3cret")
	viper.Set("locks.backend", "sqlite")

	out, err := executeCommand(configCmd, "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.HasPrefix(out, "# Config file: (none - using defaults)\n") {
		t.Errorf("missing config file header:\n%s", out)
	}
	if strings.Contains(out, "s3cret") {
		t.Error("config show must not print the token")
	}

	var cfg appconfig.Config
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	if cfg.Engine.Token != redacted {
		t.Errorf("token = %q, want %q", cfg.Engine.Token, redacted)
	}
	if cfg.Locks.Backend != "sqlite" {
		t.Errorf("backend = %q, want sqlite", cfg.Locks.Backend)
	}
	if cfg.Simulation.OutputFormat != "csv" {
		t.Errorf("output format = %q, want default csv", cfg.Simulation.OutputFormat)
	}
}

func TestConfigShow_InvalidConfig(t *testing.T) {
	setupViper(t)
	viper.Set("locks.backend", "redis")

	if _, err := executeCommand(configCmd, "show"); err == nil {
		t.Error("config show should report validation errors")
	}
}

func TestConfigInit(t *testing.T) {
	configFile := setupViper(t)

	out, err := executeCommand(configCmd, "init")
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !strings.Contains(out, configFile) {
		t.Errorf("output should name %s:\n%s", configFile, out)
	}

	// The generated file must load to the defaults
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("generated config does not parse: %v", err)
	}
	cfg, err := appconfig.Load()
	if err != nil {
		t.Fatalf("generated config is invalid: %v", err)
	}
	if *cfg != *appconfig.Default() {
		t.Errorf("generated config = %+v, want defaults %+v", cfg, appconfig.Default())
	}

	if _, err := executeCommand(configCmd, "init"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second config init error = %v, want already exists", err)
	}
}

func TestConfigSet(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
		check   func(t *testing.T, cfg *appconfig.Config)
	}{
		{
			name:  "string",
			key:   "locks.dir",
			value: "/shared/locks",
			check: func(t *testing.T, cfg *appconfig.Config) {
				if cfg.Locks.Dir != "/shared/locks" {
					t.Errorf("locks.dir = %q", cfg.Locks.Dir)
				}
			},
		},
		{
			name:  "bool",
			key:   "engine.sync_workdir",
			value: "false",
			check: func(t *testing.T, cfg *appconfig.Config) {
				if cfg.Engine.SyncWorkdir {
					t.Error("engine.sync_workdir should be false")
				}
			},
		},
		{
			name:  "int",
			key:   "engine.connect_timeout_seconds",
			value: "5",
			check: func(t *testing.T, cfg *appconfig.Config) {
				if cfg.Engine.ConnectTimeoutSeconds != 5 {
					t.Errorf("engine.connect_timeout_seconds = %d", cfg.Engine.ConnectTimeoutSeconds)
				}
			},
		},
		{name: "unknown key", key: "engine.color", value: "red", wantErr: "unknown configuration key"},
		{name: "section", key: "engine", value: "x", wantErr: "is a section"},
		{name: "bad bool", key: "locks.create_dir", value: "maybe", wantErr: "expected true or false"},
		{name: "bad int", key: "logging.max_backups", value: "many", wantErr: "expected integer"},
		{name: "fails validation", key: "locks.backend", value: "redis", wantErr: "locks.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile := setupViper(t)

			_, err := executeCommand(configCmd, "set", tt.key, tt.value)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("config set error = %v, want containing %q", err, tt.wantErr)
				}
				if _, statErr := os.Stat(configFile); !os.IsNotExist(statErr) {
					t.Error("config file should not be written on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("config set error = %v", err)
			}

			viper.Reset()
			appconfig.SetDefaults()
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				t.Fatalf("saved config does not parse: %v", err)
			}
			cfg, err := appconfig.Load()
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestConfigPath(t *testing.T) {
	configFile := setupViper(t)

	out, err := executeCommand(configCmd, "path")
	if err != nil {
		t.Fatalf("config path error = %v", err)
	}
	if !strings.Contains(out, "Default path: "+configFile+" (not created)") {
		t.Errorf("output should show the default path:\n%s", out)
	}
	if !strings.Contains(out, "MATLOCK_") {
		t.Errorf("output should mention the environment prefix:\n%s", out)
	}
}
