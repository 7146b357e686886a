package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matlock-dev/matlock/internal/config"
	merrors "github.com/matlock-dev/matlock/internal/errors"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "matlock" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "matlock")
	}

	// Compare by Name(), not Use which includes args
	expectedCmds := []string{"sessions", "locks", "simulate", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, name := range expectedCmds {
		if !cmdMap[name] {
			t.Errorf("expected subcommand %q not found", name)
		}
	}
}

func TestRootCommand_Help(t *testing.T) {
	out, err := executeCommand(rootCmd, "--help")
	if err != nil {
		t.Fatalf("--help error = %v", err)
	}
	for _, want := range []string{"sessions", "locks", "simulate", "--config", "--env-file"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestErrorHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "pool exhausted",
			err:  merrors.NewSessionError("no unreserved session", merrors.ErrNoSessionAvailable),
			want: "retry later",
		},
		{
			name: "engine unreachable",
			err:  merrors.Wrap(merrors.ErrRuntimeUnavailable, "list sessions"),
			want: "retry later",
		},
		{
			name: "session taken",
			err:  merrors.NewSessionError("reserve failed", merrors.ErrAlreadyReserved).WithSession("MATLAB_4"),
			want: "matlock sessions list",
		},
		{name: "simulation failure", err: merrors.NewSimulationError("plant", merrors.New("diverged"))},
		{name: "plain error", err: merrors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ErrorHint(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Errorf("ErrorHint() = %q, want no hint", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("ErrorHint() = %q, want it to mention %q", got, tt.want)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := loadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
	if err := loadDotEnv(""); err != nil {
		t.Errorf("empty path should be ignored, got %v", err)
	}

	const key = "MATLOCK_TEST_DOTENV"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(key+"=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv() error = %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Errorf("%s = %q, want %q", key, got, "from-file")
	}
}

func TestInitConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "matlock.yaml")
	if err := os.WriteFile(cfgPath, []byte("locks:\n  dir: /shared/locks\nlogging:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	dotenv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotenv, []byte("MATLOCK_LOCKS_BACKEND=sqlite\n"), 0644); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("MATLOCK_LOCKS_BACKEND")
	t.Cleanup(func() { os.Unsetenv("MATLOCK_LOCKS_BACKEND") })

	origCfg, origEnv := cfgFile, envFile
	cfgFile, envFile = cfgPath, dotenv
	t.Cleanup(func() { cfgFile, envFile = origCfg, origEnv })

	initConfig()

	if got := viper.ConfigFileUsed(); got != cfgPath {
		t.Errorf("ConfigFileUsed() = %q, want %q", got, cfgPath)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Locks.Dir != "/shared/locks" {
		t.Errorf("locks.dir = %q, want value from the config file", cfg.Locks.Dir)
	}
	if cfg.Locks.Backend != config.BackendSQLite {
		t.Errorf("locks.backend = %q, want value from the dotenv file", cfg.Locks.Backend)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Engine.BridgeURL != config.Default().Engine.BridgeURL {
		t.Errorf("engine.bridge_url = %q, want the default", cfg.Engine.BridgeURL)
	}
}
