package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/matlock-dev/matlock/internal/cmd/config"
	"github.com/matlock-dev/matlock/internal/cmd/locks"
	"github.com/matlock-dev/matlock/internal/cmd/session"
	"github.com/matlock-dev/matlock/internal/cmd/simulate"
	"github.com/matlock-dev/matlock/internal/config"
	merrors "github.com/matlock-dev/matlock/internal/errors"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "matlock",
	Short: "Share a pool of engine sessions between processes",
	Long: `matlock hands out engine sessions from a shared pool so that concurrent
processes never drive the same session at once.

Reservations are lock records in a directory (or database) shared by every
cooperating process. A session is reserved while its record exists.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	cfgFile string
	envFile string
)

// Execute runs the root command. ctx is cancelled on interrupt so that
// reservations are released before exiting.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// ErrorHint returns a follow-up suggestion for err, or "" if there is none.
func ErrorHint(err error) string {
	switch {
	case merrors.IsRetryable(err):
		return "every session is busy or the engine is unreachable; retry later"
	case merrors.IsProtocolViolation(err):
		return "run 'matlock sessions list' to see which sessions are reserved"
	}
	return ""
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/matlock/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	session.Register(rootCmd)
	locks.Register(rootCmd)
	simulate.Register(rootCmd)
	configcmd.Register(rootCmd)
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func initConfig() {
	// Variables already in the environment take precedence over the file
	if err := loadDotEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", envFile, err)
	}

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/matlock")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MATLOCK")
	// e.g., MATLOCK_LOCKS_DIR for locks.dir
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
