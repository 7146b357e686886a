package session

import (
	"github.com/spf13/cobra"

	"github.com/matlock-dev/matlock/internal/cmd/cmdutil"
)

// loadApp builds the command's collaborators. Tests replace it.
var loadApp = func() (*cmdutil.App, error) {
	return cmdutil.Load()
}

// Register adds all session-related commands to the given parent command.
// This is the main entry point for integrating the session subpackage with
// the root command.
func Register(parent *cobra.Command) {
	parent.AddCommand(sessionsCmd)
}
