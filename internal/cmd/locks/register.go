package locks

import (
	"github.com/spf13/cobra"

	"github.com/matlock-dev/matlock/internal/cmd/cmdutil"
)

// loadApp builds the command's collaborators. Tests replace it.
var loadApp = func() (*cmdutil.App, error) {
	return cmdutil.Load()
}

// Register adds all lock-related commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(locksCmd)
}
