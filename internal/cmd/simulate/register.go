package simulate

import (
	"github.com/spf13/cobra"

	"github.com/matlock-dev/matlock/internal/cmd/cmdutil"
)

// loadApp builds the command's collaborators. Tests replace it.
var loadApp = func() (*cmdutil.App, error) {
	return cmdutil.Load()
}

// Register adds the simulate command to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(simulateCmd)
}
