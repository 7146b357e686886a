package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/matlock-dev/matlock/internal/errors"
)

// EnvSession names the environment variable carrying the reserved session
// to the child process of 'sessions exec'.
const EnvSession = "MATLOCK_SESSION"

var sessionsExecCmd = &cobra.Command{
	Use:   "exec [--session NAME] -- COMMAND [ARGS...]",
	Short: "Run a command while holding a session reservation",
	Long: `Reserve a session, run COMMAND with MATLOCK_SESSION set to its name,
and release the reservation when the command exits or is interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSessionsExec,
}

var execSession string

func init() {
	sessionsExecCmd.Flags().StringVarP(&execSession, "session", "s", "", "Session to reserve (default: first available)")
	sessionsExecCmd.Flags().SetInterspersed(false)
}

func runSessionsExec(cmd *cobra.Command, args []string) (err error) {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := app.Context(cmd.Context())
	mgr := app.Manager()
	err = mgr.UseSession(ctx, execSession)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		// The command context may already be cancelled; releasing must still run.
		if relErr := mgr.Release(context.Background()); relErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release %s: %w", mgr.Session(), relErr))
		}
	}()

	child := exec.CommandContext(cmd.Context(), args[0], args[1:]...)
	child.Env = append(os.Environ(), EnvSession+"="+mgr.Session())
	child.Stdin = cmd.InOrStdin()
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()

	app.Logger.Info("running command with reserved session", "session", mgr.Session(), "command", args[0])
	if err := child.Run(); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}
