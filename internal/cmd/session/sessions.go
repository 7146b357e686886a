package session

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matlock-dev/matlock/internal/cmd/output"
	"github.com/matlock-dev/matlock/internal/errors"
	"github.com/matlock-dev/matlock/internal/lockstore"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List, reserve and release engine sessions",
	Long: `Commands for working with the pool of shared engine sessions.

A session is reserved by writing a lock record; every process sharing the
lock directory skips reserved sessions.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List engine sessions and their reservation state",
	Long: `List the sessions advertised by the engine bridge with their state:
- available: no lock record
- reserved:  a lock record exists and its process is alive
- stale:     a lock record exists but its process has exited
- invalid:   the name carries no process id and cannot be reserved`,
	Args: cobra.NoArgs,
	RunE: runSessionsList,
}

var sessionsReserveCmd = &cobra.Command{
	Use:   "reserve [session]",
	Short: "Reserve a session and print its name",
	Long: `Reserve the named session, or the first available one, and print the
session name on stdout. The reservation outlives this command; release it
with 'matlock sessions release <session>'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessionsReserve,
}

var sessionsReleaseCmd = &cobra.Command{
	Use:   "release <session>",
	Short: "Release a reserved session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsRelease,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsReserveCmd)
	sessionsCmd.AddCommand(sessionsReleaseCmd)
	sessionsCmd.AddCommand(sessionsExecCmd)
}

// sessionStatus is one row of 'sessions list'.
type sessionStatus struct {
	Session    string     `yaml:"session"`
	State      string     `yaml:"state"`
	PID        int        `yaml:"pid,omitempty"`
	ReservedAt *time.Time `yaml:"reserved_at,omitempty"`
	Lock       string     `yaml:"lock,omitempty"`
}

// describe reports the reservation state of one session.
func describe(ctx context.Context, store lockstore.Store, session string) (sessionStatus, error) {
	status := sessionStatus{Session: session}

	if _, err := lockstore.ParsePID(session); err != nil {
		status.State = output.StateInvalid
		return status, nil
	}

	rec, err := store.Inspect(ctx, session)
	switch {
	case errors.Is(err, errors.ErrNotReserved):
		status.State = output.StateAvailable
		return status, nil
	case err != nil:
		return status, err
	}

	status.State = output.StateReserved
	if rec.Dead {
		status.State = output.StateStale
	}
	status.PID = rec.PID
	status.Lock = rec.Location
	if !rec.ReservedAt.IsZero() {
		reservedAt := rec.ReservedAt
		status.ReservedAt = &reservedAt
	}
	return status, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := app.Context(cmd.Context())
	defer cancel()

	sessions, err := app.Directory.ListSessions(ctx)
	if err != nil {
		return err
	}

	statuses := make([]sessionStatus, 0, len(sessions))
	for _, name := range sessions {
		status, err := describe(ctx, app.Store, name)
		if err != nil {
			return fmt.Errorf("failed to inspect session %s: %w", name, err)
		}
		statuses = append(statuses, status)
	}

	p := output.NewPrinter(cmd.OutOrStdout())
	if p.Styled() && len(statuses) == 0 {
		p.Infof("No engine sessions found.")
		return nil
	}

	table := output.Table{
		Title:   "Engine Sessions",
		Headers: []string{"SESSION", "STATE", "PID", "RESERVED", "LOCK"},
	}
	for _, s := range statuses {
		pid, reserved := "", ""
		if s.PID > 0 {
			pid = fmt.Sprint(s.PID)
		}
		if s.ReservedAt != nil {
			reserved = s.ReservedAt.Local().Format(time.DateTime)
		}
		table.Rows = append(table.Rows, []string{s.Session, p.State(s.State), pid, reserved, s.Lock})
	}
	return p.Render(table, statuses)
}

func runSessionsReserve(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := app.Context(cmd.Context())
	defer cancel()

	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	// The manager is not closed: the reservation is handed to the caller.
	mgr := app.Manager()
	if err := mgr.UseSession(ctx, name); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), mgr.Session())
	output.NewPrinter(cmd.ErrOrStderr()).Infof("Release with: matlock sessions release %s", mgr.Session())
	return nil
}

func runSessionsRelease(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	session := args[0]
	if err := app.Store.Release(cmd.Context(), session); err != nil {
		return err
	}

	output.NewPrinter(cmd.OutOrStdout()).Successf("Released %s", session)
	return nil
}
