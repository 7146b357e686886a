package locks

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matlock-dev/matlock/internal/cmd/output"
	"github.com/matlock-dev/matlock/internal/config"
	"github.com/matlock-dev/matlock/internal/errors"
	"github.com/matlock-dev/matlock/internal/lockstore"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and maintain lock records",
	Long: `Commands for the lock records behind session reservations.

Records left behind by crashed processes are never reclaimed automatically.
'matlock locks list' shows them as stale and 'matlock locks clear' removes them.`,
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every lock record",
	Args:  cobra.NoArgs,
	RunE:  runLocksList,
}

var locksWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream reservations and releases as they happen",
	Long: `Watch the lock directory and print a line for every reservation and
release made by any process. Requires the file backend. Stops on interrupt.`,
	Args: cobra.NoArgs,
	RunE: runLocksWatch,
}

var locksClearCmd = &cobra.Command{
	Use:   "clear [session...]",
	Short: "Remove stale lock records",
	Long: `Remove the lock records of the named sessions. Records whose process is
still alive are kept unless --force is given.

With --stale and no session names, every record whose process has exited is
removed.`,
	RunE: runLocksClear,
}

var (
	clearForce bool
	clearStale bool
)

func init() {
	locksCmd.AddCommand(locksListCmd)
	locksCmd.AddCommand(locksWatchCmd)
	locksCmd.AddCommand(locksClearCmd)

	locksClearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "Remove records even if their process is alive")
	locksClearCmd.Flags().BoolVar(&clearStale, "stale", false, "Remove every record whose process has exited")
}

func recordState(rec lockstore.Record) string {
	if rec.Dead {
		return output.StateStale
	}
	return output.StateReserved
}

func runLocksList(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	records, err := app.Store.List(cmd.Context())
	if err != nil {
		return err
	}
	if records == nil {
		records = []lockstore.Record{}
	}

	p := output.NewPrinter(cmd.OutOrStdout())
	if p.Styled() && len(records) == 0 {
		p.Infof("No lock records.")
		return nil
	}

	table := output.Table{
		Title:   "Lock Records",
		Headers: []string{"SESSION", "STATE", "PID", "RESERVED", "HOLDER", "LOCK"},
	}
	for _, rec := range records {
		table.Rows = append(table.Rows, []string{
			rec.Session,
			p.State(recordState(rec)),
			fmt.Sprint(rec.PID),
			rec.ReservedAt.Local().Format(time.DateTime),
			rec.Holder,
			rec.Location,
		})
	}
	return p.Render(table, records)
}

func runLocksWatch(cmd *cobra.Command, args []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Config.Locks.Backend == config.BackendSQLite {
		return fmt.Errorf("locks watch requires the %q backend, configured backend is %q",
			config.BackendFile, app.Config.Locks.Backend)
	}

	p := output.NewPrinter(cmd.OutOrStdout())
	watcher, err := lockstore.NewWatcher(app.Config.Locks.Dir, func(c lockstore.Change) {
		p.Infof("%s  %-8s  %s", c.Time.Format(time.TimeOnly), c.Kind, c.Session)
	}, app.Logger)
	if err != nil {
		return err
	}
	watcher.Start()
	defer watcher.Stop()

	output.NewPrinter(cmd.ErrOrStderr()).Infof("Watching %s (Ctrl+C to stop)", app.Config.Locks.Dir)
	<-cmd.Context().Done()
	return nil
}

func runLocksClear(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !clearStale {
		return fmt.Errorf("name at least one session or pass --stale")
	}

	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	sessions := args
	if len(sessions) == 0 {
		records, err := app.Store.List(ctx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.Dead {
				sessions = append(sessions, rec.Session)
			}
		}
	}

	p := output.NewPrinter(cmd.OutOrStdout())
	if len(sessions) == 0 {
		p.Infof("No stale lock records")
		return nil
	}

	var errs []error
	for _, session := range sessions {
		if err := app.Store.Clear(ctx, session, clearForce); err != nil {
			if errors.Is(err, errors.ErrLockHeld) {
				p.Warnf("Kept %s: its process is alive (use --force to remove)", session)
			}
			errs = append(errs, err)
			continue
		}
		p.Successf("Cleared %s", session)
	}
	return errors.Join(errs...)
}
