package locks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matlock-dev/matlock/internal/cmd/cmdutil"
	"github.com/matlock-dev/matlock/internal/config"
	"github.com/matlock-dev/matlock/internal/engine/enginetest"
	merrors "github.com/matlock-dev/matlock/internal/errors"
	"github.com/matlock-dev/matlock/internal/liveness"
	"github.com/matlock-dev/matlock/internal/lockstore"
	"github.com/matlock-dev/matlock/internal/logging"
)

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// setupApp points loadApp at a temporary lock directory. Process ids listed
// in dead are reported dead, every other one alive.
func setupApp(t *testing.T, backend string, dead ...int) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Locks.Dir = t.TempDir()
	cfg.Locks.Backend = backend
	checker := liveness.CheckerFunc(func(pid int) bool {
		for _, d := range dead {
			if pid == d {
				return true
			}
		}
		return false
	})

	orig := loadApp
	loadApp = func() (*cmdutil.App, error) {
		return cmdutil.NewApp(cfg,
			cmdutil.WithRuntime(enginetest.NewRuntime()),
			cmdutil.WithLogger(logging.NopLogger()),
			cmdutil.WithLiveness(checker),
		)
	}
	t.Cleanup(func() {
		loadApp = orig
		clearForce, clearStale = false, false
	})
	return cfg
}

// reserve creates lock records through a store sharing cfg's backend.
func reserve(t *testing.T, cfg *config.Config, sessions ...string) {
	t.Helper()
	store, err := cmdutil.OpenStore(cfg.Locks)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	for _, s := range sessions {
		if err := store.Reserve(context.Background(), s); err != nil {
			t.Fatalf("Reserve(%s) error = %v", s, err)
		}
	}
}

func run(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	locksCmd.SetOut(&out)
	locksCmd.SetErr(&out)
	locksCmd.SetArgs(args)
	err := locksCmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestLocksList(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := setupApp(t, backend, 2)
			reserve(t, cfg, "MATLAB_3", "MATLAB_2")

			out, err := run(context.Background(), "list")
			if err != nil {
				t.Fatalf("locks list error = %v", err)
			}

			var records []lockstore.Record
			if err := yaml.Unmarshal([]byte(out), &records); err != nil {
				t.Fatalf("output is not YAML: %v\n%s", err, out)
			}
			if len(records) != 2 {
				t.Fatalf("got %d records, want 2:\n%s", len(records), out)
			}
			if records[0].Session != "MATLAB_2" || !records[0].Dead {
				t.Errorf("records[0] = %+v, want dead MATLAB_2", records[0])
			}
			if records[1].Session != "MATLAB_3" || records[1].Dead || records[1].PID != 3 {
				t.Errorf("records[1] = %+v, want live MATLAB_3", records[1])
			}
		})
	}
}

func TestLocksList_Empty(t *testing.T) {
	setupApp(t, config.BackendFile)

	out, err := run(context.Background(), "list")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("locks list = %q, want an empty YAML list", out)
	}
}

func TestLocksClear(t *testing.T) {
	t.Run("requires a target", func(t *testing.T) {
		setupApp(t, config.BackendFile)
		if _, err := run(context.Background(), "clear"); err == nil {
			t.Error("locks clear without arguments should fail")
		}
	})

	t.Run("stale records only", func(t *testing.T) {
		cfg := setupApp(t, config.BackendFile, 2, 4)
		reserve(t, cfg, "MATLAB_2", "MATLAB_3", "MATLAB_4")

		out, err := run(context.Background(), "clear", "--stale")
		if err != nil {
			t.Fatalf("locks clear --stale error = %v", err)
		}
		if !strings.Contains(out, "Cleared MATLAB_2") || !strings.Contains(out, "Cleared MATLAB_4") {
			t.Errorf("output = %q", out)
		}
		for session, wantExists := range map[string]bool{"MATLAB_2": false, "MATLAB_3": true, "MATLAB_4": false} {
			_, err := os.Stat(lockstore.LockPath(cfg.Locks.Dir, session))
			if exists := err == nil; exists != wantExists {
				t.Errorf("%s lock exists = %v, want %v", session, exists, wantExists)
			}
		}
	})

	t.Run("live record needs force", func(t *testing.T) {
		cfg := setupApp(t, config.BackendSQLite)
		reserve(t, cfg, "MATLAB_3")

		out, err := run(context.Background(), "clear", "MATLAB_3")
		if !errors.Is(err, merrors.ErrLockHeld) {
			t.Fatalf("locks clear error = %v, want ErrLockHeld", err)
		}
		if !strings.Contains(out, "Kept MATLAB_3") {
			t.Errorf("output = %q", out)
		}

		if _, err := run(context.Background(), "clear", "--force", "MATLAB_3"); err != nil {
			t.Fatalf("locks clear --force error = %v", err)
		}
		out, err = run(context.Background(), "list")
		if err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(out) != "[]" {
			t.Errorf("record should be gone, locks list = %q", out)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		setupApp(t, config.BackendFile)
		if _, err := run(context.Background(), "clear", "MATLAB_9"); !errors.Is(err, merrors.ErrNotReserved) {
			t.Errorf("locks clear error = %v, want ErrNotReserved", err)
		}
	})
}

func TestLocksWatch(t *testing.T) {
	cfg := setupApp(t, config.BackendFile)

	var stdout, stderr syncBuffer
	locksCmd.SetOut(&stdout)
	locksCmd.SetErr(&stderr)
	locksCmd.SetArgs([]string{"watch"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- locksCmd.ExecuteContext(ctx)
	}()

	waitFor := func(buf *syncBuffer, want string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !strings.Contains(buf.String(), want) {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %q, got %q", want, buf.String())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	waitFor(&stderr, "Watching")
	reserve(t, cfg, "MATLAB_5")
	waitFor(&stdout, "reserved  MATLAB_5")

	if err := os.Remove(lockstore.LockPath(cfg.Locks.Dir, "MATLAB_5")); err != nil {
		t.Fatal(err)
	}
	waitFor(&stdout, "released  MATLAB_5")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("locks watch error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("locks watch did not stop after cancellation")
	}
}

func TestLocksWatch_SQLiteBackend(t *testing.T) {
	setupApp(t, config.BackendSQLite)
	if _, err := run(context.Background(), "watch"); err == nil {
		t.Error("locks watch should refuse the sqlite backend")
	}
}
