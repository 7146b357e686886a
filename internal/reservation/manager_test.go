package reservation

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/matlock-dev/matlock/internal/engine"
	"github.com/matlock-dev/matlock/internal/engine/enginetest"
	merrors "github.com/matlock-dev/matlock/internal/errors"
	"github.com/matlock-dev/matlock/internal/liveness"
	"github.com/matlock-dev/matlock/internal/lockstore"
	"github.com/matlock-dev/matlock/internal/logging"
)

type fixture struct {
	runtime  *enginetest.Runtime
	store    *lockstore.FileStore
	registry *engine.Registry
	manager  *Manager
	log      *bytes.Buffer
}

func newFixture(t *testing.T, sessions ...string) *fixture {
	t.Helper()

	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, logging.LevelDebug)
	alive := liveness.CheckerFunc(func(pid int) bool { return pid <= 0 })

	store, err := lockstore.NewFileStore(t.TempDir(), lockstore.WithLiveness(alive), lockstore.WithLogger(logger))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	rt := enginetest.NewRuntime(sessions...)
	dir, err := engine.NewDirectory(rt, "")
	if err != nil {
		t.Fatalf("NewDirectory() error = %v", err)
	}
	reg := engine.NewRegistry(rt, logger)

	return &fixture{
		runtime:  rt,
		store:    store,
		registry: reg,
		manager:  New(dir, store, reg, WithLogger(logger), WithOpenOptions(engine.WithoutWorkDirSync())),
		log:      &buf,
	}
}

func (f *fixture) reserveExternally(t *testing.T, name string) {
	t.Helper()
	if err := f.store.Reserve(context.Background(), name); err != nil {
		t.Fatalf("Reserve(%q) error = %v", name, err)
	}
}

func TestGetAvailableSession(t *testing.T) {
	tests := []struct {
		name     string
		sessions []string
		reserved []string
		want     string
		wantErr  error
	}{
		{
			name:     "first session free",
			sessions: []string{"m_1", "m_2", "m_3"},
			want:     "m_1",
		},
		{
			name:     "skips reserved sessions in runtime order",
			sessions: []string{"m_1", "m_2", "m_3"},
			reserved: []string{"m_1"},
			want:     "m_2",
		},
		{
			name:     "skips every reserved session",
			sessions: []string{"m_1", "m_2", "m_3"},
			reserved: []string{"m_1", "m_3"},
			want:     "m_2",
		},
		{
			name:     "skips names without a pid",
			sessions: []string{"MATLAB_abc", "worker", "MATLAB_2"},
			want:     "MATLAB_2",
		},
		{
			name:     "only names without a pid",
			sessions: []string{"MATLAB_abc", "worker"},
			wantErr:  merrors.ErrNoSessionAvailable,
		},
		{
			name:     "all reserved",
			sessions: []string{"m_1", "m_2"},
			reserved: []string{"m_1", "m_2"},
			wantErr:  merrors.ErrNoSessionAvailable,
		},
		{
			name:    "no sessions running",
			wantErr: merrors.ErrNoSessionAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.sessions...)
			for _, r := range tt.reserved {
				f.reserveExternally(t, r)
			}

			got, err := f.manager.GetAvailableSession(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("GetAvailableSession() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetAvailableSession() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GetAvailableSession() = %q, want %q", got, tt.want)
			}
			if f.manager.Session() != "" {
				t.Error("GetAvailableSession() must not reserve")
			}
		})
	}
}

func TestGetAvailableSession_RuntimeFailure(t *testing.T) {
	f := newFixture(t)
	f.runtime.FindErr = errors.New("bridge down")

	_, err := f.manager.GetAvailableSession(context.Background())
	if !errors.Is(err, merrors.ErrRuntimeUnavailable) {
		t.Errorf("error = %v, want ErrRuntimeUnavailable", err)
	}
}

func TestUseSession(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit name", func(t *testing.T) {
		f := newFixture(t, "m_1", "m_2")
		if err := f.manager.UseSession(ctx, "m_2"); err != nil {
			t.Fatalf("UseSession() error = %v", err)
		}
		if f.manager.Session() != "m_2" {
			t.Errorf("Session() = %q, want m_2", f.manager.Session())
		}
		if ok, _ := f.store.IsAvailable(ctx, "m_2"); ok {
			t.Error("m_2 should have a lock record")
		}
	})

	t.Run("empty name picks first available", func(t *testing.T) {
		f := newFixture(t, "m_1", "m_2", "m_3")
		f.reserveExternally(t, "m_1")
		if err := f.manager.UseSession(ctx, ""); err != nil {
			t.Fatalf("UseSession() error = %v", err)
		}
		if f.manager.Session() != "m_2" {
			t.Errorf("Session() = %q, want m_2", f.manager.Session())
		}
	})

	t.Run("empty name skips unparseable sessions", func(t *testing.T) {
		f := newFixture(t, "MATLAB_abc", "MATLAB_2")
		if err := f.manager.UseSession(ctx, ""); err != nil {
			t.Fatalf("UseSession() error = %v", err)
		}
		if f.manager.Session() != "MATLAB_2" {
			t.Errorf("Session() = %q, want MATLAB_2", f.manager.Session())
		}
		if !strings.Contains(f.log.String(), "skipping session with unusable name") {
			t.Errorf("skipped session should be logged, log: %s", f.log.String())
		}
	})

	t.Run("second reservation fails", func(t *testing.T) {
		f := newFixture(t, "m_1", "m_2")
		if err := f.manager.UseSession(ctx, "m_1"); err != nil {
			t.Fatal(err)
		}
		err := f.manager.UseSession(ctx, "m_2")
		if !errors.Is(err, merrors.ErrAlreadyReserved) {
			t.Fatalf("UseSession() error = %v, want ErrAlreadyReserved", err)
		}
		if ok, _ := f.store.IsAvailable(ctx, "m_2"); !ok {
			t.Error("m_2 must not be reserved by a rejected call")
		}
	})

	t.Run("session reserved by another process", func(t *testing.T) {
		f := newFixture(t, "m_1")
		f.reserveExternally(t, "m_1")
		err := f.manager.UseSession(ctx, "m_1")
		if !errors.Is(err, merrors.ErrAlreadyReserved) {
			t.Fatalf("UseSession() error = %v, want ErrAlreadyReserved", err)
		}
		if f.manager.Session() != "" {
			t.Errorf("failed reservation left Session() = %q", f.manager.Session())
		}
	})

	t.Run("invalid session name", func(t *testing.T) {
		f := newFixture(t)
		err := f.manager.UseSession(ctx, "MATLAB_abc")
		if !errors.Is(err, merrors.ErrInvalidSessionName) {
			t.Fatalf("UseSession() error = %v, want ErrInvalidSessionName", err)
		}
		entries, _ := os.ReadDir(f.store.Dir())
		if len(entries) != 0 {
			t.Errorf("invalid name created %d lock files", len(entries))
		}
	})
}

func TestRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("release removes record and is idempotent", func(t *testing.T) {
		f := newFixture(t, "m_1")
		if err := f.manager.UseSession(ctx, ""); err != nil {
			t.Fatal(err)
		}
		if err := f.manager.Release(ctx); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		if ok, _ := f.store.IsAvailable(ctx, "m_1"); !ok {
			t.Error("m_1 should be available after release")
		}

		f.log.Reset()
		if err := f.manager.Release(ctx); err != nil {
			t.Errorf("second Release() error = %v", err)
		}
		if !strings.Contains(f.log.String(), "skipping release") {
			t.Errorf("second release should be logged as a no-op, log: %s", f.log.String())
		}
	})

	t.Run("warns while connected", func(t *testing.T) {
		f := newFixture(t, "m_1")
		if err := f.manager.UseSession(ctx, ""); err != nil {
			t.Fatal(err)
		}
		conn, err := f.manager.Connection(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		f.log.Reset()
		if err := f.manager.Release(ctx); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		if !strings.Contains(f.log.String(), "engine connections are still active") {
			t.Errorf("expected active connection warning, log: %s", f.log.String())
		}
	})

	t.Run("record removed behind the manager", func(t *testing.T) {
		f := newFixture(t, "m_1")
		if err := f.manager.UseSession(ctx, "m_1"); err != nil {
			t.Fatal(err)
		}
		if err := f.store.Release(ctx, "m_1"); err != nil {
			t.Fatal(err)
		}
		if err := f.manager.Release(ctx); !errors.Is(err, merrors.ErrNotReserved) {
			t.Fatalf("Release() error = %v, want ErrNotReserved", err)
		}
		if f.manager.Session() != "m_1" {
			t.Error("a failed release must keep the reservation state")
		}
	})

	t.Run("close releases", func(t *testing.T) {
		f := newFixture(t, "m_1")
		if err := f.manager.UseSession(ctx, "m_1"); err != nil {
			t.Fatal(err)
		}
		if err := f.manager.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if f.manager.Session() != "" {
			t.Error("Close() should clear the reservation")
		}
	})
}

func TestConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("requires reservation", func(t *testing.T) {
		f := newFixture(t, "m_1")
		if _, err := f.manager.Connection(ctx); !errors.Is(err, merrors.ErrNotReserved) {
			t.Errorf("Connection() error = %v, want ErrNotReserved", err)
		}
		err := f.manager.WithConnection(ctx, func(context.Context, engine.Handle) error { return nil })
		if !errors.Is(err, merrors.ErrNotReserved) {
			t.Errorf("WithConnection() error = %v, want ErrNotReserved", err)
		}
	})

	t.Run("connects to the reserved session", func(t *testing.T) {
		f := newFixture(t, "m_1", "m_2")
		if err := f.manager.UseSession(ctx, "m_2"); err != nil {
			t.Fatal(err)
		}

		err := f.manager.WithConnection(ctx, func(ctx context.Context, h engine.Handle) error {
			if got := h.(*enginetest.Handle).Session(); got != "m_2" {
				t.Errorf("connected to %q, want m_2", got)
			}
			inner, err := f.manager.Connection(ctx)
			if err != nil {
				return err
			}
			defer inner.Close()
			if inner.Handle() != h {
				t.Error("nested connection should share the handle")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("WithConnection() error = %v", err)
		}
		if f.runtime.Connects() != 1 {
			t.Errorf("Connects = %d, want 1", f.runtime.Connects())
		}
		if f.registry.Active() {
			t.Error("registry should be disconnected after the outer scope")
		}
	})
}

func TestFullCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "MATLAB_101", "MATLAB_102")

	other := New(mustDirectory(t, f.runtime), f.store, engine.NewRegistry(f.runtime, nil))

	if err := f.manager.UseSession(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if err := other.UseSession(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if f.manager.Session() == other.Session() {
		t.Fatalf("two managers reserved the same session %q", other.Session())
	}

	third := New(mustDirectory(t, f.runtime), f.store, engine.NewRegistry(f.runtime, nil))
	if err := third.UseSession(ctx, ""); !errors.Is(err, merrors.ErrNoSessionAvailable) {
		t.Fatalf("third UseSession() error = %v, want ErrNoSessionAvailable", err)
	}

	if err := other.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if err := third.UseSession(ctx, ""); err != nil {
		t.Fatalf("UseSession() after release error = %v", err)
	}
}

func mustDirectory(t *testing.T, rt engine.Runtime) *engine.Directory {
	t.Helper()
	d, err := engine.NewDirectory(rt, "")
	if err != nil {
		t.Fatal(err)
	}
	return d
}
