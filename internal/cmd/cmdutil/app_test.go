package cmdutil

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/matlock-dev/matlock/internal/config"
	"github.com/matlock-dev/matlock/internal/engine/enginetest"
	"github.com/matlock-dev/matlock/internal/lockstore"
	"github.com/matlock-dev/matlock/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Locks.Dir = filepath.Join(t.TempDir(), "locks")
	return cfg
}

func TestOpenStore(t *testing.T) {
	t.Run("file backend creates the directory", func(t *testing.T) {
		cfg := testConfig(t)
		store, err := OpenStore(cfg.Locks)
		if err != nil {
			t.Fatalf("OpenStore() error = %v", err)
		}
		defer store.Close()

		if _, ok := store.(*lockstore.FileStore); !ok {
			t.Errorf("OpenStore() = %T, want *lockstore.FileStore", store)
		}
		if info, err := os.Stat(cfg.Locks.Dir); err != nil || !info.IsDir() {
			t.Errorf("lock directory not created: %v", err)
		}
	})

	t.Run("missing directory without create_dir", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Locks.CreateDir = false
		if _, err := OpenStore(cfg.Locks); err == nil {
			t.Error("OpenStore() should fail when the lock directory does not exist")
		}
	})

	t.Run("sqlite backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Locks.Backend = config.BackendSQLite
		store, err := OpenStore(cfg.Locks)
		if err != nil {
			t.Fatalf("OpenStore() error = %v", err)
		}
		defer store.Close()

		sqlite, ok := store.(*lockstore.SQLiteStore)
		if !ok {
			t.Fatalf("OpenStore() = %T, want *lockstore.SQLiteStore", store)
		}
		if sqlite.Path() != cfg.Locks.DatabasePath() {
			t.Errorf("Path() = %q, want %q", sqlite.Path(), cfg.Locks.DatabasePath())
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Locks.Backend = "etcd"
		if _, err := OpenStore(cfg.Locks); err == nil {
			t.Error("OpenStore() should reject an unknown backend")
		}
	})
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Dir: dir, MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Debug("hello")
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, logging.LogFileName))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !bytes.Contains(data, []byte("hello")) {
		t.Errorf("log file = %q, want the debug record", data)
	}
}

func TestNewRuntime_SendsToken(t *testing.T) {
	var (
		mu   sync.Mutex
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c.CloseNow()
	}))
	defer srv.Close()

	rt, err := NewRuntime(config.EngineConfig{BridgeURL: srv.URL, Token: "s3cret"}, logging.NopLogger())
	if err != nil {
		t.Fatalf("NewRuntime() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// The server hangs up immediately; only the handshake matters here.
	_, _ = rt.FindSessions(ctx)

	mu.Lock()
	defer mu.Unlock()
	if auth != "Bearer s3cret" {
		t.Errorf("Authorization header = %q, want %q", auth, "Bearer s3cret")
	}
}

func TestNewApp(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.SessionPattern = "MATLAB_*"
	session := fmt.Sprintf("MATLAB_%d", os.Getpid())
	rt := enginetest.NewRuntime("other_1", session)

	app, err := NewApp(cfg, WithRuntime(rt), WithLogger(logging.NopLogger()))
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	sessions, err := app.Directory.ListSessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0] != session {
		t.Errorf("ListSessions() = %v, want [%s]", sessions, session)
	}

	mgr := app.Manager()
	if err := mgr.UseSession(context.Background(), ""); err != nil {
		t.Fatalf("UseSession() error = %v", err)
	}
	if _, err := os.Stat(lockstore.LockPath(cfg.Locks.Dir, session)); err != nil {
		t.Errorf("lock file missing after reservation: %v", err)
	}
	if err := mgr.Release(context.Background()); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
}

func TestApp_Context(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewApp(cfg, WithRuntime(enginetest.NewRuntime()), WithLogger(logging.NopLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	ctx, cancel := app.Context(context.Background())
	if _, ok := ctx.Deadline(); !ok {
		t.Error("Context() should carry the connect timeout")
	}
	cancel()

	app.Config.Engine.ConnectTimeoutSeconds = 0
	ctx, cancel = app.Context(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("Context() with a zero timeout should have no deadline")
	}
}
