// Package cmdutil builds the objects matlock commands share from the loaded
// configuration.
package cmdutil

import (
	"context"
	"fmt"
	"os"

	"github.com/matlock-dev/matlock/internal/config"
	"github.com/matlock-dev/matlock/internal/engine"
	"github.com/matlock-dev/matlock/internal/engine/bridge"
	"github.com/matlock-dev/matlock/internal/errors"
	"github.com/matlock-dev/matlock/internal/liveness"
	"github.com/matlock-dev/matlock/internal/lockstore"
	"github.com/matlock-dev/matlock/internal/logging"
	"github.com/matlock-dev/matlock/internal/reservation"
)

// App holds the collaborators of one command invocation.
type App struct {
	Config    *config.Config
	Logger    *logging.Logger
	Store     lockstore.Store
	Runtime   engine.Runtime
	Directory *engine.Directory
	Registry  *engine.Registry
}

// Option configures NewApp.
type Option func(*appOptions)

type appOptions struct {
	runtime  engine.Runtime
	logger   *logging.Logger
	liveness liveness.Checker
}

// WithRuntime replaces the bridge runtime built from the configuration.
func WithRuntime(rt engine.Runtime) Option {
	return func(o *appOptions) {
		o.runtime = rt
	}
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(l *logging.Logger) Option {
	return func(o *appOptions) {
		o.logger = l
	}
}

// WithLiveness replaces the process checker used for stale-lock detection.
func WithLiveness(c liveness.Checker) Option {
	return func(o *appOptions) {
		o.liveness = c
	}
}

// Load reads the configuration from viper and builds an App from it.
func Load(opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return NewApp(cfg, opts...)
}

// NewApp opens the logger, lock store and engine runtime described by cfg.
// The caller must Close the App.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = NewLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
	}

	storeOpts := []lockstore.Option{lockstore.WithLogger(logger)}
	if o.liveness != nil {
		storeOpts = append(storeOpts, lockstore.WithLiveness(o.liveness))
	}
	store, err := OpenStore(cfg.Locks, storeOpts...)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	rt := o.runtime
	if rt == nil {
		rt, err = NewRuntime(cfg.Engine, logger)
		if err != nil {
			_ = store.Close()
			_ = logger.Close()
			return nil, err
		}
	}

	dir, err := engine.NewDirectory(rt, cfg.Engine.SessionPattern)
	if err != nil {
		_ = store.Close()
		_ = logger.Close()
		return nil, err
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Runtime:   rt,
		Directory: dir,
		Registry:  engine.NewRegistry(rt, logger),
	}, nil
}

// NewLogger creates the logger described by cfg. An empty Dir logs to stderr.
func NewLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	if cfg.Dir == "" {
		return logging.NewLogger("", cfg.Level)
	}
	return logging.NewLoggerWithRotation(cfg.Dir, cfg.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
}

// OpenStore opens the lock store selected by cfg.Backend, creating the lock
// directory first when cfg.CreateDir is set.
func OpenStore(cfg config.LocksConfig, opts ...lockstore.Option) (lockstore.Store, error) {
	if cfg.CreateDir {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
	}

	switch cfg.Backend {
	case config.BackendFile, "":
		return lockstore.NewFileStore(cfg.Dir, opts...)
	case config.BackendSQLite:
		return lockstore.OpenSQLite(cfg.DatabasePath(), opts...)
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

// NewRuntime returns the bridge runtime described by cfg.
func NewRuntime(cfg config.EngineConfig, logger *logging.Logger) (*bridge.Runtime, error) {
	opts := []bridge.Option{bridge.WithLogger(logger)}
	if cfg.Token != "" {
		opts = append(opts, bridge.WithHeader("Authorization", "Bearer "+cfg.Token))
	}
	return bridge.New(cfg.BridgeURL, opts...)
}

// Manager returns a reservation manager over the App's store and registry.
func (a *App) Manager() *reservation.Manager {
	opts := []reservation.Option{reservation.WithLogger(a.Logger)}
	if !a.Config.Engine.SyncWorkdir {
		opts = append(opts, reservation.WithOpenOptions(engine.WithoutWorkDirSync()))
	}
	return reservation.New(a.Directory, a.Store, a.Registry, opts...)
}

// Context bounds ctx by the configured connect timeout.
func (a *App) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := a.Config.Engine.ConnectTimeout(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// Close closes the lock store and the logger. Reservations held through the
// store are not released.
func (a *App) Close() error {
	return errors.Join(a.Store.Close(), a.Logger.Close())
}
