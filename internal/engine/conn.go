package engine

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/matlock-dev/matlock/internal/errors"
)

// Conn is one scoped use of the registry's shared handle. Close releases the
// reference; scopes must be closed in reverse order of opening.
type Conn struct {
	registry *Registry
	handle   Handle
	session  string

	closeOnce sync.Once
	closeErr  error
}

// OpenOption configures Registry.Open.
type OpenOption func(*openOptions)

type openOptions struct {
	syncWorkDir bool
	workDir     string
}

// WithWorkDir sets the directory the engine is moved to after connecting.
// Defaults to the process working directory.
func WithWorkDir(dir string) OpenOption {
	return func(o *openOptions) {
		o.syncWorkDir = true
		o.workDir = dir
	}
}

// WithoutWorkDirSync leaves the engine working directory untouched.
func WithoutWorkDirSync() OpenOption {
	return func(o *openOptions) {
		o.syncWorkDir = false
	}
}

// Open acquires a reference for session and changes the engine working
// directory so that relative model paths resolve like they do for the caller.
// If that fails the reference is released before returning.
func (r *Registry) Open(ctx context.Context, session string, opts ...OpenOption) (*Conn, error) {
	o := openOptions{syncWorkDir: true}
	for _, opt := range opts {
		opt(&o)
	}

	logger := r.logger.WithSession(session)
	logger.Info("connecting to engine")

	h, err := r.Acquire(ctx, session)
	if err != nil {
		return nil, err
	}
	logger.Info("engine connected", "refs", r.Refs())

	if o.syncWorkDir {
		if err := syncWorkDir(ctx, h, o.workDir); err != nil {
			if relErr := r.Release(); relErr != nil {
				err = errors.Join(err, relErr)
			}
			return nil, err
		}
	}

	return &Conn{registry: r, handle: h, session: session}, nil
}

func syncWorkDir(ctx context.Context, h Handle, dir string) error {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	if _, err := h.Call(ctx, "cd", []any{dir}, 0); err != nil {
		return errors.Wrapf(err, "failed to change engine working directory to %s", dir)
	}
	return nil
}

// Handle returns the shared engine handle.
func (c *Conn) Handle() Handle {
	return c.handle
}

// Session returns the session name the scope was opened for.
func (c *Conn) Session() string {
	return c.session
}

// Close releases the scope's reference. Only the first call has an effect.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		logger := c.registry.logger.WithSession(c.session)
		logger.Info("disconnecting from engine")
		c.closeErr = c.registry.Release()
		if c.closeErr == nil {
			logger.Info("engine disconnected", "refs", c.registry.Refs())
		}
	})
	return c.closeErr
}

// WithConnection runs fn inside a scoped connection. The scope is closed on
// every exit path, including a panic in fn; errors from fn and from closing
// are both returned.
func WithConnection(ctx context.Context, r *Registry, session string, fn func(context.Context, Handle) error, opts ...OpenOption) (err error) {
	conn, err := r.Open(ctx, session, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	return fn(ctx, conn.Handle())
}
