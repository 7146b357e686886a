package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/matlock-dev/matlock/internal/errors"
	"github.com/matlock-dev/matlock/internal/logging"
)

// Registry holds the single engine connection of a process and counts its
// users. The handle is opened by the first Acquire and closed by the Release
// that brings the count back to zero. It is safe for concurrent use.
type Registry struct {
	runtime Runtime
	logger  *logging.Logger

	mu      sync.Mutex
	handle  Handle
	refs    int
	session string
}

// NewRegistry returns an empty Registry connecting through rt.
func NewRegistry(rt Runtime, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Registry{
		runtime: rt,
		logger:  logger.WithComponent("registry"),
	}
}

// Acquire returns the shared handle, connecting to session if there is none.
// Every successful Acquire must be paired with one Release.
//
// An empty session connects to whichever session the runtime picks. Acquiring
// a named session while connected to a different one fails with
// ErrSessionMismatch.
func (r *Registry) Acquire(ctx context.Context, session string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session == "" {
		r.logger.Warn("no session name provided; if multiple engine sessions are running, the connection may be to an unexpected session")
	}

	if r.handle != nil {
		if session != "" && r.session != "" && session != r.session {
			return nil, errors.NewSessionError(
				fmt.Sprintf("already connected to %s", r.session), errors.ErrSessionMismatch,
			).WithSession(session)
		}
		if r.refs == 0 {
			r.logger.Warn("engine handle present with no references; inconsistency in connection bookkeeping",
				"session", r.session,
			)
		}
		r.refs++
		if r.refs > 1 {
			r.logger.Warn("multiple connections to engine",
				"session", r.session,
				"from", r.refs-1,
				"to", r.refs,
			)
		}
		return r.handle, nil
	}

	h, err := r.runtime.Connect(ctx, session)
	if err != nil {
		return nil, errors.NewSessionError("failed to connect to engine",
			fmt.Errorf("%w: %w", errors.ErrRuntimeUnavailable, err),
		).WithSession(session)
	}
	if h == nil {
		return nil, errors.NewSessionError("failed to connect to engine", errors.ErrRuntimeUnavailable).
			WithSession(session)
	}

	r.handle = h
	r.session = session
	r.refs = 1
	return h, nil
}

// Release drops one reference and disconnects when none remain.
func (r *Registry) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refs == 0 {
		return errors.NewSessionError("release without matching acquire", errors.ErrOverRelease).
			WithSession(r.session)
	}

	r.refs--
	if r.refs > 0 {
		r.logger.Warn("exiting multiple engine connections",
			"session", r.session,
			"from", r.refs+1,
			"to", r.refs,
		)
		return nil
	}

	h, session := r.handle, r.session
	r.handle = nil
	r.session = ""
	if h == nil {
		return nil
	}
	if err := h.Close(); err != nil {
		return errors.Wrapf(err, "failed to disconnect from engine session %q", session)
	}
	return nil
}

// Current returns the shared handle without taking a reference.
func (r *Registry) Current() (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return nil, errors.NewSessionError("no active connection", errors.ErrNotConnected)
	}
	return r.handle, nil
}

// Active reports whether a handle is currently open.
func (r *Registry) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle != nil
}

// Refs returns the number of outstanding references.
func (r *Registry) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

// Session returns the name the current handle was connected with.
func (r *Registry) Session() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}
