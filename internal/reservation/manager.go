// Package reservation reserves one engine session for the calling process
// and hands out scoped connections to it.
//
// A Manager moves between two states: unreserved and reserved. Reserving
// writes a lock record through a lockstore.Store so that other processes
// sharing the store skip the session; releasing removes it. A process should
// own a single Manager.
package reservation

import (
	"context"
	"sync"

	"github.com/matlock-dev/matlock/internal/engine"
	"github.com/matlock-dev/matlock/internal/errors"
	"github.com/matlock-dev/matlock/internal/lockstore"
	"github.com/matlock-dev/matlock/internal/logging"
)

// SessionLister lists candidate sessions in preference order.
// engine.Directory implements it.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]string, error)
}

// Manager reserves sessions and opens connections to the reserved one.
type Manager struct {
	sessions SessionLister
	store    lockstore.Store
	registry *engine.Registry
	logger   *logging.Logger
	openOpts []engine.OpenOption

	mu      sync.Mutex
	session string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the Manager's logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithOpenOptions sets the options applied to every connection the Manager
// opens.
func WithOpenOptions(opts ...engine.OpenOption) Option {
	return func(m *Manager) {
		m.openOpts = append(m.openOpts, opts...)
	}
}

// New returns an unreserved Manager.
func New(sessions SessionLister, store lockstore.Store, registry *engine.Registry, opts ...Option) *Manager {
	m := &Manager{
		sessions: sessions,
		store:    store,
		registry: registry,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("reservation")
	return m
}

// GetAvailableSession returns the first listed session with no lock record.
// Sessions whose names do not end in a pid cannot be reserved and are
// skipped. It does not reserve and does not wait; ErrNoSessionAvailable is
// returned when every session is taken.
func (m *Manager) GetAvailableSession(ctx context.Context) (string, error) {
	sessions, err := m.sessions.ListSessions(ctx)
	if err != nil {
		return "", err
	}

	for _, name := range sessions {
		if _, err := lockstore.ParsePID(name); err != nil {
			m.logger.Warn("skipping session with unusable name", "session", name, "error", err)
			continue
		}
		available, err := m.store.IsAvailable(ctx, name)
		if err != nil {
			return "", err
		}
		if available {
			m.logger.Info("available session found", "session", name)
			return name, nil
		}
		m.logger.Info("session is not available", "session", name)
	}

	return "", errors.NewSessionError("no unreserved session among runtime sessions", errors.ErrNoSessionAvailable)
}

// UseSession reserves name, or the first available session when name is
// empty. It fails with ErrAlreadyReserved if this Manager already holds a
// reservation.
func (m *Manager) UseSession(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != "" {
		return errors.NewSessionError("a session is already reserved by this manager", errors.ErrAlreadyReserved).
			WithSession(m.session)
	}

	if name == "" {
		found, err := m.GetAvailableSession(ctx)
		if err != nil {
			return err
		}
		name = found
	}

	if err := m.store.Reserve(ctx, name); err != nil {
		return err
	}
	m.session = name
	return nil
}

// Release removes this Manager's reservation. It is a no-op when nothing is
// reserved. If the store refuses, the Manager stays reserved.
func (m *Manager) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registry != nil && m.registry.Active() {
		m.logger.Warn("releasing session while engine connections are still active",
			"session", m.session,
			"refs", m.registry.Refs(),
		)
	}

	if m.session == "" {
		m.logger.Info("no session reserved by this manager; skipping release")
		return nil
	}

	if err := m.store.Release(ctx, m.session); err != nil {
		return err
	}
	m.session = ""
	return nil
}

// Close releases the reservation. It is meant for defer.
func (m *Manager) Close() error {
	return m.Release(context.Background())
}

// Session returns the reserved session name, or "" if none.
func (m *Manager) Session() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Connection opens a scoped connection bound to the reserved session.
func (m *Manager) Connection(ctx context.Context) (*engine.Conn, error) {
	session := m.Session()
	if session == "" {
		return nil, errors.NewSessionError("cannot connect without a reservation", errors.ErrNotReserved)
	}
	return m.registry.Open(ctx, session, m.openOpts...)
}

// WithConnection runs fn inside a scoped connection to the reserved session.
func (m *Manager) WithConnection(ctx context.Context, fn func(context.Context, engine.Handle) error) error {
	session := m.Session()
	if session == "" {
		return errors.NewSessionError("cannot connect without a reservation", errors.ErrNotReserved)
	}
	return engine.WithConnection(ctx, m.registry, session, fn, m.openOpts...)
}
