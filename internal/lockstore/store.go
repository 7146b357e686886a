// Package lockstore implements advisory reservation records for engine
// sessions. A record exists for a session iff that session is reserved; the
// backing storage, never in-memory state, is the source of truth.
//
// Two strategies are provided: FileStore keeps one {session}.pid file per
// reservation in a shared directory, SQLiteStore keeps one row per
// reservation in a shared database file. Both create records with an atomic
// exclusive-create primitive so that two processes racing for the same
// session cannot both succeed.
//
// Records whose owning process is dead are reported, never reclaimed
// automatically: two processes independently deciding to reclaim the same
// stale record would race. Operators reclaim with Clear.
package lockstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/matlock-dev/matlock/internal/errors"
	"github.com/matlock-dev/matlock/internal/liveness"
	"github.com/matlock-dev/matlock/internal/logging"
)

// LockFileSuffix is appended to the session name to form a lock file name.
const LockFileSuffix = ".pid"

// Store is the reservation strategy used by the reservation manager.
type Store interface {
	// IsAvailable reports whether no lock record exists for session. A
	// record whose pid is dead is logged as an inconsistency and still
	// reported unavailable.
	IsAvailable(ctx context.Context, session string) (bool, error)

	// Reserve creates the lock record for session, storing the pid parsed
	// from the session name. Fails with ErrInvalidSessionName or
	// ErrAlreadyReserved.
	Reserve(ctx context.Context, session string) error

	// Release removes the lock record. Fails with ErrNotReserved if none exists.
	Release(ctx context.Context, session string) error

	// Inspect returns the lock record for session, or ErrNotReserved.
	Inspect(ctx context.Context, session string) (*Record, error)

	// List returns every lock record in the store.
	List(ctx context.Context) ([]Record, error)

	// Clear removes a lock record on operator request. Without force, only
	// records owned by dead processes are removed (ErrLockHeld otherwise).
	Clear(ctx context.Context, session string, force bool) error

	// Close releases resources held by the store. It does not remove records.
	Close() error
}

// Record describes one reservation.
type Record struct {
	Session    string    `json:"session" yaml:"session"`
	PID        int       `json:"pid" yaml:"pid"`
	Holder     string    `json:"holder,omitempty" yaml:"holder,omitempty"`
	ReservedAt time.Time `json:"reserved_at" yaml:"reserved_at"`
	Location   string    `json:"location" yaml:"location"`
	Dead       bool      `json:"dead" yaml:"dead"`
}

// ParsePID extracts the process id encoded as the last "_"-delimited token
// of a session name, e.g. 4242 from "MATLAB_4242".
func ParsePID(session string) (int, error) {
	if err := validateName(session); err != nil {
		return 0, err
	}

	token := session[strings.LastIndex(session, "_")+1:]
	pid, err := strconv.Atoi(token)
	if err != nil || pid <= 0 {
		return 0, errors.NewSessionError("session name must end with a process id", errors.ErrInvalidSessionName).
			WithSession(session)
	}
	return pid, nil
}

// validateName rejects names that cannot be mapped to a single lock record.
func validateName(session string) error {
	if session == "" || strings.ContainsAny(session, `/\`) || session == "." || session == ".." {
		return errors.NewSessionError("session name is not a valid record name", errors.ErrInvalidSessionName).
			WithSession(session)
	}
	return nil
}

// Option configures a Store.
type Option func(*options)

type options struct {
	liveness liveness.Checker
	logger   *logging.Logger
}

// WithLiveness sets the checker used for stale-record detection.
func WithLiveness(c liveness.Checker) Option {
	return func(o *options) {
		o.liveness = c
	}
}

// WithLogger sets the logger for reservation events and inconsistencies.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{
		liveness: liveness.Default,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.WithComponent("lockstore")
	return o
}

// reportStale logs an inconsistency when the record's owner is dead and
// returns whether it is.
func (o *options) reportStale(session string, pid int, location string) bool {
	if !o.liveness.IsDead(pid) {
		return false
	}
	o.logger.Warn("session is reserved but its process seems to be dead; inconsistency in session management",
		"session", session,
		"pid", pid,
		"location", location,
	)
	return true
}
