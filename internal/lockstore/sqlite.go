package lockstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/matlock-dev/matlock/internal/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_locks (
	session     TEXT PRIMARY KEY,
	pid         INTEGER NOT NULL,
	holder      TEXT NOT NULL,
	reserved_at TEXT NOT NULL
);
`

// SQLiteStore keeps reservations as rows of a shared SQLite database. The
// primary key on session provides the exclusive-create guarantee.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	holder string
	options
}

// OpenSQLite opens (creating if needed) the lock database at path.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock database directory: %w", err)
	}

	// busy_timeout lets concurrent processes queue on the write lock instead
	// of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open lock database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create lock schema: %w", err)
	}

	return &SQLiteStore{
		db:      db,
		path:    path,
		holder:  newHolderID(),
		options: newOptions(opts),
	}, nil
}

// newHolderID identifies this process in the rows it writes.
func newHolderID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString())
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Holder returns the identifier written into rows reserved by this store.
func (s *SQLiteStore) Holder() string {
	return s.holder
}

func (s *SQLiteStore) location(session string) string {
	return s.path + "#" + session
}

// IsAvailable implements Store.
func (s *SQLiteStore) IsAvailable(ctx context.Context, session string) (bool, error) {
	if err := validateName(session); err != nil {
		return false, err
	}

	var pid int
	err := s.db.QueryRowContext(ctx, `SELECT pid FROM session_locks WHERE session = ?`, session).Scan(&pid)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("query lock row: %w", err)
	}

	s.reportStale(session, pid, s.location(session))
	return false, nil
}

// Reserve implements Store. A conflicting insert affects no rows, which is
// reported as ErrAlreadyReserved.
func (s *SQLiteStore) Reserve(ctx context.Context, session string) error {
	pid, err := ParsePID(session)
	if err != nil {
		return err
	}

	available, err := s.IsAvailable(ctx, session)
	if err != nil {
		return err
	}
	if !available {
		return errors.NewSessionError("reserve failed", errors.ErrAlreadyReserved).
			WithSession(session).
			WithLockPath(s.location(session))
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO session_locks (session, pid, holder, reserved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session) DO NOTHING
	`, session, pid, s.holder, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert lock row: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert lock row: %w", err)
	}
	if n == 0 {
		s.logger.Info("lost reservation race", "session", session)
		return errors.NewSessionError("reserve failed (race)", errors.ErrAlreadyReserved).
			WithSession(session).
			WithLockPath(s.location(session))
	}

	s.logger.Info("session reserved", "session", session, "pid", pid, "location", s.location(session))
	return nil
}

// Release implements Store.
func (s *SQLiteStore) Release(ctx context.Context, session string) error {
	available, err := s.IsAvailable(ctx, session)
	if err != nil {
		return err
	}
	if available {
		return errors.NewSessionError("releasing non-reserved session", errors.ErrNotReserved).
			WithSession(session).
			WithLockPath(s.location(session))
	}

	n, err := s.deleteRow(ctx, session)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NewSessionError("releasing non-reserved session", errors.ErrNotReserved).
			WithSession(session).
			WithLockPath(s.location(session))
	}

	s.logger.Info("session released", "session", session, "location", s.location(session))
	return nil
}

func (s *SQLiteStore) deleteRow(ctx context.Context, session string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_locks WHERE session = ?`, session)
	if err != nil {
		return 0, fmt.Errorf("delete lock row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete lock row: %w", err)
	}
	return n, nil
}

// Inspect implements Store.
func (s *SQLiteStore) Inspect(ctx context.Context, session string) (*Record, error) {
	if err := validateName(session); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT session, pid, holder, reserved_at FROM session_locks WHERE session = ?
	`, session)
	rec, err := s.scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewSessionError("no lock record", errors.ErrNotReserved).
			WithSession(session).
			WithLockPath(s.location(session))
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanRecord(row scanner) (*Record, error) {
	var (
		rec        Record
		reservedAt string
	)
	if err := row.Scan(&rec.Session, &rec.PID, &rec.Holder, &reservedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan lock row: %w", err)
	}

	rec.ReservedAt, _ = time.Parse(time.RFC3339Nano, reservedAt)
	rec.Location = s.location(rec.Session)
	rec.Dead = s.liveness.IsDead(rec.PID)
	return &rec, nil
}

// List implements Store. Records are sorted by session name.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, pid, holder, reserved_at FROM session_locks ORDER BY session
	`)
	if err != nil {
		return nil, fmt.Errorf("list lock rows: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list lock rows: %w", err)
	}
	return records, nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context, session string, force bool) error {
	rec, err := s.Inspect(ctx, session)
	if err != nil {
		return err
	}
	if !rec.Dead && !force {
		return errors.NewSessionError(fmt.Sprintf("process %d is alive", rec.PID), errors.ErrLockHeld).
			WithSession(session).
			WithLockPath(rec.Location)
	}

	if _, err := s.deleteRow(ctx, session); err != nil {
		return err
	}

	s.logger.Warn("lock record cleared by operator",
		"session", session,
		"pid", rec.PID,
		"holder", rec.Holder,
		"dead", rec.Dead,
		"forced", force,
	)
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
