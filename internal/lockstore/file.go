package lockstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/matlock-dev/matlock/internal/errors"
)

// FileStore keeps reservations as {dir}/{session}.pid files containing the
// decimal pid of the reserved session.
type FileStore struct {
	dir string
	options
}

// NewFileStore returns a FileStore rooted at dir, which must already exist
// and be shared by every cooperating process.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("lock directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("lock directory %s is not a directory", dir)
	}

	return &FileStore{
		dir:     dir,
		options: newOptions(opts),
	}, nil
}

// Dir returns the lock directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// LockPath returns the lock file path for session under dir.
func LockPath(dir, session string) string {
	return filepath.Join(dir, session+LockFileSuffix)
}

// IsAvailable implements Store.
func (s *FileStore) IsAvailable(_ context.Context, session string) (bool, error) {
	if err := validateName(session); err != nil {
		return false, err
	}

	path := LockPath(s.dir, session)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to read lock file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		// Either a concurrent Reserve has not written the pid yet or the
		// reserving process died in between; only Clear removes it.
		s.logger.Warn("lock file is empty; treating session as reserved",
			"session", session,
			"location", path,
		)
		return false, nil
	}

	pid, err := strconv.Atoi(content)
	if err != nil {
		s.logger.Warn("lock file does not contain a pid; treating session as reserved",
			"session", session,
			"location", path,
		)
		return false, nil
	}

	s.reportStale(session, pid, path)
	return false, nil
}

// Reserve implements Store. The record is created with O_EXCL so a
// concurrent reservation of the same session fails instead of overwriting.
func (s *FileStore) Reserve(ctx context.Context, session string) error {
	pid, err := ParsePID(session)
	if err != nil {
		return err
	}

	path := LockPath(s.dir, session)
	available, err := s.IsAvailable(ctx, session)
	if err != nil {
		return err
	}
	if !available {
		return errors.NewSessionError("reserve failed", errors.ErrAlreadyReserved).
			WithSession(session).
			WithLockPath(path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			s.logger.Info("lost reservation race", "session", session)
			return errors.NewSessionError("reserve failed (race)", errors.ErrAlreadyReserved).
				WithSession(session).
				WithLockPath(path)
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if _, err := f.WriteString(strconv.Itoa(pid)); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close lock file: %w", err)
	}

	s.logger.Info("session reserved", "session", session, "pid", pid, "location", path)
	return nil
}

// Release implements Store.
func (s *FileStore) Release(ctx context.Context, session string) error {
	path := LockPath(s.dir, session)
	available, err := s.IsAvailable(ctx, session)
	if err != nil {
		return err
	}
	if available {
		return errors.NewSessionError("releasing non-reserved session", errors.ErrNotReserved).
			WithSession(session).
			WithLockPath(path)
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.NewSessionError("releasing non-reserved session", errors.ErrNotReserved).
				WithSession(session).
				WithLockPath(path)
		}
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	s.logger.Info("session released", "session", session, "location", path)
	return nil
}

// Inspect implements Store.
func (s *FileStore) Inspect(_ context.Context, session string) (*Record, error) {
	if err := validateName(session); err != nil {
		return nil, err
	}
	return s.readRecord(session)
}

func (s *FileStore) readRecord(session string) (*Record, error) {
	path := LockPath(s.dir, session)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewSessionError("no lock record", errors.ErrNotReserved).
				WithSession(session).
				WithLockPath(path)
		}
		return nil, fmt.Errorf("failed to stat lock file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}

	// An unparseable payload yields pid 0, which is reported dead.
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return &Record{
		Session:    session,
		PID:        pid,
		ReservedAt: info.ModTime(),
		Location:   path,
		Dead:       s.liveness.IsDead(pid),
	}, nil
}

// List implements Store. Records are sorted by session name.
func (s *FileStore) List(_ context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock directory: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, LockFileSuffix) {
			continue
		}

		rec, err := s.readRecord(strings.TrimSuffix(name, LockFileSuffix))
		if err != nil {
			// Released between ReadDir and Stat
			continue
		}
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Session < records[j].Session
	})
	return records, nil
}

// Clear implements Store.
func (s *FileStore) Clear(ctx context.Context, session string, force bool) error {
	rec, err := s.Inspect(ctx, session)
	if err != nil {
		return err
	}
	if !rec.Dead && !force {
		return errors.NewSessionError(fmt.Sprintf("process %d is alive", rec.PID), errors.ErrLockHeld).
			WithSession(session).
			WithLockPath(rec.Location)
	}

	if err := os.Remove(rec.Location); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	s.logger.Warn("lock record cleared by operator",
		"session", session,
		"pid", rec.PID,
		"dead", rec.Dead,
		"forced", force,
	)
	return nil
}

// Close implements Store. FileStore holds no open resources.
func (s *FileStore) Close() error {
	return nil
}
