package engine

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"

	"github.com/matlock-dev/matlock/internal/errors"
)

// Directory lists the engine sessions eligible for reservation.
type Directory struct {
	runtime Runtime
	pattern string
	filter  glob.Glob
}

// NewDirectory returns a Directory backed by rt. A non-empty pattern (glob
// syntax, e.g. "MATLAB_*") restricts the listed sessions to matching names.
func NewDirectory(rt Runtime, pattern string) (*Directory, error) {
	d := &Directory{runtime: rt, pattern: pattern}
	if pattern != "" {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid session pattern %q: %w", pattern, err)
		}
		d.filter = g
	}
	return d, nil
}

// ListSessions asks the runtime for the current sessions on every call.
// Runtime order is preserved.
func (d *Directory) ListSessions(ctx context.Context) ([]string, error) {
	sessions, err := d.runtime.FindSessions(ctx)
	if err != nil {
		return nil, errors.NewSessionError("failed to list sessions", fmt.Errorf("%w: %w", errors.ErrRuntimeUnavailable, err))
	}
	if d.filter == nil {
		return sessions, nil
	}

	matched := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if d.filter.Match(s) {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

// Pattern returns the session filter, or "" if none.
func (d *Directory) Pattern() string {
	return d.pattern
}
