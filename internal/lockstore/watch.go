package lockstore

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/matlock-dev/matlock/internal/logging"
)

// ChangeKind classifies a lock directory change.
type ChangeKind int

const (
	// ChangeReserved means a lock file appeared.
	ChangeReserved ChangeKind = iota
	// ChangeReleased means a lock file disappeared.
	ChangeReleased
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeReserved:
		return "reserved"
	case ChangeReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Change is one observed reservation or release.
type Change struct {
	Kind    ChangeKind
	Session string
	Time    time.Time
}

// Watcher reports reservations and releases made by any process in a
// FileStore lock directory.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	onChange func(Change)
	logger   *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher watches dir and calls onChange from a single goroutine for each
// change once Start is called.
func NewWatcher(dir string, onChange func(Change), logger *logging.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch lock directory: %w", err)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Watcher{
		watcher:  watcher,
		dir:      dir,
		onChange: onChange,
		logger:   logger.WithComponent("lockwatch"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins delivering changes.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops the watcher and waits for the delivery goroutine to exit.
// Safe to call more than once, but Start must have been called.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	<-w.doneCh
}

func (w *Watcher) watchLoop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if change, ok := classify(event); ok && w.onChange != nil {
				w.onChange(change)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("lock directory watch error", "dir", w.dir, "error", err)
		}
	}
}

// classify maps a filesystem event to a Change. Writes are ignored: a
// reservation is visible from the moment its file exists.
func classify(event fsnotify.Event) (Change, bool) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, LockFileSuffix) {
		return Change{}, false
	}

	change := Change{
		Session: strings.TrimSuffix(name, LockFileSuffix),
		Time:    time.Now(),
	}
	switch {
	case event.Has(fsnotify.Create):
		change.Kind = ChangeReserved
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		change.Kind = ChangeReleased
	default:
		return Change{}, false
	}
	return change, true
}
