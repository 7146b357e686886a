// Package enginetest provides an in-memory engine.Runtime for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"

	"github.com/matlock-dev/matlock/internal/engine"
)

// CallFunc answers a call made on a fake handle.
type CallFunc func(session, name string, args []any, nargout int) (engine.Result, error)

// Runtime is a fake engine.Runtime. Its exported fields may be set before
// use; methods are safe for concurrent use.
type Runtime struct {
	Sessions   []string
	FindErr    error
	ConnectErr error
	CloseErr   error
	// OnCall answers every call; nil answers with an empty Result.
	OnCall CallFunc

	mu       sync.Mutex
	handles  []*Handle
	connects int
}

// NewRuntime returns a Runtime advertising sessions.
func NewRuntime(sessions ...string) *Runtime {
	return &Runtime{Sessions: sessions}
}

// FindSessions implements engine.Runtime.
func (r *Runtime) FindSessions(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FindErr != nil {
		return nil, r.FindErr
	}
	return append([]string(nil), r.Sessions...), nil
}

// Connect implements engine.Runtime. An empty session attaches to the first
// advertised one.
func (r *Runtime) Connect(_ context.Context, session string) (engine.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connects++
	if r.ConnectErr != nil {
		return nil, r.ConnectErr
	}
	if session == "" && len(r.Sessions) > 0 {
		session = r.Sessions[0]
	}

	h := &Handle{runtime: r, session: session}
	r.handles = append(r.handles, h)
	return h, nil
}

// Connects returns how many times Connect was called.
func (r *Runtime) Connects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// Handles returns every handle opened so far.
func (r *Runtime) Handles() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Handle(nil), r.handles...)
}

// OpenHandles returns the number of handles not yet closed.
func (r *Runtime) OpenHandles() int {
	n := 0
	for _, h := range r.Handles() {
		if !h.Closed() {
			n++
		}
	}
	return n
}

// Call records one engine call.
type Call struct {
	Name    string
	Args    []any
	Nargout int
}

// Handle is a fake engine.Handle recording its calls.
type Handle struct {
	runtime *Runtime
	session string

	mu     sync.Mutex
	calls  []Call
	closed bool
}

// Call implements engine.Handle.
func (h *Handle) Call(_ context.Context, name string, args []any, nargout int) (engine.Result, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return engine.Result{}, errors.New("handle is closed")
	}
	h.calls = append(h.calls, Call{Name: name, Args: args, Nargout: nargout})
	h.mu.Unlock()

	h.runtime.mu.Lock()
	onCall := h.runtime.OnCall
	h.runtime.mu.Unlock()

	if onCall == nil {
		return engine.Result{}, nil
	}
	return onCall(h.session, name, args, nargout)
}

// Close implements engine.Handle. Closing twice is an error.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errors.New("handle already closed")
	}
	h.closed = true

	h.runtime.mu.Lock()
	defer h.runtime.mu.Unlock()
	return h.runtime.CloseErr
}

// Session returns the session the handle is attached to.
func (h *Handle) Session() string {
	return h.session
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Calls returns the recorded calls.
func (h *Handle) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}
