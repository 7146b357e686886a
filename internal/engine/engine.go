// Package engine manages connections to externally running simulation
// engine sessions.
//
// A Runtime discovers sessions and opens Handles to them. A Registry shares
// one Handle per process between nested users and disconnects when the last
// user releases it; a Conn is one such scoped use. Engines break when a
// single session receives more than one connection, so every consumer in a
// process must go through the same Registry.
package engine

import (
	"context"
	"fmt"
)

// Runtime is the engine's host-side API.
type Runtime interface {
	// FindSessions lists the names of the shared sessions currently running,
	// in the runtime's own order.
	FindSessions(ctx context.Context) ([]string, error)

	// Connect opens a connection to session. An empty session lets the
	// runtime pick one.
	Connect(ctx context.Context, session string) (Handle, error)
}

// Handle is an open connection to one engine session.
type Handle interface {
	// Call invokes the engine function name with args, requesting nargout
	// return values.
	Call(ctx context.Context, name string, args []any, nargout int) (Result, error)

	// Close disconnects from the session. The session itself keeps running.
	Close() error
}

// Result is the outcome of a successful Call.
type Result struct {
	Outputs []any
	// Stdout is whatever the engine printed while executing the call.
	Stdout string
}

// CallError is an error raised inside the engine while executing a call.
type CallError struct {
	Kind    string
	Message string
	Stdout  string
}

func (e *CallError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("engine call failed: %s", e.Message)
	}
	return fmt.Sprintf("engine call failed (%s): %s", e.Kind, e.Message)
}
