// Package errors provides the error taxonomy for matlock. It defines the
// sentinel errors of the reservation and connection protocol, typed errors
// carrying session or simulation context, and classification helpers.
//
// # Error Types
//
// Sentinel errors name protocol conditions:
//   - ErrInvalidSessionName: session name has no trailing numeric pid token
//   - ErrAlreadyReserved: a lock record already exists, or the manager already holds one
//   - ErrNotReserved: release requested for a session without a lock record
//   - ErrNoSessionAvailable: every discovered session is reserved
//   - ErrOverRelease: connection registry released more times than acquired
//   - ErrRuntimeUnavailable: the engine runtime cannot be reached
//   - ErrSimulationFailed: the engine raised an error during a simulation call
//
// Typed errors wrap a sentinel with context:
//   - SessionError: session name and lock path
//   - SimulationError: model name and captured engine output
//
// # Usage
//
//	err := errors.NewSessionError("reserve failed", errors.ErrAlreadyReserved).
//		WithSession("MATLAB_1234")
//
//	if errors.Is(err, errors.ErrAlreadyReserved) { ... }
//
//	var simErr *errors.SimulationError
//	if errors.As(err, &simErr) { ... }
//
// # Classification
//
// ErrNoSessionAvailable and ErrRuntimeUnavailable are retryable: callers are
// expected to poll or back off. Protocol violations (ErrAlreadyReserved,
// ErrNotReserved, ErrOverRelease, ErrInvalidSessionName) are hard errors and
// are never retried internally.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Reservation sentinel errors
var (
	// ErrInvalidSessionName indicates a session name whose last "_" token is not a pid.
	ErrInvalidSessionName = New("invalid session name")
	// ErrAlreadyReserved indicates that a session is already reserved.
	ErrAlreadyReserved = New("session already reserved")
	// ErrNotReserved indicates that a session is not reserved.
	ErrNotReserved = New("session not reserved")
	// ErrNoSessionAvailable indicates that no unreserved session was found.
	ErrNoSessionAvailable = New("no session available")
	// ErrLockHeld indicates that a lock record is owned by a live process.
	ErrLockHeld = New("lock held by live process")
)

// Connection sentinel errors
var (
	// ErrOverRelease indicates a connection release without a matching acquire.
	ErrOverRelease = New("connection already released")
	// ErrNotConnected indicates that no engine connection is active.
	ErrNotConnected = New("engine not connected")
	// ErrSessionMismatch indicates an acquire for a session other than the connected one.
	ErrSessionMismatch = New("connected to a different session")
	// ErrRuntimeUnavailable indicates that the engine runtime is not reachable.
	ErrRuntimeUnavailable = New("engine runtime unavailable")
)

// Simulation sentinel errors
var (
	// ErrSimulationFailed indicates that the engine failed to execute a simulation.
	ErrSimulationFailed = New("simulation execution failed")
	// ErrUnknownParameter indicates a parameter name absent from a valuation.
	ErrUnknownParameter = New("unknown parameter")
	// ErrInvalidValue indicates a value outside a parameter's domain.
	ErrInvalidValue = New("invalid parameter value")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// MatlockError is the base interface for typed matlock errors.
type MatlockError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SessionError represents errors raised while reserving, releasing or
// connecting to an engine session.
//
// Example:
//
//	err := errors.NewSessionError("reserve failed", errors.ErrAlreadyReserved)
//	err = err.WithSession("MATLAB_1234").WithLockPath("/tmp/locks/MATLAB_1234.pid")
//	fmt.Println(err) // "session error [session=MATLAB_1234, lock=/tmp/...]: reserve failed: session already reserved"
type SessionError struct {
	baseError
	Session  string
	LockPath string
}

// NewSessionError creates a new SessionError. Retryability is derived from
// the cause.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityError,
			retryable: isRetryableSentinel(cause),
		},
	}
}

// WithSession adds a session name to the error context.
func (e *SessionError) WithSession(name string) *SessionError {
	e.Session = name
	return e
}

// WithLockPath adds the lock record location to the error context.
func (e *SessionError) WithLockPath(path string) *SessionError {
	e.LockPath = path
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.Session != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.Session))
	}
	if e.LockPath != "" {
		parts = append(parts, fmt.Sprintf("lock=%s", e.LockPath))
	}

	prefix := "session error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("session error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// SimulationError wraps any failure raised by the engine during a
// simulation call. It always matches ErrSimulationFailed.
type SimulationError struct {
	baseError
	Model  string
	Stdout string
}

// NewSimulationError creates a new SimulationError for the given model.
func NewSimulationError(model string, cause error) *SimulationError {
	return &SimulationError{
		baseError: baseError{
			message:  "engine failed to execute simulation",
			cause:    cause,
			severity: SeverityError,
		},
		Model: model,
	}
}

// WithStdout attaches the engine output captured during the failed call.
func (e *SimulationError) WithStdout(out string) *SimulationError {
	e.Stdout = out
	return e
}

// Error returns the formatted error message.
func (e *SimulationError) Error() string {
	prefix := "simulation error"
	if e.Model != "" {
		prefix = fmt.Sprintf("simulation error [model=%s]", e.Model)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is reports ErrSimulationFailed as a match in addition to the cause chain.
func (e *SimulationError) Is(target error) bool {
	return target == ErrSimulationFailed
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

func isRetryableSentinel(err error) bool {
	return err != nil && (Is(err, ErrNoSessionAvailable) || Is(err, ErrRuntimeUnavailable))
}

// IsRetryable returns true if the error is transient and the caller may poll
// or back off and try again.
//
// Example:
//
//	for errors.IsRetryable(err) {
//	    time.Sleep(backoff)
//	    err = mgr.UseSession(ctx, "")
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var matlockErr MatlockError
	if As(err, &matlockErr) && matlockErr.IsRetryable() {
		return true
	}

	return isRetryableSentinel(err)
}

// IsProtocolViolation returns true for errors caused by misuse of the
// reservation or connection protocol.
func IsProtocolViolation(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrAlreadyReserved) || Is(err, ErrNotReserved) ||
		Is(err, ErrOverRelease) || Is(err, ErrInvalidSessionName) ||
		Is(err, ErrSessionMismatch)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to list sessions")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to reserve %s", name)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
