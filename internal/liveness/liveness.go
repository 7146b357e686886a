// Package liveness reports whether an operating-system process is still
// running. It backs the stale-lock detection of the lock store.
package liveness

// Checker decides whether a process id refers to a dead process.
type Checker interface {
	IsDead(pid int) bool
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(pid int) bool

// IsDead calls f(pid).
func (f CheckerFunc) IsDead(pid int) bool {
	return f(pid)
}

// ProcessChecker probes the local process table.
type ProcessChecker struct{}

// IsDead reports whether pid is dead. See the package-level IsDead.
func (ProcessChecker) IsDead(pid int) bool {
	return IsDead(pid)
}

// Default is the Checker used when callers do not inject one.
var Default Checker = ProcessChecker{}

// IsDead sends the null signal to pid. A missing process is the expected
// "dead" result, not an error. Non-positive pids are always dead.
func IsDead(pid int) bool {
	if pid <= 0 {
		return true
	}
	return !probe(pid)
}
