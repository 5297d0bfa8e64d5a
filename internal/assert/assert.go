// Package assert provides the "assertion violated -> abort" error path from
// the spec's error handling design, used only at the handful of places the
// implementation treats as invariants that cannot fail in practice (e.g. a
// placement policy returning an index outside the candidate slice).
package assert

import "github.com/ringpool/ringpool/internal/logging"

// Invariant logs msg at Fatal (which terminates the process) if cond is
// false. It must never be used for conditions reachable through ordinary
// caller error - those are reported as normal error returns instead.
func Invariant(logger logging.Logger, cond bool, msg string, args ...any) {
	if cond {
		return
	}
	logger.Fatal(msg, args...)
}
