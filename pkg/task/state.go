// ============================================================================
// ringpool Core Type Definitions
// ============================================================================
//
// Package: pkg/task
// Purpose: Core domain models shared by the ring queue, the promise state
// machine, the worker, and the pool
//
// Design Principles:
//   1. Type Safety - Custom types prevent primitive obsession
//   2. Extensible State - State reserves a Custom range for callers
//      (the pool package defines DependsUnfinished and the worker package
//      defines RunFailed in it)
//
// Core Types:
//   - ID: submission-assigned, monotonically increasing identifier
//   - State: state-machine enum (Queuing/Running/Done/Cancelled/Custom)
//   - Priority: placement hint (High/Normal/Low)
//
// ============================================================================

package task

// ID uniquely identifies a submitted task. Assigned by the pool at
// successful enqueue time; zero is never issued.
type ID uint64

// State is one of the reserved constants below, or a caller-defined value
// at or above Custom. The pool package defines DependsUnfinished and the
// worker package defines RunFailed in the Custom range.
type State int32

const (
	// Queuing is the initial state: enqueued, not yet picked up by a worker.
	Queuing State = iota
	// Running: a worker has won the Queuing->Running CAS and is executing
	// the task body.
	Running
	// Done: the body returned normally and the worker called Done().
	Done
	// Cancelled: the task was cancelled while still Queuing.
	Cancelled

	// Custom is the first value callers may use for extension states.
	// Values below Custom are reserved by this package.
	Custom State = 0x8000
)

// String renders the reserved states by name and anything in the Custom
// range (or otherwise unrecognized) as "Custom"; the numeric value is not
// included, so distinct extension states render the same.
func (s State) String() string {
	switch s {
	case Queuing:
		return "Queuing"
	case Running:
		return "Running"
	case Done:
		return "Done"
	case Cancelled:
		return "Cancelled"
	default:
		return "Custom"
	}
}

// Terminal reports whether s is one of the states from which no further
// transition happens without an explicit ResetState: Done, Cancelled, or
// any Custom state. Queuing and Running are never terminal.
func (s State) Terminal() bool {
	return s != Queuing && s != Running
}

// Priority influences, but does not guarantee, placement order. See the
// pool package's placement policy table.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityLow:
		return "Low"
	default:
		return "Normal"
	}
}
