// ============================================================================
// ringpool Worker - Task Types
// ============================================================================
//
// Package: internal/worker
// File: types.go
// ============================================================================

package worker

import "github.com/ringpool/ringpool/internal/promise"

// Body is the callable a worker invokes for a task, given the promise it
// must drive through the state machine.
type Body func(p *promise.TaskPromise)

// Task is the internal unit enqueued into a worker's ring queue: a
// callable paired with the promise handle that observes it.
type Task struct {
	Body    Body
	Promise *promise.TaskPromise
}
