// ============================================================================
// ringpool TaskPromise - Per-Task State Machine
// ============================================================================
//
// Package: internal/promise
// File: task_promise.go
// Purpose: A shared, independently-addressable handle holding one task's
// state machine, its assigned-worker trail, identity, and a wait/notify
// primitive.
//
// State machine (see pkg/task.State):
//   Queuing  -> Running   (a worker picking the task)
//   Queuing  -> Cancelled (external cancel)
//   Running  -> Done      (worker, after the body returns)
//   Running  -> Custom    (the body itself, e.g. DependsUnfinished)
//   non-Queuing/Running -> Queuing (explicit reset, used on retry)
//
// Every transition is a single CompareAndSwap on an atomic.Int32 - two
// goroutines racing to drive a task forward produce exactly one winner.
// workerTrail append and Wait()/notify use a mutex + condition variable,
// per the spec's explicit allowance ("Implementation may use ... a shared
// mutex + condition variable").
//
// Grounded on original_source/workflows/threadworker.hpp's TaskPromise
// class and on the teacher's guard-then-mutate state transition style in
// internal/jobmanager/job_manager.go, adapted from a mutex-protected status
// field to a single atomic field plus a bare mutex for the trail/cond.
//
// ============================================================================

package promise

import (
	"sync"
	"sync/atomic"

	"github.com/ringpool/ringpool/pkg/task"
)

// TaskPromise is safe for concurrent use from any goroutine.
type TaskPromise struct {
	state        atomic.Int32
	lastWorkerID atomic.Int32

	mu          sync.Mutex
	cond        *sync.Cond
	workerTrail []int

	taskID   atomic.Uint64
	userData any
}

// New creates a promise in the Queuing state with no assigned worker. id
// may be 0 if the caller assigns the real id later via SetTaskID, as the
// pool does: the spec assigns a task its monotonic id only after a
// successful first post, not at promise construction time.
func New(id task.ID, userData any) *TaskPromise {
	p := &TaskPromise{
		userData: userData,
	}
	p.taskID.Store(uint64(id))
	p.lastWorkerID.Store(-1)
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetTaskID assigns (or reassigns) the task's identifier.
func (p *TaskPromise) SetTaskID(id task.ID) {
	p.taskID.Store(uint64(id))
}

// State returns a current snapshot of the task's state.
func (p *TaskPromise) State() task.State {
	return task.State(p.state.Load())
}

// LastWorkerID returns the most recent worker id the task was posted to, or
// -1 if never posted.
func (p *TaskPromise) LastWorkerID() int {
	return int(p.lastWorkerID.Load())
}

// WorkerTrail returns a copy of the ordered list of worker ids the task was
// ever posted to.
func (p *TaskPromise) WorkerTrail() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.workerTrail))
	copy(out, p.workerTrail)
	return out
}

// TaskID returns the task's submission-assigned identifier.
func (p *TaskPromise) TaskID() task.ID { return task.ID(p.taskID.Load()) }

// UserData returns the opaque value attached at submission.
func (p *TaskPromise) UserData() any { return p.userData }

// Cancel attempts Queuing->Cancelled. Returns 0 on success, -1 if the task
// was not Queuing (already running, done, or already cancelled tasks
// cannot be cancelled). Waiters are notified on success.
func (p *TaskPromise) Cancel() int {
	if !p.state.CompareAndSwap(int32(task.Queuing), int32(task.Cancelled)) {
		return -1
	}
	p.broadcast()
	return 0
}

// ChangeState performs a single CAS from expected to next. Used by a task
// body to signal custom conditions such as DependsUnfinished, and by the
// worker to drive Queuing->Running and Running->Done. Returns 0 on success,
// -1 if the current state did not match expected.
func (p *TaskPromise) ChangeState(expected, next task.State) int {
	if !p.state.CompareAndSwap(int32(expected), int32(next)) {
		return -1
	}
	if next.Terminal() {
		p.broadcast()
	}
	return 0
}

// ResetState performs any-non-active-state -> Queuing, used when
// re-submitting after a dependency retry. Fails if currently Queuing or
// Running (those are not returned to Queuing via reset).
func (p *TaskPromise) ResetState() int {
	cur := task.State(p.state.Load())
	if cur == task.Queuing || cur == task.Running {
		return -1
	}
	if !p.state.CompareAndSwap(int32(cur), int32(task.Queuing)) {
		return -1
	}
	return 0
}

// Done performs Running->Done and notifies waiters.
func (p *TaskPromise) Done() int {
	if !p.state.CompareAndSwap(int32(task.Running), int32(task.Done)) {
		return -1
	}
	p.broadcast()
	return 0
}

// Wait blocks the calling goroutine until the state is neither Queuing nor
// Running, then returns it.
func (p *TaskPromise) Wait() task.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		s := task.State(p.state.Load())
		if s.Terminal() {
			return s
		}
		p.cond.Wait()
	}
}

// RecordWorker appends workerID to the trail and sets lastWorkerID. Per the
// spec's contract, only the submitting goroutine appends, and it either
// commits or rolls back immediately via RollbackLastWorker.
func (p *TaskPromise) RecordWorker(workerID int) {
	p.mu.Lock()
	p.workerTrail = append(p.workerTrail, workerID)
	p.mu.Unlock()
	p.lastWorkerID.Store(int32(workerID))
}

// SetLastWorker sets lastWorkerId to workerID without appending to the
// trail. Used by the worker that actually picks up a task off its own
// queue: the trail entry was already appended by whichever Post call
// enqueued it there (including a work-stealing move), so picking it up
// for execution only needs to touch lastWorkerId, per spec.md §4.3 step 2.
func (p *TaskPromise) SetLastWorker(workerID int) {
	p.lastWorkerID.Store(int32(workerID))
}

// RollbackLastWorker undoes the most recent RecordWorker call. Used when a
// post to a worker's queue fails after the trail was already appended.
func (p *TaskPromise) RollbackLastWorker() {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.workerTrail)
	if n == 0 {
		return
	}
	p.workerTrail = p.workerTrail[:n-1]
	if n-1 == 0 {
		p.lastWorkerID.Store(-1)
		return
	}
	p.lastWorkerID.Store(int32(p.workerTrail[n-2]))
}

func (p *TaskPromise) broadcast() {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}
