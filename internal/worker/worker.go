// ============================================================================
// ringpool Worker - Task Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: A long-lived execution unit that owns one bounded RingQueue of
// Tasks, drives each task's TaskPromise through the state machine, invokes
// the task body, tracks idle loops, and optionally invokes an idle
// callback - the work-stealing seam.
//
// How it works:
//   Each Worker runs its main loop on a goroutine spawned through the
//   injected platform.Platform (the Go analogue of "its own OS thread"):
//   1. If the exit flag is set, break to shutdown.
//   2. Attempt Pop. On success: reset the idle counter, CAS the promise
//      Queuing->Running; if that wins, record lastWorkerId, invoke the
//      body, then call promise.Done(). If the CAS loses (the task was
//      cancelled before pickup), drop it.
//   3. On pop failure: increment the idle counter, invoke the idle
//      callback if registered, check drain-then-exit, and sleep on a
//      condition variable once idle exceeds maxIdleLoopCount.
//   4. After the loop exits, drain remaining tasks by cancelling their
//      promises, recording this worker as lastWorkerId so observers can
//      see where the cancel happened.
//
// Grounded on the teacher's internal/worker/worker.go Run() loop structure
// (range-over-channel becomes pop-from-ring-queue; the result-channel
// best-effort send becomes promise.Done()) and on
// original_source/workflows/threadworker.hpp's condition-variable-guarded
// idle sleep.
//
// Panic handling: a task body that panics is recovered (grounded on the
// teacher's sketched-but-unimplemented "Worker health check and exception
// recovery" block in worker_pool.go's Advanced Features section) - the
// panic is logged and the promise is pushed to RunFailed instead of being
// left stuck in Running forever, without killing this worker's goroutine.
//
// ============================================================================

package worker

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ringpool/ringpool/internal/logging"
	"github.com/ringpool/ringpool/internal/platform"
	"github.com/ringpool/ringpool/internal/promise"
	"github.com/ringpool/ringpool/pkg/ringqueue"
	"github.com/ringpool/ringpool/pkg/task"
)

// Default configuration knobs, per the spec's §6 table.
const (
	DefaultMaxQueueSize     = 1024
	DefaultMaxIdleLoopCount = 0xFFFFFF
)

// RunFailedState is the custom state a worker transitions a task's promise
// to when its body panics. Declared here (rather than in pkg/task) because
// it is a worker-level extension, analogous to the pool's DependsUnfinished.
const RunFailedState task.State = task.Custom + 2

// IdleCallback is invoked whenever a worker observes an empty queue,
// receiving this worker's id and its current idle-loop count. The pool
// registers this as the work-stealing seam.
type IdleCallback func(workerID int, idleCount uint64)

// Worker is a single long-lived execution unit with its own bounded task
// queue. The zero value is not usable; construct with New.
type Worker struct {
	id atomic.Int32 // -1 until Init is called

	queue            *ringqueue.RingQueue[Task]
	maxIdleLoopCount uint64

	exitFlag  atomic.Bool
	drainFlag atomic.Bool

	idleCount atomic.Uint64

	mu           sync.Mutex
	cond         *sync.Cond
	idleCallback IdleCallback

	platform platform.Platform
	logger   logging.Logger

	handle      platform.Handle
	startedOnce sync.Once
}

// New constructs a Worker. id may be -1 (uninitialized, call Init before
// Start). maxQueueSize and maxIdleLoopCount fall back to the documented
// defaults when <= 0.
func New(id int, maxQueueSize int, maxIdleLoopCount uint64, plat platform.Platform, logger logging.Logger) *Worker {
	if maxQueueSize <= 0 {
		maxQueueSize = DefaultMaxQueueSize
	}
	if maxIdleLoopCount == 0 {
		maxIdleLoopCount = DefaultMaxIdleLoopCount
	}
	w := &Worker{
		queue:            ringqueue.New[Task](maxQueueSize),
		maxIdleLoopCount: maxIdleLoopCount,
		platform:         plat,
		logger:           logger,
	}
	w.id.Store(int32(id))
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Init assigns the worker id (must be >= 0) and resets its queue. Only
// meaningful before Start.
func (w *Worker) Init(id int) int {
	if id < 0 {
		return -1
	}
	w.id.Store(int32(id))
	w.queue = ringqueue.New[Task](w.queue.Capacity())
	return 0
}

// ID returns the worker's id, or -1 if uninitialized.
func (w *Worker) ID() int { return int(w.id.Load()) }

// SetIdleCallback registers the work-stealing seam, invoked each time the
// worker observes an empty queue.
func (w *Worker) SetIdleCallback(cb IdleCallback) {
	w.mu.Lock()
	w.idleCallback = cb
	w.mu.Unlock()
}

// QueueSize and QueueCapacity expose best-effort snapshots used by the
// pool's placement policy.
func (w *Worker) QueueSize() int     { return w.queue.Size() }
func (w *Worker) QueueCapacity() int { return w.queue.Capacity() }
func (w *Worker) IdleCount() uint64  { return w.idleCount.Load() }

// Start spawns the worker's main loop via the injected Platform, naming it
// "Worker-<id>".
func (w *Worker) Start() {
	w.startedOnce.Do(func() {
		name := fmt.Sprintf("Worker-%d", w.ID())
		w.handle = w.platform.Spawn(name, w.run)
	})
}

// Post allocates a fresh promise (task id 0 - the pool assigns the real,
// monotonic id after a successful post), records this worker in its trail,
// and enqueues (body, promise). Returns nil on queue-full.
func (w *Worker) Post(userData any, body Body) *promise.TaskPromise {
	p := promise.New(0, userData)
	if !w.PostWithPromise(body, p) {
		return nil
	}
	return p
}

// PostWithPromise enqueues (body, promise), reusing the caller-provided
// promise - this permits retry while preserving identity and any
// dependents watching it. Returns false on queue-full, rolling back the
// worker-trail append it made.
func (w *Worker) PostWithPromise(body Body, p *promise.TaskPromise) bool {
	p.RecordWorker(w.ID())
	if !w.queue.Push(Task{Body: body, Promise: p}) {
		p.RollbackLastWorker()
		return false
	}
	w.wake()
	return true
}

// Exit requests shutdown. drain=true: finish whatever remains in the queue,
// then exit. drain=false: exit at the next loop iteration, cancelling any
// remaining queued tasks.
func (w *Worker) Exit(drain bool) {
	if drain {
		w.drainFlag.Store(true)
	} else {
		w.exitFlag.Store(true)
	}
	w.wake()
}

// WaitForExit blocks until the worker's goroutine has returned.
func (w *Worker) WaitForExit() {
	if w.handle != nil {
		w.handle.Join()
	}
}

// Exited reports whether this worker's loop has requested or completed
// shutdown. Used by the pool to avoid posting onto an exiting worker.
func (w *Worker) Exited() bool {
	return w.exitFlag.Load()
}

func (w *Worker) wake() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// run is the worker's main loop.
func (w *Worker) run() {
	for {
		if w.exitFlag.Load() {
			break
		}

		t, ok := w.queue.Pop()
		if ok {
			w.idleCount.Store(0)
			w.execute(t)
			continue
		}

		idle := w.idleCount.Add(1)

		w.mu.Lock()
		cb := w.idleCallback
		w.mu.Unlock()
		if cb != nil {
			cb(w.ID(), idle)
		}

		if w.drainFlag.Load() && w.queue.Empty() {
			w.exitFlag.Store(true)
			break
		}

		if idle > w.maxIdleLoopCount {
			w.sleepUntilWoken()
		}
	}

	w.drainOnExit()
}

func (w *Worker) sleepUntilWoken() {
	w.mu.Lock()
	for w.queue.Empty() && !w.exitFlag.Load() && !w.drainFlag.Load() {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

func (w *Worker) execute(t Task) {
	defer func() {
		if r := recover(); r != nil {
			if w.logger != nil {
				w.logger.Error("task body panicked, recovering worker loop",
					"worker", w.ID(), "task", t.Promise.TaskID(), "panic", r)
			}
			t.Promise.ChangeState(task.Running, RunFailedState)
		}
	}()

	if t.Promise.ChangeState(task.Queuing, task.Running) != 0 {
		// Cancelled (or otherwise advanced) before pickup; drop it.
		return
	}
	t.Promise.SetLastWorker(w.ID())
	t.Body(t.Promise)
	t.Promise.Done()
}

// drainOnExit cancels every task still queued at shutdown, recording this
// worker as the last one the task ever touched.
func (w *Worker) drainOnExit() {
	for {
		t, ok := w.queue.Pop()
		if !ok {
			return
		}
		t.Promise.RecordWorker(w.ID())
		t.Promise.Cancel()
	}
}

// EnqueueRaw pushes a pre-built Task directly onto this worker's queue.
// Exported for use by the pool's placement and work-stealing logic; callers
// are responsible for trail bookkeeping.
func (w *Worker) EnqueueRaw(t Task) bool {
	ok := w.queue.Push(t)
	if ok {
		w.wake()
	}
	return ok
}

// DequeueRaw pops a Task directly off this worker's queue without running
// it. Used by the pool's work-stealing logic to move a task to another
// worker.
func (w *Worker) DequeueRaw() (Task, bool) {
	return w.queue.Pop()
}
