// ============================================================================
// ringpool Pool - Dispatcher: Placement, Dependency Retry, Work Stealing
// ============================================================================
//
// Package: internal/pool
// File: pool.go
// Purpose: Owns a fixed vector of Workers, assigns monotonic task ids,
// selects a target worker per submission using the priority placement
// policy, transparently re-submits tasks whose dependencies were unmet, and
// - when work stealing is enabled - implements the idle callback by moving
// a task from the busiest queue into an idle worker's queue.
//
// Data flow:
//   caller -> Pool.Submit(body, desc) -> placement policy picks worker ->
//   Worker.PostWithPromise enqueues (body, promise) -> worker thread
//   dequeues -> runs body -> updates promise -> notifies waiters; a
//   failed-dependency run short-circuits to DependsUnfinished and
//   re-enters placement via a completion-tracking goroutine (the Go
//   analogue of the spec's reference-counted descriptor destructor).
//
// Grounded on the teacher's internal/worker/worker_pool.go Pool struct and
// Start/Stop lifecycle (generalized from N identical channel consumers to N
// independent Workers with individual queues and placement logic), on
// internal/controller/controller.go's Config struct and stopCh/WaitGroup
// coordination style for the pool's own bookkeeping goroutine, and on
// original_source/workflows/threadpools.hpp's ThreadPool/TaskDescription
// (specifyWorkerId, dependencies, retryTask) for the dependency-retry and
// completion-hook shape.
//
// ============================================================================

package pool

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ringpool/ringpool/internal/assert"
	"github.com/ringpool/ringpool/internal/logging"
	"github.com/ringpool/ringpool/internal/platform"
	"github.com/ringpool/ringpool/internal/promise"
	"github.com/ringpool/ringpool/internal/worker"
	"github.com/ringpool/ringpool/pkg/task"
)

// DependsUnfinishedState is the custom state a wrapped task body sets when
// one of its declared dependencies has not reached Done yet. The completion
// hook goroutine observes this state and schedules a retry.
const DependsUnfinishedState task.State = task.Custom + 1

// RetryLocalityThreshold is the retryCount above which placement is
// overridden to the last worker a still-unfinished dependency ran on, to
// break livelock patterns where a retry keeps re-queuing behind a
// dependency that is itself pending elsewhere.
const RetryLocalityThreshold = 10

// Body is the callable a submitted task executes.
type Body = worker.Body

// Recorder is the subset of metrics.Collector the pool reports through.
// Defined here (rather than imported from the metrics package) to avoid a
// dependency cycle; metrics.Collector satisfies it.
type Recorder interface {
	RecordSubmitted()
	RecordCompleted(latency time.Duration)
	RecordCancelled()
	RecordRetried()
	RecordStolen()
	UpdateQueueDepth(workerID int, depth int)
	UpdateIdleLoops(workerID int, idle uint64)
}

// TaskDescription is submission-time configuration, mirroring spec.md §3's
// TaskDescription: a diagnostic name, an explicit worker id (-1 = none), a
// dependency list, an existing promise to reuse (nil to allocate), a
// priority, and a retry counter incremented by the completion hook.
type TaskDescription struct {
	Name            string
	SpecifyWorkerID int
	Dependencies    []*promise.TaskPromise
	ExistingPromise *promise.TaskPromise
	Priority        task.Priority
	RetryCount      int
	UserData        any
}

// DefaultTaskDescription returns a TaskDescription with no explicit worker,
// no dependencies, and Normal priority.
func DefaultTaskDescription() TaskDescription {
	return TaskDescription{SpecifyWorkerID: -1, Priority: task.PriorityNormal}
}

// Config carries the pool's construction-time knobs, per spec.md §6.
type Config struct {
	NumThreads         int
	MaxQueueSize       int
	MaxIdleLoopCount   uint64
	EnableWorkStealing bool
	Logger             logging.Logger
	Platform           platform.Platform
	Metrics            Recorder
}

// Pool owns a fixed vector of Workers.
type Pool struct {
	workers []*worker.Worker

	roundRobin atomic.Uint64
	idCounter  atomic.Uint64

	cfg    Config
	logger logging.Logger

	stopCh  chan struct{}
	stopped atomic.Bool
	mu      sync.Mutex
}

// New constructs and initializes cfg.NumThreads workers (not yet started).
// NumThreads must be >= 1.
func New(cfg Config) *Pool {
	if cfg.NumThreads < 1 {
		cfg.NumThreads = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New(nil)
	}
	if cfg.Platform == nil {
		cfg.Platform = platform.Default(cfg.Logger)
	}

	p := &Pool{
		cfg:    cfg,
		logger: cfg.Logger,
		stopCh: make(chan struct{}),
	}

	p.workers = make([]*worker.Worker, cfg.NumThreads)
	for i := 0; i < cfg.NumThreads; i++ {
		w := worker.New(i, cfg.MaxQueueSize, cfg.MaxIdleLoopCount, cfg.Platform, cfg.Logger)
		w.Init(i)
		p.workers[i] = w
	}
	return p
}

// Start registers the work-stealing idle callback (iff enabled) and starts
// every worker, plus a metrics-reporting loop if a Recorder was configured.
func (p *Pool) Start(enableWorkStealing bool) {
	if enableWorkStealing {
		for _, w := range p.workers {
			w.SetIdleCallback(p.onWorkerIdle)
		}
	}
	for _, w := range p.workers {
		w.Start()
	}
	if p.cfg.Metrics != nil {
		go p.reportMetricsLoop()
	}
}

// Stop requests immediate exit from all workers (queued tasks are
// cancelled) and joins them.
func (p *Pool) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stopCh)
	for _, w := range p.workers {
		w.Exit(false)
	}
	for _, w := range p.workers {
		w.WaitForExit()
	}
}

// StopAndWaitAll requests drain-then-exit on all workers and joins them.
// Tasks pending only because of unmet dependencies retry forever unless
// those dependencies resolve - see spec.md §4.5 and §9.
func (p *Pool) StopAndWaitAll() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stopCh)
	for _, w := range p.workers {
		w.Exit(true)
	}
	for _, w := range p.workers {
		w.WaitForExit()
	}
}

// Wait blocks until p's state is not one of {Queuing, Running,
// DependsUnfinished}. TaskPromise.Wait only guarantees "not Queuing/
// Running" (DependsUnfinished is Terminal so a dependent body can resolve
// it), so this re-waits past every intermediate DependsUnfinished release
// the completion hook produces across retries, returning only once the
// task reaches a true terminal state (Done, Cancelled, or RunFailed).
func (p *Pool) Wait(prom *promise.TaskPromise) task.State {
	for {
		s := prom.Wait()
		if s != DependsUnfinishedState {
			return s
		}
	}
}

// Submit is the public submission entry point.
func (p *Pool) Submit(body Body, desc TaskDescription) *promise.TaskPromise {
	return p.submit(body, desc, time.Now())
}

func (p *Pool) submit(body Body, desc TaskDescription, submittedAt time.Time) *promise.TaskPromise {
	if len(p.workers) == 0 {
		p.logger.Warn("submit rejected: pool has no workers")
		return nil
	}

	prom := desc.ExistingPromise
	if prom == nil {
		prom = promise.New(0, desc.UserData)
	}

	wrapped := wrapDependencyCheck(body, desc.Dependencies)

	widx, ok := p.selectWorker(desc)
	if !ok {
		p.logger.Error("submit rejected: invalid worker placement",
			"name", desc.Name, "specifyWorkerId", desc.SpecifyWorkerID)
		return nil
	}

	for _, dep := range desc.Dependencies {
		if dep.State() == task.Cancelled {
			prom.Cancel()
			return prom
		}
	}

	assert.Invariant(p.logger, widx >= 0 && widx < len(p.workers),
		"placement policy returned an out-of-range worker index", "index", widx, "numWorkers", len(p.workers))

	w := p.workers[widx]
	if w.Exited() {
		fallback, found := p.firstRunningWorker()
		if !found {
			prom.Cancel()
			return prom
		}
		w = fallback
	}

	if !w.PostWithPromise(wrapped, prom) {
		return nil
	}

	prom.SetTaskID(task.ID(p.idCounter.Add(1)))
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordSubmitted()
	}
	p.trackCompletion(body, desc, prom, submittedAt)
	return prom
}

// wrapDependencyCheck returns a Body that, before calling the user body,
// verifies every dependency has reached Done; if not, it transitions the
// promise to DependsUnfinished and returns without running the body.
func wrapDependencyCheck(body Body, deps []*promise.TaskPromise) Body {
	if len(deps) == 0 {
		return body
	}
	return func(p *promise.TaskPromise) {
		for _, dep := range deps {
			if dep.State() != task.Done {
				p.ChangeState(task.Running, DependsUnfinishedState)
				return
			}
		}
		body(p)
	}
}

// trackCompletion is the Go analogue of the spec's reference-counted
// descriptor destructor: a goroutine that waits for the task to reach a
// terminal state and then either schedules a retry (DependsUnfinished),
// logs success (Done), or records cancellation/failure.
func (p *Pool) trackCompletion(body Body, desc TaskDescription, prom *promise.TaskPromise, submittedAt time.Time) {
	go func() {
		state := prom.Wait()
		switch state {
		case DependsUnfinishedState:
			desc.RetryCount++
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.RecordRetried()
			}
			prom.ResetState()
			desc.ExistingPromise = prom
			p.submit(body, desc, submittedAt)
		case task.Done:
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.RecordCompleted(time.Since(submittedAt))
			}
			p.logger.Info("task completed", "name", desc.Name, "task", prom.TaskID())
		case task.Cancelled:
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.RecordCancelled()
			}
		default:
			p.logger.Warn("task ended in a non-success terminal state",
				"name", desc.Name, "task", prom.TaskID(), "state", state.String())
		}
	}()
}

func (p *Pool) firstRunningWorker() (*worker.Worker, bool) {
	for _, w := range p.workers {
		if !w.Exited() {
			return w, true
		}
	}
	return nil, false
}

func (p *Pool) reportMetricsLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			for _, w := range p.workers {
				p.cfg.Metrics.UpdateQueueDepth(w.ID(), w.QueueSize())
				p.cfg.Metrics.UpdateIdleLoops(w.ID(), w.IdleCount())
			}
		}
	}
}

// ============================================================================
// Placement policy (spec.md §4.4.2)
// ============================================================================

func (p *Pool) selectWorker(desc TaskDescription) (int, bool) {
	if desc.SpecifyWorkerID != -1 {
		if desc.SpecifyWorkerID < 0 || desc.SpecifyWorkerID >= len(p.workers) {
			return -1, false
		}
		return p.applyRetryLocality(desc, desc.SpecifyWorkerID), true
	}

	candidates := p.nonFullIndices()
	var idx int
	switch desc.Priority {
	case task.PriorityLow:
		idx = p.pickByWorkload(candidates, -1)
		if idx < 0 {
			idx = randomIndex(candidates)
		}
	case task.PriorityHigh:
		idx = p.pickByIdleness(candidates, -1)
		if idx < 0 {
			idx = p.pickByQueueSize(candidates, 0)
		}
		if idx < 0 {
			idx = randomIndex(candidates)
		}
	default: // Normal
		idx = randomIndex(candidates)
		if idx < 0 {
			idx = p.roundRobinIndex()
		}
	}
	if idx < 0 {
		idx = p.roundRobinIndex()
	}
	return p.applyRetryLocality(desc, idx), true
}

// applyRetryLocality implements the spec's retry-locality override: above
// RetryLocalityThreshold retries, bias placement toward the last worker an
// unfinished dependency ran on.
func (p *Pool) applyRetryLocality(desc TaskDescription, idx int) int {
	if desc.RetryCount <= RetryLocalityThreshold {
		return idx
	}
	for _, dep := range desc.Dependencies {
		if dep.State() == task.Done {
			continue
		}
		last := dep.LastWorkerID()
		if last >= 0 && last < len(p.workers) && len(dep.WorkerTrail()) > 0 {
			return last
		}
	}
	return idx
}

func (p *Pool) nonFullIndices() []int {
	var out []int
	for i, w := range p.workers {
		if w.QueueSize() < w.QueueCapacity() {
			out = append(out, i)
		}
	}
	return out
}

func (p *Pool) roundRobinIndex() int {
	n := uint64(len(p.workers))
	return int(p.roundRobin.Add(1) % n)
}

func randomIndex(candidates []int) int {
	if len(candidates) == 0 {
		return -1
	}
	return candidates[rand.Intn(len(candidates))]
}

// pickByWorkload sorts candidates ascending by queue size and returns the
// element at idx (negative counts from the end). -1 when no candidate
// exists.
func (p *Pool) pickByWorkload(candidates []int, idx int) int {
	return p.pickSorted(candidates, idx, false, func(i int) int64 {
		return int64(p.workers[i].QueueSize())
	})
}

// pickByIdleness sorts candidates ascending by idle-loop count and returns
// the element at idx. Ties are broken by *descending* worker id, so that
// idx=-1 (the spec's "pick the most-idle worker") lands on the smallest id
// among workers tied at the maximum idle count, per spec.md §4.4.2's "ties
// broken by smaller id."
func (p *Pool) pickByIdleness(candidates []int, idx int) int {
	return p.pickSorted(candidates, idx, true, func(i int) int64 {
		return int64(p.workers[i].IdleCount())
	})
}

// pickByQueueSize is the same metric as pickByWorkload, named separately to
// match the spec's distinct accessor for the High-priority fallback ("pick
// smallest-queue worker") and for the work-stealing source selection
// ("largest queue").
func (p *Pool) pickByQueueSize(candidates []int, idx int) int {
	return p.pickByWorkload(candidates, idx)
}

func (p *Pool) pickSorted(candidates []int, idx int, tiebreakDescID bool, metric func(int) int64) int {
	if len(candidates) == 0 {
		return -1
	}
	sorted := append([]int(nil), candidates...)
	sort.SliceStable(sorted, func(a, b int) bool {
		ia, ib := sorted[a], sorted[b]
		ma, mb := metric(ia), metric(ib)
		if ma != mb {
			return ma < mb
		}
		if tiebreakDescID {
			return ia > ib
		}
		return ia < ib
	})
	n := len(sorted)
	if idx < 0 {
		idx = n + idx
	}
	if idx < 0 || idx >= n {
		return -1
	}
	return sorted[idx]
}

// ============================================================================
// Work stealing (spec.md §4.4.3)
// ============================================================================

func (p *Pool) onWorkerIdle(workerID int, idleCount uint64) {
	threshold := p.cfg.MaxIdleLoopCount / 1000
	if threshold == 0 {
		threshold = 1
	}
	if idleCount < threshold {
		return
	}

	others := make([]int, 0, len(p.workers)-1)
	for i := range p.workers {
		if i != workerID {
			others = append(others, i)
		}
	}
	busyIdx := p.pickByQueueSize(others, -1)
	if busyIdx < 0 {
		return
	}

	src := p.workers[busyIdx]
	if src.QueueSize() <= 1 {
		return
	}

	t, ok := src.DequeueRaw()
	if !ok {
		return
	}

	dst := p.workers[workerID]
	if !dst.EnqueueRaw(t) {
		if !src.EnqueueRaw(t) {
			p.logger.Error("work stealing lost a task between source and destination",
				"task", t.Promise.TaskID(), "source", busyIdx, "destination", workerID)
		}
		return
	}

	t.Promise.RecordWorker(workerID)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordStolen()
	}
}

// WorkerCount returns the number of workers in the pool.
func (p *Pool) WorkerCount() int { return len(p.workers) }

// WorkerQueueSize returns worker i's current queue depth, or -1 if i is out
// of range. Exposed for diagnostics and tests.
func (p *Pool) WorkerQueueSize(i int) int {
	if i < 0 || i >= len(p.workers) {
		return -1
	}
	return p.workers[i].QueueSize()
}
