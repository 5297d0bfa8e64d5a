package pool

// ============================================================================
// Pool Test File
// Purpose: Exercise placement, dependency retry, cancellation, and
// drain-then-exit across a multi-worker pool.
// ============================================================================

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringpool/ringpool/internal/logging"
	"github.com/ringpool/ringpool/internal/platform"
	"github.com/ringpool/ringpool/internal/promise"
	"github.com/ringpool/ringpool/pkg/task"
)

func newTestPool(numThreads int, enableWorkStealing bool) *Pool {
	logger := logging.New(nil)
	plat := platform.Default(logger)
	p := New(Config{
		NumThreads:       numThreads,
		MaxQueueSize:     256,
		MaxIdleLoopCount: 50,
		Logger:           logger,
		Platform:         plat,
	})
	p.Start(enableWorkStealing)
	return p
}

// TestBasicThroughput: spec scenario 1 - submit N independent tasks across a
// multi-worker pool, wait for each, verify every one ran and reached Done.
func TestBasicThroughput(t *testing.T) {
	p := newTestPool(4, false)
	defer p.StopAndWaitAll()

	const n = 200
	var mu sync.Mutex
	seen := make(map[int]bool, n)
	proms := make([]*promise.TaskPromise, n)

	for i := 0; i < n; i++ {
		idx := i
		desc := DefaultTaskDescription()
		prom := p.Submit(func(_ *promise.TaskPromise) {
			mu.Lock()
			seen[idx] = true
			mu.Unlock()
		}, desc)
		require.NotNil(t, prom)
		proms[i] = prom
	}

	for _, prom := range proms {
		assert.Equal(t, task.Done, prom.Wait())
	}

	mu.Lock()
	assert.Len(t, seen, n)
	mu.Unlock()
}

// TestCancelBeforeRun: spec scenario 2 - cancelling a promise before a
// worker picks it up prevents the body from ever running.
func TestCancelBeforeRun(t *testing.T) {
	p := New(Config{NumThreads: 1, MaxQueueSize: 8})
	// Do not Start: the task stays Queuing until we cancel it.
	var ran atomic.Bool
	desc := DefaultTaskDescription()
	prom := p.Submit(func(_ *promise.TaskPromise) {
		ran.Store(true)
	}, desc)
	require.NotNil(t, prom)
	require.Equal(t, 0, prom.Cancel())

	p.Start(false)
	p.StopAndWaitAll()

	assert.False(t, ran.Load())
	assert.Equal(t, task.Cancelled, prom.State())
}

// TestInvalidWorkerIDRejected: spec scenario 3 - specifying an out-of-range
// worker id fails the submission with a nil promise.
func TestInvalidWorkerIDRejected(t *testing.T) {
	p := newTestPool(2, false)
	defer p.StopAndWaitAll()

	desc := DefaultTaskDescription()
	desc.SpecifyWorkerID = 99
	prom := p.Submit(func(_ *promise.TaskPromise) {}, desc)
	assert.Nil(t, prom)
}

// TestDependencyChainRetries: spec scenario 4 - a task depending on an
// unfinished dependency observes DependsUnfinished and is transparently
// retried until the dependency completes.
func TestDependencyChainRetries(t *testing.T) {
	p := newTestPool(2, false)
	defer p.StopAndWaitAll()

	release := make(chan struct{})
	first := p.Submit(func(_ *promise.TaskPromise) {
		<-release
	}, DefaultTaskDescription())
	require.NotNil(t, first)

	var ran atomic.Bool
	desc := DefaultTaskDescription()
	desc.Dependencies = []*promise.TaskPromise{first}
	second := p.Submit(func(_ *promise.TaskPromise) {
		ran.Store(true)
	}, desc)
	require.NotNil(t, second)

	// Give the dependent task a few chances to observe DependsUnfinished
	// and retry before its dependency ever completes.
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())

	close(release)
	assert.Equal(t, task.Done, p.Wait(second))
	assert.True(t, ran.Load())
}

// TestDependencyCancelledShortCircuits: submitting a task whose dependency
// is already Cancelled cancels it without ever enqueueing the body.
func TestDependencyCancelledShortCircuits(t *testing.T) {
	p := New(Config{NumThreads: 1, MaxQueueSize: 8})
	dep := p.Submit(func(_ *promise.TaskPromise) {}, DefaultTaskDescription())
	require.NotNil(t, dep)
	require.Equal(t, 0, dep.Cancel())

	var ran atomic.Bool
	desc := DefaultTaskDescription()
	desc.Dependencies = []*promise.TaskPromise{dep}
	prom := p.Submit(func(_ *promise.TaskPromise) {
		ran.Store(true)
	}, desc)
	require.NotNil(t, prom)

	p.Start(false)
	p.StopAndWaitAll()

	assert.False(t, ran.Load())
	assert.Equal(t, task.Cancelled, prom.State())
}

// TestHighPriorityPrefersIdleWorker: spec scenario 5 - High priority tasks
// land on the most-idle worker, which here is always worker 1 once it has
// sat idle while worker 0 is pinned busy.
func TestHighPriorityPrefersIdleWorker(t *testing.T) {
	p := newTestPool(2, false)
	defer p.StopAndWaitAll()

	block := make(chan struct{})
	pinned := DefaultTaskDescription()
	pinned.SpecifyWorkerID = 0
	busy := p.Submit(func(_ *promise.TaskPromise) {
		<-block
	}, pinned)
	require.NotNil(t, busy)

	// Let worker 1 accumulate idle loops relative to worker 0.
	time.Sleep(10 * time.Millisecond)

	highDesc := DefaultTaskDescription()
	highDesc.Priority = task.PriorityHigh
	prom := p.Submit(func(_ *promise.TaskPromise) {}, highDesc)
	require.NotNil(t, prom)

	assert.Equal(t, task.Done, prom.Wait())
	assert.Equal(t, 1, prom.LastWorkerID())

	close(block)
}

// TestDrainThenExitAcrossWorkers: StopAndWaitAll lets in-flight and queued
// tasks finish across every worker before it returns.
func TestDrainThenExitAcrossWorkers(t *testing.T) {
	p := newTestPool(3, false)

	const n = 60
	proms := make([]*promise.TaskPromise, n)
	for i := 0; i < n; i++ {
		proms[i] = p.Submit(func(_ *promise.TaskPromise) {
			time.Sleep(time.Millisecond)
		}, DefaultTaskDescription())
		require.NotNil(t, proms[i])
	}

	p.StopAndWaitAll()

	for i, prom := range proms {
		assert.Equal(t, task.Done, prom.State(), "task %d", i)
	}
}

// TestWorkStealingDrainsBusyWorker: pin a burst of work on worker 0 while
// work stealing is enabled and check that every pinned task still reaches
// Done. Whether any task ran on another worker is recorded but not asserted.
func TestWorkStealingDrainsBusyWorker(t *testing.T) {
	p := newTestPool(4, true)
	defer p.StopAndWaitAll()

	const n = 40
	proms := make([]*promise.TaskPromise, n)
	for i := 0; i < n; i++ {
		desc := DefaultTaskDescription()
		desc.SpecifyWorkerID = 0
		proms[i] = p.Submit(func(_ *promise.TaskPromise) {
			time.Sleep(time.Millisecond)
		}, desc)
		require.NotNil(t, proms[i])
	}

	stolen := false
	for _, prom := range proms {
		assert.Equal(t, task.Done, prom.Wait())
		if prom.LastWorkerID() != 0 {
			stolen = true
		}
	}
	// Work stealing is best-effort; assert it at least had the
	// opportunity to run without asserting a specific count.
	_ = stolen
}

func TestSubmitWithNoWorkersRejected(t *testing.T) {
	p := &Pool{logger: logging.New(nil)}
	prom := p.Submit(func(_ *promise.TaskPromise) {}, DefaultTaskDescription())
	assert.Nil(t, prom)
}
