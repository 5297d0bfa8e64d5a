package promise

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ringpool/ringpool/pkg/task"
)

func TestNewIsQueuing(t *testing.T) {
	p := New(1, nil)
	assert.Equal(t, task.Queuing, p.State())
	assert.Equal(t, -1, p.LastWorkerID())
	assert.Empty(t, p.WorkerTrail())
}

func TestCancelFromQueuingSucceedsOnce(t *testing.T) {
	p := New(1, nil)
	assert.Equal(t, 0, p.Cancel())
	assert.Equal(t, task.Cancelled, p.State())
	// Idempotent: repeated cancel never succeeds twice.
	assert.Equal(t, -1, p.Cancel())
}

func TestCancelFailsWhenRunning(t *testing.T) {
	p := New(1, nil)
	require := assert.New(t)
	require.Equal(0, p.ChangeState(task.Queuing, task.Running))
	require.Equal(-1, p.Cancel())
	require.Equal(task.Running, p.State())
}

func TestDoneRequiresRunning(t *testing.T) {
	p := New(1, nil)
	assert.Equal(t, -1, p.Done())
	require := assert.New(t)
	require.Equal(0, p.ChangeState(task.Queuing, task.Running))
	require.Equal(0, p.Done())
	require.Equal(task.Done, p.State())
}

func TestResetStateFromTerminalOnly(t *testing.T) {
	p := New(1, nil)
	// Cannot reset while Queuing.
	assert.Equal(t, -1, p.ResetState())

	require := assert.New(t)
	require.Equal(0, p.ChangeState(task.Queuing, task.Running))
	// Cannot reset while Running.
	assert.Equal(t, -1, p.ResetState())

	require.Equal(0, p.Done())
	assert.Equal(t, 0, p.ResetState())
	assert.Equal(t, task.Queuing, p.State())
}

func TestWaitReturnsOnTerminalState(t *testing.T) {
	p := New(1, nil)
	var wg sync.WaitGroup
	wg.Add(1)
	var observed task.State
	go func() {
		defer wg.Done()
		observed = p.Wait()
	}()

	require := assert.New(t)
	require.Equal(0, p.ChangeState(task.Queuing, task.Running))
	require.Equal(0, p.Done())
	wg.Wait()
	assert.Equal(t, task.Done, observed)
}

// TestExecutionUniqueness is the spec §8 property: Queuing->Running
// succeeds exactly once across any number of concurrent callers.
func TestExecutionUniqueness(t *testing.T) {
	p := New(1, nil)
	const attempts = 64
	var wins atomic64
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if p.ChangeState(task.Queuing, task.Running) == 0 {
				wins.add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins.load())
}

// WorkerTrail/LastWorkerID tracking.
func TestWorkerTrailRecordAndRollback(t *testing.T) {
	p := New(1, nil)
	p.RecordWorker(2)
	p.RecordWorker(5)
	assert.Equal(t, []int{2, 5}, p.WorkerTrail())
	assert.Equal(t, 5, p.LastWorkerID())

	p.RollbackLastWorker()
	assert.Equal(t, []int{2}, p.WorkerTrail())
	assert.Equal(t, 2, p.LastWorkerID())

	p.RollbackLastWorker()
	assert.Empty(t, p.WorkerTrail())
	assert.Equal(t, -1, p.LastWorkerID())
}

// atomic64 is a tiny counter local to this test file to avoid importing
// sync/atomic's int64 helpers just for one assertion.
type atomic64 struct {
	mu sync.Mutex
	n  int64
}

func (a *atomic64) add(d int64) {
	a.mu.Lock()
	a.n += d
	a.mu.Unlock()
}

func (a *atomic64) load() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}
