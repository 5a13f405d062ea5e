package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upfleet/upfleet/internal/events"
	"github.com/upfleet/upfleet/internal/interfaces"
)

type stubExecutor struct {
	mu       sync.Mutex
	executed []string
	fail     bool
	panic    bool
}

func (s *stubExecutor) Execute(_ context.Context, run *interfaces.QueuedRun) (*interfaces.RunResult, error) {
	s.mu.Lock()
	s.executed = append(s.executed, run.ID)
	doPanic, doFail := s.panic, s.fail
	s.mu.Unlock()

	if doPanic {
		panic("boom")
	}
	if doFail {
		return nil, fmt.Errorf("execution failed")
	}
	return &interfaces.RunResult{
		RunID:       run.ID,
		Success:     true,
		CompletedAt: time.Now().UTC(),
	}, nil
}

func (s *stubExecutor) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.executed)
}

func (s *stubExecutor) executedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

func newPoolFixture(t *testing.T, exec interfaces.RunExecutor) (*EmbeddedWorkerPool, *EmbeddedQueue, *Tracker) {
	t.Helper()

	queue := NewEmbeddedQueue(10)
	tracker := NewTracker()
	pool, err := NewEmbeddedWorkerPool(EmbeddedWorkerPoolConfig{
		Workers:  2,
		Queue:    queue,
		Tracker:  tracker,
		Executor: exec,
		EventBus: events.NewSynchronousEventBus(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
		queue.Close()
	})

	return pool, queue, tracker
}

func waitForStatus(t *testing.T, tracker *Tracker, runID string, want interfaces.RunStatus) {
	t.Helper()
	assert.Eventually(t, func() bool {
		status, err := tracker.GetStatus(runID)
		return err == nil && *status == want
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEmbeddedWorkerPoolProcessesRun(t *testing.T) {
	t.Parallel()

	exec := &stubExecutor{}
	pool, queue, tracker := newPoolFixture(t, exec)
	pool.Start()

	run := queuedRun("run-1")
	require.NoError(t, tracker.Register(run))
	require.NoError(t, queue.Enqueue(context.Background(), run))

	waitForStatus(t, tracker, "run-1", interfaces.RunStatusCompleted)

	result, err := tracker.GetResult("run-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 1, exec.count())
}

func TestEmbeddedWorkerPoolMarksExecutorErrorAsFailed(t *testing.T) {
	t.Parallel()

	exec := &stubExecutor{fail: true}
	pool, queue, tracker := newPoolFixture(t, exec)
	pool.Start()

	run := queuedRun("run-1")
	require.NoError(t, tracker.Register(run))
	require.NoError(t, queue.Enqueue(context.Background(), run))

	waitForStatus(t, tracker, "run-1", interfaces.RunStatusFailed)

	result, err := tracker.GetResult("run-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "execution failed")
}

func TestEmbeddedWorkerPoolRecoversFromPanic(t *testing.T) {
	t.Parallel()

	exec := &stubExecutor{panic: true}
	pool, queue, tracker := newPoolFixture(t, exec)
	pool.Start()

	run := queuedRun("run-1")
	require.NoError(t, tracker.Register(run))
	require.NoError(t, queue.Enqueue(context.Background(), run))

	waitForStatus(t, tracker, "run-1", interfaces.RunStatusFailed)

	// The pool must keep serving after a worker panic
	exec2 := queuedRun("run-2")
	require.NoError(t, tracker.Register(exec2))
	exec.mu.Lock()
	exec.panic = false
	exec.mu.Unlock()
	require.NoError(t, queue.Enqueue(context.Background(), exec2))
	waitForStatus(t, tracker, "run-2", interfaces.RunStatusCompleted)
}

func TestEmbeddedWorkerPoolSkipsCanceledRun(t *testing.T) {
	t.Parallel()

	exec := &stubExecutor{}
	pool, queue, tracker := newPoolFixture(t, exec)

	run := queuedRun("run-1")
	require.NoError(t, tracker.Register(run))
	require.NoError(t, queue.Enqueue(context.Background(), run))
	require.NoError(t, tracker.SetStatus("run-1", interfaces.RunStatusCanceled))

	pool.Start()

	sentinel := queuedRun("run-2")
	require.NoError(t, tracker.Register(sentinel))
	require.NoError(t, queue.Enqueue(context.Background(), sentinel))
	waitForStatus(t, tracker, "run-2", interfaces.RunStatusCompleted)

	// The canceled run was dequeued but never executed
	status, err := tracker.GetStatus("run-1")
	require.NoError(t, err)
	assert.Equal(t, interfaces.RunStatusCanceled, *status)
	assert.NotContains(t, exec.executedIDs(), "run-1")
}

func TestEmbeddedWorkerPoolStopIsIdempotent(t *testing.T) {
	t.Parallel()

	pool, _, _ := newPoolFixture(t, &stubExecutor{})
	pool.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(ctx))
	require.NoError(t, pool.Stop(ctx))
}
