package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upfleet/upfleet/internal/interfaces"
)

// EmbeddedQueue implements interfaces.RunQueue using a Go channel.
// It is the default backend for single-process deployments.
type EmbeddedQueue struct {
	mu        sync.RWMutex
	runs      chan *interfaces.QueuedRun
	cancelMap map[string]context.CancelFunc
	closed    bool
	closeOnce sync.Once

	// Metrics
	totalEnqueued  int64
	totalDequeued  int64
	oldestEnqueued time.Time
	totalWaitTime  time.Duration
}

// NewEmbeddedQueue creates a new channel-backed run queue
func NewEmbeddedQueue(capacity int) *EmbeddedQueue {
	if capacity <= 0 {
		capacity = 100 // Default capacity
	}

	return &EmbeddedQueue{
		runs:      make(chan *interfaces.QueuedRun, capacity),
		cancelMap: make(map[string]context.CancelFunc),
	}
}

// Enqueue adds a run to the queue
func (q *EmbeddedQueue) Enqueue(ctx context.Context, run *interfaces.QueuedRun) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	if run.ID == "" {
		return fmt.Errorf("run ID is empty")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is closed")
	}

	if err := ctx.Err(); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("enqueue canceled: %w", err)
	}

	// Create a cancelable context so a queued run can be withdrawn
	runCtx, cancel := context.WithCancel(ctx)
	q.cancelMap[run.ID] = cancel
	q.mu.Unlock()

	select {
	case q.runs <- run:
		q.mu.Lock()
		q.totalEnqueued++
		if q.oldestEnqueued.IsZero() || len(q.runs) == 1 {
			q.oldestEnqueued = time.Now()
		}
		q.mu.Unlock()
		return nil
	case <-runCtx.Done():
		q.mu.Lock()
		delete(q.cancelMap, run.ID)
		q.mu.Unlock()
		return fmt.Errorf("enqueue canceled: %w", runCtx.Err())
	default:
		q.mu.Lock()
		delete(q.cancelMap, run.ID)
		q.mu.Unlock()
		return fmt.Errorf("queue is full")
	}
}

// Cancel withdraws a run that is still waiting in the queue
func (q *EmbeddedQueue) Cancel(_ context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID is empty")
	}

	q.mu.Lock()
	cancel, exists := q.cancelMap[runID]
	if !exists {
		q.mu.Unlock()
		return fmt.Errorf("run %s not found in queue", runID)
	}
	delete(q.cancelMap, runID)
	q.mu.Unlock()

	cancel()

	return nil
}

// Dequeue retrieves the next run from the queue.
// This is an internal method used by the worker pool.
func (q *EmbeddedQueue) Dequeue(ctx context.Context) (*interfaces.QueuedRun, error) {
	select {
	case run := <-q.runs:
		if run == nil {
			return nil, fmt.Errorf("queue is closed")
		}

		q.mu.Lock()
		q.totalDequeued++
		if run.CreatedAt.After(time.Time{}) {
			q.totalWaitTime += time.Since(run.CreatedAt)
		}
		if len(q.runs) == 0 {
			q.oldestEnqueued = time.Time{}
		}
		delete(q.cancelMap, run.ID)
		q.mu.Unlock()

		return run, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("context canceled: %w", ctx.Err())
	}
}

// Close closes the queue and cancels all pending runs
func (q *EmbeddedQueue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		q.closed = true
		close(q.runs)

		for _, cancel := range q.cancelMap {
			cancel()
		}
		q.cancelMap = make(map[string]context.CancelFunc)
	})
}

// Size returns the current number of runs in the queue
func (q *EmbeddedQueue) Size() int {
	return len(q.runs)
}

// Capacity returns the queue capacity
func (q *EmbeddedQueue) Capacity() int {
	return cap(q.runs)
}

// GetMetrics returns queue metrics
func (q *EmbeddedQueue) GetMetrics() interfaces.QueueMetrics {
	q.mu.RLock()
	defer q.mu.RUnlock()

	metrics := interfaces.QueueMetrics{
		TotalEnqueued: q.totalEnqueued,
		TotalDequeued: q.totalDequeued,
		CurrentDepth:  len(q.runs),
		OldestRun:     q.oldestEnqueued,
	}

	if q.totalDequeued > 0 {
		metrics.AverageWaitTime = q.totalWaitTime / time.Duration(q.totalDequeued)
	}

	return metrics
}
