// Package metrics provides metrics collection for fleet runs and control
// plane traffic.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/upfleet/upfleet/internal/interfaces"
)

// Collector tracks engine and queue counters
type Collector struct {
	mu sync.RWMutex

	// API traffic
	apiCalls   int64
	apiRetries int64

	// Per-operation counters
	opsDispatched int64
	opsSucceeded  int64
	opsFailed     int64

	// Per-run counters
	runsQueued    int64
	runsStarted   int64
	runsCompleted int64
	runsFailed    int64
	runsCanceled  int64

	// Timing
	runDurations   []time.Duration
	queueWaitTimes []time.Duration

	// Real-time gauges
	activeWorkers int32
	queueDepth    int32

	startTime time.Time

	// Per-run tracking
	runStartTimes sync.Map // runID -> time.Time
	runQueueTimes sync.Map // runID -> time.Time
}

const maxTimingSamples = 1000

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime:      time.Now(),
		runDurations:   make([]time.Duration, 0, maxTimingSamples),
		queueWaitTimes: make([]time.Duration, 0, maxTimingSamples),
	}
}

// RecordAPICall records one control plane request
func (c *Collector) RecordAPICall() {
	atomic.AddInt64(&c.apiCalls, 1)
}

// RecordRetry records one transport-level retry
func (c *Collector) RecordRetry() {
	atomic.AddInt64(&c.apiRetries, 1)
}

// RecordOperationDispatched records one operation handed to the tracker
func (c *Collector) RecordOperationDispatched() {
	atomic.AddInt64(&c.opsDispatched, 1)
}

// RecordOperationSucceeded records one operation that finished healthy
func (c *Collector) RecordOperationSucceeded() {
	atomic.AddInt64(&c.opsSucceeded, 1)
}

// RecordOperationFailed records one operation that failed or timed out
func (c *Collector) RecordOperationFailed() {
	atomic.AddInt64(&c.opsFailed, 1)
}

// RecordRunQueued records when a run enters the queue
func (c *Collector) RecordRunQueued(runID string) {
	atomic.AddInt64(&c.runsQueued, 1)
	c.runQueueTimes.Store(runID, time.Now())
}

// RecordRunStarted records when a run starts processing
func (c *Collector) RecordRunStarted(runID string) {
	atomic.AddInt64(&c.runsStarted, 1)

	if queueTime, ok := c.runQueueTimes.LoadAndDelete(runID); ok {
		waitTime := time.Since(queueTime.(time.Time))
		c.mu.Lock()
		c.queueWaitTimes = append(c.queueWaitTimes, waitTime)
		if len(c.queueWaitTimes) > maxTimingSamples {
			c.queueWaitTimes = c.queueWaitTimes[len(c.queueWaitTimes)-maxTimingSamples:]
		}
		c.mu.Unlock()
	}

	c.runStartTimes.Store(runID, time.Now())
}

// RecordRunCompleted records when a run completes without failures
func (c *Collector) RecordRunCompleted(runID string) {
	atomic.AddInt64(&c.runsCompleted, 1)
	c.recordRunDuration(runID)
}

// RecordRunFailed records when a run ends with failures
func (c *Collector) RecordRunFailed(runID string) {
	atomic.AddInt64(&c.runsFailed, 1)
	c.recordRunDuration(runID)
}

// RecordRunCanceled records when a queued run is canceled
func (c *Collector) RecordRunCanceled(runID string) {
	atomic.AddInt64(&c.runsCanceled, 1)
	c.runStartTimes.Delete(runID)
	c.runQueueTimes.Delete(runID)
}

// UpdateQueueDepth updates the current queue depth
func (c *Collector) UpdateQueueDepth(depth int) {
	atomic.StoreInt32(&c.queueDepth, int32(depth)) // #nosec G115 - queue depth will never exceed int32 limits
}

// UpdateActiveWorkers updates the number of active workers
func (c *Collector) UpdateActiveWorkers(count int) {
	atomic.StoreInt32(&c.activeWorkers, int32(count)) // #nosec G115 - worker count will never exceed int32 limits
}

// GetSystemMetrics returns a snapshot of the system counters
func (c *Collector) GetSystemMetrics() interfaces.SystemMetrics {
	processed := atomic.LoadInt64(&c.runsCompleted) + atomic.LoadInt64(&c.runsFailed)

	c.mu.RLock()
	avgRunTime := c.averageRunTimeLocked()
	c.mu.RUnlock()

	return interfaces.SystemMetrics{
		APICalls:          atomic.LoadInt64(&c.apiCalls),
		APIRetries:        atomic.LoadInt64(&c.apiRetries),
		RunsProcessed:     processed,
		RunsSucceeded:     atomic.LoadInt64(&c.runsCompleted),
		RunsFailed:        atomic.LoadInt64(&c.runsFailed),
		OpsDispatched:     atomic.LoadInt64(&c.opsDispatched),
		OpsSucceeded:      atomic.LoadInt64(&c.opsSucceeded),
		OpsFailed:         atomic.LoadInt64(&c.opsFailed),
		AverageRunTime:    avgRunTime,
		CurrentQueueDepth: int(atomic.LoadInt32(&c.queueDepth)),
		ActiveWorkers:     int(atomic.LoadInt32(&c.activeWorkers)),
		SystemUptime:      time.Since(c.startTime),
	}
}

// GetQueueMetrics returns a snapshot of the queue counters
func (c *Collector) GetQueueMetrics() interfaces.QueueMetrics {
	c.mu.RLock()
	avgWaitTime := c.averageQueueWaitTimeLocked()
	c.mu.RUnlock()

	var oldestTime time.Time
	c.runQueueTimes.Range(func(_, value interface{}) bool {
		queueTime := value.(time.Time)
		if oldestTime.IsZero() || queueTime.Before(oldestTime) {
			oldestTime = queueTime
		}
		return true
	})

	return interfaces.QueueMetrics{
		TotalEnqueued:   atomic.LoadInt64(&c.runsQueued),
		TotalDequeued:   atomic.LoadInt64(&c.runsStarted),
		CurrentDepth:    int(atomic.LoadInt32(&c.queueDepth)),
		AverageWaitTime: avgWaitTime,
		OldestRun:       oldestTime,
	}
}

func (c *Collector) recordRunDuration(runID string) {
	if startTime, ok := c.runStartTimes.LoadAndDelete(runID); ok {
		duration := time.Since(startTime.(time.Time))
		c.mu.Lock()
		c.runDurations = append(c.runDurations, duration)
		if len(c.runDurations) > maxTimingSamples {
			c.runDurations = c.runDurations[len(c.runDurations)-maxTimingSamples:]
		}
		c.mu.Unlock()
	}
}

func (c *Collector) averageRunTimeLocked() time.Duration {
	if len(c.runDurations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range c.runDurations {
		total += d
	}
	return total / time.Duration(len(c.runDurations))
}

func (c *Collector) averageQueueWaitTimeLocked() time.Duration {
	if len(c.queueWaitTimes) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range c.queueWaitTimes {
		total += d
	}
	return total / time.Duration(len(c.queueWaitTimes))
}
