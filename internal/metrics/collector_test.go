package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectorRunLifecycle(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.RecordRunQueued("run-1")
	c.RecordRunStarted("run-1")
	c.RecordRunCompleted("run-1")

	c.RecordRunQueued("run-2")
	c.RecordRunStarted("run-2")
	c.RecordRunFailed("run-2")

	c.RecordRunQueued("run-3")
	c.RecordRunCanceled("run-3")

	m := c.GetSystemMetrics()
	assert.Equal(t, int64(2), m.RunsProcessed)
	assert.Equal(t, int64(1), m.RunsSucceeded)
	assert.Equal(t, int64(1), m.RunsFailed)

	qm := c.GetQueueMetrics()
	assert.Equal(t, int64(3), qm.TotalEnqueued)
	assert.Equal(t, int64(2), qm.TotalDequeued)
}

func TestCollectorOperationAndAPICounters(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	for i := 0; i < 4; i++ {
		c.RecordAPICall()
	}
	c.RecordRetry()
	c.RecordOperationDispatched()
	c.RecordOperationDispatched()
	c.RecordOperationSucceeded()
	c.RecordOperationFailed()

	m := c.GetSystemMetrics()
	assert.Equal(t, int64(4), m.APICalls)
	assert.Equal(t, int64(1), m.APIRetries)
	assert.Equal(t, int64(2), m.OpsDispatched)
	assert.Equal(t, int64(1), m.OpsSucceeded)
	assert.Equal(t, int64(1), m.OpsFailed)
}

func TestCollectorConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordAPICall()
				c.RecordOperationDispatched()
			}
		}()
	}
	wg.Wait()

	m := c.GetSystemMetrics()
	assert.Equal(t, int64(1000), m.APICalls)
	assert.Equal(t, int64(1000), m.OpsDispatched)
}

func TestCollectorGauges(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.UpdateQueueDepth(7)
	c.UpdateActiveWorkers(3)

	m := c.GetSystemMetrics()
	assert.Equal(t, 7, m.CurrentQueueDepth)
	assert.Equal(t, 3, m.ActiveWorkers)
}
