package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upfleet/upfleet/internal/interfaces"
)

func TestSynchronousEventBusDelivery(t *testing.T) {
	t.Parallel()

	bus := NewSynchronousEventBus()
	var got []RunEvent
	bus.Subscribe(EventStatusChanged, func(e RunEvent) { got = append(got, e) })

	bus.PublishStatusChange("run-1", interfaces.RunStatusProcessing)
	bus.PublishStatusChange("run-1", interfaces.RunStatusCompleted)

	require.Len(t, got, 2)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, interfaces.RunStatusProcessing, *got[0].Status)
	assert.Equal(t, interfaces.RunStatusCompleted, *got[1].Status)
}

func TestEventBusOnlyMatchingTypeDelivered(t *testing.T) {
	t.Parallel()

	bus := NewSynchronousEventBus()
	statusCount := 0
	resultCount := 0
	bus.Subscribe(EventStatusChanged, func(RunEvent) { statusCount++ })
	bus.Subscribe(EventResultReady, func(RunEvent) { resultCount++ })

	bus.PublishResult("run-1", &interfaces.RunResult{RunID: "run-1", Success: true})

	assert.Equal(t, 0, statusCount)
	assert.Equal(t, 1, resultCount)
}

type recordingTracker struct {
	statuses map[string]interfaces.RunStatus
	results  map[string]*interfaces.RunResult
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{
		statuses: make(map[string]interfaces.RunStatus),
		results:  make(map[string]*interfaces.RunResult),
	}
}

func (r *recordingTracker) Register(*interfaces.QueuedRun) error             { return nil }
func (r *recordingTracker) GetByID(string) (*interfaces.QueuedRun, error)    { return nil, nil }
func (r *recordingTracker) GetStatus(string) (*interfaces.RunStatus, error)  { return nil, nil }
func (r *recordingTracker) GetResult(string) (*interfaces.RunResult, error)  { return nil, nil }
func (r *recordingTracker) Remove(string) error                              { return nil }
func (r *recordingTracker) List(interfaces.RunFilter) ([]*interfaces.QueuedRun, error) {
	return nil, nil
}

func (r *recordingTracker) SetStatus(runID string, status interfaces.RunStatus) error {
	r.statuses[runID] = status
	return nil
}

func (r *recordingTracker) SetResult(runID string, result *interfaces.RunResult) error {
	r.results[runID] = result
	return nil
}

func TestConnectTrackerToEventBus(t *testing.T) {
	t.Parallel()

	bus := NewSynchronousEventBus()
	tracker := newRecordingTracker()
	ConnectTrackerToEventBus(bus, tracker)

	bus.PublishStatusChange("run-1", interfaces.RunStatusProcessing)
	bus.PublishResult("run-1", &interfaces.RunResult{RunID: "run-1", Success: true})

	assert.Equal(t, interfaces.RunStatusProcessing, tracker.statuses["run-1"])
	require.NotNil(t, tracker.results["run-1"])
	assert.True(t, tracker.results["run-1"].Success)
}
