package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upfleet/upfleet/internal/interfaces"
)

func queuedRun(id string) *interfaces.QueuedRun {
	return &interfaces.QueuedRun{
		ID:        id,
		Status:    interfaces.RunStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
}

func TestTrackerRegisterAndGet(t *testing.T) {
	t.Parallel()
	tracker := NewTracker()

	run := queuedRun("run-1")
	require.NoError(t, tracker.Register(run))

	got, err := tracker.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	status, err := tracker.GetStatus("run-1")
	require.NoError(t, err)
	assert.Equal(t, interfaces.RunStatusQueued, *status)
}

func TestTrackerRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()
	tracker := NewTracker()

	require.NoError(t, tracker.Register(queuedRun("run-1")))
	err := tracker.Register(queuedRun("run-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestTrackerStatusTransitionsStampTimestamps(t *testing.T) {
	t.Parallel()
	tracker := NewTracker()
	require.NoError(t, tracker.Register(queuedRun("run-1")))

	require.NoError(t, tracker.SetStatus("run-1", interfaces.RunStatusProcessing))
	run, err := tracker.GetByID("run-1")
	require.NoError(t, err)
	require.NotNil(t, run.StartedAt)
	assert.Nil(t, run.CompletedAt)

	require.NoError(t, tracker.SetStatus("run-1", interfaces.RunStatusCompleted))
	run, err = tracker.GetByID("run-1")
	require.NoError(t, err)
	require.NotNil(t, run.CompletedAt)
}

func TestTrackerSetAndGetResult(t *testing.T) {
	t.Parallel()
	tracker := NewTracker()
	require.NoError(t, tracker.Register(queuedRun("run-1")))

	// No result yet
	result, err := tracker.GetResult("run-1")
	require.NoError(t, err)
	assert.Nil(t, result)

	stored := &interfaces.RunResult{
		RunID:   "run-1",
		Success: false,
		Error:   "2 of 5 operations failed",
	}
	require.NoError(t, tracker.SetResult("run-1", stored))

	result, err = tracker.GetResult("run-1")
	require.NoError(t, err)
	assert.Equal(t, stored, result)

	run, err := tracker.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, "2 of 5 operations failed", run.LastError)
}

func TestTrackerListNewestFirstWithFilter(t *testing.T) {
	t.Parallel()
	tracker := NewTracker()

	for _, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, tracker.Register(queuedRun(id)))
	}
	require.NoError(t, tracker.SetStatus("run-2", interfaces.RunStatusProcessing))

	all, err := tracker.List(interfaces.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-3", all[0].ID)
	assert.Equal(t, "run-1", all[2].ID)

	queued, err := tracker.List(interfaces.RunFilter{
		Status: []interfaces.RunStatus{interfaces.RunStatusQueued},
	})
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "run-3", queued[0].ID)
	assert.Equal(t, "run-1", queued[1].ID)
}

func TestTrackerRemove(t *testing.T) {
	t.Parallel()
	tracker := NewTracker()
	require.NoError(t, tracker.Register(queuedRun("run-1")))

	require.NoError(t, tracker.Remove("run-1"))

	_, err := tracker.GetByID("run-1")
	require.Error(t, err)

	err = tracker.Remove("run-1")
	require.Error(t, err)
}

func TestTrackerUnknownRunErrors(t *testing.T) {
	t.Parallel()
	tracker := NewTracker()

	_, err := tracker.GetByID("missing")
	assert.Error(t, err)
	_, err = tracker.GetStatus("missing")
	assert.Error(t, err)
	err = tracker.SetStatus("missing", interfaces.RunStatusProcessing)
	assert.Error(t, err)
	err = tracker.SetResult("missing", &interfaces.RunResult{})
	assert.Error(t, err)
}
