package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upfleet/upfleet/internal/workbench"
)

func newTestTracker(api ControlPlane, maxParallel int) (*Tracker, *fakeClock) {
	clock := newFakeClock()
	verifier := NewVerifier(api, time.Second)
	verifier.sleep = clock.sleep
	verifier.now = clock.now

	tracker := NewTracker(api, verifier, maxParallel, time.Second, time.Hour, time.Minute)
	tracker.sleep = clock.sleep
	tracker.now = clock.now
	return tracker, clock
}

func handleFor(id, opName string) Handle {
	return Handle{
		Instance: InstanceRef{
			Name:      "projects/p/locations/us-east1/instances/" + id,
			ShortName: id,
			Location:  "us-east1",
		},
		OperationName: opName,
	}
}

func TestTrackerRejectsDispatchAtCapacity(t *testing.T) {
	t.Parallel()

	tracker, _ := newTestTracker(&fakeAPI{}, 2)
	require.NoError(t, tracker.Dispatch(handleFor("wb-a", "op-1")))
	require.NoError(t, tracker.Dispatch(handleFor("wb-b", "op-2")))
	assert.True(t, tracker.Full())

	err := tracker.Dispatch(handleFor("wb-c", "op-3"))
	require.ErrorIs(t, err, ErrTrackerFull)
	assert.Equal(t, 2, tracker.InFlight())
}

func TestTrackerDrainOneKeepsPendingOperations(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		getOpFn: func(name string) (*workbench.Operation, error) {
			return &workbench.Operation{Name: name, Done: name == "op-done"}, nil
		},
	}
	tracker, clock := newTestTracker(api, 5)
	require.NoError(t, tracker.Dispatch(handleFor("wb-a", "op-done")))
	require.NoError(t, tracker.Dispatch(handleFor("wb-b", "op-pending")))

	completions := tracker.DrainOne(context.Background())
	require.Len(t, completions, 1)
	assert.True(t, completions[0].Success)
	assert.Equal(t, "wb-a", completions[0].Handle.Instance.ShortName)
	assert.Equal(t, 1, tracker.InFlight())
	assert.Equal(t, []time.Duration{time.Second}, clock.sleeps)
}

func TestTrackerFinalizesTimedOutOperationWithoutPolling(t *testing.T) {
	t.Parallel()

	polled := false
	api := &fakeAPI{
		getOpFn: func(name string) (*workbench.Operation, error) {
			polled = true
			return &workbench.Operation{Name: name}, nil
		},
	}
	tracker, clock := newTestTracker(api, 5)

	h := handleFor("wb-a", "op-1")
	h.StartedAt = clock.now().Add(-2 * time.Hour) // already past the 1h timeout
	require.NoError(t, tracker.Dispatch(h))

	completions := tracker.DrainOne(context.Background())
	require.Len(t, completions, 1)
	assert.False(t, completions[0].Success)
	assert.True(t, completions[0].TimedOut)
	assert.Contains(t, completions[0].Message, "timed out")
	assert.False(t, polled, "timed-out handles must not be polled again")
}

func TestTrackerOperationErrorBecomesFailure(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		getOpFn: func(name string) (*workbench.Operation, error) {
			return &workbench.Operation{
				Name:  name,
				Done:  true,
				Error: &workbench.OperationError{Code: 9, Message: "disk resize failed"},
			}, nil
		},
	}
	tracker, _ := newTestTracker(api, 5)
	require.NoError(t, tracker.Dispatch(handleFor("wb-a", "op-1")))

	completions := tracker.DrainOne(context.Background())
	require.Len(t, completions, 1)
	assert.False(t, completions[0].Success)
	assert.Equal(t, "disk resize failed", completions[0].Message)
}

func TestTrackerPollErrorKeepsTracking(t *testing.T) {
	t.Parallel()

	calls := 0
	api := &fakeAPI{
		getOpFn: func(name string) (*workbench.Operation, error) {
			calls++
			if calls == 1 {
				return nil, assert.AnError
			}
			return &workbench.Operation{Name: name, Done: true}, nil
		},
	}
	tracker, _ := newTestTracker(api, 5)
	require.NoError(t, tracker.Dispatch(handleFor("wb-a", "op-1")))

	assert.Empty(t, tracker.DrainOne(context.Background()))
	assert.Equal(t, 1, tracker.InFlight())

	completions := tracker.DrainAll(context.Background())
	require.Len(t, completions, 1)
	assert.True(t, completions[0].Success)
	assert.Zero(t, tracker.InFlight())
}
