package fleet

import (
	"context"
	"errors"
	"time"

	"github.com/upfleet/upfleet/internal/logging"
)

// ErrTrackerFull is returned when Dispatch is called at capacity. The caller
// must drain before dispatching again.
var ErrTrackerFull = errors.New("operation tracker at capacity")

// Handle is one tracked in-flight long-running operation. Owned by the
// tracker from Dispatch until the operation resolves.
type Handle struct {
	Instance      InstanceRef
	OperationName string
	TargetVersion string
	StartedAt     time.Time
}

// Completion is the terminal outcome of one tracked operation
type Completion struct {
	Handle   Handle
	Success  bool
	TimedOut bool
	Message  string
}

// Tracker maintains the bounded set of in-flight operations, polls them to
// completion, and runs health verification on the ones that finish cleanly.
// It is not safe for concurrent use; the engine's single control flow owns it.
type Tracker struct {
	api              ControlPlane
	verifier         HealthVerifier
	maxParallel      int
	pollInterval     time.Duration
	operationTimeout time.Duration
	healthTimeout    time.Duration
	handles          []Handle
	logger           *logging.Logger
	sleep            func(time.Duration)
	now              func() time.Time
}

// NewTracker creates an operation tracker with the given concurrency cap and
// timing budget
func NewTracker(api ControlPlane, verifier HealthVerifier, maxParallel int,
	pollInterval, operationTimeout, healthTimeout time.Duration) *Tracker {
	return &Tracker{
		api:              api,
		verifier:         verifier,
		maxParallel:      maxParallel,
		pollInterval:     pollInterval,
		operationTimeout: operationTimeout,
		healthTimeout:    healthTimeout,
		logger:           logging.NewLogger("operation-tracker"),
		sleep:            time.Sleep,
		now:              time.Now,
	}
}

// InFlight returns the number of currently tracked operations
func (t *Tracker) InFlight() int { return len(t.handles) }

// Full reports whether the tracker is at its concurrency cap
func (t *Tracker) Full() bool { return len(t.handles) >= t.maxParallel }

// Dispatch registers a new operation. It is rejected at capacity; the caller
// throttles by draining first.
func (t *Tracker) Dispatch(h Handle) error {
	if t.Full() {
		return ErrTrackerFull
	}
	if h.StartedAt.IsZero() {
		h.StartedAt = t.now()
	}
	t.handles = append(t.handles, h)
	t.logger.Debugf("Tracking operation %s for %s (%d/%d in flight)",
		h.OperationName, h.Instance.ShortName, len(t.handles), t.maxParallel)
	return nil
}

// DrainOne sleeps for one poll interval, then sweeps every tracked handle:
// timed-out handles finalize as failed without another poll, completed
// operations finalize through health verification, and everything else stays
// tracked. Returns the completions observed in this sweep.
func (t *Tracker) DrainOne(ctx context.Context) []Completion {
	if len(t.handles) == 0 {
		return nil
	}
	t.sleep(t.pollInterval)

	var completions []Completion
	remaining := t.handles[:0]

	for _, h := range t.handles {
		if done, c := t.poll(ctx, h); done {
			completions = append(completions, c)
		} else {
			remaining = append(remaining, h)
		}
	}

	t.handles = remaining
	return completions
}

// DrainAll drains until no operations remain in flight
func (t *Tracker) DrainAll(ctx context.Context) []Completion {
	var completions []Completion
	for len(t.handles) > 0 {
		completions = append(completions, t.DrainOne(ctx)...)
	}
	return completions
}

// poll checks one handle; done=false means keep tracking
func (t *Tracker) poll(ctx context.Context, h Handle) (bool, Completion) {
	elapsed := t.now().Sub(h.StartedAt)
	if elapsed > t.operationTimeout {
		t.logger.Errorf("Operation %s for %s timed out after %s",
			h.OperationName, h.Instance.ShortName, elapsed.Round(time.Second))
		return true, Completion{
			Handle:   h,
			TimedOut: true,
			Message:  "operation timed out after " + elapsed.Round(time.Second).String(),
		}
	}

	op, err := t.api.GetOperation(ctx, h.OperationName)
	if err != nil {
		// Poll failure is not operation failure; the timeout bounds how
		// long we keep trying
		t.logger.Warnf("Failed to poll operation %s: %v", h.OperationName, err)
		return false, Completion{}
	}

	if !op.Done {
		return false, Completion{}
	}

	if op.Error != nil {
		t.logger.Errorf("Operation %s for %s failed: %s",
			h.OperationName, h.Instance.ShortName, op.Error.Message)
		return true, Completion{Handle: h, Message: op.Error.Message}
	}

	healthy, reason := t.verifier.Verify(ctx, h.Instance.Name, t.healthTimeout)
	if !healthy {
		t.logger.Errorf("Instance %s failed post-operation health verification: %s",
			h.Instance.ShortName, reason)
		return true, Completion{Handle: h, Message: "health verification failed: " + reason}
	}

	t.logger.Infof("Operation %s for %s completed successfully",
		h.OperationName, h.Instance.ShortName)
	return true, Completion{Handle: h, Success: true}
}
