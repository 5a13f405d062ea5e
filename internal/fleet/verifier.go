package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/upfleet/upfleet/internal/logging"
	"github.com/upfleet/upfleet/internal/workbench"
)

// Verifier polls an instance after an operation completes until it reaches a
// stable healthy state or the wait budget runs out
type Verifier struct {
	api          ControlPlane
	pollInterval time.Duration
	logger       *logging.Logger
	sleep        func(time.Duration)
	now          func() time.Time
}

// NewVerifier creates a health verifier polling at the given interval
func NewVerifier(api ControlPlane, pollInterval time.Duration) *Verifier {
	return &Verifier{
		api:          api,
		pollInterval: pollInterval,
		logger:       logging.NewLogger("health-verifier"),
		sleep:        time.Sleep,
		now:          time.Now,
	}
}

// Verify implements HealthVerifier. ACTIVE and not flagged unhealthy is
// healthy; transitional states keep waiting; any other state fails
// immediately. Transient read errors are retried until the deadline.
func (v *Verifier) Verify(ctx context.Context, instanceName string, maxWait time.Duration) (bool, string) {
	deadline := v.now().Add(maxWait)

	for {
		if err := ctx.Err(); err != nil {
			return false, fmt.Sprintf("verification canceled: %v", err)
		}

		instance, err := v.api.GetInstance(ctx, instanceName)
		switch {
		case err != nil:
			v.logger.Warnf("Health read failed for %s, will retry: %v", instanceName, err)
		case instance.State == workbench.StateActive:
			if instance.Unhealthy() {
				return false, fmt.Sprintf("instance is ACTIVE but health state is %s", instance.HealthState)
			}
			return true, ""
		case workbench.TransitionalStates[instance.State]:
			v.logger.Debugf("Instance %s still %s, waiting", instance.ShortName(), instance.State)
		default:
			return false, fmt.Sprintf("instance entered unexpected state %s", instance.State)
		}

		if !v.now().Add(v.pollInterval).Before(deadline) {
			return false, fmt.Sprintf("health verification timed out after %s", maxWait)
		}
		v.sleep(v.pollInterval)
	}
}
