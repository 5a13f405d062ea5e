package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/upfleet/upfleet/internal/logging"
	"github.com/upfleet/upfleet/internal/workbench"
)

// Readiness is the prober's verdict for one instance
type Readiness struct {
	Ready  bool
	Reason string
}

// Prober decides whether an instance is ready for an operation and, for
// stopped instances, remediates by starting them
type Prober struct {
	api              ControlPlane
	verifier         HealthVerifier
	pollInterval     time.Duration
	operationTimeout time.Duration
	healthTimeout    time.Duration
	logger           *logging.Logger
	sleep            func(time.Duration)
	now              func() time.Time
}

// NewProber creates a readiness prober
func NewProber(api ControlPlane, verifier HealthVerifier,
	pollInterval, operationTimeout, healthTimeout time.Duration) *Prober {
	return &Prober{
		api:              api,
		verifier:         verifier,
		pollInterval:     pollInterval,
		operationTimeout: operationTimeout,
		healthTimeout:    healthTimeout,
		logger:           logging.NewLogger("readiness-prober"),
		sleep:            time.Sleep,
		now:              time.Now,
	}
}

// Probe classifies the instance's lifecycle state and auto-starts stopped
// instances unless dryRun is set. Errors reading or remediating are captured
// as the not-ready reason; the caller skips and the run continues.
func (p *Prober) Probe(ctx context.Context, instance *workbench.Instance, dryRun bool) Readiness {
	switch instance.Lifecycle() {
	case workbench.LifecycleReady:
		return Readiness{Ready: true}
	case workbench.LifecycleBusy:
		return Readiness{Reason: fmt.Sprintf("operation already in progress (state %s)", instance.State)}
	case workbench.LifecycleStopped:
		if dryRun {
			return Readiness{Reason: fmt.Sprintf("instance is %s, would start", instance.State)}
		}
		return p.startAndWait(ctx, instance)
	default:
		p.logger.Warnf("Instance %s in unexpected state %s", instance.ShortName(), instance.State)
		return Readiness{Reason: fmt.Sprintf("unexpected state %s", instance.State)}
	}
}

// startAndWait starts a stopped instance, polls the start operation to
// completion, and verifies the instance comes up healthy
func (p *Prober) startAndWait(ctx context.Context, instance *workbench.Instance) Readiness {
	p.logger.Infof("Starting stopped instance %s", instance.ShortName())

	opName, err := p.api.StartInstance(ctx, instance.Name)
	if err != nil {
		return Readiness{Reason: fmt.Sprintf("failed to start instance: %v", err)}
	}

	if err := p.waitForOperation(ctx, opName); err != nil {
		return Readiness{Reason: fmt.Sprintf("start operation did not complete: %v", err)}
	}

	healthy, reason := p.verifier.Verify(ctx, instance.Name, p.healthTimeout)
	if !healthy {
		return Readiness{Reason: "instance started but failed health verification: " + reason}
	}

	p.logger.Infof("Instance %s started and healthy", instance.ShortName())
	return Readiness{Ready: true}
}

// waitForOperation polls one operation until done, error, or timeout
func (p *Prober) waitForOperation(ctx context.Context, opName string) error {
	deadline := p.now().Add(p.operationTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		op, err := p.api.GetOperation(ctx, opName)
		if err != nil {
			p.logger.Warnf("Failed to poll operation %s, will retry: %v", opName, err)
		} else if op.Done {
			if op.Error != nil {
				return fmt.Errorf("operation failed: %s", op.Error.Message)
			}
			return nil
		}

		if !p.now().Add(p.pollInterval).Before(deadline) {
			return fmt.Errorf("operation %s timed out after %s", opName, p.operationTimeout)
		}
		p.sleep(p.pollInterval)
	}
}
