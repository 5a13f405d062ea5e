// Package fleet implements the orchestration engine that drives upgrade and
// rollback runs across a fleet of managed instances. One cooperative control
// flow alternates between dispatching new long-running operations and polling
// the ones already in flight, under a concurrency cap with staggered starts.
package fleet

import (
	"context"
	"time"

	"github.com/upfleet/upfleet/internal/workbench"
)

// ControlPlane is the slice of the workbench client the engine depends on.
// *workbench.Client satisfies it; tests substitute fakes.
type ControlPlane interface {
	ListInstances(ctx context.Context, project, location string) ([]workbench.Instance, error)
	GetInstance(ctx context.Context, name string) (*workbench.Instance, error)
	GetInstanceByName(ctx context.Context, project, location, instanceID string) (*workbench.Instance, error)
	CheckUpgradability(ctx context.Context, name string) (*workbench.UpgradeCheck, error)
	StartInstance(ctx context.Context, name string) (string, error)
	UpgradeInstance(ctx context.Context, name string) (string, error)
	RollbackInstance(ctx context.Context, name, targetSnapshot string) (string, error)
	GetOperation(ctx context.Context, name string) (*workbench.Operation, error)
}

// HealthVerifier confirms an instance reached a stable healthy state after an
// operation completed
type HealthVerifier interface {
	Verify(ctx context.Context, instanceName string, maxWait time.Duration) (bool, string)
}

// OperationMetrics receives engine-level counters. Satisfied by
// *metrics.Collector; nil disables collection.
type OperationMetrics interface {
	RecordOperationDispatched()
	RecordOperationSucceeded()
	RecordOperationFailed()
}
