// Package interfaces defines the contracts between the run queue backends,
// the run tracker, the worker pool, and the API server.
package interfaces

import (
	"context"
	"time"

	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/fleet"
)

// QueuedRun represents a fleet run in the queue
type QueuedRun struct {
	ID          string      `json:"id"`
	RequestID   string      `json:"request_id,omitempty"`
	Request     *RunRequest `json:"request"`
	Status      RunStatus   `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
}

// RunRequest is a fully validated and defaulted request for one fleet run
type RunRequest struct {
	Mode   string            `json:"mode"`
	Config *config.RunConfig `json:"config"`
}

// RunStatus represents the lifecycle state of a queued run
type RunStatus string

// RunStatus constants represent the various states of a run
const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCanceled   RunStatus = "canceled"
)

// Terminal reports whether the status is a final state
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCanceled:
		return true
	default:
		return false
	}
}

// RunResult is the outcome of a completed run
type RunResult struct {
	RunID       string                  `json:"run_id"`
	Success     bool                    `json:"success"`
	Error       string                  `json:"error,omitempty"`
	Results     []fleet.OperationResult `json:"results"`
	Statistics  *fleet.Statistics       `json:"statistics"`
	ReportPath  string                  `json:"report_path,omitempty"`
	CompletedAt time.Time               `json:"completed_at"`
}

// RunFilter provides filtering options for querying runs
type RunFilter struct {
	Status        []RunStatus
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// RunTracker manages the state and metadata of runs: registration, status
// transitions, and result storage
type RunTracker interface {
	Register(run *QueuedRun) error
	GetByID(runID string) (*QueuedRun, error)
	GetStatus(runID string) (*RunStatus, error)
	SetStatus(runID string, status RunStatus) error
	GetResult(runID string) (*RunResult, error)
	SetResult(runID string, result *RunResult) error
	List(filter RunFilter) ([]*QueuedRun, error)
	Remove(runID string) error
}

// RunQueue is responsible for enqueueing and canceling runs
type RunQueue interface {
	Enqueue(ctx context.Context, run *QueuedRun) error
	Cancel(ctx context.Context, runID string) error
	GetMetrics() QueueMetrics
}

// WorkerPool manages the lifecycle of background run workers
type WorkerPool interface {
	Start()
	Stop(ctx context.Context) error
}

// RunExecutor performs one queued run to completion
type RunExecutor interface {
	Execute(ctx context.Context, run *QueuedRun) (*RunResult, error)
}
