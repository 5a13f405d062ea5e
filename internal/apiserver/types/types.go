// Package types defines request and response shapes for the upfleet API
// and the conversion from raw HTTP payloads to run requests.
package types

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/fleet"
	"github.com/upfleet/upfleet/internal/interfaces"
)

// Bounds the HTTP front door enforces on top of the engine defaults
const (
	// MaxParallelCap is the highest concurrency a caller can request
	MaxParallelCap = 20
	// MinPollInterval is the lowest poll interval a caller can request
	MinPollInterval = 10 * time.Second
)

// CreateRunRequest is the body of POST /api/v1/runs. Pointer fields
// distinguish "absent" from zero values so server defaults apply only
// when the caller said nothing.
type CreateRunRequest struct {
	Mode                      string   `json:"mode" mapstructure:"mode"`
	Project                   string   `json:"project" mapstructure:"project"`
	Locations                 []string `json:"locations" mapstructure:"locations"`
	Instance                  string   `json:"instance,omitempty" mapstructure:"instance"`
	DryRun                    *bool    `json:"dry_run,omitempty" mapstructure:"dry_run"`
	MaxParallel               *int     `json:"max_parallel,omitempty" mapstructure:"max_parallel"`
	TimeoutSeconds            *int     `json:"timeout_seconds,omitempty" mapstructure:"timeout_seconds"`
	PollIntervalSeconds       *int     `json:"poll_interval_seconds,omitempty" mapstructure:"poll_interval_seconds"`
	HealthCheckTimeoutSeconds *int     `json:"health_check_timeout_seconds,omitempty" mapstructure:"health_check_timeout_seconds"`
	StaggerDelaySeconds       *float64 `json:"stagger_delay_seconds,omitempty" mapstructure:"stagger_delay_seconds"`
	RollbackOnFailure         *bool    `json:"rollback_on_failure,omitempty" mapstructure:"rollback_on_failure"`
	TargetSnapshot            string   `json:"target_snapshot,omitempty" mapstructure:"target_snapshot"`
}

// RunResponse is the representation of a run returned by the API
type RunResponse struct {
	RunID       string                `json:"run_id"`
	Status      string                `json:"status"`
	Mode        string                `json:"mode,omitempty"`
	Project     string                `json:"project,omitempty"`
	Locations   []string              `json:"locations,omitempty"`
	Instance    string                `json:"instance,omitempty"`
	DryRun      bool                  `json:"dry_run"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Error       string                `json:"error,omitempty"`
	Result      *interfaces.RunResult `json:"result,omitempty"`
}

// FromQueuedRun builds a RunResponse from tracker state
func FromQueuedRun(run *interfaces.QueuedRun, result *interfaces.RunResult) RunResponse {
	resp := RunResponse{
		RunID:       run.ID,
		Status:      string(run.Status),
		CreatedAt:   run.CreatedAt,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.LastError,
		Result:      result,
	}
	if run.Request != nil {
		resp.Mode = run.Request.Mode
		if run.Request.Config != nil {
			resp.Project = run.Request.Config.Project
			resp.Locations = run.Request.Config.Locations
			resp.Instance = run.Request.Config.Instance
			resp.DryRun = run.Request.Config.DryRun
		}
	}
	return resp
}

// RequestConverter turns raw request payloads into fully defaulted run
// requests. The base config carries server-side settings (endpoint,
// token) that callers cannot override.
type RequestConverter struct {
	base *config.RunConfig
}

// NewRequestConverter creates a converter over the given base configuration
func NewRequestConverter(base *config.RunConfig) *RequestConverter {
	if base == nil {
		base = config.NewRunConfig()
	}
	return &RequestConverter{base: base}
}

// Decode decodes a raw JSON object into a CreateRunRequest. Weak typing
// tolerates numbers sent as strings, which serverless callers tend to do.
func (c *RequestConverter) Decode(raw map[string]interface{}) (*CreateRunRequest, error) {
	var req CreateRunRequest
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		Result:           &req,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build request decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid run request: %w", err)
	}
	return &req, nil
}

// ToRunRequest merges a create request with server defaults and bounds.
// Over HTTP dry_run defaults to true; a caller must opt in to mutations.
func (c *RequestConverter) ToRunRequest(req *CreateRunRequest) (*interfaces.RunRequest, error) {
	mode := req.Mode
	if mode != fleet.ModeUpgrade && mode != fleet.ModeRollback {
		return nil, fmt.Errorf("mode must be %q or %q", fleet.ModeUpgrade, fleet.ModeRollback)
	}

	cfg := config.NewRunConfig()
	cfg.Endpoint = c.base.Endpoint
	cfg.APIToken = c.base.APIToken
	cfg.Project = req.Project
	cfg.Locations = append([]string(nil), req.Locations...)
	cfg.Instance = req.Instance
	cfg.TargetSnapshot = req.TargetSnapshot

	cfg.DryRun = true
	if req.DryRun != nil {
		cfg.DryRun = *req.DryRun
	}
	if req.MaxParallel != nil {
		cfg.MaxParallel = *req.MaxParallel
	}
	if cfg.MaxParallel > MaxParallelCap {
		cfg.MaxParallel = MaxParallelCap
	}
	if req.TimeoutSeconds != nil {
		cfg.OperationTimeout = time.Duration(*req.TimeoutSeconds) * time.Second
	}
	if req.PollIntervalSeconds != nil {
		cfg.PollInterval = time.Duration(*req.PollIntervalSeconds) * time.Second
	}
	if cfg.PollInterval < MinPollInterval {
		cfg.PollInterval = MinPollInterval
	}
	if req.HealthCheckTimeoutSeconds != nil {
		cfg.HealthCheckTimeout = time.Duration(*req.HealthCheckTimeoutSeconds) * time.Second
	}
	if req.StaggerDelaySeconds != nil {
		cfg.StaggerDelay = time.Duration(*req.StaggerDelaySeconds * float64(time.Second))
	}
	if req.RollbackOnFailure != nil {
		cfg.RollbackOnFailure = *req.RollbackOnFailure
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &interfaces.RunRequest{Mode: mode, Config: cfg}, nil
}
