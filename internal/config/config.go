// Package config provides run and server configuration for upfleet
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for fleet runs. The HTTP front door applies stricter bounds on top
// of these (max_parallel capped, poll interval floored); see apiserver.
const (
	DefaultMaxParallel        = 5
	DefaultOperationTimeout   = 7200 * time.Second
	DefaultPollInterval       = 20 * time.Second
	DefaultHealthCheckTimeout = 600 * time.Second
	DefaultStaggerDelay       = 3 * time.Second
	DefaultEndpoint           = "https://notebooks.googleapis.com/v2"
)

// RunConfig holds all configuration for a single fleet run
type RunConfig struct {
	Project   string   `json:"project" env:"UPFLEET_PROJECT" desc:"Cloud project that owns the fleet"`
	Locations []string `json:"locations" env:"UPFLEET_LOCATIONS" desc:"Comma-separated list of locations to scan"`
	Instance  string   `json:"instance,omitempty" env:"UPFLEET_INSTANCE" desc:"Optional single instance name; empty means whole fleet"`

	DryRun             bool          `json:"dry_run" env:"UPFLEET_DRY_RUN" desc:"Evaluate eligibility without issuing mutations"`
	MaxParallel        int           `json:"max_parallel" env:"UPFLEET_MAX_PARALLEL" desc:"Concurrency cap for in-flight operations"`
	OperationTimeout   time.Duration `json:"operation_timeout" env:"UPFLEET_OPERATION_TIMEOUT_SECONDS" desc:"Per-operation timeout"`
	PollInterval       time.Duration `json:"poll_interval" env:"UPFLEET_POLL_INTERVAL_SECONDS" desc:"LRO poll interval"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout" env:"UPFLEET_HEALTH_CHECK_TIMEOUT_SECONDS" desc:"Post-operation health verification window"`
	StaggerDelay       time.Duration `json:"stagger_delay" env:"UPFLEET_STAGGER_DELAY_SECONDS" desc:"Minimum wait between successive operation starts"`
	RollbackOnFailure  bool          `json:"rollback_on_failure" env:"UPFLEET_ROLLBACK_ON_FAILURE" desc:"Automatically roll back instances whose upgrade fails"`
	TargetSnapshot     string        `json:"target_snapshot,omitempty" env:"UPFLEET_TARGET_SNAPSHOT" desc:"Explicit rollback snapshot override"`

	Endpoint string `json:"endpoint" env:"UPFLEET_API_ENDPOINT" desc:"Control plane base endpoint"`
	APIToken string `json:"-" env:"UPFLEET_API_TOKEN" desc:"Static bearer token for the control plane"`
}

// NewRunConfig creates a run configuration with defaults
func NewRunConfig() *RunConfig {
	return &RunConfig{
		MaxParallel:        DefaultMaxParallel,
		OperationTimeout:   DefaultOperationTimeout,
		PollInterval:       DefaultPollInterval,
		HealthCheckTimeout: DefaultHealthCheckTimeout,
		StaggerDelay:       DefaultStaggerDelay,
		Endpoint:           DefaultEndpoint,
	}
}

// LoadFromEnv loads run configuration from environment variables
func (c *RunConfig) LoadFromEnv() error { //nolint:gocognit // Configuration loading function with many environment variables
	if project := os.Getenv("UPFLEET_PROJECT"); project != "" {
		c.Project = project
	}
	if locations := os.Getenv("UPFLEET_LOCATIONS"); locations != "" {
		c.Locations = SplitLocations(locations)
	}
	if instance := os.Getenv("UPFLEET_INSTANCE"); instance != "" {
		c.Instance = instance
	}
	if dryRun := os.Getenv("UPFLEET_DRY_RUN"); dryRun != "" {
		c.DryRun = parseBool(dryRun)
	}
	if maxParallel := os.Getenv("UPFLEET_MAX_PARALLEL"); maxParallel != "" {
		var p int
		if _, err := fmt.Sscanf(maxParallel, "%d", &p); err != nil {
			return fmt.Errorf("invalid UPFLEET_MAX_PARALLEL value: %s", maxParallel)
		}
		c.MaxParallel = p
	}
	if v := os.Getenv("UPFLEET_OPERATION_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.OperationTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("UPFLEET_POLL_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.PollInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("UPFLEET_HEALTH_CHECK_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.HealthCheckTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("UPFLEET_STAGGER_DELAY_SECONDS"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			c.StaggerDelay = time.Duration(secs * float64(time.Second))
		}
	}
	if rollback := os.Getenv("UPFLEET_ROLLBACK_ON_FAILURE"); rollback != "" {
		c.RollbackOnFailure = parseBool(rollback)
	}
	if snapshot := os.Getenv("UPFLEET_TARGET_SNAPSHOT"); snapshot != "" {
		c.TargetSnapshot = snapshot
	}
	if endpoint := os.Getenv("UPFLEET_API_ENDPOINT"); endpoint != "" {
		c.Endpoint = endpoint
	}
	if token := os.Getenv("UPFLEET_API_TOKEN"); token != "" {
		c.APIToken = token
	}
	return nil
}

// Validate checks if the run configuration is valid.
// A validation failure here is the only error that aborts a run before it
// starts; everything after this point is recorded per instance.
func (c *RunConfig) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("project is required")
	}
	if len(c.Locations) == 0 {
		return fmt.Errorf("at least one location is required")
	}
	for _, loc := range c.Locations {
		if strings.TrimSpace(loc) == "" {
			return fmt.Errorf("location cannot be empty")
		}
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be at least 1, got %d", c.MaxParallel)
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("operation_timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("health_check_timeout must be positive")
	}
	if c.StaggerDelay < 0 {
		return fmt.Errorf("stagger_delay cannot be negative")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	return nil
}

// SplitLocations splits a comma-separated location list, trimming whitespace
func SplitLocations(s string) []string {
	parts := strings.Split(s, ",")
	locations := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			locations = append(locations, trimmed)
		}
	}
	return locations
}

// parseBool parses a string to bool with lenient handling
func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on", "enabled":
		return true
	default:
		return false
	}
}
