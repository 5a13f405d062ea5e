package fleet

import "time"

// Run modes
const (
	ModeUpgrade  = "upgrade"
	ModeRollback = "rollback"
)

// Result statuses
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
	StatusUpToDate = "up_to_date"
	StatusDryRun   = "dry_run"
)

// InstanceRef identifies a managed instance resolved by the directory.
// Immutable once created.
type InstanceRef struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Location  string `json:"location"`
}

// OperationResult is the terminal outcome for one instance in one run
type OperationResult struct {
	Instance      InstanceRef   `json:"instance"`
	Status        string        `json:"status"`
	TargetVersion string        `json:"target_version,omitempty"`
	Message       string        `json:"message,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Duration      time.Duration `json:"duration"`
	RolledBack    bool          `json:"rolled_back,omitempty"`
}

// Statistics aggregates run counters. Each instance contributes to exactly
// one terminal counter; increments go through the dedicated methods so that
// invariant stays visible.
type Statistics struct {
	Total       int `json:"total"`
	Eligible    int `json:"eligible"`
	UpToDate    int `json:"up_to_date"`
	Skipped     int `json:"skipped"`
	NotEligible int `json:"not_eligible"`
	PreStarted  int `json:"pre_started"`
	Started     int `json:"started"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	RolledBack  int `json:"rolled_back"`
	DryRun      int `json:"dry_run"`
}

func (s *Statistics) AddTotal(n int)    { s.Total += n }
func (s *Statistics) AddEligible()      { s.Eligible++ }
func (s *Statistics) AddUpToDate()      { s.UpToDate++ }
func (s *Statistics) AddSkipped()       { s.Skipped++ }
func (s *Statistics) AddNotEligible()   { s.NotEligible++ }
func (s *Statistics) AddPreStarted()    { s.PreStarted++ }
func (s *Statistics) AddStarted()       { s.Started++ }
func (s *Statistics) AddSucceeded()     { s.Succeeded++ }
func (s *Statistics) AddFailed()        { s.Failed++ }
func (s *Statistics) AddRolledBack()    { s.RolledBack++ }
func (s *Statistics) AddDryRun()        { s.DryRun++ }

// HasFailures reports whether any instance ended in a failed state
func (s *Statistics) HasFailures() bool { return s.Failed > 0 }
