package runner

import (
	"fmt"
	"sync"
	"time"

	"github.com/upfleet/upfleet/internal/interfaces"
)

// Tracker is an in-memory implementation of interfaces.RunTracker.
// It holds run metadata and results for the lifetime of the server
// process; the report store provides durable output.
type Tracker struct {
	mu      sync.RWMutex
	runs    map[string]*interfaces.QueuedRun
	results map[string]*interfaces.RunResult
	order   []string
}

// NewTracker creates an empty run tracker
func NewTracker() *Tracker {
	return &Tracker{
		runs:    make(map[string]*interfaces.QueuedRun),
		results: make(map[string]*interfaces.RunResult),
	}
}

// Register adds a run to the tracker
func (t *Tracker) Register(run *interfaces.QueuedRun) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.ID == "" {
		return fmt.Errorf("run ID cannot be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.runs[run.ID]; exists {
		return fmt.Errorf("run %s already registered", run.ID)
	}

	t.runs[run.ID] = run
	t.order = append(t.order, run.ID)
	return nil
}

// GetByID returns a run by its identifier
func (t *Tracker) GetByID(runID string) (*interfaces.QueuedRun, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	run, ok := t.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return run, nil
}

// GetStatus returns the current status of a run
func (t *Tracker) GetStatus(runID string) (*interfaces.RunStatus, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	run, ok := t.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	status := run.Status
	return &status, nil
}

// SetStatus updates the status of a run, stamping the started and
// completed timestamps on the relevant transitions.
func (t *Tracker) SetStatus(runID string, status interfaces.RunStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}

	run.Status = status
	now := nowUTC()
	switch status {
	case interfaces.RunStatusProcessing:
		if run.StartedAt == nil {
			run.StartedAt = &now
		}
	case interfaces.RunStatusCompleted, interfaces.RunStatusFailed, interfaces.RunStatusCanceled:
		if run.CompletedAt == nil {
			run.CompletedAt = &now
		}
	case interfaces.RunStatusQueued:
		// no timestamp transition
	}
	return nil
}

// GetResult returns the stored result for a run, if any
func (t *Tracker) GetResult(runID string) (*interfaces.RunResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.runs[runID]; !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return t.results[runID], nil
}

// SetResult stores the result of a completed run
func (t *Tracker) SetResult(runID string, result *interfaces.RunResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}

	t.results[runID] = result
	if result != nil && result.Error != "" {
		run.LastError = result.Error
	}
	return nil
}

// List returns runs matching the filter, newest first
func (t *Tracker) List(filter interfaces.RunFilter) ([]*interfaces.QueuedRun, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	matched := make([]*interfaces.QueuedRun, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		run := t.runs[t.order[i]]
		if run == nil || !matches(run, filter) {
			continue
		}
		matched = append(matched, run)
	}
	return matched, nil
}

// Remove deletes a run and its result from the tracker
func (t *Tracker) Remove(runID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.runs[runID]; !ok {
		return fmt.Errorf("run %s not found", runID)
	}

	delete(t.runs, runID)
	delete(t.results, runID)
	for i, id := range t.order {
		if id == runID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func matches(run *interfaces.QueuedRun, filter interfaces.RunFilter) bool {
	if len(filter.Status) > 0 {
		found := false
		for _, s := range filter.Status {
			if run.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.CreatedAfter.IsZero() && run.CreatedAt.Before(filter.CreatedAfter) {
		return false
	}
	if !filter.CreatedBefore.IsZero() && run.CreatedAt.After(filter.CreatedBefore) {
		return false
	}
	return true
}
