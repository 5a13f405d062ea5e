package fleet

import (
	"fmt"
	"strings"
	"time"

	"github.com/upfleet/upfleet/internal/logging"
	"github.com/upfleet/upfleet/internal/workbench"
)

// Precheck statuses
const (
	CheckPassed  = "passed"
	CheckWarning = "warning"
	CheckFailed  = "failed"
)

// Precheck names, in chain order
const (
	CheckInstanceState    = "instance_state"
	CheckUpgradeHistory   = "upgrade_history"
	CheckSnapshotValidity = "snapshot_validity"
	CheckRollbackWindow   = "rollback_window"
)

// Detail keys populated by the history check
const (
	DetailSnapshot        = "snapshot"
	DetailPreviousVersion = "previous_version"
	DetailCurrentVersion  = "current_version"
	DetailUpgradeTime     = "upgrade_time"
)

const minSnapshotIDLength = 3

// PreCheckOutcome is the result of one rollback eligibility check
type PreCheckOutcome struct {
	Name      string            `json:"name"`
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// PreChecker runs the ordered rollback eligibility chain. Checks 1-3 are
// critical and short-circuit the chain on failure; the rollback window check
// is warning-only.
type PreChecker struct {
	logger *logging.Logger
	now    func() time.Time
}

// NewPreChecker creates a rollback precheck chain
func NewPreChecker() *PreChecker {
	return &PreChecker{
		logger: logging.NewLogger("rollback-precheck"),
		now:    time.Now,
	}
}

// Run evaluates the chain against a single instance fetch. Eligible is true
// iff no executed check failed. The returned outcomes carry the extracted
// rollback snapshot and version details.
func (p *PreChecker) Run(instance *workbench.Instance) (eligible bool, outcomes []PreCheckOutcome) {
	critical := []func(*workbench.Instance) PreCheckOutcome{
		p.checkInstanceState,
		p.checkUpgradeHistory,
		p.checkSnapshotValidity,
	}

	for _, check := range critical {
		outcome := check(instance)
		outcomes = append(outcomes, outcome)
		p.logger.Debugf("Check %s for %s: %s (%s)",
			outcome.Name, instance.ShortName(), outcome.Status, outcome.Message)
		if outcome.Status == CheckFailed {
			return false, outcomes
		}
	}

	outcome := p.checkRollbackWindow(instance)
	outcomes = append(outcomes, outcome)
	return outcome.Status != CheckFailed, outcomes
}

// TargetSnapshot extracts the rollback target recorded by the history check
func TargetSnapshot(outcomes []PreCheckOutcome) string {
	for _, o := range outcomes {
		if o.Name == CheckUpgradeHistory {
			return o.Details[DetailSnapshot]
		}
	}
	return ""
}

// FirstFailure returns the message of the first failed check, if any
func FirstFailure(outcomes []PreCheckOutcome) string {
	for _, o := range outcomes {
		if o.Status == CheckFailed {
			return o.Message
		}
	}
	return ""
}

func (p *PreChecker) outcome(name, status, message string, details map[string]string) PreCheckOutcome {
	return PreCheckOutcome{
		Name:      name,
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: p.now(),
	}
}

// checkInstanceState requires the instance to be ACTIVE
func (p *PreChecker) checkInstanceState(instance *workbench.Instance) PreCheckOutcome {
	switch instance.Lifecycle() {
	case workbench.LifecycleReady:
		return p.outcome(CheckInstanceState, CheckPassed, "Instance is active", nil)
	case workbench.LifecycleBusy:
		return p.outcome(CheckInstanceState, CheckFailed,
			fmt.Sprintf("Operation in progress (state %s)", instance.State), nil)
	case workbench.LifecycleStopped:
		return p.outcome(CheckInstanceState, CheckFailed,
			fmt.Sprintf("Instance is not running (state %s)", instance.State), nil)
	default:
		return p.outcome(CheckInstanceState, CheckFailed,
			fmt.Sprintf("Instance in unknown state %s", instance.State), nil)
	}
}

// checkUpgradeHistory requires a successful upgrade with a snapshot to roll
// back to, and extracts the snapshot and version pair
func (p *PreChecker) checkUpgradeHistory(instance *workbench.Instance) PreCheckOutcome {
	if len(instance.UpgradeHistory) == 0 {
		return p.outcome(CheckUpgradeHistory, CheckFailed, "No upgrade history found", nil)
	}

	entry := latestSuccessfulUpgrade(instance)
	if entry == nil {
		return p.outcome(CheckUpgradeHistory, CheckFailed,
			"No successful upgrades found in history", nil)
	}
	if entry.Snapshot == "" {
		return p.outcome(CheckUpgradeHistory, CheckFailed,
			"No snapshot available from previous upgrade", nil)
	}

	details := map[string]string{
		DetailSnapshot:        entry.Snapshot,
		DetailPreviousVersion: entry.Version,
		DetailCurrentVersion:  entry.TargetVersion,
	}
	return p.outcome(CheckUpgradeHistory, CheckPassed,
		fmt.Sprintf("Found rollback snapshot from upgrade to %s", entry.TargetVersion), details)
}

// checkSnapshotValidity sanity-checks the shape of the extracted snapshot
// identifier. The path shape heuristic is best effort and only warns; a
// too-short identifier is a hard failure.
func (p *PreChecker) checkSnapshotValidity(instance *workbench.Instance) PreCheckOutcome {
	entry := latestSuccessfulUpgrade(instance)
	if entry == nil || entry.Snapshot == "" {
		return p.outcome(CheckSnapshotValidity, CheckFailed, "Invalid snapshot identifier", nil)
	}

	snapshot := entry.Snapshot
	segments := strings.Split(snapshot, "/")
	id := segments[len(segments)-1]
	if len(id) < minSnapshotIDLength {
		return p.outcome(CheckSnapshotValidity, CheckFailed, "Invalid snapshot identifier",
			map[string]string{DetailSnapshot: snapshot})
	}

	if len(segments) < 8 || !containsSegment(segments, "snapshots") {
		return p.outcome(CheckSnapshotValidity, CheckWarning,
			"Snapshot name format unusual, proceeding with caution",
			map[string]string{DetailSnapshot: snapshot})
	}

	return p.outcome(CheckSnapshotValidity, CheckPassed, "Snapshot identifier looks valid",
		map[string]string{DetailSnapshot: snapshot})
}

// checkRollbackWindow surfaces how old the upgrade being rolled back is.
// Warning-only for operator visibility.
func (p *PreChecker) checkRollbackWindow(instance *workbench.Instance) PreCheckOutcome {
	entry := latestSuccessfulUpgrade(instance)
	if entry == nil {
		return p.outcome(CheckRollbackWindow, CheckFailed,
			"No successful upgrades found in history", nil)
	}
	if entry.CreateTime == "" {
		return p.outcome(CheckRollbackWindow, CheckWarning,
			"Cannot determine upgrade timestamp, proceeding with caution", nil)
	}

	upgradeTime, err := time.Parse(time.RFC3339, entry.CreateTime)
	if err != nil {
		return p.outcome(CheckRollbackWindow, CheckWarning,
			"Cannot determine upgrade timestamp, proceeding with caution",
			map[string]string{DetailUpgradeTime: entry.CreateTime})
	}

	age := p.now().Sub(upgradeTime).Round(time.Hour)
	return p.outcome(CheckRollbackWindow, CheckPassed,
		fmt.Sprintf("Rolling back upgrade from %s (%s ago)",
			upgradeTime.Format("2006-01-02"), age),
		map[string]string{DetailUpgradeTime: entry.CreateTime})
}

// latestSuccessfulUpgrade returns the most recent successful upgrade entry
// with history assumed newest-first, falling back to the first match
func latestSuccessfulUpgrade(instance *workbench.Instance) *workbench.UpgradeHistoryEntry {
	for i := range instance.UpgradeHistory {
		if instance.UpgradeHistory[i].IsSuccessfulUpgrade() {
			return &instance.UpgradeHistory[i]
		}
	}
	return nil
}

func containsSegment(segments []string, want string) bool {
	for _, s := range segments {
		if s == want {
			return true
		}
	}
	return false
}
