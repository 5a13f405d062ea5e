// Package workbench provides a retrying REST client for the managed-instance
// control plane and the parsed document types it returns.
package workbench

import (
	"strings"
)

// Instance states reported by the control plane
const (
	StateActive       = "ACTIVE"
	StateProvisioning = "PROVISIONING"
	StateStarting     = "STARTING"
	StateStopping     = "STOPPING"
	StateUpgrading    = "UPGRADING"
	StateInitializing = "INITIALIZING"
	StateSuspending   = "SUSPENDING"
	StateStopped      = "STOPPED"
	StateSuspended    = "SUSPENDED"
)

// Lifecycle is the closed classification of an instance state. Anything the
// control plane reports that is not a known ready/busy/stopped state maps to
// LifecycleUnknown rather than being compared as a raw string downstream.
type Lifecycle int

const (
	// LifecycleReady means the instance is active and can accept an operation
	LifecycleReady Lifecycle = iota
	// LifecycleBusy means an operation is already in progress on the instance
	LifecycleBusy
	// LifecycleStopped means the instance is stopped or suspended and could be started
	LifecycleStopped
	// LifecycleUnknown means the state is absent or not recognized
	LifecycleUnknown
)

// String returns the classification name
func (l Lifecycle) String() string {
	switch l {
	case LifecycleReady:
		return "ready"
	case LifecycleBusy:
		return "busy"
	case LifecycleStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ClassifyState maps a raw instance state to its lifecycle classification
func ClassifyState(state string) Lifecycle {
	switch state {
	case StateActive:
		return LifecycleReady
	case StateProvisioning, StateStarting, StateStopping,
		StateUpgrading, StateInitializing, StateSuspending:
		return LifecycleBusy
	case StateStopped, StateSuspended:
		return LifecycleStopped
	default:
		return LifecycleUnknown
	}
}

// TransitionalStates are states the health verifier keeps waiting through
// rather than treating as terminal.
var TransitionalStates = map[string]bool{
	StateProvisioning: true,
	StateInitializing: true,
	StateStarting:     true,
}

// Instance is the parsed instance document
type Instance struct {
	Name           string                `json:"name"`
	State          string                `json:"state"`
	HealthState    string                `json:"healthState"`
	UpgradeHistory []UpgradeHistoryEntry `json:"upgradeHistory"`
}

// Lifecycle returns the closed classification of the instance state
func (i *Instance) Lifecycle() Lifecycle {
	return ClassifyState(i.State)
}

// Unhealthy reports whether the instance is separately flagged unhealthy
func (i *Instance) Unhealthy() bool {
	return strings.Contains(i.HealthState, "UNHEALTHY")
}

// ShortName returns the final segment of the instance resource name
func (i *Instance) ShortName() string {
	if idx := strings.LastIndex(i.Name, "/"); idx >= 0 {
		return i.Name[idx+1:]
	}
	return i.Name
}

// Location extracts the location segment from the instance resource name
// (projects/{p}/locations/{l}/instances/{id}); empty when the name does not
// follow that shape.
func (i *Instance) Location() string {
	parts := strings.Split(i.Name, "/")
	for idx := 0; idx < len(parts)-1; idx++ {
		if parts[idx] == "locations" {
			return parts[idx+1]
		}
	}
	return ""
}

// Upgrade history entry actions and states
const (
	HistoryActionUpgrade  = "UPGRADE"
	HistoryStateSucceeded = "SUCCEEDED"
)

// UpgradeHistoryEntry is one entry of an instance's upgrade history
type UpgradeHistoryEntry struct {
	Action        string `json:"action"`
	State         string `json:"state"`
	Snapshot      string `json:"snapshot"`
	Version       string `json:"version"`
	TargetVersion string `json:"targetVersion"`
	CreateTime    string `json:"createTime"`
}

// IsSuccessfulUpgrade reports whether the entry is a completed upgrade
func (e *UpgradeHistoryEntry) IsSuccessfulUpgrade() bool {
	return e.Action == HistoryActionUpgrade && e.State == HistoryStateSucceeded
}

// Operation is the parsed long-running operation document
type Operation struct {
	Name     string                 `json:"name"`
	Done     bool                   `json:"done"`
	Error    *OperationError        `json:"error,omitempty"`
	Response map[string]interface{} `json:"response,omitempty"`
}

// OperationError is the error payload of a failed operation
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// UpgradeCheck is the parsed upgradability probe response
type UpgradeCheck struct {
	Upgradeable    bool   `json:"upgradeable"`
	UpgradeVersion string `json:"upgradeVersion"`
	UpgradeInfo    string `json:"upgradeInfo"`
}

// TargetVersion returns the reported upgrade target, or "N/A" when the
// control plane did not include one.
func (c *UpgradeCheck) TargetVersion() string {
	if c.UpgradeVersion != "" {
		return c.UpgradeVersion
	}
	if c.UpgradeInfo != "" {
		return c.UpgradeInfo
	}
	return "N/A"
}

// instanceList is the paginated listing response
type instanceList struct {
	Instances     []Instance `json:"instances"`
	NextPageToken string     `json:"nextPageToken"`
}

// operationRef is the response body of a mutating POST
type operationRef struct {
	Name string `json:"name"`
}
