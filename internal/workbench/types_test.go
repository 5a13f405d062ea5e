package workbench

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state string
		want  Lifecycle
	}{
		{StateActive, LifecycleReady},
		{StateStopped, LifecycleStopped},
		{StateSuspended, LifecycleStopped},
		{StateProvisioning, LifecycleBusy},
		{StateStarting, LifecycleBusy},
		{StateUpgrading, LifecycleBusy},
		{StateStopping, LifecycleBusy},
		{"SOMETHING_NEW", LifecycleUnknown},
		{"", LifecycleUnknown},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, ClassifyState(tc.state), "state %q", tc.state)
	}
}

func TestInstanceAccessors(t *testing.T) {
	t.Parallel()

	inst := Instance{
		Name:        "projects/p/locations/us-east1/instances/workbench-1",
		State:       StateActive,
		HealthState: "HEALTHY",
	}

	assert.Equal(t, "workbench-1", inst.ShortName())
	assert.Equal(t, "us-east1", inst.Location())
	assert.False(t, inst.Unhealthy())

	inst.HealthState = "UNHEALTHY"
	assert.True(t, inst.Unhealthy())
}

func TestIsSuccessfulUpgrade(t *testing.T) {
	t.Parallel()

	entry := UpgradeHistoryEntry{Action: HistoryActionUpgrade, State: HistoryStateSucceeded}
	assert.True(t, entry.IsSuccessfulUpgrade())

	entry.State = "FAILED"
	assert.False(t, entry.IsSuccessfulUpgrade())

	entry = UpgradeHistoryEntry{Action: "ROLLBACK", State: HistoryStateSucceeded}
	assert.False(t, entry.IsSuccessfulUpgrade())
}

func TestUpgradeCheckTargetVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "M125", (&UpgradeCheck{UpgradeVersion: "M125"}).TargetVersion())
	assert.Equal(t, "new image", (&UpgradeCheck{UpgradeInfo: "new image"}).TargetVersion())
	assert.Equal(t, "N/A", (&UpgradeCheck{}).TargetVersion())
}
