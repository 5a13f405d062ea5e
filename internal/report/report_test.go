package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/fleet"
)

func sampleReport() *Report {
	cfg := config.NewRunConfig()
	cfg.Project = "proj-test1"
	cfg.Locations = []string{"us-east1", "eu-west1"}

	stats := &fleet.Statistics{Total: 3, Succeeded: 1, Failed: 1, Skipped: 1}
	results := []fleet.OperationResult{
		{
			Instance:      fleet.InstanceRef{Name: "projects/p/locations/us-east1/instances/wb-a", ShortName: "wb-a", Location: "us-east1"},
			Status:        fleet.StatusSuccess,
			TargetVersion: "M125",
		},
		{
			Instance:   fleet.InstanceRef{ShortName: "wb-b", Location: "us-east1"},
			Status:     fleet.StatusFailed,
			Message:    "operation timed out",
			RolledBack: true,
		},
		{
			Instance: fleet.InstanceRef{ShortName: "wb-c", Location: "eu-west1"},
			Status:   fleet.StatusSkipped,
			Message:  "operation already in progress",
		},
	}
	return Build(fleet.ModeUpgrade, cfg, stats, results)
}

func TestReportFileName(t *testing.T) {
	t.Parallel()

	r := sampleReport()
	r.GeneratedAt = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "upgrade-report-20260301-093000.json", r.FileName())

	r.Mode = fleet.ModeRollback
	assert.Equal(t, "rollback-report-20260301-093000.json", r.FileName())
}

func TestReportRenderText(t *testing.T) {
	t.Parallel()

	text := sampleReport().RenderText()
	assert.Contains(t, text, "Upgrade report for project proj-test1")
	assert.Contains(t, text, "us-east1, eu-west1")
	assert.Contains(t, text, "wb-a [us-east1] -> M125")
	assert.Contains(t, text, "wb-b [us-east1]: operation timed out (rolled back)")
	assert.Contains(t, text, "3 instances, 1 succeeded, 1 failed, 1 skipped")
}

func TestFileStoreSaveRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "reports"))
	require.NoError(t, err)

	r := sampleReport()
	path, err := store.Save(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, r.FileName(), filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Report
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, r.Project, loaded.Project)
	assert.Equal(t, r.Statistics, loaded.Statistics)
	require.Len(t, loaded.Results, 3)
	assert.Equal(t, "wb-a", loaded.Results[0].Instance.ShortName)
}

func TestNewFileStoreRequiresDirectory(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore("")
	require.Error(t, err)
}
