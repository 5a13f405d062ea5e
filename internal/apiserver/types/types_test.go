package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upfleet/upfleet/internal/config"
)

func baseConfig() *config.RunConfig {
	cfg := config.NewRunConfig()
	cfg.Endpoint = "https://workbench.test/v2"
	cfg.APIToken = "token"
	return cfg
}

func TestToRunRequestAppliesServerDefaults(t *testing.T) {
	t.Parallel()
	c := NewRequestConverter(baseConfig())

	req, err := c.ToRunRequest(&CreateRunRequest{
		Mode:      "upgrade",
		Project:   "proj-test1",
		Locations: []string{"us-east1"},
	})
	require.NoError(t, err)

	assert.True(t, req.Config.DryRun)
	assert.Equal(t, config.DefaultMaxParallel, req.Config.MaxParallel)
	assert.Equal(t, config.DefaultPollInterval, req.Config.PollInterval)
	assert.Equal(t, "https://workbench.test/v2", req.Config.Endpoint)
	assert.Equal(t, "token", req.Config.APIToken)
}

func TestToRunRequestCapsAndFloors(t *testing.T) {
	t.Parallel()
	c := NewRequestConverter(baseConfig())

	maxParallel := 100
	pollSeconds := 1
	stagger := 0.5
	dryRun := false
	req, err := c.ToRunRequest(&CreateRunRequest{
		Mode:                "rollback",
		Project:             "proj-test1",
		Locations:           []string{"us-east1", "europe-west2"},
		DryRun:              &dryRun,
		MaxParallel:         &maxParallel,
		PollIntervalSeconds: &pollSeconds,
		StaggerDelaySeconds: &stagger,
		TargetSnapshot:      "snap-1",
	})
	require.NoError(t, err)

	assert.False(t, req.Config.DryRun)
	assert.Equal(t, MaxParallelCap, req.Config.MaxParallel)
	assert.Equal(t, MinPollInterval, req.Config.PollInterval)
	assert.Equal(t, 500*time.Millisecond, req.Config.StaggerDelay)
	assert.Equal(t, "snap-1", req.Config.TargetSnapshot)
}

func TestToRunRequestRejectsUnknownMode(t *testing.T) {
	t.Parallel()
	c := NewRequestConverter(baseConfig())

	_, err := c.ToRunRequest(&CreateRunRequest{
		Mode:      "restart",
		Project:   "proj-test1",
		Locations: []string{"us-east1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
}

func TestDecodeWeaklyTypedPayload(t *testing.T) {
	t.Parallel()
	c := NewRequestConverter(baseConfig())

	req, err := c.Decode(map[string]interface{}{
		"mode":         "upgrade",
		"project":      "proj-test1",
		"locations":    []interface{}{"us-east1"},
		"max_parallel": "7",
		"dry_run":      "false",
	})
	require.NoError(t, err)
	require.NotNil(t, req.MaxParallel)
	assert.Equal(t, 7, *req.MaxParallel)
	require.NotNil(t, req.DryRun)
	assert.False(t, *req.DryRun)
}
