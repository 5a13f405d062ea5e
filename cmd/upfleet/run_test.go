package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upfleet/upfleet/internal/config"
)

func newFlagFixture() (*cobra.Command, *runFlags) {
	var flags runFlags
	cmd := &cobra.Command{Use: "test"}
	addRunFlags(cmd, &flags)
	cmd.Flags().BoolVar(&flags.rollbackOnFailure, "rollback-on-failure", false, "")
	cmd.Flags().StringVar(&flags.targetSnapshot, "target-snapshot", "", "")
	return cmd, &flags
}

func TestBuildRunConfig_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("UPFLEET_PROJECT", "proj-envvar1")
	t.Setenv("UPFLEET_LOCATIONS", "us-east1")
	t.Setenv("UPFLEET_API_TOKEN", "env-token")
	t.Setenv("UPFLEET_MAX_PARALLEL", "3")

	cmd, flags := newFlagFixture()
	require.NoError(t, cmd.ParseFlags([]string{
		"--project", "proj-flags01",
		"--max-parallel", "7",
		"--stagger-delay", "10s",
	}))

	cfg, err := buildRunConfig(cmd, flags)
	require.NoError(t, err)

	assert.Equal(t, "proj-flags01", cfg.Project)
	assert.Equal(t, []string{"us-east1"}, cfg.Locations)
	assert.Equal(t, 7, cfg.MaxParallel)
	assert.Equal(t, 10*time.Second, cfg.StaggerDelay)
	assert.Equal(t, "env-token", cfg.APIToken)
}

func TestBuildRunConfig_DefaultsApplyWhenUnset(t *testing.T) {
	t.Setenv("UPFLEET_PROJECT", "")
	t.Setenv("UPFLEET_LOCATIONS", "")
	t.Setenv("UPFLEET_API_ENDPOINT", "")
	t.Setenv("UPFLEET_MAX_PARALLEL", "")
	t.Setenv("UPFLEET_API_TOKEN", "token")

	cmd, flags := newFlagFixture()
	require.NoError(t, cmd.ParseFlags([]string{
		"--project", "proj-test01",
		"--locations", "us-east1, us-west1",
	}))

	cfg, err := buildRunConfig(cmd, flags)
	require.NoError(t, err)

	assert.Equal(t, []string{"us-east1", "us-west1"}, cfg.Locations)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, config.DefaultMaxParallel, cfg.MaxParallel)
	assert.Equal(t, config.DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, config.DefaultEndpoint, cfg.Endpoint)
}

func TestBuildRunConfig_MissingTokenRejected(t *testing.T) {
	t.Setenv("UPFLEET_API_TOKEN", "")

	cmd, flags := newFlagFixture()
	require.NoError(t, cmd.ParseFlags([]string{
		"--project", "proj-test01",
		"--locations", "us-east1",
	}))

	_, err := buildRunConfig(cmd, flags)
	require.ErrorIs(t, err, ErrAPITokenRequired)
}

func TestBuildRunConfig_InvalidConfigRejected(t *testing.T) {
	t.Setenv("UPFLEET_PROJECT", "")
	t.Setenv("UPFLEET_LOCATIONS", "")
	t.Setenv("UPFLEET_API_TOKEN", "token")

	cmd, flags := newFlagFixture()
	require.NoError(t, cmd.ParseFlags([]string{"--locations", "us-east1"}))

	_, err := buildRunConfig(cmd, flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project")
}
