//nolint:forbidigo // CLI command needs fmt.Print* for user output
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/fleet"
	"github.com/upfleet/upfleet/internal/report"
	"github.com/upfleet/upfleet/internal/workbench"
)

// Static errors for err113 compliance
var (
	ErrSomeOperationsFailed = errors.New("some instance operations failed")
	ErrAPITokenRequired     = errors.New("control plane API token is required (set UPFLEET_API_TOKEN)")
)

// runFlags mirrors the tunable fields of config.RunConfig for the CLI
type runFlags struct {
	project            string
	locations          string
	instance           string
	dryRun             bool
	maxParallel        int
	operationTimeout   time.Duration
	pollInterval       time.Duration
	healthCheckTimeout time.Duration
	staggerDelay       time.Duration
	rollbackOnFailure  bool
	targetSnapshot     string
	endpoint           string
	reportDir          string
}

func newUpgradeCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade a fleet of workbench instances",
		Long: `Discover instances in the given project and locations, check each one
for upgrade eligibility, and upgrade the eligible ones with bounded
concurrency. Stopped instances are started first so they can be checked.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFleetOperation(cmd, fleet.ModeUpgrade, &flags)
		},
	}

	addRunFlags(cmd, &flags)
	cmd.Flags().BoolVar(&flags.rollbackOnFailure, "rollback-on-failure", false,
		"Automatically roll back instances whose upgrade fails")
	return cmd
}

func newRollbackCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back a fleet of workbench instances",
		Long: `Discover instances in the given project and locations and roll each one
back to its most recent upgrade snapshot, or to an explicit target snapshot.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFleetOperation(cmd, fleet.ModeRollback, &flags)
		},
	}

	addRunFlags(cmd, &flags)
	cmd.Flags().StringVar(&flags.targetSnapshot, "target-snapshot", "",
		"Explicit snapshot to roll back to (default: each instance's latest)")
	return cmd
}

func addRunFlags(cmd *cobra.Command, flags *runFlags) {
	cmd.Flags().StringVar(&flags.project, "project", "", "Cloud project that owns the fleet")
	cmd.Flags().StringVar(&flags.locations, "locations", "", "Comma-separated list of locations to scan")
	cmd.Flags().StringVar(&flags.instance, "instance", "", "Single instance name (default: whole fleet)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Evaluate eligibility without issuing mutations")
	cmd.Flags().IntVar(&flags.maxParallel, "max-parallel", config.DefaultMaxParallel, "Concurrency cap for in-flight operations")
	cmd.Flags().DurationVar(&flags.operationTimeout, "timeout", config.DefaultOperationTimeout, "Per-operation timeout")
	cmd.Flags().DurationVar(&flags.pollInterval, "poll-interval", config.DefaultPollInterval, "Operation poll interval")
	cmd.Flags().DurationVar(&flags.healthCheckTimeout, "health-check-timeout", config.DefaultHealthCheckTimeout, "Post-operation health verification window")
	cmd.Flags().DurationVar(&flags.staggerDelay, "stagger-delay", config.DefaultStaggerDelay, "Minimum wait between successive operation starts")
	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "Control plane base endpoint")
	cmd.Flags().StringVar(&flags.reportDir, "report-dir", "", "Directory to write the run report to (default: no report file)")
}

// buildRunConfig layers CLI flags over environment variables over defaults.
// Only flags the user actually set override the environment.
func buildRunConfig(cmd *cobra.Command, flags *runFlags) (*config.RunConfig, error) {
	cfg := config.NewRunConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if flags.project != "" {
		cfg.Project = flags.project
	}
	if flags.locations != "" {
		cfg.Locations = config.SplitLocations(flags.locations)
	}
	if flags.instance != "" {
		cfg.Instance = flags.instance
	}
	if flags.endpoint != "" {
		cfg.Endpoint = flags.endpoint
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = flags.dryRun
	}
	if cmd.Flags().Changed("max-parallel") {
		cfg.MaxParallel = flags.maxParallel
	}
	if cmd.Flags().Changed("timeout") {
		cfg.OperationTimeout = flags.operationTimeout
	}
	if cmd.Flags().Changed("poll-interval") {
		cfg.PollInterval = flags.pollInterval
	}
	if cmd.Flags().Changed("health-check-timeout") {
		cfg.HealthCheckTimeout = flags.healthCheckTimeout
	}
	if cmd.Flags().Changed("stagger-delay") {
		cfg.StaggerDelay = flags.staggerDelay
	}
	if cmd.Flags().Changed("rollback-on-failure") {
		cfg.RollbackOnFailure = flags.rollbackOnFailure
	}
	if flags.targetSnapshot != "" {
		cfg.TargetSnapshot = flags.targetSnapshot
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run configuration: %w", err)
	}
	if cfg.APIToken == "" {
		return nil, ErrAPITokenRequired
	}
	return cfg, nil
}

// runFleetOperation drives one upgrade or rollback run from the CLI and
// prints the report to stdout
func runFleetOperation(cmd *cobra.Command, mode string, flags *runFlags) error {
	cfg, err := buildRunConfig(cmd, flags)
	if err != nil {
		return err
	}

	if cfg.DryRun {
		fmt.Printf("Starting %s run (dry run) for project %s\n", mode, cfg.Project)
	} else {
		fmt.Printf("Starting %s run for project %s\n", mode, cfg.Project)
	}

	api := workbench.NewClient(cfg.Endpoint, workbench.StaticTokenSource(cfg.APIToken))
	engine := fleet.NewEngine(mode, api, cfg)

	results, stats, err := engine.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("%s run failed: %w", mode, err)
	}

	rep := report.Build(mode, cfg, stats, results)
	fmt.Println(rep.RenderText())

	if flags.reportDir != "" {
		path, err := saveReport(cmd.Context(), flags.reportDir, rep)
		if err != nil {
			fmt.Printf("Warning: failed to save report: %v\n", err)
		} else {
			fmt.Printf("Report written to %s\n", path)
		}
	}

	if stats.HasFailures() {
		return fmt.Errorf("%w: %d of %d", ErrSomeOperationsFailed, stats.Failed, stats.Total)
	}
	return nil
}

func saveReport(ctx context.Context, dir string, rep *report.Report) (string, error) {
	store, err := report.NewFileStore(dir)
	if err != nil {
		return "", fmt.Errorf("failed to create report store: %w", err)
	}
	path, err := store.Save(ctx, rep)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return path, nil
}
