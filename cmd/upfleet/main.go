package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/upfleet/upfleet/internal/config"
)

// loadStandardConfig creates a new server config, loads from environment, and
// expands paths. This is the standard pattern used by most commands.
func loadStandardConfig() (*config.ServerConfig, error) {
	cfg := config.NewServerConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.ExpandPaths(); err != nil {
		return nil, fmt.Errorf("failed to expand paths: %w", err)
	}
	return cfg, nil
}

var (
	version = "dev"
	commit  = "none"    //nolint:gochecknoglobals // Build-time commit info
	date    = "unknown" //nolint:gochecknoglobals // Build-time date info

	// Global debug flag
	debugMode bool //nolint:gochecknoglobals // CLI global flag
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "upfleet",
		Short: "Fleet lifecycle orchestration for managed workbench instances",
		Long: `Upfleet upgrades and rolls back fleets of managed workbench instances.

It discovers instances through the control plane REST API, checks upgrade
eligibility per instance, and drives long-running operations with bounded
concurrency, health verification, and optional automatic rollback.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if debugMode {
				_ = os.Setenv("UPFLEET_DEBUG", "1") // os.Setenv always returns nil
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"Enable debug logging")

	rootCmd.AddCommand(
		newUpgradeCommand(),
		newRollbackCommand(),
		newStatusCommand(),
		newServerCommand(),
		newConfigCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage the Upfleet API server",
		Long:  "Start, stop, and manage the Upfleet API server for REST API access",
	}

	cmd.AddCommand(
		newServerStartCommand(),
		newServerStopCommand(),
		newServerStatusCommand(),
	)

	return cmd
}

func newServerStartCommand() *cobra.Command {
	var port int
	var daemon bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			if daemon {
				return runServerDaemon(port, debugMode)
			}
			return runServerForeground(port, debugMode)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "Run server in background")
	return cmd
}

func newServerStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			// Use lightweight function to get just the PID file path
			pidFile := config.GetPIDPath()
			return stopServer(pidFile)
		},
	}
	return cmd
}

func newServerStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check API server status",
		RunE: func(_ *cobra.Command, _ []string) error {
			// Use lightweight functions to get just what we need
			pidFile := config.GetPIDPath()
			port := config.GetPort()
			return checkServerStatus(pidFile, port)
		},
	}
	return cmd
}
