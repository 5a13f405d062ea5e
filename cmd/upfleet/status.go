//nolint:forbidigo // CLI command needs fmt.Print* for user output
package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/fleet"
	"github.com/upfleet/upfleet/internal/workbench"
)

func newStatusCommand() *cobra.Command {
	var project string
	var locations string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current state of a fleet",
		Long:  "Discover all instances in the given project and locations and print their states",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.NewRunConfig()
			if err := cfg.LoadFromEnv(); err != nil {
				return fmt.Errorf("failed to load config from environment: %w", err)
			}
			if project != "" {
				cfg.Project = project
			}
			if locations != "" {
				cfg.Locations = config.SplitLocations(locations)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if cfg.APIToken == "" {
				return ErrAPITokenRequired
			}

			api := workbench.NewClient(cfg.Endpoint, workbench.StaticTokenSource(cfg.APIToken))
			instances := fleet.NewDirectory(api).DiscoverFleet(cmd.Context(), cfg.Project, cfg.Locations)

			printFleetTable(cfg.Project, instances)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Cloud project that owns the fleet")
	cmd.Flags().StringVar(&locations, "locations", "", "Comma-separated list of locations to scan")
	return cmd
}

func printFleetTable(project string, instances []workbench.Instance) {
	fmt.Printf("Fleet status for project %s (%d instances)\n\n", project, len(instances))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INSTANCE\tLOCATION\tSTATE\tHEALTH\tLIFECYCLE") // Ignore error - output formatting
	_, _ = fmt.Fprintln(w, "--------\t--------\t-----\t------\t---------") // Ignore error - output formatting

	stateCounts := make(map[string]int)
	for i := range instances {
		inst := &instances[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", // Ignore error - output formatting
			inst.ShortName(), inst.Location(), inst.State, inst.HealthState, inst.Lifecycle())
		stateCounts[inst.State]++
	}
	_ = w.Flush() // Ignore error - output formatting

	if len(stateCounts) == 0 {
		return
	}

	states := make([]string, 0, len(stateCounts))
	for state := range stateCounts {
		states = append(states, state)
	}
	sort.Strings(states)

	fmt.Println()
	for _, state := range states {
		fmt.Printf("  %s: %d\n", state, stateCounts[state])
	}
}
