// Package report assembles and persists per-run reports: the statistics
// snapshot plus the ordered per-instance results, rendered as text for the
// CLI and exported as JSON through a pluggable store.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/fleet"
)

// Report is the exportable record of one fleet run
type Report struct {
	Mode        string                  `json:"mode"`
	Project     string                  `json:"project"`
	Locations   []string                `json:"locations"`
	Instance    string                  `json:"instance,omitempty"`
	DryRun      bool                    `json:"dry_run"`
	GeneratedAt time.Time               `json:"generated_at"`
	Statistics  fleet.Statistics        `json:"statistics"`
	Results     []fleet.OperationResult `json:"results"`
}

// Build assembles a report from a finished run
func Build(mode string, cfg *config.RunConfig, stats *fleet.Statistics, results []fleet.OperationResult) *Report {
	return &Report{
		Mode:        mode,
		Project:     cfg.Project,
		Locations:   cfg.Locations,
		Instance:    cfg.Instance,
		DryRun:      cfg.DryRun,
		GeneratedAt: time.Now().UTC(),
		Statistics:  *stats,
		Results:     results,
	}
}

// FileName returns the canonical report file name,
// e.g. upgrade-report-20260301-090000.json
func (r *Report) FileName() string {
	return fmt.Sprintf("%s-report-%s.json", r.Mode, r.GeneratedAt.Format("20060102-150405"))
}

// JSON renders the report as indented JSON
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return data, nil
}

// RenderText renders the report for terminal output
func (r *Report) RenderText() string {
	var b strings.Builder

	title := strings.ToUpper(r.Mode[:1]) + r.Mode[1:]
	fmt.Fprintf(&b, "%s report for project %s\n", title, r.Project)
	fmt.Fprintf(&b, "Locations: %s\n", strings.Join(r.Locations, ", "))
	if r.Instance != "" {
		fmt.Fprintf(&b, "Instance: %s\n", r.Instance)
	}
	if r.DryRun {
		b.WriteString("Mode: DRY RUN (no changes were made)\n")
	}
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	byStatus := make(map[string][]fleet.OperationResult)
	for _, res := range r.Results {
		byStatus[res.Status] = append(byStatus[res.Status], res)
	}

	statuses := make([]string, 0, len(byStatus))
	for status := range byStatus {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	for _, status := range statuses {
		fmt.Fprintf(&b, "%s (%d):\n", strings.ToUpper(status), len(byStatus[status]))
		for _, res := range byStatus[status] {
			line := fmt.Sprintf("  %s [%s]", res.Instance.ShortName, res.Instance.Location)
			if res.TargetVersion != "" {
				line += " -> " + res.TargetVersion
			}
			if res.Message != "" {
				line += ": " + res.Message
			}
			if res.RolledBack {
				line += " (rolled back)"
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	s := r.Statistics
	fmt.Fprintf(&b, "Totals: %d instances, %d succeeded, %d failed, %d skipped, %d up to date",
		s.Total, s.Succeeded, s.Failed, s.Skipped, s.UpToDate)
	if s.DryRun > 0 {
		fmt.Fprintf(&b, ", %d dry run", s.DryRun)
	}
	if s.RolledBack > 0 {
		fmt.Fprintf(&b, ", %d rolled back", s.RolledBack)
	}
	b.WriteString("\n")
	return b.String()
}
