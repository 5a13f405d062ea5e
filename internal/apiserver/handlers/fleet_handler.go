package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/fleet"
	"github.com/upfleet/upfleet/internal/logging"
)

var (
	fleetProjectPattern  = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)
	fleetLocationPattern = regexp.MustCompile(`^[a-z]+-[a-z]+[0-9]+(-[a-z])?$`)
)

// FleetHandler serves synchronous, read-only fleet inventory requests
type FleetHandler struct {
	api    fleet.ControlPlane
	logger *logging.Logger
}

// NewFleetHandler creates a fleet inventory handler
func NewFleetHandler(api fleet.ControlPlane) (*FleetHandler, error) {
	if api == nil {
		return nil, errors.New("control plane client is required")
	}
	return &FleetHandler{
		api:    api,
		logger: logging.NewLogger("fleet-handler"),
	}, nil
}

// instanceRow is one instance in the fleet status response
type instanceRow struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	State       string `json:"state"`
	HealthState string `json:"health_state,omitempty"`
	Lifecycle   string `json:"lifecycle"`
}

// FleetStatus returns the current fleet inventory
// @Summary Fleet status
// @Description Synchronous fleet inventory: state counts and per-instance rows
// @Tags fleet
// @Produce json
// @Param project query string true "Project that owns the fleet"
// @Param locations query string true "Comma-separated locations to scan"
// @Success 200 {object} map[string]interface{} "Fleet inventory"
// @Failure 400 {object} ErrorResponse "Bad request"
// @Router /fleet/status [get]
func (h *FleetHandler) FleetStatus(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	if !fleetProjectPattern.MatchString(project) {
		writeError(w, http.StatusBadRequest, "invalid_project", "project query parameter is missing or invalid")
		return
	}

	locations := config.SplitLocations(r.URL.Query().Get("locations"))
	if len(locations) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_locations", "locations query parameter is required")
		return
	}
	for _, loc := range locations {
		if !fleetLocationPattern.MatchString(loc) {
			writeError(w, http.StatusBadRequest, "invalid_locations", "location "+loc+" is not a valid location identifier")
			return
		}
	}

	directory := fleet.NewDirectory(h.api)
	instances := directory.DiscoverFleet(r.Context(), project, locations)

	rows := make([]instanceRow, 0, len(instances))
	stateCounts := make(map[string]int)
	for i := range instances {
		inst := &instances[i]
		rows = append(rows, instanceRow{
			Name:        inst.ShortName(),
			Location:    inst.Location(),
			State:       inst.State,
			HealthState: inst.HealthState,
			Lifecycle:   inst.Lifecycle().String(),
		})
		stateCounts[inst.State]++
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project":      project,
		"locations":    locations,
		"total":        len(rows),
		"state_counts": stateCounts,
		"instances":    rows,
		"checked_at":   time.Now().UTC().Format(time.RFC3339),
	})
}
