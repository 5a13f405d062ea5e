package fleet

import (
	"context"

	"github.com/upfleet/upfleet/internal/logging"
	"github.com/upfleet/upfleet/internal/workbench"
)

// Directory resolves the set of instances a run operates on
type Directory struct {
	api    ControlPlane
	logger *logging.Logger
}

// NewDirectory creates an instance directory
func NewDirectory(api ControlPlane) *Directory {
	return &Directory{
		api:    api,
		logger: logging.NewLogger("fleet-directory"),
	}
}

// DiscoverFleet lists every instance in every requested location,
// concatenating results in location order. A listing failure in one location
// is logged and skipped; the remaining locations are still discovered.
func (d *Directory) DiscoverFleet(ctx context.Context, project string, locations []string) []workbench.Instance {
	var fleet []workbench.Instance
	for _, location := range locations {
		instances, err := d.api.ListInstances(ctx, project, location)
		if err != nil {
			d.logger.Warnf("Failed to list instances in %s: %v", location, err)
			continue
		}
		d.logger.Debugf("Discovered %d instances in %s", len(instances), location)
		fleet = append(fleet, instances...)
	}
	d.logger.Infof("Discovered %d instances across %d locations", len(fleet), len(locations))
	return fleet
}

// FindInstance probes each location in order for a single named instance and
// returns the first match. A location where the instance does not exist is
// not an error.
func (d *Directory) FindInstance(ctx context.Context, project string, locations []string, instanceID string) (*workbench.Instance, error) {
	for _, location := range locations {
		instance, err := d.api.GetInstanceByName(ctx, project, location, instanceID)
		if err != nil {
			return nil, err
		}
		if instance != nil {
			d.logger.Debugf("Found instance %s in %s", instanceID, location)
			return instance, nil
		}
	}
	d.logger.Warnf("Instance %s not found in any of %d locations", instanceID, len(locations))
	return nil, nil
}
