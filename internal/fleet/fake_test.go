package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/workbench"
)

// fakeAPI is a scriptable ControlPlane. Unset function fields fall back to
// defaults that succeed immediately.
type fakeAPI struct {
	listFn     func(project, location string) ([]workbench.Instance, error)
	getFn      func(name string) (*workbench.Instance, error)
	checkFn    func(name string) (*workbench.UpgradeCheck, error)
	startFn    func(name string) (string, error)
	upgradeFn  func(name string) (string, error)
	rollbackFn func(name, targetSnapshot string) (string, error)
	getOpFn    func(name string) (*workbench.Operation, error)

	starts    []string
	upgrades  []string
	rollbacks []string
	opSeq     int
}

func (f *fakeAPI) ListInstances(_ context.Context, project, location string) ([]workbench.Instance, error) {
	if f.listFn != nil {
		return f.listFn(project, location)
	}
	return nil, nil
}

func (f *fakeAPI) GetInstance(_ context.Context, name string) (*workbench.Instance, error) {
	if f.getFn != nil {
		return f.getFn(name)
	}
	return &workbench.Instance{Name: name, State: workbench.StateActive}, nil
}

func (f *fakeAPI) GetInstanceByName(ctx context.Context, project, location, instanceID string) (*workbench.Instance, error) {
	name := fmt.Sprintf("projects/%s/locations/%s/instances/%s", project, location, instanceID)
	instance, err := f.GetInstance(ctx, name)
	if err != nil {
		if workbench.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return instance, nil
}

func (f *fakeAPI) CheckUpgradability(_ context.Context, name string) (*workbench.UpgradeCheck, error) {
	if f.checkFn != nil {
		return f.checkFn(name)
	}
	return &workbench.UpgradeCheck{Upgradeable: true, UpgradeVersion: "M125"}, nil
}

func (f *fakeAPI) StartInstance(_ context.Context, name string) (string, error) {
	f.starts = append(f.starts, name)
	if f.startFn != nil {
		return f.startFn(name)
	}
	return f.nextOp(), nil
}

func (f *fakeAPI) UpgradeInstance(_ context.Context, name string) (string, error) {
	f.upgrades = append(f.upgrades, name)
	if f.upgradeFn != nil {
		return f.upgradeFn(name)
	}
	return f.nextOp(), nil
}

func (f *fakeAPI) RollbackInstance(_ context.Context, name, targetSnapshot string) (string, error) {
	f.rollbacks = append(f.rollbacks, name)
	if f.rollbackFn != nil {
		return f.rollbackFn(name, targetSnapshot)
	}
	return f.nextOp(), nil
}

func (f *fakeAPI) GetOperation(_ context.Context, name string) (*workbench.Operation, error) {
	if f.getOpFn != nil {
		return f.getOpFn(name)
	}
	return &workbench.Operation{Name: name, Done: true}, nil
}

func (f *fakeAPI) nextOp() string {
	f.opSeq++
	return fmt.Sprintf("projects/p/locations/us-east1/operations/op-%d", f.opSeq)
}

func (f *fakeAPI) mutationCount() int {
	return len(f.starts) + len(f.upgrades) + len(f.rollbacks)
}

func activeInstance(id string) workbench.Instance {
	return workbench.Instance{
		Name:  "projects/p/locations/us-east1/instances/" + id,
		State: workbench.StateActive,
	}
}

func testRunConfig() *config.RunConfig {
	cfg := config.NewRunConfig()
	cfg.Project = "proj-test1"
	cfg.Locations = []string{"us-east1"}
	cfg.OperationTimeout = time.Hour
	cfg.PollInterval = time.Second
	cfg.HealthCheckTimeout = time.Minute
	cfg.StaggerDelay = 3 * time.Second
	return cfg
}

// fakeClock makes sleeps instantaneous while still advancing time, so
// timeout paths are exercised without waiting
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
}

// newTestEngine wires an engine onto a fake clock
func newTestEngine(mode string, api ControlPlane, cfg *config.RunConfig) (*Engine, *fakeClock) {
	e := NewEngine(mode, api, cfg)
	clock := newFakeClock()
	e.sleep = clock.sleep
	e.now = clock.now
	e.tracker.sleep = clock.sleep
	e.tracker.now = clock.now
	e.prober.sleep = clock.sleep
	e.prober.now = clock.now
	if v, ok := e.tracker.verifier.(*Verifier); ok {
		v.sleep = clock.sleep
		v.now = clock.now
	}
	return e, clock
}
