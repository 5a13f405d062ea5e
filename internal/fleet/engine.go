package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/logging"
	"github.com/upfleet/upfleet/internal/workbench"
)

// Engine drives one fleet run end to end: discovery, batch pre-start,
// per-instance eligibility, throttled dispatch, drain, and statistics.
// A single Engine serves a single run; it is not reusable.
type Engine struct {
	mode       string
	cfg        *config.RunConfig
	api        ControlPlane
	directory  *Directory
	prober     *Prober
	prechecker *PreChecker
	tracker    *Tracker
	metrics    OperationMetrics
	logger     *logging.Logger
	sleep      func(time.Duration)
	now        func() time.Time

	results []OperationResult
	stats   Statistics
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

// WithEngineMetrics attaches an operation metrics sink
func WithEngineMetrics(m OperationMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a run engine for the given mode (ModeUpgrade or
// ModeRollback)
func NewEngine(mode string, api ControlPlane, cfg *config.RunConfig, opts ...EngineOption) *Engine {
	verifier := NewVerifier(api, cfg.PollInterval)
	e := &Engine{
		mode:       mode,
		cfg:        cfg,
		api:        api,
		directory:  NewDirectory(api),
		prober:     NewProber(api, verifier, cfg.PollInterval, cfg.OperationTimeout, cfg.HealthCheckTimeout),
		prechecker: NewPreChecker(),
		tracker: NewTracker(api, verifier, cfg.MaxParallel,
			cfg.PollInterval, cfg.OperationTimeout, cfg.HealthCheckTimeout),
		logger: logging.NewLogger("fleet-" + mode),
		sleep:  time.Sleep,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the fleet run. Only configuration validation and failed
// single-instance resolution abort the run; every later error is recorded in
// that instance's result and the run continues.
func (e *Engine) Run(ctx context.Context) ([]OperationResult, *Statistics, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid run configuration: %w", err)
	}

	instances, err := e.discover(ctx)
	if err != nil {
		return nil, nil, err
	}
	e.stats.AddTotal(len(instances))
	e.logger.Infof("Beginning %s run over %d instances", e.mode, len(instances))

	if len(instances) == 0 {
		e.logger.Warnf("Nothing to do: no instances discovered")
		return e.results, &e.stats, nil
	}

	if !e.cfg.DryRun {
		e.preStartStopped(ctx, instances)
	}

	for i := range instances {
		e.processInstance(ctx, &instances[i])
	}

	e.finalize(ctx, e.tracker.DrainAll(ctx))

	e.logger.RunSummary(e.stats.Succeeded, e.stats.Failed, e.stats.Total)
	return e.results, &e.stats, nil
}

// discover resolves the fleet or the single named instance
func (e *Engine) discover(ctx context.Context) ([]workbench.Instance, error) {
	if e.cfg.Instance == "" {
		return e.directory.DiscoverFleet(ctx, e.cfg.Project, e.cfg.Locations), nil
	}

	instance, err := e.directory.FindInstance(ctx, e.cfg.Project, e.cfg.Locations, e.cfg.Instance)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve instance %s: %w", e.cfg.Instance, err)
	}
	if instance == nil {
		return nil, fmt.Errorf("instance %s not found in locations %s",
			e.cfg.Instance, strings.Join(e.cfg.Locations, ", "))
	}
	return []workbench.Instance{*instance}, nil
}

// preStartStopped starts every stopped instance in the discovered set before
// per-instance processing, with the run's own throttle and stagger
// discipline. Best effort: failures are warnings, never run aborts.
func (e *Engine) preStartStopped(ctx context.Context, instances []workbench.Instance) {
	var stopped []workbench.Instance
	for _, inst := range instances {
		if inst.Lifecycle() == workbench.LifecycleStopped {
			stopped = append(stopped, inst)
		}
	}
	if len(stopped) == 0 {
		return
	}
	e.logger.Infof("Pre-starting %d stopped instances", len(stopped))

	started := 0
	dispatched := 0
	var completions []Completion
	for _, inst := range stopped {
		for e.tracker.Full() {
			completions = append(completions, e.tracker.DrainOne(ctx)...)
		}
		if dispatched > 0 {
			e.sleep(e.cfg.StaggerDelay)
		}

		opName, err := e.api.StartInstance(ctx, inst.Name)
		if err != nil {
			e.logger.Warnf("Failed to pre-start %s: %v", inst.ShortName(), err)
			continue
		}
		if err := e.tracker.Dispatch(Handle{
			Instance:      refOf(&inst),
			OperationName: opName,
			StartedAt:     e.now(),
		}); err != nil {
			e.logger.Warnf("Could not track pre-start of %s: %v", inst.ShortName(), err)
			continue
		}
		dispatched++
	}
	completions = append(completions, e.tracker.DrainAll(ctx)...)

	for _, c := range completions {
		if c.Success {
			started++
			e.stats.AddPreStarted()
		} else {
			e.logger.Warnf("Pre-start of %s did not complete cleanly: %s",
				c.Handle.Instance.ShortName, c.Message)
		}
	}
	e.logger.Infof("Pre-start phase complete: %d/%d instances started", started, len(stopped))
}

// processInstance decides eligibility for one instance and dispatches its
// operation. A fresh state fetch guards against staleness after pre-start.
func (e *Engine) processInstance(ctx context.Context, discovered *workbench.Instance) {
	ref := refOf(discovered)
	start := e.now()

	instance, err := e.api.GetInstance(ctx, discovered.Name)
	if err != nil {
		e.recordSkip(ref, start, fmt.Sprintf("failed to read instance state: %v", err))
		return
	}

	if e.mode == ModeRollback {
		e.processRollback(ctx, ref, instance, start)
		return
	}
	e.processUpgrade(ctx, ref, instance, start)
}

func (e *Engine) processUpgrade(ctx context.Context, ref InstanceRef, instance *workbench.Instance, start time.Time) {
	readiness := e.prober.Probe(ctx, instance, e.cfg.DryRun)
	if !readiness.Ready {
		e.recordSkip(ref, start, readiness.Reason)
		return
	}

	check, err := e.api.CheckUpgradability(ctx, instance.Name)
	if err != nil {
		e.recordSkip(ref, start, fmt.Sprintf("failed to check upgradability: %v", err))
		return
	}
	if !check.Upgradeable {
		e.record(OperationResult{
			Instance:  ref,
			Status:    StatusUpToDate,
			Message:   check.UpgradeInfo,
			StartTime: start,
		})
		e.stats.AddUpToDate()
		e.logger.Infof("Instance %s is already up to date", ref.ShortName)
		return
	}

	target := check.TargetVersion()
	e.stats.AddEligible()

	if e.cfg.DryRun {
		e.record(OperationResult{
			Instance:      ref,
			Status:        StatusDryRun,
			TargetVersion: target,
			Message:       "would upgrade to " + target,
			StartTime:     start,
		})
		e.stats.AddDryRun()
		return
	}

	e.throttle(ctx)
	opName, err := e.api.UpgradeInstance(ctx, instance.Name)
	if err != nil {
		e.recordFail(ref, target, start, fmt.Sprintf("failed to start upgrade: %v", err), false)
		return
	}
	e.dispatch(ref, opName, target)
}

func (e *Engine) processRollback(ctx context.Context, ref InstanceRef, instance *workbench.Instance, start time.Time) {
	eligible, outcomes := e.prechecker.Run(instance)
	if !eligible {
		e.recordSkip(ref, start, FirstFailure(outcomes))
		return
	}
	e.stats.AddEligible()

	target := e.cfg.TargetSnapshot
	if target == "" {
		target = TargetSnapshot(outcomes)
	}

	if e.cfg.DryRun {
		e.record(OperationResult{
			Instance:      ref,
			Status:        StatusDryRun,
			TargetVersion: target,
			Message:       "would roll back to " + target,
			StartTime:     start,
		})
		e.stats.AddDryRun()
		return
	}

	e.throttle(ctx)
	opName, err := e.api.RollbackInstance(ctx, instance.Name, target)
	if err != nil {
		if isNotEligible(err) {
			e.record(OperationResult{
				Instance:  ref,
				Status:    StatusSkipped,
				Message:   fmt.Sprintf("rollback rejected: %v", err),
				StartTime: start,
			})
			e.stats.AddNotEligible()
			return
		}
		e.recordFail(ref, target, start, fmt.Sprintf("failed to start rollback: %v", err), false)
		return
	}
	e.dispatch(ref, opName, target)
}

// throttle drains until below the concurrency cap, then applies the stagger
// delay before every dispatch after the first
func (e *Engine) throttle(ctx context.Context) {
	for e.tracker.Full() {
		e.finalize(ctx, e.tracker.DrainOne(ctx))
	}
	if e.stats.Started > 0 || e.tracker.InFlight() > 0 {
		e.sleep(e.cfg.StaggerDelay)
	}
}

// dispatch hands one operation to the tracker
func (e *Engine) dispatch(ref InstanceRef, opName, target string) {
	handle := Handle{
		Instance:      ref,
		OperationName: opName,
		TargetVersion: target,
		StartedAt:     e.now(),
	}
	if err := e.tracker.Dispatch(handle); err != nil {
		// Throttle ran just before dispatch, so this should not happen
		e.recordFail(ref, target, handle.StartedAt, fmt.Sprintf("dispatch rejected: %v", err), false)
		return
	}
	e.stats.AddStarted()
	if e.metrics != nil {
		e.metrics.RecordOperationDispatched()
	}
	e.logger.OperationStart(e.mode, ref.ShortName, e.stats.Started, e.stats.Total)
}

// finalize converts tracker completions into results
func (e *Engine) finalize(ctx context.Context, completions []Completion) {
	for _, c := range completions {
		if c.Success {
			e.record(OperationResult{
				Instance:      c.Handle.Instance,
				Status:        StatusSuccess,
				TargetVersion: c.Handle.TargetVersion,
				StartTime:     c.Handle.StartedAt,
			})
			e.stats.AddSucceeded()
			if e.metrics != nil {
				e.metrics.RecordOperationSucceeded()
			}
			e.logger.OperationSuccess(e.mode, c.Handle.Instance.ShortName)
			continue
		}

		rolledBack := false
		if e.mode == ModeUpgrade && e.cfg.RollbackOnFailure {
			e.remediate(ctx, c.Handle)
			rolledBack = true
		}
		e.recordFail(c.Handle.Instance, c.Handle.TargetVersion, c.Handle.StartedAt, c.Message, rolledBack)
		e.logger.OperationFailed(e.mode, c.Handle.Instance.ShortName, errors.New(c.Message))
	}
}

// remediate issues a best-effort rollback after a failed upgrade. The result
// is marked rolled_back regardless of how the remediation itself fares.
func (e *Engine) remediate(ctx context.Context, h Handle) {
	e.logger.Warnf("Upgrade of %s failed, attempting automatic rollback", h.Instance.ShortName)

	opName, err := e.api.RollbackInstance(ctx, h.Instance.Name, e.cfg.TargetSnapshot)
	if err != nil {
		e.logger.Errorf("Automatic rollback of %s could not be started: %v", h.Instance.ShortName, err)
		return
	}
	if err := e.prober.waitForOperation(ctx, opName); err != nil {
		e.logger.Errorf("Automatic rollback of %s did not complete: %v", h.Instance.ShortName, err)
		return
	}
	e.logger.Infof("Automatic rollback of %s completed", h.Instance.ShortName)
}

func (e *Engine) record(r OperationResult) {
	if r.EndTime.IsZero() {
		r.EndTime = e.now()
	}
	r.Duration = r.EndTime.Sub(r.StartTime)
	e.results = append(e.results, r)
}

func (e *Engine) recordSkip(ref InstanceRef, start time.Time, reason string) {
	e.record(OperationResult{
		Instance:  ref,
		Status:    StatusSkipped,
		Message:   reason,
		StartTime: start,
	})
	e.stats.AddSkipped()
	e.logger.Infof("Skipping %s: %s", ref.ShortName, reason)
}

func (e *Engine) recordFail(ref InstanceRef, target string, start time.Time, reason string, rolledBack bool) {
	e.record(OperationResult{
		Instance:      ref,
		Status:        StatusFailed,
		TargetVersion: target,
		Message:       reason,
		StartTime:     start,
		RolledBack:    rolledBack,
	})
	e.stats.AddFailed()
	if rolledBack {
		e.stats.AddRolledBack()
	}
	if e.metrics != nil {
		e.metrics.RecordOperationFailed()
	}
}

// isNotEligible recognizes the control plane rejecting a rollback outright
func isNotEligible(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not eligible") || strings.Contains(msg, "cannot be rolled back")
}

func refOf(instance *workbench.Instance) InstanceRef {
	return InstanceRef{
		Name:      instance.Name,
		ShortName: instance.ShortName(),
		Location:  instance.Location(),
	}
}
