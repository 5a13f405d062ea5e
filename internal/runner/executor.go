package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/fleet"
	"github.com/upfleet/upfleet/internal/interfaces"
	"github.com/upfleet/upfleet/internal/locking"
	"github.com/upfleet/upfleet/internal/logging"
	"github.com/upfleet/upfleet/internal/metrics"
	"github.com/upfleet/upfleet/internal/report"
	"github.com/upfleet/upfleet/internal/workbench"
)

// fleetEngine is the part of fleet.Engine the executor depends on
type fleetEngine interface {
	Run(ctx context.Context) ([]fleet.OperationResult, *fleet.Statistics, error)
}

type engineFactory func(mode string, cfg *config.RunConfig) fleetEngine

// Executor implements interfaces.RunExecutor. For each queued run it
// acquires the fleet lock, builds a fleet engine against the configured
// control plane, runs it, and persists the report.
type Executor struct {
	locks     locking.Provider
	store     report.Store
	collector *metrics.Collector
	newEngine engineFactory
	logger    *logging.Logger
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithReportStore sets the store used to persist run reports
func WithReportStore(s report.Store) ExecutorOption {
	return func(e *Executor) { e.store = s }
}

// WithCollector wires API and operation metrics into the engines the
// executor builds
func WithCollector(c *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.collector = c }
}

// withEngineFactory replaces engine construction, for tests
func withEngineFactory(f engineFactory) ExecutorOption {
	return func(e *Executor) { e.newEngine = f }
}

// NewExecutor creates a run executor
func NewExecutor(locks locking.Provider, opts ...ExecutorOption) *Executor {
	e := &Executor{
		locks:  locks,
		logger: logging.NewLogger("run-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.newEngine == nil {
		e.newEngine = defaultEngineFactory(e.collector)
	}
	return e
}

func defaultEngineFactory(collector *metrics.Collector) engineFactory {
	return func(mode string, cfg *config.RunConfig) fleetEngine {
		var clientOpts []workbench.ClientOption
		var engineOpts []fleet.EngineOption
		if collector != nil {
			clientOpts = append(clientOpts, workbench.WithMetrics(collector))
			engineOpts = append(engineOpts, fleet.WithEngineMetrics(collector))
		}
		api := workbench.NewClient(cfg.Endpoint, workbench.StaticTokenSource(cfg.APIToken), clientOpts...)
		return fleet.NewEngine(mode, api, cfg, engineOpts...)
	}
}

// Execute performs one queued run to completion. Lock contention and
// engine errors are reported through the run result rather than the
// error return; the error return is reserved for malformed runs.
func (e *Executor) Execute(ctx context.Context, run *interfaces.QueuedRun) (*interfaces.RunResult, error) {
	if run == nil {
		return nil, fmt.Errorf("run is nil")
	}
	if run.Request == nil || run.Request.Config == nil {
		return nil, fmt.Errorf("run %s has no request configuration", run.ID)
	}

	mode := run.Request.Mode
	cfg := run.Request.Config

	key := locking.LockKey(cfg.Project, cfg.Locations)
	lock, err := e.locks.Acquire(ctx, key, mode)
	if err != nil {
		if errors.Is(err, locking.ErrLockHeld) {
			e.logger.Warnf("Run %s rejected: fleet lock %s is held by another run", run.ID, key)
			return e.failedResult(run, fmt.Sprintf("fleet %s is locked by another run", key)), nil
		}
		return e.failedResult(run, fmt.Sprintf("failed to acquire fleet lock: %v", err)), nil
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			e.logger.Warnf("Failed to release fleet lock %s: %v", key, rerr)
		}
	}()

	e.logger.Infof("Executing %s run %s for project %s", mode, run.ID, cfg.Project)

	engine := e.newEngine(mode, cfg)
	results, stats, err := engine.Run(ctx)
	if err != nil {
		return e.failedResult(run, err.Error()), nil
	}

	result := &interfaces.RunResult{
		RunID:       run.ID,
		Success:     !stats.HasFailures(),
		Results:     results,
		Statistics:  stats,
		CompletedAt: nowUTC(),
	}
	if stats.HasFailures() {
		result.Error = fmt.Sprintf("%d of %d operations failed", stats.Failed, stats.Total)
	}

	if e.store != nil {
		rep := report.Build(mode, cfg, stats, results)
		path, serr := e.store.Save(ctx, rep)
		if serr != nil {
			e.logger.Errorf("Failed to save report for run %s: %v", run.ID, serr)
		} else {
			result.ReportPath = path
		}
	}

	return result, nil
}

func (e *Executor) failedResult(run *interfaces.QueuedRun, msg string) *interfaces.RunResult {
	return &interfaces.RunResult{
		RunID:       run.ID,
		Success:     false,
		Error:       msg,
		CompletedAt: time.Now().UTC(),
	}
}
