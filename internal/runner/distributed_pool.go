package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/upfleet/upfleet/internal/events"
	"github.com/upfleet/upfleet/internal/interfaces"
	"github.com/upfleet/upfleet/internal/logging"
	"github.com/upfleet/upfleet/internal/metrics"
)

// DistributedWorkerPool implements interfaces.WorkerPool using an Asynq
// server. Each worker process consumes run tasks from Redis and executes
// them with a RunExecutor.
type DistributedWorkerPool struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	tracker     interfaces.RunTracker
	executor    interfaces.RunExecutor
	bus         *events.EventBus
	collector   *metrics.Collector
	redisOpt    asynq.RedisConnOpt
	logger      *logging.Logger
	concurrency int
}

// DistributedWorkerPoolConfig configures the distributed worker pool
type DistributedWorkerPoolConfig struct {
	RedisURL    string
	Tracker     interfaces.RunTracker
	Executor    interfaces.RunExecutor
	EventBus    *events.EventBus
	Collector   *metrics.Collector
	Concurrency int
}

// NewDistributedWorkerPool creates a new distributed worker pool
func NewDistributedWorkerPool(config DistributedWorkerPoolConfig) (*DistributedWorkerPool, error) {
	if config.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	if config.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if config.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	redisOpt, err := asynq.ParseRedisURI(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if config.Concurrency <= 0 {
		config.Concurrency = 2
	}

	logger := logging.NewLogger("distributed-worker")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: config.Concurrency,
			Queues: map[string]int{
				runQueueName: 3,
				"default":    1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
				logger.Errorf("Error processing task %s: %v", task.Type(), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	pool := &DistributedWorkerPool{
		server:      server,
		mux:         mux,
		tracker:     config.Tracker,
		executor:    config.Executor,
		bus:         config.EventBus,
		collector:   config.Collector,
		redisOpt:    redisOpt,
		logger:      logger,
		concurrency: config.Concurrency,
	}

	mux.HandleFunc(TaskTypeRun, pool.handleRunTask)

	return pool, nil
}

// Start begins processing runs from the queue
func (p *DistributedWorkerPool) Start() {
	go func() {
		if err := p.server.Start(p.mux); err != nil {
			p.logger.Errorf("Failed to start asynq server: %v", err)
		}
	}()
}

// Stop gracefully stops the worker pool
func (p *DistributedWorkerPool) Stop(ctx context.Context) error {
	p.server.Shutdown()

	done := make(chan struct{})
	go func() {
		// Asynq server blocks until all workers finish
		p.server.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop timeout: %w", ctx.Err())
	}
}

// handleRunTask processes one run task
func (p *DistributedWorkerPool) handleRunTask(ctx context.Context, task *asynq.Task) error {
	var run interfaces.QueuedRun
	if err := json.Unmarshal(task.Payload(), &run); err != nil {
		return fmt.Errorf("failed to unmarshal run: %w", err)
	}

	if err := p.tracker.SetStatus(run.ID, interfaces.RunStatusProcessing); err != nil {
		p.logger.Warnf("Failed to update status to processing: %v", err)
	}
	if p.bus != nil {
		p.bus.PublishStatusChange(run.ID, interfaces.RunStatusProcessing)
	}
	if p.collector != nil {
		p.collector.RecordRunStarted(run.ID)
	}

	result, execErr := p.executor.Execute(ctx, &run)
	if execErr != nil || result == nil {
		if execErr == nil {
			execErr = fmt.Errorf("executor returned no result")
		}
		result = &interfaces.RunResult{
			RunID:       run.ID,
			Success:     false,
			Error:       execErr.Error(),
			CompletedAt: nowUTC(),
		}
		if p.bus != nil {
			p.bus.PublishError(run.ID, execErr)
		}
	}

	if err := p.tracker.SetResult(run.ID, result); err != nil {
		p.logger.Errorf("Failed to store result for run %s: %v", run.ID, err)
	}

	finalStatus := interfaces.RunStatusCompleted
	if !result.Success {
		finalStatus = interfaces.RunStatusFailed
	}
	if err := p.tracker.SetStatus(run.ID, finalStatus); err != nil {
		p.logger.Errorf("Failed to update final status for run %s: %v", run.ID, err)
	}

	if p.collector != nil {
		if result.Success {
			p.collector.RecordRunCompleted(run.ID)
		} else {
			p.collector.RecordRunFailed(run.ID)
		}
	}
	if p.bus != nil {
		p.bus.PublishStatusChange(run.ID, finalStatus)
		p.bus.PublishResult(run.ID, result)
	}

	// Failed runs are reported through the tracker rather than retried;
	// returning the error here would requeue the task.
	return nil
}

// GetStats returns current worker server statistics
func (p *DistributedWorkerPool) GetStats() (*asynq.ServerInfo, error) {
	inspector := asynq.NewInspector(p.redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			p.logger.Warnf("Failed to close inspector during stats collection: %v", err)
		}
	}()

	servers, err := inspector.Servers()
	if err != nil {
		return nil, fmt.Errorf("failed to get server info: %w", err)
	}

	for _, server := range servers {
		if server.Concurrency == p.concurrency {
			return server, nil
		}
	}

	return nil, fmt.Errorf("server info not found")
}
