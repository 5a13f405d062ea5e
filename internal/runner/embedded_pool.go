package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"

	"github.com/upfleet/upfleet/internal/events"
	"github.com/upfleet/upfleet/internal/interfaces"
	"github.com/upfleet/upfleet/internal/logging"
	"github.com/upfleet/upfleet/internal/metrics"
)

// EmbeddedWorkerPool implements interfaces.WorkerPool using
// gammazero/workerpool, dequeuing runs from an EmbeddedQueue and handing
// them to a RunExecutor.
type EmbeddedWorkerPool struct {
	pool      *workerpool.WorkerPool
	queue     *EmbeddedQueue
	tracker   interfaces.RunTracker
	executor  interfaces.RunExecutor
	bus       *events.EventBus
	collector *metrics.Collector
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
	mu        sync.Mutex
}

// EmbeddedWorkerPoolConfig configures the embedded worker pool
type EmbeddedWorkerPoolConfig struct {
	Workers   int
	Queue     *EmbeddedQueue
	Tracker   interfaces.RunTracker
	Executor  interfaces.RunExecutor
	EventBus  *events.EventBus
	Collector *metrics.Collector
}

// NewEmbeddedWorkerPool creates a new embedded worker pool
func NewEmbeddedWorkerPool(config EmbeddedWorkerPoolConfig) (*EmbeddedWorkerPool, error) {
	if config.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if config.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if config.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &EmbeddedWorkerPool{
		pool:      workerpool.New(config.Workers),
		queue:     config.Queue,
		tracker:   config.Tracker,
		executor:  config.Executor,
		bus:       config.EventBus,
		collector: config.Collector,
		logger:    logging.NewLogger("embedded-worker"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins processing runs from the queue
func (p *EmbeddedWorkerPool) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.processLoop()
}

// Stop gracefully stops the worker pool, waiting for in-flight runs
func (p *EmbeddedWorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("stop timeout: %w", ctx.Err())
	}

	p.pool.StopWait()

	return nil
}

// processLoop continuously dequeues and processes runs
func (p *EmbeddedWorkerPool) processLoop() {
	defer p.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("Worker pool process loop panicked: %v", r)
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
			run, err := p.queue.Dequeue(p.ctx)
			if err != nil {
				// Context canceled or queue closed
				if p.ctx.Err() != nil {
					return
				}
				continue
			}

			p.pool.Submit(func() {
				p.processRun(run)
			})
		}
	}
}

// processRun handles a single run
func (p *EmbeddedWorkerPool) processRun(run *interfaces.QueuedRun) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("Worker panic while processing run %s: %v", run.ID, r)
			panicErr := fmt.Errorf("panic during execution: %v", r)
			if err := p.tracker.SetStatus(run.ID, interfaces.RunStatusFailed); err != nil {
				p.logger.Errorf("Failed to update status after panic: %v", err)
			}
			p.publishError(run.ID, panicErr)
		}
	}()

	// A run canceled while waiting in the queue is not executed
	if status, err := p.tracker.GetStatus(run.ID); err == nil && *status == interfaces.RunStatusCanceled {
		p.logger.Infof("Skipping canceled run %s", run.ID)
		return
	}

	if err := p.tracker.SetStatus(run.ID, interfaces.RunStatusProcessing); err != nil {
		p.logger.Errorf("Failed to update status to processing: %v", err)
	}
	p.publishStatus(run.ID, interfaces.RunStatusProcessing)
	if p.collector != nil {
		p.collector.RecordRunStarted(run.ID)
		p.collector.UpdateQueueDepth(p.queue.Size())
	}

	result, execErr := p.executor.Execute(p.ctx, run)

	if execErr != nil || result == nil {
		if execErr == nil {
			execErr = fmt.Errorf("executor returned no result")
		}
		p.logger.Errorf("Run %s failed: %v", run.ID, execErr)
		p.finish(run.ID, &interfaces.RunResult{
			RunID:       run.ID,
			Success:     false,
			Error:       execErr.Error(),
			CompletedAt: nowUTC(),
		})
		p.publishError(run.ID, execErr)
		return
	}

	p.finish(run.ID, result)
}

func (p *EmbeddedWorkerPool) finish(runID string, result *interfaces.RunResult) {
	if err := p.tracker.SetResult(runID, result); err != nil {
		p.logger.Errorf("Failed to store result for run %s: %v", runID, err)
	}

	finalStatus := interfaces.RunStatusCompleted
	if !result.Success {
		finalStatus = interfaces.RunStatusFailed
	}
	if err := p.tracker.SetStatus(runID, finalStatus); err != nil {
		p.logger.Errorf("Failed to update final status for run %s: %v", runID, err)
	}

	if p.collector != nil {
		if result.Success {
			p.collector.RecordRunCompleted(runID)
		} else {
			p.collector.RecordRunFailed(runID)
		}
	}

	p.publishStatus(runID, finalStatus)
	if p.bus != nil {
		p.bus.PublishResult(runID, result)
	}
}

func (p *EmbeddedWorkerPool) publishStatus(runID string, status interfaces.RunStatus) {
	if p.bus != nil {
		p.bus.PublishStatusChange(runID, status)
	}
}

func (p *EmbeddedWorkerPool) publishError(runID string, err error) {
	if p.bus != nil {
		p.bus.PublishError(runID, err)
	}
}

// GetWorkerCount returns the configured number of workers
func (p *EmbeddedWorkerPool) GetWorkerCount() int {
	return p.pool.Size()
}

// GetQueuedCount returns the number of runs waiting inside the pool
func (p *EmbeddedWorkerPool) GetQueuedCount() int {
	return p.pool.WaitingQueueSize()
}
