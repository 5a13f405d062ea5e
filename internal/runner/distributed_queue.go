package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/upfleet/upfleet/internal/interfaces"
	"github.com/upfleet/upfleet/internal/logging"
)

const (
	// TaskTypeRun is the asynq task type for fleet runs
	TaskTypeRun = "run:process"

	// runQueueName is the asynq queue that holds fleet runs
	runQueueName = "runs"
)

// DistributedQueue implements interfaces.RunQueue using Asynq (Redis-backed).
// It allows runs to survive server restarts and be processed by separate
// worker processes.
type DistributedQueue struct {
	client   *asynq.Client
	redisOpt asynq.RedisConnOpt
	logger   *logging.Logger
}

// NewDistributedQueue creates a Redis-backed run queue
func NewDistributedQueue(redisURL string) (*DistributedQueue, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &DistributedQueue{
		client:   asynq.NewClient(redisOpt),
		redisOpt: redisOpt,
		logger:   logging.NewLogger("distributed-queue"),
	}, nil
}

// Enqueue adds a run to the distributed queue
func (q *DistributedQueue) Enqueue(ctx context.Context, run *interfaces.QueuedRun) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	if run.ID == "" {
		return fmt.Errorf("run ID is empty")
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	task := asynq.NewTask(TaskTypeRun, payload,
		asynq.TaskID(run.ID),
		asynq.Queue(runQueueName),
		asynq.MaxRetry(0),
	)

	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue run: %w", err)
	}

	q.logger.Infof("Enqueued run %s, task ID: %s", run.ID, info.ID)
	return nil
}

// Cancel removes a run that has not started processing yet
func (q *DistributedQueue) Cancel(_ context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID is empty")
	}

	inspector := asynq.NewInspector(q.redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			q.logger.Warnf("Failed to close inspector during cancel: %v", err)
		}
	}()

	// A run may sit in the pending, scheduled, or retry set
	for _, queue := range []string{runQueueName, "scheduled", "retry"} {
		if err := inspector.DeleteTask(queue, runID); err == nil {
			return nil
		}
	}

	// If the run is already processing it cannot be withdrawn from here
	return fmt.Errorf("run %s not found in any queue or already processing", runID)
}

// Close closes the queue client
func (q *DistributedQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("failed to close asynq client: %w", err)
	}
	return nil
}

// RedisConnOpt returns the underlying Redis connection options, for
// components that need the same connection
func (q *DistributedQueue) RedisConnOpt() asynq.RedisConnOpt {
	return q.redisOpt
}

// Ping verifies connectivity to the backing Redis instance
func (q *DistributedQueue) Ping(ctx context.Context) error {
	client, ok := q.redisOpt.MakeRedisClient().(redis.UniversalClient)
	if !ok {
		return fmt.Errorf("unexpected redis client type")
	}
	defer func() {
		if err := client.Close(); err != nil {
			q.logger.Warnf("Failed to close redis client after ping: %v", err)
		}
	}()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// GetMetrics returns queue metrics
func (q *DistributedQueue) GetMetrics() interfaces.QueueMetrics {
	inspector := asynq.NewInspector(q.redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			q.logger.Warnf("Failed to close inspector: %v", err)
		}
	}()

	info, err := inspector.GetQueueInfo(runQueueName)
	if err != nil {
		q.logger.Errorf("Failed to get queue info: %v", err)
		return interfaces.QueueMetrics{}
	}

	var oldest time.Time
	if info.Size > 0 {
		tasks, err := inspector.ListPendingTasks(runQueueName, asynq.PageSize(1))
		if err == nil && len(tasks) > 0 {
			oldest = tasks[0].NextProcessAt
		}
	}

	return interfaces.QueueMetrics{
		TotalEnqueued:   int64(info.Processed + info.Size + info.Active),
		TotalDequeued:   int64(info.Processed),
		CurrentDepth:    info.Size,
		AverageWaitTime: info.Latency,
		OldestRun:       oldest,
	}
}
