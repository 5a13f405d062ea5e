package interfaces

import "time"

// SystemMetrics provides metrics about the overall system
type SystemMetrics struct {
	APICalls          int64         `json:"api_calls"`
	APIRetries        int64         `json:"api_retries"`
	RunsProcessed     int64         `json:"runs_processed"`
	RunsSucceeded     int64         `json:"runs_succeeded"`
	RunsFailed        int64         `json:"runs_failed"`
	OpsDispatched     int64         `json:"operations_dispatched"`
	OpsSucceeded      int64         `json:"operations_succeeded"`
	OpsFailed         int64         `json:"operations_failed"`
	AverageRunTime    time.Duration `json:"average_run_time"`
	CurrentQueueDepth int           `json:"current_queue_depth"`
	ActiveWorkers     int           `json:"active_workers"`
	SystemUptime      time.Duration `json:"system_uptime"`
}

// QueueMetrics provides metrics about the run queue
type QueueMetrics struct {
	TotalEnqueued   int64         `json:"total_enqueued"`
	TotalDequeued   int64         `json:"total_dequeued"`
	CurrentDepth    int           `json:"current_depth"`
	AverageWaitTime time.Duration `json:"average_wait_time"`
	OldestRun       time.Time     `json:"oldest_run,omitempty"`
}

// HealthStatus represents the overall health status
type HealthStatus string

const (
	// HealthStatusHealthy indicates the system is operating normally
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusDegraded indicates the system has issues but is functional
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusUnhealthy indicates the system is not functioning properly
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth is one component's contribution to a health report
type ComponentHealth struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}
