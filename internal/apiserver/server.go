// Package apiserver provides the HTTP control surface for upfleet: run
// submission and tracking, fleet inventory, and system endpoints.
package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/upfleet/upfleet/internal/apiserver/handlers"
	customMiddleware "github.com/upfleet/upfleet/internal/apiserver/middleware"
	"github.com/upfleet/upfleet/internal/apiserver/types"
	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/fleet"
	"github.com/upfleet/upfleet/internal/interfaces"
	"github.com/upfleet/upfleet/internal/logging"
	"github.com/upfleet/upfleet/internal/metrics"
)

// Components are the backing services the API server is assembled from
type Components struct {
	Queue        interfaces.RunQueue
	Tracker      interfaces.RunTracker
	WorkerPool   interfaces.WorkerPool
	ControlPlane fleet.ControlPlane
	Collector    *metrics.Collector
	RunDefaults  *config.RunConfig
}

// APIServer provides HTTP API endpoints for fleet run management
type APIServer struct {
	router     chi.Router
	server     *http.Server
	queue      interfaces.RunQueue
	tracker    interfaces.RunTracker
	workerPool interfaces.WorkerPool
	collector  *metrics.Collector
	config     *config.ServerConfig
	logger     *logging.Logger
	startedAt  time.Time
}

// NewAPIServer creates a new API server from its components
func NewAPIServer(cfg *config.ServerConfig, components Components) (*APIServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if components.Queue == nil {
		return nil, fmt.Errorf("run queue is required")
	}
	if components.Tracker == nil {
		return nil, fmt.Errorf("run tracker is required")
	}
	if components.WorkerPool == nil {
		return nil, fmt.Errorf("worker pool is required")
	}
	if components.ControlPlane == nil {
		return nil, fmt.Errorf("control plane client is required")
	}

	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Timeout(60 * time.Second))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	apiServer := &APIServer{
		router:     router,
		server:     server,
		queue:      components.Queue,
		tracker:    components.Tracker,
		workerPool: components.WorkerPool,
		collector:  components.Collector,
		config:     cfg,
		logger:     logging.NewLogger("apiserver"),
		startedAt:  time.Now(),
	}

	if err := apiServer.setupRoutes(components); err != nil {
		return nil, err
	}

	// Global 404 handler that returns JSON instead of HTML
	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apiServer.writeError(w, http.StatusNotFound, "not_found", "The requested endpoint was not found")
	})

	return apiServer, nil
}

func (s *APIServer) setupRoutes(components Components) error {
	converter := types.NewRequestConverter(components.RunDefaults)

	runHandler, err := handlers.NewRunHandler(s.queue, s.tracker, converter, s.collector)
	if err != nil {
		return fmt.Errorf("failed to create run handler: %w", err)
	}
	fleetHandler, err := handlers.NewFleetHandler(components.ControlPlane)
	if err != nil {
		return fmt.Errorf("failed to create fleet handler: %w", err)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			s.writeError(w, http.StatusNotFound, "not_found", "The requested endpoint was not found")
		})

		r.Use(customMiddleware.ContentTypeValidator())

		r.Route("/runs", func(r chi.Router) {
			r.With(customMiddleware.RunRequestValidator()).
				Post("/", runHandler.CreateRun)

			r.Get("/", runHandler.ListRuns)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(customMiddleware.RunIDValidator("id"))

				r.Get("/", runHandler.GetRun)
				r.Delete("/", runHandler.CancelRun)
			})
		})

		r.Get("/fleet/status", fleetHandler.FleetStatus)

		r.Get("/system/health", s.getSystemHealth)
		r.Get("/system/metrics", s.getSystemMetrics)
	})

	// Swagger UI
	s.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", s.config.Port)),
	))

	return nil
}

// writeError writes a structured error response
func (s *APIServer) writeError(w http.ResponseWriter, status int, code string, message string) {
	response := map[string]string{
		"error":   code,
		"message": message,
	}

	jsonData, err := json.Marshal(response)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error: failed to encode error response"))
		s.logger.Errorf("Failed to encode error response: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(jsonData); err != nil {
		s.logger.Errorf("Failed to write error response: %v", err)
	}
}

// pinger is implemented by queue backends with an external dependency
type pinger interface {
	Ping(ctx context.Context) error
}

// getSystemHealth returns system health status
// @Summary Health check
// @Description Check the health of the queue, tracker, and worker pool
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Service is healthy"
// @Success 503 {object} map[string]interface{} "Service degraded"
// @Router /system/health [get]
func (s *APIServer) getSystemHealth(w http.ResponseWriter, r *http.Request) {
	components := []interfaces.ComponentHealth{
		s.checkQueueHealth(r.Context()),
		s.checkTrackerHealth(),
		s.checkWorkerPoolHealth(),
	}

	overall := interfaces.HealthStatusHealthy
	for _, c := range components {
		if c.Status != interfaces.HealthStatusHealthy {
			overall = interfaces.HealthStatusDegraded
			break
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := map[string]interface{}{
		"status":     overall,
		"time":       time.Now().Format(time.RFC3339),
		"components": components,
		"system": map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc_mb": m.Alloc / 1024 / 1024,
				"sys_mb":   m.Sys / 1024 / 1024,
				"gc_count": m.NumGC,
			},
			"uptime": time.Since(s.startedAt).String(),
		},
		"version": map[string]interface{}{
			"api": "v1",
		},
	}

	statusCode := http.StatusOK
	if overall != interfaces.HealthStatusHealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (s *APIServer) checkQueueHealth(ctx context.Context) interfaces.ComponentHealth {
	health := interfaces.ComponentHealth{
		Name:   "queue",
		Status: interfaces.HealthStatusHealthy,
	}

	// Distributed queues expose connectivity to their backing store
	if p, ok := s.queue.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			health.Status = interfaces.HealthStatusUnhealthy
			health.Message = fmt.Sprintf("queue backend unreachable: %v", err)
			return health
		}
	}

	m := s.queue.GetMetrics()
	if m.CurrentDepth > 1000 {
		health.Status = interfaces.HealthStatusDegraded
		health.Message = "queue depth is high"
	}
	return health
}

func (s *APIServer) checkTrackerHealth() interfaces.ComponentHealth {
	health := interfaces.ComponentHealth{
		Name:   "tracker",
		Status: interfaces.HealthStatusHealthy,
	}

	if _, err := s.tracker.List(interfaces.RunFilter{
		CreatedAfter: time.Now().Add(-1 * time.Minute),
	}); err != nil {
		health.Status = interfaces.HealthStatusUnhealthy
		health.Message = fmt.Sprintf("failed to query tracker: %v", err)
	}
	return health
}

func (s *APIServer) checkWorkerPoolHealth() interfaces.ComponentHealth {
	health := interfaces.ComponentHealth{
		Name:   "worker_pool",
		Status: interfaces.HealthStatusHealthy,
	}
	if s.workerPool == nil {
		health.Status = interfaces.HealthStatusUnhealthy
		health.Message = "worker pool not initialized"
	}
	return health
}

// getSystemMetrics returns engine and queue counters
// @Summary System metrics
// @Description Engine operation counters, run counters, and queue metrics
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Metrics snapshot"
// @Router /system/metrics [get]
func (s *APIServer) getSystemMetrics(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"queue": s.queue.GetMetrics(),
	}
	if s.collector != nil {
		response["system"] = s.collector.GetSystemMetrics()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}

// Start starts the API server
func (s *APIServer) Start() error {
	s.logger.Infof("Starting API server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Router returns the HTTP router for testing
func (s *APIServer) Router() http.Handler {
	return s.router
}

// Shutdown gracefully shuts down the API server
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.logger.Infof("Shutting down API server...")

	if s.workerPool != nil {
		if err := s.workerPool.Stop(ctx); err != nil {
			s.logger.Warnf("Warning: failed to stop worker pool: %v", err)
		}
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
