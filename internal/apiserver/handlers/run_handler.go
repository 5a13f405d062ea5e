// Package handlers provides HTTP request handlers for the API server.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/upfleet/upfleet/internal/apiserver/types"
	"github.com/upfleet/upfleet/internal/interfaces"
	"github.com/upfleet/upfleet/internal/logging"
	"github.com/upfleet/upfleet/internal/metrics"
	"github.com/upfleet/upfleet/internal/runner"
)

// Package-level logger for the response helpers
var logger = logging.NewLogger("run-handler")

func nowUTC() time.Time {
	return time.Now().UTC()
}

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON safely writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encoding_error", "Failed to encode response")
		logger.Errorf("JSON encoding error: %v, data: %+v", err, data)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(jsonData); err != nil {
		logger.Errorf("Failed to write response body: %v", err)
	}
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code string, message string) {
	response := ErrorResponse{
		Error:   code,
		Message: message,
	}

	jsonData, err := json.Marshal(response)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error: failed to encode error response"))
		logger.Errorf("Failed to encode error response: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(jsonData); err != nil {
		logger.Errorf("Failed to write error response: %v", err)
	}
}

// RunHandler handles run-related HTTP requests
type RunHandler struct {
	queue     interfaces.RunQueue
	tracker   interfaces.RunTracker
	converter *types.RequestConverter
	collector *metrics.Collector
	logger    *logging.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(
	queue interfaces.RunQueue,
	tracker interfaces.RunTracker,
	converter *types.RequestConverter,
	collector *metrics.Collector,
) (*RunHandler, error) {
	if queue == nil {
		return nil, errors.New("run queue is required")
	}
	if tracker == nil {
		return nil, errors.New("run tracker is required")
	}
	if converter == nil {
		return nil, errors.New("request converter is required")
	}
	return &RunHandler{
		queue:     queue,
		tracker:   tracker,
		converter: converter,
		collector: collector,
		logger:    logging.NewLogger("run-handler"),
	}, nil
}

// CreateRun enqueues a new fleet run
// @Summary Create fleet run
// @Description Submit an upgrade or rollback run for asynchronous execution
// @Tags runs
// @Accept json
// @Produce json
// @Param run body types.CreateRunRequest true "Run configuration"
// @Success 201 {object} map[string]interface{} "Run queued"
// @Failure 400 {object} ErrorResponse "Bad request"
// @Failure 503 {object} ErrorResponse "Queue unavailable"
// @Router /runs [post]
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON in request body")
		return
	}

	req, err := h.converter.Decode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	runRequest, err := h.converter.ToRunRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	runID, err := runner.NewRunID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id_generation_failed", err.Error())
		return
	}

	run := &interfaces.QueuedRun{
		ID:        runID,
		RequestID: middleware.GetReqID(r.Context()),
		Request:   runRequest,
		Status:    interfaces.RunStatusQueued,
		CreatedAt: nowUTC(),
	}

	if err := h.tracker.Register(run); err != nil {
		writeError(w, http.StatusInternalServerError, "tracking_failed", err.Error())
		return
	}

	if err := h.queue.Enqueue(r.Context(), run); err != nil {
		_ = h.tracker.Remove(runID)
		writeError(w, http.StatusServiceUnavailable, "enqueue_failed", err.Error())
		return
	}

	if h.collector != nil {
		h.collector.RecordRunQueued(runID)
		h.collector.UpdateQueueDepth(h.queue.GetMetrics().CurrentDepth)
	}

	h.logger.Infof("Queued %s run %s for project %s", runRequest.Mode, runID, runRequest.Config.Project)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"run_id":  runID,
		"status":  string(interfaces.RunStatusQueued),
		"mode":    runRequest.Mode,
		"dry_run": runRequest.Config.DryRun,
	})
}

// ListRuns lists runs, newest first
// @Summary List runs
// @Description List fleet runs, newest first, optionally filtered by status
// @Tags runs
// @Produce json
// @Param status query string false "Filter by run status"
// @Success 200 {array} types.RunResponse "Runs"
// @Router /runs [get]
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	var filter interfaces.RunFilter
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = []interfaces.RunStatus{interfaces.RunStatus(status)}
	}

	runs, err := h.tracker.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}

	responses := make([]types.RunResponse, 0, len(runs))
	for _, run := range runs {
		responses = append(responses, types.FromQueuedRun(run, nil))
	}

	writeJSON(w, http.StatusOK, responses)
}

// GetRun returns a run with its result when finished
// @Summary Get run
// @Description Get run status and, once finished, its result and report path
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} types.RunResponse "Run"
// @Failure 404 {object} ErrorResponse "Run not found"
// @Router /runs/{id} [get]
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := h.tracker.GetByID(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}

	result, err := h.tracker.GetResult(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "result_lookup_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, types.FromQueuedRun(run, result))
}

// CancelRun cancels a run that is still queued
// @Summary Cancel run
// @Description Cancel a run that has not started processing yet
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]string "Run canceled"
// @Failure 404 {object} ErrorResponse "Run not found"
// @Failure 409 {object} ErrorResponse "Run not cancelable"
// @Router /runs/{id} [delete]
func (h *RunHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	status, err := h.tracker.GetStatus(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}

	if *status != interfaces.RunStatusQueued {
		writeError(w, http.StatusConflict, "not_cancelable",
			"only queued runs can be canceled, run is "+string(*status))
		return
	}

	// Best effort: the run may be between queue and worker
	if err := h.queue.Cancel(r.Context(), runID); err != nil {
		h.logger.Warnf("Queue cancel for run %s: %v", runID, err)
	}

	if err := h.tracker.SetStatus(runID, interfaces.RunStatusCanceled); err != nil {
		writeError(w, http.StatusInternalServerError, "cancel_failed", err.Error())
		return
	}

	if h.collector != nil {
		h.collector.RecordRunCanceled(runID)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"run_id": runID,
		"status": string(interfaces.RunStatusCanceled),
	})
}
