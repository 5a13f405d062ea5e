package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upfleet/upfleet/internal/config"
	"github.com/upfleet/upfleet/internal/interfaces"
	"github.com/upfleet/upfleet/internal/locking"
	"github.com/upfleet/upfleet/internal/metrics"
	"github.com/upfleet/upfleet/internal/runner"
	"github.com/upfleet/upfleet/internal/workbench"
)

// stubControlPlane serves a small static fleet for inventory endpoints
type stubControlPlane struct {
	instances map[string][]workbench.Instance
	listErr   error
}

func (s *stubControlPlane) ListInstances(_ context.Context, _, location string) ([]workbench.Instance, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.instances[location], nil
}

func (s *stubControlPlane) GetInstance(_ context.Context, name string) (*workbench.Instance, error) {
	for _, list := range s.instances {
		for i := range list {
			if list[i].Name == name {
				return &list[i], nil
			}
		}
	}
	return nil, fmt.Errorf("instance %s not found", name)
}

func (s *stubControlPlane) GetInstanceByName(ctx context.Context, project, location, instanceID string) (*workbench.Instance, error) {
	name := fmt.Sprintf("projects/%s/locations/%s/instances/%s", project, location, instanceID)
	inst, err := s.GetInstance(ctx, name)
	if err != nil {
		return nil, nil
	}
	return inst, nil
}

func (s *stubControlPlane) CheckUpgradability(_ context.Context, _ string) (*workbench.UpgradeCheck, error) {
	return &workbench.UpgradeCheck{Upgradeable: true, UpgradeVersion: "M125"}, nil
}

func (s *stubControlPlane) StartInstance(_ context.Context, name string) (string, error) {
	return name + "/operations/op-start", nil
}

func (s *stubControlPlane) UpgradeInstance(_ context.Context, name string) (string, error) {
	return name + "/operations/op-upgrade", nil
}

func (s *stubControlPlane) RollbackInstance(_ context.Context, name, _ string) (string, error) {
	return name + "/operations/op-rollback", nil
}

func (s *stubControlPlane) GetOperation(_ context.Context, name string) (*workbench.Operation, error) {
	return &workbench.Operation{Name: name, Done: true}, nil
}

type serverFixture struct {
	server  *APIServer
	tracker *runner.Tracker
	queue   *runner.EmbeddedQueue
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()

	queue := runner.NewEmbeddedQueue(10)
	tracker := runner.NewTracker()
	executor := runner.NewExecutor(locking.NewLocalProvider())
	pool, err := runner.NewEmbeddedWorkerPool(runner.EmbeddedWorkerPoolConfig{
		Workers:  1,
		Queue:    queue,
		Tracker:  tracker,
		Executor: executor,
	})
	require.NoError(t, err)

	defaults := config.NewRunConfig()
	defaults.Endpoint = "https://workbench.test/v2"
	defaults.APIToken = "test-token"

	cp := &stubControlPlane{
		instances: map[string][]workbench.Instance{
			"us-east1": {
				{Name: "projects/proj-test1/locations/us-east1/instances/wb-a", State: workbench.StateActive, HealthState: "HEALTHY"},
				{Name: "projects/proj-test1/locations/us-east1/instances/wb-b", State: workbench.StateStopped},
			},
		},
	}

	cfg := config.NewServerConfig()
	server, err := NewAPIServer(cfg, Components{
		Queue:        queue,
		Tracker:      tracker,
		WorkerPool:   pool,
		ControlPlane: cp,
		Collector:    metrics.NewCollector(),
		RunDefaults:  defaults,
	})
	require.NoError(t, err)

	t.Cleanup(queue.Close)

	return &serverFixture{server: server, tracker: tracker, queue: queue}
}

func postJSON(t *testing.T, handler http.Handler, path string, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func validRunBody() map[string]interface{} {
	return map[string]interface{}{
		"mode":      "upgrade",
		"project":   "proj-test1",
		"locations": []string{"us-east1"},
	}
}

func TestCreateRunQueuesAndDefaultsToDryRun(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)

	rec := postJSON(t, fx.server.Router(), "/api/v1/runs", validRunBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
	assert.Equal(t, true, resp["dry_run"])
	runID, _ := resp["run_id"].(string)
	require.NotEmpty(t, runID)

	run, err := fx.tracker.GetByID(runID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.RunStatusQueued, run.Status)
	assert.True(t, run.Request.Config.DryRun)
	assert.Equal(t, 1, fx.queue.Size())
}

func TestCreateRunAppliesCapsAndFloors(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)

	body := validRunBody()
	body["dry_run"] = false
	body["max_parallel"] = 50
	body["poll_interval_seconds"] = 2
	rec := postJSON(t, fx.server.Router(), "/api/v1/runs", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	run, err := fx.tracker.GetByID(resp["run_id"].(string))
	require.NoError(t, err)
	assert.False(t, run.Request.Config.DryRun)
	assert.Equal(t, 20, run.Request.Config.MaxParallel)
	assert.Equal(t, "10s", run.Request.Config.PollInterval.String())
}

func TestCreateRunAcceptsWeaklyTypedNumbers(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)

	body := validRunBody()
	body["max_parallel"] = "3"
	rec := postJSON(t, fx.server.Router(), "/api/v1/runs", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	run, err := fx.tracker.GetByID(resp["run_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, 3, run.Request.Config.MaxParallel)
}

func TestCreateRunValidation(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)
	router := fx.server.Router()

	tests := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"bad mode", func(b map[string]interface{}) { b["mode"] = "restart" }},
		{"missing project", func(b map[string]interface{}) { delete(b, "project") }},
		{"bad project", func(b map[string]interface{}) { b["project"] = "UPPER" }},
		{"missing locations", func(b map[string]interface{}) { delete(b, "locations") }},
		{"bad location", func(b map[string]interface{}) { b["locations"] = []string{"US_EAST"} }},
		{"bad instance", func(b map[string]interface{}) { b["instance"] = "-bad-" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validRunBody()
			tt.mutate(body)
			rec := postJSON(t, router, "/api/v1/runs", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateRunRejectsWrongContentType(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader([]byte(`{"mode":"upgrade"}`)))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	fx.server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRunsNewestFirst(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)
	router := fx.server.Router()

	first := postJSON(t, router, "/api/v1/runs", validRunBody())
	require.Equal(t, http.StatusCreated, first.Code)
	second := postJSON(t, router, "/api/v1/runs", validRunBody())
	require.Equal(t, http.StatusCreated, second.Code)

	var secondResp map[string]interface{}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))

	rec := get(t, router, "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, secondResp["run_id"], runs[0]["run_id"])
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)

	rec := get(t, fx.server.Router(), "/api/v1/runs/run-missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelQueuedRun(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)
	router := fx.server.Router()

	created := postJSON(t, router, "/api/v1/runs", validRunBody())
	require.Equal(t, http.StatusCreated, created.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))
	runID := resp["run_id"].(string)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/runs/"+runID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	status, err := fx.tracker.GetStatus(runID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.RunStatusCanceled, *status)
}

func TestCancelProcessingRunConflicts(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)
	router := fx.server.Router()

	created := postJSON(t, router, "/api/v1/runs", validRunBody())
	require.Equal(t, http.StatusCreated, created.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &resp))
	runID := resp["run_id"].(string)

	require.NoError(t, fx.tracker.SetStatus(runID, interfaces.RunStatusProcessing))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/runs/"+runID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFleetStatusInventory(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)

	rec := get(t, fx.server.Router(), "/api/v1/fleet/status?project=proj-test1&locations=us-east1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["total"])

	counts := resp["state_counts"].(map[string]interface{})
	assert.Equal(t, float64(1), counts[workbench.StateActive])
	assert.Equal(t, float64(1), counts[workbench.StateStopped])

	instances := resp["instances"].([]interface{})
	require.Len(t, instances, 2)
	row := instances[0].(map[string]interface{})
	assert.Equal(t, "wb-a", row["name"])
	assert.Equal(t, "us-east1", row["location"])
	assert.Equal(t, "ready", row["lifecycle"])
}

func TestFleetStatusRequiresProjectAndLocations(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)
	router := fx.server.Router()

	rec := get(t, router, "/api/v1/fleet/status")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, router, "/api/v1/fleet/status?project=proj-test1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, router, "/api/v1/fleet/status?project=proj-test1&locations=US_EAST")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSystemHealthHealthy(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)

	rec := get(t, fx.server.Router(), "/api/v1/system/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])

	components := resp["components"].([]interface{})
	require.Len(t, components, 3)
}

func TestSystemMetricsSnapshot(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)
	router := fx.server.Router()

	created := postJSON(t, router, "/api/v1/runs", validRunBody())
	require.Equal(t, http.StatusCreated, created.Code)

	rec := get(t, router, "/api/v1/system/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	queue := resp["queue"].(map[string]interface{})
	assert.Equal(t, float64(1), queue["total_enqueued"])
	require.Contains(t, resp, "system")
}

func TestUnknownEndpointReturnsJSON404(t *testing.T) {
	t.Parallel()
	fx := newTestServer(t)

	rec := get(t, fx.server.Router(), "/api/v1/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
