package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mafu-labs/growthsim/internal/config"
	"github.com/mafu-labs/growthsim/internal/logging"
	"github.com/mafu-labs/growthsim/internal/optimization"
	"github.com/mafu-labs/growthsim/internal/optimization/simplex"
	"github.com/mafu-labs/growthsim/internal/registry"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	cfg, err := config.LoadFromMap(map[string]string{
		"ENV":       "test",
		"LOG_LEVEL": "error",
	})
	require.NoError(t, err)
	return cfg
}

// testLogger creates a test logger
func testLogger(t *testing.T) *logging.Logger {
	logger, err := logging.NewLogger(&logging.Config{
		Level:  "error",
		Format: "json",
		Output: "discard",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

// blockingSolver waits until its context is done.
var blockingSolver = optimization.SolverFunc(func(ctx context.Context, reg *registry.Registry, budget float64) (*optimization.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
})

type testServer struct {
	*Server
	router chi.Router
}

func newTestServer(t *testing.T, cfg *config.Config, solver optimization.Solver) *testServer {
	if cfg == nil {
		cfg = testConfig(t)
	}
	if solver == nil {
		solver = simplex.NewSolver(simplex.Config{})
	}
	srv := NewServer(cfg, testLogger(t), solver)
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	t.Cleanup(func() { srv.Close() })
	return &testServer{Server: srv, router: r}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)

	var decoded map[string]interface{}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	}
	return rr, decoded
}

func (ts *testServer) waitFor(t *testing.T, id string, want JobStatus) *SimulationStatus {
	t.Helper()
	var status *SimulationStatus
	require.Eventually(t, func() bool {
		var err error
		status, err = ts.simulationStatus(id)
		require.NoError(t, err)
		return status.Status == want
	}, 5*time.Second, 5*time.Millisecond, "simulation %s never reached %s", id, want)
	return status
}

func TestNewServer(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), simplex.NewSolver(simplex.Config{}))
	assert.NotNil(t, srv, "Server should be created")
	assert.NoError(t, srv.Close(), "Close should not return an error")
}

func TestRegisterRoutes(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/simulations", true},
		{"GET", "/api/v1/simulations/123", true},
		{"DELETE", "/api/v1/simulations/123", true},
		{"POST", "/api/v1/optimize", true},
		{"GET", "/api/v1/variables", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", false}, // Not registered by server package
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString("{}"))
			rr := httptest.NewRecorder()
			ts.router.ServeHTTP(rr, req)

			routed := rr.Code != http.StatusNotFound || rr.Header().Get("Content-Type") == "application/json"
			assert.Equal(t, tt.shouldExist, routed)
		})
	}
}

func TestOptimize(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rr, body := ts.do(t, http.MethodPost, "/api/v1/optimize", map[string]interface{}{"budget": 13})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 22.4, body["profit"], 1e-9)
	assert.Equal(t, "optimal", body["status"])

	allocations := body["allocations"].([]interface{})
	require.Len(t, allocations, 2)
	assert.Equal(t, float64(8), allocations[0].(map[string]interface{})["quantity"])
	assert.Equal(t, float64(5), allocations[1].(map[string]interface{})["quantity"])
}

func TestOptimizeCustomVariables(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rr, body := ts.do(t, http.MethodPost, "/api/v1/optimize", map[string]interface{}{
		"budget": 10,
		"variables": []map[string]interface{}{
			{"name": "loaf", "profit": 2, "multiplier": 3, "upperBound": 2},
			{"name": "roll", "profit": 0.5, "multiplier": 1},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	// Two loaves use 6, four rolls the remaining 4.
	assert.InDelta(t, 14.0, body["profit"], 1e-9)
}

func TestOptimizeErrors(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	tests := []struct {
		name string
		body interface{}
		code int
	}{
		{"negative budget", map[string]interface{}{"budget": -1}, http.StatusBadRequest},
		{"bad variable", map[string]interface{}{
			"budget":    5,
			"variables": []map[string]interface{}{{"name": "x", "profit": 1, "multiplier": 0}},
		}, http.StatusBadRequest},
		{"infeasible", map[string]interface{}{
			"budget":    2,
			"variables": []map[string]interface{}{{"name": "x", "profit": 1, "multiplier": 1, "lowerBound": 5}},
		}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := ts.do(t, http.MethodPost, "/api/v1/optimize", tt.body)
			assert.Equal(t, tt.code, rr.Code)
			assert.NotEmpty(t, body["error"])
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/optimize", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestVariables(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rr, body := ts.do(t, http.MethodGet, "/api/v1/variables", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	vars := body["variables"].([]interface{})
	require.Len(t, vars, 2)
	assert.Equal(t, "coffee cake", vars[0].(map[string]interface{})["name"])
}

func TestSimulationLifecycle(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rr, body := ts.do(t, http.MethodPost, "/api/v1/simulations", map[string]interface{}{
		"rootName": "R",
		"levels":   2,
		"step":     50,
	})
	require.Equal(t, http.StatusAccepted, rr.Code)
	id, _ := body["simulation_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "pending", body["status"])

	ts.waitFor(t, id, StatusCompleted)

	rr, body = ts.do(t, http.MethodGet, "/api/v1/simulations/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(13), body["expected_nodes"])
	assert.NotEmpty(t, body["end_time"])

	result := body["result"].(map[string]interface{})
	assert.Equal(t, float64(13), result["nodes"])
	assert.NotContains(t, result, "tree")
	summary := result["summary"].(map[string]interface{})
	assert.Contains(t, summary, "highestSavings")
	assert.Contains(t, summary, "highestProductivity")
	assert.Contains(t, summary, "highestTotal")

	// Finished jobs cannot be cancelled
	rr, _ = ts.do(t, http.MethodDelete, "/api/v1/simulations/"+id, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSimulationIncludeTree(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	state, err := ts.startSimulation(SimulationRequest{Levels: 1, Step: 100, IncludeTree: true})
	require.NoError(t, err)
	status := ts.waitFor(t, state.ID, StatusCompleted)
	require.NotNil(t, status.Result.Tree)
	assert.Equal(t, "Root", status.Result.Tree.Name)
	assert.Len(t, status.Result.Tree.Children, 2)
}

func TestStartSimulationRejectsInvalidRequests(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.MaxLevels = 4
	cfg.Simulation.MaxNodes = 1000
	ts := newTestServer(t, cfg, nil)

	tests := []struct {
		name string
		req  SimulationRequest
	}{
		{"zero step", SimulationRequest{Levels: 1, Step: 0}},
		{"step above 100", SimulationRequest{Levels: 1, Step: 101}},
		{"negative levels", SimulationRequest{Levels: -1, Step: 50}},
		{"too many levels", SimulationRequest{Levels: 5, Step: 50}},
		{"too many nodes", SimulationRequest{Levels: 4, Step: 10}},
		{"unknown policy", SimulationRequest{Levels: 1, Step: 50, FailurePolicy: "retry"}},
		{"underscored policy", SimulationRequest{Levels: 1, Step: 50, FailurePolicy: "zero_return"}},
		{"bad variables", SimulationRequest{Levels: 1, Step: 50, Variables: []registry.ProductionVariable{{Name: "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := ts.do(t, http.MethodPost, "/api/v1/simulations", tt.req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "invalid", body["kind"])
		})
	}

	ts.simulationsMu.RLock()
	defer ts.simulationsMu.RUnlock()
	assert.Empty(t, ts.simulations, "no job is registered for a rejected request")
}

func TestCancelSimulation(t *testing.T) {
	ts := newTestServer(t, nil, blockingSolver)

	state, err := ts.startSimulation(SimulationRequest{Levels: 2, Step: 50})
	require.NoError(t, err)
	ts.waitFor(t, state.ID, StatusRunning)

	rr, body := ts.do(t, http.MethodDelete, "/api/v1/simulations/"+state.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "cancellation requested", body["status"])

	status := ts.waitFor(t, state.ID, StatusCancelled)
	assert.Nil(t, status.Result)

	rr, _ = ts.do(t, http.MethodDelete, "/api/v1/simulations/"+state.ID, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, _ = ts.do(t, http.MethodDelete, "/api/v1/simulations/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSimulationFailure(t *testing.T) {
	failing := optimization.SolverFunc(func(ctx context.Context, reg *registry.Registry, budget float64) (*optimization.Result, error) {
		if budget > 0 {
			return nil, optimization.Failf(budget, "infeasible")
		}
		return &optimization.Result{}, nil
	})

	t.Run("abort", func(t *testing.T) {
		ts := newTestServer(t, nil, failing)
		state, err := ts.startSimulation(SimulationRequest{Levels: 1, Step: 50})
		require.NoError(t, err)
		status := ts.waitFor(t, state.ID, StatusFailed)
		assert.Contains(t, status.Error, "infeasible")
		assert.Nil(t, status.Result)
	})

	t.Run("zero return", func(t *testing.T) {
		ts := newTestServer(t, nil, failing)
		state, err := ts.startSimulation(SimulationRequest{Levels: 1, Step: 50, FailurePolicy: "zero"})
		require.NoError(t, err)
		status := ts.waitFor(t, state.ID, StatusCompleted)
		assert.Equal(t, 2, status.Result.Degraded)
	})
}

func TestSimulationTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.Timeout = 20 * time.Millisecond
	ts := newTestServer(t, cfg, blockingSolver)

	state, err := ts.startSimulation(SimulationRequest{Levels: 1, Step: 50})
	require.NoError(t, err)
	status := ts.waitFor(t, state.ID, StatusFailed)
	assert.Contains(t, status.Error, "deadline exceeded")
}

func TestFinishedSimulationsAreReaped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Jobs.Retention = time.Nanosecond
	ts := newTestServer(t, cfg, nil)

	first, err := ts.startSimulation(SimulationRequest{Levels: 0, Step: 50})
	require.NoError(t, err)
	ts.waitFor(t, first.ID, StatusCompleted)
	time.Sleep(time.Millisecond)

	_, err = ts.startSimulation(SimulationRequest{Levels: 0, Step: 50})
	require.NoError(t, err)

	rr, _ := ts.do(t, http.MethodGet, "/api/v1/simulations/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestJSONRPC(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rpc := func(t *testing.T, method string, params ...interface{}) map[string]interface{} {
		t.Helper()
		rr, body := ts.do(t, http.MethodPost, "/rpc", map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  method,
			"params":  params,
		})
		require.Equal(t, http.StatusOK, rr.Code)
		return body
	}

	t.Run("solve", func(t *testing.T) {
		body := rpc(t, "optimization.solve", map[string]interface{}{"budget": 16})
		result := body["result"].(map[string]interface{})
		assert.InDelta(t, 28.8, result["profit"], 1e-9)
		assert.Equal(t, float64(1), body["id"])
	})

	t.Run("simulation", func(t *testing.T) {
		body := rpc(t, "simulation.start", map[string]interface{}{"levels": 1, "step": 50})
		id := body["result"].(map[string]interface{})["simulation_id"].(string)

		ts.waitFor(t, id, StatusCompleted)
		body = rpc(t, "simulation.status", map[string]interface{}{"simulation_id": id})
		assert.Equal(t, "completed", body["result"].(map[string]interface{})["status"])

		body = rpc(t, "simulation.cancel", map[string]interface{}{"simulation_id": id})
		errObj := body["error"].(map[string]interface{})
		assert.Equal(t, float64(codeServerError), errObj["code"])
	})

	t.Run("invalid params", func(t *testing.T) {
		body := rpc(t, "simulation.start", map[string]interface{}{"levels": 1, "step": 0})
		errObj := body["error"].(map[string]interface{})
		assert.Equal(t, float64(codeInvalidParams), errObj["code"])

		body = rpc(t, "simulation.status")
		errObj = body["error"].(map[string]interface{})
		assert.Equal(t, float64(codeInvalidParams), errObj["code"])
	})

	t.Run("unknown method", func(t *testing.T) {
		body := rpc(t, "optimization.start")
		errObj := body["error"].(map[string]interface{})
		assert.Equal(t, float64(codeMethodNotFound), errObj["code"])
	})

	t.Run("wrong version", func(t *testing.T) {
		_, body := ts.do(t, http.MethodPost, "/rpc", map[string]interface{}{"jsonrpc": "1.0", "id": 7, "method": "optimization.solve"})
		errObj := body["error"].(map[string]interface{})
		assert.Equal(t, float64(codeInvalidRequest), errObj["code"])
	})

	t.Run("parse error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString("not json"))
		rr := httptest.NewRecorder()
		ts.router.ServeHTTP(rr, req)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, float64(codeParseError), body["error"].(map[string]interface{})["code"])
	})
}

func TestRespondWithError(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{
			name:       "valid error response",
			code:       codeInvalidParams,
			message:    "invalid input",
			id:         "123",
			expectedID: "123",
		},
		{
			name:       "nil id",
			code:       codeServerError,
			message:    "server error",
			id:         nil,
			expectedID: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			ts.respondWithError(rr, tt.code, tt.message, tt.id)

			// JSON-RPC errors travel in a 200 response
			assert.Equal(t, http.StatusOK, rr.Code, "status code should match")

			var response map[string]interface{}
			err := json.NewDecoder(rr.Body).Decode(&response)
			assert.NoError(t, err, "should decode response body")

			errObj, ok := response["error"].(map[string]interface{})
			assert.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"], "error code should match")
			assert.Equal(t, tt.message, errObj["message"], "error message should match")
			assert.Equal(t, tt.expectedID, response["id"], "response ID should match")
		})
	}
}
