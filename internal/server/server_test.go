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

	"github.com/fincast/fincast/internal/config"
	"github.com/fincast/fincast/internal/ensemble"
	"github.com/fincast/fincast/internal/logging"
	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second

	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "console"
	cfg.Logging.Output = "stdout"

	cfg.Optimization.DefaultBudget = 60
	cfg.Optimization.PenaltyWeight = 0.1
	cfg.Optimization.MaxWorkers = 2
	cfg.Optimization.MaxConcurrentJobs = 4
	cfg.Optimization.AllocationPolicy = "auto"

	return cfg
}

// testLogger creates a test logger
func testLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.NewLogger(&logging.Config{
		Level:  "error",
		Format: "console",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

func testServer(t *testing.T) (*Server, chi.Router) {
	t.Helper()

	evaluator := optimization.EvaluatorFunc(func(_ context.Context, a params.Assignment, _ string) float64 {
		x, _ := a.Get("pricing.base")
		return -(x - 1) * (x - 1)
	})
	opt := ensemble.New(evaluator, "net_revenue", nil, nil, nil, nil)

	srv := NewServer(testConfig(t), testLogger(t), opt)
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r
}

func optimizeBody(t *testing.T) *bytes.Buffer {
	t.Helper()

	body, err := json.Marshal(OptimizeRequest{
		Space:  map[string]params.Bounds{"pricing.base": {Min: 0, Max: 1.5}},
		Budget: 40,
		Policy: "sequential",
		Seed:   7,
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestNewServer(t *testing.T) {
	srv, _ := testServer(t)
	assert.NotNil(t, srv, "Server should be created")
}

func TestOptimizeLifecycle(t *testing.T) {
	_, r := testServer(t)

	req := httptest.NewRequest("POST", "/api/v1/optimize", optimizeBody(t))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var accepted map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&accepted))
	jobID := accepted["job_id"]
	require.NotEmpty(t, jobID)
	assert.Equal(t, StatusPending, accepted["status"])

	deadline := time.Now().Add(30 * time.Second)
	var status map[string]interface{}
	for {
		req = httptest.NewRequest("GET", "/api/v1/status/"+jobID, nil)
		rr = httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		status = map[string]interface{}{}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
		if status["status"] == StatusCompleted || status["status"] == StatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, last status: %v", status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	require.Equal(t, StatusCompleted, status["status"])
	result, ok := status["result"].(map[string]interface{})
	require.True(t, ok, "completed job should carry a result")
	assert.NotEmpty(t, result["provenance"])
}

func TestOptimizeRejectsInvalidSpace(t *testing.T) {
	_, r := testServer(t)

	body, _ := json.Marshal(OptimizeRequest{
		Space: map[string]params.Bounds{"x": {Min: 5, Max: 1}},
	})
	req := httptest.NewRequest("POST", "/api/v1/optimize", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatusUnknownJob(t *testing.T) {
	_, r := testServer(t)

	req := httptest.NewRequest("GET", "/api/v1/status/does-not-exist", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCancel(t *testing.T) {
	_, r := testServer(t)

	req := httptest.NewRequest("POST", "/api/v1/optimize", optimizeBody(t))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var accepted map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&accepted))

	req = httptest.NewRequest("DELETE", "/api/v1/optimization/"+accepted["job_id"], nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	// The job may already be done; both outcomes are legitimate.
	assert.Contains(t, []int{http.StatusOK, http.StatusConflict}, rr.Code)
}

func TestCancelUnknownJob(t *testing.T) {
	_, r := testServer(t)

	req := httptest.NewRequest("DELETE", "/api/v1/optimization/nope", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecommend(t *testing.T) {
	_, r := testServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"space": map[string]params.Bounds{
			"pricing.base":   {Min: 0, Max: 1.5},
			"pricing.spread": {Min: 0, Max: 1.5},
		},
		"budget": 100,
	})
	req := httptest.NewRequest("POST", "/api/v1/recommend", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var response struct {
		Recommendations []map[string]interface{} `json:"recommendations"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	assert.Len(t, response.Recommendations, 3)
}

func TestClose(t *testing.T) {
	srv, _ := testServer(t)
	assert.NoError(t, srv.Close(), "Close should not return an error")
}
