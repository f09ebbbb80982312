package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/codegrader/config"
	"github.com/isdmx/codegrader/grader"
	"github.com/isdmx/codegrader/sandbox"
	"github.com/isdmx/codegrader/service"
	"github.com/isdmx/codegrader/validator"
)

// MockExecutor implements sandbox.Executor for testing
type MockExecutor struct {
	calls      atomic.Int32
	lastLimits sandbox.Limits
}

func (m *MockExecutor) Execute(_ context.Context, _ string, limits sandbox.Limits) (sandbox.ExecutionResult, error) {
	m.calls.Add(1)
	m.lastLimits = limits
	return sandbox.ExecutionResult{Success: true, Output: "5", Outcome: sandbox.OutcomeOK}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *MockExecutor) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	executor := &MockExecutor{}
	v := validator.New(strings.Split(config.DefaultAllowedModules, ","))
	svc := service.New(logger, v, executor, grader.New(logger, executor, grader.WithParallelism(1)))

	return NewRouter(logger, svc), executor
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestValidateEndpoint(t *testing.T) {
	router, executor := newTestRouter(t)

	t.Run("Safe", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/validate", `{"code":"print(1)"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var r validator.ValidationResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
		assert.True(t, r.Safe)
		assert.Empty(t, r.Issues)
	})

	t.Run("UnsafeIsStillOK", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/validate", `{"code":"import os"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, false, body["safe"])
		assert.Equal(t, []any{"os"}, body["blocked_imports"])
		assert.Equal(t, []any{}, body["blocked_operations"])
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/validate", `{"code":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid request")
	})

	assert.Equal(t, int32(0), executor.calls.Load())
}

func TestSubmitEndpoint(t *testing.T) {
	t.Run("Executes", func(t *testing.T) {
		router, executor := newTestRouter(t)

		w := doJSON(t, router, http.MethodPost, "/v1/submit", `{"code":"print(5)","timeout_s":2,"memory_mb":64}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp service.SubmitResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Execution)
		assert.Equal(t, "5", resp.Execution.Output)
		assert.Equal(t, sandbox.OutcomeOK, resp.Outcome)
		assert.Equal(t, int32(1), executor.calls.Load())
		assert.Equal(t, sandbox.Limits{Timeout: 2 * time.Second, MemoryMB: 64}, executor.lastLimits)
	})

	t.Run("UnsafeCode", func(t *testing.T) {
		router, executor := newTestRouter(t)

		w := doJSON(t, router, http.MethodPost, "/v1/submit", `{"code":"import subprocess"}`)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "validation_error", body["outcome"])
		assert.NotContains(t, body, "execution")
		assert.Equal(t, int32(0), executor.calls.Load())
	})

	t.Run("NegativeTimeout", func(t *testing.T) {
		router, executor := newTestRouter(t)

		w := doJSON(t, router, http.MethodPost, "/v1/submit", `{"code":"print(1)","timeout_s":-1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, int32(0), executor.calls.Load())
	})
}

func TestRunTestsEndpoint(t *testing.T) {
	router, executor := newTestRouter(t)

	t.Run("Grades", func(t *testing.T) {
		body := `{"code":"def solution(a, b):\n    return a + b\n","test_cases":[` +
			`{"input":"solution(2,3)","expected_output":"5"},` +
			`{"input":"solution(2,4)","expected_output":"6","hidden":true}]}`
		w := doJSON(t, router, http.MethodPost, "/v1/run-tests", body)
		require.Equal(t, http.StatusOK, w.Code)

		var resp service.TestsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Grade)
		assert.Equal(t, 1, resp.Grade.Passed)
		assert.Equal(t, 2, resp.Grade.Total)
		assert.Equal(t, 50, resp.Grade.Score)
		assert.True(t, resp.Grade.Results[1].Hidden)
	})

	t.Run("MissingTestCases", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/v1/run-tests", `{"code":"print(1)"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnsafeInput", func(t *testing.T) {
		before := executor.calls.Load()
		body := `{"code":"def solution(x):\n    return x\n","test_cases":[{"input":"eval('1')","expected_output":"1"}]}`
		w := doJSON(t, router, http.MethodPost, "/v1/run-tests", body)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, before, executor.calls.Load())
	})
}

func TestSubmissionsEndpoint(t *testing.T) {
	router, executor := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/submissions", `{"code":"print(5)","limits":{"timeout_s":1.5}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp service.SubmitResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Execution)
	assert.Nil(t, resp.Grade)
	assert.Equal(t, 1500*time.Millisecond, executor.lastLimits.Timeout)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/v1/validate", `{"code":"print(1)"}`)
	w := doJSON(t, router, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "codegrader_http_requests_total")
	assert.Contains(t, w.Body.String(), `route="/v1/validate"`)
}

func TestNewServer(t *testing.T) {
	router, _ := newTestRouter(t)
	srv := NewServer(&config.Config{API: config.APIConfig{Port: 9090}}, router)

	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, router, srv.Handler)
}
