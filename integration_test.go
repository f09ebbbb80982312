package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/codegrader/config"
	"github.com/isdmx/codegrader/grader"
	"github.com/isdmx/codegrader/httpapi"
	"github.com/isdmx/codegrader/logger"
	"github.com/isdmx/codegrader/mcpserver"
	"github.com/isdmx/codegrader/metrics"
	"github.com/isdmx/codegrader/sandbox"
	"github.com/isdmx/codegrader/service"
	"github.com/isdmx/codegrader/validator"
)

func integrationConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Transport: "stdio", HTTPPort: 8080},
		API:    config.APIConfig{Enabled: true, Port: 8081},
		Sandbox: config.SandboxConfig{
			Backend:       "process",
			PythonPath:    "python3",
			TimeoutSec:    5,
			MemoryMB:      128,
			MaxTimeoutSec: 10,
			MaxMemoryMB:   256,
			MaxOpenFiles:  64,
			MaxOutputKB:   64,
			MaxConcurrent: 2,
		},
		Validator: config.ValidatorConfig{AllowedModules: config.DefaultAllowedModules, MaxCodeBytes: 65536},
		Grader:    config.GraderConfig{EntryFunction: "solution", Parallelism: 2, AllowContainment: true},
		Logging:   config.LoggingConfig{Mode: "development", Level: "info"},
	}
}

// buildService wires the components the same way the server binary does
func buildService(t *testing.T, log *zap.Logger, cfg *config.Config) *service.Service {
	t.Helper()

	executor, err := sandbox.NewExecutor(log, cfg)
	require.NoError(t, err)
	instrumented := metrics.NewExecutor(executor)

	return service.New(log,
		validator.NewFromConfig(cfg),
		instrumented,
		grader.NewFromConfig(log, instrumented, cfg),
	)
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

// TestIntegrationWiring tests that config, logger, sandbox and both front ends fit together
func TestIntegrationWiring(t *testing.T) {
	t.Run("ConfigAndLogger", func(t *testing.T) {
		cfg := integrationConfig()
		log, err := logger.NewFromConfig(cfg)
		require.NoError(t, err)
		require.NotNil(t, log)
		log.Info("integration test started")
		_ = log.Sync()
	})

	t.Run("UnsupportedBackend", func(t *testing.T) {
		cfg := integrationConfig()
		cfg.Sandbox.Backend = "firecracker"

		_, err := sandbox.NewExecutor(zaptest.NewLogger(t), cfg)
		assert.Error(t, err)
	})

	t.Run("FrontEnds", func(t *testing.T) {
		log := zaptest.NewLogger(t)
		cfg := integrationConfig()
		svc := buildService(t, log, cfg)

		server, err := mcpserver.New(cfg, log, svc)
		require.NoError(t, err)
		assert.NotNil(t, server.GetMCPServer())

		router := httpapi.NewRouter(log, svc)
		srv := httpapi.NewServer(cfg, router)
		assert.Equal(t, ":8081", srv.Addr)
	})
}

// TestIntegrationREST drives the full pipeline through the REST API with a real interpreter
func TestIntegrationREST(t *testing.T) {
	requirePython(t)
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)
	cfg := integrationConfig()
	router := httpapi.NewRouter(log, buildService(t, log, cfg))

	post := func(t *testing.T, path string, body any) (int, map[string]any) {
		t.Helper()
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		req := httptest.NewRequestWithContext(context.Background(), http.MethodPost, path, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return w.Code, resp
	}

	t.Run("SubmitRunsCode", func(t *testing.T) {
		code, resp := post(t, "/v1/submit", map[string]any{"code": "print(sum(range(10)))"})
		require.Equal(t, http.StatusOK, code)

		execution, ok := resp["execution"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, execution["success"])
		assert.Equal(t, "45", execution["output"])
	})

	t.Run("SubmitRejectsUnsafeCode", func(t *testing.T) {
		code, resp := post(t, "/v1/submit", map[string]any{"code": "import subprocess\nsubprocess.run(['id'])\n"})
		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Nil(t, resp["execution"])
	})

	t.Run("RunTestsGrades", func(t *testing.T) {
		code, resp := post(t, "/v1/run-tests", map[string]any{
			"code": "def solution(a, b):\n    return a + b\n",
			"test_cases": []map[string]any{
				{"input": "solution(2, 3)", "expected_output": "5"},
				{"input": "1, 1", "expected_output": "2"},
				{"input": "solution(0, 0)", "expected_output": "1", "hidden": true},
			},
		})
		require.Equal(t, http.StatusOK, code)

		grade, ok := resp["grade"].(map[string]any)
		require.True(t, ok)
		assert.InDelta(t, 2, grade["passed"], 0)
		assert.InDelta(t, 3, grade["total"], 0)
		assert.InDelta(t, 66, grade["score"], 0)
		assert.Equal(t, false, grade["all_passed"])
	})

	t.Run("RunTestsTimeout", func(t *testing.T) {
		code, resp := post(t, "/v1/run-tests", map[string]any{
			"code":       "def solution():\n    while True:\n        pass\n",
			"test_cases": []map[string]any{{"input": "solution()", "expected_output": ""}},
			"timeout_s":  0.5,
		})
		require.Equal(t, http.StatusOK, code)

		grade, ok := resp["grade"].(map[string]any)
		require.True(t, ok)
		results, ok := grade["results"].([]any)
		require.True(t, ok)
		require.Len(t, results, 1)
		first, ok := results[0].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, false, first["passed"])
		assert.Equal(t, true, first["timed_out"])
	})

	t.Run("MetricsExposed", func(t *testing.T) {
		req := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/metrics", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "codegrader_executions_total")
	})
}
