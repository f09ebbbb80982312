package sandbox

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/codegrader/config"
)

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	mu       sync.Mutex
	calls    [][]string
	stderr   string
	exitCode int
	err      error
}

func (m *MockCommandRunner) RunCommand(_ context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, args)
	return "", m.stderr, m.exitCode, m.err
}

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	mkdirTempErr  error
	writeFileErr  error
	removeAllErr  error
	writeFileData map[string][]byte
	removed       []string
}

func (m *MockFileSystem) MkdirTemp(_, _ string) (string, error) {
	if m.mkdirTempErr != nil {
		return "", m.mkdirTempErr
	}
	return "/tmp/test", nil
}

func (m *MockFileSystem) WriteFile(filename string, data []byte, _ os.FileMode) error {
	if m.writeFileErr != nil {
		return m.writeFileErr
	}
	if m.writeFileData == nil {
		m.writeFileData = make(map[string][]byte)
	}
	m.writeFileData[filename] = data
	return nil
}

func (m *MockFileSystem) RemoveAll(path string) error {
	m.removed = append(m.removed, path)
	return m.removeAllErr
}

func testConfig() *Config {
	return &Config{
		PythonPath:    "python3",
		Image:         "python:3.11-slim",
		TimeoutSec:    5,
		MemoryMB:      128,
		MaxTimeoutSec: 30,
		MaxMemoryMB:   512,
		MaxOpenFiles:  64,
		MaxFileSizeKB: 1024,
		MaxOutputKB:   64,
		MaxConcurrent: 4,
	}
}

func TestConfigResolve(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name     string
		in       Limits
		expected Limits
	}{
		{"Defaults", Limits{}, Limits{Timeout: 5 * time.Second, MemoryMB: 128}},
		{"Overrides", Limits{Timeout: 2 * time.Second, MemoryMB: 256}, Limits{Timeout: 2 * time.Second, MemoryMB: 256}},
		{"ClampedTimeout", Limits{Timeout: time.Hour}, Limits{Timeout: 30 * time.Second, MemoryMB: 128}},
		{"ClampedMemory", Limits{MemoryMB: 4096}, Limits{Timeout: 5 * time.Second, MemoryMB: 512}},
		{"NegativeUsesDefaults", Limits{Timeout: -time.Second, MemoryMB: -1}, Limits{Timeout: 5 * time.Second, MemoryMB: 128}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cfg.Resolve(tt.in))
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := &config.Config{
		Sandbox: config.SandboxConfig{
			PythonPath:    "/usr/bin/python3",
			TimeoutSec:    3,
			MemoryMB:      64,
			MaxOutputKB:   8,
			MaxConcurrent: 2,
		},
	}

	c := NewConfig(cfg)
	assert.Equal(t, "/usr/bin/python3", c.PythonPath)
	assert.Equal(t, 3, c.TimeoutSec)
	assert.Equal(t, 64, c.MemoryMB)
	assert.Equal(t, int64(8*BytesPerKB), c.maxOutputBytes())
	assert.Equal(t, int64(2), c.concurrency())
}

func TestLimitedWriter(t *testing.T) {
	t.Run("UnderLimit", func(t *testing.T) {
		w := NewLimitedWriter(10)
		n, err := w.Write([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "hello", w.String())
		assert.False(t, w.Exceeded())
	})

	t.Run("OverLimit", func(t *testing.T) {
		w := NewLimitedWriter(4)
		n, err := w.Write([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		_, err = w.Write([]byte("more"))
		require.NoError(t, err)
		assert.True(t, w.Exceeded())
		assert.Equal(t, "hell"+truncatedMarker, w.String())
	})
}

func TestNormalizeOutput(t *testing.T) {
	assert.Equal(t, "a\nb", normalizeOutput("a\r\nb\r\n\n"))
	assert.Equal(t, "", normalizeOutput("\n"))
	assert.Equal(t, "  x", normalizeOutput("  x\n"))
}

func TestWithInvocation(t *testing.T) {
	code := "def solution(a, b):\n    return a + b"
	got := WithInvocation(code, "solution(2, 3)")

	assert.True(t, strings.HasPrefix(got, code+"\n\n"))
	assert.Contains(t, got, ResultVariable+" = (solution(2, 3))\n")
	assert.Contains(t, got, "if "+ResultVariable+" is not None:\n    print("+ResultVariable+")\n")
}

// recordingExecutor captures the code it was asked to run
type recordingExecutor struct {
	code string
}

func (r *recordingExecutor) Execute(_ context.Context, code string, _ Limits) (ExecutionResult, error) {
	r.code = code
	return ExecutionResult{Success: true, Outcome: OutcomeOK}, nil
}

func TestExecuteWithInput(t *testing.T) {
	rec := &recordingExecutor{}

	_, err := ExecuteWithInput(context.Background(), rec, "print(1)", "  ", Limits{})
	require.NoError(t, err)
	assert.Equal(t, "print(1)", rec.code)

	_, err = ExecuteWithInput(context.Background(), rec, "def f():\n    return 1", "f()", Limits{})
	require.NoError(t, err)
	assert.Equal(t, WithInvocation("def f():\n    return 1", "f()"), rec.code)
}

func TestProcessExecutorConstructors(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()

	t.Run("DefaultConstructor", func(t *testing.T) {
		executor := NewProcessExecutor(logger, cfg)
		require.NotNil(t, executor)
		assert.Equal(t, cfg, executor.config)
		assert.NotNil(t, executor.fs)
		assert.NotNil(t, executor.slots)
	})

	t.Run("ConstructorWithOptions", func(t *testing.T) {
		mockFS := &MockFileSystem{}
		executor := NewProcessExecutor(logger, cfg, WithProcessFileSystem(mockFS))
		assert.Equal(t, mockFS, executor.fs)
	})
}

func TestProcessExecutorWorkspaceFailures(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("MkdirTemp", func(t *testing.T) {
		mockFS := &MockFileSystem{mkdirTempErr: errors.New("disk full")}
		executor := NewProcessExecutor(logger, testConfig(), WithProcessFileSystem(mockFS))

		_, err := executor.Execute(context.Background(), "print(1)", Limits{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInfrastructure)
		assert.Empty(t, mockFS.removed)
	})

	t.Run("WriteFileStillCleansUp", func(t *testing.T) {
		mockFS := &MockFileSystem{writeFileErr: errors.New("read-only")}
		executor := NewProcessExecutor(logger, testConfig(), WithProcessFileSystem(mockFS))

		_, err := executor.Execute(context.Background(), "print(1)", Limits{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInfrastructure)
		assert.Equal(t, []string{"/tmp/test"}, mockFS.removed)
	})

	t.Run("MissingInterpreter", func(t *testing.T) {
		cfg := testConfig()
		cfg.PythonPath = "codegrader-no-such-python"
		mockFS := &MockFileSystem{}
		executor := NewProcessExecutor(logger, cfg, WithProcessFileSystem(mockFS))

		_, err := executor.Execute(context.Background(), "print(1)", Limits{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInfrastructure)
		assert.Equal(t, []byte("print(1)"), mockFS.writeFileData["/tmp/test/"+ScriptName])
		assert.Equal(t, []string{"/tmp/test"}, mockFS.removed)
	})

	t.Run("CancelledWhileWaitingForSlot", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxConcurrent = 1
		mockFS := &MockFileSystem{}
		executor := NewProcessExecutor(logger, cfg, WithProcessFileSystem(mockFS))
		require.True(t, executor.slots.TryAcquire(1))
		defer executor.slots.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := executor.Execute(ctx, "print(1)", Limits{})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Empty(t, mockFS.writeFileData)
	})
}

func TestContainerExecutorRunArgs(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	cfg.MaxProcesses = 32

	for _, runtime := range []string{RuntimeDocker, RuntimePodman} {
		t.Run(runtime, func(t *testing.T) {
			executor := NewContainerExecutor(logger, cfg, runtime)
			args := executor.runArgs("codegrader-test", Limits{Timeout: 2 * time.Second, MemoryMB: 64})
			joined := strings.Join(args, " ")

			assert.Equal(t, runtime, args[0])
			assert.Equal(t, "run", args[1])
			assert.Contains(t, joined, "--rm -i")
			assert.Contains(t, joined, "--name codegrader-test")
			assert.Contains(t, joined, "--network none")
			assert.Contains(t, joined, "--memory 64m")
			assert.Contains(t, joined, "--memory-swap 64m")
			assert.Contains(t, joined, "--read-only")
			assert.Contains(t, joined, "--cap-drop ALL")
			assert.Contains(t, joined, "--user nobody")
			assert.Contains(t, joined, "--ulimit cpu=3:3")
			assert.Contains(t, joined, "--pids-limit 32")
			assert.Contains(t, joined, "--ulimit nofile=64:64")
			assert.Contains(t, joined, "--ulimit fsize=1048576:1048576")
			assert.NotContains(t, joined, " -v ")
			assert.Equal(t, []string{"python:3.11-slim", "python3", "-I", "-B", "-"}, args[len(args)-5:])
		})
	}
}

func TestContainerExecutorKill(t *testing.T) {
	logger := zaptest.NewLogger(t)
	mockRunner := &MockCommandRunner{exitCode: 1, stderr: "No such container"}
	executor := NewContainerExecutor(logger, testConfig(), RuntimePodman, WithContainerCommandRunner(mockRunner))

	executor.kill("codegrader-abc")

	require.Len(t, mockRunner.calls, 1)
	assert.Equal(t, []string{"podman", "kill", "codegrader-abc"}, mockRunner.calls[0])
}

func TestNewExecutor(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		backend  string
		expected any
		hasError bool
	}{
		{"process", &ProcessExecutor{}, false},
		{"docker", &ContainerExecutor{}, false},
		{"podman", &ContainerExecutor{}, false},
		{"firecracker", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := &config.Config{Sandbox: config.SandboxConfig{Backend: tt.backend, MaxConcurrent: 1}}
			executor, err := NewExecutor(logger, cfg)
			if tt.hasError {
				require.Error(t, err)
				assert.Nil(t, executor)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.expected, executor)
		})
	}

	t.Run("ContainerRuntime", func(t *testing.T) {
		cfg := &config.Config{Sandbox: config.SandboxConfig{Backend: "podman", MaxConcurrent: 1}}
		executor, err := NewExecutor(logger, cfg)
		require.NoError(t, err)
		assert.Equal(t, RuntimePodman, executor.(*ContainerExecutor).runtime)
	})
}
