package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ProcessExecutor runs each submission as a fresh host interpreter process
// with an empty environment, kernel resource limits and its own process
// group.
type ProcessExecutor struct {
	logger *zap.Logger
	config *Config
	fs     FileSystem
	slots  *semaphore.Weighted
}

// ProcessExecutorOption defines a functional option for ProcessExecutor
type ProcessExecutorOption func(*ProcessExecutor)

// WithProcessFileSystem sets the FileSystem for ProcessExecutor
func WithProcessFileSystem(fs FileSystem) ProcessExecutorOption {
	return func(p *ProcessExecutor) {
		p.fs = fs
	}
}

// NewProcessExecutor creates a new ProcessExecutor
func NewProcessExecutor(logger *zap.Logger, config *Config, opts ...ProcessExecutorOption) *ProcessExecutor {
	executor := &ProcessExecutor{
		logger: logger,
		config: config,
		fs:     &RealFileSystem{},
		slots:  semaphore.NewWeighted(config.concurrency()),
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute writes code to a private workspace and runs it once
func (p *ProcessExecutor) Execute(ctx context.Context, code string, limits Limits) (ExecutionResult, error) {
	limits = p.config.Resolve(limits)

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return ExecutionResult{}, fmt.Errorf("waiting for execution slot: %w", err)
	}
	defer p.slots.Release(1)

	id := uuid.NewString()
	workdir, err := p.fs.MkdirTemp(p.config.TempDir, "codegrader-"+id+"-*")
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("%w: failed to create workspace: %v", ErrInfrastructure, err)
	}
	defer func() {
		if removeErr := p.fs.RemoveAll(workdir); removeErr != nil {
			p.logger.Error("Failed to remove workspace", zap.String("path", workdir), zap.Error(removeErr))
		}
	}()

	if writeErr := p.fs.WriteFile(filepath.Join(workdir, ScriptName), []byte(code), FilePermission); writeErr != nil {
		return ExecutionResult{}, fmt.Errorf("%w: failed to write source: %v", ErrInfrastructure, writeErr)
	}

	python, err := exec.LookPath(p.config.PythonPath)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("%w: python interpreter %q not found: %v", ErrInfrastructure, p.config.PythonPath, err)
	}

	// -I isolates from PYTHON* variables, user site-packages and the script
	// directory. -B keeps the workspace free of bytecode files.
	cmd := exec.Command(python, "-I", "-B", ScriptName) //nolint:gosec // interpreter path comes from configuration
	cmd.Dir = workdir
	cmd.Env = []string{}

	p.logger.Debug("Executing submission",
		zap.String("execution_id", id),
		zap.Duration("timeout", limits.Timeout),
		zap.Int("memory_mb", limits.MemoryMB),
	)

	result, err := supervise(ctx, run{
		cmd:       cmd,
		limits:    limits,
		rlimits:   p.rlimits(limits),
		maxOutput: p.config.maxOutputBytes(),
	})
	if err != nil {
		p.logger.Warn("Execution failed", zap.String("execution_id", id), zap.Error(err))
		return result, err
	}

	p.logger.Debug("Execution finished",
		zap.String("execution_id", id),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("exit_code", result.ExitCode),
		zap.Int64("execution_time_ms", result.ExecutionTimeMs),
		zap.Int64("memory_used_kb", result.MemoryUsedKB),
	)

	return result, nil
}

func (p *ProcessExecutor) rlimits(limits Limits) *rlimits {
	cpu := uint64(limits.Timeout.Seconds()) + 1
	return &rlimits{
		addressSpaceBytes: uint64(limits.MemoryMB) * BytesPerMB,
		cpuSeconds:        cpu,
		processes:         uint64(max(p.config.MaxProcesses, 0)),
		openFiles:         uint64(max(p.config.MaxOpenFiles, 0)),
		fileSizeBytes:     uint64(max(p.config.MaxFileSizeKB, 0)) * BytesPerKB,
	}
}
