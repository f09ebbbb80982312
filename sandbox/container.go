package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Supported container runtimes
const (
	RuntimeDocker = "docker"
	RuntimePodman = "podman"
)

const containerKillTimeout = 10 * time.Second

// ContainerExecutor runs each submission in a throwaway Docker or Podman
// container. The source is piped to the interpreter over stdin, so nothing
// from the host filesystem is mounted.
type ContainerExecutor struct {
	logger    *zap.Logger
	config    *Config
	runtime   string
	cmdRunner CommandRunner
	slots     *semaphore.Weighted
}

// ContainerExecutorOption defines a functional option for ContainerExecutor
type ContainerExecutorOption func(*ContainerExecutor)

// WithContainerCommandRunner sets the CommandRunner used for container
// management commands
func WithContainerCommandRunner(cmdRunner CommandRunner) ContainerExecutorOption {
	return func(c *ContainerExecutor) {
		c.cmdRunner = cmdRunner
	}
}

// NewContainerExecutor creates a ContainerExecutor for the given runtime
func NewContainerExecutor(logger *zap.Logger, config *Config, runtime string, opts ...ContainerExecutorOption) *ContainerExecutor {
	executor := &ContainerExecutor{
		logger:    logger,
		config:    config,
		runtime:   runtime,
		cmdRunner: &RealCommandRunner{},
		slots:     semaphore.NewWeighted(config.concurrency()),
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs code once in a new container
func (c *ContainerExecutor) Execute(ctx context.Context, code string, limits Limits) (ExecutionResult, error) {
	limits = c.config.Resolve(limits)

	if err := c.slots.Acquire(ctx, 1); err != nil {
		return ExecutionResult{}, fmt.Errorf("waiting for execution slot: %w", err)
	}
	defer c.slots.Release(1)

	name := "codegrader-" + uuid.NewString()
	args := c.runArgs(name, limits)

	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec // arguments are built by this package
	// The environment reaches the runtime client only, never the container.
	cmd.Env = os.Environ()
	cmd.Stdin = strings.NewReader(code)

	c.logger.Debug("Executing submission in container",
		zap.String("runtime", c.runtime),
		zap.String("container", name),
		zap.Duration("timeout", limits.Timeout),
		zap.Int("memory_mb", limits.MemoryMB),
	)

	result, err := supervise(ctx, run{
		cmd:       cmd,
		limits:    limits,
		maxOutput: c.config.maxOutputBytes(),
		onTimeout: func() { c.kill(name) },
	})
	if err != nil {
		c.logger.Warn("Container execution failed", zap.String("container", name), zap.Error(err))
		return result, err
	}

	// The runtime client reports its own failures with exit code 125.
	if result.Outcome == OutcomeProgramError && result.ExitCode == 125 {
		return result, fmt.Errorf("%w: %s run failed: %s", ErrInfrastructure, c.runtime, result.Error)
	}

	return result, nil
}

func (c *ContainerExecutor) runArgs(name string, limits Limits) []string {
	cpu := int(limits.Timeout.Seconds()) + 1
	args := []string{
		c.runtime, "run",
		"--rm",
		"-i",
		"--name", name,
		"--network", "none",
		"--memory", fmt.Sprintf("%dm", limits.MemoryMB),
		"--memory-swap", fmt.Sprintf("%dm", limits.MemoryMB),
		"--read-only",
		"--tmpfs", "/tmp:rw,size=16m",
		"--workdir", "/tmp",
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL",
		"--user", "nobody",
		"--ulimit", fmt.Sprintf("cpu=%d:%d", cpu, cpu),
		"--ulimit", "core=0:0",
	}

	if c.config.MaxProcesses > 0 {
		args = append(args, "--pids-limit", fmt.Sprintf("%d", c.config.MaxProcesses))
	}
	if c.config.MaxOpenFiles > 0 {
		args = append(args, "--ulimit", fmt.Sprintf("nofile=%d:%d", c.config.MaxOpenFiles, c.config.MaxOpenFiles))
	}
	if c.config.MaxFileSizeKB > 0 {
		size := c.config.MaxFileSizeKB * BytesPerKB
		args = append(args, "--ulimit", fmt.Sprintf("fsize=%d:%d", size, size))
	}

	return append(args, c.config.Image, "python3", "-I", "-B", "-")
}

// kill stops a container that outlived its deadline. Killing the client
// process alone would leave the container running.
func (c *ContainerExecutor) kill(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), containerKillTimeout)
	defer cancel()

	_, stderr, exitCode, err := c.cmdRunner.RunCommand(ctx, []string{c.runtime, "kill", name})
	if err != nil || exitCode != 0 {
		c.logger.Warn("Failed to kill container after timeout",
			zap.String("container", name),
			zap.Int("exit_code", exitCode),
			zap.String("stderr", stderr),
			zap.Error(err),
		)
	}
}
