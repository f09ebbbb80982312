package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/isdmx/codegrader/config"
)

// ErrInfrastructure marks failures of the host to spawn or manage a child
// process. They say nothing about the submitted program.
var ErrInfrastructure = errors.New("sandbox infrastructure failure")

// Outcome classifies how an execution ended
type Outcome string

// Execution outcomes
const (
	OutcomeOK              Outcome = "ok"
	OutcomeProgramError    Outcome = "program_error"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeSandboxError    Outcome = "sandbox_error"
	OutcomeValidationError Outcome = "validation_error"
)

// Limits are per-execution overrides. Zero fields fall back to the
// configured defaults.
type Limits struct {
	Timeout  time.Duration
	MemoryMB int
}

// ExecutionResult represents the result of one execution attempt
type ExecutionResult struct {
	Success         bool    `json:"success"`
	Output          string  `json:"output"`
	Error           string  `json:"error,omitempty"`
	ExecutionTimeMs int64   `json:"execution_time_ms"`
	TimedOut        bool    `json:"timed_out"`
	MemoryUsedKB    int64   `json:"memory_used_kb,omitempty"`
	ExitCode        int     `json:"exit_code"`
	OutputTruncated bool    `json:"output_truncated,omitempty"`
	Outcome         Outcome `json:"outcome"`
}

// Executor runs already validated code in a fresh, isolated process
type Executor interface {
	Execute(ctx context.Context, code string, limits Limits) (ExecutionResult, error)
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // arguments are built by this package

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines the file system operations used for per-execution
// workspaces
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// File permission and size constants
const (
	FilePermission = 0600
	BytesPerKB     = 1024
	BytesPerMB     = 1024 * 1024
)

// ScriptName is the file the submission is written to inside its workspace
const ScriptName = "main.py"

// Config holds the executor configuration
type Config struct {
	PythonPath    string
	Image         string
	TimeoutSec    int
	MemoryMB      int
	MaxTimeoutSec int
	MaxMemoryMB   int
	MaxProcesses  int
	MaxOpenFiles  int
	MaxFileSizeKB int
	MaxOutputKB   int
	MaxConcurrent int
	TempDir       string
}

// NewConfig extracts the executor configuration from the application config
func NewConfig(cfg *config.Config) *Config {
	s := cfg.Sandbox
	return &Config{
		PythonPath:    s.PythonPath,
		Image:         s.Image,
		TimeoutSec:    s.TimeoutSec,
		MemoryMB:      s.MemoryMB,
		MaxTimeoutSec: s.MaxTimeoutSec,
		MaxMemoryMB:   s.MaxMemoryMB,
		MaxProcesses:  s.MaxProcesses,
		MaxOpenFiles:  s.MaxOpenFiles,
		MaxFileSizeKB: s.MaxFileSizeKB,
		MaxOutputKB:   s.MaxOutputKB,
		MaxConcurrent: s.MaxConcurrent,
		TempDir:       s.TempDir,
	}
}

// Resolve fills zero fields of l with defaults and clamps overrides to the
// configured maximums.
func (c *Config) Resolve(l Limits) Limits {
	if l.Timeout <= 0 {
		l.Timeout = time.Duration(c.TimeoutSec) * time.Second
	}
	if c.MaxTimeoutSec > 0 {
		if maxTimeout := time.Duration(c.MaxTimeoutSec) * time.Second; l.Timeout > maxTimeout {
			l.Timeout = maxTimeout
		}
	}

	if l.MemoryMB <= 0 {
		l.MemoryMB = c.MemoryMB
	}
	if c.MaxMemoryMB > 0 && l.MemoryMB > c.MaxMemoryMB {
		l.MemoryMB = c.MaxMemoryMB
	}

	return l
}

func (c *Config) maxOutputBytes() int64 {
	if c.MaxOutputKB <= 0 {
		return 64 * BytesPerKB
	}
	return int64(c.MaxOutputKB) * BytesPerKB
}

func (c *Config) concurrency() int64 {
	if c.MaxConcurrent <= 0 {
		return 1
	}
	return int64(c.MaxConcurrent)
}

// normalizeOutput converts CRLF to LF and drops trailing newlines
func normalizeOutput(s string) string {
	return strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// FailureResult converts an executor error into a result the caller can
// report. The error text never comes from the submitted program.
func FailureResult(err error) ExecutionResult {
	return ExecutionResult{
		Success:  false,
		Error:    "sandbox error: " + err.Error(),
		ExitCode: -1,
		Outcome:  OutcomeSandboxError,
	}
}
