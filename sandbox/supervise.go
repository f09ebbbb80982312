package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait blocks on output pipes held open by
// descendants after the direct child has exited.
const waitDelay = time.Second

// rlimits are the kernel resource limits applied to a host child process.
// Zero values are left unset.
type rlimits struct {
	addressSpaceBytes uint64
	cpuSeconds        uint64
	processes         uint64
	openFiles         uint64
	fileSizeBytes     uint64
}

// run describes one supervised child process
type run struct {
	cmd       *exec.Cmd
	limits    Limits
	rlimits   *rlimits
	maxOutput int64
	// onTimeout is invoked before the process group is killed
	onTimeout func()
}

// supervise starts the child in its own process group, waits for it with a
// deadline and always leaves no process of that group behind. The group is
// only signalled while its leader is unreaped, so the group id cannot have
// been recycled by another execution.
func supervise(ctx context.Context, r run) (ExecutionResult, error) {
	stdout := NewLimitedWriter(r.maxOutput)
	stderr := NewLimitedWriter(r.maxOutput)
	r.cmd.Stdout = stdout
	r.cmd.Stderr = stderr
	r.cmd.WaitDelay = waitDelay
	setProcessGroup(r.cmd)

	start := time.Now()
	if err := r.cmd.Start(); err != nil {
		return ExecutionResult{}, fmt.Errorf("%w: failed to start process: %v", ErrInfrastructure, err)
	}
	pid := r.cmd.Process.Pid

	if r.rlimits != nil {
		if err := applyRlimits(pid, *r.rlimits); err != nil {
			killGroup(pid)
			_ = r.cmd.Wait()
			return ExecutionResult{}, fmt.Errorf("%w: failed to apply resource limits: %v", ErrInfrastructure, err)
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- waitLeader(r.cmd)
	}()

	timer := time.NewTimer(r.limits.Timeout)
	defer timer.Stop()

	var (
		waitErr   error
		timedOut  bool
		cancelled bool
	)
	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		if r.onTimeout != nil {
			r.onTimeout()
		}
		killGroup(pid)
		waitErr = <-done
	case <-ctx.Done():
		cancelled = true
		if r.onTimeout != nil {
			r.onTimeout()
		}
		killGroup(pid)
		waitErr = <-done
	}

	result := ExecutionResult{
		Output:          normalizeOutput(stdout.String()),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		ExitCode:        -1,
		OutputTruncated: stdout.Exceeded(),
	}
	if state := r.cmd.ProcessState; state != nil {
		result.ExitCode = state.ExitCode()
		result.MemoryUsedKB = maxRSSKB(state)
	}

	var exitErr *exec.ExitError
	switch {
	case timedOut:
		result.TimedOut = true
		result.Outcome = OutcomeTimeout
		result.Error = fmt.Sprintf("execution timed out after %ss", formatSeconds(r.limits.Timeout))
	case cancelled:
		result.Outcome = OutcomeSandboxError
		result.Error = "execution cancelled"
		return result, fmt.Errorf("execution cancelled: %w", ctx.Err())
	case waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay):
		return ExecutionResult{}, fmt.Errorf("%w: failed to wait for process: %v", ErrInfrastructure, waitErr)
	case result.ExitCode == 0:
		result.Success = true
		result.Outcome = OutcomeOK
	default:
		result.Outcome = OutcomeProgramError
		result.Error = normalizeOutput(stderr.String())
		if result.Error == "" {
			result.Error = describeExit(r.cmd.ProcessState)
		}
	}

	return result, nil
}
