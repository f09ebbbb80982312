// Package sandbox provides secure code execution capabilities.
//
// The sandbox package implements the execution engine for running untrusted
// Python code. Every execution gets a fresh interpreter process that is never
// reused. The ProcessExecutor runs the interpreter on the host with an empty
// environment, its own process group and kernel resource limits. The
// ContainerExecutor runs it in a throwaway Docker or Podman container with
// networking disabled and a read-only root filesystem.
//
// Executors only report infrastructure failures as errors, wrapped with
// ErrInfrastructure. Program failures, timeouts and resource exhaustion are
// described by the returned ExecutionResult.
//
// Usage:
//
//	executor, err := sandbox.NewExecutor(logger, cfg)
//	result, err := executor.Execute(ctx, "print('Hello, World!')", sandbox.Limits{
//	    Timeout: 5 * time.Second,
//	})
package sandbox
