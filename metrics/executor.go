package metrics

import (
	"context"
	"time"

	"github.com/isdmx/codegrader/sandbox"
)

// Executor records execution metrics around another sandbox.Executor
type Executor struct {
	next sandbox.Executor
}

// NewExecutor wraps next with execution metrics
func NewExecutor(next sandbox.Executor) *Executor {
	return &Executor{next: next}
}

func (e *Executor) Execute(ctx context.Context, code string, limits sandbox.Limits) (sandbox.ExecutionResult, error) {
	ActiveExecutions.Inc()
	defer ActiveExecutions.Dec()

	start := time.Now()
	result, err := e.next.Execute(ctx, code, limits)

	outcome := result.Outcome
	if err != nil {
		outcome = sandbox.OutcomeSandboxError
	}
	ExecutionsTotal.WithLabelValues(string(outcome)).Inc()
	ExecutionDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())

	return result, err
}
