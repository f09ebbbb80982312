package sandbox

import (
	"context"
	"strings"
)

// ResultVariable holds the return value of an invocation in the generated
// harness.
const ResultVariable = "_grader_result"

// InvocationStatement is the statement appended to a submission to evaluate
// call.
func InvocationStatement(call string) string {
	return ResultVariable + " = (" + call + ")"
}

// WithInvocation appends a harness to code that evaluates call and prints
// its value unless it is None.
func WithInvocation(code, call string) string {
	var b strings.Builder
	b.WriteString(code)
	b.WriteString("\n\n")
	b.WriteString(InvocationStatement(call))
	b.WriteString("\nif " + ResultVariable + " is not None:\n    print(" + ResultVariable + ")\n")
	return b.String()
}

// ExecuteWithInput runs code followed by an invocation of call. An empty
// call runs the program unchanged.
func ExecuteWithInput(ctx context.Context, executor Executor, code, call string, limits Limits) (ExecutionResult, error) {
	if strings.TrimSpace(call) == "" {
		return executor.Execute(ctx, code, limits)
	}
	return executor.Execute(ctx, WithInvocation(code, call), limits)
}
