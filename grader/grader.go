package grader

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/isdmx/codegrader/config"
	"github.com/isdmx/codegrader/sandbox"
)

// Defaults used when no configuration is supplied
const (
	DefaultEntryFunction = "solution"
	DefaultParallelism   = 4
)

// TestCase is one input/expected-output pair
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Hidden         bool   `json:"hidden,omitempty"`
}

// TestCaseResult is the outcome of a single test case
type TestCaseResult struct {
	Input           string          `json:"input"`
	Expected        string          `json:"expected"`
	Actual          string          `json:"actual"`
	Passed          bool            `json:"passed"`
	Hidden          bool            `json:"hidden"`
	Error           string          `json:"error,omitempty"`
	TimedOut        bool            `json:"timed_out"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	Outcome         sandbox.Outcome `json:"outcome"`
}

// GradeReport aggregates the results of a grading run. Results follow the
// order of the submitted test cases.
type GradeReport struct {
	Passed    int              `json:"passed"`
	Total     int              `json:"total"`
	Score     int              `json:"score"`
	AllPassed bool             `json:"all_passed"`
	Results   []TestCaseResult `json:"results"`
}

// Runner executes test cases against a submission and scores the outputs
type Runner struct {
	logger           *zap.Logger
	executor         sandbox.Executor
	entryFunction    string
	parallelism      int
	allowContainment bool
}

// Option configures a Runner
type Option func(*Runner)

// WithEntryFunction sets the function invoked for argument-list inputs
func WithEntryFunction(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.entryFunction = name
		}
	}
}

// WithParallelism bounds how many test cases execute at once
func WithParallelism(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// WithContainment toggles the substring comparison rule
func WithContainment(allow bool) Option {
	return func(r *Runner) {
		r.allowContainment = allow
	}
}

// New creates a Runner
func New(logger *zap.Logger, executor sandbox.Executor, opts ...Option) *Runner {
	r := &Runner{
		logger:           logger,
		executor:         executor,
		entryFunction:    DefaultEntryFunction,
		parallelism:      DefaultParallelism,
		allowContainment: true,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// NewFromConfig creates a Runner from the grader section
func NewFromConfig(logger *zap.Logger, executor sandbox.Executor, cfg *config.Config) *Runner {
	return New(logger, executor,
		WithEntryFunction(cfg.Grader.EntryFunction),
		WithParallelism(cfg.Grader.Parallelism),
		WithContainment(cfg.Grader.AllowContainment),
	)
}

// RunTests executes every case in its own process. A failing case never
// stops the others.
func (r *Runner) RunTests(ctx context.Context, code string, cases []TestCase, limits sandbox.Limits) GradeReport {
	results := make([]TestCaseResult, len(cases))

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, tc := range cases {
		g.Go(func() error {
			results[i] = r.runCase(ctx, i, code, tc, limits)
			return nil
		})
	}
	_ = g.Wait()

	return newReport(results)
}

func (r *Runner) runCase(ctx context.Context, index int, code string, tc TestCase, limits sandbox.Limits) TestCaseResult {
	result, err := sandbox.ExecuteWithInput(ctx, r.executor, code, r.Invocation(tc.Input), limits)
	if err != nil {
		r.logger.Error("Test case execution failed",
			zap.Int("test_case", index+1),
			zap.Error(err),
		)
		result = sandbox.FailureResult(err)
	}

	tr := TestCaseResult{
		Input:           tc.Input,
		Expected:        tc.ExpectedOutput,
		Actual:          result.Output,
		Hidden:          tc.Hidden,
		Error:           result.Error,
		TimedOut:        result.TimedOut,
		ExecutionTimeMs: result.ExecutionTimeMs,
		Outcome:         result.Outcome,
	}
	tr.Passed = result.Success && Compare(tc.ExpectedOutput, result.Output, r.allowContainment)

	return tr
}

func newReport(results []TestCaseResult) GradeReport {
	report := GradeReport{
		Total:   len(results),
		Results: results,
	}
	for _, res := range results {
		if res.Passed {
			report.Passed++
		}
	}

	if report.Total > 0 {
		report.Score = report.Passed * 100 / report.Total
	}
	report.AllPassed = report.Total > 0 && report.Score == 100

	return report
}
