package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/codegrader/grader"
	"github.com/isdmx/codegrader/metrics"
	"github.com/isdmx/codegrader/sandbox"
	"github.com/isdmx/codegrader/validator"
)

// Operation names used in logs and metrics
const (
	OpValidate = "validate_code"
	OpSubmit   = "submit_code"
	OpRunTests = "run_tests"
)

// Limits are caller-supplied execution overrides. Zero fields use the
// configured defaults.
type Limits struct {
	TimeoutS float64 `json:"timeout_s,omitempty"`
	MemoryMB int     `json:"memory_mb,omitempty"`
}

// ToSandbox converts l to executor limits
func (l *Limits) ToSandbox() sandbox.Limits {
	if l == nil {
		return sandbox.Limits{}
	}
	return sandbox.Limits{
		Timeout:  time.Duration(l.TimeoutS * float64(time.Second)),
		MemoryMB: l.MemoryMB,
	}
}

// SubmissionRequest is a request to run code once or grade it
type SubmissionRequest struct {
	Code      string            `json:"code"`
	TestCases []grader.TestCase `json:"test_cases,omitempty"`
	Limits    *Limits           `json:"limits,omitempty"`
}

// SubmitResponse is the result of a single execution. Execution is nil when
// the code was rejected.
type SubmitResponse struct {
	Validation validator.ValidationResult `json:"validation"`
	Execution  *sandbox.ExecutionResult   `json:"execution,omitempty"`
	Outcome    sandbox.Outcome            `json:"outcome"`
}

// TestsResponse is the result of a grading run. Grade is nil when the code
// or a test input was rejected.
type TestsResponse struct {
	Validation validator.ValidationResult `json:"validation"`
	Grade      *grader.GradeReport        `json:"grade,omitempty"`
	Outcome    sandbox.Outcome            `json:"outcome"`
}

// SubmitResult is the combined result of Submit
type SubmitResult struct {
	Validation validator.ValidationResult `json:"validation"`
	Execution  *sandbox.ExecutionResult   `json:"execution,omitempty"`
	Grade      *grader.GradeReport        `json:"grade,omitempty"`
	Outcome    sandbox.Outcome            `json:"outcome"`
}

// Service is the entry point for validating, executing and grading code.
// Nothing reaches the executor without a safe verdict.
type Service struct {
	logger    *zap.Logger
	validator *validator.Validator
	executor  sandbox.Executor
	grader    *grader.Runner
}

// New creates a Service
func New(logger *zap.Logger, v *validator.Validator, executor sandbox.Executor, runner *grader.Runner) *Service {
	return &Service{
		logger:    logger,
		validator: v,
		executor:  executor,
		grader:    runner,
	}
}

// ValidateCode statically checks code without running it
func (s *Service) ValidateCode(code string) validator.ValidationResult {
	result := s.validate(code)
	metrics.SubmissionsTotal.WithLabelValues(OpValidate, verdict(result)).Inc()
	return result
}

// SubmitCode validates code and, when it is safe, executes it once
func (s *Service) SubmitCode(ctx context.Context, code string, limits sandbox.Limits) SubmitResponse {
	start := time.Now()

	validation := s.validate(code)
	if !validation.Safe {
		s.finish(OpSubmit, sandbox.OutcomeValidationError, start)
		return SubmitResponse{Validation: validation, Outcome: sandbox.OutcomeValidationError}
	}

	execution := s.execute(ctx, code, limits)
	s.finish(OpSubmit, execution.Outcome, start)

	return SubmitResponse{
		Validation: validation,
		Execution:  &execution,
		Outcome:    execution.Outcome,
	}
}

// RunTests validates code and every generated test invocation, then grades
// the code against cases.
func (s *Service) RunTests(ctx context.Context, code string, cases []grader.TestCase, limits sandbox.Limits) TestsResponse {
	start := time.Now()

	validation := s.validate(code)
	if validation.Safe {
		validation = s.validateInvocations(validation, cases)
	}
	if !validation.Safe {
		s.finish(OpRunTests, sandbox.OutcomeValidationError, start)
		return TestsResponse{Validation: validation, Outcome: sandbox.OutcomeValidationError}
	}

	report := s.grader.RunTests(ctx, code, cases, limits)
	for _, r := range report.Results {
		if r.Passed {
			metrics.TestCasesTotal.WithLabelValues("passed").Inc()
		} else {
			metrics.TestCasesTotal.WithLabelValues("failed").Inc()
		}
	}

	outcome := sandbox.OutcomeOK
	if report.Total > 0 && !report.AllPassed {
		outcome = sandbox.OutcomeProgramError
	}
	s.logger.Info("Graded submission",
		zap.Int("passed", report.Passed),
		zap.Int("total", report.Total),
		zap.Int("score", report.Score),
	)
	s.finish(OpRunTests, outcome, start)

	return TestsResponse{
		Validation: validation,
		Grade:      &report,
		Outcome:    outcome,
	}
}

// Submit validates first, then grades when test cases are given and
// executes once otherwise.
func (s *Service) Submit(ctx context.Context, req SubmissionRequest) SubmitResult {
	limits := req.Limits.ToSandbox()

	if len(req.TestCases) > 0 {
		resp := s.RunTests(ctx, req.Code, req.TestCases, limits)
		return SubmitResult{Validation: resp.Validation, Grade: resp.Grade, Outcome: resp.Outcome}
	}

	resp := s.SubmitCode(ctx, req.Code, limits)
	return SubmitResult{Validation: resp.Validation, Execution: resp.Execution, Outcome: resp.Outcome}
}

func (s *Service) validate(code string) validator.ValidationResult {
	result := s.validator.Validate(code)

	metrics.ValidationsTotal.WithLabelValues(verdict(result)).Inc()
	for _, issue := range result.Issues {
		metrics.BlockedIssuesTotal.WithLabelValues(string(issue.Kind)).Inc()
	}
	if !result.Safe {
		s.logger.Info("Rejected submission",
			zap.Int("issues", len(result.Issues)),
			zap.Strings("blocked_imports", result.BlockedImports),
			zap.Strings("blocked_operations", result.BlockedOperations),
		)
	}

	return result
}

// validateInvocations checks the statement generated for each test input,
// so an input cannot introduce what the code itself may not contain.
func (s *Service) validateInvocations(base validator.ValidationResult, cases []grader.TestCase) validator.ValidationResult {
	merged := base
	seenImport := make(map[string]bool)
	seenOp := make(map[string]bool)

	for i, tc := range cases {
		invocation := s.grader.Invocation(tc.Input)
		if invocation == "" {
			continue
		}

		r := s.validate(sandbox.InvocationStatement(invocation))
		if r.Safe {
			continue
		}

		merged.Safe = false
		for _, issue := range r.Issues {
			issue.Message = fmt.Sprintf("test case %d: %s", i+1, issue.Message)
			issue.Line, issue.Column = 0, 0
			merged.Issues = append(merged.Issues, issue)
		}
		for _, m := range r.BlockedImports {
			if !seenImport[m] {
				seenImport[m] = true
				merged.BlockedImports = append(merged.BlockedImports, m)
			}
		}
		for _, op := range r.BlockedOperations {
			if !seenOp[op] {
				seenOp[op] = true
				merged.BlockedOperations = append(merged.BlockedOperations, op)
			}
		}
	}

	return merged
}

func (s *Service) execute(ctx context.Context, code string, limits sandbox.Limits) sandbox.ExecutionResult {
	result, err := s.executor.Execute(ctx, code, limits)
	if err != nil {
		s.logger.Error("Sandbox execution failed", zap.Error(err))
		return sandbox.FailureResult(err)
	}
	return result
}

func (s *Service) finish(op string, outcome sandbox.Outcome, start time.Time) {
	metrics.SubmissionsTotal.WithLabelValues(op, string(outcome)).Inc()
	s.logger.Info("Processed request",
		zap.String("operation", op),
		zap.String("outcome", string(outcome)),
		zap.Duration("duration", time.Since(start)),
	)
}

func verdict(r validator.ValidationResult) string {
	if r.Safe {
		return "safe"
	}
	return "unsafe"
}
