// Package service is the facade over the validator, sandbox and grader.
//
// Every operation validates first. Rejected code is returned with its
// validation result and never executed. Safe code is either executed once
// (SubmitCode) or graded against test cases (RunTests). Infrastructure
// failures of the sandbox are reported as results with the sandbox_error
// outcome, never as Go errors, so callers always get a response they can
// render.
//
// Usage:
//
//	svc := service.New(logger, validator.NewFromConfig(cfg), executor, runner)
//	result := svc.Submit(ctx, service.SubmissionRequest{
//	    Code: "print('Hello, World!')",
//	})
package service
