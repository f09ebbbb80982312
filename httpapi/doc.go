// Package httpapi exposes the grading service over REST using gin.
//
// Routes:
//
//	GET  /healthz          liveness
//	GET  /metrics          Prometheus metrics
//	POST /v1/validate      static verdict only
//	POST /v1/submit        validate, then execute once
//	POST /v1/run-tests     validate, then grade against test cases
//	POST /v1/submissions   validate, then execute or grade
//
// Malformed bodies get 400. Code rejected by the validator gets 422 with the
// full response body, so clients can show the issues.
package httpapi
