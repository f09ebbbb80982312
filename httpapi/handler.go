package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isdmx/codegrader/grader"
	"github.com/isdmx/codegrader/service"
)

// ValidateRequest is the body of POST /v1/validate
type ValidateRequest struct {
	Code string `json:"code"`
}

// SubmitRequest is the body of POST /v1/submit
type SubmitRequest struct {
	Code     string  `json:"code"`
	TimeoutS float64 `json:"timeout_s" binding:"gte=0"`
	MemoryMB int     `json:"memory_mb" binding:"gte=0"`
}

// RunTestsRequest is the body of POST /v1/run-tests
type RunTestsRequest struct {
	Code      string            `json:"code"`
	TestCases []grader.TestCase `json:"test_cases" binding:"required"`
	TimeoutS  float64           `json:"timeout_s" binding:"gte=0"`
	MemoryMB  int               `json:"memory_mb" binding:"gte=0"`
}

// Handler serves the grading REST endpoints
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new Handler
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Validate reports the static verdict for the code
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, h.svc.ValidateCode(req.Code))
}

// Submit runs the code once
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	limits := &service.Limits{TimeoutS: req.TimeoutS, MemoryMB: req.MemoryMB}
	resp := h.svc.SubmitCode(c.Request.Context(), req.Code, limits.ToSandbox())
	c.JSON(status(resp.Validation.Safe), resp)
}

// RunTests grades the code against the supplied test cases
func (h *Handler) RunTests(c *gin.Context) {
	var req RunTestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	limits := &service.Limits{TimeoutS: req.TimeoutS, MemoryMB: req.MemoryMB}
	resp := h.svc.RunTests(c.Request.Context(), req.Code, req.TestCases, limits.ToSandbox())
	c.JSON(status(resp.Validation.Safe), resp)
}

// Submission validates and then either executes or grades, depending on
// whether test cases are present
func (h *Handler) Submission(c *gin.Context) {
	var req service.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp := h.svc.Submit(c.Request.Context(), req)
	c.JSON(status(resp.Validation.Safe), resp)
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func status(safe bool) int {
	if safe {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}
