package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/codegrader/config"
	"github.com/isdmx/codegrader/grader"
	"github.com/isdmx/codegrader/metrics"
	"github.com/isdmx/codegrader/service"
)

// Tool names
const (
	ToolValidateCode = "validate_code"
	ToolSubmitCode   = "submit_code"
	ToolRunTests     = "run_tests"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config     *config.Config
	logger     *zap.Logger
	svc        *service.Service
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// runTestsArgs are the arguments of the run_tests tool
type runTestsArgs struct {
	Code      string            `json:"code"`
	TestCases []grader.TestCase `json:"test_cases"`
	TimeoutS  float64           `json:"timeout_s"`
	MemoryMB  int               `json:"memory_mb"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, svc *service.Service) (*MCPServer, error) {
	s := &MCPServer{
		config: cfg,
		logger: logger,
		svc:    svc,
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.Bool("api.enabled", cfg.API.Enabled),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Int("sandbox.max_concurrent", cfg.Sandbox.MaxConcurrent),
		zap.Strings("validator.allowed_modules", cfg.AllowedModules()),
		zap.String("grader.entry_function", cfg.Grader.EntryFunction),
		zap.Bool("grader.allow_containment", cfg.Grader.AllowContainment),
	)

	s.mcpServer = server.NewMCPServer("codegrader", "1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.registerTools()

	return s, nil
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(ToolValidateCode,
		mcp.WithDescription("Statically check Python code for unsafe imports and operations without running it"),
		mcp.WithString("code", mcp.Required(), mcp.Description("Python source code")),
	), s.handleValidateCode)

	s.mcpServer.AddTool(mcp.NewTool(ToolSubmitCode,
		mcp.WithDescription("Validate Python code and run it once in the sandbox"),
		mcp.WithString("code", mcp.Required(), mcp.Description("Python source code")),
		mcp.WithNumber("timeout_s", mcp.Description("Wall-clock timeout in seconds (optional)"), mcp.Min(0)),
		mcp.WithNumber("memory_mb", mcp.Description("Memory limit in MB (optional)"), mcp.Min(0)),
	), s.handleSubmitCode)

	s.mcpServer.AddTool(mcp.NewTool(ToolRunTests,
		mcp.WithDescription("Validate Python code and grade it against test cases"),
		mcp.WithString("code", mcp.Required(), mcp.Description("Python source code")),
		mcp.WithArray("test_cases",
			mcp.Required(),
			mcp.Description("Test cases. input is a call such as solution(2, 3) or an argument list for the entry function"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"input":           map[string]any{"type": "string"},
					"expected_output": map[string]any{"type": "string"},
					"hidden":          map[string]any{"type": "boolean"},
				},
				"required": []string{"input", "expected_output"},
			}),
		),
		mcp.WithNumber("timeout_s", mcp.Description("Per test case timeout in seconds (optional)"), mcp.Min(0)),
		mcp.WithNumber("memory_mb", mcp.Description("Memory limit in MB (optional)"), mcp.Min(0)),
	), s.handleRunTests)
}

func (s *MCPServer) handleValidateCode(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return s.toolError(ToolValidateCode, err), nil
	}

	return s.toolResult(ToolValidateCode, s.svc.ValidateCode(code))
}

func (s *MCPServer) handleSubmitCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return s.toolError(ToolSubmitCode, err), nil
	}

	limits := &service.Limits{
		TimeoutS: request.GetFloat("timeout_s", 0),
		MemoryMB: request.GetInt("memory_mb", 0),
	}
	s.logger.Info("code execution requested", zap.Float64("timeout_s", limits.TimeoutS), zap.Int("memory_mb", limits.MemoryMB))

	return s.toolResult(ToolSubmitCode, s.svc.SubmitCode(ctx, code, limits.ToSandbox()))
}

func (s *MCPServer) handleRunTests(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args runTestsArgs
	if err := request.BindArguments(&args); err != nil {
		return s.toolError(ToolRunTests, fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if args.TestCases == nil {
		return s.toolError(ToolRunTests, fmt.Errorf("test_cases parameter is required")), nil
	}

	limits := &service.Limits{TimeoutS: args.TimeoutS, MemoryMB: args.MemoryMB}
	s.logger.Info("grading requested", zap.Int("test_cases", len(args.TestCases)))

	return s.toolResult(ToolRunTests, s.svc.RunTests(ctx, args.Code, args.TestCases, limits.ToSandbox()))
}

// toolResult encodes v as the JSON text content of a tool result
func (s *MCPServer) toolResult(tool string, v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.ToolCallsTotal.WithLabelValues(tool, "error").Inc()
		return nil, fmt.Errorf("failed to encode %s result: %w", tool, err)
	}

	metrics.ToolCallsTotal.WithLabelValues(tool, "ok").Inc()
	return mcp.NewToolResultText(string(data)), nil
}

func (s *MCPServer) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("invalid tool call", zap.String("tool", tool), zap.Error(err))
	metrics.ToolCallsTotal.WithLabelValues(tool, "invalid").Inc()
	return mcp.NewToolResultError(err.Error())
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
	return s.httpServer.Start(fmt.Sprintf(":%d", port))
}

// Shutdown stops the HTTP transport if it was started
func (s *MCPServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
