// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the grading service as MCP tools using the
// mark3labs/mcp-go library:
//
//	validate_code{code}
//	submit_code{code, timeout_s?, memory_mb?}
//	run_tests{code, test_cases: [{input, expected_output, hidden?}], timeout_s?, memory_mb?}
//
// Results are returned as JSON text content. Malformed arguments produce a
// tool error result rather than a protocol error.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, svc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
