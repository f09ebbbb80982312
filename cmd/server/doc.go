// Package main is the entry point for the codegrader server.
//
// The codegrader server validates, executes and grades untrusted Python
// submissions. Code is checked statically before it runs, and every
// execution gets a fresh, resource-limited interpreter process. The server
// speaks the Model Context Protocol over stdio or HTTP and can additionally
// expose a REST API with Prometheus metrics.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
