package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/codegrader/config"
	"github.com/isdmx/codegrader/grader"
	"github.com/isdmx/codegrader/httpapi"
	"github.com/isdmx/codegrader/logger"
	"github.com/isdmx/codegrader/mcpserver"
	"github.com/isdmx/codegrader/metrics"
	"github.com/isdmx/codegrader/sandbox"
	"github.com/isdmx/codegrader/service"
	"github.com/isdmx/codegrader/validator"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config.yaml or ./config/config.yaml)")
	flag.Parse()

	app := fx.New(
		fx.Provide(
			func() (*config.Config, error) {
				if *configPath != "" {
					return config.NewFromFile(*configPath)
				}
				return config.New()
			},
			logger.NewFromConfig,
			validator.NewFromConfig,
			newExecutor,
			grader.NewFromConfig,
			service.New,
			mcpserver.New,
			httpapi.NewRouter,
			httpapi.NewServer,
		),

		fx.Invoke(registerMCPTransport, registerRESTServer),

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}

// newExecutor builds the configured sandbox backend with execution metrics
func newExecutor(log *zap.Logger, cfg *config.Config) (sandbox.Executor, error) {
	executor, err := sandbox.NewExecutor(log, cfg)
	if err != nil {
		return nil, err
	}
	return metrics.NewExecutor(executor), nil
}

func registerMCPTransport(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, server *mcpserver.MCPServer, shutdowner fx.Shutdowner) error {
	var serve func() error
	switch cfg.Server.Transport {
	case "stdio":
		serve = server.ServeStdio
	case "http":
		serve = server.ServeHTTP
	default:
		return fmt.Errorf("unsupported transport: %s", cfg.Server.Transport)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				err := serve()
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("MCP transport stopped", zap.Error(err))
				}
				// The stdio transport returns when the client closes stdin.
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: server.Shutdown,
	})

	return nil
}

func registerRESTServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, srv *http.Server) {
	if !cfg.API.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
			}
			log.Info("starting REST API", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("REST API stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}
