package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/codegrader/config"
)

// ServiceName is attached to every entry written by the application logger
const ServiceName = "codegrader"

// NewFromConfig builds the application logger from the logging section and
// tags it with the service name, MCP transport and sandbox backend.
func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	return fromConfig(cfg)
}

func fromConfig(cfg *config.Config, opts ...zap.Option) (*zap.Logger, error) {
	log, err := New(cfg.Logging.Mode, cfg.Logging.Level, opts...)
	if err != nil {
		return nil, err
	}

	return log.With(
		zap.String("service", ServiceName),
		zap.String("transport", cfg.Server.Transport),
		zap.String("sandbox_backend", cfg.Sandbox.Backend),
	), nil
}

// New creates a logger for the given mode and level. Entries always go to
// stderr: stdout belongs to the stdio transport and to nothing else.
func New(mode, level string, opts ...zap.Option) (*zap.Logger, error) {
	var cfg zap.Config

	switch mode {
	case "development":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	default:
		return nil, fmt.Errorf("invalid logging mode: %s, must be 'production' or 'development'", mode)
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging level: %s, must be one of 'debug', 'info', 'warn', 'error', 'dpanic', 'panic', 'fatal'", level)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build(opts...)
}
