package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/codegrader/config"
)

// NewExecutor creates the executor selected by sandbox.backend
func NewExecutor(logger *zap.Logger, cfg *config.Config) (Executor, error) {
	executorConfig := NewConfig(cfg)

	switch cfg.Sandbox.Backend {
	case "process":
		return NewProcessExecutor(logger, executorConfig), nil
	case RuntimeDocker, RuntimePodman:
		return NewContainerExecutor(logger, executorConfig, cfg.Sandbox.Backend), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
