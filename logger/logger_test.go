package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/isdmx/codegrader/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		level   string
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{"DevelopmentDebug", "development", "debug", zapcore.DebugLevel, zapcore.InvalidLevel},
		{"ProductionInfo", "production", "info", zapcore.InfoLevel, zapcore.DebugLevel},
		{"ProductionError", "production", "error", zapcore.ErrorLevel, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.mode, tt.level)
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.enabled))
			if tt.muted != zapcore.InvalidLevel {
				assert.False(t, log.Core().Enabled(tt.muted))
			}
		})
	}

	t.Run("InvalidMode", func(t *testing.T) {
		_, err := New("verbose", "info")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging mode")
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		_, err := New("production", "loud")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging level")
	})
}

func TestNewFromConfigTagsEntries(t *testing.T) {
	cfg := &config.Config{
		Server:  config.ServerConfig{Transport: "stdio"},
		Sandbox: config.SandboxConfig{Backend: "process"},
		Logging: config.LoggingConfig{Mode: "production", Level: "info"},
	}

	core, logs := observer.New(zapcore.InfoLevel)
	log, err := fromConfig(cfg, zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))
	require.NoError(t, err)

	log.Info("submission graded", zap.Int("score", 100))
	log.Debug("dropped")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, ServiceName, fields["service"])
	assert.Equal(t, "stdio", fields["transport"])
	assert.Equal(t, "process", fields["sandbox_backend"])
	assert.Equal(t, int64(100), fields["score"])
}

func TestNewFromConfigRejectsInvalidLogging(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{Mode: "invalid_mode", Level: "info"}}
	_, err := NewFromConfig(cfg)
	assert.Error(t, err)
}
