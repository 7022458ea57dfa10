// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the process-wide logger. It starts as a no-op logger and is replaced
// by InitLogger before any command runs, so package-level call sites are
// always safe.
var L = zap.NewNop()

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// InitLogger installs the global logger. It runs before configuration is
// loaded, so the development toggle comes from the environment; the typed
// config can swap in a reconfigured logger later via Set.
func InitLogger() {
	logger, err := New(os.Getenv("SCHOLAR_LOG_DEV") != "")
	if err != nil {
		return
	}
	L = logger
}

// Set replaces the global logger, returning the previous one.
func Set(logger *zap.Logger) *zap.Logger {
	prev := L
	if logger != nil {
		L = logger
	}
	return prev
}
