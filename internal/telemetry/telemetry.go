// Package telemetry builds the zap loggers used across the runtime and
// its CLI.
package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a SugaredLogger at the given level ("debug", "info",
// "warn", "error"; anything else falls back to "info"). Output goes to
// stderr in a human-readable console encoding, matching what a developer
// running lwtctl locally expects to read.
func NewLogger(level string) *zap.SugaredLogger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		// Build only fails on a malformed config; ours is static.
		panic(err)
	}
	return logger.Sugar()
}
