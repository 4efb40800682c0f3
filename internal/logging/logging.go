// Package logging builds the zap logger used throughout wallwatch:
// one JSON object per line, level configurable at startup.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-shaped zap.Logger emitting JSON to stderr at the
// given level ("debug", "info", "warn", "error"; unrecognized values fall
// back to "info").
func New(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err == nil {
		// parsed fine, lvl already set
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
