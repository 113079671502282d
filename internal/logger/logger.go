// Package logger builds the zap logger used by the normalize command.
//
// Level is one of debug, info, warn or error; Format is "console" for
// terminals or "json" for log shippers. Debug uses zap's development
// config (ISO8601 timestamps, caller), everything else the production one.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level and encoding.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// New creates a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = "info"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	var zc zap.Config
	if lvl.Level() == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = lvl

	switch cfg.Format {
	case "console":
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.DisableStacktrace = true
	case "", "json":
		zc.Encoding = "json"
	default:
		return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
	}

	zc.EncoderConfig.LevelKey = "level"
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.MessageKey = "message"

	return zc.Build()
}

// WithRun returns l with the job and run id attached to every entry.
func WithRun(l *zap.Logger, job, runID string) *zap.Logger {
	return l.With(zap.String("job", job), zap.String("run_id", runID))
}
