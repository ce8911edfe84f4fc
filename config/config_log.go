package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func (l LogLevel) String() string {
	return string(l)
}

// ZapLevel maps the level, accepting common aliases. Unknown values map
// to info.
func (l LogLevel) ZapLevel() zapcore.Level {
	switch l {
	case LogLevelDebug, "trace":
		return zap.DebugLevel
	case LogLevelWarn, "warning":
		return zap.WarnLevel
	case LogLevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// NewLogger builds a production zap logger whose level can be changed
// later through the returned AtomicLevel.
func NewLogger(l LogLevel) (*zap.Logger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevelAt(l.ZapLevel())
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	return logger, level, err
}
