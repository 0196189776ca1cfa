package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin key/value wrapper around zap's SugaredLogger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a logger for the given mode. "production" writes JSON, anything else
// writes colored console output at debug level.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch mode {
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return &Logger{sugar: base.Sugar()}, nil
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...interface{}) {
	l.sugar.Debugw(msg, kv...)
}

func (l *Logger) Info(msg string, kv ...interface{}) {
	l.sugar.Infow(msg, kv...)
}

func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.sugar.Warnw(msg, kv...)
}

func (l *Logger) Error(msg string, kv ...interface{}) {
	l.sugar.Errorw(msg, kv...)
}

// Desugar exposes the structured logger for integrations that want a *zap.Logger.
func (l *Logger) Desugar() *zap.Logger {
	return l.sugar.Desugar()
}

func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
