// Package logging provides the structured logger used across the engine
// and its collaborators, backed by zap.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging capability consumed throughout the
// engine. It is kept as a small interface (rather than a concrete
// *zap.Logger) so collaborators stay decoupled from the logging backend.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	With(keyvals ...interface{}) Logger
}

// zapLogger adapts a zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a Logger at the given level, writing structured JSON to stderr.
func New(level string) Logger {
	zl, err := zap.NewProduction()
	if err != nil {
		zl = zap.NewNop()
	}
	if lvl, ok := parseLevel(level); ok {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		built, err := cfg.Build()
		if err == nil {
			zl = built
		}
	}
	return &zapLogger{s: zl.Sugar()}
}

// NewDevelopment builds a human-readable console logger, convenient for
// local runs and tests.
func NewDevelopment() Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stdout"}
	zl, err := cfg.Build()
	if err != nil {
		zl = zap.NewExample()
	}
	return &zapLogger{s: zl.Sugar()}
}

// Nop returns a Logger that discards everything, for tests that don't care.
func Nop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func parseLevel(level string) (zapcore.Level, bool) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, false
	}
	return lvl, true
}

func (l *zapLogger) Debug(msg string, fields ...interface{}) { l.s.Debugw(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...interface{})  { l.s.Infow(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...interface{})  { l.s.Warnw(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...interface{}) { l.s.Errorw(msg, fields...) }

func (l *zapLogger) With(keyvals ...interface{}) Logger {
	return &zapLogger{s: l.s.With(keyvals...)}
}
