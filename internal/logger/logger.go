// Package logger builds the zap logger shared by kiejob components.
package logger

import (
	"github.com/GoCodeAlone/kiejob/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a sugared zap logger. Components log with the key/value
// variants (Infow, Warnw, Debugw).
type Logger struct {
	*zap.SugaredLogger
}

// New builds a Logger from cfg. An unparseable level falls back to info.
// With Verbose off, progress lines (info and below) are dropped.
func New(cfg config.LoggerConfig) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if !cfg.Verbose && level < zapcore.WarnLevel {
		level = zapcore.WarnLevel
	}

	encoding := cfg.Encoding
	if encoding != "json" {
		encoding = "console"
	}
	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	errOutputs := cfg.ErrorOutputPaths
	if len(errOutputs) == 0 {
		errOutputs = []string{"stderr"}
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if encoding == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		OutputPaths:      outputs,
		ErrorOutputPaths: errOutputs,
		EncoderConfig:    encoderCfg,
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar().Named("kie")}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger, e.g. one from zaptest/observer.
func FromZap(l *zap.Logger) *Logger {
	return &Logger{SugaredLogger: l.Sugar()}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}

// OrNop returns l, or a no-op logger when l is nil.
func (l *Logger) OrNop() *Logger {
	if l == nil || l.SugaredLogger == nil {
		return Nop()
	}
	return l
}
