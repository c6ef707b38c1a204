// Package logger provides the leveled logger used across turnocall.
// It supports three levels: off (no output), normal (info/warn/error),
// and verbose (includes debug). Output goes through a zap core so log
// lines carry timestamps, levels and the component name. The logger is
// safe for concurrent use.
package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level controls the verbosity of the logger.
type Level int

const (
	// LevelOff disables all log output.
	LevelOff Level = iota
	// LevelNormal enables info, warn, and error output.
	LevelNormal
	// LevelVerbose enables all output including debug.
	LevelVerbose
)

// ParseLevel maps "off", "normal"/"info" and "verbose"/"debug" to a Level.
// Unknown names fall back to LevelNormal.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "off", "quiet", "none":
		return LevelOff
	case "verbose", "debug":
		return LevelVerbose
	default:
		return LevelNormal
	}
}

// Logger is a leveled logger. All methods are safe for concurrent use.
type Logger struct {
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

// New creates a logger with the given level, writing to the given output.
// If out is nil, os.Stderr is used.
func New(level Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}

	atom := zap.NewAtomicLevelAt(zapLevel(level))

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = ""

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(out),
		atom,
	)

	return &Logger{
		level: atom,
		sugar: zap.New(core).Sugar(),
	}
}

// Named returns a child logger tagged with a component name. The child
// shares the parent's level.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		level: l.level,
		sugar: l.sugar.Named(component),
	}
}

// SetLevel changes the log level at runtime. Children created with
// Named follow the change.
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(zapLevel(level))
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Debug logs a message at debug level (only visible in verbose mode).
func (l *Logger) Debug(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

// Info logs a message at info level.
func (l *Logger) Info(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

// Error logs a message at error level.
func (l *Logger) Error(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

// zapLevel maps a Level to the minimum zap level that is enabled.
// LevelOff maps above Fatal so nothing is written.
func zapLevel(level Level) zapcore.Level {
	switch level {
	case LevelOff:
		return zapcore.FatalLevel + 1
	case LevelVerbose:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
