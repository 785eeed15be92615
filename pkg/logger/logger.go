// Package logger provides structured logging for the authorization server.
// The interface is context-first so log records pick up trace identifiers
// from the active OpenTelemetry span.
package logger

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
)

// ================================================================================
// Logger Interface
// ================================================================================

// Logger is the structured logging interface used across all modules.
type Logger interface {
	// Debug logs a debug message
	Debug(ctx context.Context, message string, fields ...Field)

	// Info logs an informational message
	Info(ctx context.Context, message string, fields ...Field)

	// Warn logs a warning message
	Warn(ctx context.Context, message string, fields ...Field)

	// Error logs an error with its cause
	Error(ctx context.Context, message string, err error, fields ...Field)

	// Fatal logs a fatal error and exits the process
	Fatal(ctx context.Context, message string, err error, fields ...Field)

	// WithFields returns a logger that adds fields to every record
	WithFields(fields ...Field) Logger

	// WithComponent returns a logger tagged with a component name
	WithComponent(component string) Logger
}

// ================================================================================
// Field Type for Structured Logging
// ================================================================================

// Field is a key-value pair attached to a log record.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an integer field
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Bool creates a boolean field
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Float64 creates a float field
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Duration creates a duration field
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Time creates a time field
func Time(key string, value time.Time) Field { return Field{Key: key, Value: value} }

// Any creates a field holding an arbitrary value
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// ================================================================================
// Zap-Backed Implementation
// ================================================================================

type zapLogger struct {
	zl    *zap.Logger
	level zap.AtomicLevel
}

// New creates a production logger writing JSON to stderr at the given level.
func New(level constants.LogLevel) Logger {
	return NewWithFormat(level, "json")
}

// NewWithFormat creates a logger with the given encoding, "json" or
// "console". Unknown formats fall back to JSON.
func NewWithFormat(level constants.LogLevel, format string) Logger {
	atomic := zap.NewAtomicLevelAt(toZapLevel(level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.Lock(os.Stderr),
		atomic,
	)

	zl := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	return &zapLogger{zl: zl, level: atomic}
}

// NewNop creates a logger that discards everything.
func NewNop() Logger {
	return &zapLogger{zl: zap.NewNop(), level: zap.NewAtomicLevel()}
}

func toZapLevel(level constants.LogLevel) zapcore.Level {
	switch level {
	case constants.LogLevelDebug:
		return zapcore.DebugLevel
	case constants.LogLevelInfo:
		return zapcore.InfoLevel
	case constants.LogLevelWarn:
		return zapcore.WarnLevel
	case constants.LogLevelError:
		return zapcore.ErrorLevel
	case constants.LogLevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debug(ctx context.Context, message string, fields ...Field) {
	l.zl.Debug(message, l.zapFields(ctx, nil, fields)...)
}

func (l *zapLogger) Info(ctx context.Context, message string, fields ...Field) {
	l.zl.Info(message, l.zapFields(ctx, nil, fields)...)
}

func (l *zapLogger) Warn(ctx context.Context, message string, fields ...Field) {
	l.zl.Warn(message, l.zapFields(ctx, nil, fields)...)
}

func (l *zapLogger) Error(ctx context.Context, message string, err error, fields ...Field) {
	l.zl.Error(message, l.zapFields(ctx, err, fields)...)
}

func (l *zapLogger) Fatal(ctx context.Context, message string, err error, fields ...Field) {
	l.zl.Fatal(message, l.zapFields(ctx, err, fields)...)
}

func (l *zapLogger) WithFields(fields ...Field) Logger {
	zfs := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zfs = append(zfs, zap.Any(f.Key, f.Value))
	}
	return &zapLogger{zl: l.zl.With(zfs...), level: l.level}
}

func (l *zapLogger) WithComponent(component string) Logger {
	return &zapLogger{zl: l.zl.With(zap.String("component", component)), level: l.level}
}

// zapFields converts fields, appends the error, and lifts trace identifiers
// out of the context so every record lands correlated.
func (l *zapLogger) zapFields(ctx context.Context, err error, fields []Field) []zap.Field {
	zfs := make([]zap.Field, 0, len(fields)+3)
	for _, f := range fields {
		zfs = append(zfs, zap.Any(f.Key, f.Value))
	}
	if err != nil {
		zfs = append(zfs, zap.Error(err))
	}
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			zfs = append(zfs,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
	}
	return zfs
}

// ================================================================================
// Global Logger Instance
// ================================================================================

var globalLogger Logger = New(constants.LogLevelInfo)

// SetGlobalLogger replaces the process-wide logger.
func SetGlobalLogger(l Logger) {
	if l != nil {
		globalLogger = l
	}
}

// GetGlobalLogger returns the process-wide logger.
func GetGlobalLogger() Logger {
	return globalLogger
}

// Debug logs a debug message using the global logger
func Debug(ctx context.Context, message string, fields ...Field) {
	globalLogger.Debug(ctx, message, fields...)
}

// Info logs an info message using the global logger
func Info(ctx context.Context, message string, fields ...Field) {
	globalLogger.Info(ctx, message, fields...)
}

// Warn logs a warning message using the global logger
func Warn(ctx context.Context, message string, fields ...Field) {
	globalLogger.Warn(ctx, message, fields...)
}

// Error logs an error message using the global logger
func Error(ctx context.Context, message string, err error, fields ...Field) {
	globalLogger.Error(ctx, message, err, fields...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(ctx context.Context, message string, err error, fields ...Field) {
	globalLogger.Fatal(ctx, message, err, fields...)
}
