// Package zapctx carries a zap logger (see github.com/uber-go/zap) through
// contexts so that pipeline stages, store backends and HTTP handlers can log
// with the fields their caller attached.
package zapctx

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// loggerKey holds the context key used for loggers.
type loggerKey struct{}

var nop = zap.NewNop()

// WithLogger returns a new context derived from ctx that
// is associated with the given logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithFields returns a new context derived from ctx
// that has a logger that always logs the given fields.
func WithFields(ctx context.Context, fields ...zapcore.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return WithLogger(ctx, Logger(ctx).With(fields...))
}

// WithComponent names the context logger after a pipeline component,
// e.g. "sampler" or "store".
func WithComponent(ctx context.Context, name string) context.Context {
	return WithLogger(ctx, Logger(ctx).Named(name))
}

// Logger returns the logger associated with the given context.
// A context without a logger yields a no-op logger. A nil context panics.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		panic("nil context passed to zapctx.Logger()")
	}
	logger, _ := ctx.Value(loggerKey{}).(*zap.Logger)
	if logger == nil {
		return nop
	}
	return logger
}

// HasLogger reports whether ctx carries a non-nil logger.
func HasLogger(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	logger, _ := ctx.Value(loggerKey{}).(*zap.Logger)
	return logger != nil
}

func Debug(ctx context.Context, msg string, fields ...zapcore.Field) {
	loggerForCaller(ctx).Debug(msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...zapcore.Field) {
	loggerForCaller(ctx).Info(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...zapcore.Field) {
	loggerForCaller(ctx).Warn(msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...zapcore.Field) {
	loggerForCaller(ctx).Error(msg, fields...)
}

func loggerForCaller(ctx context.Context) *zap.Logger {
	return Logger(ctx).WithOptions(zap.AddCaller(), zap.AddCallerSkip(1))
}
