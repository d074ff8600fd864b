package logutil

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON logger writing to stderr at the given level
// ("debug", "info", "warn", "error").
func New(level string) (*zap.Logger, error) {
	atom := zap.NewAtomicLevel()
	if level != "" {
		if err := atom.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		atom,
	)
	return zap.New(core, zap.AddCaller()), nil
}

type fieldsKey struct{}

// WithFields adds log fields to the context.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, fieldsKey{}, append(Fields(ctx), fields...))
}

// Fields extracts log fields from the context.
func Fields(ctx context.Context) []zap.Field {
	fields, ok := ctx.Value(fieldsKey{}).([]zap.Field)
	if !ok {
		return nil
	}
	return append([]zap.Field(nil), fields...)
}

// WithContext enriches the logger with fields from the context.
func WithContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	fields := Fields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
