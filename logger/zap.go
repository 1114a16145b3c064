package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	log *zap.Logger
}

// NewZap builds a production zap logger at the given level. Unknown levels
// default to info.
func NewZap(level string) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

	log, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return Nop()
	}
	return &zapLogger{log: log}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (z *zapLogger) Debug(msg string, fields map[string]any) {
	z.log.Debug(msg, toFields(fields)...)
}

func (z *zapLogger) Info(msg string, fields map[string]any) {
	z.log.Info(msg, toFields(fields)...)
}

func (z *zapLogger) Warn(msg string, fields map[string]any) {
	z.log.Warn(msg, toFields(fields)...)
}

func (z *zapLogger) Error(msg string, fields map[string]any) {
	z.log.Error(msg, toFields(fields)...)
}

func toFields(m map[string]any) []zap.Field {
	fields := make([]zap.Field, 0, len(m))
	for k, v := range m {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}
