package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
	mu     sync.Mutex
)

// InitLogger builds the process logger. Development uses the colored console
// encoder, every other env the production JSON encoder.
func InitLogger(level, env string) error {
	config := zap.NewProductionConfig()
	if env == "development" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return err
		}
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	built, err := config.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	Logger = built
	mu.Unlock()
	zap.ReplaceGlobals(built)
	return nil
}

// GetLogger returns the process logger, falling back to a production logger.
func GetLogger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if Logger == nil {
		Logger, _ = zap.NewProduction()
	}
	return Logger
}

// Named returns l, or the process logger when l is nil, scoped to component.
func Named(l *zap.Logger, component string) *zap.Logger {
	if l == nil {
		l = GetLogger()
	}
	return l.Named(component)
}

// Sync flushes buffered log entries.
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Info logs at info level.
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Error logs at error level.
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Debug logs at debug level.
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs at warn level.
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Fatal logs at fatal level and exits.
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}
