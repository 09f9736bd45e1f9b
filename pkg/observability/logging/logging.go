package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// base and logger are always two views of the same underlying logger, so
// the formatted helpers and LogEvent share one core, level and sink.
var (
	mu     sync.RWMutex
	base   = newDefault()
	logger = base.Sugar()
)

func newDefault() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, _ := cfg.Build(zap.AddCallerSkip(1))
	return l
}

// InitFromEnv initializes the global logger using GUARDIAN_LOG_LEVEL
// (debug, info, warn, error; default info). Returns the configured logger.
func InitFromEnv() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch strings.ToLower(os.Getenv("GUARDIAN_LOG_LEVEL")) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	mu.Lock()
	base = l
	logger = l.Sugar()
	mu.Unlock()
	return l, nil
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { get().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { get().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }

// Fatalf logs and exits. Reserved for startup failures.
func Fatalf(format string, args ...interface{}) { get().Fatalf(format, args...) }

// LogEvent emits a structured audit event. Callers must never place raw
// message text in fields; content hashes, scores, states and rule IDs only.
func LogEvent(event string, fields map[string]interface{}) {
	mu.RLock()
	l := base
	mu.RUnlock()

	zfields := make([]zap.Field, 0, len(fields)+1)
	zfields = append(zfields, zap.String("event", event))
	for k, v := range fields {
		zfields = append(zfields, zap.Any(k, v))
	}
	l.Info("event", zfields...)
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}
