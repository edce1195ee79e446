// Package logging is the process-wide logging facade used by every
// duskline component. Components call the package-level functions
// (Infof, Warnf, ...) rather than carrying a logger value.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a coarse log level: Silent, Fatal, Error, Warn, Info, Debug, Trace.
type Level string

const (
	LevelSilent Level = "Silent"
	LevelFatal  Level = "Fatal"
	LevelError  Level = "Error"
	LevelWarn   Level = "Warn"
	LevelInfo   Level = "Info"
	LevelDebug  Level = "Debug"
	LevelTrace  Level = "Trace"
)

var (
	mu      sync.RWMutex
	atom    = zap.NewAtomicLevel()
	base    *zap.Logger
	sugared *zap.SugaredLogger
)

func init() {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(zapcore.AddSync(os.Stdout)), atom)
	base = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	sugared = base.Sugar()
	SetLevel(LevelInfo)
}

// SetLevel adjusts the process-wide minimum level.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	switch l {
	case LevelSilent, LevelFatal:
		atom.SetLevel(zapcore.FatalLevel)
	case LevelError:
		atom.SetLevel(zapcore.ErrorLevel)
	case LevelWarn:
		atom.SetLevel(zapcore.WarnLevel)
	case LevelInfo:
		atom.SetLevel(zapcore.InfoLevel)
	case LevelDebug, LevelTrace:
		atom.SetLevel(zapcore.DebugLevel)
	default:
		atom.SetLevel(zapcore.InfoLevel)
	}
}

func logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugared
}

func Tracef(format string, args ...interface{}) { logger().Debugf(format, args...) }
func Debugf(format string, args ...interface{}) { logger().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { logger().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { logger().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { logger().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { logger().Fatalf(format, args...) }

// With returns a structured child logger carrying the given fields,
// for call sites that want key/value context (e.g. pipeline id) rather
// than a formatted string.
func With(kv ...interface{}) *zap.SugaredLogger {
	return logger().With(kv...)
}

// Sync flushes buffered log entries; call during graceful shutdown.
func Sync() error {
	return base.Sync()
}
