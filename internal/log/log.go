package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu     sync.RWMutex
	atom   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger *zap.SugaredLogger
	once   sync.Once
)

// initLogger installs a development logger if Init was never called, so
// packages can log from tests and tools without explicit setup.
func initLogger() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if logger != nil {
			return
		}
		l, err := build("development")
		if err != nil {
			l = zap.NewNop()
		}
		logger = l.Sugar()
	})
}

// Init configures the global logger for the given environment. "production"
// emits JSON, anything else uses the colored development encoder.
func Init(environment string, level Level) error {
	SetLevel(level)
	l, err := build(environment)
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l.Sugar()
	mu.Unlock()
	once.Do(func() {})
	return nil
}

func build(environment string) (*zap.Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.Level = atom
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	// Skip the wrappers in this file so the caller points at the real site.
	return config.Build(zap.AddCaller(), zap.AddCallerSkip(2))
}

// SetLevel changes the minimum level. Unknown values enable everything.
func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		atom.SetLevel(zapcore.DebugLevel)
	case LevelInfo:
		atom.SetLevel(zapcore.InfoLevel)
	case LevelError:
		atom.SetLevel(zapcore.ErrorLevel)
	default:
		atom.SetLevel(zapcore.DebugLevel)
	}
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	_ = logger.Sync()
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

func logWithLevel(level Level, msg string, kv ...any) {
	initLogger()
	mu.RLock()
	l := logger
	mu.RUnlock()

	switch level {
	case LevelDebug:
		l.Debugw(msg, kv...)
	case LevelError:
		l.Errorw(msg, kv...)
	default:
		l.Infow(msg, kv...)
	}
}
