package logger

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	current atomic.Pointer[zap.Logger]
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	current.Store(newConsole(level))
}

func newConsole(lvl zap.AtomicLevel) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.CapitalColorLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stdout),
		lvl,
	)

	return zap.New(core, zap.AddCaller())
}

// SetLevel accepts debug/info/warn/error; anything else leaves the level unchanged.
func SetLevel(name string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return
	}
	level.SetLevel(l)
}

// Replace swaps the process logger, tests use it with zaptest/observer loggers.
func Replace(l *zap.Logger) {
	if l == nil {
		return
	}
	current.Store(l)
}

func L() *zap.Logger { return current.Load() }

// Named returns a component logger, e.g. logger.Named("relay").
func Named(component string) *zap.Logger { return L().Named(component) }

func Sync() { _ = L().Sync() }

// shortcuts
func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }
func Infof(format string, args ...interface{}) {
	L().Info(fmt.Sprintf(format, args...))
}
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Errorf(format string, args ...interface{}) {
	L().Error(fmt.Sprintf(format, args...))
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
