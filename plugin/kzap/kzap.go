// Package kzap provides a kgo.Logger that writes through a *zap.Logger.
package kzap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wireproto/kgo/kgo"
)

// Logger wraps a *zap.Logger to satisfy kgo.Logger.
type Logger struct {
	z *zap.Logger
}

// New returns a kgo.Logger backed by z. z is not cloned; callers that want
// a fixed set of base fields should call z.With before passing it here.
func New(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// Log implements kgo.Logger.
func (l *Logger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	ce := l.z.Check(zapLevel(level), msg)
	if ce == nil {
		return
	}
	ce.Write(fields(keyvals)...)
}

func zapLevel(level kgo.LogLevel) zapcore.Level {
	switch level {
	case kgo.LogLevelDebug:
		return zapcore.DebugLevel
	case kgo.LogLevelInfo:
		return zapcore.InfoLevel
	case kgo.LogLevelWarn:
		return zapcore.WarnLevel
	case kgo.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// fields turns an alternating key/value slice into zap.Field values. A
// trailing unpaired key is logged under "EXTRA" rather than dropped.
func fields(keyvals []any) []zap.Field {
	n := len(keyvals) / 2
	fs := make([]zap.Field, 0, n+1)
	i := 0
	for ; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "EXTRA"
		}
		fs = append(fs, zap.Any(key, keyvals[i+1]))
	}
	if i < len(keyvals) {
		fs = append(fs, zap.Any("EXTRA", keyvals[i]))
	}
	return fs
}
