// Package log15adapter wraps a github.com/inconshreveable/log15.Logger so it
// satisfies splog.Logger. Adapted from the teacher pack's own log15 adapter
// (ngrok-ngrok-go/log/log15/adapter.go), which wraps the same library for the
// same kind of small leveled-logging interface.
package log15adapter

import (
	"github.com/inconshreveable/log15"

	"github.com/go-spdy/spdymux/splog"
)

// Logger adapts a log15.Logger to splog.Logger.
type Logger struct {
	log15.Logger
}

// New wraps l as a splog.Logger.
func New(l log15.Logger) *Logger {
	return &Logger{l}
}

func (l *Logger) Log(level splog.Level, msg string, data map[string]interface{}) {
	args := make([]interface{}, 0, len(data)*2)
	for k, v := range data {
		args = append(args, k, v)
	}
	switch level {
	case splog.LevelTrace, splog.LevelDebug:
		l.Debug(msg, args...)
	case splog.LevelInfo:
		l.Info(msg, args...)
	case splog.LevelWarn:
		l.Warn(msg, args...)
	case splog.LevelError:
		l.Error(msg, args...)
	default:
		l.Error(msg, args...)
	}
}
