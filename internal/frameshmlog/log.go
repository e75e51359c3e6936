// Package frameshmlog provides the diagnostic logging frameshm and
// frameshmctl use for log-and-continue conditions: OS failures during
// segment teardown, and precondition refusals the caller should be told
// about even though they also get an error return.
//
// Nothing upstream of this module pulls in a structured logging library
// (zap, zerolog, logrus); diagnostic code elsewhere writes directly to
// os.Stderr with fmt.Fprintf. This package keeps that spirit but gives it
// structure via the standard library's log/slog, which needs no additional
// dependency.
package frameshmlog

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is the diagnostic sink used throughout frameshm and frameshmctl.
// The zero value is not usable; construct one with New or Default.
type Logger struct {
	l *slog.Logger
}

// Default returns a Logger that writes text-formatted records to os.Stderr
// at Info level.
func Default() *Logger {
	return New(os.Stderr, slog.LevelInfo)
}

// New returns a Logger writing text-formatted records to w at the given
// minimum level.
func New(w io.Writer, level slog.Level) *Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{l: slog.New(h)}
}

// Discard returns a Logger that drops every record; useful in tests that
// don't want diagnostic noise.
func Discard() *Logger {
	h := slog.NewTextHandler(io.Discard, nil)
	return &Logger{l: slog.New(h)}
}

func (lg *Logger) Info(msg string, args ...any)  { lg.l.Log(context.Background(), slog.LevelInfo, msg, args...) }
func (lg *Logger) Warn(msg string, args ...any)  { lg.l.Log(context.Background(), slog.LevelWarn, msg, args...) }
func (lg *Logger) Error(msg string, args ...any) { lg.l.Log(context.Background(), slog.LevelError, msg, args...) }

// With returns a Logger that includes the given key/value pairs on every
// subsequent record, mirroring slog.Logger.With.
func (lg *Logger) With(args ...any) *Logger {
	return &Logger{l: lg.l.With(args...)}
}
