// Package logging defines the minimal logging contract the runtime depends
// on, plus adapters for slog and for the watermill-backed bus transport.
package logging

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields represents structured logging key/value pairs.
type LogFields map[string]any

// ServiceLogger is the logging contract required by the runtime. Hosts adapt
// their existing logger instead of being forced onto slog.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// NewSlogServiceLogger wraps a slog.Logger so it satisfies ServiceLogger.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("orpc: slog logger cannot be nil")
	}
	return &slogServiceLogger{inner: log}
}

type slogServiceLogger struct {
	inner *slog.Logger
}

func fieldsToArgs(fields LogFields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func (l *slogServiceLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return l
	}
	return &slogServiceLogger{inner: l.inner.With(fieldsToArgs(fields)...)}
}

func (l *slogServiceLogger) Debug(msg string, fields LogFields) {
	l.inner.Debug(msg, fieldsToArgs(fields)...)
}

func (l *slogServiceLogger) Info(msg string, fields LogFields) {
	l.inner.Info(msg, fieldsToArgs(fields)...)
}

func (l *slogServiceLogger) Error(msg string, err error, fields LogFields) {
	args := fieldsToArgs(fields)
	if err != nil {
		args = append(args, "error", err)
	}
	l.inner.Error(msg, args...)
}

func (l *slogServiceLogger) Trace(msg string, fields LogFields) {
	// slog has no trace level; map it to debug.
	l.inner.Debug(msg, fieldsToArgs(fields)...)
}

// NewWatermillAdapter exposes a ServiceLogger as a watermill.LoggerAdapter so
// it can drive the bus transport's pub/sub internals.
func NewWatermillAdapter(logger ServiceLogger) watermill.LoggerAdapter {
	if logger == nil {
		panic("orpc: service logger cannot be nil")
	}
	return &watermillAdapter{inner: logger}
}

type watermillAdapter struct {
	inner ServiceLogger
}

func fromWatermillFields(fields watermill.LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	converted := make(LogFields, len(fields))
	for k, v := range fields {
		converted[k] = v
	}
	return converted
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.inner.Error(msg, err, fromWatermillFields(fields))
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.inner.Info(msg, fromWatermillFields(fields))
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.inner.Debug(msg, fromWatermillFields(fields))
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.inner.Trace(msg, fromWatermillFields(fields))
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{inner: a.inner.With(fromWatermillFields(fields))}
}

// Nop returns a logger that discards everything, for hosts and tests that do
// not care about runtime logs.
func Nop() ServiceLogger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) With(LogFields) ServiceLogger { return nopLogger{} }
func (nopLogger) Debug(string, LogFields)      {}
func (nopLogger) Info(string, LogFields)       {}
func (nopLogger) Error(string, error, LogFields) {}
func (nopLogger) Trace(string, LogFields)      {}
