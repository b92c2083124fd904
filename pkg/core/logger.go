package core

import (
	"github.com/sirupsen/logrus"
)

// Logger is the logging interface used throughout scanlens.
// Implement this interface to use a custom logger.
type Logger interface {
	// Debug logs a debug message
	Debug(format string, args ...interface{})

	// Info logs an info message
	Info(format string, args ...interface{})

	// Warn logs a warning message
	Warn(format string, args ...interface{})

	// Error logs an error message
	Error(format string, args ...interface{})
}

// LogrusLogger adapts a logrus entry or logger to Logger.
type LogrusLogger struct {
	entry logrus.FieldLogger
}

// NewLogrusLogger wraps l. A nil l uses the logrus standard logger.
func NewLogrusLogger(l logrus.FieldLogger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{entry: l}
}

// WithField returns a logger that adds key=value to every entry.
func (l *LogrusLogger) WithField(key string, value interface{}) *LogrusLogger {
	return &LogrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *LogrusLogger) Debug(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *LogrusLogger) Info(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *LogrusLogger) Warn(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *LogrusLogger) Error(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// NopLogger is a no-op logger that discards all messages.
type NopLogger struct{}

func (l *NopLogger) Debug(format string, args ...interface{}) {}
func (l *NopLogger) Info(format string, args ...interface{})  {}
func (l *NopLogger) Warn(format string, args ...interface{})  {}
func (l *NopLogger) Error(format string, args ...interface{}) {}

// Global default logger - can be replaced by users
var defaultLogger Logger = NewLogrusLogger(nil)

// SetDefaultLogger sets the global default logger.
func SetDefaultLogger(logger Logger) {
	if logger == nil {
		logger = &NopLogger{}
	}
	defaultLogger = logger
}

// GetDefaultLogger returns the global default logger.
func GetDefaultLogger() Logger {
	return defaultLogger
}

// Ensure implementations satisfy the interface
var (
	_ Logger = (*LogrusLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)
