// Package logging provides structured component logging with configurable levels
package logging

import (
	"os"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// DebugLevel is for detailed debugging information
	DebugLevel LogLevel = iota
	// InfoLevel is for general informational messages
	InfoLevel
	// WarnLevel is for warning messages that indicate potential problems
	WarnLevel
	// ErrorLevel is for error messages that indicate serious problems
	ErrorLevel
)

// Logger provides structured logging for a single component
type Logger struct {
	level      LogLevel
	component  string
	slogLogger *SlogLogger
}

// NewLogger creates a logger for a specific component
func NewLogger(component string) *Logger {
	level := InfoLevel
	if os.Getenv("UPFLEET_DEBUG") == "true" || os.Getenv("UPFLEET_DEBUG") == "1" {
		level = DebugLevel
	}
	// Reduce verbosity during tests
	if os.Getenv("UPFLEET_TEST_MODE") == "true" {
		level = ErrorLevel
	}
	return &Logger{
		level:      level,
		component:  component,
		slogLogger: NewSlogLogger(component),
	}
}

// Debugf logs a debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level <= DebugLevel {
		l.slogLogger.Debugf(format, args...)
	}
}

// Infof logs an info message
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level <= InfoLevel {
		l.slogLogger.Infof(format, args...)
	}
}

// Warnf logs a warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.level <= WarnLevel {
		l.slogLogger.Warnf(format, args...)
	}
}

// Errorf logs an error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.level <= ErrorLevel {
		l.slogLogger.Errorf(format, args...)
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= DebugLevel
}

// OperationStart logs the start of a lifecycle operation on an instance
func (l *Logger) OperationStart(operation, instance string, current, total int) {
	l.slogLogger.OperationStart(operation, instance, current, total)
}

// OperationSuccess logs a lifecycle operation that reached a healthy terminal state
func (l *Logger) OperationSuccess(operation, instance string) {
	l.slogLogger.OperationSuccess(operation, instance)
}

// OperationFailed logs a lifecycle operation that failed or timed out
func (l *Logger) OperationFailed(operation, instance string, err error) {
	l.slogLogger.OperationFailed(operation, instance, err)
}

// RunSummary logs the end-of-run summary
func (l *Logger) RunSummary(succeeded, failed, total int) {
	l.slogLogger.RunSummary(succeeded, failed, total)
}
