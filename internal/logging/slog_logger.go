package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

// CorrelationIDKey is the context key for correlation IDs
const CorrelationIDKey contextKey = "correlationID"

// SlogLogger provides structured logging using slog
type SlogLogger struct {
	logger    *slog.Logger
	component string
}

// NewSlogLogger creates a new logger using slog backend
func NewSlogLogger(component string) *SlogLogger {
	handler := createHandler()
	logger := slog.New(handler)

	return &SlogLogger{
		logger:    logger,
		component: component,
	}
}

// createHandler creates an appropriate slog handler based on environment variables
func createHandler() slog.Handler {
	var output io.Writer = os.Stdout
	level := getLogLevelSlog()

	format := strings.ToUpper(os.Getenv("UPFLEET_LOG_FORMAT"))
	switch format {
	case "JSON":
		return slog.NewJSONHandler(output, &slog.HandlerOptions{
			Level:       level,
			AddSource:   false,
			ReplaceAttr: replaceAttr,
		})
	default:
		return slog.NewTextHandler(output, &slog.HandlerOptions{
			Level:       level,
			AddSource:   false,
			ReplaceAttr: replaceAttr,
		})
	}
}

// getLogLevelSlog determines the slog level from environment
func getLogLevelSlog() slog.Level {
	levelStr := strings.ToUpper(os.Getenv("UPFLEET_LOG_LEVEL"))
	switch levelStr {
	case "TRACE", "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// replaceAttr customizes attribute names and values
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		switch level {
		case slog.LevelDebug:
			return slog.Attr{Key: a.Key, Value: slog.StringValue("DEBUG")}
		case slog.LevelInfo:
			return slog.Attr{Key: a.Key, Value: slog.StringValue("INFO")}
		case slog.LevelWarn:
			return slog.Attr{Key: a.Key, Value: slog.StringValue("WARN")}
		case slog.LevelError:
			return slog.Attr{Key: a.Key, Value: slog.StringValue("ERROR")}
		}
	}
	return a
}

// Debugf logs a formatted debug message
func (l *SlogLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(format, "component", l.component, "args", args)
}

// Infof logs a formatted info message
func (l *SlogLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(format, "component", l.component, "args", args)
}

// Warnf logs a formatted warning message
func (l *SlogLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn(format, "component", l.component, "args", args)
}

// Errorf logs a formatted error message
func (l *SlogLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(format, "component", l.component, "args", args)
}

// WithContext returns a logger with context information
func (l *SlogLogger) WithContext(ctx context.Context) *SlogLogger {
	if corrID, ok := ctx.Value(CorrelationIDKey).(string); ok {
		contextLogger := l.logger.With("correlation_id", corrID)
		return &SlogLogger{
			logger:    contextLogger,
			component: l.component,
		}
	}
	return l
}

// WithFields returns a logger with additional fields
func (l *SlogLogger) WithFields(fields map[string]interface{}) *SlogLogger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	contextLogger := l.logger.With(args...)
	return &SlogLogger{
		logger:    contextLogger,
		component: l.component,
	}
}

// Specialized logging methods for fleet lifecycle operations

// OperationStart logs the start of a lifecycle operation on an instance
func (l *SlogLogger) OperationStart(operation, instance string, current, total int) {
	l.logger.Info("Starting instance operation",
		"component", l.component,
		"operation", operation,
		"instance", instance,
		"current", current,
		"total", total)
}

// OperationSuccess logs a lifecycle operation that reached a healthy terminal state
func (l *SlogLogger) OperationSuccess(operation, instance string) {
	l.logger.Info("Instance operation successful",
		"component", l.component,
		"operation", operation,
		"instance", instance,
		"status", "success")
}

// OperationFailed logs a lifecycle operation that failed or timed out
func (l *SlogLogger) OperationFailed(operation, instance string, err error) {
	l.logger.Error("Instance operation failed",
		"component", l.component,
		"operation", operation,
		"instance", instance,
		"status", "failed",
		"error", err)
}

// RunSummary logs the end-of-run summary
func (l *SlogLogger) RunSummary(succeeded, failed, total int) {
	if failed == 0 {
		l.logger.Info("Run completed",
			"component", l.component,
			"succeeded", succeeded,
			"failed", failed,
			"total", total,
			"status", "completed")
	} else {
		l.logger.Warn("Run completed with failures",
			"component", l.component,
			"succeeded", succeeded,
			"failed", failed,
			"total", total,
			"status", "completed_with_failures")
	}
}
