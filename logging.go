package entity

import (
	"log/slog"
	"time"
)

// OperationEvent describes one runtime operation for logging and metrics.
type OperationEvent struct {
	Operation  string
	// Identifier is the class identifier. It is empty when a caller supplied
	// identifier failed to resolve; Err names it.
	Identifier string
	Duration   time.Duration
	Err        error
}

// OperationLogger records runtime operations.
type OperationLogger interface {
	LogOperation(OperationEvent)
}

// OperationLoggerFunc adapts a function to OperationLogger.
type OperationLoggerFunc func(OperationEvent)

// LogOperation implements OperationLogger.
func (f OperationLoggerFunc) LogOperation(event OperationEvent) {
	if f != nil {
		f(event)
	}
}

type noopOperationLogger struct{}

func (noopOperationLogger) LogOperation(OperationEvent) {}

// OperationLoggers fans events out to several loggers.
type OperationLoggers []OperationLogger

// LogOperation implements OperationLogger.
func (l OperationLoggers) LogOperation(event OperationEvent) {
	for _, logger := range l {
		if logger != nil {
			logger.LogOperation(event)
		}
	}
}

// SlogAdapter writes operation events to a *slog.Logger. Successful
// operations log at debug level, failures at error level.
type SlogAdapter struct {
	Logger *slog.Logger
}

// NewSlogAdapter wraps logger, falling back to slog.Default.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{Logger: logger}
}

// LogOperation implements OperationLogger.
func (s *SlogAdapter) LogOperation(event OperationEvent) {
	if s == nil || s.Logger == nil {
		return
	}
	attrs := []any{
		slog.String("operation", event.Operation),
		slog.String("identifier", event.Identifier),
		slog.Duration("duration", event.Duration),
	}
	if event.Err != nil {
		s.Logger.Error("entity operation failed", append(attrs, slog.Any("error", event.Err))...)
		return
	}
	s.Logger.Debug("entity operation", attrs...)
}
