package rules

import (
	"log/slog"
	"time"
)

// EvaluatorLogEvent describes one expression rule evaluation.
type EvaluatorLogEvent struct {
	Engine     string
	Rule       string
	Expr       string
	Identifier string
	Passed     bool
	Duration   time.Duration
	Err        error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// SlogEvaluatorLogger writes evaluations to logger at debug level and failures
// at warn level.
func SlogEvaluatorLogger(logger *slog.Logger) EvaluatorLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
		attrs := []any{
			slog.String("engine", event.Engine),
			slog.String("rule", event.Rule),
			slog.String("entity", event.Identifier),
			slog.Bool("passed", event.Passed),
			slog.Duration("duration", event.Duration),
		}
		if event.Err != nil {
			logger.Warn("rule evaluation failed", append(attrs, slog.Any("error", event.Err))...)
			return
		}
		logger.Debug("rule evaluated", attrs...)
	})
}
