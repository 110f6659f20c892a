package rules

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ExpressionOption configures an expression rule.
type ExpressionOption func(*expressionRule)

// WithEvaluator selects the engine that runs the expression. The default is
// expr-lang.
func WithEvaluator(evaluator Evaluator) ExpressionOption {
	return func(r *expressionRule) {
		if evaluator != nil {
			r.evaluator = evaluator
		}
	}
}

// WithSeverity overrides the default error severity.
func WithSeverity(severity Severity) ExpressionOption {
	return func(r *expressionRule) {
		r.severity = severity
	}
}

// WithDescription sets the message recorded on the broken rule.
func WithDescription(description string) ExpressionOption {
	return func(r *expressionRule) {
		r.description = description
	}
}

// WithEvaluatorLogger reports each evaluation to logger.
func WithEvaluatorLogger(logger EvaluatorLogger) ExpressionOption {
	return func(r *expressionRule) {
		if logger == nil {
			r.logger = noopEvaluatorLogger{}
			return
		}
		r.logger = logger
	}
}

type expressionRule struct {
	name        string
	property    string
	expression  string
	description string
	severity    Severity
	evaluator   Evaluator
	logger      EvaluatorLogger

	once     sync.Once
	compiled CompiledRule
	err      error
}

// Expression builds a rule that passes when expression evaluates to true.
// The expression sees every snapshot property as a variable, plus now, args,
// metadata and identifier.
func Expression(name, property, expression string, opts ...ExpressionOption) Rule {
	r := &expressionRule{
		name:       name,
		property:   property,
		expression: expression,
		severity:   SeverityError,
		logger:     noopEvaluatorLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.evaluator == nil {
		r.evaluator = NewExprEvaluator()
	}
	if r.description == "" {
		r.description = fmt.Sprintf("%s must satisfy %s", name, expression)
	}
	return r
}

func (r *expressionRule) Name() string { return r.name }

func (r *expressionRule) Check(_ context.Context, rc Context) ([]BrokenRule, error) {
	if r.evaluator == nil {
		return nil, ErrNoEvaluator
	}
	r.once.Do(func() {
		r.compiled, r.err = r.evaluator.Compile(r.expression)
	})

	engine := EngineName(r.evaluator)
	start := time.Now()
	passed, err := r.evaluate(rc)
	r.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:     engine,
		Rule:       r.name,
		Expr:       r.expression,
		Identifier: rc.label(),
		Passed:     passed,
		Duration:   time.Since(start),
		Err:        err,
	})
	if err != nil {
		return nil, wrapEvaluationError(engine, r.expression, rc.label(), err)
	}
	if passed {
		return nil, nil
	}
	return []BrokenRule{{
		Rule:        r.name,
		Property:    r.property,
		Description: r.description,
		Severity:    r.severity,
	}}, nil
}

func (r *expressionRule) evaluate(rc Context) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	value, err := r.compiled.Evaluate(rc)
	if err != nil {
		return false, err
	}
	passed, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrNonBoolean, value)
	}
	return passed, nil
}
