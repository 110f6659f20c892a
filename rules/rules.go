// Package rules evaluates business rules against an entity snapshot and
// reports violations as BrokenRule records. Rules are either plain Go
// predicates or expressions run by one of the bundled evaluators (expr, CEL,
// and JavaScript behind the js_eval build tag).
package rules

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// Severity ranks a broken rule. Only SeverityError affects validity.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInformation
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// BrokenRule records one failed rule.
type BrokenRule struct {
	Rule        string   `json:"rule"`
	Property    string   `json:"property,omitempty"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
}

// Context carries the inputs a rule is checked against. Snapshot maps property
// names to values; nested entities appear as nested maps.
type Context struct {
	Identifier string
	Snapshot   map[string]any
	Now        *time.Time
	Args       map[string]any
	Metadata   map[string]any
}

func (c Context) withDefaults() Context {
	if c.Now == nil {
		now := time.Now()
		c.Now = &now
	}
	if c.Snapshot == nil {
		c.Snapshot = map[string]any{}
	}
	if c.Args == nil {
		c.Args = map[string]any{}
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return c
}

func (c Context) timestamp() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return *c.Now
}

func (c Context) label() string {
	if c.Identifier != "" {
		return c.Identifier
	}
	return "unknown"
}

// Rule checks a snapshot and returns the violations it finds. An error means
// the rule could not be evaluated, not that it failed.
type Rule interface {
	Name() string
	Check(ctx context.Context, rc Context) ([]BrokenRule, error)
}

// Set is an ordered group of rules bound to one entity type.
type Set []Rule

// Check runs every rule in order and concatenates their violations. It stops at
// the first evaluation error or when ctx is done.
func (s Set) Check(ctx context.Context, rc Context) ([]BrokenRule, error) {
	if len(s) == 0 {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rc = rc.withDefaults()
	var broken []BrokenRule
	for _, rule := range s {
		if rule == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return broken, err
		}
		found, err := rule.Check(ctx, rc)
		if err != nil {
			return broken, fmt.Errorf("rules: %s: %w", rule.Name(), err)
		}
		broken = append(broken, found...)
	}
	return broken, nil
}

// HasErrors reports whether any broken rule carries SeverityError.
func HasErrors(broken []BrokenRule) bool {
	for _, br := range broken {
		if br.Severity == SeverityError {
			return true
		}
	}
	return false
}

// PredicateFunc decides whether a snapshot passes.
type PredicateFunc func(ctx context.Context, rc Context) bool

type predicateRule struct {
	name        string
	property    string
	description string
	severity    Severity
	pass        PredicateFunc
}

// Predicate builds an error-severity rule from a Go function.
func Predicate(name, property, description string, pass PredicateFunc) Rule {
	return Severe(SeverityError, name, property, description, pass)
}

// Severe builds a predicate rule with an explicit severity.
func Severe(severity Severity, name, property, description string, pass PredicateFunc) Rule {
	return &predicateRule{
		name:        name,
		property:    property,
		description: description,
		severity:    severity,
		pass:        pass,
	}
}

func (r *predicateRule) Name() string { return r.name }

func (r *predicateRule) Check(ctx context.Context, rc Context) ([]BrokenRule, error) {
	if r.pass == nil {
		return nil, fmt.Errorf("predicate %q is nil", r.name)
	}
	if r.pass(ctx, rc) {
		return nil, nil
	}
	return []BrokenRule{{
		Rule:        r.name,
		Property:    r.property,
		Description: r.description,
		Severity:    r.severity,
	}}, nil
}

// Required fails when property is absent, nil, or the zero value of its type.
func Required(property string) Rule {
	return Predicate("required:"+property, property, property+" is required", func(_ context.Context, rc Context) bool {
		value, ok := rc.Snapshot[property]
		if !ok || value == nil {
			return false
		}
		return !reflect.ValueOf(value).IsZero()
	})
}
