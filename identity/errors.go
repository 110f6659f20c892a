package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates an identifier or type does not resolve within a scope.
	ErrNotFound = errors.New("identity: not found")
	// ErrDepthExceeded indicates a namespace search hit the configured depth bound.
	ErrDepthExceeded = errors.New("identity: namespace depth exceeded")
)

// ResolveError carries the identifier or path a failed resolution attempted.
type ResolveError struct {
	Op         string
	Identifier string
	Path       []string
	MaxDepth   int
	Err        error
}

func (e *ResolveError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("identity: ")
	b.WriteString(e.Op)
	if e.Identifier != "" {
		fmt.Fprintf(&b, " %q", e.Identifier)
	}
	if len(e.Path) > 0 {
		fmt.Fprintf(&b, " path=%s", Join(e.Path...))
	}
	if errors.Is(e.Err, ErrDepthExceeded) {
		fmt.Fprintf(&b, " max_depth=%d", e.MaxDepth)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ResolveError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func notFound(op, identifier string, path []string, reason string) error {
	err := ErrNotFound
	if reason != "" {
		err = fmt.Errorf("%w: %s", ErrNotFound, reason)
	}
	return &ResolveError{
		Op:         op,
		Identifier: identifier,
		Path:       append([]string(nil), path...),
		Err:        err,
	}
}
