package entity

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-entity/identity"
)

var (
	// ErrUnimplemented is returned by the default Create and Fetch hooks and by
	// Save when the entity lacks the hook for the pending action.
	ErrUnimplemented = errors.New("entity: unimplemented")
	// ErrInvalidStateTransition reports a lifecycle call that is illegal in the
	// current state.
	ErrInvalidStateTransition = errors.New("entity: invalid state transition")
	// ErrNotFound aliases identity.ErrNotFound so callers need one import.
	ErrNotFound = identity.ErrNotFound
	// ErrDepthExceeded aliases identity.ErrDepthExceeded.
	ErrDepthExceeded = identity.ErrDepthExceeded
	// ErrTypeNotAllowed reports a payload naming a type the target slot cannot hold.
	ErrTypeNotAllowed = errors.New("entity: type not allowed")
	// ErrUnknownProperty reports access to a name missing from the type schema.
	ErrUnknownProperty = errors.New("entity: unknown property")
	// ErrPropertyType reports a value that does not fit the declared property type.
	ErrPropertyType = errors.New("entity: property type mismatch")
	// ErrNotSavable reports a Save on an entity that is clean, invalid or busy.
	ErrNotSavable = errors.New("entity: not savable")
	// ErrUnauthorized reports an action the Authorizer refused.
	ErrUnauthorized = errors.New("entity: unauthorized")
	// ErrCycle reports an entity graph that references itself.
	ErrCycle = errors.New("entity: cycle in entity graph")
	// ErrNotConstructed reports use of an entity that was not built by a Runtime.
	ErrNotConstructed = errors.New("entity: not constructed by a runtime")
)

// StateError describes a refused lifecycle transition.
type StateError struct {
	Op         string
	Identifier string
	Reason     string
	Err        error
}

func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	identifier := e.Identifier
	if identifier == "" {
		identifier = "<unbound>"
	}
	if e.Reason == "" {
		return fmt.Sprintf("entity: %s %s: %v", e.Op, identifier, e.Err)
	}
	return fmt.Sprintf("entity: %s %s: %s: %v", e.Op, identifier, e.Reason, e.Err)
}

func (e *StateError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (b *Base) stateError(op, reason string) error {
	return &StateError{
		Op:         op,
		Identifier: b.classIdentifier,
		Reason:     reason,
		Err:        ErrInvalidStateTransition,
	}
}
