package entity

import "context"

// Action names the operation an Authorizer is asked about.
type Action string

const (
	ActionCreate Action = "create"
	ActionFetch  Action = "fetch"
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Authorizer decides whether the caller in ctx may perform action on e. For
// ActionCreate and ActionFetch, e is the blank instance about to be populated.
type Authorizer interface {
	Authorize(ctx context.Context, action Action, e Entity) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, action Action, e Entity) bool

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, action Action, e Entity) bool {
	if f == nil {
		return true
	}
	return f(ctx, action, e)
}

type allowAll struct{}

func (allowAll) Authorize(context.Context, Action, Entity) bool { return true }
