package entity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-entity/config"
	"github.com/goliatone/go-entity/identity"
	"github.com/goliatone/go-entity/internal/hydrate"
	"github.com/goliatone/go-entity/pkg/activity"
	"github.com/goliatone/go-entity/rules"
)

// Runtime binds a namespace tree to a configuration and the external
// collaborators (rules, authorization, activity hooks, logging). It builds
// entities, resolves identifiers and runs the serializer. A Runtime is safe
// for concurrent use; the entities it builds are not.
type Runtime struct {
	cfg        config.Config
	resolver   *identity.Resolver
	emitter    *activity.Emitter
	logger     OperationLogger
	authorizer Authorizer
	rules      map[*Type]rules.Set
	decoder    *hydrate.Decoder

	allowedMu sync.RWMutex
	allowed   map[Descriptor][]*Type
}

// NewRuntime validates the configuration and binds scope. The scope must not
// be mutated afterwards.
func NewRuntime(scope identity.Namespace, opts ...Option) (*Runtime, error) {
	rc := applyOptions(opts)
	if err := rc.cfg.Validate(); err != nil {
		return nil, err
	}

	decoderOpts := []hydrate.DecoderOption{hydrate.WithUseNumber()}
	for _, hook := range rc.payloadHooks {
		decoderOpts = append(decoderOpts, hydrate.WithPreHook(hook))
	}

	emitter := activity.NewEmitter(rc.hooks, activity.Config{
		Enabled:  len(rc.hooks) > 0,
		Channel:  rc.channel,
		Verbs:    rc.verbs,
		Metadata: rc.metadata,
	})
	rt := &Runtime{
		cfg:        rc.cfg,
		resolver:   identity.NewResolver(scope, identity.WithMaxDepth(rc.cfg.MaxSearchDepth)),
		emitter:    emitter,
		logger:     rc.logger,
		authorizer: rc.authorizer,
		rules:      make(map[*Type]rules.Set, len(rc.rules)),
		decoder:    hydrate.NewDecoder(decoderOpts...),
		allowed:    map[Descriptor][]*Type{},
	}
	if rt.logger == nil {
		rt.logger = noopOperationLogger{}
	}
	if rt.authorizer == nil {
		rt.authorizer = allowAll{}
	}
	for t, set := range rc.rules {
		rt.rules[t] = append(rules.Set(nil), set...)
	}
	return rt, nil
}

// MustRuntime is NewRuntime for package-level setup; it panics on error.
func MustRuntime(scope identity.Namespace, opts ...Option) *Runtime {
	rt, err := NewRuntime(scope, opts...)
	if err != nil {
		panic(err)
	}
	return rt
}

// Config returns the configuration the runtime was built with.
func (rt *Runtime) Config() config.Config { return rt.cfg }

// Scope returns the namespace tree.
func (rt *Runtime) Scope() identity.Namespace { return rt.resolver.Scope() }

// Resolve returns the class identifier of t within the runtime scope.
func (rt *Runtime) Resolve(t *Type) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%w: nil type", ErrNotFound)
	}
	return rt.resolver.Resolve(t)
}

// Lookup returns the type registered at identifier.
func (rt *Runtime) Lookup(identifier string) (*Type, error) {
	member, err := rt.resolver.Lookup(identifier)
	if err != nil {
		return nil, err
	}
	t, ok := member.(*Type)
	if !ok || t == nil {
		return nil, &identity.ResolveError{
			Op:         "lookup",
			Identifier: identifier,
			Err:        fmt.Errorf("%w: member is %T, not an entity type", ErrNotFound, member),
		}
	}
	return t, nil
}

// New builds a blank entity of t: identifier assigned, defaults seeded,
// isNew set. No lifecycle hook runs.
func (rt *Runtime) New(t *Type) (Entity, error) {
	identifier, err := rt.Resolve(t)
	if err != nil {
		return nil, err
	}
	e := t.factory()
	if isNil(e) {
		return nil, fmt.Errorf("%w: factory for %s returned nil", ErrNotConstructed, t.TypeName())
	}
	core := e.Core()
	if core == nil {
		return nil, fmt.Errorf("%w: %s has no Base", ErrNotConstructed, t.TypeName())
	}
	if core.bound() {
		return nil, fmt.Errorf("%w: factory for %s returned an instance that is already bound", ErrNotConstructed, t.TypeName())
	}
	core.bind(rt, t, e, identifier)
	return e, nil
}

// Instantiate looks identifier up and builds a blank instance of it.
func (rt *Runtime) Instantiate(identifier string) (Entity, error) {
	t, err := rt.Lookup(identifier)
	if err != nil {
		return nil, err
	}
	return rt.New(t)
}

// NewAs is New with the result asserted to E.
func NewAs[E Entity](rt *Runtime, t *Type) (E, error) {
	var zero E
	e, err := rt.New(t)
	if err != nil {
		return zero, err
	}
	typed, ok := e.(E)
	if !ok {
		return zero, fmt.Errorf("%w: %s builds %T, not %s", ErrPropertyType, t.TypeName(), e, typeOf[E]())
	}
	return typed, nil
}

// AllowedTypes lists the registered types a child slot may hold during
// deserialization: every type in scope whose Go type is assignable to the
// slot's declared type. Scalar descriptors allow nothing.
func (rt *Runtime) AllowedTypes(d Descriptor) []*Type {
	if d == nil || !d.IsChild() {
		return nil
	}
	rt.allowedMu.RLock()
	cached, ok := rt.allowed[d]
	rt.allowedMu.RUnlock()
	if ok {
		return append([]*Type(nil), cached...)
	}

	target := d.GoType()
	var out []*Type
	_ = rt.resolver.Walk(func(_ string, c identity.Constructible) error {
		if t, ok := c.(*Type); ok && t.goType.AssignableTo(target) {
			out = append(out, t)
		}
		return nil
	})

	rt.allowedMu.Lock()
	rt.allowed[d] = out
	rt.allowedMu.Unlock()
	return append([]*Type(nil), out...)
}

func (rt *Runtime) allows(d Descriptor, t *Type) bool {
	for _, candidate := range rt.AllowedTypes(d) {
		if candidate == t {
			return true
		}
	}
	return false
}

func (rt *Runtime) rulesFor(t *Type) rules.Set {
	if rt == nil {
		return nil
	}
	return rt.rules[t]
}

func (rt *Runtime) authorize(ctx context.Context, action Action, e Entity) bool {
	if rt == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return rt.authorizer.Authorize(ctx, action, e)
}

func (rt *Runtime) observe(operation, identifier string, start time.Time, err error) {
	rt.logger.LogOperation(OperationEvent{
		Operation:  operation,
		Identifier: identifier,
		Duration:   time.Since(start),
		Err:        err,
	})
}
