package entity

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/goliatone/go-entity/pkg/activity"
)

// Portal creates, fetches and saves entities against a runtime. Callers pass
// parameters of any shape; only the target type's hooks interpret them.
type Portal struct {
	rt *Runtime
}

// NewPortal wraps rt.
func NewPortal(rt *Runtime) *Portal {
	return &Portal{rt: rt}
}

// Runtime returns the runtime the portal dispatches through.
func (p *Portal) Runtime() *Runtime { return p.rt }

// CreateWithType builds a new t and runs its Create hook. Types that do not
// override Create fail with ErrUnimplemented.
func (p *Portal) CreateWithType(ctx context.Context, t *Type, params any) (e Entity, err error) {
	return p.dispatch(ctx, "create", ActionCreate, t, params)
}

// CreateWithIdentifier resolves identifier and delegates to CreateWithType.
func (p *Portal) CreateWithIdentifier(ctx context.Context, identifier string, params any) (Entity, error) {
	t, err := p.rt.Lookup(identifier)
	if err != nil {
		p.rt.observe("create", "", time.Now(), err)
		return nil, err
	}
	return p.CreateWithType(ctx, t, params)
}

// FetchWithType builds a t, runs its Fetch hook and marks it old.
func (p *Portal) FetchWithType(ctx context.Context, t *Type, params any) (Entity, error) {
	return p.dispatch(ctx, "fetch", ActionFetch, t, params)
}

// FetchWithIdentifier resolves identifier and delegates to FetchWithType.
func (p *Portal) FetchWithIdentifier(ctx context.Context, identifier string, params any) (Entity, error) {
	t, err := p.rt.Lookup(identifier)
	if err != nil {
		p.rt.observe("fetch", "", time.Now(), err)
		return nil, err
	}
	return p.FetchWithType(ctx, t, params)
}

func (p *Portal) dispatch(ctx context.Context, op string, action Action, t *Type, params any) (e Entity, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	identifier := t.TypeName()
	defer func() { p.rt.observe(op, identifier, start, err) }()

	e, err = p.rt.New(t)
	if err != nil {
		return nil, err
	}
	core := e.Core()
	identifier = core.classIdentifier
	core.SetContext(ctx)

	if !p.rt.authorize(ctx, action, e) {
		return nil, fmt.Errorf("%w: %s %s", ErrUnauthorized, action, identifier)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch action {
	case ActionFetch:
		if err = e.Fetch(ctx, params); err != nil {
			return nil, err
		}
		core.MarkOld()
		p.rt.emit(ctx, verbFetched, core, activity.EntityEventInput{})
	default:
		if err = e.Create(ctx, params); err != nil {
			return nil, err
		}
		p.rt.emit(ctx, verbCreated, core, activity.EntityEventInput{})
	}
	return e, nil
}

// Save persists e through its Inserter, Updater or Deleter hook, picked from
// the lifecycle flags. Rules are checked first and the entity must be
// savable. Child entities are saved through their parent.
func (p *Portal) Save(ctx context.Context, e Entity) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if isNil(e) || !e.Core().bound() {
		return ErrNotConstructed
	}
	core := e.Core()
	core.SetContext(ctx)
	action := saveAction(core)
	start := time.Now()
	defer func() { p.rt.observe("save:"+string(action), core.classIdentifier, start, err) }()

	if core.isChild {
		return core.stateError("Save", "child entities are saved through their parent")
	}
	if err = core.CheckRules(ctx); err != nil {
		return err
	}
	if !p.rt.authorize(ctx, action, e) {
		return fmt.Errorf("%w: %s %s", ErrUnauthorized, action, core.classIdentifier)
	}
	if reason := core.unsavableReason(); reason != "" {
		return fmt.Errorf("%w: %s is %s", ErrNotSavable, core.classIdentifier, reason)
	}

	if err = core.MarkBusy(); err != nil {
		return err
	}
	defer core.MarkIdle()

	switch {
	case core.isDeleted && core.isNew:
		// never persisted, nothing to remove
		core.MarkNew()
	case core.isDeleted:
		deleter, ok := e.(Deleter)
		if !ok {
			return fmt.Errorf("%w: %s does not implement Delete", ErrUnimplemented, core.classIdentifier)
		}
		if err = deleter.Delete(ctx); err != nil {
			return err
		}
		core.MarkNew()
	case core.isNew:
		inserter, ok := e.(Inserter)
		if !ok {
			return fmt.Errorf("%w: %s does not implement Insert", ErrUnimplemented, core.classIdentifier)
		}
		if err = inserter.Insert(ctx); err != nil {
			return err
		}
		core.MarkSaved()
	default:
		updater, ok := e.(Updater)
		if !ok {
			return fmt.Errorf("%w: %s does not implement Update", ErrUnimplemented, core.classIdentifier)
		}
		if err = updater.Update(ctx); err != nil {
			return err
		}
		core.MarkSaved()
	}

	p.rt.emit(ctx, verbSaved, core, activity.EntityEventInput{
		Metadata: map[string]any{"action": string(action)},
	})
	return nil
}

func saveAction(b *Base) Action {
	switch {
	case b.isDeleted:
		return ActionDelete
	case b.isNew:
		return ActionInsert
	default:
		return ActionUpdate
	}
}

// unsavableReason mirrors IsSavable without the authorization check.
func (b *Base) unsavableReason() string {
	switch {
	case b.isBusy:
		return "busy"
	case !b.IsDirty():
		return "not dirty"
	case !b.IsValid():
		return "invalid"
	default:
		return ""
	}
}

// MarkSaved marks the entity and its live children old, as after a successful
// insert or update. Deleted children are detached from their parent and
// left clean.
func (b *Base) MarkSaved() {
	seen := map[*Base]struct{}{}
	var visit func(core *Base)
	visit = func(core *Base) {
		if _, ok := seen[core]; ok {
			return
		}
		seen[core] = struct{}{}
		for _, child := range slices.Clone(core.children) {
			if child.Core().isDeleted {
				core.detachChild(child)
				continue
			}
			visit(child.Core())
		}
		core.MarkOld()
	}
	visit(b)
}

// detachChild clears every slot holding child and drops it from the registry.
func (b *Base) detachChild(child Entity) {
	core := child.Core()
	for name, value := range b.values {
		if e, ok := value.(Entity); ok && e.Core() == core {
			b.values[name] = nil
		}
	}
	b.children = slices.DeleteFunc(b.children, func(e Entity) bool { return e.Core() == core })
	if core.parent != nil && core.parent.Core() == b {
		core.parent = nil
	}
	core.MarkClean()
}
