package entity

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/goliatone/go-entity/rules"
	"github.com/google/uuid"
)

// Entity is implemented by every business object. Concrete types embed Base
// and override Create and Fetch with pointer receivers:
//
//	type Widget struct{ entity.Base }
//
//	func (w *Widget) Create(ctx context.Context, params any) error {
//		return w.Load(func() error { return widgetX.Set(w, 1) })
//	}
type Entity interface {
	// Core exposes the embedded state model.
	Core() *Base
	// Create populates a new instance. The default returns ErrUnimplemented.
	Create(ctx context.Context, params any) error
	// Fetch populates an existing instance. The default returns ErrUnimplemented.
	Fetch(ctx context.Context, params any) error
}

// Inserter persists a new entity during Save.
type Inserter interface {
	Insert(ctx context.Context) error
}

// Updater persists changes to an existing entity during Save.
type Updater interface {
	Update(ctx context.Context) error
}

// Deleter removes a deleted entity during Save.
type Deleter interface {
	Delete(ctx context.Context) error
}

// Base carries the property store, lifecycle flags and parent/child graph of a
// single entity. A Base is not safe for concurrent mutation; callers own
// exclusive access to an entity and its children for the duration of an edit.
type Base struct {
	typ             *Type
	rt              *Runtime
	self            Entity
	classIdentifier string
	instanceID      uuid.UUID

	values   map[string]any
	children []Entity
	parent   Entity

	isNew       bool
	isSelfDirty bool
	isDeleted   bool
	isChild     bool
	isBusy      bool
	isLoading   bool

	brokenRules []rules.BrokenRule

	// ctx carries request values (such as the actor) into change events
	// raised outside a portal call.
	ctx context.Context
}

// Core implements Entity.
func (b *Base) Core() *Base { return b }

// Create implements Entity. Concrete types override it.
func (b *Base) Create(context.Context, any) error {
	return fmt.Errorf("%w: %s does not implement Create", ErrUnimplemented, b.describe())
}

// Fetch implements Entity. Concrete types override it.
func (b *Base) Fetch(context.Context, any) error {
	return fmt.Errorf("%w: %s does not implement Fetch", ErrUnimplemented, b.describe())
}

// bind assigns identity and seeds defaults. It runs exactly once, before any
// property access.
func (b *Base) bind(rt *Runtime, t *Type, self Entity, classIdentifier string) {
	b.rt = rt
	b.typ = t
	b.self = self
	b.classIdentifier = classIdentifier
	b.instanceID = uuid.New()
	b.isNew = true
	b.values = make(map[string]any, len(t.props))
	for _, prop := range t.props {
		b.values[prop.Name()] = prop.Default()
	}
}

func (b *Base) bound() bool {
	return b != nil && b.typ != nil
}

func (b *Base) describe() string {
	if b == nil || b.classIdentifier == "" {
		return "entity"
	}
	return b.classIdentifier
}

// ClassIdentifier is the dotted path of the entity's type in the runtime scope.
func (b *Base) ClassIdentifier() string { return b.classIdentifier }

// InstanceID is a per-instance id used for notifications and logs. It is not
// serialized.
func (b *Base) InstanceID() uuid.UUID { return b.instanceID }

// Type returns the schema the entity was built from.
func (b *Base) Type() *Type { return b.typ }

// Runtime returns the runtime that built the entity.
func (b *Base) Runtime() *Runtime { return b.rt }

// Parent returns the entity holding this one in a child slot, if any.
func (b *Base) Parent() Entity { return b.parent }

// Children returns the registered nested entities in assignment order.
func (b *Base) Children() []Entity {
	return append([]Entity(nil), b.children...)
}

// GetProperty reads the backing store. Unknown names and unbound entities
// read as nil.
func (b *Base) GetProperty(name string) any {
	if !b.bound() {
		return nil
	}
	return b.values[name]
}

// SetProperty writes the backing store. Assigning a different value while not
// loading marks the entity dirty. Entity values maintain the child registry
// and the child's parent reference.
func (b *Base) SetProperty(name string, value any) error {
	if !b.bound() {
		return ErrNotConstructed
	}
	prop, ok := b.typ.Property(name)
	if !ok {
		return fmt.Errorf("%w: %s has no property %q", ErrUnknownProperty, b.classIdentifier, name)
	}
	if isNil(value) {
		value = nil
	}
	if err := checkAssignable(prop, value); err != nil {
		return err
	}

	previous := b.values[name]
	changed := !valuesEqual(previous, value)
	if changed && !b.isLoading {
		b.MarkDirty(false)
	}

	if old, ok := previous.(Entity); ok && changed {
		b.removeChild(old)
	}
	if next, ok := value.(Entity); ok {
		b.addChild(next)
	}
	b.values[name] = value

	if changed && !b.isLoading {
		b.notifyPropertyChanged(name, previous, value)
	}
	return nil
}

func checkAssignable(prop Descriptor, value any) error {
	if value == nil {
		return nil
	}
	_, isEntity := value.(Entity)
	if isEntity != prop.IsChild() {
		if isEntity {
			return fmt.Errorf("%w: property %q holds values, not entities", ErrPropertyType, prop.Name())
		}
		return fmt.Errorf("%w: property %q holds entities, got %T", ErrPropertyType, prop.Name(), value)
	}
	if !reflect.TypeOf(value).AssignableTo(prop.GoType()) {
		return fmt.Errorf("%w: property %q expects %s, got %T", ErrPropertyType, prop.Name(), prop.GoType(), value)
	}
	if isEntity && !value.(Entity).Core().bound() {
		return fmt.Errorf("%w: child for property %q", ErrNotConstructed, prop.Name())
	}
	return nil
}

func (b *Base) addChild(child Entity) {
	core := child.Core()
	if !slices.ContainsFunc(b.children, func(e Entity) bool { return e.Core() == core }) {
		b.children = append(b.children, child)
	}
	core.parent = b.self
}

func (b *Base) removeChild(child Entity) {
	core := child.Core()
	if b.holdsChild(core) {
		return
	}
	b.children = slices.DeleteFunc(b.children, func(e Entity) bool { return e.Core() == core })
	if core.parent != nil && core.parent.Core() == b {
		core.parent = nil
	}
}

// holdsChild reports whether another slot still references core.
func (b *Base) holdsChild(core *Base) bool {
	count := 0
	for _, value := range b.values {
		if e, ok := value.(Entity); ok && e.Core() == core {
			count++
		}
	}
	return count > 1
}
