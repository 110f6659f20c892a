package entity

import (
	"fmt"
	"reflect"
)

// Descriptor declares one property of an entity type. Descriptors are built
// with NewProperty and NewChild.
type Descriptor interface {
	Name() string
	// Default returns a fresh copy of the value seeded into new entities.
	Default() any
	// GoType is the declared value type. Child slots may declare an interface.
	GoType() reflect.Type
	// IsChild reports whether the slot holds a nested entity.
	IsChild() bool

	coerce(value any) (any, error)
}

// Type is the explicit schema of an entity type: a factory plus an ordered
// list of property descriptors. Types are the constructible members placed in
// a namespace tree.
type Type struct {
	name    string
	goType  reflect.Type
	factory func() Entity
	props   []Descriptor
	index   map[string]int
}

// Define registers the schema for E. factory must return a fresh, zero-valued
// instance each call. Define panics on a nil factory or duplicate property
// names, since both are programming errors caught at init time.
func Define[E Entity](factory func() E, props ...Descriptor) *Type {
	if factory == nil {
		panic("entity: Define requires a factory")
	}
	goType := reflect.TypeOf((*E)(nil)).Elem()
	name := goType.String()
	if goType.Kind() == reflect.Pointer {
		name = goType.Elem().Name()
	}

	t := &Type{
		name:    name,
		goType:  goType,
		factory: func() Entity { return factory() },
		props:   make([]Descriptor, 0, len(props)),
		index:   make(map[string]int, len(props)),
	}
	for _, prop := range props {
		if prop == nil {
			continue
		}
		if prop.Name() == "" {
			panic(fmt.Sprintf("entity: %s declares a property with an empty name", name))
		}
		if _, dup := t.index[prop.Name()]; dup {
			panic(fmt.Sprintf("entity: %s declares property %q twice", name, prop.Name()))
		}
		t.index[prop.Name()] = len(t.props)
		t.props = append(t.props, prop)
	}
	return t
}

// TypeName returns the Go type name used in messages. It is not the class
// identifier, which depends on the namespace tree.
func (t *Type) TypeName() string {
	if t == nil {
		return "<nil>"
	}
	return t.name
}

// GoType returns the concrete entity type produced by the factory.
func (t *Type) GoType() reflect.Type {
	return t.goType
}

// Properties returns the ordered property descriptors.
func (t *Type) Properties() []Descriptor {
	return append([]Descriptor(nil), t.props...)
}

// Property returns the descriptor for name.
func (t *Type) Property(name string) (Descriptor, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.props[i], true
}

func (t *Type) String() string {
	return t.TypeName()
}

// Property is a typed accessor for a scalar slot.
type Property[V any] struct {
	name string
	def  V
}

// NewProperty declares a scalar property with a default value.
func NewProperty[V any](name string, def V) *Property[V] {
	return &Property[V]{name: name, def: def}
}

func (p *Property[V]) Name() string { return p.name }

func (p *Property[V]) Default() any {
	if isNil(p.def) {
		return nil
	}
	return cloneValue(p.def)
}

func (p *Property[V]) GoType() reflect.Type { return typeOf[V]() }

func (p *Property[V]) IsChild() bool { return false }

// Get returns the stored value, or the zero V when the slot is empty.
func (p *Property[V]) Get(e Entity) V {
	var zero V
	if e == nil {
		return zero
	}
	value, ok := e.Core().GetProperty(p.name).(V)
	if !ok {
		return zero
	}
	return value
}

// Set stores value through the entity's accessor layer.
func (p *Property[V]) Set(e Entity, value V) error {
	if e == nil {
		return ErrNotConstructed
	}
	return e.Core().SetProperty(p.name, value)
}

func (p *Property[V]) coerce(value any) (any, error) {
	return coerce(value, typeOf[V]())
}

// ChildProperty is a typed accessor for a slot holding a nested entity. V may
// be an interface to make the slot polymorphic.
type ChildProperty[V Entity] struct {
	name string
}

// NewChild declares a nested entity slot. Child slots start empty.
func NewChild[V Entity](name string) *ChildProperty[V] {
	return &ChildProperty[V]{name: name}
}

func (p *ChildProperty[V]) Name() string { return p.name }

func (p *ChildProperty[V]) Default() any { return nil }

func (p *ChildProperty[V]) GoType() reflect.Type { return typeOf[V]() }

func (p *ChildProperty[V]) IsChild() bool { return true }

// Get returns the nested entity, or the zero V when the slot is empty.
func (p *ChildProperty[V]) Get(e Entity) V {
	var zero V
	if e == nil {
		return zero
	}
	value, ok := e.Core().GetProperty(p.name).(V)
	if !ok {
		return zero
	}
	return value
}

// Set stores child in the slot, registering it as a child of e.
func (p *ChildProperty[V]) Set(e Entity, child V) error {
	if e == nil {
		return ErrNotConstructed
	}
	if isNil(child) {
		return e.Core().SetProperty(p.name, nil)
	}
	return e.Core().SetProperty(p.name, child)
}

// Clear empties the slot and releases the previous child.
func (p *ChildProperty[V]) Clear(e Entity) error {
	if e == nil {
		return ErrNotConstructed
	}
	return e.Core().SetProperty(p.name, nil)
}

func (p *ChildProperty[V]) coerce(value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}
	if _, ok := value.(V); !ok {
		return nil, fmt.Errorf("%w: property %q expects %s, got %T", ErrPropertyType, p.name, typeOf[V](), value)
	}
	return value, nil
}

func typeOf[V any]() reflect.Type {
	return reflect.TypeOf((*V)(nil)).Elem()
}
