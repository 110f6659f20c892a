// Package identity maps constructible types to dotted identifiers derived from
// their position inside a caller-owned namespace tree, and back again.
//
// Identifiers are structural: the same type carries different identifiers in
// different trees, and two members of one tree can never collide because a
// path names exactly one member.
//
//	scope := identity.Namespace{
//		"Demo": identity.Namespace{"Widget": WidgetType},
//	}
//	id, _ := identity.Resolve(scope, WidgetType, identity.DefaultMaxDepth) // "Demo.Widget"
package identity

import (
	"reflect"
	"slices"
	"strings"
)

// Separator joins namespace segments inside an identifier.
const Separator = "."

// DefaultMaxDepth bounds namespace searches when no explicit limit is given.
const DefaultMaxDepth = 10

// Constructible marks namespace members that can be instantiated. Implementations
// must be comparable (typically pointers) because resolution matches members by
// equality.
type Constructible interface {
	TypeName() string
}

// Namespace is a caller-owned tree of named members. Each member is either a
// nested Namespace (a plain map[string]any is accepted too) or a Constructible.
// Any other value is ignored by Resolve and rejected by Lookup.
type Namespace map[string]any

// Keys returns the member names sorted so searches are deterministic.
func (n Namespace) Keys() []string {
	if len(n) == 0 {
		return nil
	}
	keys := make([]string, 0, len(n))
	for key := range n {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func asNamespace(value any) (Namespace, bool) {
	switch typed := value.(type) {
	case Namespace:
		return typed, true
	case map[string]any:
		return Namespace(typed), true
	default:
		return nil, false
	}
}

func asConstructible(value any) (Constructible, bool) {
	if value == nil {
		return nil, false
	}
	c, ok := value.(Constructible)
	if !ok {
		return nil, false
	}
	if rv := reflect.ValueOf(c); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, false
	}
	return c, true
}

func isComparable(c Constructible) bool {
	return c != nil && reflect.TypeOf(c).Comparable()
}

func sameConstructible(member, target Constructible) bool {
	mt := reflect.TypeOf(member)
	if mt != reflect.TypeOf(target) || !mt.Comparable() {
		return false
	}
	return member == target
}

// Join builds an identifier from path segments.
func Join(segments ...string) string {
	return strings.Join(segments, Separator)
}

// Split breaks an identifier into its path segments.
func Split(identifier string) []string {
	if identifier == "" {
		return nil
	}
	return strings.Split(identifier, Separator)
}
