package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-entity/internal/hydrate"
)

// Payload is the serialized form of an entity: lifecycle flags plus one entry
// per declared property under its backing-field key. Nested entities appear
// as nested maps carrying ClassIdentifierKey; the root never does.
type Payload map[string]any

// Reserved payload keys.
const (
	ClassIdentifierKey = "classIdentifier"
	IsNewKey           = "isNew"
	IsSelfDirtyKey     = "isSelfDirty"
	IsDeletedKey       = "isDeleted"
	IsChildKey         = "isChild"
)

// FieldKey returns the payload key for a property name.
func (rt *Runtime) FieldKey(name string) string {
	return rt.cfg.BackingFieldPrefix + name
}

// Serialize snapshots e and its nested entities. Scalar values are cloned so
// later edits to the entity do not leak into the payload.
func (rt *Runtime) Serialize(e Entity) (payload Payload, err error) {
	if isNil(e) || !e.Core().bound() {
		return nil, ErrNotConstructed
	}
	core := e.Core()
	start := time.Now()
	defer func() { rt.observe("serialize", core.classIdentifier, start, err) }()

	return rt.serialize(core, map[*Base]struct{}{}, false)
}

func (rt *Runtime) serialize(core *Base, path map[*Base]struct{}, nested bool) (Payload, error) {
	if _, ok := path[core]; ok {
		return nil, fmt.Errorf("%w: %s is reachable from itself", ErrCycle, core.classIdentifier)
	}
	path[core] = struct{}{}
	defer delete(path, core)

	out := Payload{
		IsNewKey:       core.isNew,
		IsSelfDirtyKey: core.isSelfDirty,
		IsDeletedKey:   core.isDeleted,
		IsChildKey:     core.isChild,
	}
	if nested {
		out[ClassIdentifierKey] = core.classIdentifier
	}
	for _, prop := range core.typ.props {
		value := core.values[prop.Name()]
		key := rt.FieldKey(prop.Name())
		if child, ok := value.(Entity); ok {
			snapshot, err := rt.serialize(child.Core(), path, true)
			if err != nil {
				return nil, err
			}
			out[key] = map[string]any(snapshot)
			continue
		}
		out[key] = cloneValue(value)
	}
	return out, nil
}

// Deserialize builds a t from payload in loading mode, so the result keeps the
// serialized dirty state instead of being marked dirty by the assignments.
// Nested payloads are instantiated from their ClassIdentifierKey, which must
// resolve in scope (ErrNotFound) and name a type the slot allows
// (ErrTypeNotAllowed). Unknown keys are ignored. Payload hooks registered
// with WithPayloadHook run on a copy of payload first.
func (rt *Runtime) Deserialize(payload Payload, t *Type) (Entity, error) {
	return rt.deserialize(payload, t, true)
}

func (rt *Runtime) deserialize(payload Payload, t *Type, runHooks bool) (e Entity, err error) {
	start := time.Now()
	identifier := t.TypeName()
	defer func() { rt.observe("deserialize", identifier, start, err) }()

	if payload == nil {
		return nil, fmt.Errorf("%w: nil payload for %s", ErrPropertyType, identifier)
	}
	e, err = rt.New(t)
	if err != nil {
		return nil, err
	}
	identifier = e.Core().classIdentifier
	if runHooks {
		hooked, err := rt.decoder.Apply(hydrate.Context{Identifier: identifier}, payload)
		if err != nil {
			return nil, err
		}
		payload = hooked
	}
	if err = rt.populate(e.Core(), payload); err != nil {
		return nil, err
	}
	return e, nil
}

func (rt *Runtime) populate(core *Base, payload Payload) error {
	return core.Load(func() error {
		if v, ok := payload[IsNewKey].(bool); ok {
			core.isNew = v
		}
		if v, ok := payload[IsSelfDirtyKey].(bool); ok {
			core.isSelfDirty = v
		}
		if v, ok := payload[IsDeletedKey].(bool); ok {
			core.isDeleted = v
		}
		if v, ok := payload[IsChildKey].(bool); ok {
			core.isChild = v
		}

		for _, prop := range core.typ.props {
			raw, ok := payload[rt.FieldKey(prop.Name())]
			if !ok {
				continue
			}
			value, err := rt.decodeValue(core, prop, raw)
			if err != nil {
				return err
			}
			if err := core.SetProperty(prop.Name(), value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (rt *Runtime) decodeValue(owner *Base, prop Descriptor, raw any) (any, error) {
	if isNil(raw) {
		return nil, nil
	}
	if !prop.IsChild() {
		value, err := prop.coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", owner.classIdentifier, prop.Name(), err)
		}
		return value, nil
	}

	nested, ok := asPayload(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s expects a nested payload, got %T", ErrPropertyType, owner.classIdentifier, prop.Name(), raw)
	}
	identifier, _ := nested[ClassIdentifierKey].(string)
	if identifier == "" {
		return nil, fmt.Errorf("%w: %s.%s payload has no %s", ErrTypeNotAllowed, owner.classIdentifier, prop.Name(), ClassIdentifierKey)
	}
	t, err := rt.Lookup(identifier)
	if err != nil {
		return nil, err
	}
	if !rt.allows(prop, t) {
		return nil, fmt.Errorf("%w: %s.%s cannot hold %s", ErrTypeNotAllowed, owner.classIdentifier, prop.Name(), identifier)
	}
	child, err := rt.New(t)
	if err != nil {
		return nil, err
	}
	if err := rt.populate(child.Core(), nested); err != nil {
		return nil, err
	}
	return child, nil
}

func asPayload(value any) (Payload, bool) {
	switch typed := value.(type) {
	case Payload:
		return typed, true
	case map[string]any:
		return Payload(typed), true
	default:
		return nil, false
	}
}

// EncodeJSON serializes e and encodes the payload as JSON.
func (rt *Runtime) EncodeJSON(e Entity) ([]byte, error) {
	payload, err := rt.Serialize(e)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("entity: encode %s: %w", e.Core().classIdentifier, err)
	}
	return data, nil
}

// DecodeJSON decodes data into a t. Numbers are decoded as json.Number and
// converted to the declared property types, so integers keep full precision.
// Payload hooks registered with WithPayloadHook run before deserialization.
func (rt *Runtime) DecodeJSON(data []byte, t *Type) (Entity, error) {
	identifier, err := rt.Resolve(t)
	if err != nil {
		return nil, err
	}
	payload, err := rt.decoder.Decode(hydrate.Context{Identifier: identifier}, data)
	if err != nil {
		rt.observe("deserialize", identifier, time.Now(), err)
		return nil, err
	}
	// Decode already ran the payload hooks.
	return rt.deserialize(payload, t, false)
}
