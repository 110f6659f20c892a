// Package openapi describes entity payloads as OpenAPI 3 documents. Each
// entity type reachable from the requested roots becomes a schema component;
// polymorphic child slots become oneOf unions discriminated by the
// classIdentifier field nested payloads carry.
package openapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-entity"
)

var timeType = reflect.TypeOf(time.Time{})

// Generator builds OpenAPI documents for the payloads a runtime serializes.
// It holds no per-call state and is safe for concurrent use.
type Generator struct {
	rt     *entity.Runtime
	config generatorConfig
}

// NewGenerator constructs a generator bound to rt.
func NewGenerator(rt *entity.Runtime, opts ...GeneratorOption) *Generator {
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Generator{rt: rt, config: cfg}
}

// Generate returns a document with one save operation per root type and a
// component per entity type reachable through child slots.
func (g *Generator) Generate(roots ...*entity.Type) (map[string]any, error) {
	if g == nil || g.rt == nil {
		return nil, errors.New("openapi: generator requires a runtime")
	}
	if len(roots) == 0 {
		return nil, errors.New("openapi: at least one entity type is required")
	}

	builder := newDocumentBuilder(g.config, g.rt)
	for _, root := range roots {
		if err := builder.addRoot(root); err != nil {
			return nil, err
		}
	}
	return builder.build()
}

func (b *documentBuilder) component(t *entity.Type) (string, error) {
	identifier, err := b.rt.Resolve(t)
	if err != nil {
		return "", fmt.Errorf("openapi: %w", err)
	}
	name, fresh := b.registry.reserve(t, identifier)
	if !fresh {
		return name, nil
	}

	properties := map[string]any{
		entity.IsNewKey:       map[string]any{"type": "boolean"},
		entity.IsSelfDirtyKey: map[string]any{"type": "boolean"},
		entity.IsDeletedKey:   map[string]any{"type": "boolean"},
		entity.IsChildKey:     map[string]any{"type": "boolean"},
		entity.ClassIdentifierKey: map[string]any{
			"type": "string",
			"enum": []string{identifier},
		},
	}
	for _, prop := range t.Properties() {
		var schema map[string]any
		if prop.IsChild() {
			schema, err = b.childSchema(prop)
		} else {
			schema, err = schemaForType(prop.GoType(), map[reflect.Type]bool{})
		}
		if err != nil {
			return "", fmt.Errorf("openapi: %s.%s: %w", identifier, prop.Name(), err)
		}
		properties[b.rt.FieldKey(prop.Name())] = schema
	}

	b.registry.define(name, map[string]any{
		"type":               "object",
		"properties":         properties,
		"x-class-identifier": identifier,
	})
	return name, nil
}

func (b *documentBuilder) childSchema(prop entity.Descriptor) (map[string]any, error) {
	allowed := b.rt.AllowedTypes(prop)
	if len(allowed) == 0 {
		return map[string]any{
			"type":     "object",
			"nullable": true,
		}, nil
	}

	refs := make([]any, 0, len(allowed))
	mapping := make(map[string]any, len(allowed))
	for _, candidate := range allowed {
		name, err := b.component(candidate)
		if err != nil {
			return nil, err
		}
		ref := b.registry.reference(name)
		refs = append(refs, map[string]any{"$ref": ref})
		identifier, _ := b.rt.Resolve(candidate)
		mapping[identifier] = ref
	}

	if len(refs) == 1 {
		return map[string]any{
			"allOf":    refs,
			"nullable": true,
		}, nil
	}
	return map[string]any{
		"oneOf":    refs,
		"nullable": true,
		"discriminator": map[string]any{
			"propertyName": entity.ClassIdentifierKey,
			"mapping":      mapping,
		},
	}, nil
}

// schemaForType maps a Go value type to the JSON schema of its encoding.
func schemaForType(rt reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	if rt == nil {
		return map[string]any{}, nil
	}

	switch rt.Kind() {
	case reflect.Pointer:
		schema, err := schemaForType(rt.Elem(), seen)
		if err != nil {
			return nil, err
		}
		schema["nullable"] = true
		return schema, nil
	case reflect.Interface:
		return map[string]any{}, nil
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Int64, reflect.Uint64:
		return map[string]any{"type": "integer", "format": "int64"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uintptr:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Struct:
		if rt == timeType {
			return map[string]any{
				"type":   "string",
				"format": "date-time",
			}, nil
		}
		return schemaForStruct(rt, seen)
	case reflect.Map:
		if rt.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key type %s unsupported", rt.Key())
		}
		values, err := schemaForType(rt.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":                 "object",
			"additionalProperties": values,
		}, nil
	case reflect.Slice, reflect.Array:
		if rt.Kind() == reflect.Slice && rt.Elem().Kind() == reflect.Uint8 {
			return map[string]any{
				"type":   "string",
				"format": "byte",
			}, nil
		}
		items, err := schemaForType(rt.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":  "array",
			"items": items,
		}, nil
	default:
		return nil, fmt.Errorf("%s has no JSON representation", rt)
	}
}

func schemaForStruct(rt reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	if seen[rt] {
		// recursive struct, leave the cycle open
		return map[string]any{"type": "object"}, nil
	}
	seen[rt] = true
	defer delete(seen, rt)

	properties := map[string]any{}
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" {
			tagName := strings.Split(tag, ",")[0]
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}

		child, err := schemaForType(field.Type, seen)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		properties[name] = child
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}, nil
}
