package openapi

import (
	"fmt"
	"regexp"

	"github.com/goliatone/go-entity"
)

// componentRegistry names one schema component per entity type. Names come
// from the class identifier and stay unique after sanitizing.
type componentRegistry struct {
	names     map[*entity.Type]string
	schemas   map[string]map[string]any
	usedNames map[string]struct{}
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		names:     map[*entity.Type]string{},
		schemas:   map[string]map[string]any{},
		usedNames: map[string]struct{}{},
	}
}

// reserve returns the component name for t and reports whether it was newly
// assigned. The schema is attached later with define so recursive types can
// reference themselves.
func (r *componentRegistry) reserve(t *entity.Type, nameHint string) (string, bool) {
	if name, ok := r.names[t]; ok {
		return name, false
	}
	name := r.uniqueName(nameHint)
	r.names[t] = name
	return name, true
}

func (r *componentRegistry) define(name string, schema map[string]any) {
	r.schemas[name] = schema
}

func (r *componentRegistry) reference(name string) string {
	return fmt.Sprintf("#/components/schemas/%s", name)
}

func (r *componentRegistry) uniqueName(name string) string {
	safe := sanitizeComponentName(name)
	if safe == "" {
		safe = "Schema"
	}
	if _, exists := r.usedNames[safe]; !exists {
		r.usedNames[safe] = struct{}{}
		return safe
	}
	suffix := 1
	for {
		candidate := fmt.Sprintf("%s%d", safe, suffix)
		if _, exists := r.usedNames[candidate]; !exists {
			r.usedNames[candidate] = struct{}{}
			return candidate
		}
		suffix++
	}
}

func (r *componentRegistry) componentsMap() map[string]any {
	if len(r.schemas) == 0 {
		return nil
	}
	out := make(map[string]any, len(r.schemas))
	for name, schema := range r.schemas {
		if schema == nil {
			schema = map[string]any{}
		}
		out[name] = schema
	}
	return out
}

var componentNameRegexp = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func sanitizeComponentName(name string) string {
	name = componentNameRegexp.ReplaceAllString(name, "_")
	name = trimUnderscores(name)
	if name == "" {
		return ""
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

func trimUnderscores(input string) string {
	start := 0
	for start < len(input) && input[start] == '_' {
		start++
	}
	end := len(input)
	for end > start && input[end-1] == '_' {
		end--
	}
	return input[start:end]
}
