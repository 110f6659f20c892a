package identity

import (
	"sync"
)

// Resolve searches scope depth-first for target and returns its dotted path.
// Member names are visited in sorted order. Branches that would produce an
// identifier longer than maxDepth segments are not descended; when the target
// is not found anywhere else the search fails with ErrDepthExceeded carrying
// the first path that was cut. A maxDepth <= 0 falls back to DefaultMaxDepth.
func Resolve(scope Namespace, target Constructible, maxDepth int) (string, error) {
	if _, ok := asConstructible(target); !ok {
		return "", notFound("resolve", "", nil, "target is not constructible")
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	search := resolveSearch{target: target, maxDepth: maxDepth}
	if path, ok := search.visit(scope, nil); ok {
		return Join(path...), nil
	}
	if search.cut != nil {
		return "", &ResolveError{
			Op:         "resolve",
			Identifier: target.TypeName(),
			Path:       search.cut,
			MaxDepth:   maxDepth,
			Err:        ErrDepthExceeded,
		}
	}
	return "", notFound("resolve", target.TypeName(), nil, "type is not registered in scope")
}

type resolveSearch struct {
	target   Constructible
	maxDepth int
	cut      []string
}

func (s *resolveSearch) visit(node Namespace, path []string) ([]string, bool) {
	for _, key := range node.Keys() {
		member := node[key]
		next := append(append(make([]string, 0, len(path)+1), path...), key)

		if c, ok := asConstructible(member); ok {
			if !sameConstructible(c, s.target) {
				continue
			}
			if len(next) > s.maxDepth {
				s.markCut(next)
				continue
			}
			return next, true
		}

		child, ok := asNamespace(member)
		if !ok {
			continue
		}
		if len(next) >= s.maxDepth {
			if len(child) > 0 {
				s.markCut(next)
			}
			continue
		}
		if found, ok := s.visit(child, next); ok {
			return found, true
		}
	}
	return nil, false
}

func (s *resolveSearch) markCut(path []string) {
	if s.cut == nil {
		s.cut = path
	}
}

// Lookup walks scope segment by segment and returns the constructible found at
// identifier.
func Lookup(scope Namespace, identifier string) (Constructible, error) {
	segments := Split(identifier)
	if len(segments) == 0 {
		return nil, notFound("lookup", identifier, nil, "identifier is empty")
	}

	var current any = scope
	for i, segment := range segments {
		if segment == "" {
			return nil, notFound("lookup", identifier, segments[:i], "empty segment")
		}
		node, ok := asNamespace(current)
		if !ok {
			return nil, notFound("lookup", identifier, segments[:i], "segment is not a namespace")
		}
		member, exists := node[segment]
		if !exists {
			return nil, notFound("lookup", identifier, segments[:i+1], "missing segment")
		}
		current = member
	}

	c, ok := asConstructible(current)
	if !ok {
		return nil, notFound("lookup", identifier, segments, "member is not constructible")
	}
	return c, nil
}

// Resolver binds a scope and depth bound, caching identifiers so each type is
// resolved once. It is safe for concurrent use; the scope itself must not be
// mutated after the resolver is built.
type Resolver struct {
	scope    Namespace
	maxDepth int

	mu    sync.RWMutex
	cache map[Constructible]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth overrides the namespace search bound.
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// NewResolver constructs a resolver over scope.
func NewResolver(scope Namespace, opts ...Option) *Resolver {
	r := &Resolver{
		scope:    scope,
		maxDepth: DefaultMaxDepth,
		cache:    map[Constructible]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Scope returns the namespace tree the resolver searches.
func (r *Resolver) Scope() Namespace {
	return r.scope
}

// MaxDepth returns the configured search bound.
func (r *Resolver) MaxDepth() int {
	return r.maxDepth
}

// Resolve returns the cached identifier for target, computing it on first use.
// Failures are not cached.
func (r *Resolver) Resolve(target Constructible) (string, error) {
	cacheable := false
	if c, ok := asConstructible(target); ok && isComparable(c) {
		cacheable = true
		r.mu.RLock()
		id, hit := r.cache[c]
		r.mu.RUnlock()
		if hit {
			return id, nil
		}
	}

	id, err := Resolve(r.scope, target, r.maxDepth)
	if err != nil {
		return "", err
	}

	if cacheable {
		r.mu.Lock()
		r.cache[target] = id
		r.mu.Unlock()
	}
	return id, nil
}

// Lookup resolves identifier against the bound scope.
func (r *Resolver) Lookup(identifier string) (Constructible, error) {
	return Lookup(r.scope, identifier)
}

// Walk calls fn for every constructible reachable within the depth bound, in
// sorted identifier order. Returning an error from fn stops the walk.
func (r *Resolver) Walk(fn func(identifier string, c Constructible) error) error {
	if fn == nil {
		return nil
	}
	return walk(r.scope, nil, r.maxDepth, fn)
}

func walk(node Namespace, path []string, maxDepth int, fn func(string, Constructible) error) error {
	for _, key := range node.Keys() {
		member := node[key]
		next := append(append(make([]string, 0, len(path)+1), path...), key)
		if len(next) > maxDepth {
			continue
		}
		if c, ok := asConstructible(member); ok {
			if err := fn(Join(next...), c); err != nil {
				return err
			}
			continue
		}
		if child, ok := asNamespace(member); ok {
			if err := walk(child, next, maxDepth, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
