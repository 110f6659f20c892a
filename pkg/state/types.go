package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-entity"
)

var ErrNotFound = errors.New("state: not found")

var ErrETagMismatch = errors.New("state: etag mismatch")

// Ref identifies one persisted payload for one entity.
type Ref struct {
	ClassIdentifier string
	Key             string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads, saves and deletes one payload for a single reference.
type Store interface {
	Load(ctx context.Context, ref Ref) (payload entity.Payload, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, payload entity.Payload, meta Meta) (Meta, error)
	Delete(ctx context.Context, ref Ref) error
}

// Repository loads and saves entities of a runtime through a Store.
type Repository struct {
	Store   Store
	Runtime *entity.Runtime
}

// Mutator edits a loaded (or freshly built) entity before it is saved.
type Mutator func(entity.Entity) error

func (r Ref) Identifier() (string, error) {
	if r.ClassIdentifier == "" {
		return "", fmt.Errorf("state: class identifier is required")
	}
	if r.Key == "" {
		return "", fmt.Errorf("state: key is required for %q", r.ClassIdentifier)
	}
	if strings.Contains(r.Key, "/") {
		return "", fmt.Errorf("state: key %q must not contain %q", r.Key, "/")
	}
	return r.ClassIdentifier + "/" + r.Key, nil
}

// Ref builds the reference for key under t's class identifier.
func (r Repository) Ref(t *entity.Type, key string) (Ref, error) {
	if err := r.check(); err != nil {
		return Ref{}, err
	}
	identifier, err := r.Runtime.Resolve(t)
	if err != nil {
		return Ref{}, fmt.Errorf("state: resolve %s: %w", t, err)
	}
	return Ref{ClassIdentifier: identifier, Key: key}, nil
}

// Load reads the payload stored under key and deserializes it as t. The
// entity comes back old and clean.
func (r Repository) Load(ctx context.Context, t *entity.Type, key string) (entity.Entity, Meta, error) {
	ref, err := r.Ref(t, key)
	if err != nil {
		return nil, Meta{}, err
	}
	payload, meta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("state: load %q/%q: %w", ref.ClassIdentifier, ref.Key, err)
	}
	if !ok {
		return nil, Meta{}, fmt.Errorf("%w: %q/%q", ErrNotFound, ref.ClassIdentifier, ref.Key)
	}
	e, err := r.Runtime.Deserialize(payload, t)
	if err != nil {
		return nil, meta, fmt.Errorf("state: decode %q/%q: %w", ref.ClassIdentifier, ref.Key, err)
	}
	e.Core().MarkSaved()
	return e, meta, nil
}

// Save persists e under key. Rules are checked first and invalid entities are
// refused with entity.ErrNotSavable. A non-empty meta.ETag must match the
// stored one. Deleted entities are removed from the store and marked new.
func (r Repository) Save(ctx context.Context, key string, e entity.Entity, meta Meta) (Meta, error) {
	if e == nil {
		return Meta{}, entity.ErrNotConstructed
	}
	core := e.Core()
	ref, err := r.Ref(core.Type(), key)
	if err != nil {
		return Meta{}, err
	}

	_, loadedMeta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return Meta{}, fmt.Errorf("state: load %q/%q: %w", ref.ClassIdentifier, ref.Key, err)
	}
	if !ok {
		loadedMeta = Meta{}
	}
	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	if core.IsDeleted() {
		if err := r.Store.Delete(ctx, ref); err != nil {
			return loadedMeta, fmt.Errorf("state: delete %q/%q: %w", ref.ClassIdentifier, ref.Key, err)
		}
		core.MarkNew()
		return Meta{}, nil
	}

	if err := core.CheckRules(ctx); err != nil {
		return loadedMeta, err
	}
	if !core.IsValid() {
		return loadedMeta, fmt.Errorf("%w: %s has broken rules", entity.ErrNotSavable, ref.ClassIdentifier)
	}

	payload, err := r.Runtime.Serialize(e)
	if err != nil {
		return loadedMeta, err
	}
	markPersisted(payload)
	saved, err := r.Store.Save(ctx, ref, payload, mergeMeta(loadedMeta, meta))
	if err != nil {
		return loadedMeta, fmt.Errorf("state: save %q/%q: %w", ref.ClassIdentifier, ref.Key, err)
	}
	core.MarkSaved()
	return saved, nil
}

// Mutate loads the entity under key (or builds a new t when absent), applies
// fn, then saves it with the same ETag rules as Save.
func (r Repository) Mutate(ctx context.Context, t *entity.Type, key string, meta Meta, fn Mutator) (entity.Entity, Meta, error) {
	if fn == nil {
		return nil, Meta{}, fmt.Errorf("state: mutator is required")
	}
	e, loadedMeta, err := r.Load(ctx, t, key)
	switch {
	case errors.Is(err, ErrNotFound):
		e, err = r.Runtime.New(t)
		if err != nil {
			return nil, Meta{}, err
		}
		loadedMeta = Meta{}
	case err != nil:
		return nil, Meta{}, err
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return nil, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}
	if err := fn(e); err != nil {
		return nil, loadedMeta, err
	}

	saved, err := r.Save(ctx, key, e, meta)
	if err != nil {
		return nil, loadedMeta, err
	}
	return e, saved, nil
}

func (r Repository) check() error {
	if r.Store == nil {
		return fmt.Errorf("state: store is required")
	}
	if r.Runtime == nil {
		return fmt.Errorf("state: runtime is required")
	}
	return nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

// markPersisted rewrites a freshly serialized payload to the flags the entity
// carries once saved: old and clean, with deleted children dropped.
func markPersisted(payload map[string]any) {
	payload[entity.IsNewKey] = false
	payload[entity.IsSelfDirtyKey] = false
	for key, value := range payload {
		nested, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if deleted, _ := nested[entity.IsDeletedKey].(bool); deleted {
			payload[key] = nil
			continue
		}
		markPersisted(nested)
	}
}
