package state

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/goliatone/go-entity"
	"github.com/goliatone/go-entity/internal/layering"
	"github.com/google/uuid"
)

// MemoryStore is a minimal in-memory Store implementation intended for tests
// and examples. It uses Ref.Identifier() as its deterministic key and issues
// a fresh ETag on every save.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	payload entity.Payload
	meta    Meta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]memoryRecord{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Load(_ context.Context, ref Ref) (entity.Payload, Meta, bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, Meta{}, false, nil
	}
	return layering.Clone(record.payload), cloneMeta(record.meta), true, nil
}

func (s *MemoryStore) Save(_ context.Context, ref Ref, payload entity.Payload, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}

	stored := cloneMeta(meta)
	stored.ETag = uuid.NewString()
	if stored.SnapshotID == "" {
		stored.SnapshotID = uuid.NewString()
	}
	stored.UpdatedAt = s.now()

	s.mu.Lock()
	s.records[key] = memoryRecord{payload: layering.Clone(payload), meta: stored}
	s.mu.Unlock()
	return cloneMeta(stored), nil
}

func (s *MemoryStore) Delete(_ context.Context, ref Ref) error {
	key, err := ref.Identifier()
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Len reports how many payloads are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = maps.Clone(meta.Extra)
	return out
}
