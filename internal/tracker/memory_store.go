package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/schoolhub/bulkops-backend/internal/model"
)

// MemoryStore keeps operations in process memory. Status is lost on restart
// and is not shared between instances.
type MemoryStore struct {
	mu  sync.RWMutex
	ops map[string]*model.BulkOperation
	ttl time.Duration
	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore. A zero ttl keeps entries forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ops: make(map[string]*model.BulkOperation),
		ttl: ttl,
		now: time.Now,
	}
}

func (s *MemoryStore) expired(op *model.BulkOperation) bool {
	return s.ttl > 0 && s.now().Sub(op.UpdatedAt) > s.ttl
}

func (s *MemoryStore) Create(_ context.Context, op *model.BulkOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[op.OperationID]; ok {
		return ErrExists
	}
	s.ops[op.OperationID] = clone(op)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.BulkOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[id]
	if !ok || s.expired(op) {
		return nil, ErrNotFound
	}
	return clone(op), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(op *model.BulkOperation) error) (*model.BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.ops[id]
	if !ok || s.expired(cur) {
		return nil, ErrNotFound
	}
	next := clone(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.ops[id] = next
	return clone(next), nil
}

// List returns the newest operations first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*model.BulkOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.BulkOperation, 0, len(s.ops))
	for id, op := range s.ops {
		if s.expired(op) {
			delete(s.ops, id)
			continue
		}
		out = append(out, clone(op))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[id]; !ok {
		return ErrNotFound
	}
	delete(s.ops, id)
	return nil
}
