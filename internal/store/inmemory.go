package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process record store for local/dev use.
// Collections are fixed at construction so reads against an unknown
// collection fail the same way a missing table does.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Row
}

func NewInMemoryStore(collections ...string) *InMemoryStore {
	m := make(map[string][]Row, len(collections))
	for _, c := range collections {
		m[c] = nil
	}
	return &InMemoryStore{collections: m}
}

func (s *InMemoryStore) Insert(_ context.Context, collection string, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	r := make(Row, len(row)+2)
	for k, v := range row {
		r[k] = v
	}
	if id, _ := r["id"].(string); id == "" {
		r["id"] = uuid.NewString()
	}
	if createdAt, _ := r["created_at"].(time.Time); createdAt.IsZero() {
		r["created_at"] = time.Now().UTC()
	}
	s.collections[collection] = append(s.collections[collection], r)
	return nil
}

func (s *InMemoryStore) Select(_ context.Context, collection string, q Query) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	var out []Row
	for _, r := range rows {
		if matches(r, q.Filter) {
			cp := make(Row, len(r))
			for k, v := range r {
				cp[k] = v
			}
			out = append(out, cp)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := fieldLess(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Descending {
				return !less && !fieldEqual(out[i][q.OrderBy], out[j][q.OrderBy])
			}
			return less
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func matches(r Row, filter map[string]any) bool {
	for k, want := range filter {
		if fmt.Sprint(r[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func fieldLess(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Before(bt)
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func fieldEqual(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Equal(bt)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
