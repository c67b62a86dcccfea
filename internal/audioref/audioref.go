// Package audioref hands out short-lived identifiers for synthesized audio
// held in memory, so HTTP responses can reference the bytes without inlining
// them. Refs live until released or the process exits.
package audioref

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound marks a lookup for a ref that was never issued or was released.
var ErrNotFound = errors.New("audioref: not found")

// Audio is the stored payload.
type Audio struct {
	Bytes    []byte
	MIMEType string
}

// Store issues and resolves refs. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	refs map[string]Audio
}

func NewStore() *Store {
	return &Store{refs: make(map[string]Audio)}
}

// Put stores the payload and returns its ref.
func (s *Store) Put(data []byte, mimeType string) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.refs[id] = Audio{Bytes: data, MIMEType: mimeType}
	s.mu.Unlock()
	return id
}

// Get resolves a ref to its payload.
func (s *Store) Get(id string) (Audio, error) {
	s.mu.Lock()
	a, ok := s.refs[id]
	s.mu.Unlock()
	if !ok {
		return Audio{}, ErrNotFound
	}
	return a, nil
}

// Release drops a ref. Releasing an unknown ref is a no-op.
func (s *Store) Release(id string) {
	s.mu.Lock()
	delete(s.refs, id)
	s.mu.Unlock()
}

// Len reports the number of live refs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}
