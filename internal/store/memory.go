package store

import (
	"context"
	"sync"

	"github.com/kenneth/base64-type/internal/crypto"
)

// MemoryStore keeps envelopes in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	envelopes map[string]*crypto.KeyEnvelope
}

var _ EnvelopeStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{envelopes: make(map[string]*crypto.KeyEnvelope)}
}

func (s *MemoryStore) Put(_ context.Context, id string, env *crypto.KeyEnvelope) error {
	if err := checkPut(id, env); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes[id] = cloneEnvelope(env)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*crypto.KeyEnvelope, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.envelopes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEnvelope(env), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.envelopes, id)
	return nil
}

// Len reports the number of stored envelopes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.envelopes)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
