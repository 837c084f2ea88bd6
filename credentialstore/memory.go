package credentialstore

import (
	"context"
	"sync"

	"github.com/deploymenttheory/go-api-auth-client/credentials"
)

// MemoryStore keeps the encoded bundle in process memory. Used by tests and as the default backend.
type MemoryStore struct {
	mu      sync.Mutex
	payload []byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWith returns a MemoryStore seeded with bundle.
func NewMemoryStoreWith(bundle credentials.Bundle) (*MemoryStore, error) {
	s := NewMemoryStore()
	if err := s.Save(context.Background(), bundle); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryStore) Save(_ context.Context, bundle credentials.Bundle) error {
	payload, err := credentials.Encode(bundle)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.payload = payload
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*credentials.Bundle, error) {
	s.mu.Lock()
	payload := s.payload
	s.mu.Unlock()

	if payload == nil {
		return nil, nil
	}
	bundle, err := credentials.Decode(payload)
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (s *MemoryStore) Delete(_ context.Context) error {
	s.mu.Lock()
	s.payload = nil
	s.mu.Unlock()
	return nil
}
