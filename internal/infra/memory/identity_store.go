package memory

import (
	"context"
	"sync"

	"emsi-preparator/internal/domain"
)

// IdentityStore is an in-memory implementation of app.IdentityStore.
type IdentityStore struct {
	mu         sync.RWMutex
	identities map[string]domain.UserIdentity
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		identities: make(map[string]domain.UserIdentity),
	}
}

func (s *IdentityStore) Save(_ context.Context, sessionID string, identity domain.UserIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[sessionID] = identity
	return nil
}

func (s *IdentityStore) Load(_ context.Context, sessionID string) (domain.UserIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[sessionID]
	if !ok {
		return domain.UserIdentity{}, domain.ErrNoIdentity
	}
	return identity, nil
}

func (s *IdentityStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, sessionID)
	return nil
}
