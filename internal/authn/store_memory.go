package authn

import (
	"context"
	"sync"

	id "kycnet/pkg/domain"
	"kycnet/pkg/platform/sentinel"
)

// InMemoryCredentialStore keeps credentials in a map. Suitable for tests and
// single-node deployments.
type InMemoryCredentialStore struct {
	mu          sync.RWMutex
	credentials map[id.BankID]Credential
}

func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{credentials: make(map[id.BankID]Credential)}
}

func (s *InMemoryCredentialStore) Save(_ context.Context, credential Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[credential.BankID] = credential
	return nil
}

func (s *InMemoryCredentialStore) Find(_ context.Context, bankID id.BankID) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if credential, ok := s.credentials[bankID]; ok {
		return credential, nil
	}
	return Credential{}, sentinel.ErrNotFound
}

func (s *InMemoryCredentialStore) Delete(_ context.Context, bankID id.BankID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, bankID)
	return nil
}
