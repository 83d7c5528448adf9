package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// MemoryStore is the default in-process credential store.
type MemoryStore struct {
	mu   sync.RWMutex
	cred *Credential
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Current implements Store.Current.
func (s *MemoryStore) Current(_ context.Context) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return nil, nil
	}

	// Copy so callers can never mutate the stored credential.
	cred := *s.cred

	return &cred, nil
}

// Set implements Store.Set.
func (s *MemoryStore) Set(ctx context.Context, accessToken, refreshToken string) error {
	expiresAt, err := tokenExpiry(accessToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = &Credential{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		ExpiresAt:     expiresAt,
		Authenticated: true,
	}

	log.Ctx(ctx).Debug().
		Time("expires_at", expiresAt).
		Msg("credential stored")

	return nil
}

// Clear implements Store.Clear.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = nil
	log.Ctx(ctx).Debug().Msg("credential cleared")

	return nil
}
