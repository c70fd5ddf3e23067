package revocation

import (
	"context"
	"sync"
	"time"

	dErrors "conforma/pkg/domain-errors"
)

// MemoryStore is an in-process revocation list. Expired entries are dropped
// lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{revoked: make(map[string]time.Time)}
}

func (s *MemoryStore) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if ttl <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "revocation ttl must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = time.Now().Add(ttl)
	return nil
}

func (s *MemoryStore) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	s.mu.RLock()
	expiry, ok := s.revoked[jti]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		s.mu.Lock()
		delete(s.revoked, jti)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}
