package memory

import (
	"context"
	"sync"

	audit "conforma/pkg/platform/audit"
	id "conforma/pkg/domain"
)

// Store keeps audit events in memory. Used by tests and single-node
// development deployments; production uses the postgres outbox store.
type Store struct {
	mu     sync.RWMutex
	events []audit.Event
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByTenant returns the recorded events for a tenant in append order.
func (s *Store) ListByTenant(_ context.Context, tenantID id.TenantID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, 0, len(s.events))
	for _, e := range s.events {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every recorded event. Test helper.
func (s *Store) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...)
}
