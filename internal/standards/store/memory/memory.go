// Package memory provides in-process standards stores.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"conforma/internal/standards/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// StandardStore keeps standards keyed by id.
type StandardStore struct {
	mu        sync.RWMutex
	standards map[id.StandardID]*models.Standard
}

func NewStandardStore() *StandardStore {
	return &StandardStore{standards: make(map[id.StandardID]*models.Standard)}
}

func cloneStandard(s *models.Standard) *models.Standard {
	clone := *s
	if s.TenantID != nil {
		t := *s.TenantID
		clone.TenantID = &t
	}
	return &clone
}

// sameScope reports whether two standards compete for the same code space:
// both global, or both owned by the same tenant.
func sameScope(a, b *models.Standard) bool {
	if (a.TenantID == nil) != (b.TenantID == nil) {
		return false
	}
	return a.TenantID == nil || *a.TenantID == *b.TenantID
}

func (s *StandardStore) CreateIfCodeAvailable(_ context.Context, standard *models.Standard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.standards {
		if sameScope(existing, standard) && strings.EqualFold(existing.Code, standard.Code) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.standards[standard.ID] = cloneStandard(standard)
	return nil
}

func (s *StandardStore) FindByID(_ context.Context, standardID id.StandardID) (*models.Standard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	standard, ok := s.standards[standardID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneStandard(standard), nil
}

func (s *StandardStore) ListVisibleTo(_ context.Context, tenantID id.TenantID) ([]*models.Standard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Standard
	for _, standard := range s.standards {
		if standard.VisibleTo(tenantID) {
			out = append(out, cloneStandard(standard))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *StandardStore) Update(_ context.Context, standard *models.Standard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.standards[standard.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.standards[standard.ID] = cloneStandard(standard)
	return nil
}

func (s *StandardStore) Delete(_ context.Context, standardID id.StandardID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.standards[standardID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.standards, standardID)
	return nil
}

// VersionStore keeps standard versions keyed by id.
type VersionStore struct {
	mu       sync.RWMutex
	versions map[id.VersionID]*models.StandardVersion
}

func NewVersionStore() *VersionStore {
	return &VersionStore{versions: make(map[id.VersionID]*models.StandardVersion)}
}

func cloneVersion(v *models.StandardVersion) *models.StandardVersion {
	clone := *v
	if v.LockedAt != nil {
		t := *v.LockedAt
		clone.LockedAt = &t
	}
	return &clone
}

func (s *VersionStore) CreateIfLabelAvailable(_ context.Context, version *models.StandardVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.versions {
		if existing.StandardID == version.StandardID && strings.EqualFold(existing.Version, version.Version) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.versions[version.ID] = cloneVersion(version)
	return nil
}

func (s *VersionStore) FindByID(_ context.Context, versionID id.VersionID) (*models.StandardVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[versionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneVersion(v), nil
}

func (s *VersionStore) ListByStandard(_ context.Context, standardID id.StandardID) ([]*models.StandardVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.StandardVersion
	for _, v := range s.versions {
		if v.StandardID == standardID {
			out = append(out, cloneVersion(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *VersionStore) Execute(_ context.Context, versionID id.VersionID,
	validate func(*models.StandardVersion) error, mutate func(*models.StandardVersion)) (*models.StandardVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[versionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(v); err != nil {
		return nil, err
	}
	mutate(v)
	return cloneVersion(v), nil
}

// ControlStore keeps control nodes keyed by id with a per-version code
// index.
type ControlStore struct {
	mu       sync.RWMutex
	controls map[id.ControlID]*models.ControlNode
}

func NewControlStore() *ControlStore {
	return &ControlStore{controls: make(map[id.ControlID]*models.ControlNode)}
}

func cloneControl(n *models.ControlNode) *models.ControlNode {
	clone := *n
	if n.ParentID != nil {
		p := *n.ParentID
		clone.ParentID = &p
	}
	return &clone
}

func (s *ControlStore) CreateIfCodeAvailable(_ context.Context, node *models.ControlNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.controls {
		if existing.VersionID == node.VersionID && strings.EqualFold(existing.Code, node.Code) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.controls[node.ID] = cloneControl(node)
	return nil
}

func (s *ControlStore) FindByID(_ context.Context, controlID id.ControlID) (*models.ControlNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.controls[controlID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneControl(n), nil
}

func (s *ControlStore) FindByCode(_ context.Context, versionID id.VersionID, code string) (*models.ControlNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.controls {
		if n.VersionID == versionID && strings.EqualFold(n.Code, code) {
			return cloneControl(n), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *ControlStore) ListByVersion(_ context.Context, versionID id.VersionID) ([]*models.ControlNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ControlNode
	for _, n := range s.controls {
		if n.VersionID == versionID {
			out = append(out, cloneControl(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (s *ControlStore) Update(_ context.Context, node *models.ControlNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.controls[node.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.controls[node.ID] = cloneControl(node)
	return nil
}

func (s *ControlStore) Delete(_ context.Context, controlID id.ControlID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.controls[controlID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.controls, controlID)
	return nil
}
