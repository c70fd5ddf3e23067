// Package memory provides in-process tenancy stores. They back unit tests
// and the zero-dependency local mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"conforma/internal/tenancy/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// TenantStore implements service.TenantStore with a mutex-guarded map.
type TenantStore struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*models.Tenant
	flags   map[id.TenantID]map[string]bool
}

func NewTenantStore() *TenantStore {
	return &TenantStore{
		tenants: make(map[id.TenantID]*models.Tenant),
		flags:   make(map[id.TenantID]map[string]bool),
	}
}

func (s *TenantStore) CreateIfNameAvailable(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tenants {
		if strings.EqualFold(existing.Name, tenant.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

func (s *TenantStore) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *tenant
	return &cp, nil
}

func (s *TenantStore) List(_ context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tenant, 0, len(s.tenants))
	for _, tenant := range s.tenants {
		cp := *tenant
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Execute holds the write lock across validate and mutate.
func (s *TenantStore) Execute(_ context.Context, tenantID id.TenantID, validate func(*models.Tenant) error, mutate func(*models.Tenant)) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(tenant); err != nil {
		return nil, err
	}
	mutate(tenant)
	cp := *tenant
	return &cp, nil
}

func (s *TenantStore) SetFeatureFlag(_ context.Context, flag models.FeatureFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flags[flag.TenantID] == nil {
		s.flags[flag.TenantID] = make(map[string]bool)
	}
	s.flags[flag.TenantID][flag.Flag] = flag.Enabled
	return nil
}

func (s *TenantStore) ListFeatureFlags(_ context.Context, tenantID id.TenantID) ([]models.FeatureFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flags := make([]models.FeatureFlag, 0, len(s.flags[tenantID]))
	for code, enabled := range s.flags[tenantID] {
		flags = append(flags, models.FeatureFlag{TenantID: tenantID, Flag: code, Enabled: enabled})
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Flag < flags[j].Flag })
	return flags, nil
}

// OrganizationStore implements service.OrganizationStore.
type OrganizationStore struct {
	mu   sync.RWMutex
	orgs map[id.OrgID]*models.Organization
}

func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{orgs: make(map[id.OrgID]*models.Organization)}
}

func (s *OrganizationStore) CreateIfNameAvailable(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orgs {
		if existing.TenantID == org.TenantID && strings.EqualFold(existing.LegalName, org.LegalName) {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *OrganizationStore) FindByID(_ context.Context, tenantID id.TenantID, orgID id.OrgID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[orgID]
	if !ok || org.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *OrganizationStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Organization
	for _, org := range s.orgs {
		if org.TenantID == tenantID {
			cp := *org
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *OrganizationStore) Update(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.orgs[org.ID]
	if !ok || existing.TenantID != org.TenantID {
		return sentinel.ErrNotFound
	}
	for _, other := range s.orgs {
		if other.ID != org.ID && other.TenantID == org.TenantID && strings.EqualFold(other.LegalName, org.LegalName) {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *OrganizationStore) Delete(_ context.Context, tenantID id.TenantID, orgID id.OrgID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok || org.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	delete(s.orgs, orgID)
	return nil
}

// BusinessUnitStore implements service.BusinessUnitStore.
type BusinessUnitStore struct {
	mu    sync.RWMutex
	units map[id.BusinessUnitID]*models.BusinessUnit
}

func NewBusinessUnitStore() *BusinessUnitStore {
	return &BusinessUnitStore{units: make(map[id.BusinessUnitID]*models.BusinessUnit)}
}

func (s *BusinessUnitStore) CreateIfNameAvailable(_ context.Context, unit *models.BusinessUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.units {
		if existing.TenantID == unit.TenantID && existing.OrganizationID == unit.OrganizationID &&
			strings.EqualFold(existing.Name, unit.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *unit
	s.units[unit.ID] = &cp
	return nil
}

func (s *BusinessUnitStore) FindByID(_ context.Context, tenantID id.TenantID, unitID id.BusinessUnitID) (*models.BusinessUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.units[unitID]
	if !ok || unit.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	cp := *unit
	return &cp, nil
}

func (s *BusinessUnitStore) ListByOrganization(_ context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.BusinessUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.BusinessUnit
	for _, unit := range s.units {
		if unit.TenantID == tenantID && unit.OrganizationID == orgID {
			cp := *unit
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *BusinessUnitStore) Update(_ context.Context, unit *models.BusinessUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.units[unit.ID]
	if !ok || existing.TenantID != unit.TenantID {
		return sentinel.ErrNotFound
	}
	for _, other := range s.units {
		if other.ID != unit.ID && other.TenantID == unit.TenantID && other.OrganizationID == unit.OrganizationID &&
			strings.EqualFold(other.Name, unit.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *unit
	s.units[unit.ID] = &cp
	return nil
}

func (s *BusinessUnitStore) Delete(_ context.Context, tenantID id.TenantID, unitID id.BusinessUnitID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[unitID]
	if !ok || unit.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	delete(s.units, unitID)
	return nil
}
