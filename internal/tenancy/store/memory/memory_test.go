package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"conforma/internal/tenancy/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

type TenantStoreSuite struct {
	suite.Suite
	store *TenantStore
	ctx   context.Context
}

func (s *TenantStoreSuite) SetupTest() {
	s.store = NewTenantStore()
	s.ctx = context.Background()
}

func TestTenantStoreSuite(t *testing.T) {
	suite.Run(t, new(TenantStoreSuite))
}

func (s *TenantStoreSuite) newTenant(name string) *models.Tenant {
	return &models.Tenant{
		ID:        id.NewTenantID(),
		Name:      name,
		Status:    models.TenantStatusTrial,
		CreatedAt: time.Now(),
	}
}

func (s *TenantStoreSuite) TestCreationAndLookups() {
	s.Run("creates and finds tenant by ID", func() {
		tenant := s.newTenant("Acme Compliance")
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, tenant))

		found, err := s.store.FindByID(s.ctx, tenant.ID)
		s.Require().NoError(err)
		s.Equal(tenant.Name, found.Name)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, id.NewTenantID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *TenantStoreSuite) TestNameUniqueness() {
	s.Run("rejects duplicate name", func() {
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, s.newTenant("Duplicate")))
		err := s.store.CreateIfNameAvailable(s.ctx, s.newTenant("Duplicate"))
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("enforces case-insensitive uniqueness", func() {
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, s.newTenant("MyTenant")))
		err := s.store.CreateIfNameAvailable(s.ctx, s.newTenant("MYTENANT"))
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})
}

func (s *TenantStoreSuite) TestExecute() {
	s.Run("applies mutation when validation passes", func() {
		tenant := s.newTenant("Transitions")
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, tenant))

		updated, err := s.store.Execute(s.ctx, tenant.ID,
			func(t *models.Tenant) error { return t.CanTransition(models.TenantStatusActive) },
			func(t *models.Tenant) { t.ApplyTransition(models.TenantStatusActive, time.Now()) },
		)
		s.Require().NoError(err)
		s.Equal(models.TenantStatusActive, updated.Status)

		found, err := s.store.FindByID(s.ctx, tenant.ID)
		s.Require().NoError(err)
		s.Equal(models.TenantStatusActive, found.Status)
	})

	s.Run("leaves tenant untouched when validation fails", func() {
		tenant := s.newTenant("Blocked")
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, tenant))

		_, err := s.store.Execute(s.ctx, tenant.ID,
			func(t *models.Tenant) error { return t.CanTransition(models.TenantStatusSuspended) },
			func(t *models.Tenant) { t.ApplyTransition(models.TenantStatusSuspended, time.Now()) },
		)
		s.Require().Error(err)

		found, err := s.store.FindByID(s.ctx, tenant.ID)
		s.Require().NoError(err)
		s.Equal(models.TenantStatusTrial, found.Status)
	})

	s.Run("returns ErrNotFound for unknown tenant", func() {
		_, err := s.store.Execute(s.ctx, id.NewTenantID(),
			func(*models.Tenant) error { return nil },
			func(*models.Tenant) {},
		)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *TenantStoreSuite) TestFeatureFlags() {
	tenant := s.newTenant("Flagged")
	s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, tenant))

	s.Require().NoError(s.store.SetFeatureFlag(s.ctx, models.FeatureFlag{TenantID: tenant.ID, Flag: "evidence_upload", Enabled: true}))
	s.Require().NoError(s.store.SetFeatureFlag(s.ctx, models.FeatureFlag{TenantID: tenant.ID, Flag: "evidence_upload", Enabled: false}))

	flags, err := s.store.ListFeatureFlags(s.ctx, tenant.ID)
	s.Require().NoError(err)
	s.Require().Len(flags, 1)
	s.False(flags[0].Enabled)
}

type BusinessUnitStoreSuite struct {
	suite.Suite
	store    *BusinessUnitStore
	ctx      context.Context
	tenantID id.TenantID
	orgID    id.OrgID
}

func (s *BusinessUnitStoreSuite) SetupTest() {
	s.store = NewBusinessUnitStore()
	s.ctx = context.Background()
	s.tenantID = id.NewTenantID()
	s.orgID = id.NewOrgID()
}

func TestBusinessUnitStoreSuite(t *testing.T) {
	suite.Run(t, new(BusinessUnitStoreSuite))
}

func (s *BusinessUnitStoreSuite) newUnit(name string) *models.BusinessUnit {
	return &models.BusinessUnit{
		ID:             id.NewBusinessUnitID(),
		TenantID:       s.tenantID,
		OrganizationID: s.orgID,
		Name:           name,
		Status:         models.BusinessUnitActive,
		CreatedAt:      time.Now(),
	}
}

func (s *BusinessUnitStoreSuite) TestTenantScoping() {
	unit := s.newUnit("Payments")
	s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, unit))

	_, err := s.store.FindByID(s.ctx, id.NewTenantID(), unit.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	found, err := s.store.FindByID(s.ctx, s.tenantID, unit.ID)
	s.Require().NoError(err)
	s.Equal(unit.Name, found.Name)
}

func (s *BusinessUnitStoreSuite) TestNameUniquePerOrganization() {
	s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, s.newUnit("Risk")))
	s.ErrorIs(s.store.CreateIfNameAvailable(s.ctx, s.newUnit("risk")), sentinel.ErrAlreadyUsed)

	other := s.newUnit("Risk")
	other.OrganizationID = id.NewOrgID()
	s.NoError(s.store.CreateIfNameAvailable(s.ctx, other))
}
