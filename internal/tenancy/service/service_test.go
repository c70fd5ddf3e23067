package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"conforma/internal/tenancy/models"
	"conforma/internal/tenancy/store/memory"
	dErrors "conforma/pkg/domain-errors"
	id "conforma/pkg/domain"
)

type ServiceSuite struct {
	suite.Suite
	svc *Service
	ctx context.Context
}

func (s *ServiceSuite) SetupTest() {
	s.svc = New(memory.NewTenantStore(), memory.NewOrganizationStore(), memory.NewBusinessUnitStore())
	s.ctx = context.Background()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) mustCreateTenant(name string) *models.Tenant {
	tenant, err := s.svc.CreateTenant(s.ctx, name)
	s.Require().NoError(err)
	return tenant
}

func (s *ServiceSuite) mustCreateOrg(tenantID id.TenantID, legalName string) *models.Organization {
	org, err := s.svc.CreateOrganization(s.ctx, tenantID, CreateOrganizationInput{
		LegalName: legalName,
		Sector:    "financial_services",
		Regulator: "FCA",
		SizeBand:  "medium",
	})
	s.Require().NoError(err)
	return org
}

func (s *ServiceSuite) mustCreateUnit(tenantID id.TenantID, orgID id.OrgID, parentID *id.BusinessUnitID, name string) *models.BusinessUnit {
	unit, err := s.svc.CreateBusinessUnit(s.ctx, tenantID, CreateBusinessUnitInput{
		OrganizationID: orgID,
		ParentID:       parentID,
		Name:           name,
	})
	s.Require().NoError(err)
	return unit
}

func (s *ServiceSuite) TestCreateTenant() {
	s.Run("new tenant starts in trial", func() {
		tenant := s.mustCreateTenant("Acme")
		s.Equal(models.TenantStatusTrial, tenant.Status)
	})

	s.Run("rejects blank name", func() {
		_, err := s.svc.CreateTenant(s.ctx, "   ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects duplicate name regardless of case", func() {
		s.mustCreateTenant("Globex")
		_, err := s.svc.CreateTenant(s.ctx, "globex")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestTransitionTenant() {
	s.Run("trial activates", func() {
		tenant := s.mustCreateTenant("Activates")
		got, err := s.svc.TransitionTenant(s.ctx, tenant.ID, models.TenantStatusActive)
		s.Require().NoError(err)
		s.Equal(models.TenantStatusActive, got.Status)
	})

	s.Run("trial cannot suspend directly", func() {
		tenant := s.mustCreateTenant("NoSuspend")
		_, err := s.svc.TransitionTenant(s.ctx, tenant.ID, models.TenantStatusSuspended)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("suspended tenant reactivates", func() {
		tenant := s.mustCreateTenant("Roundtrip")
		_, err := s.svc.TransitionTenant(s.ctx, tenant.ID, models.TenantStatusActive)
		s.Require().NoError(err)
		_, err = s.svc.TransitionTenant(s.ctx, tenant.ID, models.TenantStatusSuspended)
		s.Require().NoError(err)
		got, err := s.svc.TransitionTenant(s.ctx, tenant.ID, models.TenantStatusActive)
		s.Require().NoError(err)
		s.Equal(models.TenantStatusActive, got.Status)
	})

	s.Run("archived is terminal", func() {
		tenant := s.mustCreateTenant("Archived")
		_, err := s.svc.TransitionTenant(s.ctx, tenant.ID, models.TenantStatusArchived)
		s.Require().NoError(err)
		_, err = s.svc.TransitionTenant(s.ctx, tenant.ID, models.TenantStatusActive)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects unknown status", func() {
		tenant := s.mustCreateTenant("Unknown")
		_, err := s.svc.TransitionTenant(s.ctx, tenant.ID, models.TenantStatus("deleted"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing tenant yields not found", func() {
		_, err := s.svc.TransitionTenant(s.ctx, id.NewTenantID(), models.TenantStatusActive)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestFeatureFlags() {
	tenant := s.mustCreateTenant("Flags")

	flag, err := s.svc.SetFeatureFlag(s.ctx, tenant.ID, "  Evidence_Upload ", true)
	s.Require().NoError(err)
	s.Equal("evidence_upload", flag.Flag)

	_, err = s.svc.SetFeatureFlag(s.ctx, tenant.ID, "evidence_upload", false)
	s.Require().NoError(err)

	flags, err := s.svc.ListFeatureFlags(s.ctx, tenant.ID)
	s.Require().NoError(err)
	s.Require().Len(flags, 1)
	s.False(flags[0].Enabled)
}

func (s *ServiceSuite) TestOrganizations() {
	tenant := s.mustCreateTenant("OrgTenant")

	s.Run("duplicate legal name conflicts", func() {
		s.mustCreateOrg(tenant.ID, "Initech Ltd")
		_, err := s.svc.CreateOrganization(s.ctx, tenant.ID, CreateOrganizationInput{LegalName: "initech ltd"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("cross-tenant read behaves like missing row", func() {
		org := s.mustCreateOrg(tenant.ID, "Hooli Inc")
		other := s.mustCreateTenant("OtherTenant")
		_, err := s.svc.GetOrganization(s.ctx, other.ID, org.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestBusinessUnitTree() {
	tenant := s.mustCreateTenant("TreeTenant")
	org := s.mustCreateOrg(tenant.ID, "Tree Org")

	s.Run("parent must belong to the same organization", func() {
		otherOrg := s.mustCreateOrg(tenant.ID, "Other Org")
		parent := s.mustCreateUnit(tenant.ID, otherOrg.ID, nil, "Foreign Parent")
		_, err := s.svc.CreateBusinessUnit(s.ctx, tenant.ID, CreateBusinessUnitInput{
			OrganizationID: org.ID,
			ParentID:       &parent.ID,
			Name:           "Orphan",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects self-parenting", func() {
		unit := s.mustCreateUnit(tenant.ID, org.ID, nil, "Selfish")
		_, err := s.svc.UpdateBusinessUnit(s.ctx, tenant.ID, unit.ID, UpdateBusinessUnitInput{
			SetParent: true,
			ParentID:  &unit.ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects reparenting cycles", func() {
		root := s.mustCreateUnit(tenant.ID, org.ID, nil, "Root")
		child := s.mustCreateUnit(tenant.ID, org.ID, &root.ID, "Child")
		grandchild := s.mustCreateUnit(tenant.ID, org.ID, &child.ID, "Grandchild")

		_, err := s.svc.UpdateBusinessUnit(s.ctx, tenant.ID, root.ID, UpdateBusinessUnitInput{
			SetParent: true,
			ParentID:  &grandchild.ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("move to root clears the parent", func() {
		root := s.mustCreateUnit(tenant.ID, org.ID, nil, "Detach Root")
		child := s.mustCreateUnit(tenant.ID, org.ID, &root.ID, "Detach Child")

		updated, err := s.svc.UpdateBusinessUnit(s.ctx, tenant.ID, child.ID, UpdateBusinessUnitInput{SetParent: true})
		s.Require().NoError(err)
		s.Nil(updated.ParentID)
	})

	s.Run("cannot delete a unit with children", func() {
		root := s.mustCreateUnit(tenant.ID, org.ID, nil, "Delete Root")
		s.mustCreateUnit(tenant.ID, org.ID, &root.ID, "Delete Child")

		err := s.svc.DeleteBusinessUnit(s.ctx, tenant.ID, root.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
