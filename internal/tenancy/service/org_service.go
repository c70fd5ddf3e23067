package service

import (
	"context"
	"errors"
	"strings"

	"conforma/internal/tenancy/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// CreateOrganizationInput carries the fields for a new organization.
type CreateOrganizationInput struct {
	LegalName string
	Sector    string
	Regulator string
	SizeBand  string
}

// CreateOrganization registers a legal entity under the caller's tenant.
func (s *Service) CreateOrganization(ctx context.Context, tenantID id.TenantID, in CreateOrganizationInput) (*models.Organization, error) {
	org, err := models.NewOrganization(id.NewOrgID(), tenantID, in.LegalName, in.Sector, in.Regulator, in.SizeBand, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}

	if err := s.orgs.CreateIfNameAvailable(ctx, org); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "organization legal name must be unique within the tenant")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create organization")
	}

	if err := s.record(ctx, audit.EventOrgCreated, "organization", org.ID.String(), org.LegalName); err != nil {
		return nil, err
	}
	return org, nil
}

// GetOrganization loads an organization within the tenant scope.
func (s *Service) GetOrganization(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) (*models.Organization, error) {
	org, err := s.orgs.FindByID(ctx, tenantID, orgID)
	if err != nil {
		return nil, notFound(err, "organization")
	}
	return org, nil
}

// ListOrganizations returns the tenant's organizations.
func (s *Service) ListOrganizations(ctx context.Context, tenantID id.TenantID) ([]*models.Organization, error) {
	orgs, err := s.orgs.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list organizations")
	}
	return orgs, nil
}

// UpdateOrganizationInput carries optional field updates; nil means unchanged.
type UpdateOrganizationInput struct {
	LegalName *string
	Sector    *string
	Regulator *string
	SizeBand  *string
}

// UpdateOrganization applies partial updates within the tenant scope.
func (s *Service) UpdateOrganization(ctx context.Context, tenantID id.TenantID, orgID id.OrgID, in UpdateOrganizationInput) (*models.Organization, error) {
	org, err := s.orgs.FindByID(ctx, tenantID, orgID)
	if err != nil {
		return nil, notFound(err, "organization")
	}

	if in.LegalName != nil {
		name := strings.TrimSpace(*in.LegalName)
		if name == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "organization legal name cannot be empty")
		}
		org.LegalName = name
	}
	if in.Sector != nil {
		org.Sector = strings.TrimSpace(*in.Sector)
	}
	if in.Regulator != nil {
		org.Regulator = strings.TrimSpace(*in.Regulator)
	}
	if in.SizeBand != nil {
		org.SizeBand = strings.TrimSpace(*in.SizeBand)
	}
	org.UpdatedAt = requestcontext.Now(ctx)

	if err := s.orgs.Update(ctx, org); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "organization legal name must be unique within the tenant")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update organization")
	}
	return org, nil
}

// DeleteOrganization removes an organization and its unit tree.
func (s *Service) DeleteOrganization(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) error {
	if err := s.orgs.Delete(ctx, tenantID, orgID); err != nil {
		return notFound(err, "organization")
	}
	return nil
}

// CreateBusinessUnitInput carries the fields for a new business unit.
type CreateBusinessUnitInput struct {
	OrganizationID id.OrgID
	ParentID       *id.BusinessUnitID
	Name           string
}

// CreateBusinessUnit adds a node to the unit tree. The parent, when given,
// must live in the same organization.
func (s *Service) CreateBusinessUnit(ctx context.Context, tenantID id.TenantID, in CreateBusinessUnitInput) (*models.BusinessUnit, error) {
	if _, err := s.orgs.FindByID(ctx, tenantID, in.OrganizationID); err != nil {
		return nil, notFound(err, "organization")
	}
	if in.ParentID != nil {
		parent, err := s.units.FindByID(ctx, tenantID, *in.ParentID)
		if err != nil {
			return nil, notFound(err, "parent business unit")
		}
		if parent.OrganizationID != in.OrganizationID {
			return nil, dErrors.New(dErrors.CodeValidation, "parent business unit belongs to a different organization")
		}
	}

	unit, err := models.NewBusinessUnit(id.NewBusinessUnitID(), tenantID, in.OrganizationID, in.ParentID, in.Name, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}

	if err := s.units.CreateIfNameAvailable(ctx, unit); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "business unit name must be unique within the organization")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create business unit")
	}
	return unit, nil
}

// GetBusinessUnit loads a unit within the tenant scope.
func (s *Service) GetBusinessUnit(ctx context.Context, tenantID id.TenantID, unitID id.BusinessUnitID) (*models.BusinessUnit, error) {
	unit, err := s.units.FindByID(ctx, tenantID, unitID)
	if err != nil {
		return nil, notFound(err, "business unit")
	}
	return unit, nil
}

// ListBusinessUnits returns the unit tree of an organization as a flat list.
func (s *Service) ListBusinessUnits(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.BusinessUnit, error) {
	if _, err := s.orgs.FindByID(ctx, tenantID, orgID); err != nil {
		return nil, notFound(err, "organization")
	}
	units, err := s.units.ListByOrganization(ctx, tenantID, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list business units")
	}
	return units, nil
}

// UpdateBusinessUnitInput carries optional field updates; nil means unchanged.
// SetParent distinguishes "move to root" (SetParent true, ParentID nil) from
// "leave the parent alone" (SetParent false).
type UpdateBusinessUnitInput struct {
	Name      *string
	Status    *models.BusinessUnitStatus
	SetParent bool
	ParentID  *id.BusinessUnitID
}

// UpdateBusinessUnit applies partial updates. Re-parenting walks the new
// parent's ancestor chain and rejects cycles.
func (s *Service) UpdateBusinessUnit(ctx context.Context, tenantID id.TenantID, unitID id.BusinessUnitID, in UpdateBusinessUnitInput) (*models.BusinessUnit, error) {
	unit, err := s.units.FindByID(ctx, tenantID, unitID)
	if err != nil {
		return nil, notFound(err, "business unit")
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "business unit name cannot be empty")
		}
		unit.Name = name
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown business unit status %q", *in.Status)
		}
		unit.Status = *in.Status
	}

	moved := false
	if in.SetParent {
		if err := s.validateParent(ctx, tenantID, unit, in.ParentID); err != nil {
			return nil, err
		}
		unit.ParentID = in.ParentID
		moved = true
	}
	unit.UpdatedAt = requestcontext.Now(ctx)

	if err := s.units.Update(ctx, unit); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "business unit name must be unique within the organization")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update business unit")
	}

	if moved {
		if err := s.record(ctx, audit.EventBusinessUnitMoved, "business_unit", unit.ID.String(), ""); err != nil {
			return nil, err
		}
	}
	return unit, nil
}

// DeleteBusinessUnit removes a leaf unit. Units with children must be moved
// or deleted bottom-up.
func (s *Service) DeleteBusinessUnit(ctx context.Context, tenantID id.TenantID, unitID id.BusinessUnitID) error {
	unit, err := s.units.FindByID(ctx, tenantID, unitID)
	if err != nil {
		return notFound(err, "business unit")
	}
	siblings, err := s.units.ListByOrganization(ctx, tenantID, unit.OrganizationID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load business units")
	}
	for _, candidate := range siblings {
		if candidate.ParentID != nil && *candidate.ParentID == unitID {
			return dErrors.New(dErrors.CodeConflict, "business unit has child units")
		}
	}
	if err := s.units.Delete(ctx, tenantID, unitID); err != nil {
		return notFound(err, "business unit")
	}
	return nil
}

// validateParent enforces the tree invariants for a re-parent: same
// organization, no self-parenting, no cycles.
func (s *Service) validateParent(ctx context.Context, tenantID id.TenantID, unit *models.BusinessUnit, parentID *id.BusinessUnitID) error {
	if parentID == nil {
		return nil
	}
	if *parentID == unit.ID {
		return dErrors.New(dErrors.CodeValidation, "business unit cannot be its own parent")
	}

	current := *parentID
	for depth := 0; depth < 64; depth++ {
		ancestor, err := s.units.FindByID(ctx, tenantID, current)
		if err != nil {
			return notFound(err, "parent business unit")
		}
		if ancestor.OrganizationID != unit.OrganizationID {
			return dErrors.New(dErrors.CodeValidation, "parent business unit belongs to a different organization")
		}
		if ancestor.ID == unit.ID {
			return dErrors.New(dErrors.CodeValidation, "business unit parent chain would form a cycle")
		}
		if ancestor.ParentID == nil {
			return nil
		}
		current = *ancestor.ParentID
	}
	return dErrors.New(dErrors.CodeValidation, "business unit tree exceeds maximum depth")
}
