package service

import (
	"context"
	"errors"
	"strings"

	"conforma/internal/standards/models"
	"conforma/pkg/platform/audit"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

type CreateStandardInput struct {
	Code        string
	Name        string
	Description string
	Owner       string
}

// CreateStandard registers a tenant-scoped standard.
func (s *Service) CreateStandard(ctx context.Context, tenantID id.TenantID, in CreateStandardInput) (*models.Standard, error) {
	return s.createStandard(ctx, &tenantID, in)
}

// CreateGlobalStandard registers a platform-wide standard. Reached only
// through the admin surface.
func (s *Service) CreateGlobalStandard(ctx context.Context, in CreateStandardInput) (*models.Standard, error) {
	return s.createStandard(ctx, nil, in)
}

func (s *Service) createStandard(ctx context.Context, tenantID *id.TenantID, in CreateStandardInput) (*models.Standard, error) {
	standard, err := models.NewStandard(id.NewStandardID(), tenantID, in.Code, in.Name, in.Description, in.Owner, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.standards.CreateIfCodeAvailable(ctx, standard); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "standard code already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create standard")
	}
	if tenantID != nil {
		if err := s.recordForTenant(ctx, *tenantID, audit.EventStandardCreated, "standard", standard.ID.String(), standard.Code); err != nil {
			return nil, err
		}
	}
	if s.metrics != nil {
		s.metrics.IncrementStandardsCreated()
	}
	return standard, nil
}

func (s *Service) GetStandard(ctx context.Context, tenantID id.TenantID, standardID id.StandardID) (*models.Standard, error) {
	return s.visibleStandard(ctx, tenantID, standardID)
}

func (s *Service) ListStandards(ctx context.Context, tenantID id.TenantID) ([]*models.Standard, error) {
	standards, err := s.standards.ListVisibleTo(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list standards")
	}
	return standards, nil
}

type UpdateStandardInput struct {
	Name        *string
	Description *string
	Owner       *string
}

// UpdateStandard applies partial updates. Global standards reject tenant
// edits; the code is immutable once assigned.
func (s *Service) UpdateStandard(ctx context.Context, tenantID id.TenantID, standardID id.StandardID, in UpdateStandardInput) (*models.Standard, error) {
	standard, err := s.visibleStandard(ctx, tenantID, standardID)
	if err != nil {
		return nil, err
	}
	if !standard.OwnedBy(tenantID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "global standards are managed by the platform")
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "standard name cannot be empty")
		}
		standard.Name = name
	}
	if in.Description != nil {
		standard.Description = strings.TrimSpace(*in.Description)
	}
	if in.Owner != nil {
		standard.Owner = strings.TrimSpace(*in.Owner)
	}
	standard.UpdatedAt = requestcontext.Now(ctx)
	if err := s.standards.Update(ctx, standard); err != nil {
		return nil, notFound(err, "standard")
	}
	return standard, nil
}

// DeleteStandard removes a tenant standard and, through the schema, its
// versions and controls.
func (s *Service) DeleteStandard(ctx context.Context, tenantID id.TenantID, standardID id.StandardID) error {
	standard, err := s.visibleStandard(ctx, tenantID, standardID)
	if err != nil {
		return err
	}
	if !standard.OwnedBy(tenantID) {
		return dErrors.New(dErrors.CodeForbidden, "global standards are managed by the platform")
	}
	versions, err := s.versions.ListByStandard(ctx, standardID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list versions")
	}
	for _, v := range versions {
		if v.IsLocked() {
			return dErrors.New(dErrors.CodeConflict, "standard has locked versions")
		}
	}
	if err := s.standards.Delete(ctx, standardID); err != nil {
		return notFound(err, "standard")
	}
	return nil
}

// CreateVersion adds a draft version to a standard the tenant owns.
func (s *Service) CreateVersion(ctx context.Context, tenantID id.TenantID, standardID id.StandardID, label string) (*models.StandardVersion, error) {
	standard, err := s.visibleStandard(ctx, tenantID, standardID)
	if err != nil {
		return nil, err
	}
	if !standard.OwnedBy(tenantID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "global standards are managed by the platform")
	}
	version, err := models.NewStandardVersion(id.NewVersionID(), standardID, label, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.versions.CreateIfLabelAvailable(ctx, version); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "version label already in use for this standard")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create version")
	}
	return version, nil
}

func (s *Service) ListVersions(ctx context.Context, tenantID id.TenantID, standardID id.StandardID) ([]*models.StandardVersion, error) {
	if _, err := s.visibleStandard(ctx, tenantID, standardID); err != nil {
		return nil, err
	}
	versions, err := s.versions.ListByStandard(ctx, standardID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list versions")
	}
	return versions, nil
}

func (s *Service) GetVersion(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) (*models.StandardVersion, error) {
	version, err := s.versions.FindByID(ctx, versionID)
	if err != nil {
		return nil, notFound(err, "version")
	}
	if _, err := s.visibleStandard(ctx, tenantID, version.StandardID); err != nil {
		return nil, err
	}
	return version, nil
}

// LockVersion freezes the version's control set. Locking twice conflicts;
// the row is held across the check so concurrent locks cannot both pass.
func (s *Service) LockVersion(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) (*models.StandardVersion, error) {
	version, err := s.versions.FindByID(ctx, versionID)
	if err != nil {
		return nil, notFound(err, "version")
	}
	standard, err := s.visibleStandard(ctx, tenantID, version.StandardID)
	if err != nil {
		return nil, err
	}
	if !standard.OwnedBy(tenantID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "global standards are managed by the platform")
	}

	now := requestcontext.Now(ctx)
	version, err = s.versions.Execute(ctx, versionID,
		func(v *models.StandardVersion) error {
			if v.IsLocked() {
				return dErrors.New(dErrors.CodeConflict, "version is already locked")
			}
			return nil
		},
		func(v *models.StandardVersion) {
			_ = v.Lock(now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "version not found")
		}
		return nil, err
	}
	if err := s.recordForTenant(ctx, tenantID, audit.EventVersionLocked, "standard_version", version.ID.String(), version.Version); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementVersionsLocked()
	}
	return version, nil
}
