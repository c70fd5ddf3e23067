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

// CreateTenant provisions a new tenant in trial status. Admin surface only.
func (s *Service) CreateTenant(ctx context.Context, name string) (*models.Tenant, error) {
	var tenant *models.Tenant
	err := s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		t, err := models.NewTenant(id.NewTenantID(), name, requestcontext.Now(txCtx))
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
			}
			return err
		}

		if err := s.tenants.CreateIfNameAvailable(txCtx, t); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "tenant name must be unique")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create tenant")
		}
		if err := s.recordForTenant(txCtx, t.ID, audit.EventTenantCreated, "tenant", t.ID.String(), t.Name); err != nil {
			return err
		}
		tenant = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementTenantsCreated()
	}
	return tenant, nil
}

// GetTenant loads a tenant by id.
func (s *Service) GetTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, notFound(err, "tenant")
	}
	return tenant, nil
}

// ListTenants returns all tenants. Admin surface only.
func (s *Service) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenants")
	}
	return tenants, nil
}

// transitionEvents maps target statuses to their audit events.
var transitionEvents = map[models.TenantStatus]audit.AuditEvent{
	models.TenantStatusActive:    audit.EventTenantReactivated,
	models.TenantStatusSuspended: audit.EventTenantSuspended,
	models.TenantStatusArchived:  audit.EventTenantArchived,
}

// TransitionTenant moves a tenant to the target status. Illegal transitions
// return a conflict; archived tenants never leave that state.
//
// The store's Execute holds the lock across validate and mutate so two
// concurrent transitions cannot both pass validation.
func (s *Service) TransitionTenant(ctx context.Context, tenantID id.TenantID, target models.TenantStatus) (*models.Tenant, error) {
	event, ok := transitionEvents[target]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown tenant status %q", target)
	}

	now := requestcontext.Now(ctx)
	tenant, err := s.tenants.Execute(ctx, tenantID,
		func(t *models.Tenant) error {
			if err := t.CanTransition(target); err != nil {
				return dErrors.New(dErrors.CodeConflict, dErrors.MessageOf(err))
			}
			return nil
		},
		func(t *models.Tenant) {
			t.ApplyTransition(target, now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "tenant not found")
		}
		return nil, err
	}

	if err := s.recordForTenant(ctx, tenant.ID, event, "tenant", tenant.ID.String(), string(target)); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(target))
	}
	return tenant, nil
}

// SetFeatureFlag upserts a per-tenant feature toggle.
func (s *Service) SetFeatureFlag(ctx context.Context, tenantID id.TenantID, flag string, enabled bool) (*models.FeatureFlag, error) {
	flag = strings.TrimSpace(strings.ToLower(flag))
	if flag == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "feature flag code is required")
	}
	if _, err := s.tenants.FindByID(ctx, tenantID); err != nil {
		return nil, notFound(err, "tenant")
	}

	f := models.FeatureFlag{TenantID: tenantID, Flag: flag, Enabled: enabled}
	if err := s.tenants.SetFeatureFlag(ctx, f); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to set feature flag")
	}
	return &f, nil
}

// ListFeatureFlags returns all flags configured for the tenant.
func (s *Service) ListFeatureFlags(ctx context.Context, tenantID id.TenantID) ([]models.FeatureFlag, error) {
	if _, err := s.tenants.FindByID(ctx, tenantID); err != nil {
		return nil, notFound(err, "tenant")
	}
	flags, err := s.tenants.ListFeatureFlags(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list feature flags")
	}
	return flags, nil
}
