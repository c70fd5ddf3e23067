package adapters

import (
	"context"

	tenancyModels "conforma/internal/tenancy/models"
	id "conforma/pkg/domain"
)

// tenantResolver is the slice of the tenancy service the login flow needs.
// Defined locally so iam does not import the tenancy service package.
type tenantResolver interface {
	GetTenant(ctx context.Context, tenantID id.TenantID) (*tenancyModels.Tenant, error)
}

// TenantChecker adapts the tenancy service to the iam service's
// TenantChecker port.
type TenantChecker struct {
	tenancy tenantResolver
}

func NewTenantChecker(svc tenantResolver) *TenantChecker {
	return &TenantChecker{tenancy: svc}
}

func (a *TenantChecker) IsTenantActive(ctx context.Context, tenantID id.TenantID) (bool, error) {
	tenant, err := a.tenancy.GetTenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return tenant.IsActive(), nil
}
