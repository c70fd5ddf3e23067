package tenancy

import (
	"log/slog"

	"conforma/internal/tenancy/handler"
	"conforma/internal/tenancy/service"
)

// Service exposes tenant, organization, and business unit orchestration.
type Service = service.Service

// Handler wires HTTP endpoints to the tenancy service.
type Handler = handler.Handler

// NewService constructs the tenancy service with required dependencies.
func NewService(tenants service.TenantStore, orgs service.OrganizationStore, units service.BusinessUnitStore, opts ...service.Option) *Service {
	return service.New(tenants, orgs, units, opts...)
}

// NewHandler constructs an HTTP handler for tenancy routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
