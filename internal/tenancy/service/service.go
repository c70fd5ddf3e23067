// Package service orchestrates tenant, organization, and business unit
// lifecycle. Stores return sentinel errors; this layer converts them to coded
// domain errors and records audit events.
package service

import (
	"context"
	"errors"
	"log/slog"

	tenancymetrics "conforma/internal/tenancy/metrics"
	"conforma/internal/tenancy/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/sentinel"
)

// TenantStore persists tenants and their feature flags.
type TenantStore interface {
	CreateIfNameAvailable(ctx context.Context, tenant *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	// Execute holds the row lock (mutex or FOR UPDATE) across validate and
	// mutate so status transitions are atomic.
	Execute(ctx context.Context, tenantID id.TenantID, validate func(*models.Tenant) error, mutate func(*models.Tenant)) (*models.Tenant, error)
	SetFeatureFlag(ctx context.Context, flag models.FeatureFlag) error
	ListFeatureFlags(ctx context.Context, tenantID id.TenantID) ([]models.FeatureFlag, error)
}

// OrganizationStore persists organizations, scoped by tenant on every read.
type OrganizationStore interface {
	CreateIfNameAvailable(ctx context.Context, org *models.Organization) error
	FindByID(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) (*models.Organization, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
	Delete(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) error
}

// BusinessUnitStore persists business units, scoped by tenant on every read.
type BusinessUnitStore interface {
	CreateIfNameAvailable(ctx context.Context, unit *models.BusinessUnit) error
	FindByID(ctx context.Context, tenantID id.TenantID, unitID id.BusinessUnitID) (*models.BusinessUnit, error)
	ListByOrganization(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.BusinessUnit, error)
	Update(ctx context.Context, unit *models.BusinessUnit) error
	Delete(ctx context.Context, tenantID id.TenantID, unitID id.BusinessUnitID) error
}

// TxRunner runs a function inside a transaction when a database is present.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates the tenancy module.
type Service struct {
	tenants  TenantStore
	orgs     OrganizationStore
	units    BusinessUnitStore
	auditor  *audit.Recorder
	metrics  *tenancymetrics.Metrics
	logger   *slog.Logger
	txRunner TxRunner
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditor(recorder *audit.Recorder) Option {
	return func(s *Service) { s.auditor = recorder }
}

func WithMetrics(m *tenancymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.txRunner = tx }
}

// New constructs a Service.
func New(tenants TenantStore, orgs OrganizationStore, units BusinessUnitStore, opts ...Option) *Service {
	s := &Service{tenants: tenants, orgs: orgs, units: units}
	for _, opt := range opts {
		opt(s)
	}
	if s.txRunner == nil {
		s.txRunner = noTx{}
	}
	return s
}

// noTx runs the callback directly; memory stores have no transactions.
type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Service) record(ctx context.Context, action audit.AuditEvent, objectType, objectID, detail string) error {
	if s.auditor == nil {
		return nil
	}
	return s.auditor.Record(ctx, action, objectType, objectID, detail)
}

func (s *Service) recordForTenant(ctx context.Context, tenantID id.TenantID, action audit.AuditEvent, objectType, objectID, detail string) error {
	if s.auditor == nil {
		return nil
	}
	return s.auditor.RecordForTenant(ctx, tenantID, action, objectType, objectID, detail)
}

// notFound maps store sentinel errors to a domain not-found, hiding whether
// the record exists in another tenant.
func notFound(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}
