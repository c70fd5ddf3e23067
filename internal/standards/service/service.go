package service

import (
	"context"
	"errors"
	"log/slog"

	"conforma/internal/standards/models"
	standardsmetrics "conforma/internal/standards/metrics"
	"conforma/pkg/platform/audit"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
)

// StandardStore persists standards. Visibility (global versus tenant scope)
// is enforced in the service, not the store.
type StandardStore interface {
	CreateIfCodeAvailable(ctx context.Context, standard *models.Standard) error
	FindByID(ctx context.Context, standardID id.StandardID) (*models.Standard, error)
	ListVisibleTo(ctx context.Context, tenantID id.TenantID) ([]*models.Standard, error)
	Update(ctx context.Context, standard *models.Standard) error
	Delete(ctx context.Context, standardID id.StandardID) error
}

// VersionStore persists standard versions. Execute applies validate then
// mutate while holding the row so concurrent locks cannot both succeed.
type VersionStore interface {
	CreateIfLabelAvailable(ctx context.Context, version *models.StandardVersion) error
	FindByID(ctx context.Context, versionID id.VersionID) (*models.StandardVersion, error)
	ListByStandard(ctx context.Context, standardID id.StandardID) ([]*models.StandardVersion, error)
	Execute(ctx context.Context, versionID id.VersionID,
		validate func(*models.StandardVersion) error, mutate func(*models.StandardVersion)) (*models.StandardVersion, error)
}

// ControlStore persists control nodes.
type ControlStore interface {
	CreateIfCodeAvailable(ctx context.Context, node *models.ControlNode) error
	FindByID(ctx context.Context, controlID id.ControlID) (*models.ControlNode, error)
	FindByCode(ctx context.Context, versionID id.VersionID, code string) (*models.ControlNode, error)
	ListByVersion(ctx context.Context, versionID id.VersionID) ([]*models.ControlNode, error)
	Update(ctx context.Context, node *models.ControlNode) error
	Delete(ctx context.Context, controlID id.ControlID) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements the standards catalog operations.
type Service struct {
	standards StandardStore
	versions  VersionStore
	controls  ControlStore
	auditor   *audit.Recorder
	metrics   *standardsmetrics.Metrics
	logger    *slog.Logger
	txRunner  TxRunner
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditor(recorder *audit.Recorder) Option {
	return func(s *Service) { s.auditor = recorder }
}

func WithMetrics(m *standardsmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.txRunner = tx }
}

func New(standards StandardStore, versions VersionStore, controls ControlStore, opts ...Option) *Service {
	s := &Service{
		standards: standards,
		versions:  versions,
		controls:  controls,
		logger:    slog.Default(),
		txRunner:  noTx{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Service) recordForTenant(ctx context.Context, tenantID id.TenantID, action audit.AuditEvent, objectType, objectID, detail string) error {
	if s.auditor == nil {
		return nil
	}
	return s.auditor.RecordForTenant(ctx, tenantID, action, objectType, objectID, detail)
}

func notFound(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}

// visibleStandard loads a standard and hides it from tenants that may not
// read it, exactly as if the row did not exist.
func (s *Service) visibleStandard(ctx context.Context, tenantID id.TenantID, standardID id.StandardID) (*models.Standard, error) {
	standard, err := s.standards.FindByID(ctx, standardID)
	if err != nil {
		return nil, notFound(err, "standard")
	}
	if !standard.VisibleTo(tenantID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "standard not found")
	}
	return standard, nil
}

// editableVersion resolves a version the tenant owns and that is not locked.
func (s *Service) editableVersion(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) (*models.StandardVersion, *models.Standard, error) {
	version, err := s.versions.FindByID(ctx, versionID)
	if err != nil {
		return nil, nil, notFound(err, "version")
	}
	standard, err := s.visibleStandard(ctx, tenantID, version.StandardID)
	if err != nil {
		return nil, nil, err
	}
	if !standard.OwnedBy(tenantID) {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, "global standards are managed by the platform")
	}
	if version.IsLocked() {
		return nil, nil, dErrors.New(dErrors.CodeConflict, "version is locked")
	}
	return version, standard, nil
}
