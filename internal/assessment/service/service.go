package service

import (
	"context"
	"errors"
	"log/slog"

	asmetrics "conforma/internal/assessment/metrics"
	"conforma/internal/assessment/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/sentinel"
)

// AssessmentStore persists assessments.
type AssessmentStore interface {
	CreateIfCodeAvailable(ctx context.Context, assessment *models.Assessment) error
	FindByID(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*models.Assessment, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Assessment, error)
	Update(ctx context.Context, assessment *models.Assessment) error
	Execute(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID,
		validate func(*models.Assessment) error, mutate func(*models.Assessment)) (*models.Assessment, error)
}

// ScopeStore persists assessment scope rows.
type ScopeStore interface {
	Create(ctx context.Context, scope *models.Scope) error
	ListByAssessment(ctx context.Context, assessmentID id.AssessmentID) ([]*models.Scope, error)
}

// QuestionStore persists materialized assessment questions. Rows are
// write-once.
type QuestionStore interface {
	Create(ctx context.Context, question *models.Question) error
	FindByID(ctx context.Context, assessmentID id.AssessmentID, questionID id.AssessmentQuestionID) (*models.Question, error)
	ListByAssessment(ctx context.Context, assessmentID id.AssessmentID) ([]*models.Question, error)
}

// AssignmentStore persists question assignments.
type AssignmentStore interface {
	CreateIfAbsent(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (*models.Assignment, error)
	ListByAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*models.Assignment, error)
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) error
}

// CatalogControl is the slice of a control node materialization needs.
type CatalogControl struct {
	ID       id.ControlID
	ParentID *id.ControlID
	Active   bool
}

// ControlCatalog reads the standards catalog. A version invisible to the
// tenant surfaces as not found.
type ControlCatalog interface {
	VersionUsable(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) error
	ListControls(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) ([]CatalogControl, error)
}

// BankQuestion is the snapshot source for one mapped question.
type BankQuestion struct {
	ControlID    id.ControlID
	QuestionID   id.QuestionID
	QuestionCode string
	QuestionText string
	QuestionType string
	ScaleType    string
	Guidance     string
	IsMandatory  bool
	SortOrder    int
}

// QuestionBank lists the active questions mapped to a set of controls.
type QuestionBank interface {
	ListMappedQuestions(ctx context.Context, tenantID id.TenantID, controlIDs []id.ControlID) ([]BankQuestion, error)
}

// UserDirectory confirms an assignee exists in the tenant.
type UserDirectory interface {
	UserExists(ctx context.Context, tenantID id.TenantID, userID id.UserID) error
}

// ResponseTracker reports per-question response statuses for progress
// computation. Wired after the response module; nil means nothing answered.
type ResponseTracker interface {
	QuestionStatuses(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (map[id.AssessmentQuestionID]string, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements the assessment operations.
type Service struct {
	assessments AssessmentStore
	scopes      ScopeStore
	questions   QuestionStore
	assignments AssignmentStore
	catalog     ControlCatalog
	bank        QuestionBank
	users       UserDirectory
	responses   ResponseTracker
	auditor     *audit.Recorder
	metrics     *asmetrics.Metrics
	logger      *slog.Logger
	txRunner    TxRunner
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditor(recorder *audit.Recorder) Option {
	return func(s *Service) { s.auditor = recorder }
}

func WithMetrics(m *asmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.txRunner = tx }
}

func WithResponseTracker(tracker ResponseTracker) Option {
	return func(s *Service) { s.responses = tracker }
}

func New(assessments AssessmentStore, scopes ScopeStore, questions QuestionStore,
	assignments AssignmentStore, catalog ControlCatalog, bank QuestionBank,
	users UserDirectory, opts ...Option) *Service {
	s := &Service{
		assessments: assessments,
		scopes:      scopes,
		questions:   questions,
		assignments: assignments,
		catalog:     catalog,
		bank:        bank,
		users:       users,
		logger:      slog.Default(),
		txRunner:    noTx{},
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
