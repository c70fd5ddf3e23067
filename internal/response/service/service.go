// Package service implements the response workflow: drafting answers,
// the submit/review lifecycle, version history, and evidence handling.
package service

import (
	"context"
	"errors"
	"log/slog"

	"conforma/internal/platform/blob"
	"conforma/internal/response/metrics"
	"conforma/internal/response/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/sentinel"
)

// ResponseStore persists answers. Execute runs validate and mutate with the
// row held so transitions serialize.
type ResponseStore interface {
	CreateIfAbsent(ctx context.Context, response *models.Response) error
	FindByID(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) (*models.Response, error)
	FindByQuestion(ctx context.Context, tenantID id.TenantID, questionID id.AssessmentQuestionID) (*models.Response, error)
	ListByAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*models.Response, error)
	Update(ctx context.Context, response *models.Response) error
	Execute(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID,
		validate func(*models.Response) error, mutate func(*models.Response)) (*models.Response, error)
}

// VersionStore persists immutable history rows.
type VersionStore interface {
	Create(ctx context.Context, version *models.Version) error
	ListByResponse(ctx context.Context, responseID id.ResponseID) ([]*models.Version, error)
}

// ReviewStore persists reviewer verdicts.
type ReviewStore interface {
	Create(ctx context.Context, review *models.Review) error
	ListByResponse(ctx context.Context, responseID id.ResponseID) ([]*models.Review, error)
}

// EvidenceStore persists evidence metadata.
type EvidenceStore interface {
	Create(ctx context.Context, evidence *models.Evidence) error
	FindByID(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*models.Evidence, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Evidence, error)
	Update(ctx context.Context, evidence *models.Evidence) error
}

// LinkStore persists response-evidence links.
type LinkStore interface {
	CreateIfAbsent(ctx context.Context, link *models.EvidenceLink) error
	Delete(ctx context.Context, responseID id.ResponseID, evidenceID id.EvidenceID) error
	ListByResponse(ctx context.Context, responseID id.ResponseID) ([]id.EvidenceID, error)
}

// QuestionSnapshot is the slice of a materialized question the workflow
// needs: scoring context plus ownership.
type QuestionSnapshot struct {
	AssessmentID   id.AssessmentID
	QuestionID     id.AssessmentQuestionID
	BankQuestionID id.QuestionID
	QuestionType   string
	ScaleType      string
	IsMandatory    bool
}

// AssessmentDirectory resolves materialized questions and gates drafting on
// the campaign being open.
type AssessmentDirectory interface {
	QuestionSnapshot(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID, questionID id.AssessmentQuestionID) (*QuestionSnapshot, error)
	AssessmentOpen(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) error
}

// ScoredOption is one answer choice with its maturity weight.
type ScoredOption struct {
	Value string
	Score float64
}

// OptionSource serves the scored options of a bank question.
type OptionSource interface {
	QuestionOptions(ctx context.Context, questionID id.QuestionID) ([]ScoredOption, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements the response operations.
type Service struct {
	responses   ResponseStore
	versions    VersionStore
	reviews     ReviewStore
	evidence    EvidenceStore
	links       LinkStore
	assessments AssessmentDirectory
	options     OptionSource
	blobs       blob.Store
	auditor     *audit.Recorder
	metrics     *metrics.Metrics
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.txRunner = tx }
}

func New(responses ResponseStore, versions VersionStore, reviews ReviewStore,
	evidence EvidenceStore, links LinkStore, assessments AssessmentDirectory,
	options OptionSource, blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		responses:   responses,
		versions:    versions,
		reviews:     reviews,
		evidence:    evidence,
		links:       links,
		assessments: assessments,
		options:     options,
		blobs:       blobs,
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
