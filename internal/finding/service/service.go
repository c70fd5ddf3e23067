// Package service implements finding management: numbered findings, their
// lifecycle, remediation plans, and generation from weak answers.
package service

import (
	"context"
	"errors"
	"log/slog"

	"conforma/internal/finding/metrics"
	"conforma/internal/finding/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/sentinel"
)

// FindingStore persists findings. Execute runs validate and mutate with the
// row held so lifecycle moves serialize.
type FindingStore interface {
	Create(ctx context.Context, finding *models.Finding) error
	FindByID(ctx context.Context, tenantID id.TenantID, findingID id.FindingID) (*models.Finding, error)
	FindByResponse(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) (*models.Finding, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Finding, error)
	Update(ctx context.Context, finding *models.Finding) error
	Execute(ctx context.Context, tenantID id.TenantID, findingID id.FindingID,
		validate func(*models.Finding) error, mutate func(*models.Finding)) (*models.Finding, error)
}

// SequenceStore allocates tenant-scoped finding numbers. Numbers are never
// reused, even when the finding insert later fails.
type SequenceStore interface {
	Next(ctx context.Context, tenantID id.TenantID) (int, error)
}

// ActionStore persists remediation actions.
type ActionStore interface {
	Create(ctx context.Context, action *models.RemediationAction) error
	FindByID(ctx context.Context, tenantID id.TenantID, actionID id.RemediationID) (*models.RemediationAction, error)
	ListByFinding(ctx context.Context, findingID id.FindingID) ([]*models.RemediationAction, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.RemediationAction, error)
	Update(ctx context.Context, action *models.RemediationAction) error
}

// TaskStore persists remediation tasks. Tenancy is enforced through the
// owning action.
type TaskStore interface {
	Create(ctx context.Context, task *models.RemediationTask) error
	FindByID(ctx context.Context, taskID id.TaskID) (*models.RemediationTask, error)
	ListByAction(ctx context.Context, actionID id.RemediationID) ([]*models.RemediationTask, error)
	Update(ctx context.Context, task *models.RemediationTask) error
	Delete(ctx context.Context, taskID id.TaskID) error
}

// ScoredAnswer is one approved response with its maturity score, as the
// generator consumes it.
type ScoredAnswer struct {
	ResponseID   id.ResponseID
	AssessmentID id.AssessmentID
	ControlID    id.ControlID
	QuestionCode string
	QuestionText string
	Score        float64
}

// AnswerSource serves the approved, scored responses of an assessment.
type AnswerSource interface {
	ApprovedAnswers(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]ScoredAnswer, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements the finding operations.
type Service struct {
	findings  FindingStore
	sequences SequenceStore
	actions   ActionStore
	tasks     TaskStore
	answers   AnswerSource
	auditor   *audit.Recorder
	metrics   *metrics.Metrics
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.txRunner = tx }
}

func New(findings FindingStore, sequences SequenceStore, actions ActionStore,
	tasks TaskStore, answers AnswerSource, opts ...Option) *Service {
	s := &Service{
		findings:  findings,
		sequences: sequences,
		actions:   actions,
		tasks:     tasks,
		answers:   answers,
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
