package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	qbmetrics "conforma/internal/questionbank/metrics"
	"conforma/internal/questionbank/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
)

// QuestionStore persists bank questions.
type QuestionStore interface {
	CreateIfCodeAvailable(ctx context.Context, question *models.Question) error
	FindByID(ctx context.Context, tenantID id.TenantID, questionID id.QuestionID) (*models.Question, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Question, error)
	Update(ctx context.Context, question *models.Question) error
}

// OptionStore persists question options.
type OptionStore interface {
	Create(ctx context.Context, option *models.QuestionOption) error
	ListByQuestion(ctx context.Context, questionID id.QuestionID) ([]*models.QuestionOption, error)
	Delete(ctx context.Context, questionID id.QuestionID, optionID uuid.UUID) error
	DeleteByQuestion(ctx context.Context, questionID id.QuestionID) error
}

// MapStore persists control-question links.
type MapStore interface {
	CreateIfAbsent(ctx context.Context, m *models.ControlQuestionMap) error
	Delete(ctx context.Context, tenantID id.TenantID, controlID id.ControlID, questionID id.QuestionID) error
	ListByControl(ctx context.Context, tenantID id.TenantID, controlID id.ControlID) ([]*models.ControlQuestionMap, error)
	ListByQuestion(ctx context.Context, tenantID id.TenantID, questionID id.QuestionID) ([]*models.ControlQuestionMap, error)
	ListForControls(ctx context.Context, tenantID id.TenantID, controlIDs []id.ControlID) ([]*models.ControlQuestionMap, error)
}

// ControlCatalog answers whether a control is readable by a tenant. The
// catalog hides foreign tenant controls as missing rows, so the same check
// covers both existence and tenancy.
type ControlCatalog interface {
	ControlVisible(ctx context.Context, tenantID id.TenantID, controlID id.ControlID) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service implements the question bank operations.
type Service struct {
	questions QuestionStore
	options   OptionStore
	maps      MapStore
	controls  ControlCatalog
	metrics   *qbmetrics.Metrics
	logger    *slog.Logger
	txRunner  TxRunner
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *qbmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.txRunner = tx }
}

func New(questions QuestionStore, options OptionStore, maps MapStore, controls ControlCatalog, opts ...Option) *Service {
	s := &Service{
		questions: questions,
		options:   options,
		maps:      maps,
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

func notFound(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}
