// Package service computes the reporting aggregates by reading through the
// other modules. It holds no state of its own.
package service

import (
	"context"
	"log/slog"

	"conforma/internal/reporting/models"
	id "conforma/pkg/domain"
)

// AssessmentSummary is the slice of an assessment that reporting needs.
type AssessmentSummary struct {
	ID      id.AssessmentID
	Status  string
	Overdue bool
}

// AssessmentSource serves campaign summaries and per-campaign progress.
type AssessmentSource interface {
	ListAssessments(ctx context.Context, tenantID id.TenantID) ([]AssessmentSummary, error)
	GetAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*AssessmentSummary, error)
	Progress(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*models.ProgressSummary, error)
}

// ScoreSource serves the maturity scores of approved answers.
type ScoreSource interface {
	ApprovedScores(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]float64, error)
}

// FindingSummary is the slice of a finding that reporting needs.
type FindingSummary struct {
	AssessmentID *id.AssessmentID
	Severity     string
	Status       string
	Overdue      bool
}

type FindingSource interface {
	ListFindings(ctx context.Context, tenantID id.TenantID) ([]FindingSummary, error)
}

// ActionSummary carries an action's state and its task completion.
type ActionSummary struct {
	Status   string
	Progress float64
}

type RemediationSource interface {
	ListActions(ctx context.Context, tenantID id.TenantID) ([]ActionSummary, error)
}

// Service implements the reporting operations.
type Service struct {
	assessments AssessmentSource
	scores      ScoreSource
	findings    FindingSource
	remediation RemediationSource
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(assessments AssessmentSource, scores ScoreSource, findings FindingSource,
	remediation RemediationSource, opts ...Option) *Service {
	s := &Service{
		assessments: assessments,
		scores:      scores,
		findings:    findings,
		remediation: remediation,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}
