// Package adapters feeds the reporting aggregates from the assessment,
// response, and finding modules.
package adapters

import (
	"context"

	asmodels "conforma/internal/assessment/models"
	fmodels "conforma/internal/finding/models"
	fservice "conforma/internal/finding/service"
	"conforma/internal/reporting/models"
	"conforma/internal/reporting/service"
	respmodels "conforma/internal/response/models"
	id "conforma/pkg/domain"
	"conforma/pkg/requestcontext"
)

type assessmentReader interface {
	ListAssessments(ctx context.Context, tenantID id.TenantID) ([]*asmodels.Assessment, error)
	GetAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*asmodels.Assessment, error)
	Progress(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*asmodels.Progress, error)
}

// AssessmentSource satisfies the reporting campaign port from the assessment
// service.
type AssessmentSource struct {
	assessments assessmentReader
}

func NewAssessmentSource(assessments assessmentReader) *AssessmentSource {
	return &AssessmentSource{assessments: assessments}
}

func summarize(ctx context.Context, a *asmodels.Assessment) service.AssessmentSummary {
	overdue := false
	if a.DueDate != nil && a.Status != asmodels.StatusCompleted && a.Status != asmodels.StatusArchived {
		overdue = requestcontext.Now(ctx).After(*a.DueDate)
	}
	return service.AssessmentSummary{
		ID:      a.ID,
		Status:  string(a.Status),
		Overdue: overdue,
	}
}

func (s *AssessmentSource) ListAssessments(ctx context.Context, tenantID id.TenantID) ([]service.AssessmentSummary, error) {
	assessments, err := s.assessments.ListAssessments(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]service.AssessmentSummary, 0, len(assessments))
	for _, a := range assessments {
		out = append(out, summarize(ctx, a))
	}
	return out, nil
}

func (s *AssessmentSource) GetAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*service.AssessmentSummary, error) {
	a, err := s.assessments.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, err
	}
	summary := summarize(ctx, a)
	return &summary, nil
}

func (s *AssessmentSource) Progress(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*models.ProgressSummary, error) {
	p, err := s.assessments.Progress(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, err
	}
	return &models.ProgressSummary{
		TotalQuestions:     p.TotalQuestions,
		AnsweredQuestions:  p.AnsweredQuestions,
		ApprovedQuestions:  p.ApprovedQuestions,
		CompletionPercent:  p.CompletionPercent,
		MandatoryRemaining: p.MandatoryRemaining,
	}, nil
}

type responseLister interface {
	ListResponses(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*respmodels.Response, error)
}

// ScoreSource collects approved maturity scores from the response service.
type ScoreSource struct {
	responses responseLister
}

func NewScoreSource(responses responseLister) *ScoreSource {
	return &ScoreSource{responses: responses}
}

func (s *ScoreSource) ApprovedScores(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]float64, error) {
	responses, err := s.responses.ListResponses(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, err
	}
	var scores []float64
	for _, r := range responses {
		if r.Status == respmodels.StatusApproved && r.MaturityScore != nil {
			scores = append(scores, *r.MaturityScore)
		}
	}
	return scores, nil
}

type findingReader interface {
	ListFindings(ctx context.Context, tenantID id.TenantID, filter fservice.FindingFilter) ([]*fmodels.Finding, error)
	ListTenantActions(ctx context.Context, tenantID id.TenantID) ([]*fmodels.RemediationAction, error)
	ListTasks(ctx context.Context, tenantID id.TenantID, actionID id.RemediationID) ([]*fmodels.RemediationTask, error)
}

// FindingSource satisfies both finding-facing reporting ports from the
// finding service.
type FindingSource struct {
	findings findingReader
}

func NewFindingSource(findings findingReader) *FindingSource {
	return &FindingSource{findings: findings}
}

func (s *FindingSource) ListFindings(ctx context.Context, tenantID id.TenantID) ([]service.FindingSummary, error) {
	findings, err := s.findings.ListFindings(ctx, tenantID, fservice.FindingFilter{})
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	out := make([]service.FindingSummary, 0, len(findings))
	for _, f := range findings {
		out = append(out, service.FindingSummary{
			AssessmentID: f.AssessmentID,
			Severity:     string(f.Severity),
			Status:       string(f.Status),
			Overdue:      f.Overdue(now),
		})
	}
	return out, nil
}

// ListActions reports each action with its task completion. Actions without
// tasks count as done only once completed.
func (s *FindingSource) ListActions(ctx context.Context, tenantID id.TenantID) ([]service.ActionSummary, error) {
	actions, err := s.findings.ListTenantActions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]service.ActionSummary, 0, len(actions))
	for _, a := range actions {
		tasks, err := s.findings.ListTasks(ctx, tenantID, a.ID)
		if err != nil {
			return nil, err
		}
		progress := 0.0
		if len(tasks) == 0 {
			if a.Status == fmodels.ActionCompleted {
				progress = 100
			}
		} else {
			done := 0
			for _, t := range tasks {
				if t.Status == fmodels.TaskDone {
					done++
				}
			}
			progress = float64(done) / float64(len(tasks)) * 100
		}
		out = append(out, service.ActionSummary{
			Status:   string(a.Status),
			Progress: progress,
		})
	}
	return out, nil
}
