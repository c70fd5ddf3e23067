package service

import (
	"context"
	"math"

	"conforma/internal/reporting/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// The dashboards expect every band present, so the count maps are seeded
// with zeros.
var (
	assessmentStatuses = []string{"DRAFT", "IN_PROGRESS", "UNDER_REVIEW", "COMPLETED", "ARCHIVED"}
	findingSeverities  = []string{"CRITICAL", "HIGH", "MEDIUM", "LOW", "INFORMATIONAL"}
	findingStatuses    = []string{"OPEN", "IN_PROGRESS", "RESOLVED", "RISK_ACCEPTED", "CLOSED"}
	actionStatuses     = []string{"PLANNED", "IN_PROGRESS", "COMPLETED", "CANCELLED"}
)

func seeded(keys []string) map[string]int {
	m := make(map[string]int, len(keys))
	for _, k := range keys {
		m[k] = 0
	}
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Overview assembles the tenant compliance dashboard.
func (s *Service) Overview(ctx context.Context, tenantID id.TenantID) (*models.Overview, error) {
	assessments, err := s.AssessmentMetrics(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	findings, err := s.FindingMetrics(ctx, tenantID, nil)
	if err != nil {
		return nil, err
	}
	maturity, err := s.MaturityMetrics(ctx, tenantID, nil)
	if err != nil {
		return nil, err
	}
	remediation, err := s.RemediationMetrics(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &models.Overview{
		Assessments: *assessments,
		Findings:    *findings,
		Maturity:    *maturity,
		Remediation: *remediation,
	}, nil
}

func (s *Service) AssessmentMetrics(ctx context.Context, tenantID id.TenantID) (*models.AssessmentMetrics, error) {
	assessments, err := s.assessments.ListAssessments(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list assessments")
	}
	m := &models.AssessmentMetrics{
		Total:    len(assessments),
		ByStatus: seeded(assessmentStatuses),
	}
	for _, a := range assessments {
		m.ByStatus[a.Status]++
		if a.Overdue {
			m.Overdue++
		}
	}
	if m.Total > 0 {
		m.CompletionRate = round2(float64(m.ByStatus["COMPLETED"]) / float64(m.Total) * 100)
	}
	return m, nil
}

func (s *Service) FindingMetrics(ctx context.Context, tenantID id.TenantID, assessmentID *id.AssessmentID) (*models.FindingMetrics, error) {
	findings, err := s.findings.ListFindings(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list findings")
	}
	m := &models.FindingMetrics{
		BySeverity: seeded(findingSeverities),
		ByStatus:   seeded(findingStatuses),
	}
	for _, f := range findings {
		if assessmentID != nil && (f.AssessmentID == nil || *f.AssessmentID != *assessmentID) {
			continue
		}
		m.Total++
		m.BySeverity[f.Severity]++
		m.ByStatus[f.Status]++
		if f.Overdue {
			m.Overdue++
		}
	}
	return m, nil
}

// MaturityMetrics averages approved scores. With no assessment given it spans
// every campaign of the tenant.
func (s *Service) MaturityMetrics(ctx context.Context, tenantID id.TenantID, assessmentID *id.AssessmentID) (*models.MaturityMetrics, error) {
	var scores []float64
	if assessmentID != nil {
		var err error
		scores, err = s.scores.ApprovedScores(ctx, tenantID, *assessmentID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to collect scores")
		}
	} else {
		assessments, err := s.assessments.ListAssessments(ctx, tenantID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list assessments")
		}
		for _, a := range assessments {
			batch, err := s.scores.ApprovedScores(ctx, tenantID, a.ID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to collect scores")
			}
			scores = append(scores, batch...)
		}
	}

	m := &models.MaturityMetrics{
		TotalResponses: len(scores),
		ScoreDistribution: map[string]int{
			"1.0-2.0": 0,
			"2.0-3.0": 0,
			"3.0-4.0": 0,
			"4.0-5.0": 0,
		},
	}
	if len(scores) == 0 {
		return m, nil
	}
	var sum float64
	for _, score := range scores {
		sum += score
		switch {
		case score >= 4.0:
			m.ScoreDistribution["4.0-5.0"]++
		case score >= 3.0:
			m.ScoreDistribution["3.0-4.0"]++
		case score >= 2.0:
			m.ScoreDistribution["2.0-3.0"]++
		case score >= 1.0:
			m.ScoreDistribution["1.0-2.0"]++
		}
	}
	m.AverageMaturity = round2(sum / float64(len(scores)))
	return m, nil
}

func (s *Service) RemediationMetrics(ctx context.Context, tenantID id.TenantID) (*models.RemediationMetrics, error) {
	actions, err := s.remediation.ListActions(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list remediation actions")
	}
	m := &models.RemediationMetrics{
		TotalActions: len(actions),
		ByStatus:     seeded(actionStatuses),
	}
	if len(actions) == 0 {
		return m, nil
	}
	var sum float64
	for _, a := range actions {
		m.ByStatus[a.Status]++
		sum += a.Progress
	}
	m.AverageProgress = round2(sum / float64(len(actions)))
	return m, nil
}

// AssessmentReport is the per-assessment drill-down: progress, findings, and
// maturity scoped to one campaign.
func (s *Service) AssessmentReport(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*models.AssessmentReport, error) {
	assessment, err := s.assessments.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, err
	}
	progress, err := s.assessments.Progress(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, err
	}
	findings, err := s.FindingMetrics(ctx, tenantID, &assessmentID)
	if err != nil {
		return nil, err
	}
	maturity, err := s.MaturityMetrics(ctx, tenantID, &assessmentID)
	if err != nil {
		return nil, err
	}
	return &models.AssessmentReport{
		Status:   assessment.Status,
		Overdue:  assessment.Overdue,
		Progress: *progress,
		Findings: *findings,
		Maturity: *maturity,
	}, nil
}
