package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"conforma/internal/reporting/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

type fakeAssessments struct {
	summaries []AssessmentSummary
	progress  map[id.AssessmentID]*models.ProgressSummary
}

func (f *fakeAssessments) add(status string, overdue bool) id.AssessmentID {
	summary := AssessmentSummary{ID: id.NewAssessmentID(), Status: status, Overdue: overdue}
	f.summaries = append(f.summaries, summary)
	return summary.ID
}

func (f *fakeAssessments) ListAssessments(_ context.Context, _ id.TenantID) ([]AssessmentSummary, error) {
	return f.summaries, nil
}

func (f *fakeAssessments) GetAssessment(_ context.Context, _ id.TenantID, assessmentID id.AssessmentID) (*AssessmentSummary, error) {
	for _, s := range f.summaries {
		if s.ID == assessmentID {
			summary := s
			return &summary, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "assessment not found")
}

func (f *fakeAssessments) Progress(_ context.Context, _ id.TenantID, assessmentID id.AssessmentID) (*models.ProgressSummary, error) {
	if p, ok := f.progress[assessmentID]; ok {
		return p, nil
	}
	return &models.ProgressSummary{}, nil
}

type fakeScores struct {
	byAssessment map[id.AssessmentID][]float64
}

func (f *fakeScores) ApprovedScores(_ context.Context, _ id.TenantID, assessmentID id.AssessmentID) ([]float64, error) {
	return f.byAssessment[assessmentID], nil
}

type fakeFindings struct {
	findings []FindingSummary
}

func (f *fakeFindings) ListFindings(_ context.Context, _ id.TenantID) ([]FindingSummary, error) {
	return f.findings, nil
}

type fakeRemediation struct {
	actions []ActionSummary
}

func (f *fakeRemediation) ListActions(_ context.Context, _ id.TenantID) ([]ActionSummary, error) {
	return f.actions, nil
}

type ReportingSuite struct {
	suite.Suite
	svc         *Service
	assessments *fakeAssessments
	scores      *fakeScores
	findings    *fakeFindings
	remediation *fakeRemediation
	ctx         context.Context
	tenantID    id.TenantID
}

func (s *ReportingSuite) SetupTest() {
	s.assessments = &fakeAssessments{progress: make(map[id.AssessmentID]*models.ProgressSummary)}
	s.scores = &fakeScores{byAssessment: make(map[id.AssessmentID][]float64)}
	s.findings = &fakeFindings{}
	s.remediation = &fakeRemediation{}
	s.svc = New(s.assessments, s.scores, s.findings, s.remediation)
	s.ctx = context.Background()
	s.tenantID = id.NewTenantID()
}

func (s *ReportingSuite) TestAssessmentMetrics() {
	s.assessments.add("COMPLETED", false)
	s.assessments.add("IN_PROGRESS", true)
	s.assessments.add("IN_PROGRESS", false)
	s.assessments.add("DRAFT", false)

	m, err := s.svc.AssessmentMetrics(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.Equal(4, m.Total)
	s.Equal(1, m.ByStatus["COMPLETED"])
	s.Equal(2, m.ByStatus["IN_PROGRESS"])
	s.Equal(0, m.ByStatus["ARCHIVED"])
	s.Equal(25.0, m.CompletionRate)
	s.Equal(1, m.Overdue)
}

func (s *ReportingSuite) TestAssessmentMetricsEmpty() {
	m, err := s.svc.AssessmentMetrics(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.Equal(0, m.Total)
	s.Equal(0.0, m.CompletionRate)
	s.Contains(m.ByStatus, "DRAFT")
}

func (s *ReportingSuite) TestFindingMetrics() {
	assessmentID := id.NewAssessmentID()
	s.findings.findings = []FindingSummary{
		{AssessmentID: &assessmentID, Severity: "CRITICAL", Status: "OPEN", Overdue: true},
		{AssessmentID: &assessmentID, Severity: "LOW", Status: "CLOSED"},
		{Severity: "HIGH", Status: "OPEN"},
	}

	s.Run("tenant wide", func() {
		m, err := s.svc.FindingMetrics(s.ctx, s.tenantID, nil)
		s.Require().NoError(err)
		s.Equal(3, m.Total)
		s.Equal(1, m.BySeverity["CRITICAL"])
		s.Equal(2, m.ByStatus["OPEN"])
		s.Equal(1, m.Overdue)
	})

	s.Run("scoped to one assessment", func() {
		m, err := s.svc.FindingMetrics(s.ctx, s.tenantID, &assessmentID)
		s.Require().NoError(err)
		s.Equal(2, m.Total)
		s.Equal(0, m.BySeverity["HIGH"])
	})
}

func (s *ReportingSuite) TestMaturityMetrics() {
	first := s.assessments.add("IN_PROGRESS", false)
	second := s.assessments.add("IN_PROGRESS", false)
	s.scores.byAssessment[first] = []float64{1.5, 2.5, 4.0}
	s.scores.byAssessment[second] = []float64{3.0}

	s.Run("spans the tenant", func() {
		m, err := s.svc.MaturityMetrics(s.ctx, s.tenantID, nil)
		s.Require().NoError(err)
		s.Equal(4, m.TotalResponses)
		s.Equal(2.75, m.AverageMaturity)
		s.Equal(1, m.ScoreDistribution["1.0-2.0"])
		s.Equal(1, m.ScoreDistribution["2.0-3.0"])
		s.Equal(1, m.ScoreDistribution["3.0-4.0"])
		s.Equal(1, m.ScoreDistribution["4.0-5.0"])
	})

	s.Run("scoped to one assessment", func() {
		m, err := s.svc.MaturityMetrics(s.ctx, s.tenantID, &second)
		s.Require().NoError(err)
		s.Equal(1, m.TotalResponses)
		s.Equal(3.0, m.AverageMaturity)
	})

	s.Run("no scores yields zeros", func() {
		empty := id.NewAssessmentID()
		m, err := s.svc.MaturityMetrics(s.ctx, s.tenantID, &empty)
		s.Require().NoError(err)
		s.Equal(0, m.TotalResponses)
		s.Equal(0.0, m.AverageMaturity)
	})
}

func (s *ReportingSuite) TestRemediationMetrics() {
	s.remediation.actions = []ActionSummary{
		{Status: "COMPLETED", Progress: 100},
		{Status: "IN_PROGRESS", Progress: 50},
		{Status: "PLANNED", Progress: 0},
	}

	m, err := s.svc.RemediationMetrics(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.Equal(3, m.TotalActions)
	s.Equal(1, m.ByStatus["COMPLETED"])
	s.Equal(50.0, m.AverageProgress)
}

func (s *ReportingSuite) TestAssessmentReport() {
	assessmentID := s.assessments.add("UNDER_REVIEW", true)
	s.assessments.progress[assessmentID] = &models.ProgressSummary{
		TotalQuestions:    10,
		AnsweredQuestions: 8,
		ApprovedQuestions: 6,
		CompletionPercent: 80,
	}
	s.scores.byAssessment[assessmentID] = []float64{4.0, 2.0}
	s.findings.findings = []FindingSummary{
		{AssessmentID: &assessmentID, Severity: "MEDIUM", Status: "OPEN"},
	}

	report, err := s.svc.AssessmentReport(s.ctx, s.tenantID, assessmentID)
	s.Require().NoError(err)
	s.Equal("UNDER_REVIEW", report.Status)
	s.True(report.Overdue)
	s.Equal(10, report.Progress.TotalQuestions)
	s.Equal(1, report.Findings.Total)
	s.Equal(3.0, report.Maturity.AverageMaturity)
}

func (s *ReportingSuite) TestOverview() {
	assessmentID := s.assessments.add("COMPLETED", false)
	s.scores.byAssessment[assessmentID] = []float64{5.0}
	s.findings.findings = []FindingSummary{{Severity: "LOW", Status: "OPEN"}}
	s.remediation.actions = []ActionSummary{{Status: "PLANNED", Progress: 0}}

	overview, err := s.svc.Overview(s.ctx, s.tenantID)
	s.Require().NoError(err)
	s.Equal(1, overview.Assessments.Total)
	s.Equal(100.0, overview.Assessments.CompletionRate)
	s.Equal(1, overview.Findings.Total)
	s.Equal(5.0, overview.Maturity.AverageMaturity)
	s.Equal(1, overview.Remediation.TotalActions)
}

func TestReportingSuite(t *testing.T) {
	suite.Run(t, new(ReportingSuite))
}
