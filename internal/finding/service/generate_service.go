package service

import (
	"context"
	"errors"
	"fmt"

	"conforma/internal/finding/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
)

// DefaultGenerationThreshold is the maturity score below which an approved
// answer raises a finding.
const DefaultGenerationThreshold = 3.5

// severityForScore maps a maturity score onto a severity band.
func severityForScore(score float64) models.Severity {
	switch {
	case score < 1.5:
		return models.SeverityCritical
	case score < 2.5:
		return models.SeverityHigh
	case score < 3.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// GenerateFromAssessment opens findings for every approved answer scoring
// below the threshold. Responses that already carry a finding are skipped,
// so the operation is safe to repeat.
func (s *Service) GenerateFromAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID, threshold float64) ([]*models.Finding, error) {
	if s.answers == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "no answer source configured")
	}
	if threshold <= 0 {
		threshold = DefaultGenerationThreshold
	}
	answers, err := s.answers.ApprovedAnswers(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, err
	}

	var generated []*models.Finding
	for _, answer := range answers {
		if answer.Score >= threshold {
			continue
		}
		_, err := s.findings.FindByResponse(ctx, tenantID, answer.ResponseID)
		if err == nil {
			continue
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing finding")
		}

		responseID := answer.ResponseID
		assessmentRef := answer.AssessmentID
		controlID := answer.ControlID
		finding, err := s.CreateFinding(ctx, tenantID, CreateFindingInput{
			Title: fmt.Sprintf("Low maturity on %s", answer.QuestionCode),
			Description: fmt.Sprintf("Approved answer to %q scored %.1f, below the %.1f threshold.",
				answer.QuestionText, answer.Score, threshold),
			Severity:     severityForScore(answer.Score),
			AssessmentID: &assessmentRef,
			ResponseID:   &responseID,
			ControlID:    &controlID,
		})
		if err != nil {
			return nil, err
		}
		s.metrics.IncGenerated()
		generated = append(generated, finding)
	}
	return generated, nil
}
