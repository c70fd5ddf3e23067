// Package adapters bridges the finding generator to the response and
// assessment modules.
package adapters

import (
	"context"

	asmodels "conforma/internal/assessment/models"
	"conforma/internal/finding/service"
	respmodels "conforma/internal/response/models"
	id "conforma/pkg/domain"
)

type responseLister interface {
	ListResponses(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*respmodels.Response, error)
}

type questionLister interface {
	ListQuestions(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*asmodels.Question, error)
}

// AnswerSource joins approved responses with their question snapshots so the
// generator sees scored answers with control context.
type AnswerSource struct {
	responses responseLister
	questions questionLister
}

func NewAnswerSource(responses responseLister, questions questionLister) *AnswerSource {
	return &AnswerSource{responses: responses, questions: questions}
}

func (a *AnswerSource) ApprovedAnswers(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]service.ScoredAnswer, error) {
	questions, err := a.questions.ListQuestions(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, err
	}
	byID := make(map[id.AssessmentQuestionID]*asmodels.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	responses, err := a.responses.ListResponses(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, err
	}
	var out []service.ScoredAnswer
	for _, r := range responses {
		if r.Status != respmodels.StatusApproved || r.MaturityScore == nil {
			continue
		}
		question, ok := byID[r.QuestionID]
		if !ok {
			continue
		}
		out = append(out, service.ScoredAnswer{
			ResponseID:   r.ID,
			AssessmentID: r.AssessmentID,
			ControlID:    question.ControlID,
			QuestionCode: question.QuestionCode,
			QuestionText: question.QuestionText,
			Score:        *r.MaturityScore,
		})
	}
	return out, nil
}
