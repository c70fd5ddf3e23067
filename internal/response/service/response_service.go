package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"conforma/internal/response/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// UpsertDraft creates or rewrites the draft answer for one materialized
// question. Rewriting is only legal while the response is editable.
func (s *Service) UpsertDraft(ctx context.Context, tenantID id.TenantID,
	assessmentID id.AssessmentID, questionID id.AssessmentQuestionID, answer json.RawMessage) (*models.Response, error) {
	snapshot, err := s.assessments.QuestionSnapshot(ctx, tenantID, assessmentID, questionID)
	if err != nil {
		return nil, err
	}
	if err := s.assessments.AssessmentOpen(ctx, tenantID, assessmentID); err != nil {
		return nil, err
	}
	if len(answer) == 0 {
		answer = json.RawMessage(`{}`)
	}
	if !json.Valid(answer) {
		return nil, dErrors.New(dErrors.CodeValidation, "answer is not valid JSON")
	}

	now := requestcontext.Now(ctx)
	existing, err := s.responses.FindByQuestion(ctx, tenantID, questionID)
	switch {
	case err == nil:
		updated, err := s.responses.Execute(ctx, tenantID, existing.ID,
			func(r *models.Response) error {
				if !r.Status.Editable() {
					return dErrors.Newf(dErrors.CodeConflict, "response is %s and cannot be edited", r.Status)
				}
				return nil
			},
			func(r *models.Response) {
				r.Answer = answer
				r.UpdatedAt = now
			},
		)
		if err != nil {
			return nil, err
		}
		return updated, nil
	case errors.Is(err, sentinel.ErrNotFound):
		response := &models.Response{
			ID:           id.NewResponseID(),
			TenantID:     tenantID,
			AssessmentID: snapshot.AssessmentID,
			QuestionID:   questionID,
			Status:       models.StatusDraft,
			Answer:       answer,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.responses.CreateIfAbsent(ctx, response); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return nil, dErrors.New(dErrors.CodeConflict, "question already has a response")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create response")
		}
		return response, nil
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load response")
	}
}

func (s *Service) GetResponse(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) (*models.Response, error) {
	response, err := s.responses.FindByID(ctx, tenantID, responseID)
	if err != nil {
		return nil, notFound(err, "response")
	}
	return response, nil
}

func (s *Service) ListResponses(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*models.Response, error) {
	responses, err := s.responses.ListByAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list responses")
	}
	return responses, nil
}

// Submit moves a draft into the review queue and freezes the answer into a
// version row. The maturity score is derived from the question's scale here,
// not at review time.
func (s *Service) Submit(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) (*models.Response, error) {
	existing, err := s.responses.FindByID(ctx, tenantID, responseID)
	if err != nil {
		return nil, notFound(err, "response")
	}
	snapshot, err := s.assessments.QuestionSnapshot(ctx, tenantID, existing.AssessmentID, existing.QuestionID)
	if err != nil {
		return nil, err
	}
	score, err := s.scoreAnswer(ctx, snapshot, existing.Answer)
	if err != nil {
		return nil, err
	}

	userID := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)
	response, err := s.transition(ctx, tenantID, responseID, models.StatusSubmitted, func(r *models.Response) {
		r.MaturityScore = score
		r.SubmittedBy = &userID
		r.SubmittedAt = &now
	})
	if err != nil {
		return nil, err
	}
	if err := s.recordForTenant(ctx, tenantID, audit.EventResponseSubmitted, "response",
		response.ID.String(), string(response.Status)); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncSubmitted()
	}
	return response, nil
}

// StartReview claims a submitted response for review.
func (s *Service) StartReview(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) (*models.Response, error) {
	return s.transition(ctx, tenantID, responseID, models.StatusUnderReview, nil)
}

// Review records the verdict and moves the response to its final state.
func (s *Service) Review(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID,
	decision models.ReviewDecision, comment string) (*models.Response, error) {
	var next models.ResponseStatus
	switch decision {
	case models.DecisionApproved:
		next = models.StatusApproved
	case models.DecisionRejected:
		next = models.StatusRejected
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown review decision %q", decision)
	}

	reviewerID := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	var response *models.Response
	err := s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		response, err = s.transitionInTx(txCtx, tenantID, responseID, next, func(r *models.Response) {
			r.ReviewedBy = &reviewerID
			r.ReviewedAt = &now
		})
		if err != nil {
			return err
		}
		return s.reviews.Create(txCtx, &models.Review{
			ID:         uuid.New(),
			ResponseID: responseID,
			ReviewerID: reviewerID,
			Decision:   decision,
			Comment:    comment,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	event := audit.EventResponseApproved
	if next == models.StatusRejected {
		event = audit.EventResponseRejected
	}
	if err := s.recordForTenant(ctx, tenantID, event, "response", response.ID.String(), comment); err != nil {
		return nil, err
	}
	return response, nil
}

// Reopen turns a rejected response back into an editable draft.
func (s *Service) Reopen(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) (*models.Response, error) {
	return s.transition(ctx, tenantID, responseID, models.StatusDraft, nil)
}

// transition applies one legal status move and appends the version row in
// the same transaction.
func (s *Service) transition(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID,
	next models.ResponseStatus, extra func(*models.Response)) (*models.Response, error) {
	var response *models.Response
	err := s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		response, err = s.transitionInTx(txCtx, tenantID, responseID, next, extra)
		return err
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// transitionInTx assumes the caller already owns the transaction.
func (s *Service) transitionInTx(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID,
	next models.ResponseStatus, extra func(*models.Response)) (*models.Response, error) {
	now := requestcontext.Now(ctx)
	userID := requestcontext.UserID(ctx)

	response, err := s.responses.Execute(ctx, tenantID, responseID,
		func(r *models.Response) error {
			if !r.Status.CanTransitionTo(next) {
				return dErrors.Newf(dErrors.CodeConflict, "cannot transition response from %s to %s", r.Status, next)
			}
			return nil
		},
		func(r *models.Response) {
			r.Status = next
			r.CurrentVersion++
			r.UpdatedAt = now
			if extra != nil {
				extra(r)
			}
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "response not found")
		}
		return nil, err
	}
	if err := s.versions.Create(ctx, &models.Version{
		ID:            uuid.New(),
		ResponseID:    response.ID,
		Version:       response.CurrentVersion,
		Answer:        response.Answer,
		MaturityScore: response.MaturityScore,
		Status:        response.Status,
		CreatedBy:     userID,
		CreatedAt:     now,
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write response version")
	}
	return response, nil
}

func (s *Service) ListVersions(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) ([]*models.Version, error) {
	if _, err := s.responses.FindByID(ctx, tenantID, responseID); err != nil {
		return nil, notFound(err, "response")
	}
	versions, err := s.versions.ListByResponse(ctx, responseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list versions")
	}
	return versions, nil
}

func (s *Service) ListReviews(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) ([]*models.Review, error) {
	if _, err := s.responses.FindByID(ctx, tenantID, responseID); err != nil {
		return nil, notFound(err, "response")
	}
	reviews, err := s.reviews.ListByResponse(ctx, responseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list reviews")
	}
	return reviews, nil
}

// QuestionStatuses reports the response status per materialized question.
// The assessment module reads completion through this.
func (s *Service) QuestionStatuses(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (map[id.AssessmentQuestionID]string, error) {
	responses, err := s.responses.ListByAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list responses")
	}
	statuses := make(map[id.AssessmentQuestionID]string, len(responses))
	for _, response := range responses {
		statuses[response.QuestionID] = string(response.Status)
	}
	return statuses, nil
}
