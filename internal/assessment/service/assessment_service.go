package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conforma/internal/assessment/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

type ScopeInput struct {
	ControlID       id.ControlID
	IncludeChildren bool
}

type CreateAssessmentInput struct {
	Code           string
	Name           string
	VersionID      id.VersionID
	OrganizationID id.OrgID
	BusinessUnitID *id.BusinessUnitID
	OwnerID        id.UserID
	StartDate      *time.Time
	DueDate        *time.Time
	Scopes         []ScopeInput
}

// CreateAssessment creates a campaign and materializes its question set in
// the same transaction. An empty scope list covers every active control of
// the version.
func (s *Service) CreateAssessment(ctx context.Context, tenantID id.TenantID, in CreateAssessmentInput) (*models.Assessment, error) {
	if err := s.catalog.VersionUsable(ctx, tenantID, in.VersionID); err != nil {
		return nil, err
	}
	if err := s.users.UserExists(ctx, tenantID, in.OwnerID); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	assessment, err := models.NewAssessment(id.NewAssessmentID(), tenantID, in.Code, in.Name,
		in.VersionID, in.OrganizationID, in.BusinessUnitID, in.OwnerID,
		requestcontext.UserID(ctx), in.StartDate, in.DueDate, now)
	if err != nil {
		return nil, err
	}

	questions, scopes, err := s.materialize(ctx, tenantID, assessment, in.Scopes, now)
	if err != nil {
		return nil, err
	}

	err = s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.assessments.CreateIfCodeAvailable(txCtx, assessment); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "assessment code already in use")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create assessment")
		}
		for _, scope := range scopes {
			if err := s.scopes.Create(txCtx, scope); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store scope")
			}
		}
		for _, question := range questions {
			if err := s.questions.Create(txCtx, question); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to materialize question")
			}
		}
		if err := s.recordForTenant(txCtx, tenantID, audit.EventAssessmentCreated, "assessment",
			assessment.ID.String(), assessment.Code); err != nil {
			return err
		}
		return s.recordForTenant(txCtx, tenantID, audit.EventQuestionsMaterialized, "assessment",
			assessment.ID.String(), fmt.Sprintf("%d questions materialized", len(questions)))
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncAssessmentsCreated()
		s.metrics.AddQuestionsMaterialized(len(questions))
	}
	return assessment, nil
}

func (s *Service) GetAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*models.Assessment, error) {
	assessment, err := s.assessments.FindByID(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, notFound(err, "assessment")
	}
	return assessment, nil
}

func (s *Service) ListAssessments(ctx context.Context, tenantID id.TenantID) ([]*models.Assessment, error) {
	assessments, err := s.assessments.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list assessments")
	}
	return assessments, nil
}

type UpdateAssessmentInput struct {
	Name      *string
	OwnerID   *id.UserID
	StartDate *time.Time
	DueDate   *time.Time
}

// UpdateAssessment applies partial updates on a draft or running campaign.
// The code, version, and scope are fixed at creation.
func (s *Service) UpdateAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID, in UpdateAssessmentInput) (*models.Assessment, error) {
	assessment, err := s.assessments.FindByID(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, notFound(err, "assessment")
	}
	if assessment.Status == models.StatusArchived || assessment.Status == models.StatusCompleted {
		return nil, dErrors.New(dErrors.CodeConflict, "assessment is closed")
	}
	if in.Name != nil {
		if *in.Name == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "assessment name cannot be empty")
		}
		assessment.Name = *in.Name
	}
	if in.OwnerID != nil {
		if err := s.users.UserExists(ctx, tenantID, *in.OwnerID); err != nil {
			return nil, err
		}
		assessment.OwnerID = *in.OwnerID
	}
	if in.StartDate != nil {
		assessment.StartDate = in.StartDate
	}
	if in.DueDate != nil {
		assessment.DueDate = in.DueDate
	}
	if assessment.StartDate != nil && assessment.DueDate != nil && assessment.DueDate.Before(*assessment.StartDate) {
		return nil, dErrors.New(dErrors.CodeValidation, "due date cannot precede start date")
	}
	assessment.UpdatedAt = requestcontext.Now(ctx)
	if err := s.assessments.Update(ctx, assessment); err != nil {
		return nil, notFound(err, "assessment")
	}
	return assessment, nil
}

// TransitionAssessment moves a campaign along the status table. The row is
// held across the check so concurrent transitions serialize.
func (s *Service) TransitionAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID, next models.AssessmentStatus) (*models.Assessment, error) {
	now := requestcontext.Now(ctx)
	assessment, err := s.assessments.Execute(ctx, tenantID, assessmentID,
		func(a *models.Assessment) error {
			if !next.Valid() {
				return dErrors.Newf(dErrors.CodeValidation, "unknown assessment status %q", next)
			}
			if !a.Status.CanTransitionTo(next) {
				return dErrors.Newf(dErrors.CodeConflict, "cannot transition assessment from %s to %s", a.Status, next)
			}
			return nil
		},
		func(a *models.Assessment) {
			_ = a.Transition(next, now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "assessment not found")
		}
		return nil, err
	}
	if err := s.recordForTenant(ctx, tenantID, audit.EventAssessmentTransitioned, "assessment",
		assessment.ID.String(), string(next)); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncTransitions(string(next))
	}
	return assessment, nil
}

func (s *Service) ListScopes(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*models.Scope, error) {
	if _, err := s.assessments.FindByID(ctx, tenantID, assessmentID); err != nil {
		return nil, notFound(err, "assessment")
	}
	scopes, err := s.scopes.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list scopes")
	}
	return scopes, nil
}

func (s *Service) ListQuestions(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*models.Question, error) {
	if _, err := s.assessments.FindByID(ctx, tenantID, assessmentID); err != nil {
		return nil, notFound(err, "assessment")
	}
	questions, err := s.questions.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list questions")
	}
	return questions, nil
}

// GetQuestion resolves a materialized question after confirming the tenant
// owns the assessment. The response module reads snapshots through this.
func (s *Service) GetQuestion(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID, questionID id.AssessmentQuestionID) (*models.Question, error) {
	if _, err := s.assessments.FindByID(ctx, tenantID, assessmentID); err != nil {
		return nil, notFound(err, "assessment")
	}
	question, err := s.questions.FindByID(ctx, assessmentID, questionID)
	if err != nil {
		return nil, notFound(err, "question")
	}
	return question, nil
}

// Progress computes completion counts from response statuses. Draft rows do
// not count as answered.
func (s *Service) Progress(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*models.Progress, error) {
	if _, err := s.assessments.FindByID(ctx, tenantID, assessmentID); err != nil {
		return nil, notFound(err, "assessment")
	}
	questions, err := s.questions.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list questions")
	}

	statuses := map[id.AssessmentQuestionID]string{}
	if s.responses != nil {
		statuses, err = s.responses.QuestionStatuses(ctx, tenantID, assessmentID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load response statuses")
		}
	}

	progress := &models.Progress{TotalQuestions: len(questions)}
	for _, question := range questions {
		status, ok := statuses[question.ID]
		answered := ok && status != "draft" && status != "rejected"
		if answered {
			progress.AnsweredQuestions++
		}
		if status == "approved" {
			progress.ApprovedQuestions++
		}
		if question.IsMandatory && !answered {
			progress.MandatoryRemaining++
		}
	}
	if progress.TotalQuestions > 0 {
		progress.CompletionPercent = float64(progress.AnsweredQuestions) / float64(progress.TotalQuestions) * 100
	}
	return progress, nil
}
