package service

import (
	"context"
	"errors"

	"conforma/internal/assessment/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

type CreateAssignmentInput struct {
	QuestionID *id.AssessmentQuestionID
	AssigneeID id.UserID
}

// CreateAssignment hands a materialized question, or the whole assessment
// when no question is given, to a tenant user.
func (s *Service) CreateAssignment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID, in CreateAssignmentInput) (*models.Assignment, error) {
	assessment, err := s.assessments.FindByID(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, notFound(err, "assessment")
	}
	if assessment.Status == models.StatusArchived || assessment.Status == models.StatusCompleted {
		return nil, dErrors.New(dErrors.CodeConflict, "assessment is closed")
	}
	if err := s.users.UserExists(ctx, tenantID, in.AssigneeID); err != nil {
		return nil, err
	}
	if in.QuestionID != nil {
		if _, err := s.questions.FindByID(ctx, assessmentID, *in.QuestionID); err != nil {
			return nil, notFound(err, "question")
		}
	}

	now := requestcontext.Now(ctx)
	assignment := &models.Assignment{
		ID:           id.NewAssignmentID(),
		TenantID:     tenantID,
		AssessmentID: assessmentID,
		QuestionID:   in.QuestionID,
		AssigneeID:   in.AssigneeID,
		AssignedBy:   requestcontext.UserID(ctx),
		Status:       models.AssignmentPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.assignments.CreateIfAbsent(ctx, assignment); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "assignment already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create assignment")
	}
	if err := s.recordForTenant(ctx, tenantID, audit.EventAssignmentCreated, "assignment",
		assignment.ID.String(), in.AssigneeID.String()); err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *Service) ListAssignments(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*models.Assignment, error) {
	if _, err := s.assessments.FindByID(ctx, tenantID, assessmentID); err != nil {
		return nil, notFound(err, "assessment")
	}
	assignments, err := s.assignments.ListByAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list assignments")
	}
	return assignments, nil
}

// UpdateAssignmentStatus moves one assignment through pending, in progress,
// and completed. Any direction is legal; assignees reopen their own work.
func (s *Service) UpdateAssignmentStatus(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID, status models.AssignmentStatus) (*models.Assignment, error) {
	if !status.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown assignment status %q", status)
	}
	assignment, err := s.assignments.FindByID(ctx, tenantID, assignmentID)
	if err != nil {
		return nil, notFound(err, "assignment")
	}
	assignment.Status = status
	assignment.UpdatedAt = requestcontext.Now(ctx)
	if err := s.assignments.Update(ctx, assignment); err != nil {
		return nil, notFound(err, "assignment")
	}
	return assignment, nil
}

func (s *Service) DeleteAssignment(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) error {
	if err := s.assignments.Delete(ctx, tenantID, assignmentID); err != nil {
		return notFound(err, "assignment")
	}
	return nil
}
