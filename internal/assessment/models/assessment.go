// Package models holds the assessment domain types.
package models

import (
	"strings"
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// AssessmentStatus is the campaign lifecycle.
type AssessmentStatus string

const (
	StatusDraft       AssessmentStatus = "DRAFT"
	StatusInProgress  AssessmentStatus = "IN_PROGRESS"
	StatusUnderReview AssessmentStatus = "UNDER_REVIEW"
	StatusCompleted   AssessmentStatus = "COMPLETED"
	StatusArchived    AssessmentStatus = "ARCHIVED"
)

// statusTransitions is the fixed transition table. Archived is terminal.
var statusTransitions = map[AssessmentStatus][]AssessmentStatus{
	StatusDraft:       {StatusInProgress, StatusArchived},
	StatusInProgress:  {StatusUnderReview, StatusArchived},
	StatusUnderReview: {StatusInProgress, StatusCompleted},
	StatusCompleted:   {StatusArchived},
	StatusArchived:    {},
}

func (s AssessmentStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

func (s AssessmentStatus) CanTransitionTo(next AssessmentStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Assessment is one compliance campaign over a standard version.
type Assessment struct {
	ID             id.AssessmentID     `json:"id"`
	TenantID       id.TenantID         `json:"tenant_id"`
	Code           string              `json:"code"`
	Name           string              `json:"name"`
	VersionID      id.VersionID        `json:"version_id"`
	OrganizationID id.OrgID            `json:"organization_id"`
	BusinessUnitID *id.BusinessUnitID  `json:"business_unit_id,omitempty"`
	OwnerID        id.UserID           `json:"owner_id"`
	Status         AssessmentStatus    `json:"status"`
	StartDate      *time.Time          `json:"start_date,omitempty"`
	DueDate        *time.Time          `json:"due_date,omitempty"`
	CreatedBy      id.UserID           `json:"created_by"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func NewAssessment(assessmentID id.AssessmentID, tenantID id.TenantID, code, name string,
	versionID id.VersionID, orgID id.OrgID, businessUnitID *id.BusinessUnitID,
	ownerID, createdBy id.UserID, startDate, dueDate *time.Time, now time.Time) (*Assessment, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "assessment code cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "assessment name cannot be empty")
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "assessment owner is required")
	}
	if startDate != nil && dueDate != nil && dueDate.Before(*startDate) {
		return nil, dErrors.New(dErrors.CodeValidation, "due date cannot precede start date")
	}
	return &Assessment{
		ID:             assessmentID,
		TenantID:       tenantID,
		Code:           code,
		Name:           name,
		VersionID:      versionID,
		OrganizationID: orgID,
		BusinessUnitID: businessUnitID,
		OwnerID:        ownerID,
		Status:         StatusDraft,
		StartDate:      startDate,
		DueDate:        dueDate,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Transition moves the assessment along the status table.
func (a *Assessment) Transition(next AssessmentStatus, now time.Time) error {
	if !next.Valid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown assessment status %q", next)
	}
	if !a.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeConflict, "cannot transition assessment from %s to %s", a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

// IsOpen reports whether responses may still be worked on.
func (a *Assessment) IsOpen() bool {
	return a.Status == StatusInProgress || a.Status == StatusUnderReview
}

// Scope pins one control subtree into an assessment.
type Scope struct {
	AssessmentID    id.AssessmentID `json:"assessment_id"`
	ControlID       id.ControlID    `json:"control_id"`
	IncludeChildren bool            `json:"include_children"`
}

// Question is the materialized snapshot of one bank question for one
// control. It never changes after creation, whatever happens to the bank.
type Question struct {
	ID           id.AssessmentQuestionID `json:"id"`
	AssessmentID id.AssessmentID         `json:"assessment_id"`
	ControlID    id.ControlID            `json:"control_id"`
	QuestionID   id.QuestionID           `json:"question_id"`
	QuestionCode string                  `json:"question_code"`
	QuestionText string                  `json:"question_text"`
	QuestionType string                  `json:"question_type"`
	ScaleType    string                  `json:"scale_type"`
	Guidance     string                  `json:"guidance"`
	IsMandatory  bool                    `json:"is_mandatory"`
	SortOrder    int                     `json:"sort_order"`
	CreatedAt    time.Time               `json:"created_at"`
}

// AssignmentStatus tracks one assignee's progress.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "PENDING"
	AssignmentInProgress AssignmentStatus = "IN_PROGRESS"
	AssignmentCompleted  AssignmentStatus = "COMPLETED"
)

func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentPending, AssignmentInProgress, AssignmentCompleted:
		return true
	}
	return false
}

// Assignment hands a question (or the whole assessment when QuestionID is
// nil) to a user.
type Assignment struct {
	ID           id.AssignmentID          `json:"id"`
	TenantID     id.TenantID              `json:"tenant_id"`
	AssessmentID id.AssessmentID          `json:"assessment_id"`
	QuestionID   *id.AssessmentQuestionID `json:"assessment_question_id,omitempty"`
	AssigneeID   id.UserID                `json:"assignee_id"`
	AssignedBy   id.UserID                `json:"assigned_by"`
	Status       AssignmentStatus         `json:"status"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// Progress summarizes answer completion for an assessment.
type Progress struct {
	TotalQuestions     int     `json:"total_questions"`
	AnsweredQuestions  int     `json:"answered_questions"`
	ApprovedQuestions  int     `json:"approved_questions"`
	CompletionPercent  float64 `json:"completion_percent"`
	MandatoryRemaining int     `json:"mandatory_remaining"`
}
