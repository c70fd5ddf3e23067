// Package models holds the response workflow domain types.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "conforma/pkg/domain"
)

// ResponseStatus is the review workflow state of one answer.
type ResponseStatus string

const (
	StatusDraft       ResponseStatus = "draft"
	StatusSubmitted   ResponseStatus = "submitted"
	StatusUnderReview ResponseStatus = "under_review"
	StatusApproved    ResponseStatus = "approved"
	StatusRejected    ResponseStatus = "rejected"
)

// statusTransitions is the fixed transition table. Approved is terminal;
// a rejected response reopens as a draft for revision.
var statusTransitions = map[ResponseStatus][]ResponseStatus{
	StatusDraft:       {StatusSubmitted},
	StatusSubmitted:   {StatusUnderReview},
	StatusUnderReview: {StatusApproved, StatusRejected},
	StatusApproved:    {},
	StatusRejected:    {StatusDraft},
}

func (s ResponseStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

func (s ResponseStatus) CanTransitionTo(next ResponseStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Editable reports whether the answer payload may still change.
func (s ResponseStatus) Editable() bool {
	return s == StatusDraft
}

// Response is the single answer to one materialized assessment question.
type Response struct {
	ID             id.ResponseID           `json:"id"`
	TenantID       id.TenantID             `json:"tenant_id"`
	AssessmentID   id.AssessmentID         `json:"assessment_id"`
	QuestionID     id.AssessmentQuestionID `json:"assessment_question_id"`
	Status         ResponseStatus          `json:"status"`
	CurrentVersion int                     `json:"current_version"`
	Answer         json.RawMessage         `json:"answer"`
	MaturityScore  *float64                `json:"maturity_score,omitempty"`
	SubmittedBy    *id.UserID              `json:"submitted_by,omitempty"`
	SubmittedAt    *time.Time              `json:"submitted_at,omitempty"`
	ReviewedBy     *id.UserID              `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time              `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// Version is one immutable history row. A new version is written on every
// transition, numbered from 1 upward.
type Version struct {
	ID            uuid.UUID       `json:"id"`
	ResponseID    id.ResponseID   `json:"response_id"`
	Version       int             `json:"version"`
	Answer        json.RawMessage `json:"answer"`
	MaturityScore *float64        `json:"maturity_score,omitempty"`
	Status        ResponseStatus  `json:"status"`
	CreatedBy     id.UserID       `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ReviewDecision is the outcome a reviewer records.
type ReviewDecision string

const (
	DecisionApproved ReviewDecision = "approved"
	DecisionRejected ReviewDecision = "rejected"
)

// Review is one reviewer verdict on a response.
type Review struct {
	ID         uuid.UUID      `json:"id"`
	ResponseID id.ResponseID  `json:"response_id"`
	ReviewerID id.UserID      `json:"reviewer_id"`
	Decision   ReviewDecision `json:"decision"`
	Comment    string         `json:"comment"`
	CreatedAt  time.Time      `json:"created_at"`
}
