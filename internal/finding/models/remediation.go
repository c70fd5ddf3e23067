package models

import (
	"strings"
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// ActionStatus is the remediation action lifecycle.
type ActionStatus string

const (
	ActionPlanned    ActionStatus = "PLANNED"
	ActionInProgress ActionStatus = "IN_PROGRESS"
	ActionCompleted  ActionStatus = "COMPLETED"
	ActionCancelled  ActionStatus = "CANCELLED"
)

var actionTransitions = map[ActionStatus][]ActionStatus{
	ActionPlanned:    {ActionInProgress, ActionCancelled},
	ActionInProgress: {ActionCompleted, ActionCancelled},
	ActionCompleted:  {},
	ActionCancelled:  {},
}

func (s ActionStatus) Valid() bool {
	_, ok := actionTransitions[s]
	return ok
}

func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	for _, allowed := range actionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RemediationAction is one planned fix for a finding.
type RemediationAction struct {
	ID            id.RemediationID `json:"id"`
	TenantID      id.TenantID      `json:"tenant_id"`
	FindingID     id.FindingID     `json:"finding_id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Status        ActionStatus     `json:"status"`
	OwnerID       *id.UserID       `json:"owner_id,omitempty"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	EstimatedCost *float64         `json:"estimated_cost,omitempty"`
	ActualCost    *float64         `json:"actual_cost,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func NewRemediationAction(actionID id.RemediationID, tenantID id.TenantID, findingID id.FindingID,
	title, description string, now time.Time) (*RemediationAction, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "action title cannot be empty")
	}
	return &RemediationAction{
		ID:          actionID,
		TenantID:    tenantID,
		FindingID:   findingID,
		Title:       title,
		Description: description,
		Status:      ActionPlanned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition moves the action along the table, stamping completion.
func (a *RemediationAction) Transition(next ActionStatus, now time.Time) error {
	if !a.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeConflict, "cannot transition action from %s to %s", a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = now
	if next == ActionCompleted {
		t := now
		a.CompletedAt = &t
	}
	return nil
}

// TaskStatus is the checklist state of one remediation task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

// RemediationTask is one checklist item under an action. Tasks move freely
// between states.
type RemediationTask struct {
	ID         id.TaskID        `json:"id"`
	ActionID   id.RemediationID `json:"action_id"`
	Title      string           `json:"title"`
	Status     TaskStatus       `json:"status"`
	AssigneeID *id.UserID       `json:"assignee_id,omitempty"`
	DueDate    *time.Time       `json:"due_date,omitempty"`
	DoneAt     *time.Time       `json:"done_at,omitempty"`
	SortOrder  int              `json:"sort_order"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
