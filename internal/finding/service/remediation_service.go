package service

import (
	"context"
	"time"

	"conforma/internal/finding/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/audit"
	"conforma/pkg/requestcontext"
)

type CreateActionInput struct {
	Title         string
	Description   string
	OwnerID       *id.UserID
	DueDate       *time.Time
	EstimatedCost *float64
}

// CreateAction plans a remediation action under a finding. Closed findings
// cannot take new actions.
func (s *Service) CreateAction(ctx context.Context, tenantID id.TenantID, findingID id.FindingID, in CreateActionInput) (*models.RemediationAction, error) {
	finding, err := s.findings.FindByID(ctx, tenantID, findingID)
	if err != nil {
		return nil, notFound(err, "finding")
	}
	if finding.Status == models.FindingClosed {
		return nil, dErrors.New(dErrors.CodeConflict, "finding is closed")
	}
	now := requestcontext.Now(ctx)
	action, err := models.NewRemediationAction(id.NewRemediationID(), tenantID, findingID,
		in.Title, in.Description, now)
	if err != nil {
		return nil, err
	}
	action.OwnerID = in.OwnerID
	action.DueDate = in.DueDate
	action.EstimatedCost = in.EstimatedCost

	if err := s.actions.Create(ctx, action); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create remediation action")
	}
	if err := s.recordForTenant(ctx, tenantID, audit.EventRemediationCreated, "remediation_action",
		action.ID.String(), finding.Reference); err != nil {
		return nil, err
	}
	s.metrics.IncActionsCreated()
	return action, nil
}

func (s *Service) GetAction(ctx context.Context, tenantID id.TenantID, actionID id.RemediationID) (*models.RemediationAction, error) {
	action, err := s.actions.FindByID(ctx, tenantID, actionID)
	if err != nil {
		return nil, notFound(err, "remediation action")
	}
	return action, nil
}

// ListTenantActions returns every remediation action of the tenant.
func (s *Service) ListTenantActions(ctx context.Context, tenantID id.TenantID) ([]*models.RemediationAction, error) {
	actions, err := s.actions.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list remediation actions")
	}
	return actions, nil
}

// ListActions returns the actions planned under a finding.
func (s *Service) ListActions(ctx context.Context, tenantID id.TenantID, findingID id.FindingID) ([]*models.RemediationAction, error) {
	if _, err := s.findings.FindByID(ctx, tenantID, findingID); err != nil {
		return nil, notFound(err, "finding")
	}
	actions, err := s.actions.ListByFinding(ctx, findingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list remediation actions")
	}
	return actions, nil
}

type UpdateActionInput struct {
	Title         *string
	Description   *string
	OwnerID       *id.UserID
	DueDate       *time.Time
	ClearDue      bool
	EstimatedCost *float64
	ActualCost    *float64
}

// UpdateAction applies partial updates. Completed and cancelled actions are
// immutable except for the actual cost, which trails completion.
func (s *Service) UpdateAction(ctx context.Context, tenantID id.TenantID, actionID id.RemediationID, in UpdateActionInput) (*models.RemediationAction, error) {
	action, err := s.actions.FindByID(ctx, tenantID, actionID)
	if err != nil {
		return nil, notFound(err, "remediation action")
	}
	terminal := action.Status == models.ActionCompleted || action.Status == models.ActionCancelled
	if terminal && (in.Title != nil || in.Description != nil || in.OwnerID != nil ||
		in.DueDate != nil || in.ClearDue || in.EstimatedCost != nil) {
		return nil, dErrors.Newf(dErrors.CodeConflict, "action is %s", action.Status)
	}
	if in.Title != nil {
		if *in.Title == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "action title cannot be empty")
		}
		action.Title = *in.Title
	}
	if in.Description != nil {
		action.Description = *in.Description
	}
	if in.OwnerID != nil {
		action.OwnerID = in.OwnerID
	}
	if in.ClearDue {
		action.DueDate = nil
	} else if in.DueDate != nil {
		action.DueDate = in.DueDate
	}
	if in.EstimatedCost != nil {
		action.EstimatedCost = in.EstimatedCost
	}
	if in.ActualCost != nil {
		action.ActualCost = in.ActualCost
	}
	action.UpdatedAt = requestcontext.Now(ctx)

	if err := s.actions.Update(ctx, action); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update remediation action")
	}
	return action, nil
}

// TransitionAction moves an action along the lifecycle table.
func (s *Service) TransitionAction(ctx context.Context, tenantID id.TenantID, actionID id.RemediationID, next models.ActionStatus) (*models.RemediationAction, error) {
	if !next.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown action status %q", next)
	}
	action, err := s.actions.FindByID(ctx, tenantID, actionID)
	if err != nil {
		return nil, notFound(err, "remediation action")
	}
	if err := action.Transition(next, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.actions.Update(ctx, action); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update remediation action")
	}
	return action, nil
}

type CreateTaskInput struct {
	Title      string
	AssigneeID *id.UserID
	DueDate    *time.Time
	SortOrder  int
}

// CreateTask adds a checklist item under an action. The action must still be
// open.
func (s *Service) CreateTask(ctx context.Context, tenantID id.TenantID, actionID id.RemediationID, in CreateTaskInput) (*models.RemediationTask, error) {
	action, err := s.actions.FindByID(ctx, tenantID, actionID)
	if err != nil {
		return nil, notFound(err, "remediation action")
	}
	if action.Status == models.ActionCompleted || action.Status == models.ActionCancelled {
		return nil, dErrors.Newf(dErrors.CodeConflict, "action is %s", action.Status)
	}
	if in.Title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "task title cannot be empty")
	}
	now := requestcontext.Now(ctx)
	task := &models.RemediationTask{
		ID:         id.NewTaskID(),
		ActionID:   action.ID,
		Title:      in.Title,
		Status:     models.TaskTodo,
		AssigneeID: in.AssigneeID,
		DueDate:    in.DueDate,
		SortOrder:  in.SortOrder,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create remediation task")
	}
	return task, nil
}

func (s *Service) ListTasks(ctx context.Context, tenantID id.TenantID, actionID id.RemediationID) ([]*models.RemediationTask, error) {
	if _, err := s.actions.FindByID(ctx, tenantID, actionID); err != nil {
		return nil, notFound(err, "remediation action")
	}
	tasks, err := s.tasks.ListByAction(ctx, actionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list remediation tasks")
	}
	return tasks, nil
}

type UpdateTaskInput struct {
	Title      *string
	Status     *models.TaskStatus
	AssigneeID *id.UserID
	DueDate    *time.Time
	ClearDue   bool
	SortOrder  *int
}

// UpdateTask applies partial updates. Moving a task to DONE stamps the
// completion time; moving it back clears it.
func (s *Service) UpdateTask(ctx context.Context, tenantID id.TenantID, taskID id.TaskID, in UpdateTaskInput) (*models.RemediationTask, error) {
	task, err := s.loadTask(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	if in.Title != nil {
		if *in.Title == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "task title cannot be empty")
		}
		task.Title = *in.Title
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown task status %q", *in.Status)
		}
		task.Status = *in.Status
		if task.Status == models.TaskDone {
			t := now
			task.DoneAt = &t
		} else {
			task.DoneAt = nil
		}
	}
	if in.AssigneeID != nil {
		task.AssigneeID = in.AssigneeID
	}
	if in.ClearDue {
		task.DueDate = nil
	} else if in.DueDate != nil {
		task.DueDate = in.DueDate
	}
	if in.SortOrder != nil {
		task.SortOrder = *in.SortOrder
	}
	task.UpdatedAt = now

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update remediation task")
	}
	return task, nil
}

func (s *Service) DeleteTask(ctx context.Context, tenantID id.TenantID, taskID id.TaskID) error {
	if _, err := s.loadTask(ctx, tenantID, taskID); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete remediation task")
	}
	return nil
}

// loadTask resolves a task and proves tenancy through its owning action.
func (s *Service) loadTask(ctx context.Context, tenantID id.TenantID, taskID id.TaskID) (*models.RemediationTask, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, notFound(err, "remediation task")
	}
	if _, err := s.actions.FindByID(ctx, tenantID, task.ActionID); err != nil {
		return nil, notFound(err, "remediation task")
	}
	return task, nil
}
