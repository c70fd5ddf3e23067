// Package handler wires the finding and remediation HTTP routes.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"conforma/internal/finding/models"
	"conforma/internal/finding/service"
	"conforma/internal/transport/http/shared"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/middleware/auth"
	"conforma/pkg/requestcontext"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the tenant-scoped finding routes.
func (h *Handler) Register(r chi.Router) {
	manage := auth.RequirePermission("finding.manage", h.logger)
	remediate := auth.RequirePermission("remediation.manage", h.logger)

	r.With(manage).Post("/findings", h.handleCreate)
	r.Get("/findings", h.handleList)
	r.Get("/findings/{findingID}", h.handleGet)
	r.With(manage).Patch("/findings/{findingID}", h.handleUpdate)
	r.With(manage).Post("/findings/{findingID}/transition", h.handleTransition)
	r.With(manage).Post("/assessments/{assessmentID}/findings/generate", h.handleGenerate)

	r.With(remediate).Post("/findings/{findingID}/actions", h.handleCreateAction)
	r.Get("/findings/{findingID}/actions", h.handleListActions)
	r.Get("/actions/{actionID}", h.handleGetAction)
	r.With(remediate).Patch("/actions/{actionID}", h.handleUpdateAction)
	r.With(remediate).Post("/actions/{actionID}/transition", h.handleTransitionAction)

	r.With(remediate).Post("/actions/{actionID}/tasks", h.handleCreateTask)
	r.Get("/actions/{actionID}/tasks", h.handleListTasks)
	r.Patch("/tasks/{taskID}", h.handleUpdateTask)
	r.With(remediate).Delete("/tasks/{taskID}", h.handleDeleteTask)
}

type createFindingRequest struct {
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Severity     models.Severity  `json:"severity"`
	AssessmentID *id.AssessmentID `json:"assessment_id"`
	ResponseID   *id.ResponseID   `json:"response_id"`
	ControlID    *id.ControlID    `json:"control_id"`
	OwnerID      *id.UserID       `json:"owner_id"`
	DueDate      *time.Time       `json:"due_date"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createFindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	finding, err := h.svc.CreateFinding(r.Context(), requestcontext.TenantID(r.Context()), service.CreateFindingInput{
		Title:        req.Title,
		Description:  req.Description,
		Severity:     req.Severity,
		AssessmentID: req.AssessmentID,
		ResponseID:   req.ResponseID,
		ControlID:    req.ControlID,
		OwnerID:      req.OwnerID,
		DueDate:      req.DueDate,
	})
	if err != nil {
		h.logWarn(r, "create finding failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, finding)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := service.FindingFilter{
		Status:   models.FindingStatus(r.URL.Query().Get("status")),
		Severity: models.Severity(r.URL.Query().Get("severity")),
		Overdue:  r.URL.Query().Get("overdue") == "true",
	}
	findings, err := h.svc.ListFindings(r.Context(), requestcontext.TenantID(r.Context()), filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, findings)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	findingID, err := id.ParseFindingID(chi.URLParam(r, "findingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	finding, err := h.svc.GetFinding(r.Context(), requestcontext.TenantID(r.Context()), findingID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, finding)
}

type updateFindingRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Severity    *models.Severity `json:"severity"`
	OwnerID     *id.UserID       `json:"owner_id"`
	DueDate     *time.Time       `json:"due_date"`
	ClearDue    bool             `json:"clear_due_date"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	findingID, err := id.ParseFindingID(chi.URLParam(r, "findingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateFindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	finding, err := h.svc.UpdateFinding(r.Context(), requestcontext.TenantID(r.Context()), findingID, service.UpdateFindingInput{
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		OwnerID:     req.OwnerID,
		DueDate:     req.DueDate,
		ClearDue:    req.ClearDue,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, finding)
}

type transitionRequest struct {
	Status models.FindingStatus `json:"status"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	findingID, err := id.ParseFindingID(chi.URLParam(r, "findingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	finding, err := h.svc.TransitionFinding(r.Context(), requestcontext.TenantID(r.Context()), findingID, req.Status)
	if err != nil {
		h.logWarn(r, "finding transition failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, finding)
}

type generateRequest struct {
	Threshold float64 `json:"threshold"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req generateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	findings, err := h.svc.GenerateFromAssessment(r.Context(), requestcontext.TenantID(r.Context()), assessmentID, req.Threshold)
	if err != nil {
		h.logWarn(r, "finding generation failed", err)
		shared.WriteError(w, err)
		return
	}
	if findings == nil {
		findings = []*models.Finding{}
	}
	shared.WriteJSON(w, http.StatusCreated, findings)
}

type createActionRequest struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	OwnerID       *id.UserID `json:"owner_id"`
	DueDate       *time.Time `json:"due_date"`
	EstimatedCost *float64   `json:"estimated_cost"`
}

func (h *Handler) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	findingID, err := id.ParseFindingID(chi.URLParam(r, "findingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req createActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	action, err := h.svc.CreateAction(r.Context(), requestcontext.TenantID(r.Context()), findingID, service.CreateActionInput{
		Title:         req.Title,
		Description:   req.Description,
		OwnerID:       req.OwnerID,
		DueDate:       req.DueDate,
		EstimatedCost: req.EstimatedCost,
	})
	if err != nil {
		h.logWarn(r, "create remediation action failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, action)
}

func (h *Handler) handleListActions(w http.ResponseWriter, r *http.Request) {
	findingID, err := id.ParseFindingID(chi.URLParam(r, "findingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	actions, err := h.svc.ListActions(r.Context(), requestcontext.TenantID(r.Context()), findingID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, actions)
}

func (h *Handler) handleGetAction(w http.ResponseWriter, r *http.Request) {
	actionID, err := id.ParseRemediationID(chi.URLParam(r, "actionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	action, err := h.svc.GetAction(r.Context(), requestcontext.TenantID(r.Context()), actionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, action)
}

type updateActionRequest struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	OwnerID       *id.UserID `json:"owner_id"`
	DueDate       *time.Time `json:"due_date"`
	ClearDue      bool       `json:"clear_due_date"`
	EstimatedCost *float64   `json:"estimated_cost"`
	ActualCost    *float64   `json:"actual_cost"`
}

func (h *Handler) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	actionID, err := id.ParseRemediationID(chi.URLParam(r, "actionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	action, err := h.svc.UpdateAction(r.Context(), requestcontext.TenantID(r.Context()), actionID, service.UpdateActionInput{
		Title:         req.Title,
		Description:   req.Description,
		OwnerID:       req.OwnerID,
		DueDate:       req.DueDate,
		ClearDue:      req.ClearDue,
		EstimatedCost: req.EstimatedCost,
		ActualCost:    req.ActualCost,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, action)
}

type actionTransitionRequest struct {
	Status models.ActionStatus `json:"status"`
}

func (h *Handler) handleTransitionAction(w http.ResponseWriter, r *http.Request) {
	actionID, err := id.ParseRemediationID(chi.URLParam(r, "actionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req actionTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	action, err := h.svc.TransitionAction(r.Context(), requestcontext.TenantID(r.Context()), actionID, req.Status)
	if err != nil {
		h.logWarn(r, "action transition failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, action)
}

type createTaskRequest struct {
	Title      string     `json:"title"`
	AssigneeID *id.UserID `json:"assignee_id"`
	DueDate    *time.Time `json:"due_date"`
	SortOrder  int        `json:"sort_order"`
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	actionID, err := id.ParseRemediationID(chi.URLParam(r, "actionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	task, err := h.svc.CreateTask(r.Context(), requestcontext.TenantID(r.Context()), actionID, service.CreateTaskInput{
		Title:      req.Title,
		AssigneeID: req.AssigneeID,
		DueDate:    req.DueDate,
		SortOrder:  req.SortOrder,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, task)
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	actionID, err := id.ParseRemediationID(chi.URLParam(r, "actionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	tasks, err := h.svc.ListTasks(r.Context(), requestcontext.TenantID(r.Context()), actionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tasks)
}

type updateTaskRequest struct {
	Title      *string            `json:"title"`
	Status     *models.TaskStatus `json:"status"`
	AssigneeID *id.UserID         `json:"assignee_id"`
	DueDate    *time.Time         `json:"due_date"`
	ClearDue   bool               `json:"clear_due_date"`
	SortOrder  *int               `json:"sort_order"`
}

func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	task, err := h.svc.UpdateTask(r.Context(), requestcontext.TenantID(r.Context()), taskID, service.UpdateTaskInput{
		Title:      req.Title,
		Status:     req.Status,
		AssigneeID: req.AssigneeID,
		DueDate:    req.DueDate,
		ClearDue:   req.ClearDue,
		SortOrder:  req.SortOrder,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, task)
}

func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := id.ParseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.DeleteTask(r.Context(), requestcontext.TenantID(r.Context()), taskID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logWarn(r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(r.Context()),
	)
}
