// Package handler wires the assessment HTTP routes.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"conforma/internal/assessment/models"
	"conforma/internal/assessment/service"
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

// Register mounts the tenant-scoped assessment routes.
func (h *Handler) Register(r chi.Router) {
	create := auth.RequirePermission("assessment.create", h.logger)
	update := auth.RequirePermission("assessment.update", h.logger)
	assign := auth.RequirePermission("assessment.assign", h.logger)

	r.With(create).Post("/assessments", h.handleCreate)
	r.Get("/assessments", h.handleList)
	r.Get("/assessments/{assessmentID}", h.handleGet)
	r.With(update).Patch("/assessments/{assessmentID}", h.handleUpdate)
	r.With(update).Post("/assessments/{assessmentID}/transition", h.handleTransition)

	r.Get("/assessments/{assessmentID}/scopes", h.handleListScopes)
	r.Get("/assessments/{assessmentID}/questions", h.handleListQuestions)
	r.Get("/assessments/{assessmentID}/questions/{questionID}", h.handleGetQuestion)
	r.Get("/assessments/{assessmentID}/progress", h.handleProgress)

	r.With(assign).Post("/assessments/{assessmentID}/assignments", h.handleCreateAssignment)
	r.Get("/assessments/{assessmentID}/assignments", h.handleListAssignments)
	r.Patch("/assignments/{assignmentID}", h.handleUpdateAssignment)
	r.With(assign).Delete("/assignments/{assignmentID}", h.handleDeleteAssignment)
}

type scopeRequest struct {
	ControlID       id.ControlID `json:"control_id"`
	IncludeChildren *bool        `json:"include_children"`
}

type createRequest struct {
	Code           string              `json:"code"`
	Name           string              `json:"name"`
	VersionID      id.VersionID        `json:"version_id"`
	OrganizationID id.OrgID            `json:"organization_id"`
	BusinessUnitID *id.BusinessUnitID  `json:"business_unit_id"`
	OwnerID        id.UserID           `json:"owner_id"`
	StartDate      *time.Time          `json:"start_date"`
	DueDate        *time.Time          `json:"due_date"`
	Scopes         []scopeRequest      `json:"scopes"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	scopes := make([]service.ScopeInput, 0, len(req.Scopes))
	for _, sc := range req.Scopes {
		includeChildren := true
		if sc.IncludeChildren != nil {
			includeChildren = *sc.IncludeChildren
		}
		scopes = append(scopes, service.ScopeInput{ControlID: sc.ControlID, IncludeChildren: includeChildren})
	}
	assessment, err := h.svc.CreateAssessment(r.Context(), requestcontext.TenantID(r.Context()), service.CreateAssessmentInput{
		Code:           req.Code,
		Name:           req.Name,
		VersionID:      req.VersionID,
		OrganizationID: req.OrganizationID,
		BusinessUnitID: req.BusinessUnitID,
		OwnerID:        req.OwnerID,
		StartDate:      req.StartDate,
		DueDate:        req.DueDate,
		Scopes:         scopes,
	})
	if err != nil {
		h.logWarn(r, "create assessment failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, assessment)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	assessments, err := h.svc.ListAssessments(r.Context(), requestcontext.TenantID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, assessments)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	assessment, err := h.svc.GetAssessment(r.Context(), requestcontext.TenantID(r.Context()), assessmentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, assessment)
}

type updateRequest struct {
	Name      *string     `json:"name"`
	OwnerID   *id.UserID  `json:"owner_id"`
	StartDate *time.Time  `json:"start_date"`
	DueDate   *time.Time  `json:"due_date"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	assessment, err := h.svc.UpdateAssessment(r.Context(), requestcontext.TenantID(r.Context()), assessmentID, service.UpdateAssessmentInput{
		Name:      req.Name,
		OwnerID:   req.OwnerID,
		StartDate: req.StartDate,
		DueDate:   req.DueDate,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, assessment)
}

type transitionRequest struct {
	Status models.AssessmentStatus `json:"status"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	assessment, err := h.svc.TransitionAssessment(r.Context(), requestcontext.TenantID(r.Context()), assessmentID, req.Status)
	if err != nil {
		h.logWarn(r, "assessment transition failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, assessment)
}

func (h *Handler) handleListScopes(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	scopes, err := h.svc.ListScopes(r.Context(), requestcontext.TenantID(r.Context()), assessmentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, scopes)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	questions, err := h.svc.ListQuestions(r.Context(), requestcontext.TenantID(r.Context()), assessmentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	questionID, err := id.ParseAssessmentQuestionID(chi.URLParam(r, "questionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	question, err := h.svc.GetQuestion(r.Context(), requestcontext.TenantID(r.Context()), assessmentID, questionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, question)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	progress, err := h.svc.Progress(r.Context(), requestcontext.TenantID(r.Context()), assessmentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, progress)
}

type createAssignmentRequest struct {
	QuestionID *id.AssessmentQuestionID `json:"assessment_question_id"`
	AssigneeID id.UserID                `json:"assignee_id"`
}

func (h *Handler) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req createAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	assignment, err := h.svc.CreateAssignment(r.Context(), requestcontext.TenantID(r.Context()), assessmentID, service.CreateAssignmentInput{
		QuestionID: req.QuestionID,
		AssigneeID: req.AssigneeID,
	})
	if err != nil {
		h.logWarn(r, "create assignment failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, assignment)
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	assignments, err := h.svc.ListAssignments(r.Context(), requestcontext.TenantID(r.Context()), assessmentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, assignments)
}

type updateAssignmentRequest struct {
	Status models.AssignmentStatus `json:"status"`
}

func (h *Handler) handleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	assignment, err := h.svc.UpdateAssignmentStatus(r.Context(), requestcontext.TenantID(r.Context()), assignmentID, req.Status)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, assignment)
}

func (h *Handler) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.DeleteAssignment(r.Context(), requestcontext.TenantID(r.Context()), assignmentID); err != nil {
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
