// Package handler wires the question bank HTTP routes.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"conforma/internal/questionbank/models"
	"conforma/internal/questionbank/service"
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

// Register mounts the tenant-scoped question bank routes. The caller wraps
// these in the bearer auth middleware.
func (h *Handler) Register(r chi.Router) {
	manage := auth.RequirePermission("question.manage", h.logger)

	r.With(manage).Post("/questions", h.handleCreateQuestion)
	r.Get("/questions", h.handleListQuestions)
	r.Get("/questions/{questionID}", h.handleGetQuestion)
	r.With(manage).Patch("/questions/{questionID}", h.handleUpdateQuestion)
	r.With(manage).Post("/questions/{questionID}/deactivate", h.handleDeactivateQuestion)

	r.With(manage).Post("/questions/{questionID}/options", h.handleAddOption)
	r.Get("/questions/{questionID}/options", h.handleListOptions)
	r.With(manage).Delete("/questions/{questionID}/options/{optionID}", h.handleRemoveOption)

	r.With(manage).Post("/controls/{controlID}/questions", h.handleMapQuestion)
	r.With(manage).Post("/controls/{controlID}/questions/bulk", h.handleBulkMap)
	r.Get("/controls/{controlID}/questions", h.handleListControlMappings)
	r.With(manage).Delete("/controls/{controlID}/questions/{questionID}", h.handleUnmapQuestion)
	r.Get("/questions/{questionID}/controls", h.handleListQuestionMappings)
}

type createQuestionRequest struct {
	Code          string              `json:"code"`
	Text          string              `json:"text"`
	QuestionType  models.QuestionType `json:"question_type"`
	ScaleType     models.ScaleType    `json:"scale_type"`
	Guidance      string              `json:"guidance"`
	EvidenceHints string              `json:"evidence_hints"`
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req createQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	question, err := h.svc.CreateQuestion(r.Context(), requestcontext.TenantID(r.Context()), service.CreateQuestionInput{
		Code:          req.Code,
		Text:          req.Text,
		QuestionType:  req.QuestionType,
		ScaleType:     req.ScaleType,
		Guidance:      req.Guidance,
		EvidenceHints: req.EvidenceHints,
	})
	if err != nil {
		h.logWarn(r, "create question failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, question)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.svc.ListQuestions(r.Context(), requestcontext.TenantID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, err := id.ParseQuestionID(chi.URLParam(r, "questionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	question, err := h.svc.GetQuestion(r.Context(), requestcontext.TenantID(r.Context()), questionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, question)
}

type updateQuestionRequest struct {
	Text          *string                `json:"text"`
	Guidance      *string                `json:"guidance"`
	EvidenceHints *string                `json:"evidence_hints"`
	Status        *models.QuestionStatus `json:"status"`
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, err := id.ParseQuestionID(chi.URLParam(r, "questionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	question, err := h.svc.UpdateQuestion(r.Context(), requestcontext.TenantID(r.Context()), questionID, service.UpdateQuestionInput{
		Text:          req.Text,
		Guidance:      req.Guidance,
		EvidenceHints: req.EvidenceHints,
		Status:        req.Status,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, question)
}

func (h *Handler) handleDeactivateQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, err := id.ParseQuestionID(chi.URLParam(r, "questionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	question, err := h.svc.DeactivateQuestion(r.Context(), requestcontext.TenantID(r.Context()), questionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, question)
}

type addOptionRequest struct {
	Value     string  `json:"value"`
	Label     string  `json:"label"`
	Score     float64 `json:"score"`
	SortOrder int     `json:"sort_order"`
}

func (h *Handler) handleAddOption(w http.ResponseWriter, r *http.Request) {
	questionID, err := id.ParseQuestionID(chi.URLParam(r, "questionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req addOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	option, err := h.svc.AddOption(r.Context(), requestcontext.TenantID(r.Context()), questionID, service.AddOptionInput{
		Value:     req.Value,
		Label:     req.Label,
		Score:     req.Score,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, option)
}

func (h *Handler) handleListOptions(w http.ResponseWriter, r *http.Request) {
	questionID, err := id.ParseQuestionID(chi.URLParam(r, "questionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	options, err := h.svc.ListOptions(r.Context(), requestcontext.TenantID(r.Context()), questionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, options)
}

func (h *Handler) handleRemoveOption(w http.ResponseWriter, r *http.Request) {
	questionID, err := id.ParseQuestionID(chi.URLParam(r, "questionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	optionID, err := uuid.Parse(chi.URLParam(r, "optionID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid option id"))
		return
	}
	if err := h.svc.RemoveOption(r.Context(), requestcontext.TenantID(r.Context()), questionID, optionID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mapQuestionRequest struct {
	QuestionID  id.QuestionID `json:"question_id"`
	IsMandatory *bool         `json:"is_mandatory"`
	SortOrder   int           `json:"sort_order"`
}

func (h *Handler) handleMapQuestion(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req mapQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	m, err := h.svc.MapQuestion(r.Context(), requestcontext.TenantID(r.Context()), service.MapQuestionInput{
		ControlID:   controlID,
		QuestionID:  req.QuestionID,
		IsMandatory: req.IsMandatory,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		h.logWarn(r, "map question failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, m)
}

type bulkMapRequest struct {
	QuestionIDs []id.QuestionID `json:"question_ids"`
}

func (h *Handler) handleBulkMap(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req bulkMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	results, err := h.svc.BulkMapQuestions(r.Context(), requestcontext.TenantID(r.Context()), controlID, req.QuestionIDs)
	if err != nil {
		h.logWarn(r, "bulk map failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, results)
}

func (h *Handler) handleListControlMappings(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	maps, err := h.svc.ListControlMappings(r.Context(), requestcontext.TenantID(r.Context()), controlID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, maps)
}

func (h *Handler) handleUnmapQuestion(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	questionID, err := id.ParseQuestionID(chi.URLParam(r, "questionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.UnmapQuestion(r.Context(), requestcontext.TenantID(r.Context()), controlID, questionID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListQuestionMappings(w http.ResponseWriter, r *http.Request) {
	questionID, err := id.ParseQuestionID(chi.URLParam(r, "questionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	maps, err := h.svc.ListQuestionMappings(r.Context(), requestcontext.TenantID(r.Context()), questionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, maps)
}

func (h *Handler) logWarn(r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(r.Context()),
	)
}
