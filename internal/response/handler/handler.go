// Package handler wires the response and evidence HTTP routes.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"conforma/internal/response/models"
	"conforma/internal/response/service"
	"conforma/internal/transport/http/shared"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/middleware/auth"
	"conforma/pkg/requestcontext"
)

// maxUploadBytes bounds evidence uploads.
const maxUploadBytes = 64 << 20

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the tenant-scoped response and evidence routes.
func (h *Handler) Register(r chi.Router) {
	submit := auth.RequirePermission("response.submit", h.logger)
	review := auth.RequirePermission("response.review", h.logger)
	upload := auth.RequirePermission("evidence.upload", h.logger)
	validate := auth.RequirePermission("evidence.validate", h.logger)

	r.With(submit).Put("/assessments/{assessmentID}/questions/{questionID}/response", h.handleUpsertDraft)
	r.Get("/assessments/{assessmentID}/responses", h.handleListResponses)
	r.Get("/responses/{responseID}", h.handleGetResponse)
	r.With(submit).Post("/responses/{responseID}/submit", h.handleSubmit)
	r.With(review).Post("/responses/{responseID}/start-review", h.handleStartReview)
	r.With(review).Post("/responses/{responseID}/review", h.handleReview)
	r.With(submit).Post("/responses/{responseID}/reopen", h.handleReopen)
	r.Get("/responses/{responseID}/versions", h.handleListVersions)
	r.Get("/responses/{responseID}/reviews", h.handleListReviews)

	r.With(upload).Post("/evidence", h.handleUpload)
	r.Get("/evidence", h.handleListEvidence)
	r.Get("/evidence/{evidenceID}", h.handleGetEvidence)
	r.Get("/evidence/{evidenceID}/content", h.handleDownload)
	r.With(validate).Post("/evidence/{evidenceID}/validate", h.handleValidate)
	r.With(upload).Put("/responses/{responseID}/evidence/{evidenceID}", h.handleLink)
	r.With(upload).Delete("/responses/{responseID}/evidence/{evidenceID}", h.handleUnlink)
	r.Get("/responses/{responseID}/evidence", h.handleListResponseEvidence)
}

type draftRequest struct {
	Answer json.RawMessage `json:"answer"`
}

func (h *Handler) handleUpsertDraft(w http.ResponseWriter, r *http.Request) {
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
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	response, err := h.svc.UpsertDraft(r.Context(), requestcontext.TenantID(r.Context()), assessmentID, questionID, req.Answer)
	if err != nil {
		h.logWarn(r, "upsert draft failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) handleListResponses(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	responses, err := h.svc.ListResponses(r.Context(), requestcontext.TenantID(r.Context()), assessmentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, responses)
}

func (h *Handler) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	response, err := h.svc.GetResponse(r.Context(), requestcontext.TenantID(r.Context()), responseID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.svc.Submit)
}

func (h *Handler) handleStartReview(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.svc.StartReview)
}

func (h *Handler) handleReopen(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.svc.Reopen)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) (*models.Response, error)) {
	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	response, err := fn(r.Context(), requestcontext.TenantID(r.Context()), responseID)
	if err != nil {
		h.logWarn(r, "response transition failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, response)
}

type reviewRequest struct {
	Decision models.ReviewDecision `json:"decision"`
	Comment  string                `json:"comment"`
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	response, err := h.svc.Review(r.Context(), requestcontext.TenantID(r.Context()), responseID, req.Decision, req.Comment)
	if err != nil {
		h.logWarn(r, "review failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) handleListVersions(w http.ResponseWriter, r *http.Request) {
	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	versions, err := h.svc.ListVersions(r.Context(), requestcontext.TenantID(r.Context()), responseID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, versions)
}

func (h *Handler) handleListReviews(w http.ResponseWriter, r *http.Request) {
	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	reviews, err := h.svc.ListReviews(r.Context(), requestcontext.TenantID(r.Context()), responseID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, reviews)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing file field"))
		return
	}
	defer file.Close()

	evidence, err := h.svc.UploadEvidence(r.Context(), requestcontext.TenantID(r.Context()),
		header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.logWarn(r, "evidence upload failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, evidence)
}

func (h *Handler) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	evidence, err := h.svc.ListEvidence(r.Context(), requestcontext.TenantID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, evidence)
}

func (h *Handler) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "evidenceID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	evidence, err := h.svc.GetEvidence(r.Context(), requestcontext.TenantID(r.Context()), evidenceID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, evidence)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "evidenceID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	evidence, rc, err := h.svc.OpenEvidence(r.Context(), requestcontext.TenantID(r.Context()), evidenceID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", evidence.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+evidence.FileName+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		h.logWarn(r, "evidence download interrupted", err)
	}
}

type validateRequest struct {
	Status models.EvidenceStatus `json:"status"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "evidenceID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	evidence, err := h.svc.ValidateEvidence(r.Context(), requestcontext.TenantID(r.Context()), evidenceID, req.Status)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, evidence)
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	responseID, evidenceID, err := linkParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.LinkEvidence(r.Context(), requestcontext.TenantID(r.Context()), responseID, evidenceID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnlink(w http.ResponseWriter, r *http.Request) {
	responseID, evidenceID, err := linkParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.UnlinkEvidence(r.Context(), requestcontext.TenantID(r.Context()), responseID, evidenceID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListResponseEvidence(w http.ResponseWriter, r *http.Request) {
	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	evidence, err := h.svc.ListResponseEvidence(r.Context(), requestcontext.TenantID(r.Context()), responseID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, evidence)
}

func linkParams(r *http.Request) (id.ResponseID, id.EvidenceID, error) {
	responseID, err := id.ParseResponseID(chi.URLParam(r, "responseID"))
	if err != nil {
		return id.ResponseID{}, id.EvidenceID{}, err
	}
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "evidenceID"))
	if err != nil {
		return id.ResponseID{}, id.EvidenceID{}, err
	}
	return responseID, evidenceID, nil
}

func (h *Handler) logWarn(r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(r.Context()),
	)
}
