// Package handler wires the reporting HTTP routes.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"conforma/internal/reporting/service"
	"conforma/internal/transport/http/shared"
	id "conforma/pkg/domain"
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

// Register mounts the tenant-scoped reporting routes. Everything is read-only
// behind report.view.
func (h *Handler) Register(r chi.Router) {
	view := auth.RequirePermission("report.view", h.logger)

	r.With(view).Get("/reports/overview", h.handleOverview)
	r.With(view).Get("/reports/assessments", h.handleAssessments)
	r.With(view).Get("/reports/findings", h.handleFindings)
	r.With(view).Get("/reports/maturity", h.handleMaturity)
	r.With(view).Get("/reports/remediation", h.handleRemediation)
	r.With(view).Get("/reports/assessments/{assessmentID}", h.handleAssessmentReport)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.svc.Overview(r.Context(), requestcontext.TenantID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, overview)
}

func (h *Handler) handleAssessments(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.svc.AssessmentMetrics(r.Context(), requestcontext.TenantID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, metrics)
}

// assessmentFilter reads the optional assessment_id query param.
func assessmentFilter(r *http.Request) (*id.AssessmentID, error) {
	raw := r.URL.Query().Get("assessment_id")
	if raw == "" {
		return nil, nil
	}
	assessmentID, err := id.ParseAssessmentID(raw)
	if err != nil {
		return nil, err
	}
	return &assessmentID, nil
}

func (h *Handler) handleFindings(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := assessmentFilter(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	metrics, err := h.svc.FindingMetrics(r.Context(), requestcontext.TenantID(r.Context()), assessmentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleMaturity(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := assessmentFilter(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	metrics, err := h.svc.MaturityMetrics(r.Context(), requestcontext.TenantID(r.Context()), assessmentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleRemediation(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.svc.RemediationMetrics(r.Context(), requestcontext.TenantID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleAssessmentReport(w http.ResponseWriter, r *http.Request) {
	assessmentID, err := id.ParseAssessmentID(chi.URLParam(r, "assessmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	report, err := h.svc.AssessmentReport(r.Context(), requestcontext.TenantID(r.Context()), assessmentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}
