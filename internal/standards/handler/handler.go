// Package handler wires the standards catalog HTTP routes. Global standards
// are created through the admin surface; everything else is tenant-scoped.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"conforma/internal/standards/models"
	"conforma/internal/standards/service"
	"conforma/internal/transport/http/shared"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/middleware/auth"
	"conforma/pkg/requestcontext"
)

// maxImportBytes bounds a single CSV upload.
const maxImportBytes = 8 << 20

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterAdmin mounts the global catalog routes. The caller wraps these in
// the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/standards", h.handleCreateGlobalStandard)
}

// Register mounts the tenant-scoped catalog routes. The caller wraps these
// in the bearer auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.With(auth.RequirePermission("standard.create", h.logger)).Post("/standards", h.handleCreateStandard)
	r.Get("/standards", h.handleListStandards)
	r.Get("/standards/{standardID}", h.handleGetStandard)
	r.With(auth.RequirePermission("standard.update", h.logger)).Patch("/standards/{standardID}", h.handleUpdateStandard)
	r.With(auth.RequirePermission("standard.update", h.logger)).Delete("/standards/{standardID}", h.handleDeleteStandard)

	r.With(auth.RequirePermission("standard.update", h.logger)).Post("/standards/{standardID}/versions", h.handleCreateVersion)
	r.Get("/standards/{standardID}/versions", h.handleListVersions)
	r.Get("/versions/{versionID}", h.handleGetVersion)
	r.With(auth.RequirePermission("standard.update", h.logger)).Post("/versions/{versionID}/lock", h.handleLockVersion)

	r.With(auth.RequirePermission("standard.update", h.logger)).Post("/versions/{versionID}/controls", h.handleCreateControl)
	r.Get("/versions/{versionID}/controls", h.handleListControlTree)
	r.With(auth.RequirePermission("control.import", h.logger)).Post("/versions/{versionID}/controls/import", h.handleImportControls)
	r.Get("/controls/{controlID}", h.handleGetControl)
	r.With(auth.RequirePermission("standard.update", h.logger)).Patch("/controls/{controlID}", h.handleUpdateControl)
	r.With(auth.RequirePermission("standard.update", h.logger)).Delete("/controls/{controlID}", h.handleDeleteControl)
}

type createStandardRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
}

func (req createStandardRequest) toInput() service.CreateStandardInput {
	return service.CreateStandardInput{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Owner:       req.Owner,
	}
}

func (h *Handler) handleCreateGlobalStandard(w http.ResponseWriter, r *http.Request) {
	var req createStandardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	standard, err := h.svc.CreateGlobalStandard(r.Context(), req.toInput())
	if err != nil {
		h.logWarn(r, "create global standard failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, standard)
}

func (h *Handler) handleCreateStandard(w http.ResponseWriter, r *http.Request) {
	var req createStandardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	standard, err := h.svc.CreateStandard(r.Context(), requestcontext.TenantID(r.Context()), req.toInput())
	if err != nil {
		h.logWarn(r, "create standard failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, standard)
}

func (h *Handler) handleListStandards(w http.ResponseWriter, r *http.Request) {
	standards, err := h.svc.ListStandards(r.Context(), requestcontext.TenantID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, standards)
}

func (h *Handler) handleGetStandard(w http.ResponseWriter, r *http.Request) {
	standardID, err := id.ParseStandardID(chi.URLParam(r, "standardID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	standard, err := h.svc.GetStandard(r.Context(), requestcontext.TenantID(r.Context()), standardID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, standard)
}

type updateStandardRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Owner       *string `json:"owner"`
}

func (h *Handler) handleUpdateStandard(w http.ResponseWriter, r *http.Request) {
	standardID, err := id.ParseStandardID(chi.URLParam(r, "standardID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateStandardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	standard, err := h.svc.UpdateStandard(r.Context(), requestcontext.TenantID(r.Context()), standardID, service.UpdateStandardInput{
		Name:        req.Name,
		Description: req.Description,
		Owner:       req.Owner,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, standard)
}

func (h *Handler) handleDeleteStandard(w http.ResponseWriter, r *http.Request) {
	standardID, err := id.ParseStandardID(chi.URLParam(r, "standardID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.DeleteStandard(r.Context(), requestcontext.TenantID(r.Context()), standardID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createVersionRequest struct {
	Version string `json:"version"`
}

func (h *Handler) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	standardID, err := id.ParseStandardID(chi.URLParam(r, "standardID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req createVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	version, err := h.svc.CreateVersion(r.Context(), requestcontext.TenantID(r.Context()), standardID, req.Version)
	if err != nil {
		h.logWarn(r, "create version failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, version)
}

func (h *Handler) handleListVersions(w http.ResponseWriter, r *http.Request) {
	standardID, err := id.ParseStandardID(chi.URLParam(r, "standardID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	versions, err := h.svc.ListVersions(r.Context(), requestcontext.TenantID(r.Context()), standardID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, versions)
}

func (h *Handler) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	versionID, err := id.ParseVersionID(chi.URLParam(r, "versionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	version, err := h.svc.GetVersion(r.Context(), requestcontext.TenantID(r.Context()), versionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, version)
}

func (h *Handler) handleLockVersion(w http.ResponseWriter, r *http.Request) {
	versionID, err := id.ParseVersionID(chi.URLParam(r, "versionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	version, err := h.svc.LockVersion(r.Context(), requestcontext.TenantID(r.Context()), versionID)
	if err != nil {
		h.logWarn(r, "lock version failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, version)
}

type createControlRequest struct {
	ParentID    *string         `json:"parent_id"`
	NodeType    models.NodeType `json:"node_type"`
	Code        string          `json:"code"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Criticality int             `json:"criticality"`
}

func (h *Handler) handleCreateControl(w http.ResponseWriter, r *http.Request) {
	versionID, err := id.ParseVersionID(chi.URLParam(r, "versionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req createControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	in := service.CreateControlInput{
		NodeType:    req.NodeType,
		Code:        req.Code,
		Title:       req.Title,
		Description: req.Description,
		Criticality: req.Criticality,
	}
	if req.ParentID != nil {
		parentID, err := id.ParseControlID(*req.ParentID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		in.ParentID = &parentID
	}
	node, err := h.svc.CreateControl(r.Context(), requestcontext.TenantID(r.Context()), versionID, in)
	if err != nil {
		h.logWarn(r, "create control failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, node)
}

func (h *Handler) handleListControlTree(w http.ResponseWriter, r *http.Request) {
	versionID, err := id.ParseVersionID(chi.URLParam(r, "versionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	tree, err := h.svc.ListControlTree(r.Context(), requestcontext.TenantID(r.Context()), versionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tree)
}

func (h *Handler) handleImportControls(w http.ResponseWriter, r *http.Request) {
	versionID, err := id.ParseVersionID(chi.URLParam(r, "versionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	report, err := h.svc.ImportControlsCSV(r.Context(), requestcontext.TenantID(r.Context()), versionID, body)
	if err != nil {
		h.logWarn(r, "control import failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleGetControl(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	node, err := h.svc.GetControl(r.Context(), requestcontext.TenantID(r.Context()), controlID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, node)
}

type updateControlRequest struct {
	Title       *string               `json:"title"`
	Description *string               `json:"description"`
	Status      *models.ControlStatus `json:"status"`
	Criticality *int                  `json:"criticality"`
	ParentID    *string               `json:"parent_id"`
	// MoveToRoot clears the parent; a null parent_id alone is ambiguous in
	// a PATCH body.
	MoveToRoot bool `json:"move_to_root"`
}

func (h *Handler) handleUpdateControl(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	in := service.UpdateControlInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Criticality: req.Criticality,
	}
	if req.MoveToRoot {
		in.SetParent = true
	} else if req.ParentID != nil {
		parentID, err := id.ParseControlID(*req.ParentID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		in.SetParent = true
		in.ParentID = &parentID
	}
	node, err := h.svc.UpdateControl(r.Context(), requestcontext.TenantID(r.Context()), controlID, in)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, node)
}

func (h *Handler) handleDeleteControl(w http.ResponseWriter, r *http.Request) {
	controlID, err := id.ParseControlID(chi.URLParam(r, "controlID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.DeleteControl(r.Context(), requestcontext.TenantID(r.Context()), controlID); err != nil {
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
