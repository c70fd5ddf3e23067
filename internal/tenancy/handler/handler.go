// Package handler wires the tenancy HTTP routes. Tenant lifecycle lives on
// the admin surface; organizations and business units are tenant-scoped API
// routes.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"conforma/internal/tenancy/models"
	"conforma/internal/tenancy/service"
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

// RegisterAdmin mounts tenant lifecycle routes. The caller wraps these in the
// admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/tenants", h.handleCreateTenant)
	r.Get("/tenants", h.handleListTenants)
	r.Get("/tenants/{tenantID}", h.handleGetTenant)
	r.Post("/tenants/{tenantID}/status", h.handleTransitionTenant)
	r.Put("/tenants/{tenantID}/features/{flag}", h.handleSetFeatureFlag)
	r.Get("/tenants/{tenantID}/features", h.handleListFeatureFlags)
}

// Register mounts the tenant-scoped organization and business unit routes.
// The caller wraps these in the bearer auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.With(auth.RequirePermission("organization.create", h.logger)).Post("/organizations", h.handleCreateOrg)
	r.Get("/organizations", h.handleListOrgs)
	r.Get("/organizations/{orgID}", h.handleGetOrg)
	r.With(auth.RequirePermission("organization.update", h.logger)).Patch("/organizations/{orgID}", h.handleUpdateOrg)
	r.With(auth.RequirePermission("organization.delete", h.logger)).Delete("/organizations/{orgID}", h.handleDeleteOrg)

	r.With(auth.RequirePermission("organization.update", h.logger)).Post("/organizations/{orgID}/business-units", h.handleCreateUnit)
	r.Get("/organizations/{orgID}/business-units", h.handleListUnits)
	r.Get("/business-units/{unitID}", h.handleGetUnit)
	r.With(auth.RequirePermission("organization.update", h.logger)).Patch("/business-units/{unitID}", h.handleUpdateUnit)
	r.With(auth.RequirePermission("organization.delete", h.logger)).Delete("/business-units/{unitID}", h.handleDeleteUnit)
}

type createTenantRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	tenant, err := h.svc.CreateTenant(r.Context(), req.Name)
	if err != nil {
		h.logWarn(r, "create tenant failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, tenant)
}

func (h *Handler) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.svc.ListTenants(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tenants)
}

func (h *Handler) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	tenant, err := h.svc.GetTenant(r.Context(), tenantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tenant)
}

type transitionTenantRequest struct {
	Status models.TenantStatus `json:"status"`
}

func (h *Handler) handleTransitionTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req transitionTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	tenant, err := h.svc.TransitionTenant(r.Context(), tenantID, req.Status)
	if err != nil {
		h.logWarn(r, "tenant transition failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, tenant)
}

type setFeatureFlagRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) handleSetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req setFeatureFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	flag, err := h.svc.SetFeatureFlag(r.Context(), tenantID, chi.URLParam(r, "flag"), req.Enabled)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, flag)
}

func (h *Handler) handleListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	flags, err := h.svc.ListFeatureFlags(r.Context(), tenantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, flags)
}

type createOrgRequest struct {
	LegalName string `json:"legal_name"`
	Sector    string `json:"sector"`
	Regulator string `json:"regulator"`
	SizeBand  string `json:"size_band"`
}

func (h *Handler) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	var req createOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	org, err := h.svc.CreateOrganization(r.Context(), requestcontext.TenantID(r.Context()), service.CreateOrganizationInput{
		LegalName: req.LegalName,
		Sector:    req.Sector,
		Regulator: req.Regulator,
		SizeBand:  req.SizeBand,
	})
	if err != nil {
		h.logWarn(r, "create organization failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, org)
}

func (h *Handler) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.svc.ListOrganizations(r.Context(), requestcontext.TenantID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, orgs)
}

func (h *Handler) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	org, err := h.svc.GetOrganization(r.Context(), requestcontext.TenantID(r.Context()), orgID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, org)
}

type updateOrgRequest struct {
	LegalName *string `json:"legal_name"`
	Sector    *string `json:"sector"`
	Regulator *string `json:"regulator"`
	SizeBand  *string `json:"size_band"`
}

func (h *Handler) handleUpdateOrg(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	org, err := h.svc.UpdateOrganization(r.Context(), requestcontext.TenantID(r.Context()), orgID, service.UpdateOrganizationInput{
		LegalName: req.LegalName,
		Sector:    req.Sector,
		Regulator: req.Regulator,
		SizeBand:  req.SizeBand,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, org)
}

func (h *Handler) handleDeleteOrg(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.DeleteOrganization(r.Context(), requestcontext.TenantID(r.Context()), orgID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createUnitRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

func (h *Handler) handleCreateUnit(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req createUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	in := service.CreateBusinessUnitInput{OrganizationID: orgID, Name: req.Name}
	if req.ParentID != nil {
		parentID, err := id.ParseBusinessUnitID(*req.ParentID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		in.ParentID = &parentID
	}
	unit, err := h.svc.CreateBusinessUnit(r.Context(), requestcontext.TenantID(r.Context()), in)
	if err != nil {
		h.logWarn(r, "create business unit failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, unit)
}

func (h *Handler) handleListUnits(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	units, err := h.svc.ListBusinessUnits(r.Context(), requestcontext.TenantID(r.Context()), orgID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, units)
}

func (h *Handler) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	unitID, err := id.ParseBusinessUnitID(chi.URLParam(r, "unitID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	unit, err := h.svc.GetBusinessUnit(r.Context(), requestcontext.TenantID(r.Context()), unitID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, unit)
}

type updateUnitRequest struct {
	Name     *string                    `json:"name"`
	Status   *models.BusinessUnitStatus `json:"status"`
	ParentID *string                    `json:"parent_id"`
	// MoveToRoot clears the parent; a null parent_id alone is ambiguous in
	// a PATCH body.
	MoveToRoot bool `json:"move_to_root"`
}

func (h *Handler) handleUpdateUnit(w http.ResponseWriter, r *http.Request) {
	unitID, err := id.ParseBusinessUnitID(chi.URLParam(r, "unitID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	in := service.UpdateBusinessUnitInput{Name: req.Name, Status: req.Status}
	if req.MoveToRoot {
		in.SetParent = true
	} else if req.ParentID != nil {
		parentID, err := id.ParseBusinessUnitID(*req.ParentID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		in.SetParent = true
		in.ParentID = &parentID
	}
	unit, err := h.svc.UpdateBusinessUnit(r.Context(), requestcontext.TenantID(r.Context()), unitID, in)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, unit)
}

func (h *Handler) handleDeleteUnit(w http.ResponseWriter, r *http.Request) {
	unitID, err := id.ParseBusinessUnitID(chi.URLParam(r, "unitID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.DeleteBusinessUnit(r.Context(), requestcontext.TenantID(r.Context()), unitID); err != nil {
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
