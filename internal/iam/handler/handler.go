package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"conforma/internal/iam/models"
	"conforma/internal/iam/service"
	"conforma/internal/iam/token"
	"conforma/internal/transport/http/shared"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/middleware/auth"
	request "conforma/pkg/platform/middleware/request"
	"conforma/pkg/requestcontext"
)

type Handler struct {
	svc    *service.Service
	tokens *token.JWTService
	logger *slog.Logger
}

func New(svc *service.Service, tokens *token.JWTService, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// RegisterPublic mounts the unauthenticated login route.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
}

// Register mounts the authenticated iam routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/logout", h.handleLogout)
	r.Get("/auth/me", h.handleMe)

	r.With(auth.RequirePermission("user.create", h.logger)).Post("/users", h.handleCreateUser)
	r.Get("/users", h.handleListUsers)
	r.Get("/users/{userID}", h.handleGetUser)
	r.With(auth.RequirePermission("user.update", h.logger)).Patch("/users/{userID}", h.handleUpdateUser)
	r.With(auth.RequirePermission("user.delete", h.logger)).Delete("/users/{userID}", h.handleDeactivateUser)

	r.With(auth.RequirePermission("role.assign", h.logger)).Post("/users/{userID}/roles", h.handleAssignRole)
	r.Get("/users/{userID}/roles", h.handleListUserRoles)
	r.With(auth.RequirePermission("role.assign", h.logger)).Delete("/users/{userID}/roles/{assignmentID}", h.handleRemoveRole)

	r.With(auth.RequirePermission("role.manage", h.logger)).Post("/roles", h.handleCreateRole)
	r.Get("/roles", h.handleListRoles)
	r.Get("/roles/{roleID}", h.handleGetRole)
	r.With(auth.RequirePermission("role.manage", h.logger)).Delete("/roles/{roleID}", h.handleDeleteRole)

	r.Get("/roles/{roleID}/permissions", h.handleListRolePermissions)
	r.With(auth.RequirePermission("role.manage", h.logger)).Put("/roles/{roleID}/permissions/{code}", h.handleGrantPermission)
	r.With(auth.RequirePermission("role.manage", h.logger)).Delete("/roles/{roleID}/permissions/{code}", h.handleRevokePermission)

	r.Get("/permissions", h.handleListPermissions)
}

func (h *Handler) logWarn(r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"error", err,
		"request_id", request.GetRequestID(r.Context()),
	)
}

type loginRequest struct {
	TenantID id.TenantID `json:"tenant_id"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	result, err := h.svc.Login(r.Context(), service.LoginInput{
		TenantID: req.TenantID,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.logWarn(r, "login failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	claims, err := h.tokens.ValidateToken(raw)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	ttl := claims.ExpiryTTL(requestcontext.Now(r.Context()))
	if err := h.svc.Logout(r.Context(), claims.ID, ttl); err != nil {
		h.logWarn(r, "logout failed", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Me(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, user)
}

type createUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	user, err := h.svc.CreateUser(r.Context(), requestcontext.TenantID(r.Context()), service.CreateUserInput{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		h.logWarn(r, "create user failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context(), requestcontext.TenantID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	user, err := h.svc.GetUser(r.Context(), requestcontext.TenantID(r.Context()), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, user)
}

type updateUserRequest struct {
	FullName *string            `json:"full_name"`
	Status   *models.UserStatus `json:"status"`
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	user, err := h.svc.UpdateUser(r.Context(), requestcontext.TenantID(r.Context()), userID, service.UpdateUserInput{
		FullName: req.FullName,
		Status:   req.Status,
	})
	if err != nil {
		h.logWarn(r, "update user failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.DeactivateUser(r.Context(), requestcontext.TenantID(r.Context()), userID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	role, err := h.svc.CreateRole(r.Context(), requestcontext.TenantID(r.Context()), service.CreateRoleInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.logWarn(r, "create role failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.svc.ListRoles(r.Context(), requestcontext.TenantID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, roles)
}

func (h *Handler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	role, err := h.svc.GetRole(r.Context(), requestcontext.TenantID(r.Context()), roleID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.DeleteRole(r.Context(), requestcontext.TenantID(r.Context()), roleID); err != nil {
		h.logWarn(r, "delete role failed", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	perms, err := h.svc.ListRolePermissions(r.Context(), requestcontext.TenantID(r.Context()), roleID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, perms)
}

func (h *Handler) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.GrantPermission(r.Context(), requestcontext.TenantID(r.Context()), roleID, chi.URLParam(r, "code")); err != nil {
		h.logWarn(r, "grant permission failed", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	roleID, err := id.ParseRoleID(chi.URLParam(r, "roleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.RevokePermission(r.Context(), requestcontext.TenantID(r.Context()), roleID, chi.URLParam(r, "code")); err != nil {
		h.logWarn(r, "revoke permission failed", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.svc.ListPermissionCatalog(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, perms)
}

type assignRoleRequest struct {
	RoleID    id.RoleID        `json:"role_id"`
	ScopeType models.ScopeType `json:"scope_type"`
	ScopeID   *uuid.UUID       `json:"scope_id"`
}

func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	assignment, err := h.svc.AssignRole(r.Context(), requestcontext.TenantID(r.Context()), userID, service.AssignRoleInput{
		RoleID:    req.RoleID,
		ScopeType: req.ScopeType,
		ScopeID:   req.ScopeID,
	})
	if err != nil {
		h.logWarn(r, "assign role failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, assignment)
}

func (h *Handler) handleListUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	assignments, err := h.svc.ListUserRoles(r.Context(), requestcontext.TenantID(r.Context()), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, assignments)
}

func (h *Handler) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	assignmentID, err := uuid.Parse(chi.URLParam(r, "assignmentID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid assignment id"))
		return
	}
	if err := h.svc.RemoveRole(r.Context(), requestcontext.TenantID(r.Context()), userID, assignmentID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
