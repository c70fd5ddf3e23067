// Package iam provides users, roles, permissions, and authentication for the
// tenant-scoped API.
package iam

import (
	"log/slog"

	"conforma/internal/iam/handler"
	"conforma/internal/iam/service"
	"conforma/internal/iam/token"
)

type Service = service.Service

type Handler = handler.Handler

func NewService(users service.UserStore, roles service.RoleStore, permissions service.PermissionStore,
	userRoles service.UserRoleStore, tenants service.TenantChecker, tokens service.TokenIssuer,
	opts ...service.Option) *Service {
	return service.New(users, roles, permissions, userRoles, tenants, tokens, opts...)
}

func NewHandler(s *Service, tokens *token.JWTService, logger *slog.Logger) *Handler {
	return handler.New(s, tokens, logger)
}
