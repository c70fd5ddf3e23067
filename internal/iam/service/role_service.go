package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"conforma/internal/iam/models"
	"conforma/pkg/platform/audit"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

type CreateRoleInput struct {
	Name        string
	Description string
}

// CreateRole adds a tenant-defined role. Roles created through the API are
// never system roles.
func (s *Service) CreateRole(ctx context.Context, tenantID id.TenantID, in CreateRoleInput) (*models.Role, error) {
	role, err := models.NewRole(id.NewRoleID(), tenantID, in.Name, in.Description, false, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.roles.CreateIfNameAvailable(ctx, role); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "role name must be unique within the tenant")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create role")
	}
	if err := s.recordForTenant(ctx, tenantID, audit.EventRoleCreated, "role", role.ID.String(), role.Name); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *Service) GetRole(ctx context.Context, tenantID id.TenantID, roleID id.RoleID) (*models.Role, error) {
	role, err := s.roles.FindByID(ctx, tenantID, roleID)
	if err != nil {
		return nil, notFound(err, "role")
	}
	return role, nil
}

func (s *Service) ListRoles(ctx context.Context, tenantID id.TenantID) ([]*models.Role, error) {
	roles, err := s.roles.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list roles")
	}
	return roles, nil
}

func (s *Service) DeleteRole(ctx context.Context, tenantID id.TenantID, roleID id.RoleID) error {
	role, err := s.roles.FindByID(ctx, tenantID, roleID)
	if err != nil {
		return notFound(err, "role")
	}
	if role.IsSystem {
		return dErrors.New(dErrors.CodeConflict, "system roles cannot be deleted")
	}
	if err := s.roles.Delete(ctx, tenantID, roleID); err != nil {
		return notFound(err, "role")
	}
	return nil
}

// GrantPermission attaches a catalog permission to a role. Granting the same
// permission twice is a no-op.
func (s *Service) GrantPermission(ctx context.Context, tenantID id.TenantID, roleID id.RoleID, permissionCode string) error {
	role, err := s.roles.FindByID(ctx, tenantID, roleID)
	if err != nil {
		return notFound(err, "role")
	}
	if role.IsSystem {
		return dErrors.New(dErrors.CodeConflict, "system roles cannot be modified")
	}
	perm, err := s.permissions.FindByCode(ctx, permissionCode)
	if err != nil {
		return notFound(err, "permission")
	}
	if err := s.roles.GrantPermission(ctx, roleID, perm.ID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant permission")
	}
	return s.recordForTenant(ctx, tenantID, audit.EventPermissionGranted, "role", roleID.String(), permissionCode)
}

func (s *Service) RevokePermission(ctx context.Context, tenantID id.TenantID, roleID id.RoleID, permissionCode string) error {
	role, err := s.roles.FindByID(ctx, tenantID, roleID)
	if err != nil {
		return notFound(err, "role")
	}
	if role.IsSystem {
		return dErrors.New(dErrors.CodeConflict, "system roles cannot be modified")
	}
	perm, err := s.permissions.FindByCode(ctx, permissionCode)
	if err != nil {
		return notFound(err, "permission")
	}
	if err := s.roles.RevokePermission(ctx, roleID, perm.ID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke permission")
	}
	return s.recordForTenant(ctx, tenantID, audit.EventPermissionRevoked, "role", roleID.String(), permissionCode)
}

func (s *Service) ListRolePermissions(ctx context.Context, tenantID id.TenantID, roleID id.RoleID) ([]models.Permission, error) {
	if _, err := s.roles.FindByID(ctx, tenantID, roleID); err != nil {
		return nil, notFound(err, "role")
	}
	perms, err := s.roles.ListPermissions(ctx, roleID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list role permissions")
	}
	return perms, nil
}

func (s *Service) ListPermissionCatalog(ctx context.Context) ([]models.Permission, error) {
	perms, err := s.permissions.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list permissions")
	}
	return perms, nil
}

type AssignRoleInput struct {
	RoleID    id.RoleID
	ScopeType models.ScopeType
	ScopeID   *uuid.UUID
}

// AssignRole links a role to a user, optionally scoped to an organization or
// business unit. Duplicate assignments conflict.
func (s *Service) AssignRole(ctx context.Context, tenantID id.TenantID, userID id.UserID, in AssignRoleInput) (*models.UserRole, error) {
	if _, err := s.users.FindByID(ctx, tenantID, userID); err != nil {
		return nil, notFound(err, "user")
	}
	if _, err := s.roles.FindByID(ctx, tenantID, in.RoleID); err != nil {
		return nil, notFound(err, "role")
	}
	scope := in.ScopeType
	if scope == "" {
		scope = models.ScopeGlobal
	}
	assignment, err := models.NewUserRole(tenantID, userID, in.RoleID, scope, in.ScopeID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.userRoles.Assign(ctx, assignment); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "role already assigned for this scope")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign role")
	}
	if err := s.recordForTenant(ctx, tenantID, audit.EventRoleAssigned, "user", userID.String(), in.RoleID.String()); err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *Service) RemoveRole(ctx context.Context, tenantID id.TenantID, userID id.UserID, assignmentID uuid.UUID) error {
	if err := s.userRoles.Remove(ctx, tenantID, assignmentID); err != nil {
		return notFound(err, "role assignment")
	}
	return s.recordForTenant(ctx, tenantID, audit.EventRoleUnassigned, "user", userID.String(), assignmentID.String())
}

func (s *Service) ListUserRoles(ctx context.Context, tenantID id.TenantID, userID id.UserID) ([]*models.UserRole, error) {
	if _, err := s.users.FindByID(ctx, tenantID, userID); err != nil {
		return nil, notFound(err, "user")
	}
	assignments, err := s.userRoles.ListByUser(ctx, tenantID, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list role assignments")
	}
	return assignments, nil
}
