package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// Role is a named permission bundle scoped to a tenant. System roles are
// seeded at tenant creation and cannot be modified or deleted.
type Role struct {
	ID          id.RoleID   `json:"id"`
	TenantID    id.TenantID `json:"tenant_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	IsSystem    bool        `json:"is_system"`
	CreatedAt   time.Time   `json:"created_at"`
}

func NewRole(roleID id.RoleID, tenantID id.TenantID, name, description string, isSystem bool, now time.Time) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "role name cannot be empty")
	}
	return &Role{
		ID:          roleID,
		TenantID:    tenantID,
		Name:        name,
		Description: strings.TrimSpace(description),
		IsSystem:    isSystem,
		CreatedAt:   now,
	}, nil
}

// Permission is one entry in the global permission catalog. Codes follow the
// "<resource>.<action>" convention, e.g. "assessment.create".
type Permission struct {
	ID          id.PermissionID `json:"id"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
}

// ScopeType narrows a role assignment to part of the tenant's structure.
type ScopeType string

const (
	ScopeGlobal       ScopeType = "global"
	ScopeOrganization ScopeType = "organization"
	ScopeBusinessUnit ScopeType = "business_unit"
)

func (s ScopeType) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeOrganization, ScopeBusinessUnit:
		return true
	}
	return false
}

// UserRole links a user to a role, optionally narrowed to an organization or
// business unit. ScopeID is set exactly when ScopeType is not global.
type UserRole struct {
	ID        uuid.UUID   `json:"id"`
	TenantID  id.TenantID `json:"tenant_id"`
	UserID    id.UserID   `json:"user_id"`
	RoleID    id.RoleID   `json:"role_id"`
	ScopeType ScopeType   `json:"scope_type"`
	ScopeID   *uuid.UUID  `json:"scope_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

func NewUserRole(tenantID id.TenantID, userID id.UserID, roleID id.RoleID, scopeType ScopeType, scopeID *uuid.UUID, now time.Time) (*UserRole, error) {
	if !scopeType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown scope type %q", scopeType)
	}
	if scopeType == ScopeGlobal && scopeID != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "global assignments cannot carry a scope id")
	}
	if scopeType != ScopeGlobal && scopeID == nil {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s assignments require a scope id", scopeType)
	}
	return &UserRole{
		ID:        uuid.New(),
		TenantID:  tenantID,
		UserID:    userID,
		RoleID:    roleID,
		ScopeType: scopeType,
		ScopeID:   scopeID,
		CreatedAt: now,
	}, nil
}
