package models

import (
	"strings"
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// StandardScope controls visibility. Global standards belong to no tenant
// and are readable by every tenant; tenant standards are isolated.
type StandardScope string

const (
	ScopeGlobal StandardScope = "global"
	ScopeTenant StandardScope = "tenant"
)

// Standard is a compliance framework (e.g. ISO 27001, SOC 2). The catalog
// content lives in versions so published control sets stay immutable.
type Standard struct {
	ID          id.StandardID `json:"id"`
	TenantID    *id.TenantID  `json:"tenant_id,omitempty"`
	Scope       StandardScope `json:"scope"`
	Code        string        `json:"code"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Owner       string        `json:"owner"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func NewStandard(standardID id.StandardID, tenantID *id.TenantID, code, name, description, owner string, now time.Time) (*Standard, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "standard code cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "standard name cannot be empty")
	}
	scope := ScopeTenant
	if tenantID == nil {
		scope = ScopeGlobal
	}
	return &Standard{
		ID:          standardID,
		TenantID:    tenantID,
		Scope:       scope,
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(description),
		Owner:       strings.TrimSpace(owner),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// VisibleTo reports whether a tenant may read this standard.
func (s *Standard) VisibleTo(tenantID id.TenantID) bool {
	return s.Scope == ScopeGlobal || (s.TenantID != nil && *s.TenantID == tenantID)
}

// OwnedBy reports whether a tenant may modify this standard. Global
// standards are admin-managed.
func (s *Standard) OwnedBy(tenantID id.TenantID) bool {
	return s.TenantID != nil && *s.TenantID == tenantID
}

// VersionStatus is the lifecycle of a standard version.
type VersionStatus string

const (
	VersionDraft     VersionStatus = "draft"
	VersionPublished VersionStatus = "published"
	VersionRetired   VersionStatus = "retired"
)

// StandardVersion pins a control set. Once locked, its controls reject
// every mutation.
type StandardVersion struct {
	ID         id.VersionID  `json:"id"`
	StandardID id.StandardID `json:"standard_id"`
	Version    string        `json:"version"`
	Status     VersionStatus `json:"status"`
	LockedAt   *time.Time    `json:"locked_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

func NewStandardVersion(versionID id.VersionID, standardID id.StandardID, label string, now time.Time) (*StandardVersion, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "version label cannot be empty")
	}
	return &StandardVersion{
		ID:         versionID,
		StandardID: standardID,
		Version:    label,
		Status:     VersionDraft,
		CreatedAt:  now,
	}, nil
}

func (v *StandardVersion) IsLocked() bool {
	return v.LockedAt != nil
}

// Lock freezes the version's control set and publishes it.
func (v *StandardVersion) Lock(now time.Time) error {
	if v.IsLocked() {
		return dErrors.New(dErrors.CodeConflict, "version is already locked")
	}
	v.LockedAt = &now
	v.Status = VersionPublished
	return nil
}
