package models

import (
	"strings"
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusArchived  TenantStatus = "archived"
)

// tenantTransitions is the full transition table. Archived is terminal.
var tenantTransitions = map[TenantStatus][]TenantStatus{
	TenantStatusTrial:     {TenantStatusActive, TenantStatusArchived},
	TenantStatusActive:    {TenantStatusSuspended, TenantStatusArchived},
	TenantStatusSuspended: {TenantStatusActive, TenantStatusArchived},
	TenantStatusArchived:  {},
}

// CanTransitionTo reports whether the status may move to target.
func (s TenantStatus) CanTransitionTo(target TenantStatus) bool {
	for _, allowed := range tenantTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Tenant is the root of every data boundary in the system. Every other
// aggregate carries its tenant id and stores enforce the scope on every read.
//
// Invariants:
//   - Name is non-empty, at most 128 characters, unique case-insensitively
//   - Status follows the transition table; archived is terminal
//   - Suspended and archived tenants cannot authenticate users
type Tenant struct {
	ID        id.TenantID       `json:"id"`
	Name      string            `json:"name"`
	Status    TenantStatus      `json:"status"`
	Settings  map[string]string `json:"settings,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive || t.Status == TenantStatusTrial
}

// CanTransition checks a status change against the transition table.
func (t *Tenant) CanTransition(target TenantStatus) error {
	if !t.Status.CanTransitionTo(target) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"tenant cannot move from %s to %s", t.Status, target)
	}
	return nil
}

// ApplyTransition moves the tenant to target. Call CanTransition first.
func (t *Tenant) ApplyTransition(target TenantStatus, now time.Time) {
	t.Status = target
	t.UpdatedAt = now
}

func NewTenant(tenantID id.TenantID, name string, now time.Time) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name must be 128 characters or less")
	}
	return &Tenant{
		ID:        tenantID,
		Name:      name,
		Status:    TenantStatusTrial,
		Settings:  map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// FeatureFlag is a per-tenant feature toggle.
type FeatureFlag struct {
	TenantID id.TenantID `json:"tenant_id"`
	Flag     string      `json:"flag"`
	Enabled  bool        `json:"enabled"`
}
