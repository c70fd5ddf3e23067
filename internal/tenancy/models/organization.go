package models

import (
	"strings"
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// Organization is a legal entity under a tenant. Business units hang off an
// organization; assessments are scoped to business units.
type Organization struct {
	ID        id.OrgID    `json:"id"`
	TenantID  id.TenantID `json:"tenant_id"`
	LegalName string      `json:"legal_name"`
	Sector    string      `json:"sector,omitempty"`
	Regulator string      `json:"regulator,omitempty"`
	SizeBand  string      `json:"size_band,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func NewOrganization(orgID id.OrgID, tenantID id.TenantID, legalName, sector, regulator, sizeBand string, now time.Time) (*Organization, error) {
	legalName = strings.TrimSpace(legalName)
	if legalName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization legal name cannot be empty")
	}
	return &Organization{
		ID:        orgID,
		TenantID:  tenantID,
		LegalName: legalName,
		Sector:    strings.TrimSpace(sector),
		Regulator: strings.TrimSpace(regulator),
		SizeBand:  strings.TrimSpace(sizeBand),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// BusinessUnitStatus is the lifecycle state of a business unit.
type BusinessUnitStatus string

const (
	BusinessUnitActive   BusinessUnitStatus = "active"
	BusinessUnitInactive BusinessUnitStatus = "inactive"
	BusinessUnitMerged   BusinessUnitStatus = "merged"
)

func (s BusinessUnitStatus) Valid() bool {
	switch s {
	case BusinessUnitActive, BusinessUnitInactive, BusinessUnitMerged:
		return true
	}
	return false
}

// BusinessUnit is a node in the organizational tree.
//
// Invariants:
//   - ParentID, when set, must reference a unit in the same organization
//   - The parent chain must never cycle back to the unit
//   - (tenant, organization, name) is unique
type BusinessUnit struct {
	ID             id.BusinessUnitID  `json:"id"`
	TenantID       id.TenantID        `json:"tenant_id"`
	OrganizationID id.OrgID           `json:"organization_id"`
	ParentID       *id.BusinessUnitID `json:"parent_id,omitempty"`
	Name           string             `json:"name"`
	Status         BusinessUnitStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func NewBusinessUnit(buID id.BusinessUnitID, tenantID id.TenantID, orgID id.OrgID, parentID *id.BusinessUnitID, name string, now time.Time) (*BusinessUnit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "business unit name cannot be empty")
	}
	return &BusinessUnit{
		ID:             buID,
		TenantID:       tenantID,
		OrganizationID: orgID,
		ParentID:       parentID,
		Name:           name,
		Status:         BusinessUnitActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
