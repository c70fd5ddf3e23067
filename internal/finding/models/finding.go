// Package models holds the finding and remediation domain types.
package models

import (
	"fmt"
	"strings"
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// Severity ranks how bad a finding is.
type Severity string

const (
	SeverityCritical      Severity = "CRITICAL"
	SeverityHigh          Severity = "HIGH"
	SeverityMedium        Severity = "MEDIUM"
	SeverityLow           Severity = "LOW"
	SeverityInformational Severity = "INFORMATIONAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInformational:
		return true
	}
	return false
}

// FindingStatus is the finding lifecycle.
type FindingStatus string

const (
	FindingOpen         FindingStatus = "OPEN"
	FindingInProgress   FindingStatus = "IN_PROGRESS"
	FindingResolved     FindingStatus = "RESOLVED"
	FindingClosed       FindingStatus = "CLOSED"
	FindingRiskAccepted FindingStatus = "RISK_ACCEPTED"
)

// findingTransitions is the fixed table. Closed is terminal; resolved and
// risk-accepted findings can reopen.
var findingTransitions = map[FindingStatus][]FindingStatus{
	FindingOpen:         {FindingInProgress, FindingRiskAccepted},
	FindingInProgress:   {FindingResolved, FindingRiskAccepted, FindingOpen},
	FindingResolved:     {FindingClosed, FindingOpen},
	FindingRiskAccepted: {FindingOpen},
	FindingClosed:       {},
}

func (s FindingStatus) Valid() bool {
	_, ok := findingTransitions[s]
	return ok
}

func (s FindingStatus) CanTransitionTo(next FindingStatus) bool {
	for _, allowed := range findingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Finding is one identified gap, usually raised from an assessment answer.
type Finding struct {
	ID           id.FindingID     `json:"id"`
	TenantID     id.TenantID      `json:"tenant_id"`
	Reference    string           `json:"reference"`
	AssessmentID *id.AssessmentID `json:"assessment_id,omitempty"`
	ResponseID   *id.ResponseID   `json:"response_id,omitempty"`
	ControlID    *id.ControlID    `json:"control_id,omitempty"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Severity     Severity         `json:"severity"`
	Status       FindingStatus    `json:"status"`
	OwnerID      *id.UserID       `json:"owner_id,omitempty"`
	DueDate      *time.Time       `json:"due_date,omitempty"`
	ResolvedAt   *time.Time       `json:"resolved_at,omitempty"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
	CreatedBy    id.UserID        `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Reference builds the tenant-scoped finding number. The tenant prefix is
// the first six hex digits of the tenant id.
func Reference(tenantID id.TenantID, number int) string {
	hex := strings.ReplaceAll(tenantID.String(), "-", "")
	return fmt.Sprintf("FND-%s-%04d", strings.ToUpper(hex[:6]), number)
}

func NewFinding(findingID id.FindingID, tenantID id.TenantID, reference, title, description string,
	severity Severity, createdBy id.UserID, now time.Time) (*Finding, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "finding title cannot be empty")
	}
	if !severity.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown severity %q", severity)
	}
	return &Finding{
		ID:          findingID,
		TenantID:    tenantID,
		Reference:   reference,
		Title:       title,
		Description: description,
		Severity:    severity,
		Status:      FindingOpen,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition moves the finding along the table and stamps the resolution
// dates. Reopening clears them.
func (f *Finding) Transition(next FindingStatus, now time.Time) error {
	if !f.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeConflict, "cannot transition finding from %s to %s", f.Status, next)
	}
	f.Status = next
	f.UpdatedAt = now
	switch next {
	case FindingResolved:
		t := now
		f.ResolvedAt = &t
	case FindingClosed:
		t := now
		f.ClosedAt = &t
	case FindingOpen:
		f.ResolvedAt = nil
		f.ClosedAt = nil
	}
	return nil
}

// Overdue reports whether an unresolved finding has passed its due date.
func (f *Finding) Overdue(now time.Time) bool {
	if f.DueDate == nil {
		return false
	}
	switch f.Status {
	case FindingResolved, FindingClosed, FindingRiskAccepted:
		return false
	}
	return now.After(*f.DueDate)
}
