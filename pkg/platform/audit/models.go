package audit

import (
	"context"
	"time"

	id "conforma/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. Categories
// drive retention and routing: compliance events need tamper-proof storage and
// long retention, security events feed alerting, operations events can be
// sampled.
type EventCategory string

const (
	CategoryCompliance EventCategory = "compliance"
	CategorySecurity   EventCategory = "security"
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It stays
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category   EventCategory
	Timestamp  time.Time
	TenantID   id.TenantID
	ActorID    id.UserID
	Action     string
	ObjectType string // e.g. "assessment", "response", "finding"
	ObjectID   string
	Detail     string // short human-readable context (transition, reason)
	RequestID  string
	ClientIP   string
	UserAgent  string
}

// Store persists audit events. The postgres implementation writes to the
// transactional outbox; the memory implementation backs tests and
// single-node deployments.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// AuditEvent names every action the platform records.
type AuditEvent string

const (
	// Tenancy events
	EventTenantCreated     AuditEvent = "tenant_created"
	EventTenantSuspended   AuditEvent = "tenant_suspended"
	EventTenantReactivated AuditEvent = "tenant_reactivated"
	EventTenantArchived    AuditEvent = "tenant_archived"
	EventOrgCreated        AuditEvent = "organization_created"
	EventBusinessUnitMoved AuditEvent = "business_unit_moved"

	// IAM events
	EventUserCreated       AuditEvent = "user_created"
	EventUserDeactivated   AuditEvent = "user_deactivated"
	EventLoginSucceeded    AuditEvent = "login_succeeded"
	EventLoginFailed       AuditEvent = "login_failed"
	EventAccountLocked     AuditEvent = "account_locked"
	EventTokenRevoked      AuditEvent = "token_revoked"
	EventRoleCreated       AuditEvent = "role_created"
	EventRoleAssigned      AuditEvent = "role_assigned"
	EventRoleUnassigned    AuditEvent = "role_unassigned"
	EventPermissionGranted AuditEvent = "permission_granted"
	EventPermissionRevoked AuditEvent = "permission_revoked"

	// Standards events
	EventStandardCreated  AuditEvent = "standard_created"
	EventVersionLocked    AuditEvent = "standard_version_locked"
	EventControlsImported AuditEvent = "controls_imported"

	// Assessment events
	EventAssessmentCreated      AuditEvent = "assessment_created"
	EventAssessmentTransitioned AuditEvent = "assessment_transitioned"
	EventQuestionsMaterialized  AuditEvent = "questions_materialized"
	EventAssignmentCreated      AuditEvent = "assignment_created"

	// Response events
	EventResponseSubmitted AuditEvent = "response_submitted"
	EventResponseApproved  AuditEvent = "response_approved"
	EventResponseRejected  AuditEvent = "response_rejected"
	EventEvidenceUploaded  AuditEvent = "evidence_uploaded"
	EventEvidenceValidated AuditEvent = "evidence_validated"

	// Finding events
	EventFindingOpened       AuditEvent = "finding_opened"
	EventFindingTransitioned AuditEvent = "finding_transitioned"
	EventFindingClosed       AuditEvent = "finding_closed"
	EventRemediationCreated  AuditEvent = "remediation_created"
)

// eventCategories maps each audit event to its category. Events not listed
// default to operations.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance: regulatory significance, long retention
	EventUserCreated:       CategoryCompliance,
	EventUserDeactivated:   CategoryCompliance,
	EventResponseSubmitted: CategoryCompliance,
	EventResponseApproved:  CategoryCompliance,
	EventResponseRejected:  CategoryCompliance,
	EventEvidenceUploaded:  CategoryCompliance,
	EventEvidenceValidated: CategoryCompliance,
	EventFindingOpened:     CategoryCompliance,
	EventFindingClosed:     CategoryCompliance,
	EventVersionLocked:     CategoryCompliance,

	// Security: feeds alerting and forensics
	EventLoginFailed:       CategorySecurity,
	EventAccountLocked:     CategorySecurity,
	EventTokenRevoked:      CategorySecurity,
	EventTenantSuspended:   CategorySecurity,
	EventPermissionGranted: CategorySecurity,
	EventPermissionRevoked: CategorySecurity,
	EventRoleAssigned:      CategorySecurity,
	EventRoleUnassigned:    CategorySecurity,
}

// Category returns the EventCategory for this audit event.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
