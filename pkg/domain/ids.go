// Package domain defines the typed identifiers shared across modules.
//
// Every aggregate gets its own UUID-backed type so a TenantID can never be
// passed where an AssessmentID is expected. Parse helpers enforce the trust
// boundary invariant: IDs must be valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "conforma/pkg/domain-errors"
)

func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is required", kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is not a valid UUID", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id must not be the nil UUID", kind)
	}
	return parsed, nil
}

// TenantID identifies a tenant, the top-level isolation boundary.
type TenantID uuid.UUID

func NewTenantID() TenantID                { return TenantID(uuid.New()) }
func (i TenantID) String() string          { return uuid.UUID(i).String() }
func (i TenantID) IsNil() bool             { return uuid.UUID(i) == uuid.Nil }
func (i TenantID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *TenantID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "tenant")
	if err != nil {
		return err
	}
	*i = TenantID(parsed)
	return nil
}

func ParseTenantID(raw string) (TenantID, error) {
	parsed, err := parseUUID(raw, "tenant")
	return TenantID(parsed), err
}

// OrgID identifies an organization (legal entity) within a tenant.
type OrgID uuid.UUID

func NewOrgID() OrgID                  { return OrgID(uuid.New()) }
func (i OrgID) String() string         { return uuid.UUID(i).String() }
func (i OrgID) IsNil() bool            { return uuid.UUID(i) == uuid.Nil }
func (i OrgID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *OrgID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "organization")
	if err != nil {
		return err
	}
	*i = OrgID(parsed)
	return nil
}

func ParseOrgID(raw string) (OrgID, error) {
	parsed, err := parseUUID(raw, "organization")
	return OrgID(parsed), err
}

// BusinessUnitID identifies a node in a tenant's business-unit tree.
type BusinessUnitID uuid.UUID

func NewBusinessUnitID() BusinessUnitID        { return BusinessUnitID(uuid.New()) }
func (i BusinessUnitID) String() string        { return uuid.UUID(i).String() }
func (i BusinessUnitID) IsNil() bool           { return uuid.UUID(i) == uuid.Nil }
func (i BusinessUnitID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *BusinessUnitID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "business unit")
	if err != nil {
		return err
	}
	*i = BusinessUnitID(parsed)
	return nil
}

func ParseBusinessUnitID(raw string) (BusinessUnitID, error) {
	parsed, err := parseUUID(raw, "business unit")
	return BusinessUnitID(parsed), err
}

// UserID identifies an application user.
type UserID uuid.UUID

func NewUserID() UserID                 { return UserID(uuid.New()) }
func (i UserID) String() string         { return uuid.UUID(i).String() }
func (i UserID) IsNil() bool            { return uuid.UUID(i) == uuid.Nil }
func (i UserID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *UserID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "user")
	if err != nil {
		return err
	}
	*i = UserID(parsed)
	return nil
}

func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user")
	return UserID(parsed), err
}

// RoleID identifies a tenant role.
type RoleID uuid.UUID

func NewRoleID() RoleID                 { return RoleID(uuid.New()) }
func (i RoleID) String() string         { return uuid.UUID(i).String() }
func (i RoleID) IsNil() bool            { return uuid.UUID(i) == uuid.Nil }
func (i RoleID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *RoleID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "role")
	if err != nil {
		return err
	}
	*i = RoleID(parsed)
	return nil
}

func ParseRoleID(raw string) (RoleID, error) {
	parsed, err := parseUUID(raw, "role")
	return RoleID(parsed), err
}

// PermissionID identifies an entry in the global permission catalog.
type PermissionID uuid.UUID

func NewPermissionID() PermissionID        { return PermissionID(uuid.New()) }
func (i PermissionID) String() string      { return uuid.UUID(i).String() }
func (i PermissionID) IsNil() bool         { return uuid.UUID(i) == uuid.Nil }
func (i PermissionID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *PermissionID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "permission")
	if err != nil {
		return err
	}
	*i = PermissionID(parsed)
	return nil
}

func ParsePermissionID(raw string) (PermissionID, error) {
	parsed, err := parseUUID(raw, "permission")
	return PermissionID(parsed), err
}

// StandardID identifies a compliance standard.
type StandardID uuid.UUID

func NewStandardID() StandardID        { return StandardID(uuid.New()) }
func (i StandardID) String() string    { return uuid.UUID(i).String() }
func (i StandardID) IsNil() bool       { return uuid.UUID(i) == uuid.Nil }
func (i StandardID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *StandardID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "standard")
	if err != nil {
		return err
	}
	*i = StandardID(parsed)
	return nil
}

func ParseStandardID(raw string) (StandardID, error) {
	parsed, err := parseUUID(raw, "standard")
	return StandardID(parsed), err
}

// VersionID identifies a released version of a standard.
type VersionID uuid.UUID

func NewVersionID() VersionID          { return VersionID(uuid.New()) }
func (i VersionID) String() string     { return uuid.UUID(i).String() }
func (i VersionID) IsNil() bool        { return uuid.UUID(i) == uuid.Nil }
func (i VersionID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *VersionID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "standard version")
	if err != nil {
		return err
	}
	*i = VersionID(parsed)
	return nil
}

func ParseVersionID(raw string) (VersionID, error) {
	parsed, err := parseUUID(raw, "standard version")
	return VersionID(parsed), err
}

// ControlID identifies a node in a standard version's control tree.
type ControlID uuid.UUID

func NewControlID() ControlID          { return ControlID(uuid.New()) }
func (i ControlID) String() string     { return uuid.UUID(i).String() }
func (i ControlID) IsNil() bool        { return uuid.UUID(i) == uuid.Nil }
func (i ControlID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *ControlID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "control")
	if err != nil {
		return err
	}
	*i = ControlID(parsed)
	return nil
}

func ParseControlID(raw string) (ControlID, error) {
	parsed, err := parseUUID(raw, "control")
	return ControlID(parsed), err
}

// QuestionID identifies a reusable question-bank entry.
type QuestionID uuid.UUID

func NewQuestionID() QuestionID        { return QuestionID(uuid.New()) }
func (i QuestionID) String() string    { return uuid.UUID(i).String() }
func (i QuestionID) IsNil() bool       { return uuid.UUID(i) == uuid.Nil }
func (i QuestionID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *QuestionID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "question")
	if err != nil {
		return err
	}
	*i = QuestionID(parsed)
	return nil
}

func ParseQuestionID(raw string) (QuestionID, error) {
	parsed, err := parseUUID(raw, "question")
	return QuestionID(parsed), err
}

// AssessmentID identifies an assessment instance.
type AssessmentID uuid.UUID

func NewAssessmentID() AssessmentID        { return AssessmentID(uuid.New()) }
func (i AssessmentID) String() string      { return uuid.UUID(i).String() }
func (i AssessmentID) IsNil() bool         { return uuid.UUID(i) == uuid.Nil }
func (i AssessmentID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *AssessmentID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "assessment")
	if err != nil {
		return err
	}
	*i = AssessmentID(parsed)
	return nil
}

func ParseAssessmentID(raw string) (AssessmentID, error) {
	parsed, err := parseUUID(raw, "assessment")
	return AssessmentID(parsed), err
}

// AssessmentQuestionID identifies a materialized question within an assessment.
type AssessmentQuestionID uuid.UUID

func NewAssessmentQuestionID() AssessmentQuestionID { return AssessmentQuestionID(uuid.New()) }
func (i AssessmentQuestionID) String() string       { return uuid.UUID(i).String() }
func (i AssessmentQuestionID) IsNil() bool          { return uuid.UUID(i) == uuid.Nil }
func (i AssessmentQuestionID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *AssessmentQuestionID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "assessment question")
	if err != nil {
		return err
	}
	*i = AssessmentQuestionID(parsed)
	return nil
}

func ParseAssessmentQuestionID(raw string) (AssessmentQuestionID, error) {
	parsed, err := parseUUID(raw, "assessment question")
	return AssessmentQuestionID(parsed), err
}

// AssignmentID identifies a question-to-user work assignment.
type AssignmentID uuid.UUID

func NewAssignmentID() AssignmentID        { return AssignmentID(uuid.New()) }
func (i AssignmentID) String() string      { return uuid.UUID(i).String() }
func (i AssignmentID) IsNil() bool         { return uuid.UUID(i) == uuid.Nil }
func (i AssignmentID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *AssignmentID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "assignment")
	if err != nil {
		return err
	}
	*i = AssignmentID(parsed)
	return nil
}

func ParseAssignmentID(raw string) (AssignmentID, error) {
	parsed, err := parseUUID(raw, "assignment")
	return AssignmentID(parsed), err
}

// ResponseID identifies a response to an assessment question.
type ResponseID uuid.UUID

func NewResponseID() ResponseID        { return ResponseID(uuid.New()) }
func (i ResponseID) String() string    { return uuid.UUID(i).String() }
func (i ResponseID) IsNil() bool       { return uuid.UUID(i) == uuid.Nil }
func (i ResponseID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *ResponseID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "response")
	if err != nil {
		return err
	}
	*i = ResponseID(parsed)
	return nil
}

func ParseResponseID(raw string) (ResponseID, error) {
	parsed, err := parseUUID(raw, "response")
	return ResponseID(parsed), err
}

// EvidenceID identifies an uploaded evidence record.
type EvidenceID uuid.UUID

func NewEvidenceID() EvidenceID        { return EvidenceID(uuid.New()) }
func (i EvidenceID) String() string    { return uuid.UUID(i).String() }
func (i EvidenceID) IsNil() bool       { return uuid.UUID(i) == uuid.Nil }
func (i EvidenceID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *EvidenceID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "evidence")
	if err != nil {
		return err
	}
	*i = EvidenceID(parsed)
	return nil
}

func ParseEvidenceID(raw string) (EvidenceID, error) {
	parsed, err := parseUUID(raw, "evidence")
	return EvidenceID(parsed), err
}

// FindingID identifies a compliance finding.
type FindingID uuid.UUID

func NewFindingID() FindingID          { return FindingID(uuid.New()) }
func (i FindingID) String() string     { return uuid.UUID(i).String() }
func (i FindingID) IsNil() bool        { return uuid.UUID(i) == uuid.Nil }
func (i FindingID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *FindingID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "finding")
	if err != nil {
		return err
	}
	*i = FindingID(parsed)
	return nil
}

func ParseFindingID(raw string) (FindingID, error) {
	parsed, err := parseUUID(raw, "finding")
	return FindingID(parsed), err
}

// RemediationID identifies a remediation action attached to a finding.
type RemediationID uuid.UUID

func NewRemediationID() RemediationID      { return RemediationID(uuid.New()) }
func (i RemediationID) String() string     { return uuid.UUID(i).String() }
func (i RemediationID) IsNil() bool        { return uuid.UUID(i) == uuid.Nil }
func (i RemediationID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *RemediationID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "remediation action")
	if err != nil {
		return err
	}
	*i = RemediationID(parsed)
	return nil
}

func ParseRemediationID(raw string) (RemediationID, error) {
	parsed, err := parseUUID(raw, "remediation action")
	return RemediationID(parsed), err
}

// TaskID identifies a task within a remediation action.
type TaskID uuid.UUID

func NewTaskID() TaskID                { return TaskID(uuid.New()) }
func (i TaskID) String() string        { return uuid.UUID(i).String() }
func (i TaskID) IsNil() bool           { return uuid.UUID(i) == uuid.Nil }
func (i TaskID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (i *TaskID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "remediation task")
	if err != nil {
		return err
	}
	*i = TaskID(parsed)
	return nil
}

func ParseTaskID(raw string) (TaskID, error) {
	parsed, err := parseUUID(raw, "remediation task")
	return TaskID(parsed), err
}
