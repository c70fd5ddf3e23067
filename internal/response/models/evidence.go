package models

import (
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// EvidenceStatus is the validation state of an uploaded file.
type EvidenceStatus string

const (
	EvidencePending EvidenceStatus = "pending"
	EvidenceValid   EvidenceStatus = "valid"
	EvidenceInvalid EvidenceStatus = "invalid"
	EvidenceExpired EvidenceStatus = "expired"
)

func (s EvidenceStatus) Valid() bool {
	switch s {
	case EvidencePending, EvidenceValid, EvidenceInvalid, EvidenceExpired:
		return true
	}
	return false
}

// Evidence is the metadata for one uploaded file. The bytes live in the
// blob store under ObjectKey.
type Evidence struct {
	ID          id.EvidenceID  `json:"id"`
	TenantID    id.TenantID    `json:"tenant_id"`
	ObjectKey   string         `json:"object_key"`
	FileName    string         `json:"file_name"`
	ContentType string         `json:"content_type"`
	SizeBytes   int64          `json:"size_bytes"`
	Checksum    string         `json:"checksum_sha256"`
	Status      EvidenceStatus `json:"status"`
	UploadedBy  id.UserID      `json:"uploaded_by"`
	ValidatedBy *id.UserID     `json:"validated_by,omitempty"`
	ValidatedAt *time.Time     `json:"validated_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Validate records a reviewer verdict. Pending is not a verdict.
func (e *Evidence) Validate(status EvidenceStatus, reviewerID id.UserID, now time.Time) error {
	if !status.Valid() || status == EvidencePending {
		return dErrors.Newf(dErrors.CodeValidation, "invalid evidence verdict %q", status)
	}
	e.Status = status
	e.ValidatedBy = &reviewerID
	e.ValidatedAt = &now
	return nil
}

// EvidenceLink attaches evidence to a response. Both rows must belong to
// the same tenant.
type EvidenceLink struct {
	ResponseID id.ResponseID `json:"response_id"`
	EvidenceID id.EvidenceID `json:"evidence_id"`
}
