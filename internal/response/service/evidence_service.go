package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"

	"conforma/internal/platform/blob"
	"conforma/internal/response/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// UploadEvidence streams the file into the blob store and records its
// metadata. The checksum is computed while streaming so the bytes are read
// once.
func (s *Service) UploadEvidence(ctx context.Context, tenantID id.TenantID,
	fileName, contentType string, r io.Reader) (*models.Evidence, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "file name cannot be empty")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("%s/%s", tenantID.String(), ulid.Make().String())
	hasher := sha256.New()
	info, err := s.blobs.Put(ctx, key, io.TeeReader(r, hasher), contentType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store evidence file")
	}

	now := requestcontext.Now(ctx)
	evidence := &models.Evidence{
		ID:          id.NewEvidenceID(),
		TenantID:    tenantID,
		ObjectKey:   key,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   info.Size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		Status:      models.EvidencePending,
		UploadedBy:  requestcontext.UserID(ctx),
		CreatedAt:   now,
	}
	if err := s.evidence.Create(ctx, evidence); err != nil {
		// Leave no orphan bytes behind when the metadata insert fails.
		_, _ = s.blobs.Delete(ctx, key)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record evidence")
	}
	if err := s.recordForTenant(ctx, tenantID, audit.EventEvidenceUploaded, "evidence",
		evidence.ID.String(), fileName); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncEvidenceUploaded()
	}
	return evidence, nil
}

func (s *Service) GetEvidence(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*models.Evidence, error) {
	evidence, err := s.evidence.FindByID(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, notFound(err, "evidence")
	}
	return evidence, nil
}

func (s *Service) ListEvidence(ctx context.Context, tenantID id.TenantID) ([]*models.Evidence, error) {
	evidence, err := s.evidence.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence")
	}
	return evidence, nil
}

// OpenEvidence returns the file metadata and a reader over its bytes. The
// caller closes the reader.
func (s *Service) OpenEvidence(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*models.Evidence, io.ReadCloser, error) {
	evidence, err := s.evidence.FindByID(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, nil, notFound(err, "evidence")
	}
	_, rc, err := s.blobs.Get(ctx, evidence.ObjectKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "evidence file not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open evidence file")
	}
	return evidence, rc, nil
}

// ValidateEvidence records a reviewer verdict on the file.
func (s *Service) ValidateEvidence(ctx context.Context, tenantID id.TenantID,
	evidenceID id.EvidenceID, status models.EvidenceStatus) (*models.Evidence, error) {
	evidence, err := s.evidence.FindByID(ctx, tenantID, evidenceID)
	if err != nil {
		return nil, notFound(err, "evidence")
	}
	now := requestcontext.Now(ctx)
	if err := evidence.Validate(status, requestcontext.UserID(ctx), now); err != nil {
		return nil, err
	}
	if err := s.evidence.Update(ctx, evidence); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update evidence")
	}
	if err := s.recordForTenant(ctx, tenantID, audit.EventEvidenceValidated, "evidence",
		evidence.ID.String(), string(status)); err != nil {
		return nil, err
	}
	return evidence, nil
}

// LinkEvidence attaches a tenant's evidence to one of its responses.
func (s *Service) LinkEvidence(ctx context.Context, tenantID id.TenantID,
	responseID id.ResponseID, evidenceID id.EvidenceID) error {
	if _, err := s.responses.FindByID(ctx, tenantID, responseID); err != nil {
		return notFound(err, "response")
	}
	if _, err := s.evidence.FindByID(ctx, tenantID, evidenceID); err != nil {
		return notFound(err, "evidence")
	}
	err := s.links.CreateIfAbsent(ctx, &models.EvidenceLink{ResponseID: responseID, EvidenceID: evidenceID})
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeConflict, "evidence already linked")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to link evidence")
	}
	return nil
}

func (s *Service) UnlinkEvidence(ctx context.Context, tenantID id.TenantID,
	responseID id.ResponseID, evidenceID id.EvidenceID) error {
	if _, err := s.responses.FindByID(ctx, tenantID, responseID); err != nil {
		return notFound(err, "response")
	}
	if err := s.links.Delete(ctx, responseID, evidenceID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "evidence link not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to unlink evidence")
	}
	return nil
}

// ListResponseEvidence resolves the evidence rows linked to a response.
func (s *Service) ListResponseEvidence(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) ([]*models.Evidence, error) {
	if _, err := s.responses.FindByID(ctx, tenantID, responseID); err != nil {
		return nil, notFound(err, "response")
	}
	evidenceIDs, err := s.links.ListByResponse(ctx, responseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence links")
	}
	out := make([]*models.Evidence, 0, len(evidenceIDs))
	for _, evidenceID := range evidenceIDs {
		evidence, err := s.evidence.FindByID(ctx, tenantID, evidenceID)
		if err != nil {
			return nil, notFound(err, "evidence")
		}
		out = append(out, evidence)
	}
	return out, nil
}
