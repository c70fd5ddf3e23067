package service

import (
	"context"
	"errors"
	"time"

	"conforma/internal/finding/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

type CreateFindingInput struct {
	Title        string
	Description  string
	Severity     models.Severity
	AssessmentID *id.AssessmentID
	ResponseID   *id.ResponseID
	ControlID    *id.ControlID
	OwnerID      *id.UserID
	DueDate      *time.Time
}

// CreateFinding opens a finding under the next tenant-scoped reference.
func (s *Service) CreateFinding(ctx context.Context, tenantID id.TenantID, in CreateFindingInput) (*models.Finding, error) {
	number, err := s.sequences.Next(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate finding number")
	}
	now := requestcontext.Now(ctx)
	finding, err := models.NewFinding(id.NewFindingID(), tenantID, models.Reference(tenantID, number),
		in.Title, in.Description, in.Severity, requestcontext.UserID(ctx), now)
	if err != nil {
		return nil, err
	}
	finding.AssessmentID = in.AssessmentID
	finding.ResponseID = in.ResponseID
	finding.ControlID = in.ControlID
	finding.OwnerID = in.OwnerID
	finding.DueDate = in.DueDate

	if err := s.findings.Create(ctx, finding); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create finding")
	}
	if err := s.recordForTenant(ctx, tenantID, audit.EventFindingOpened, "finding",
		finding.ID.String(), finding.Reference); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncFindingsOpened(string(finding.Severity))
	}
	return finding, nil
}

func (s *Service) GetFinding(ctx context.Context, tenantID id.TenantID, findingID id.FindingID) (*models.Finding, error) {
	finding, err := s.findings.FindByID(ctx, tenantID, findingID)
	if err != nil {
		return nil, notFound(err, "finding")
	}
	return finding, nil
}

// FindingFilter narrows finding listings. Zero values mean no constraint.
type FindingFilter struct {
	Status   models.FindingStatus
	Severity models.Severity
	Overdue  bool
}

func (s *Service) ListFindings(ctx context.Context, tenantID id.TenantID, filter FindingFilter) ([]*models.Finding, error) {
	findings, err := s.findings.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list findings")
	}
	now := requestcontext.Now(ctx)
	out := findings[:0]
	for _, f := range findings {
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && f.Severity != filter.Severity {
			continue
		}
		if filter.Overdue && !f.Overdue(now) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

type UpdateFindingInput struct {
	Title       *string
	Description *string
	Severity    *models.Severity
	OwnerID     *id.UserID
	DueDate     *time.Time
	ClearDue    bool
}

// UpdateFinding applies partial updates. Closed findings are immutable.
func (s *Service) UpdateFinding(ctx context.Context, tenantID id.TenantID, findingID id.FindingID, in UpdateFindingInput) (*models.Finding, error) {
	finding, err := s.findings.FindByID(ctx, tenantID, findingID)
	if err != nil {
		return nil, notFound(err, "finding")
	}
	if finding.Status == models.FindingClosed {
		return nil, dErrors.New(dErrors.CodeConflict, "finding is closed")
	}
	if in.Title != nil {
		if *in.Title == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "finding title cannot be empty")
		}
		finding.Title = *in.Title
	}
	if in.Description != nil {
		finding.Description = *in.Description
	}
	if in.Severity != nil {
		if !in.Severity.Valid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown severity %q", *in.Severity)
		}
		finding.Severity = *in.Severity
	}
	if in.OwnerID != nil {
		finding.OwnerID = in.OwnerID
	}
	if in.ClearDue {
		finding.DueDate = nil
	} else if in.DueDate != nil {
		finding.DueDate = in.DueDate
	}
	finding.UpdatedAt = requestcontext.Now(ctx)

	if err := s.findings.Update(ctx, finding); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update finding")
	}
	return finding, nil
}

// TransitionFinding moves a finding along the lifecycle table. Resolution
// dates are stamped by the transition itself.
func (s *Service) TransitionFinding(ctx context.Context, tenantID id.TenantID, findingID id.FindingID, next models.FindingStatus) (*models.Finding, error) {
	if !next.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown finding status %q", next)
	}
	now := requestcontext.Now(ctx)
	finding, err := s.findings.Execute(ctx, tenantID, findingID,
		func(f *models.Finding) error {
			if !f.Status.CanTransitionTo(next) {
				return dErrors.Newf(dErrors.CodeConflict, "cannot transition finding from %s to %s", f.Status, next)
			}
			return nil
		},
		func(f *models.Finding) {
			_ = f.Transition(next, now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "finding not found")
		}
		return nil, err
	}

	event := audit.EventFindingTransitioned
	if next == models.FindingClosed {
		event = audit.EventFindingClosed
	}
	if err := s.recordForTenant(ctx, tenantID, event, "finding",
		finding.ID.String(), string(next)); err != nil {
		return nil, err
	}
	return finding, nil
}
