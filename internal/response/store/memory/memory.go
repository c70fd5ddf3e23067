// Package memory provides in-memory response stores for tests and local
// development.
package memory

import (
	"context"
	"sort"
	"sync"

	"conforma/internal/response/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// ResponseStore keeps responses in memory.
type ResponseStore struct {
	mu        sync.RWMutex
	responses map[id.ResponseID]*models.Response
}

func NewResponseStore() *ResponseStore {
	return &ResponseStore{responses: make(map[id.ResponseID]*models.Response)}
}

func (s *ResponseStore) CreateIfAbsent(_ context.Context, response *models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.responses {
		if existing.QuestionID == response.QuestionID {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.responses[response.ID] = cloneResponse(response)
	return nil
}

func (s *ResponseStore) FindByID(_ context.Context, tenantID id.TenantID, responseID id.ResponseID) (*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.responses[responseID]
	if !ok || r.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return cloneResponse(r), nil
}

func (s *ResponseStore) FindByQuestion(_ context.Context, tenantID id.TenantID, questionID id.AssessmentQuestionID) (*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.responses {
		if r.TenantID == tenantID && r.QuestionID == questionID {
			return cloneResponse(r), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *ResponseStore) ListByAssessment(_ context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Response
	for _, r := range s.responses {
		if r.TenantID == tenantID && r.AssessmentID == assessmentID {
			out = append(out, cloneResponse(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *ResponseStore) Update(_ context.Context, response *models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.responses[response.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.responses[response.ID] = cloneResponse(response)
	return nil
}

func (s *ResponseStore) Execute(_ context.Context, tenantID id.TenantID, responseID id.ResponseID,
	validate func(*models.Response) error, mutate func(*models.Response)) (*models.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.responses[responseID]
	if !ok || r.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(cloneResponse(r)); err != nil {
		return nil, err
	}
	mutate(r)
	return cloneResponse(r), nil
}

func cloneResponse(r *models.Response) *models.Response {
	clone := *r
	clone.Answer = append([]byte(nil), r.Answer...)
	if r.MaturityScore != nil {
		score := *r.MaturityScore
		clone.MaturityScore = &score
	}
	if r.SubmittedBy != nil {
		u := *r.SubmittedBy
		clone.SubmittedBy = &u
	}
	if r.SubmittedAt != nil {
		t := *r.SubmittedAt
		clone.SubmittedAt = &t
	}
	if r.ReviewedBy != nil {
		u := *r.ReviewedBy
		clone.ReviewedBy = &u
	}
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		clone.ReviewedAt = &t
	}
	return &clone
}

// VersionStore keeps response history rows in memory.
type VersionStore struct {
	mu       sync.RWMutex
	versions []*models.Version
}

func NewVersionStore() *VersionStore {
	return &VersionStore{}
}

func (s *VersionStore) Create(_ context.Context, version *models.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.versions {
		if existing.ResponseID == version.ResponseID && existing.Version == version.Version {
			return sentinel.ErrAlreadyUsed
		}
	}
	clone := *version
	clone.Answer = append([]byte(nil), version.Answer...)
	s.versions = append(s.versions, &clone)
	return nil
}

func (s *VersionStore) ListByResponse(_ context.Context, responseID id.ResponseID) ([]*models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Version
	for _, v := range s.versions {
		if v.ResponseID == responseID {
			clone := *v
			clone.Answer = append([]byte(nil), v.Answer...)
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ReviewStore keeps reviewer verdicts in memory.
type ReviewStore struct {
	mu      sync.RWMutex
	reviews []*models.Review
}

func NewReviewStore() *ReviewStore {
	return &ReviewStore{}
}

func (s *ReviewStore) Create(_ context.Context, review *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *review
	s.reviews = append(s.reviews, &clone)
	return nil
}

func (s *ReviewStore) ListByResponse(_ context.Context, responseID id.ResponseID) ([]*models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Review
	for _, r := range s.reviews {
		if r.ResponseID == responseID {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// EvidenceStore keeps evidence metadata in memory.
type EvidenceStore struct {
	mu       sync.RWMutex
	evidence map[id.EvidenceID]*models.Evidence
}

func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{evidence: make(map[id.EvidenceID]*models.Evidence)}
}

func (s *EvidenceStore) Create(_ context.Context, evidence *models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.evidence {
		if existing.ObjectKey == evidence.ObjectKey {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.evidence[evidence.ID] = cloneEvidence(evidence)
	return nil
}

func (s *EvidenceStore) FindByID(_ context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.evidence[evidenceID]
	if !ok || e.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return cloneEvidence(e), nil
}

func (s *EvidenceStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Evidence
	for _, e := range s.evidence {
		if e.TenantID == tenantID {
			out = append(out, cloneEvidence(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *EvidenceStore) Update(_ context.Context, evidence *models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.evidence[evidence.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.evidence[evidence.ID] = cloneEvidence(evidence)
	return nil
}

func cloneEvidence(e *models.Evidence) *models.Evidence {
	clone := *e
	if e.ValidatedBy != nil {
		u := *e.ValidatedBy
		clone.ValidatedBy = &u
	}
	if e.ValidatedAt != nil {
		t := *e.ValidatedAt
		clone.ValidatedAt = &t
	}
	return &clone
}

// LinkStore keeps response-evidence links in memory.
type LinkStore struct {
	mu    sync.RWMutex
	links []*models.EvidenceLink
}

func NewLinkStore() *LinkStore {
	return &LinkStore{}
}

func (s *LinkStore) CreateIfAbsent(_ context.Context, link *models.EvidenceLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.links {
		if existing.ResponseID == link.ResponseID && existing.EvidenceID == link.EvidenceID {
			return sentinel.ErrAlreadyUsed
		}
	}
	clone := *link
	s.links = append(s.links, &clone)
	return nil
}

func (s *LinkStore) Delete(_ context.Context, responseID id.ResponseID, evidenceID id.EvidenceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.links {
		if existing.ResponseID == responseID && existing.EvidenceID == evidenceID {
			s.links = append(s.links[:i], s.links[i+1:]...)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *LinkStore) ListByResponse(_ context.Context, responseID id.ResponseID) ([]id.EvidenceID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []id.EvidenceID
	for _, link := range s.links {
		if link.ResponseID == responseID {
			out = append(out, link.EvidenceID)
		}
	}
	return out, nil
}
