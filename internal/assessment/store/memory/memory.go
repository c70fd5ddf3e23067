// Package memory provides in-memory assessment stores for tests and local
// development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"conforma/internal/assessment/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// AssessmentStore keeps assessments in memory.
type AssessmentStore struct {
	mu          sync.RWMutex
	assessments map[id.AssessmentID]*models.Assessment
}

func NewAssessmentStore() *AssessmentStore {
	return &AssessmentStore{assessments: make(map[id.AssessmentID]*models.Assessment)}
}

func (s *AssessmentStore) CreateIfCodeAvailable(_ context.Context, assessment *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.assessments {
		if existing.TenantID == assessment.TenantID && strings.EqualFold(existing.Code, assessment.Code) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.assessments[assessment.ID] = cloneAssessment(assessment)
	return nil
}

func (s *AssessmentStore) FindByID(_ context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*models.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assessments[assessmentID]
	if !ok || a.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return cloneAssessment(a), nil
}

func (s *AssessmentStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Assessment
	for _, a := range s.assessments {
		if a.TenantID == tenantID {
			out = append(out, cloneAssessment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *AssessmentStore) Update(_ context.Context, assessment *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assessments[assessment.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.assessments[assessment.ID] = cloneAssessment(assessment)
	return nil
}

func (s *AssessmentStore) Execute(_ context.Context, tenantID id.TenantID, assessmentID id.AssessmentID,
	validate func(*models.Assessment) error, mutate func(*models.Assessment)) (*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assessments[assessmentID]
	if !ok || a.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(cloneAssessment(a)); err != nil {
		return nil, err
	}
	mutate(a)
	return cloneAssessment(a), nil
}

func cloneAssessment(a *models.Assessment) *models.Assessment {
	clone := *a
	if a.BusinessUnitID != nil {
		bu := *a.BusinessUnitID
		clone.BusinessUnitID = &bu
	}
	if a.StartDate != nil {
		t := *a.StartDate
		clone.StartDate = &t
	}
	if a.DueDate != nil {
		t := *a.DueDate
		clone.DueDate = &t
	}
	return &clone
}

// ScopeStore keeps assessment scopes in memory.
type ScopeStore struct {
	mu     sync.RWMutex
	scopes []*models.Scope
}

func NewScopeStore() *ScopeStore {
	return &ScopeStore{}
}

func (s *ScopeStore) Create(_ context.Context, scope *models.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.scopes {
		if existing.AssessmentID == scope.AssessmentID && existing.ControlID == scope.ControlID {
			return sentinel.ErrAlreadyUsed
		}
	}
	clone := *scope
	s.scopes = append(s.scopes, &clone)
	return nil
}

func (s *ScopeStore) ListByAssessment(_ context.Context, assessmentID id.AssessmentID) ([]*models.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Scope
	for _, scope := range s.scopes {
		if scope.AssessmentID == assessmentID {
			clone := *scope
			out = append(out, &clone)
		}
	}
	return out, nil
}

// QuestionStore keeps materialized assessment questions in memory.
type QuestionStore struct {
	mu        sync.RWMutex
	questions map[id.AssessmentQuestionID]*models.Question
}

func NewQuestionStore() *QuestionStore {
	return &QuestionStore{questions: make(map[id.AssessmentQuestionID]*models.Question)}
}

func (s *QuestionStore) Create(_ context.Context, question *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.questions {
		if existing.AssessmentID == question.AssessmentID &&
			existing.ControlID == question.ControlID &&
			existing.QuestionID == question.QuestionID {
			return sentinel.ErrAlreadyUsed
		}
	}
	clone := *question
	s.questions[question.ID] = &clone
	return nil
}

func (s *QuestionStore) FindByID(_ context.Context, assessmentID id.AssessmentID, questionID id.AssessmentQuestionID) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questions[questionID]
	if !ok || q.AssessmentID != assessmentID {
		return nil, sentinel.ErrNotFound
	}
	clone := *q
	return &clone, nil
}

func (s *QuestionStore) ListByAssessment(_ context.Context, assessmentID id.AssessmentID) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Question
	for _, q := range s.questions {
		if q.AssessmentID == assessmentID {
			clone := *q
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ControlID != out[j].ControlID {
			return out[i].ControlID.String() < out[j].ControlID.String()
		}
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].QuestionCode < out[j].QuestionCode
	})
	return out, nil
}

// AssignmentStore keeps assignments in memory.
type AssignmentStore struct {
	mu          sync.RWMutex
	assignments map[id.AssignmentID]*models.Assignment
}

func NewAssignmentStore() *AssignmentStore {
	return &AssignmentStore{assignments: make(map[id.AssignmentID]*models.Assignment)}
}

func (s *AssignmentStore) CreateIfAbsent(_ context.Context, assignment *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.assignments {
		if existing.AssessmentID == assignment.AssessmentID &&
			existing.AssigneeID == assignment.AssigneeID &&
			sameQuestion(existing.QuestionID, assignment.QuestionID) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.assignments[assignment.ID] = cloneAssignment(assignment)
	return nil
}

func (s *AssignmentStore) FindByID(_ context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (*models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[assignmentID]
	if !ok || a.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return cloneAssignment(a), nil
}

func (s *AssignmentStore) ListByAssessment(_ context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Assignment
	for _, a := range s.assignments {
		if a.TenantID == tenantID && a.AssessmentID == assessmentID {
			out = append(out, cloneAssignment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *AssignmentStore) Update(_ context.Context, assignment *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assignments[assignment.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.assignments[assignment.ID] = cloneAssignment(assignment)
	return nil
}

func (s *AssignmentStore) Delete(_ context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignments[assignmentID]
	if !ok || a.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	delete(s.assignments, assignmentID)
	return nil
}

func sameQuestion(a, b *id.AssessmentQuestionID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneAssignment(a *models.Assignment) *models.Assignment {
	clone := *a
	if a.QuestionID != nil {
		q := *a.QuestionID
		clone.QuestionID = &q
	}
	return &clone
}
