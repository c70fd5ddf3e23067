// Package memory provides in-memory finding stores for tests and local
// development.
package memory

import (
	"context"
	"sort"
	"sync"

	"conforma/internal/finding/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// FindingStore keeps findings in memory.
type FindingStore struct {
	mu       sync.RWMutex
	findings map[id.FindingID]*models.Finding
}

func NewFindingStore() *FindingStore {
	return &FindingStore{findings: make(map[id.FindingID]*models.Finding)}
}

func (s *FindingStore) Create(_ context.Context, finding *models.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.findings {
		if existing.TenantID == finding.TenantID && existing.Reference == finding.Reference {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.findings[finding.ID] = cloneFinding(finding)
	return nil
}

func (s *FindingStore) FindByID(_ context.Context, tenantID id.TenantID, findingID id.FindingID) (*models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.findings[findingID]
	if !ok || f.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return cloneFinding(f), nil
}

func (s *FindingStore) FindByResponse(_ context.Context, tenantID id.TenantID, responseID id.ResponseID) (*models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.findings {
		if f.TenantID == tenantID && f.ResponseID != nil && *f.ResponseID == responseID {
			return cloneFinding(f), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *FindingStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Finding
	for _, f := range s.findings {
		if f.TenantID == tenantID {
			out = append(out, cloneFinding(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	return out, nil
}

func (s *FindingStore) Update(_ context.Context, finding *models.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.findings[finding.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.findings[finding.ID] = cloneFinding(finding)
	return nil
}

func (s *FindingStore) Execute(_ context.Context, tenantID id.TenantID, findingID id.FindingID,
	validate func(*models.Finding) error, mutate func(*models.Finding)) (*models.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.findings[findingID]
	if !ok || f.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(cloneFinding(f)); err != nil {
		return nil, err
	}
	mutate(f)
	return cloneFinding(f), nil
}

func cloneFinding(f *models.Finding) *models.Finding {
	c := *f
	c.AssessmentID = clonePtr(f.AssessmentID)
	c.ResponseID = clonePtr(f.ResponseID)
	c.ControlID = clonePtr(f.ControlID)
	c.OwnerID = clonePtr(f.OwnerID)
	c.DueDate = clonePtr(f.DueDate)
	c.ResolvedAt = clonePtr(f.ResolvedAt)
	c.ClosedAt = clonePtr(f.ClosedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// SequenceStore hands out per-tenant finding numbers.
type SequenceStore struct {
	mu   sync.Mutex
	next map[id.TenantID]int
}

func NewSequenceStore() *SequenceStore {
	return &SequenceStore{next: make(map[id.TenantID]int)}
}

func (s *SequenceStore) Next(_ context.Context, tenantID id.TenantID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next[tenantID]++
	return s.next[tenantID], nil
}

// ActionStore keeps remediation actions in memory.
type ActionStore struct {
	mu      sync.RWMutex
	actions map[id.RemediationID]*models.RemediationAction
}

func NewActionStore() *ActionStore {
	return &ActionStore{actions: make(map[id.RemediationID]*models.RemediationAction)}
}

func (s *ActionStore) Create(_ context.Context, action *models.RemediationAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actions[action.ID] = cloneAction(action)
	return nil
}

func (s *ActionStore) FindByID(_ context.Context, tenantID id.TenantID, actionID id.RemediationID) (*models.RemediationAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.actions[actionID]
	if !ok || a.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return cloneAction(a), nil
}

func (s *ActionStore) ListByFinding(_ context.Context, findingID id.FindingID) ([]*models.RemediationAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RemediationAction
	for _, a := range s.actions {
		if a.FindingID == findingID {
			out = append(out, cloneAction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *ActionStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.RemediationAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RemediationAction
	for _, a := range s.actions {
		if a.TenantID == tenantID {
			out = append(out, cloneAction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *ActionStore) Update(_ context.Context, action *models.RemediationAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.actions[action.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.actions[action.ID] = cloneAction(action)
	return nil
}

func cloneAction(a *models.RemediationAction) *models.RemediationAction {
	c := *a
	c.OwnerID = clonePtr(a.OwnerID)
	c.DueDate = clonePtr(a.DueDate)
	c.CompletedAt = clonePtr(a.CompletedAt)
	c.EstimatedCost = clonePtr(a.EstimatedCost)
	c.ActualCost = clonePtr(a.ActualCost)
	return &c
}

// TaskStore keeps remediation tasks in memory.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[id.TaskID]*models.RemediationTask
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[id.TaskID]*models.RemediationTask)}
}

func (s *TaskStore) Create(_ context.Context, task *models.RemediationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *TaskStore) FindByID(_ context.Context, taskID id.TaskID) (*models.RemediationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneTask(t), nil
}

func (s *TaskStore) ListByAction(_ context.Context, actionID id.RemediationID) ([]*models.RemediationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RemediationTask
	for _, t := range s.tasks {
		if t.ActionID == actionID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *TaskStore) Update(_ context.Context, task *models.RemediationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (s *TaskStore) Delete(_ context.Context, taskID id.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

func cloneTask(t *models.RemediationTask) *models.RemediationTask {
	c := *t
	c.AssigneeID = clonePtr(t.AssigneeID)
	c.DueDate = clonePtr(t.DueDate)
	c.DoneAt = clonePtr(t.DoneAt)
	return &c
}
