// Package memory provides in-process question bank stores.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"conforma/internal/questionbank/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// QuestionStore keeps questions keyed by id.
type QuestionStore struct {
	mu        sync.RWMutex
	questions map[id.QuestionID]*models.Question
}

func NewQuestionStore() *QuestionStore {
	return &QuestionStore{questions: make(map[id.QuestionID]*models.Question)}
}

func cloneQuestion(q *models.Question) *models.Question {
	clone := *q
	return &clone
}

func (s *QuestionStore) CreateIfCodeAvailable(_ context.Context, question *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.questions {
		if existing.TenantID == question.TenantID && strings.EqualFold(existing.Code, question.Code) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.questions[question.ID] = cloneQuestion(question)
	return nil
}

func (s *QuestionStore) FindByID(_ context.Context, tenantID id.TenantID, questionID id.QuestionID) (*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[questionID]
	if !ok || q.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return cloneQuestion(q), nil
}

func (s *QuestionStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Question
	for _, q := range s.questions {
		if q.TenantID == tenantID {
			out = append(out, cloneQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *QuestionStore) Update(_ context.Context, question *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.questions[question.ID]
	if !ok || existing.TenantID != question.TenantID {
		return sentinel.ErrNotFound
	}
	s.questions[question.ID] = cloneQuestion(question)
	return nil
}

// OptionStore keeps question options keyed by id.
type OptionStore struct {
	mu      sync.RWMutex
	options map[uuid.UUID]*models.QuestionOption
}

func NewOptionStore() *OptionStore {
	return &OptionStore{options: make(map[uuid.UUID]*models.QuestionOption)}
}

func cloneOption(o *models.QuestionOption) *models.QuestionOption {
	clone := *o
	return &clone
}

func (s *OptionStore) Create(_ context.Context, option *models.QuestionOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.options {
		if existing.QuestionID == option.QuestionID && strings.EqualFold(existing.Value, option.Value) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.options[option.ID] = cloneOption(option)
	return nil
}

func (s *OptionStore) ListByQuestion(_ context.Context, questionID id.QuestionID) ([]*models.QuestionOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.QuestionOption
	for _, o := range s.options {
		if o.QuestionID == questionID {
			out = append(out, cloneOption(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}

func (s *OptionStore) Delete(_ context.Context, questionID id.QuestionID, optionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.options[optionID]
	if !ok || o.QuestionID != questionID {
		return sentinel.ErrNotFound
	}
	delete(s.options, optionID)
	return nil
}

func (s *OptionStore) DeleteByQuestion(_ context.Context, questionID id.QuestionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for optionID, o := range s.options {
		if o.QuestionID == questionID {
			delete(s.options, optionID)
		}
	}
	return nil
}

// MapStore keeps control-question links keyed by id.
type MapStore struct {
	mu   sync.RWMutex
	maps map[uuid.UUID]*models.ControlQuestionMap
}

func NewMapStore() *MapStore {
	return &MapStore{maps: make(map[uuid.UUID]*models.ControlQuestionMap)}
}

func cloneMap(m *models.ControlQuestionMap) *models.ControlQuestionMap {
	clone := *m
	return &clone
}

func (s *MapStore) CreateIfAbsent(_ context.Context, m *models.ControlQuestionMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.maps {
		if existing.TenantID == m.TenantID && existing.ControlID == m.ControlID && existing.QuestionID == m.QuestionID {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.maps[m.ID] = cloneMap(m)
	return nil
}

func (s *MapStore) Delete(_ context.Context, tenantID id.TenantID, controlID id.ControlID, questionID id.QuestionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for mapID, m := range s.maps {
		if m.TenantID == tenantID && m.ControlID == controlID && m.QuestionID == questionID {
			delete(s.maps, mapID)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *MapStore) ListByControl(_ context.Context, tenantID id.TenantID, controlID id.ControlID) ([]*models.ControlQuestionMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ControlQuestionMap
	for _, m := range s.maps {
		if m.TenantID == tenantID && m.ControlID == controlID {
			out = append(out, cloneMap(m))
		}
	}
	sortMaps(out)
	return out, nil
}

func (s *MapStore) ListByQuestion(_ context.Context, tenantID id.TenantID, questionID id.QuestionID) ([]*models.ControlQuestionMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ControlQuestionMap
	for _, m := range s.maps {
		if m.TenantID == tenantID && m.QuestionID == questionID {
			out = append(out, cloneMap(m))
		}
	}
	sortMaps(out)
	return out, nil
}

func (s *MapStore) ListForControls(_ context.Context, tenantID id.TenantID, controlIDs []id.ControlID) ([]*models.ControlQuestionMap, error) {
	wanted := make(map[id.ControlID]struct{}, len(controlIDs))
	for _, controlID := range controlIDs {
		wanted[controlID] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ControlQuestionMap
	for _, m := range s.maps {
		if m.TenantID != tenantID {
			continue
		}
		if _, ok := wanted[m.ControlID]; ok {
			out = append(out, cloneMap(m))
		}
	}
	sortMaps(out)
	return out, nil
}

func sortMaps(maps []*models.ControlQuestionMap) {
	sort.Slice(maps, func(i, j int) bool {
		if maps[i].ControlID != maps[j].ControlID {
			return maps[i].ControlID.String() < maps[j].ControlID.String()
		}
		return maps[i].SortOrder < maps[j].SortOrder
	})
}
