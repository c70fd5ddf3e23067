package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"conforma/internal/questionbank/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

type MapQuestionInput struct {
	ControlID   id.ControlID
	QuestionID  id.QuestionID
	IsMandatory *bool
	SortOrder   int
}

// MapQuestion links a bank question to a control node. The control must be
// readable by the tenant (own standard or global); the question must belong
// to the tenant. Mandatory defaults to true.
func (s *Service) MapQuestion(ctx context.Context, tenantID id.TenantID, in MapQuestionInput) (*models.ControlQuestionMap, error) {
	if _, err := s.questions.FindByID(ctx, tenantID, in.QuestionID); err != nil {
		return nil, notFound(err, "question")
	}
	if err := s.controls.ControlVisible(ctx, tenantID, in.ControlID); err != nil {
		return nil, err
	}
	mandatory := true
	if in.IsMandatory != nil {
		mandatory = *in.IsMandatory
	}
	m := models.NewControlQuestionMap(tenantID, in.ControlID, in.QuestionID, mandatory, in.SortOrder, requestcontext.Now(ctx))
	if err := s.maps.CreateIfAbsent(ctx, m); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "question already mapped to this control")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to map question")
	}
	if s.metrics != nil {
		s.metrics.IncMapsCreated()
	}
	return m, nil
}

// BulkMapResult reports one row of a bulk mapping call.
type BulkMapResult struct {
	QuestionID id.QuestionID `json:"question_id"`
	Mapped     bool          `json:"mapped"`
	Reason     string        `json:"reason,omitempty"`
}

// BulkMapQuestions links many questions to one control in a single
// transaction of inserts. Individual rows fail independently, mirroring the
// CSV import posture elsewhere in the catalog.
func (s *Service) BulkMapQuestions(ctx context.Context, tenantID id.TenantID, controlID id.ControlID, questionIDs []id.QuestionID) ([]BulkMapResult, error) {
	if len(questionIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no questions to map")
	}
	if err := s.controls.ControlVisible(ctx, tenantID, controlID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	results := make([]BulkMapResult, 0, len(questionIDs))
	mapped := 0

	err := s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		for i, questionID := range questionIDs {
			if _, err := s.questions.FindByID(txCtx, tenantID, questionID); err != nil {
				results = append(results, BulkMapResult{QuestionID: questionID, Reason: "question not found"})
				continue
			}
			m := models.NewControlQuestionMap(tenantID, controlID, questionID, true, i, now)
			if err := s.maps.CreateIfAbsent(txCtx, m); err != nil {
				if errors.Is(err, sentinel.ErrAlreadyUsed) {
					results = append(results, BulkMapResult{QuestionID: questionID, Reason: "already mapped"})
					continue
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to map question %s", questionID))
			}
			mapped++
			results = append(results, BulkMapResult{QuestionID: questionID, Mapped: true})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AddMapsCreated(mapped)
	}
	return results, nil
}

func (s *Service) UnmapQuestion(ctx context.Context, tenantID id.TenantID, controlID id.ControlID, questionID id.QuestionID) error {
	if err := s.maps.Delete(ctx, tenantID, controlID, questionID); err != nil {
		return notFound(err, "mapping")
	}
	return nil
}

func (s *Service) ListControlMappings(ctx context.Context, tenantID id.TenantID, controlID id.ControlID) ([]*models.ControlQuestionMap, error) {
	if err := s.controls.ControlVisible(ctx, tenantID, controlID); err != nil {
		return nil, err
	}
	maps, err := s.maps.ListByControl(ctx, tenantID, controlID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list mappings")
	}
	return maps, nil
}

func (s *Service) ListQuestionMappings(ctx context.Context, tenantID id.TenantID, questionID id.QuestionID) ([]*models.ControlQuestionMap, error) {
	if _, err := s.questions.FindByID(ctx, tenantID, questionID); err != nil {
		return nil, notFound(err, "question")
	}
	maps, err := s.maps.ListByQuestion(ctx, tenantID, questionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list mappings")
	}
	return maps, nil
}

// MappedQuestion pairs a mapping with its question for materialization.
type MappedQuestion struct {
	Map      *models.ControlQuestionMap
	Question *models.Question
}

// ListMappedQuestions returns the active questions mapped to any of the
// given controls, ordered by control, sort order, then question code.
// Inactive questions stay mapped but are excluded here.
func (s *Service) ListMappedQuestions(ctx context.Context, tenantID id.TenantID, controlIDs []id.ControlID) ([]MappedQuestion, error) {
	if len(controlIDs) == 0 {
		return nil, nil
	}
	maps, err := s.maps.ListForControls(ctx, tenantID, controlIDs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list mappings")
	}

	questions := make(map[id.QuestionID]*models.Question, len(maps))
	var out []MappedQuestion
	for _, m := range maps {
		question, ok := questions[m.QuestionID]
		if !ok {
			question, err = s.questions.FindByID(ctx, tenantID, m.QuestionID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					continue
				}
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load question")
			}
			questions[m.QuestionID] = question
		}
		if !question.IsActive() {
			continue
		}
		out = append(out, MappedQuestion{Map: m, Question: question})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Map.ControlID != out[j].Map.ControlID {
			return out[i].Map.ControlID.String() < out[j].Map.ControlID.String()
		}
		if out[i].Map.SortOrder != out[j].Map.SortOrder {
			return out[i].Map.SortOrder < out[j].Map.SortOrder
		}
		return out[i].Question.Code < out[j].Question.Code
	})
	return out, nil
}

// ListQuestionOptions exposes option lookups for scoring without a tenancy
// check round-trip; callers already hold the question.
func (s *Service) ListQuestionOptions(ctx context.Context, questionID id.QuestionID) ([]*models.QuestionOption, error) {
	options, err := s.options.ListByQuestion(ctx, questionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list options")
	}
	return options, nil
}
