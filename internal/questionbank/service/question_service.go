package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"conforma/internal/questionbank/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

type CreateQuestionInput struct {
	Code          string
	Text          string
	QuestionType  models.QuestionType
	ScaleType     models.ScaleType
	Guidance      string
	EvidenceHints string
}

// CreateQuestion adds a bank question and seeds the canonical option set for
// its scale. Likert questions get the five maturity options, yes/no gets
// two; free-form scales start without options.
func (s *Service) CreateQuestion(ctx context.Context, tenantID id.TenantID, in CreateQuestionInput) (*models.Question, error) {
	question, err := models.NewQuestion(id.NewQuestionID(), tenantID, in.Code, in.Text,
		in.QuestionType, in.ScaleType, in.Guidance, in.EvidenceHints, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	defaults := models.DefaultOptions(question.ID, question.ScaleType)

	err = s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.questions.CreateIfCodeAvailable(txCtx, question); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "question code already in use")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create question")
		}
		for _, option := range defaults {
			if err := s.options.Create(txCtx, option); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed options")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncQuestionsCreated()
	}
	return question, nil
}

func (s *Service) GetQuestion(ctx context.Context, tenantID id.TenantID, questionID id.QuestionID) (*models.Question, error) {
	question, err := s.questions.FindByID(ctx, tenantID, questionID)
	if err != nil {
		return nil, notFound(err, "question")
	}
	return question, nil
}

func (s *Service) ListQuestions(ctx context.Context, tenantID id.TenantID) ([]*models.Question, error) {
	questions, err := s.questions.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list questions")
	}
	return questions, nil
}

type UpdateQuestionInput struct {
	Text          *string
	Guidance      *string
	EvidenceHints *string
	Status        *models.QuestionStatus
}

// UpdateQuestion applies partial updates. Code, type, and scale are fixed
// once created; changing them would silently redefine existing mappings.
func (s *Service) UpdateQuestion(ctx context.Context, tenantID id.TenantID, questionID id.QuestionID, in UpdateQuestionInput) (*models.Question, error) {
	question, err := s.questions.FindByID(ctx, tenantID, questionID)
	if err != nil {
		return nil, notFound(err, "question")
	}
	if in.Text != nil {
		text := strings.TrimSpace(*in.Text)
		if text == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "question text cannot be empty")
		}
		question.Text = text
	}
	if in.Guidance != nil {
		question.Guidance = strings.TrimSpace(*in.Guidance)
	}
	if in.EvidenceHints != nil {
		question.EvidenceHints = strings.TrimSpace(*in.EvidenceHints)
	}
	if in.Status != nil {
		switch *in.Status {
		case models.QuestionActive, models.QuestionInactive:
			question.Status = *in.Status
		default:
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown question status %q", *in.Status)
		}
	}
	question.UpdatedAt = requestcontext.Now(ctx)
	if err := s.questions.Update(ctx, question); err != nil {
		return nil, notFound(err, "question")
	}
	return question, nil
}

// DeactivateQuestion keeps existing mappings but excludes the question from
// future materialization.
func (s *Service) DeactivateQuestion(ctx context.Context, tenantID id.TenantID, questionID id.QuestionID) (*models.Question, error) {
	inactive := models.QuestionInactive
	return s.UpdateQuestion(ctx, tenantID, questionID, UpdateQuestionInput{Status: &inactive})
}

type AddOptionInput struct {
	Value     string
	Label     string
	Score     float64
	SortOrder int
}

func (s *Service) AddOption(ctx context.Context, tenantID id.TenantID, questionID id.QuestionID, in AddOptionInput) (*models.QuestionOption, error) {
	if _, err := s.questions.FindByID(ctx, tenantID, questionID); err != nil {
		return nil, notFound(err, "question")
	}
	option, err := models.NewQuestionOption(questionID, in.Value, in.Label, in.Score, in.SortOrder)
	if err != nil {
		return nil, err
	}
	if err := s.options.Create(ctx, option); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "option value already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create option")
	}
	return option, nil
}

func (s *Service) ListOptions(ctx context.Context, tenantID id.TenantID, questionID id.QuestionID) ([]*models.QuestionOption, error) {
	if _, err := s.questions.FindByID(ctx, tenantID, questionID); err != nil {
		return nil, notFound(err, "question")
	}
	options, err := s.options.ListByQuestion(ctx, questionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list options")
	}
	return options, nil
}

func (s *Service) RemoveOption(ctx context.Context, tenantID id.TenantID, questionID id.QuestionID, optionID uuid.UUID) error {
	if _, err := s.questions.FindByID(ctx, tenantID, questionID); err != nil {
		return notFound(err, "question")
	}
	if err := s.options.Delete(ctx, questionID, optionID); err != nil {
		return notFound(err, "option")
	}
	return nil
}
