// Package models holds the question bank domain types.
package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// QuestionType drives how the answer payload is interpreted.
type QuestionType string

const (
	TypeSingleChoice   QuestionType = "single_choice"
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeText           QuestionType = "text"
	TypeFileUpload     QuestionType = "file_upload"
)

func (t QuestionType) Valid() bool {
	switch t {
	case TypeSingleChoice, TypeMultipleChoice, TypeText, TypeFileUpload:
		return true
	}
	return false
}

// ScaleType is the scoring scale a question's options follow.
type ScaleType string

const (
	ScaleLikert  ScaleType = "LIKERT_1_5"
	ScaleYesNo   ScaleType = "YES_NO"
	ScaleText    ScaleType = "TEXT"
	ScaleNumeric ScaleType = "NUMERIC"
)

func (t ScaleType) Valid() bool {
	switch t {
	case ScaleLikert, ScaleYesNo, ScaleText, ScaleNumeric:
		return true
	}
	return false
}

// QuestionStatus keeps deactivated questions mapped but out of new
// assessments.
type QuestionStatus string

const (
	QuestionActive   QuestionStatus = "active"
	QuestionInactive QuestionStatus = "inactive"
)

// Question is one reusable bank entry. Code is unique per tenant.
type Question struct {
	ID            id.QuestionID  `json:"id"`
	TenantID      id.TenantID    `json:"tenant_id"`
	Code          string         `json:"code"`
	Text          string         `json:"text"`
	QuestionType  QuestionType   `json:"question_type"`
	ScaleType     ScaleType      `json:"scale_type"`
	Guidance      string         `json:"guidance"`
	EvidenceHints string         `json:"evidence_hints"`
	Status        QuestionStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func NewQuestion(questionID id.QuestionID, tenantID id.TenantID, code, text string,
	questionType QuestionType, scaleType ScaleType, guidance, evidenceHints string, now time.Time) (*Question, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "question code cannot be empty")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "question text cannot be empty")
	}
	if !questionType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown question type %q", questionType)
	}
	if !scaleType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown scale type %q", scaleType)
	}
	return &Question{
		ID:            questionID,
		TenantID:      tenantID,
		Code:          code,
		Text:          text,
		QuestionType:  questionType,
		ScaleType:     scaleType,
		Guidance:      strings.TrimSpace(guidance),
		EvidenceHints: strings.TrimSpace(evidenceHints),
		Status:        QuestionActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (q *Question) IsActive() bool {
	return q.Status == QuestionActive
}

// QuestionOption is one selectable answer with its score weight.
type QuestionOption struct {
	ID         uuid.UUID     `json:"id"`
	QuestionID id.QuestionID `json:"question_id"`
	Value      string        `json:"value"`
	Label      string        `json:"label"`
	Score      float64       `json:"score"`
	SortOrder  int           `json:"sort_order"`
}

func NewQuestionOption(questionID id.QuestionID, value, label string, score float64, sortOrder int) (*QuestionOption, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "option value cannot be empty")
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "option label cannot be empty")
	}
	return &QuestionOption{
		ID:         uuid.New(),
		QuestionID: questionID,
		Value:      value,
		Label:      label,
		Score:      score,
		SortOrder:  sortOrder,
	}, nil
}

// DefaultOptions returns the canonical option set for a scale, or nil for
// free-form scales.
func DefaultOptions(questionID id.QuestionID, scale ScaleType) []*QuestionOption {
	switch scale {
	case ScaleLikert:
		labels := []string{"Not implemented", "Initial", "Defined", "Managed", "Optimized"}
		options := make([]*QuestionOption, 0, len(labels))
		for i, label := range labels {
			option, _ := NewQuestionOption(questionID, strconv.Itoa(i+1), label, float64(i+1), i)
			options = append(options, option)
		}
		return options
	case ScaleYesNo:
		yes, _ := NewQuestionOption(questionID, "yes", "Yes", 5, 0)
		no, _ := NewQuestionOption(questionID, "no", "No", 1, 1)
		return []*QuestionOption{yes, no}
	}
	return nil
}

// ControlQuestionMap links a bank question to a control node.
type ControlQuestionMap struct {
	ID          uuid.UUID     `json:"id"`
	TenantID    id.TenantID   `json:"tenant_id"`
	ControlID   id.ControlID  `json:"control_id"`
	QuestionID  id.QuestionID `json:"question_id"`
	IsMandatory bool          `json:"is_mandatory"`
	SortOrder   int           `json:"sort_order"`
	CreatedAt   time.Time     `json:"created_at"`
}

func NewControlQuestionMap(tenantID id.TenantID, controlID id.ControlID, questionID id.QuestionID,
	isMandatory bool, sortOrder int, now time.Time) *ControlQuestionMap {
	return &ControlQuestionMap{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ControlID:   controlID,
		QuestionID:  questionID,
		IsMandatory: isMandatory,
		SortOrder:   sortOrder,
		CreatedAt:   now,
	}
}
