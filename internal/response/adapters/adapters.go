// Package adapters bridges the response workflow to the assessment module
// and the question bank.
package adapters

import (
	"context"

	asmodels "conforma/internal/assessment/models"
	qbmodels "conforma/internal/questionbank/models"
	"conforma/internal/response/service"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

type assessmentReader interface {
	GetAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*asmodels.Assessment, error)
	GetQuestion(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID, questionID id.AssessmentQuestionID) (*asmodels.Question, error)
}

// AssessmentDirectory satisfies the response module's campaign port from the
// assessment service.
type AssessmentDirectory struct {
	assessments assessmentReader
}

func NewAssessmentDirectory(assessments assessmentReader) *AssessmentDirectory {
	return &AssessmentDirectory{assessments: assessments}
}

func (d *AssessmentDirectory) QuestionSnapshot(ctx context.Context, tenantID id.TenantID,
	assessmentID id.AssessmentID, questionID id.AssessmentQuestionID) (*service.QuestionSnapshot, error) {
	question, err := d.assessments.GetQuestion(ctx, tenantID, assessmentID, questionID)
	if err != nil {
		return nil, err
	}
	return &service.QuestionSnapshot{
		AssessmentID:   question.AssessmentID,
		QuestionID:     question.ID,
		BankQuestionID: question.QuestionID,
		QuestionType:   question.QuestionType,
		ScaleType:      question.ScaleType,
		IsMandatory:    question.IsMandatory,
	}, nil
}

func (d *AssessmentDirectory) AssessmentOpen(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) error {
	assessment, err := d.assessments.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		return err
	}
	if !assessment.IsOpen() {
		return dErrors.Newf(dErrors.CodeConflict, "assessment is %s and does not accept answers", assessment.Status)
	}
	return nil
}

type optionLister interface {
	ListQuestionOptions(ctx context.Context, questionID id.QuestionID) ([]*qbmodels.QuestionOption, error)
}

// OptionSource serves the scored answer options from the question bank.
type OptionSource struct {
	bank optionLister
}

func NewOptionSource(bank optionLister) *OptionSource {
	return &OptionSource{bank: bank}
}

func (o *OptionSource) QuestionOptions(ctx context.Context, questionID id.QuestionID) ([]service.ScoredOption, error) {
	options, err := o.bank.ListQuestionOptions(ctx, questionID)
	if err != nil {
		return nil, err
	}
	out := make([]service.ScoredOption, 0, len(options))
	for _, opt := range options {
		out = append(out, service.ScoredOption{Value: opt.Value, Score: opt.Score})
	}
	return out, nil
}
