// Package adapters bridges the assessment module to the standards catalog,
// the question bank, and the user directory.
package adapters

import (
	"context"

	"conforma/internal/assessment/service"
	iammodels "conforma/internal/iam/models"
	qbservice "conforma/internal/questionbank/service"
	stdmodels "conforma/internal/standards/models"
	stdservice "conforma/internal/standards/service"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

type standardsCatalog interface {
	GetVersion(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) (*stdmodels.StandardVersion, error)
	ListControlTree(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) ([]*stdservice.ControlTreeNode, error)
}

// ControlCatalog satisfies the assessment's catalog port from the standards
// service. The catalog already hides foreign tenant versions as missing.
type ControlCatalog struct {
	standards standardsCatalog
}

func NewControlCatalog(standards standardsCatalog) *ControlCatalog {
	return &ControlCatalog{standards: standards}
}

func (c *ControlCatalog) VersionUsable(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) error {
	_, err := c.standards.GetVersion(ctx, tenantID, versionID)
	return err
}

func (c *ControlCatalog) ListControls(ctx context.Context, tenantID id.TenantID, versionID id.VersionID) ([]service.CatalogControl, error) {
	tree, err := c.standards.ListControlTree(ctx, tenantID, versionID)
	if err != nil {
		return nil, err
	}
	var out []service.CatalogControl
	var walk func(nodes []*stdservice.ControlTreeNode)
	walk = func(nodes []*stdservice.ControlTreeNode) {
		for _, node := range nodes {
			out = append(out, service.CatalogControl{
				ID:       node.ID,
				ParentID: node.ParentID,
				Active:   node.Status == stdmodels.ControlActive,
			})
			walk(node.Children)
		}
	}
	walk(tree)
	return out, nil
}

type questionBank interface {
	ListMappedQuestions(ctx context.Context, tenantID id.TenantID, controlIDs []id.ControlID) ([]qbservice.MappedQuestion, error)
}

// QuestionBank adapts the question bank's mapped-question listing to the
// assessment's snapshot source.
type QuestionBank struct {
	bank questionBank
}

func NewQuestionBank(bank questionBank) *QuestionBank {
	return &QuestionBank{bank: bank}
}

func (q *QuestionBank) ListMappedQuestions(ctx context.Context, tenantID id.TenantID, controlIDs []id.ControlID) ([]service.BankQuestion, error) {
	mapped, err := q.bank.ListMappedQuestions(ctx, tenantID, controlIDs)
	if err != nil {
		return nil, err
	}
	out := make([]service.BankQuestion, 0, len(mapped))
	for _, mq := range mapped {
		out = append(out, service.BankQuestion{
			ControlID:    mq.Map.ControlID,
			QuestionID:   mq.Question.ID,
			QuestionCode: mq.Question.Code,
			QuestionText: mq.Question.Text,
			QuestionType: string(mq.Question.QuestionType),
			ScaleType:    string(mq.Question.ScaleType),
			Guidance:     mq.Question.Guidance,
			IsMandatory:  mq.Map.IsMandatory,
			SortOrder:    mq.Map.SortOrder,
		})
	}
	return out, nil
}

type userResolver interface {
	GetUser(ctx context.Context, tenantID id.TenantID, userID id.UserID) (*iammodels.User, error)
}

// UserDirectory confirms assignees and owners exist and are active.
type UserDirectory struct {
	users userResolver
}

func NewUserDirectory(users userResolver) *UserDirectory {
	return &UserDirectory{users: users}
}

func (d *UserDirectory) UserExists(ctx context.Context, tenantID id.TenantID, userID id.UserID) error {
	user, err := d.users.GetUser(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if user.Status != iammodels.UserStatusActive {
		return dErrors.New(dErrors.CodeValidation, "user is not active")
	}
	return nil
}

type questionStatusLister interface {
	QuestionStatuses(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (map[id.AssessmentQuestionID]string, error)
}

// ResponseTracker feeds response statuses into progress computation. The
// response module is constructed after the assessment module, so the tracker
// starts unbound and reports nothing answered until Bind is called.
type ResponseTracker struct {
	responses questionStatusLister
}

func NewResponseTracker() *ResponseTracker {
	return &ResponseTracker{}
}

func (t *ResponseTracker) Bind(responses questionStatusLister) {
	t.responses = responses
}

func (t *ResponseTracker) QuestionStatuses(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (map[id.AssessmentQuestionID]string, error) {
	if t.responses == nil {
		return map[id.AssessmentQuestionID]string{}, nil
	}
	return t.responses.QuestionStatuses(ctx, tenantID, assessmentID)
}
