package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"conforma/internal/questionbank/models"
	"conforma/internal/questionbank/store/memory"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// fakeControlCatalog treats a control as visible when it was registered for
// the tenant or marked global.
type fakeControlCatalog struct {
	visible map[id.ControlID]map[id.TenantID]bool
	global  map[id.ControlID]bool
}

func newFakeControlCatalog() *fakeControlCatalog {
	return &fakeControlCatalog{
		visible: make(map[id.ControlID]map[id.TenantID]bool),
		global:  make(map[id.ControlID]bool),
	}
}

func (f *fakeControlCatalog) add(controlID id.ControlID, tenantID id.TenantID) {
	if f.visible[controlID] == nil {
		f.visible[controlID] = make(map[id.TenantID]bool)
	}
	f.visible[controlID][tenantID] = true
}

func (f *fakeControlCatalog) ControlVisible(_ context.Context, tenantID id.TenantID, controlID id.ControlID) error {
	if f.global[controlID] || f.visible[controlID][tenantID] {
		return nil
	}
	return dErrors.New(dErrors.CodeNotFound, "control not found")
}

type QuestionBankSuite struct {
	suite.Suite
	svc      *Service
	catalog  *fakeControlCatalog
	ctx      context.Context
	tenantID id.TenantID
	otherID  id.TenantID
}

func (s *QuestionBankSuite) SetupTest() {
	s.catalog = newFakeControlCatalog()
	s.svc = New(memory.NewQuestionStore(), memory.NewOptionStore(), memory.NewMapStore(), s.catalog)
	s.ctx = context.Background()
	s.tenantID = id.NewTenantID()
	s.otherID = id.NewTenantID()
}

func TestQuestionBankSuite(t *testing.T) {
	suite.Run(t, new(QuestionBankSuite))
}

func (s *QuestionBankSuite) mustCreateQuestion(tenantID id.TenantID, code string, scale models.ScaleType) *models.Question {
	question, err := s.svc.CreateQuestion(s.ctx, tenantID, CreateQuestionInput{
		Code:         code,
		Text:         "How mature is this control?",
		QuestionType: models.TypeSingleChoice,
		ScaleType:    scale,
	})
	s.Require().NoError(err)
	return question
}

func (s *QuestionBankSuite) TestCreateQuestion() {
	s.Run("seeds the likert options", func() {
		question := s.mustCreateQuestion(s.tenantID, "Q-LIKERT", models.ScaleLikert)
		options, err := s.svc.ListOptions(s.ctx, s.tenantID, question.ID)
		s.Require().NoError(err)
		s.Require().Len(options, 5)
		s.Equal("1", options[0].Value)
		s.Equal(float64(1), options[0].Score)
		s.Equal("5", options[4].Value)
		s.Equal(float64(5), options[4].Score)
	})

	s.Run("seeds yes and no", func() {
		question := s.mustCreateQuestion(s.tenantID, "Q-YESNO", models.ScaleYesNo)
		options, err := s.svc.ListOptions(s.ctx, s.tenantID, question.ID)
		s.Require().NoError(err)
		s.Require().Len(options, 2)
		s.Equal("yes", options[0].Value)
		s.Equal("no", options[1].Value)
	})

	s.Run("free text starts without options", func() {
		question := s.mustCreateQuestion(s.tenantID, "Q-TEXT", models.ScaleText)
		options, err := s.svc.ListOptions(s.ctx, s.tenantID, question.ID)
		s.Require().NoError(err)
		s.Empty(options)
	})

	s.Run("rejects duplicate codes per tenant", func() {
		s.mustCreateQuestion(s.tenantID, "Q-DUP", models.ScaleText)
		_, err := s.svc.CreateQuestion(s.ctx, s.tenantID, CreateQuestionInput{
			Code: "q-dup", Text: "Again", QuestionType: models.TypeText, ScaleType: models.ScaleText,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects unknown scale", func() {
		_, err := s.svc.CreateQuestion(s.ctx, s.tenantID, CreateQuestionInput{
			Code: "Q-BAD", Text: "Bad", QuestionType: models.TypeText, ScaleType: "LIKERT_1_10",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("questions are tenant scoped", func() {
		question := s.mustCreateQuestion(s.tenantID, "Q-SCOPED", models.ScaleText)
		_, err := s.svc.GetQuestion(s.ctx, s.otherID, question.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *QuestionBankSuite) TestMapping() {
	controlID := id.NewControlID()
	s.catalog.add(controlID, s.tenantID)
	question := s.mustCreateQuestion(s.tenantID, "Q-MAP", models.ScaleLikert)

	s.Run("maps with mandatory default", func() {
		m, err := s.svc.MapQuestion(s.ctx, s.tenantID, MapQuestionInput{
			ControlID: controlID, QuestionID: question.ID,
		})
		s.Require().NoError(err)
		s.True(m.IsMandatory)
	})

	s.Run("rejects a second identical mapping", func() {
		_, err := s.svc.MapQuestion(s.ctx, s.tenantID, MapQuestionInput{
			ControlID: controlID, QuestionID: question.ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects controls the tenant cannot see", func() {
		foreign := id.NewControlID()
		s.catalog.add(foreign, s.otherID)
		_, err := s.svc.MapQuestion(s.ctx, s.tenantID, MapQuestionInput{
			ControlID: foreign, QuestionID: question.ID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("global controls accept tenant questions", func() {
		global := id.NewControlID()
		s.catalog.global[global] = true
		m, err := s.svc.MapQuestion(s.ctx, s.tenantID, MapQuestionInput{
			ControlID: global, QuestionID: question.ID,
		})
		s.Require().NoError(err)
		s.Equal(s.tenantID, m.TenantID)
	})

	s.Run("unmap removes the link", func() {
		err := s.svc.UnmapQuestion(s.ctx, s.tenantID, controlID, question.ID)
		s.Require().NoError(err)
		err = s.svc.UnmapQuestion(s.ctx, s.tenantID, controlID, question.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *QuestionBankSuite) TestBulkMap() {
	controlID := id.NewControlID()
	s.catalog.add(controlID, s.tenantID)
	q1 := s.mustCreateQuestion(s.tenantID, "Q-B1", models.ScaleLikert)
	q2 := s.mustCreateQuestion(s.tenantID, "Q-B2", models.ScaleLikert)

	_, err := s.svc.MapQuestion(s.ctx, s.tenantID, MapQuestionInput{ControlID: controlID, QuestionID: q2.ID})
	s.Require().NoError(err)

	results, err := s.svc.BulkMapQuestions(s.ctx, s.tenantID, controlID,
		[]id.QuestionID{q1.ID, q2.ID, id.NewQuestionID()})
	s.Require().NoError(err)
	s.Require().Len(results, 3)
	s.True(results[0].Mapped)
	s.False(results[1].Mapped)
	s.Equal("already mapped", results[1].Reason)
	s.False(results[2].Mapped)
	s.Equal("question not found", results[2].Reason)
}

func (s *QuestionBankSuite) TestListMappedQuestions() {
	controlID := id.NewControlID()
	s.catalog.add(controlID, s.tenantID)

	active := s.mustCreateQuestion(s.tenantID, "Q-ACTIVE", models.ScaleLikert)
	retired := s.mustCreateQuestion(s.tenantID, "Q-RETIRED", models.ScaleLikert)

	_, err := s.svc.MapQuestion(s.ctx, s.tenantID, MapQuestionInput{ControlID: controlID, QuestionID: active.ID})
	s.Require().NoError(err)
	_, err = s.svc.MapQuestion(s.ctx, s.tenantID, MapQuestionInput{ControlID: controlID, QuestionID: retired.ID})
	s.Require().NoError(err)

	_, err = s.svc.DeactivateQuestion(s.ctx, s.tenantID, retired.ID)
	s.Require().NoError(err)

	mapped, err := s.svc.ListMappedQuestions(s.ctx, s.tenantID, []id.ControlID{controlID})
	s.Require().NoError(err)
	s.Require().Len(mapped, 1)
	s.Equal(active.ID, mapped[0].Question.ID)

	// The mapping itself survives deactivation.
	maps, err := s.svc.ListControlMappings(s.ctx, s.tenantID, controlID)
	s.Require().NoError(err)
	s.Len(maps, 2)
}
