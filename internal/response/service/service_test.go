package service

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"conforma/internal/platform/blob"
	"conforma/internal/response/models"
	"conforma/internal/response/store/memory"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// fakeDirectory serves question snapshots and an open/closed flag per
// assessment.
type fakeDirectory struct {
	snapshots map[id.AssessmentQuestionID]*QuestionSnapshot
	closed    map[id.AssessmentID]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		snapshots: make(map[id.AssessmentQuestionID]*QuestionSnapshot),
		closed:    make(map[id.AssessmentID]bool),
	}
}

func (f *fakeDirectory) addQuestion(assessmentID id.AssessmentID, scaleType string) *QuestionSnapshot {
	snapshot := &QuestionSnapshot{
		AssessmentID:   assessmentID,
		QuestionID:     id.NewAssessmentQuestionID(),
		BankQuestionID: id.NewQuestionID(),
		QuestionType:   "single_choice",
		ScaleType:      scaleType,
		IsMandatory:    true,
	}
	f.snapshots[snapshot.QuestionID] = snapshot
	return snapshot
}

func (f *fakeDirectory) QuestionSnapshot(_ context.Context, _ id.TenantID, assessmentID id.AssessmentID, questionID id.AssessmentQuestionID) (*QuestionSnapshot, error) {
	snapshot, ok := f.snapshots[questionID]
	if !ok || snapshot.AssessmentID != assessmentID {
		return nil, dErrors.New(dErrors.CodeNotFound, "question not found")
	}
	return snapshot, nil
}

func (f *fakeDirectory) AssessmentOpen(_ context.Context, _ id.TenantID, assessmentID id.AssessmentID) error {
	if f.closed[assessmentID] {
		return dErrors.New(dErrors.CodeConflict, "assessment is closed")
	}
	return nil
}

type fakeOptions struct {
	byQuestion map[id.QuestionID][]ScoredOption
}

func (f *fakeOptions) QuestionOptions(_ context.Context, questionID id.QuestionID) ([]ScoredOption, error) {
	return f.byQuestion[questionID], nil
}

type ResponseSuite struct {
	suite.Suite
	svc       *Service
	directory *fakeDirectory
	options   *fakeOptions
	blobs     *blob.Memory
	ctx       context.Context
	tenantID  id.TenantID
	otherID   id.TenantID
}

func (s *ResponseSuite) SetupTest() {
	s.directory = newFakeDirectory()
	s.options = &fakeOptions{byQuestion: make(map[id.QuestionID][]ScoredOption)}
	s.blobs = blob.NewMemory()
	s.svc = New(memory.NewResponseStore(), memory.NewVersionStore(), memory.NewReviewStore(),
		memory.NewEvidenceStore(), memory.NewLinkStore(), s.directory, s.options, s.blobs)
	s.ctx = context.Background()
	s.tenantID = id.NewTenantID()
	s.otherID = id.NewTenantID()
}

func TestResponseSuite(t *testing.T) {
	suite.Run(t, new(ResponseSuite))
}

func (s *ResponseSuite) likertOptions(questionID id.QuestionID) {
	s.options.byQuestion[questionID] = []ScoredOption{
		{Value: "1", Score: 1}, {Value: "2", Score: 2}, {Value: "3", Score: 3},
		{Value: "4", Score: 4}, {Value: "5", Score: 5},
	}
}

func (s *ResponseSuite) TestDraftLifecycle() {
	assessmentID := id.NewAssessmentID()
	snapshot := s.directory.addQuestion(assessmentID, "LIKERT_1_5")
	s.likertOptions(snapshot.BankQuestionID)

	s.Run("draft created then rewritten", func() {
		response, err := s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, snapshot.QuestionID,
			json.RawMessage(`{"value":"2"}`))
		s.Require().NoError(err)
		s.Equal(models.StatusDraft, response.Status)
		s.Equal(0, response.CurrentVersion)

		updated, err := s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, snapshot.QuestionID,
			json.RawMessage(`{"value":"4"}`))
		s.Require().NoError(err)
		s.Equal(response.ID, updated.ID)
		s.JSONEq(`{"value":"4"}`, string(updated.Answer))
	})

	s.Run("unknown question rejected", func() {
		_, err := s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, id.NewAssessmentQuestionID(),
			json.RawMessage(`{"value":"1"}`))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("closed assessment rejects drafts", func() {
		closedID := id.NewAssessmentID()
		closedQ := s.directory.addQuestion(closedID, "LIKERT_1_5")
		s.directory.closed[closedID] = true
		_, err := s.svc.UpsertDraft(s.ctx, s.tenantID, closedID, closedQ.QuestionID,
			json.RawMessage(`{"value":"1"}`))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("foreign tenant gets its own response row", func() {
		response, err := s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, snapshot.QuestionID,
			json.RawMessage(`{"value":"5"}`))
		s.Require().NoError(err)
		_, err = s.svc.GetResponse(s.ctx, s.otherID, response.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ResponseSuite) TestWorkflow() {
	assessmentID := id.NewAssessmentID()
	snapshot := s.directory.addQuestion(assessmentID, "LIKERT_1_5")
	s.likertOptions(snapshot.BankQuestionID)

	response, err := s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, snapshot.QuestionID,
		json.RawMessage(`{"value":"4"}`))
	s.Require().NoError(err)

	s.Run("submit scores and versions", func() {
		submitted, err := s.svc.Submit(s.ctx, s.tenantID, response.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, submitted.Status)
		s.Equal(1, submitted.CurrentVersion)
		s.Require().NotNil(submitted.MaturityScore)
		s.Equal(4.0, *submitted.MaturityScore)
	})

	s.Run("submitted response is frozen", func() {
		_, err := s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, snapshot.QuestionID,
			json.RawMessage(`{"value":"1"}`))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("cannot approve before review starts", func() {
		_, err := s.svc.Review(s.ctx, s.tenantID, response.ID, models.DecisionApproved, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("reject reopens for revision", func() {
		_, err := s.svc.StartReview(s.ctx, s.tenantID, response.ID)
		s.Require().NoError(err)
		rejected, err := s.svc.Review(s.ctx, s.tenantID, response.ID, models.DecisionRejected, "needs evidence")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rejected.Status)

		reopened, err := s.svc.Reopen(s.ctx, s.tenantID, response.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusDraft, reopened.Status)

		_, err = s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, snapshot.QuestionID,
			json.RawMessage(`{"value":"5"}`))
		s.Require().NoError(err)
	})

	s.Run("approved is terminal", func() {
		_, err := s.svc.Submit(s.ctx, s.tenantID, response.ID)
		s.Require().NoError(err)
		_, err = s.svc.StartReview(s.ctx, s.tenantID, response.ID)
		s.Require().NoError(err)
		approved, err := s.svc.Review(s.ctx, s.tenantID, response.ID, models.DecisionApproved, "solid")
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, approved.Status)
		s.Equal(5.0, *approved.MaturityScore)

		_, err = s.svc.Reopen(s.ctx, s.tenantID, response.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("versions numbered without gaps", func() {
		versions, err := s.svc.ListVersions(s.ctx, s.tenantID, response.ID)
		s.Require().NoError(err)
		s.Require().Len(versions, 7)
		for i, v := range versions {
			s.Equal(i+1, v.Version)
		}
		s.Equal(models.StatusApproved, versions[6].Status)
	})

	s.Run("reviews recorded", func() {
		reviews, err := s.svc.ListReviews(s.ctx, s.tenantID, response.ID)
		s.Require().NoError(err)
		s.Require().Len(reviews, 2)
		s.Equal(models.DecisionRejected, reviews[0].Decision)
		s.Equal("needs evidence", reviews[0].Comment)
		s.Equal(models.DecisionApproved, reviews[1].Decision)
	})

	s.Run("statuses reported per question", func() {
		statuses, err := s.svc.QuestionStatuses(s.ctx, s.tenantID, assessmentID)
		s.Require().NoError(err)
		s.Equal("approved", statuses[snapshot.QuestionID])
	})
}

func (s *ResponseSuite) TestScoring() {
	assessmentID := id.NewAssessmentID()

	s.Run("multi-select averages weights", func() {
		snapshot := s.directory.addQuestion(assessmentID, "LIKERT_1_5")
		s.likertOptions(snapshot.BankQuestionID)
		response, err := s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, snapshot.QuestionID,
			json.RawMessage(`{"values":["2","4"]}`))
		s.Require().NoError(err)
		submitted, err := s.svc.Submit(s.ctx, s.tenantID, response.ID)
		s.Require().NoError(err)
		s.Require().NotNil(submitted.MaturityScore)
		s.Equal(3.0, *submitted.MaturityScore)
	})

	s.Run("text answers carry no score", func() {
		snapshot := s.directory.addQuestion(assessmentID, "TEXT")
		response, err := s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, snapshot.QuestionID,
			json.RawMessage(`{"text":"documented in the wiki"}`))
		s.Require().NoError(err)
		submitted, err := s.svc.Submit(s.ctx, s.tenantID, response.ID)
		s.Require().NoError(err)
		s.Nil(submitted.MaturityScore)
	})

	s.Run("numeric answers score directly", func() {
		snapshot := s.directory.addQuestion(assessmentID, "NUMERIC")
		response, err := s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, snapshot.QuestionID,
			json.RawMessage(`{"value":"3.5"}`))
		s.Require().NoError(err)
		submitted, err := s.svc.Submit(s.ctx, s.tenantID, response.ID)
		s.Require().NoError(err)
		s.Require().NotNil(submitted.MaturityScore)
		s.Equal(3.5, *submitted.MaturityScore)
	})

	s.Run("off-scale value rejected", func() {
		snapshot := s.directory.addQuestion(assessmentID, "LIKERT_1_5")
		s.likertOptions(snapshot.BankQuestionID)
		response, err := s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, snapshot.QuestionID,
			json.RawMessage(`{"value":"9"}`))
		s.Require().NoError(err)
		_, err = s.svc.Submit(s.ctx, s.tenantID, response.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ResponseSuite) TestEvidence() {
	assessmentID := id.NewAssessmentID()
	snapshot := s.directory.addQuestion(assessmentID, "LIKERT_1_5")
	s.likertOptions(snapshot.BankQuestionID)
	response, err := s.svc.UpsertDraft(s.ctx, s.tenantID, assessmentID, snapshot.QuestionID,
		json.RawMessage(`{"value":"3"}`))
	s.Require().NoError(err)

	s.Run("upload records checksum and size", func() {
		evidence, err := s.svc.UploadEvidence(s.ctx, s.tenantID, "policy.pdf", "application/pdf",
			strings.NewReader("policy body"))
		s.Require().NoError(err)
		s.Equal(models.EvidencePending, evidence.Status)
		s.Equal(int64(len("policy body")), evidence.SizeBytes)
		s.Len(evidence.Checksum, 64)
		s.True(strings.HasPrefix(evidence.ObjectKey, s.tenantID.String()+"/"))
	})

	s.Run("blank file name rejected", func() {
		_, err := s.svc.UploadEvidence(s.ctx, s.tenantID, "  ", "", strings.NewReader("x"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("download round-trips the bytes", func() {
		evidence, err := s.svc.UploadEvidence(s.ctx, s.tenantID, "ss.png", "image/png",
			strings.NewReader("screenshot bytes"))
		s.Require().NoError(err)
		meta, rc, err := s.svc.OpenEvidence(s.ctx, s.tenantID, evidence.ID)
		s.Require().NoError(err)
		defer rc.Close()
		s.Equal("ss.png", meta.FileName)
		var sb strings.Builder
		_, err = io.Copy(&sb, rc)
		s.Require().NoError(err)
		s.Equal("screenshot bytes", sb.String())
	})

	s.Run("validate records the verdict", func() {
		evidence, err := s.svc.UploadEvidence(s.ctx, s.tenantID, "log.txt", "text/plain",
			strings.NewReader("audit log"))
		s.Require().NoError(err)
		validated, err := s.svc.ValidateEvidence(s.ctx, s.tenantID, evidence.ID, models.EvidenceValid)
		s.Require().NoError(err)
		s.Equal(models.EvidenceValid, validated.Status)
		s.NotNil(validated.ValidatedAt)

		_, err = s.svc.ValidateEvidence(s.ctx, s.tenantID, evidence.ID, models.EvidencePending)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("link joins response and evidence within the tenant", func() {
		evidence, err := s.svc.UploadEvidence(s.ctx, s.tenantID, "cert.pem", "", strings.NewReader("cert"))
		s.Require().NoError(err)

		s.Require().NoError(s.svc.LinkEvidence(s.ctx, s.tenantID, response.ID, evidence.ID))
		err = s.svc.LinkEvidence(s.ctx, s.tenantID, response.ID, evidence.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		linked, err := s.svc.ListResponseEvidence(s.ctx, s.tenantID, response.ID)
		s.Require().NoError(err)
		s.Require().Len(linked, 1)
		s.Equal(evidence.ID, linked[0].ID)

		s.Require().NoError(s.svc.UnlinkEvidence(s.ctx, s.tenantID, response.ID, evidence.ID))
		err = s.svc.UnlinkEvidence(s.ctx, s.tenantID, response.ID, evidence.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("foreign tenant evidence cannot be linked", func() {
		foreign, err := s.svc.UploadEvidence(s.ctx, s.otherID, "other.txt", "", strings.NewReader("x"))
		s.Require().NoError(err)
		err = s.svc.LinkEvidence(s.ctx, s.tenantID, response.ID, foreign.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
