package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"conforma/internal/assessment/models"
	"conforma/internal/assessment/store/memory"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// fakeCatalog serves one flat-configured control tree per version.
type fakeCatalog struct {
	versions map[id.VersionID][]CatalogControl
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{versions: make(map[id.VersionID][]CatalogControl)}
}

func (f *fakeCatalog) addControl(versionID id.VersionID, parentID *id.ControlID, active bool) id.ControlID {
	controlID := id.NewControlID()
	f.versions[versionID] = append(f.versions[versionID], CatalogControl{
		ID:       controlID,
		ParentID: parentID,
		Active:   active,
	})
	return controlID
}

func (f *fakeCatalog) VersionUsable(_ context.Context, _ id.TenantID, versionID id.VersionID) error {
	if _, ok := f.versions[versionID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "version not found")
	}
	return nil
}

func (f *fakeCatalog) ListControls(_ context.Context, _ id.TenantID, versionID id.VersionID) ([]CatalogControl, error) {
	return f.versions[versionID], nil
}

// fakeBank serves mapped questions keyed by control.
type fakeBank struct {
	byControl map[id.ControlID][]BankQuestion
}

func newFakeBank() *fakeBank {
	return &fakeBank{byControl: make(map[id.ControlID][]BankQuestion)}
}

func (f *fakeBank) addQuestion(controlID id.ControlID, code string, mandatory bool) id.QuestionID {
	questionID := id.NewQuestionID()
	f.byControl[controlID] = append(f.byControl[controlID], BankQuestion{
		ControlID:    controlID,
		QuestionID:   questionID,
		QuestionCode: code,
		QuestionText: "How is " + code + " implemented?",
		QuestionType: "single_choice",
		ScaleType:    "LIKERT_1_5",
		IsMandatory:  mandatory,
	})
	return questionID
}

func (f *fakeBank) ListMappedQuestions(_ context.Context, _ id.TenantID, controlIDs []id.ControlID) ([]BankQuestion, error) {
	var out []BankQuestion
	for _, controlID := range controlIDs {
		out = append(out, f.byControl[controlID]...)
	}
	return out, nil
}

type fakeUsers struct {
	known map[id.UserID]bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{known: make(map[id.UserID]bool)}
}

func (f *fakeUsers) addUser() id.UserID {
	userID := id.NewUserID()
	f.known[userID] = true
	return userID
}

func (f *fakeUsers) UserExists(_ context.Context, _ id.TenantID, userID id.UserID) error {
	if !f.known[userID] {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return nil
}

type fakeTracker struct {
	statuses map[id.AssessmentQuestionID]string
}

func (f *fakeTracker) QuestionStatuses(_ context.Context, _ id.TenantID, _ id.AssessmentID) (map[id.AssessmentQuestionID]string, error) {
	return f.statuses, nil
}

type AssessmentSuite struct {
	suite.Suite
	svc      *Service
	catalog  *fakeCatalog
	bank     *fakeBank
	users    *fakeUsers
	tracker  *fakeTracker
	ctx      context.Context
	tenantID id.TenantID
	otherID  id.TenantID
	ownerID  id.UserID
	orgID    id.OrgID
}

func (s *AssessmentSuite) SetupTest() {
	s.catalog = newFakeCatalog()
	s.bank = newFakeBank()
	s.users = newFakeUsers()
	s.tracker = &fakeTracker{statuses: make(map[id.AssessmentQuestionID]string)}
	s.svc = New(memory.NewAssessmentStore(), memory.NewScopeStore(),
		memory.NewQuestionStore(), memory.NewAssignmentStore(),
		s.catalog, s.bank, s.users, WithResponseTracker(s.tracker))
	s.ctx = context.Background()
	s.tenantID = id.NewTenantID()
	s.otherID = id.NewTenantID()
	s.ownerID = s.users.addUser()
	s.orgID = id.NewOrgID()
}

func TestAssessmentSuite(t *testing.T) {
	suite.Run(t, new(AssessmentSuite))
}

func (s *AssessmentSuite) create(versionID id.VersionID, code string, scopes ...ScopeInput) *models.Assessment {
	assessment, err := s.svc.CreateAssessment(s.ctx, s.tenantID, CreateAssessmentInput{
		Code:           code,
		Name:           "Annual Review",
		VersionID:      versionID,
		OrganizationID: s.orgID,
		OwnerID:        s.ownerID,
		Scopes:         scopes,
	})
	s.Require().NoError(err)
	return assessment
}

func (s *AssessmentSuite) TestCreateAssessment() {
	versionID := id.NewVersionID()
	domainID := s.catalog.addControl(versionID, nil, true)
	controlID := s.catalog.addControl(versionID, &domainID, true)
	s.bank.addQuestion(controlID, "Q-001", true)
	s.bank.addQuestion(controlID, "Q-002", false)

	s.Run("materializes all active controls when unscoped", func() {
		assessment := s.create(versionID, "iso-annual")
		s.Equal("ISO-ANNUAL", assessment.Code)
		s.Equal(models.StatusDraft, assessment.Status)

		questions, err := s.svc.ListQuestions(s.ctx, s.tenantID, assessment.ID)
		s.Require().NoError(err)
		s.Require().Len(questions, 2)
		s.Equal("Q-001", questions[0].QuestionCode)
		s.Equal("LIKERT_1_5", questions[0].ScaleType)
		s.True(questions[0].IsMandatory)
	})

	s.Run("duplicate code conflicts", func() {
		_, err := s.svc.CreateAssessment(s.ctx, s.tenantID, CreateAssessmentInput{
			Code:           "ISO-ANNUAL",
			Name:           "Second Run",
			VersionID:      versionID,
			OrganizationID: s.orgID,
			OwnerID:        s.ownerID,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("same code in another tenant is fine", func() {
		otherOwner := s.users.addUser()
		_, err := s.svc.CreateAssessment(s.ctx, s.otherID, CreateAssessmentInput{
			Code:           "ISO-ANNUAL",
			Name:           "Other Tenant Run",
			VersionID:      versionID,
			OrganizationID: id.NewOrgID(),
			OwnerID:        otherOwner,
		})
		s.Require().NoError(err)
	})

	s.Run("unknown version rejected", func() {
		_, err := s.svc.CreateAssessment(s.ctx, s.tenantID, CreateAssessmentInput{
			Code:           "MISSING-VERSION",
			Name:           "Run",
			VersionID:      id.NewVersionID(),
			OrganizationID: s.orgID,
			OwnerID:        s.ownerID,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown owner rejected", func() {
		_, err := s.svc.CreateAssessment(s.ctx, s.tenantID, CreateAssessmentInput{
			Code:           "NO-OWNER",
			Name:           "Run",
			VersionID:      versionID,
			OrganizationID: s.orgID,
			OwnerID:        id.NewUserID(),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("foreign tenant cannot read", func() {
		assessment := s.create(versionID, "TENANT-SCOPED")
		_, err := s.svc.GetAssessment(s.ctx, s.otherID, assessment.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *AssessmentSuite) TestScoping() {
	versionID := id.NewVersionID()
	domainA := s.catalog.addControl(versionID, nil, true)
	controlA := s.catalog.addControl(versionID, &domainA, true)
	inactiveA := s.catalog.addControl(versionID, &domainA, false)
	domainB := s.catalog.addControl(versionID, nil, true)
	controlB := s.catalog.addControl(versionID, &domainB, true)

	s.bank.addQuestion(controlA, "QA-1", true)
	s.bank.addQuestion(inactiveA, "QA-2", true)
	s.bank.addQuestion(controlB, "QB-1", true)

	s.Run("scope with children picks the subtree only", func() {
		assessment := s.create(versionID, "SCOPED-A", ScopeInput{ControlID: domainA, IncludeChildren: true})
		questions, err := s.svc.ListQuestions(s.ctx, s.tenantID, assessment.ID)
		s.Require().NoError(err)
		s.Require().Len(questions, 1)
		s.Equal("QA-1", questions[0].QuestionCode)

		scopes, err := s.svc.ListScopes(s.ctx, s.tenantID, assessment.ID)
		s.Require().NoError(err)
		s.Require().Len(scopes, 1)
		s.Equal(domainA, scopes[0].ControlID)
		s.True(scopes[0].IncludeChildren)
	})

	s.Run("scope without children covers the root alone", func() {
		assessment := s.create(versionID, "SCOPED-B", ScopeInput{ControlID: controlB, IncludeChildren: false})
		questions, err := s.svc.ListQuestions(s.ctx, s.tenantID, assessment.ID)
		s.Require().NoError(err)
		s.Require().Len(questions, 1)
		s.Equal("QB-1", questions[0].QuestionCode)
	})

	s.Run("inactive controls never materialize", func() {
		assessment := s.create(versionID, "SCOPED-FULL")
		questions, err := s.svc.ListQuestions(s.ctx, s.tenantID, assessment.ID)
		s.Require().NoError(err)
		s.Require().Len(questions, 2)
		for _, q := range questions {
			s.NotEqual("QA-2", q.QuestionCode)
		}
	})

	s.Run("scope control from another version rejected", func() {
		foreignVersion := id.NewVersionID()
		s.catalog.addControl(foreignVersion, nil, true)
		_, err := s.svc.CreateAssessment(s.ctx, s.tenantID, CreateAssessmentInput{
			Code:           "BAD-SCOPE",
			Name:           "Run",
			VersionID:      versionID,
			OrganizationID: s.orgID,
			OwnerID:        s.ownerID,
			Scopes:         []ScopeInput{{ControlID: id.NewControlID(), IncludeChildren: true}},
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *AssessmentSuite) TestSnapshotImmutability() {
	versionID := id.NewVersionID()
	controlID := s.catalog.addControl(versionID, nil, true)
	s.bank.addQuestion(controlID, "SNAP-1", true)

	assessment := s.create(versionID, "SNAPSHOT")
	before, err := s.svc.ListQuestions(s.ctx, s.tenantID, assessment.ID)
	s.Require().NoError(err)
	s.Require().Len(before, 1)

	// Bank changes after creation must not leak into the snapshot.
	s.bank.byControl[controlID][0].QuestionText = "rewritten"
	s.bank.addQuestion(controlID, "SNAP-2", true)

	after, err := s.svc.ListQuestions(s.ctx, s.tenantID, assessment.ID)
	s.Require().NoError(err)
	s.Require().Len(after, 1)
	s.Equal(before[0].QuestionText, after[0].QuestionText)
}

func (s *AssessmentSuite) TestTransitions() {
	versionID := id.NewVersionID()
	controlID := s.catalog.addControl(versionID, nil, true)
	s.bank.addQuestion(controlID, "T-1", true)
	assessment := s.create(versionID, "LIFECYCLE")

	s.Run("draft to in progress", func() {
		updated, err := s.svc.TransitionAssessment(s.ctx, s.tenantID, assessment.ID, models.StatusInProgress)
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, updated.Status)
	})

	s.Run("skipping review is rejected", func() {
		_, err := s.svc.TransitionAssessment(s.ctx, s.tenantID, assessment.ID, models.StatusCompleted)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("review can bounce back", func() {
		_, err := s.svc.TransitionAssessment(s.ctx, s.tenantID, assessment.ID, models.StatusUnderReview)
		s.Require().NoError(err)
		updated, err := s.svc.TransitionAssessment(s.ctx, s.tenantID, assessment.ID, models.StatusInProgress)
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, updated.Status)
	})

	s.Run("unknown status rejected", func() {
		_, err := s.svc.TransitionAssessment(s.ctx, s.tenantID, assessment.ID, models.AssessmentStatus("PAUSED"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("archived is terminal", func() {
		_, err := s.svc.TransitionAssessment(s.ctx, s.tenantID, assessment.ID, models.StatusArchived)
		s.Require().NoError(err)
		_, err = s.svc.TransitionAssessment(s.ctx, s.tenantID, assessment.ID, models.StatusInProgress)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("closed assessment rejects updates", func() {
		name := "Renamed"
		_, err := s.svc.UpdateAssessment(s.ctx, s.tenantID, assessment.ID, UpdateAssessmentInput{Name: &name})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *AssessmentSuite) TestAssignments() {
	versionID := id.NewVersionID()
	controlID := s.catalog.addControl(versionID, nil, true)
	s.bank.addQuestion(controlID, "A-1", true)
	assessment := s.create(versionID, "ASSIGN")
	assignee := s.users.addUser()

	questions, err := s.svc.ListQuestions(s.ctx, s.tenantID, assessment.ID)
	s.Require().NoError(err)
	s.Require().Len(questions, 1)

	s.Run("question assignment starts pending", func() {
		assignment, err := s.svc.CreateAssignment(s.ctx, s.tenantID, assessment.ID, CreateAssignmentInput{
			QuestionID: &questions[0].ID,
			AssigneeID: assignee,
		})
		s.Require().NoError(err)
		s.Equal(models.AssignmentPending, assignment.Status)
		s.Require().NotNil(assignment.QuestionID)
		s.Equal(questions[0].ID, *assignment.QuestionID)
	})

	s.Run("duplicate assignment conflicts", func() {
		_, err := s.svc.CreateAssignment(s.ctx, s.tenantID, assessment.ID, CreateAssignmentInput{
			QuestionID: &questions[0].ID,
			AssigneeID: assignee,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("whole assessment assignment is distinct from question assignment", func() {
		assignment, err := s.svc.CreateAssignment(s.ctx, s.tenantID, assessment.ID, CreateAssignmentInput{
			AssigneeID: assignee,
		})
		s.Require().NoError(err)
		s.Nil(assignment.QuestionID)
	})

	s.Run("unknown assignee rejected", func() {
		_, err := s.svc.CreateAssignment(s.ctx, s.tenantID, assessment.ID, CreateAssignmentInput{
			AssigneeID: id.NewUserID(),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("status moves both ways", func() {
		assignments, err := s.svc.ListAssignments(s.ctx, s.tenantID, assessment.ID)
		s.Require().NoError(err)
		s.Require().NotEmpty(assignments)

		updated, err := s.svc.UpdateAssignmentStatus(s.ctx, s.tenantID, assignments[0].ID, models.AssignmentCompleted)
		s.Require().NoError(err)
		s.Equal(models.AssignmentCompleted, updated.Status)

		reopened, err := s.svc.UpdateAssignmentStatus(s.ctx, s.tenantID, assignments[0].ID, models.AssignmentInProgress)
		s.Require().NoError(err)
		s.Equal(models.AssignmentInProgress, reopened.Status)
	})

	s.Run("closed assessment rejects new assignments", func() {
		_, err := s.svc.TransitionAssessment(s.ctx, s.tenantID, assessment.ID, models.StatusInProgress)
		s.Require().NoError(err)
		_, err = s.svc.TransitionAssessment(s.ctx, s.tenantID, assessment.ID, models.StatusArchived)
		s.Require().NoError(err)

		_, err = s.svc.CreateAssignment(s.ctx, s.tenantID, assessment.ID, CreateAssignmentInput{
			AssigneeID: assignee,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *AssessmentSuite) TestProgress() {
	versionID := id.NewVersionID()
	controlID := s.catalog.addControl(versionID, nil, true)
	s.bank.addQuestion(controlID, "P-1", true)
	s.bank.addQuestion(controlID, "P-2", true)
	s.bank.addQuestion(controlID, "P-3", false)
	s.bank.addQuestion(controlID, "P-4", false)

	assessment := s.create(versionID, "PROGRESS")
	questions, err := s.svc.ListQuestions(s.ctx, s.tenantID, assessment.ID)
	s.Require().NoError(err)
	s.Require().Len(questions, 4)

	s.Run("empty progress", func() {
		progress, err := s.svc.Progress(s.ctx, s.tenantID, assessment.ID)
		s.Require().NoError(err)
		s.Equal(4, progress.TotalQuestions)
		s.Equal(0, progress.AnsweredQuestions)
		s.Equal(2, progress.MandatoryRemaining)
		s.Equal(0.0, progress.CompletionPercent)
	})

	s.Run("drafts and rejections do not count as answered", func() {
		s.tracker.statuses[questions[0].ID] = "approved"
		s.tracker.statuses[questions[1].ID] = "draft"
		s.tracker.statuses[questions[2].ID] = "submitted"
		s.tracker.statuses[questions[3].ID] = "rejected"

		progress, err := s.svc.Progress(s.ctx, s.tenantID, assessment.ID)
		s.Require().NoError(err)
		s.Equal(4, progress.TotalQuestions)
		s.Equal(2, progress.AnsweredQuestions)
		s.Equal(1, progress.ApprovedQuestions)
		s.Equal(1, progress.MandatoryRemaining)
		s.Equal(50.0, progress.CompletionPercent)
	})
}
