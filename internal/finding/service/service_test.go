package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"conforma/internal/finding/models"
	"conforma/internal/finding/store/memory"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// fakeAnswers serves canned scored answers per assessment.
type fakeAnswers struct {
	byAssessment map[id.AssessmentID][]ScoredAnswer
}

func newFakeAnswers() *fakeAnswers {
	return &fakeAnswers{byAssessment: make(map[id.AssessmentID][]ScoredAnswer)}
}

func (f *fakeAnswers) addAnswer(assessmentID id.AssessmentID, code string, score float64) ScoredAnswer {
	answer := ScoredAnswer{
		ResponseID:   id.NewResponseID(),
		AssessmentID: assessmentID,
		ControlID:    id.NewControlID(),
		QuestionCode: code,
		QuestionText: "How is " + code + " handled?",
		Score:        score,
	}
	f.byAssessment[assessmentID] = append(f.byAssessment[assessmentID], answer)
	return answer
}

func (f *fakeAnswers) ApprovedAnswers(_ context.Context, _ id.TenantID, assessmentID id.AssessmentID) ([]ScoredAnswer, error) {
	return f.byAssessment[assessmentID], nil
}

type FindingSuite struct {
	suite.Suite
	svc      *Service
	answers  *fakeAnswers
	ctx      context.Context
	tenantID id.TenantID
	otherID  id.TenantID
}

func (s *FindingSuite) SetupTest() {
	s.answers = newFakeAnswers()
	s.svc = New(memory.NewFindingStore(), memory.NewSequenceStore(),
		memory.NewActionStore(), memory.NewTaskStore(), s.answers)
	s.ctx = context.Background()
	s.tenantID = id.NewTenantID()
	s.otherID = id.NewTenantID()
}

func (s *FindingSuite) create(severity models.Severity) *models.Finding {
	finding, err := s.svc.CreateFinding(s.ctx, s.tenantID, CreateFindingInput{
		Title:    "Access reviews are not performed",
		Severity: severity,
	})
	s.Require().NoError(err)
	return finding
}

func (s *FindingSuite) TestCreateFinding() {
	s.Run("numbers findings per tenant", func() {
		first := s.create(models.SeverityHigh)
		second := s.create(models.SeverityLow)

		s.Equal(models.FindingOpen, first.Status)
		s.Regexp(`^FND-[0-9A-F]{6}-0001$`, first.Reference)
		s.Regexp(`-0002$`, second.Reference)

		foreign, err := s.svc.CreateFinding(s.ctx, s.otherID, CreateFindingInput{
			Title:    "Backups untested",
			Severity: models.SeverityMedium,
		})
		s.Require().NoError(err)
		s.Regexp(`-0001$`, foreign.Reference)
		s.NotEqual(first.Reference, foreign.Reference)
	})

	s.Run("rejects empty title", func() {
		_, err := s.svc.CreateFinding(s.ctx, s.tenantID, CreateFindingInput{
			Title:    "   ",
			Severity: models.SeverityHigh,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects unknown severity", func() {
		_, err := s.svc.CreateFinding(s.ctx, s.tenantID, CreateFindingInput{
			Title:    "Something",
			Severity: "EXTREME",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *FindingSuite) TestLifecycle() {
	finding := s.create(models.SeverityHigh)

	s.Run("resolve stamps the date", func() {
		_, err := s.svc.TransitionFinding(s.ctx, s.tenantID, finding.ID, models.FindingInProgress)
		s.Require().NoError(err)
		resolved, err := s.svc.TransitionFinding(s.ctx, s.tenantID, finding.ID, models.FindingResolved)
		s.Require().NoError(err)
		s.NotNil(resolved.ResolvedAt)
		s.Nil(resolved.ClosedAt)
	})

	s.Run("reopen clears the dates", func() {
		reopened, err := s.svc.TransitionFinding(s.ctx, s.tenantID, finding.ID, models.FindingOpen)
		s.Require().NoError(err)
		s.Nil(reopened.ResolvedAt)
		s.Nil(reopened.ClosedAt)
	})

	s.Run("rejects skipping the table", func() {
		_, err := s.svc.TransitionFinding(s.ctx, s.tenantID, finding.ID, models.FindingClosed)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects unknown status", func() {
		_, err := s.svc.TransitionFinding(s.ctx, s.tenantID, finding.ID, "PARKED")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("closed findings are immutable", func() {
		_, err := s.svc.TransitionFinding(s.ctx, s.tenantID, finding.ID, models.FindingInProgress)
		s.Require().NoError(err)
		_, err = s.svc.TransitionFinding(s.ctx, s.tenantID, finding.ID, models.FindingResolved)
		s.Require().NoError(err)
		closed, err := s.svc.TransitionFinding(s.ctx, s.tenantID, finding.ID, models.FindingClosed)
		s.Require().NoError(err)
		s.NotNil(closed.ClosedAt)

		_, err = s.svc.TransitionFinding(s.ctx, s.tenantID, finding.ID, models.FindingOpen)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		title := "New title"
		_, err = s.svc.UpdateFinding(s.ctx, s.tenantID, finding.ID, UpdateFindingInput{Title: &title})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("risk acceptance only reopens", func() {
		other := s.create(models.SeverityLow)
		accepted, err := s.svc.TransitionFinding(s.ctx, s.tenantID, other.ID, models.FindingRiskAccepted)
		s.Require().NoError(err)
		s.Equal(models.FindingRiskAccepted, accepted.Status)

		_, err = s.svc.TransitionFinding(s.ctx, s.tenantID, other.ID, models.FindingResolved)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		_, err = s.svc.TransitionFinding(s.ctx, s.tenantID, other.ID, models.FindingOpen)
		s.NoError(err)
	})

	s.Run("foreign tenant sees nothing", func() {
		_, err := s.svc.GetFinding(s.ctx, s.otherID, finding.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = s.svc.TransitionFinding(s.ctx, s.otherID, finding.ID, models.FindingInProgress)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *FindingSuite) TestListFilters() {
	open := s.create(models.SeverityCritical)
	resolved := s.create(models.SeverityLow)
	_, err := s.svc.TransitionFinding(s.ctx, s.tenantID, resolved.ID, models.FindingInProgress)
	s.Require().NoError(err)
	_, err = s.svc.TransitionFinding(s.ctx, s.tenantID, resolved.ID, models.FindingResolved)
	s.Require().NoError(err)

	past := time.Now().Add(-48 * time.Hour)
	_, err = s.svc.UpdateFinding(s.ctx, s.tenantID, open.ID, UpdateFindingInput{DueDate: &past})
	s.Require().NoError(err)

	s.Run("by status", func() {
		out, err := s.svc.ListFindings(s.ctx, s.tenantID, FindingFilter{Status: models.FindingResolved})
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Equal(resolved.ID, out[0].ID)
	})

	s.Run("by severity", func() {
		out, err := s.svc.ListFindings(s.ctx, s.tenantID, FindingFilter{Severity: models.SeverityCritical})
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Equal(open.ID, out[0].ID)
	})

	s.Run("overdue skips resolved findings", func() {
		duePast := past
		_, err := s.svc.UpdateFinding(s.ctx, s.tenantID, resolved.ID, UpdateFindingInput{DueDate: &duePast})
		s.Require().NoError(err)

		out, err := s.svc.ListFindings(s.ctx, s.tenantID, FindingFilter{Overdue: true})
		s.Require().NoError(err)
		s.Require().Len(out, 1)
		s.Equal(open.ID, out[0].ID)
	})

	s.Run("unfiltered returns everything", func() {
		out, err := s.svc.ListFindings(s.ctx, s.tenantID, FindingFilter{})
		s.Require().NoError(err)
		s.Len(out, 2)
	})
}

func (s *FindingSuite) TestGeneration() {
	assessmentID := id.NewAssessmentID()
	s.answers.addAnswer(assessmentID, "AC-1", 1.0)
	s.answers.addAnswer(assessmentID, "AC-2", 2.0)
	s.answers.addAnswer(assessmentID, "AC-3", 3.0)
	s.answers.addAnswer(assessmentID, "AC-4", 4.5)

	generated, err := s.svc.GenerateFromAssessment(s.ctx, s.tenantID, assessmentID, 0)
	s.Require().NoError(err)
	s.Require().Len(generated, 3)

	bySeverity := make(map[models.Severity]int)
	for _, f := range generated {
		bySeverity[f.Severity]++
		s.Require().NotNil(f.ResponseID)
		s.Require().NotNil(f.ControlID)
		s.Equal(assessmentID, *f.AssessmentID)
	}
	s.Equal(1, bySeverity[models.SeverityCritical])
	s.Equal(1, bySeverity[models.SeverityHigh])
	s.Equal(1, bySeverity[models.SeverityMedium])

	s.Run("rerun is a no-op", func() {
		again, err := s.svc.GenerateFromAssessment(s.ctx, s.tenantID, assessmentID, 0)
		s.Require().NoError(err)
		s.Empty(again)
	})

	s.Run("custom threshold narrows the band", func() {
		other := id.NewAssessmentID()
		s.answers.addAnswer(other, "BC-1", 1.0)
		s.answers.addAnswer(other, "BC-2", 3.0)

		generated, err := s.svc.GenerateFromAssessment(s.ctx, s.tenantID, other, 2.0)
		s.Require().NoError(err)
		s.Require().Len(generated, 1)
		s.Equal("Low maturity on BC-1", generated[0].Title)
	})
}

func (s *FindingSuite) TestRemediation() {
	finding := s.create(models.SeverityHigh)
	cost := 2500.0
	action, err := s.svc.CreateAction(s.ctx, s.tenantID, finding.ID, CreateActionInput{
		Title:         "Roll out quarterly access reviews",
		EstimatedCost: &cost,
	})
	s.Require().NoError(err)
	s.Equal(models.ActionPlanned, action.Status)

	s.Run("closed findings take no actions", func() {
		closed := s.create(models.SeverityLow)
		for _, next := range []models.FindingStatus{models.FindingInProgress, models.FindingResolved, models.FindingClosed} {
			_, err := s.svc.TransitionFinding(s.ctx, s.tenantID, closed.ID, next)
			s.Require().NoError(err)
		}
		_, err := s.svc.CreateAction(s.ctx, s.tenantID, closed.ID, CreateActionInput{Title: "Too late"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("completion stamps the date", func() {
		_, err := s.svc.TransitionAction(s.ctx, s.tenantID, action.ID, models.ActionInProgress)
		s.Require().NoError(err)
		done, err := s.svc.TransitionAction(s.ctx, s.tenantID, action.ID, models.ActionCompleted)
		s.Require().NoError(err)
		s.NotNil(done.CompletedAt)

		_, err = s.svc.TransitionAction(s.ctx, s.tenantID, action.ID, models.ActionInProgress)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("actual cost trails completion", func() {
		actual := 3100.0
		updated, err := s.svc.UpdateAction(s.ctx, s.tenantID, action.ID, UpdateActionInput{ActualCost: &actual})
		s.Require().NoError(err)
		s.Equal(actual, *updated.ActualCost)

		title := "Rename"
		_, err = s.svc.UpdateAction(s.ctx, s.tenantID, action.ID, UpdateActionInput{Title: &title})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("foreign tenant sees nothing", func() {
		_, err := s.svc.GetAction(s.ctx, s.otherID, action.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *FindingSuite) TestTasks() {
	finding := s.create(models.SeverityMedium)
	action, err := s.svc.CreateAction(s.ctx, s.tenantID, finding.ID, CreateActionInput{
		Title: "Harden the perimeter",
	})
	s.Require().NoError(err)

	var tasks []*models.RemediationTask
	for i := 0; i < 3; i++ {
		task, err := s.svc.CreateTask(s.ctx, s.tenantID, action.ID, CreateTaskInput{
			Title:     fmt.Sprintf("Step %d", i+1),
			SortOrder: 3 - i,
		})
		s.Require().NoError(err)
		tasks = append(tasks, task)
	}

	s.Run("lists in sort order", func() {
		out, err := s.svc.ListTasks(s.ctx, s.tenantID, action.ID)
		s.Require().NoError(err)
		s.Require().Len(out, 3)
		s.Equal("Step 3", out[0].Title)
		s.Equal("Step 1", out[2].Title)
	})

	s.Run("done stamps and undone clears", func() {
		done := models.TaskDone
		task, err := s.svc.UpdateTask(s.ctx, s.tenantID, tasks[0].ID, UpdateTaskInput{Status: &done})
		s.Require().NoError(err)
		s.NotNil(task.DoneAt)

		todo := models.TaskTodo
		task, err = s.svc.UpdateTask(s.ctx, s.tenantID, tasks[0].ID, UpdateTaskInput{Status: &todo})
		s.Require().NoError(err)
		s.Nil(task.DoneAt)
	})

	s.Run("rejects unknown status", func() {
		bogus := models.TaskStatus("BLOCKED")
		_, err := s.svc.UpdateTask(s.ctx, s.tenantID, tasks[0].ID, UpdateTaskInput{Status: &bogus})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("tenancy flows through the action", func() {
		_, err := s.svc.UpdateTask(s.ctx, s.otherID, tasks[0].ID, UpdateTaskInput{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		err = s.svc.DeleteTask(s.ctx, s.otherID, tasks[0].ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("delete removes the task", func() {
		s.Require().NoError(s.svc.DeleteTask(s.ctx, s.tenantID, tasks[2].ID))
		out, err := s.svc.ListTasks(s.ctx, s.tenantID, action.ID)
		s.Require().NoError(err)
		s.Len(out, 2)
	})
}

func TestFindingSuite(t *testing.T) {
	suite.Run(t, new(FindingSuite))
}
