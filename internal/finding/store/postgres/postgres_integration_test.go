//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"conforma/internal/db"
	"conforma/internal/finding/models"
	"conforma/internal/finding/store/postgres"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/testutil/containers"
)

func TestFindingStores(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	require.NoError(t, db.RunMigrations(pc.DB))

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	tenantID := id.NewTenantID()
	_, err := pc.DB.ExecContext(ctx,
		`INSERT INTO tenants (id, name, status, created_at, updated_at) VALUES ($1, $2, 'active', $3, $3)`,
		tenantID.String(), "integration-tenant", now)
	require.NoError(t, err)

	sequences := postgres.NewSequenceStore(pc.DB)
	findings := postgres.NewFindingStore(pc.DB)
	actions := postgres.NewActionStore(pc.DB)
	tasks := postgres.NewTaskStore(pc.DB)

	t.Run("sequence numbers are monotonic per tenant", func(t *testing.T) {
		for want := 1; want <= 3; want++ {
			got, err := sequences.Next(ctx, tenantID)
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
	})

	creator := id.NewUserID()
	finding, err := models.NewFinding(id.NewFindingID(), tenantID,
		models.Reference(tenantID, 1), "Access reviews are not performed", "",
		models.SeverityHigh, creator, now)
	require.NoError(t, err)
	require.NoError(t, findings.Create(ctx, finding))

	t.Run("finding round trip", func(t *testing.T) {
		got, err := findings.FindByID(ctx, tenantID, finding.ID)
		require.NoError(t, err)
		require.Equal(t, finding.Reference, got.Reference)
		require.Equal(t, models.SeverityHigh, got.Severity)
		require.Equal(t, models.FindingOpen, got.Status)
		require.Nil(t, got.OwnerID)

		_, err = findings.FindByID(ctx, id.NewTenantID(), finding.ID)
		require.ErrorIs(t, err, sentinel.ErrNotFound)

		_, err = findings.FindByResponse(ctx, tenantID, id.NewResponseID())
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("duplicate reference is rejected", func(t *testing.T) {
		dup, err := models.NewFinding(id.NewFindingID(), tenantID,
			finding.Reference, "Duplicate", "", models.SeverityLow, creator, now)
		require.NoError(t, err)
		require.Error(t, findings.Create(ctx, dup))
	})

	t.Run("execute transitions under row lock", func(t *testing.T) {
		got, err := findings.Execute(ctx, tenantID, finding.ID,
			func(f *models.Finding) error { return nil },
			func(f *models.Finding) {
				f.Status = models.FindingInProgress
				f.UpdatedAt = now.Add(time.Minute)
			})
		require.NoError(t, err)
		require.Equal(t, models.FindingInProgress, got.Status)

		persisted, err := findings.FindByID(ctx, tenantID, finding.ID)
		require.NoError(t, err)
		require.Equal(t, models.FindingInProgress, persisted.Status)
	})

	t.Run("actions and tasks round trip", func(t *testing.T) {
		action, err := models.NewRemediationAction(id.NewRemediationID(), tenantID,
			finding.ID, "Stand up quarterly access reviews", "", now)
		require.NoError(t, err)
		require.NoError(t, actions.Create(ctx, action))

		byFinding, err := actions.ListByFinding(ctx, finding.ID)
		require.NoError(t, err)
		require.Len(t, byFinding, 1)

		task := &models.RemediationTask{
			ID:        id.NewTaskID(),
			ActionID:  action.ID,
			Title:     "Draft the review checklist",
			Status:    models.TaskTodo,
			SortOrder: 1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, tasks.Create(ctx, task))

		listed, err := tasks.ListByAction(ctx, action.ID)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		require.Equal(t, models.TaskTodo, listed[0].Status)

		require.NoError(t, tasks.Delete(ctx, task.ID))
		listed, err = tasks.ListByAction(ctx, action.ID)
		require.NoError(t, err)
		require.Empty(t, listed)
	})
}
