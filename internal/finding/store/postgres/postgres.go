// Package postgres provides the PostgreSQL finding stores.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conforma/internal/finding/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func exec(ctx context.Context, db *sql.DB) executor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullUserID(userID *id.UserID) any {
	if userID == nil {
		return nil
	}
	return userID.String()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// FindingStore implements service.FindingStore.
type FindingStore struct {
	db *sql.DB
}

func NewFindingStore(db *sql.DB) *FindingStore {
	return &FindingStore{db: db}
}

const findingColumns = `id, tenant_id, reference, assessment_id, response_id, control_id,
	title, description, severity, status, owner_id, due_date, resolved_at, closed_at,
	created_by, created_at, updated_at`

func scanFinding(row interface{ Scan(...any) error }) (*models.Finding, error) {
	var (
		f             models.Finding
		rawID         string
		rawTenantID   string
		rawAID        sql.NullString
		rawResponseID sql.NullString
		rawControlID  sql.NullString
		severity      string
		status        string
		rawOwnerID    sql.NullString
		dueDate       sql.NullTime
		resolvedAt    sql.NullTime
		closedAt      sql.NullTime
		rawCreatedBy  string
	)
	if err := row.Scan(&rawID, &rawTenantID, &f.Reference, &rawAID, &rawResponseID,
		&rawControlID, &f.Title, &f.Description, &severity, &status, &rawOwnerID,
		&dueDate, &resolvedAt, &closedAt, &rawCreatedBy, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	findingID, err := id.ParseFindingID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return nil, err
	}
	createdBy, err := id.ParseUserID(rawCreatedBy)
	if err != nil {
		return nil, err
	}
	f.ID = findingID
	f.TenantID = tenantID
	f.Severity = models.Severity(severity)
	f.Status = models.FindingStatus(status)
	f.CreatedBy = createdBy
	if rawAID.Valid {
		assessmentID, err := id.ParseAssessmentID(rawAID.String)
		if err != nil {
			return nil, err
		}
		f.AssessmentID = &assessmentID
	}
	if rawResponseID.Valid {
		responseID, err := id.ParseResponseID(rawResponseID.String)
		if err != nil {
			return nil, err
		}
		f.ResponseID = &responseID
	}
	if rawControlID.Valid {
		controlID, err := id.ParseControlID(rawControlID.String)
		if err != nil {
			return nil, err
		}
		f.ControlID = &controlID
	}
	if rawOwnerID.Valid {
		ownerID, err := id.ParseUserID(rawOwnerID.String)
		if err != nil {
			return nil, err
		}
		f.OwnerID = &ownerID
	}
	if dueDate.Valid {
		t := dueDate.Time
		f.DueDate = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		f.ResolvedAt = &t
	}
	if closedAt.Valid {
		t := closedAt.Time
		f.ClosedAt = &t
	}
	return &f, nil
}

func nullAssessmentID(assessmentID *id.AssessmentID) any {
	if assessmentID == nil {
		return nil
	}
	return assessmentID.String()
}

func nullResponseID(responseID *id.ResponseID) any {
	if responseID == nil {
		return nil
	}
	return responseID.String()
}

func nullControlID(controlID *id.ControlID) any {
	if controlID == nil {
		return nil
	}
	return controlID.String()
}

func (s *FindingStore) Create(ctx context.Context, f *models.Finding) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO findings (id, tenant_id, reference, assessment_id, response_id,
			control_id, title, description, severity, status, owner_id, due_date,
			resolved_at, closed_at, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		f.ID.String(), f.TenantID.String(), f.Reference, nullAssessmentID(f.AssessmentID),
		nullResponseID(f.ResponseID), nullControlID(f.ControlID), f.Title, f.Description,
		string(f.Severity), string(f.Status), nullUserID(f.OwnerID), nullTime(f.DueDate),
		nullTime(f.ResolvedAt), nullTime(f.ClosedAt), f.CreatedBy.String(), f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}

func (s *FindingStore) FindByID(ctx context.Context, tenantID id.TenantID, findingID id.FindingID) (*models.Finding, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+findingColumns+` FROM findings WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), findingID.String())
	f, err := scanFinding(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select finding: %w", err)
	}
	return f, nil
}

func (s *FindingStore) FindByResponse(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) (*models.Finding, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+findingColumns+` FROM findings WHERE tenant_id = $1 AND response_id = $2`,
		tenantID.String(), responseID.String())
	f, err := scanFinding(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select finding by response: %w", err)
	}
	return f, nil
}

func (s *FindingStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Finding, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+findingColumns+` FROM findings WHERE tenant_id = $1 ORDER BY reference`,
		tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []*models.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const updateFindingQuery = `
	UPDATE findings
	SET title = $3, description = $4, severity = $5, status = $6, owner_id = $7,
		due_date = $8, resolved_at = $9, closed_at = $10, updated_at = $11
	WHERE tenant_id = $1 AND id = $2`

func findingUpdateArgs(f *models.Finding) []any {
	return []any{
		f.TenantID.String(), f.ID.String(), f.Title, f.Description, string(f.Severity),
		string(f.Status), nullUserID(f.OwnerID), nullTime(f.DueDate),
		nullTime(f.ResolvedAt), nullTime(f.ClosedAt), f.UpdatedAt,
	}
}

func (s *FindingStore) Update(ctx context.Context, f *models.Finding) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, updateFindingQuery, findingUpdateArgs(f)...)
	if err != nil {
		return fmt.Errorf("update finding: %w", err)
	}
	return requireRow(res)
}

func (s *FindingStore) Execute(ctx context.Context, tenantID id.TenantID, findingID id.FindingID,
	validate func(*models.Finding) error, mutate func(*models.Finding)) (*models.Finding, error) {
	run := func(ctx context.Context, ex executor) (*models.Finding, error) {
		row := ex.QueryRowContext(ctx,
			`SELECT `+findingColumns+` FROM findings WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
			tenantID.String(), findingID.String())
		f, err := scanFinding(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, sentinel.ErrNotFound
			}
			return nil, fmt.Errorf("lock finding: %w", err)
		}
		if err := validate(f); err != nil {
			return nil, err
		}
		mutate(f)

		if _, err := ex.ExecContext(ctx, updateFindingQuery, findingUpdateArgs(f)...); err != nil {
			return nil, fmt.Errorf("update finding: %w", err)
		}
		return f, nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin finding tx: %w", err)
	}
	f, err := run(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit finding tx: %w", err)
	}
	return f, nil
}

// SequenceStore implements service.SequenceStore on the finding_sequences
// table. The upsert both seeds and advances the counter in one statement.
type SequenceStore struct {
	db *sql.DB
}

func NewSequenceStore(db *sql.DB) *SequenceStore {
	return &SequenceStore{db: db}
}

func (s *SequenceStore) Next(ctx context.Context, tenantID id.TenantID) (int, error) {
	var number int
	err := exec(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO finding_sequences (tenant_id, next_number)
		VALUES ($1, 2)
		ON CONFLICT (tenant_id)
			DO UPDATE SET next_number = finding_sequences.next_number + 1
		RETURNING next_number - 1`,
		tenantID.String()).Scan(&number)
	if err != nil {
		return 0, fmt.Errorf("next finding number: %w", err)
	}
	return number, nil
}

// ActionStore implements service.ActionStore.
type ActionStore struct {
	db *sql.DB
}

func NewActionStore(db *sql.DB) *ActionStore {
	return &ActionStore{db: db}
}

const actionColumns = `id, tenant_id, finding_id, title, description, status, owner_id,
	due_date, completed_at, estimated_cost, actual_cost, created_at, updated_at`

func scanAction(row interface{ Scan(...any) error }) (*models.RemediationAction, error) {
	var (
		a             models.RemediationAction
		rawID         string
		rawTenantID   string
		rawFindingID  string
		status        string
		rawOwnerID    sql.NullString
		dueDate       sql.NullTime
		completedAt   sql.NullTime
		estimatedCost sql.NullFloat64
		actualCost    sql.NullFloat64
	)
	if err := row.Scan(&rawID, &rawTenantID, &rawFindingID, &a.Title, &a.Description,
		&status, &rawOwnerID, &dueDate, &completedAt, &estimatedCost, &actualCost,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	actionID, err := id.ParseRemediationID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return nil, err
	}
	findingID, err := id.ParseFindingID(rawFindingID)
	if err != nil {
		return nil, err
	}
	a.ID = actionID
	a.TenantID = tenantID
	a.FindingID = findingID
	a.Status = models.ActionStatus(status)
	if rawOwnerID.Valid {
		ownerID, err := id.ParseUserID(rawOwnerID.String)
		if err != nil {
			return nil, err
		}
		a.OwnerID = &ownerID
	}
	if dueDate.Valid {
		t := dueDate.Time
		a.DueDate = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	if estimatedCost.Valid {
		v := estimatedCost.Float64
		a.EstimatedCost = &v
	}
	if actualCost.Valid {
		v := actualCost.Float64
		a.ActualCost = &v
	}
	return &a, nil
}

func (s *ActionStore) Create(ctx context.Context, a *models.RemediationAction) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO remediation_actions (id, tenant_id, finding_id, title, description,
			status, owner_id, due_date, completed_at, estimated_cost, actual_cost,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID.String(), a.TenantID.String(), a.FindingID.String(), a.Title, a.Description,
		string(a.Status), nullUserID(a.OwnerID), nullTime(a.DueDate), nullTime(a.CompletedAt),
		nullFloat(a.EstimatedCost), nullFloat(a.ActualCost), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert remediation action: %w", err)
	}
	return nil
}

func (s *ActionStore) FindByID(ctx context.Context, tenantID id.TenantID, actionID id.RemediationID) (*models.RemediationAction, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM remediation_actions WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), actionID.String())
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select remediation action: %w", err)
	}
	return a, nil
}

func (s *ActionStore) ListByFinding(ctx context.Context, findingID id.FindingID) ([]*models.RemediationAction, error) {
	return s.list(ctx, `finding_id = $1`, findingID.String())
}

func (s *ActionStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.RemediationAction, error) {
	return s.list(ctx, `tenant_id = $1`, tenantID.String())
}

func (s *ActionStore) list(ctx context.Context, where string, arg any) ([]*models.RemediationAction, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+actionColumns+` FROM remediation_actions WHERE `+where+` ORDER BY created_at`, arg)
	if err != nil {
		return nil, fmt.Errorf("list remediation actions: %w", err)
	}
	defer rows.Close()

	var out []*models.RemediationAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *ActionStore) Update(ctx context.Context, a *models.RemediationAction) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE remediation_actions
		SET title = $3, description = $4, status = $5, owner_id = $6, due_date = $7,
			completed_at = $8, estimated_cost = $9, actual_cost = $10, updated_at = $11
		WHERE tenant_id = $1 AND id = $2`,
		a.TenantID.String(), a.ID.String(), a.Title, a.Description, string(a.Status),
		nullUserID(a.OwnerID), nullTime(a.DueDate), nullTime(a.CompletedAt),
		nullFloat(a.EstimatedCost), nullFloat(a.ActualCost), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update remediation action: %w", err)
	}
	return requireRow(res)
}

// TaskStore implements service.TaskStore.
type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `id, action_id, title, status, assignee_id, due_date, done_at,
	sort_order, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*models.RemediationTask, error) {
	var (
		t           models.RemediationTask
		rawID       string
		rawActionID string
		status      string
		rawAssignee sql.NullString
		dueDate     sql.NullTime
		doneAt      sql.NullTime
	)
	if err := row.Scan(&rawID, &rawActionID, &t.Title, &status, &rawAssignee,
		&dueDate, &doneAt, &t.SortOrder, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	taskID, err := id.ParseTaskID(rawID)
	if err != nil {
		return nil, err
	}
	actionID, err := id.ParseRemediationID(rawActionID)
	if err != nil {
		return nil, err
	}
	t.ID = taskID
	t.ActionID = actionID
	t.Status = models.TaskStatus(status)
	if rawAssignee.Valid {
		assigneeID, err := id.ParseUserID(rawAssignee.String)
		if err != nil {
			return nil, err
		}
		t.AssigneeID = &assigneeID
	}
	if dueDate.Valid {
		v := dueDate.Time
		t.DueDate = &v
	}
	if doneAt.Valid {
		v := doneAt.Time
		t.DoneAt = &v
	}
	return &t, nil
}

func (s *TaskStore) Create(ctx context.Context, t *models.RemediationTask) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO remediation_tasks (id, action_id, title, status, assignee_id,
			due_date, done_at, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID.String(), t.ActionID.String(), t.Title, string(t.Status),
		nullUserID(t.AssigneeID), nullTime(t.DueDate), nullTime(t.DoneAt),
		t.SortOrder, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert remediation task: %w", err)
	}
	return nil
}

func (s *TaskStore) FindByID(ctx context.Context, taskID id.TaskID) (*models.RemediationTask, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM remediation_tasks WHERE id = $1`, taskID.String())
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select remediation task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) ListByAction(ctx context.Context, actionID id.RemediationID) ([]*models.RemediationTask, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+taskColumns+` FROM remediation_tasks WHERE action_id = $1
		ORDER BY sort_order, created_at`, actionID.String())
	if err != nil {
		return nil, fmt.Errorf("list remediation tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.RemediationTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TaskStore) Update(ctx context.Context, t *models.RemediationTask) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE remediation_tasks
		SET title = $2, status = $3, assignee_id = $4, due_date = $5, done_at = $6,
			sort_order = $7, updated_at = $8
		WHERE id = $1`,
		t.ID.String(), t.Title, string(t.Status), nullUserID(t.AssigneeID),
		nullTime(t.DueDate), nullTime(t.DoneAt), t.SortOrder, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update remediation task: %w", err)
	}
	return requireRow(res)
}

func (s *TaskStore) Delete(ctx context.Context, taskID id.TaskID) error {
	res, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM remediation_tasks WHERE id = $1`, taskID.String())
	if err != nil {
		return fmt.Errorf("delete remediation task: %w", err)
	}
	return requireRow(res)
}
