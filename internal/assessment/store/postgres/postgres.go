// Package postgres provides the PostgreSQL assessment stores.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"conforma/internal/assessment/models"
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

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
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

// AssessmentStore implements service.AssessmentStore.
type AssessmentStore struct {
	db *sql.DB
}

func NewAssessmentStore(db *sql.DB) *AssessmentStore {
	return &AssessmentStore{db: db}
}

const assessmentColumns = `id, tenant_id, code, name, version_id, organization_id,
	business_unit_id, owner_id, status, start_date, due_date, created_by, created_at, updated_at`

func scanAssessment(row interface{ Scan(...any) error }) (*models.Assessment, error) {
	var (
		a             models.Assessment
		rawID         string
		rawTenantID   string
		rawVersionID  string
		rawOrgID      string
		rawBUID       sql.NullString
		rawOwnerID    string
		status        string
		startDate     sql.NullTime
		dueDate       sql.NullTime
		rawCreatedBy  string
	)
	if err := row.Scan(&rawID, &rawTenantID, &a.Code, &a.Name, &rawVersionID, &rawOrgID,
		&rawBUID, &rawOwnerID, &status, &startDate, &dueDate, &rawCreatedBy,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	assessmentID, err := id.ParseAssessmentID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return nil, err
	}
	versionID, err := id.ParseVersionID(rawVersionID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.ParseOrgID(rawOrgID)
	if err != nil {
		return nil, err
	}
	ownerID, err := id.ParseUserID(rawOwnerID)
	if err != nil {
		return nil, err
	}
	createdBy, err := id.ParseUserID(rawCreatedBy)
	if err != nil {
		return nil, err
	}
	a.ID = assessmentID
	a.TenantID = tenantID
	a.VersionID = versionID
	a.OrganizationID = orgID
	a.OwnerID = ownerID
	a.CreatedBy = createdBy
	a.Status = models.AssessmentStatus(status)
	if rawBUID.Valid {
		buID, err := id.ParseBusinessUnitID(rawBUID.String)
		if err != nil {
			return nil, err
		}
		a.BusinessUnitID = &buID
	}
	if startDate.Valid {
		t := startDate.Time
		a.StartDate = &t
	}
	if dueDate.Valid {
		t := dueDate.Time
		a.DueDate = &t
	}
	return &a, nil
}

func nullBusinessUnitID(buID *id.BusinessUnitID) any {
	if buID == nil {
		return nil
	}
	return buID.String()
}

func (s *AssessmentStore) CreateIfCodeAvailable(ctx context.Context, assessment *models.Assessment) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO assessments (id, tenant_id, code, name, version_id, organization_id,
			business_unit_id, owner_id, status, start_date, due_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, assessment.ID.String(), assessment.TenantID.String(), assessment.Code, assessment.Name,
		assessment.VersionID.String(), assessment.OrganizationID.String(),
		nullBusinessUnitID(assessment.BusinessUnitID), assessment.OwnerID.String(),
		string(assessment.Status), assessment.StartDate, assessment.DueDate,
		assessment.CreatedBy.String(), assessment.CreatedAt, assessment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

func (s *AssessmentStore) FindByID(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) (*models.Assessment, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), assessmentID.String())
	assessment, err := scanAssessment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find assessment: %w", err)
	}
	return assessment, nil
}

func (s *AssessmentStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Assessment, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE tenant_id = $1 ORDER BY created_at`,
		tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assessment
	for rows.Next() {
		assessment, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, assessment)
	}
	return out, rows.Err()
}

func (s *AssessmentStore) Update(ctx context.Context, assessment *models.Assessment) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE assessments
		SET name = $2, owner_id = $3, status = $4, start_date = $5, due_date = $6, updated_at = $7
		WHERE id = $1
	`, assessment.ID.String(), assessment.Name, assessment.OwnerID.String(),
		string(assessment.Status), assessment.StartDate, assessment.DueDate, assessment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update assessment: %w", err)
	}
	return requireRow(res)
}

func (s *AssessmentStore) Execute(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID,
	validate func(*models.Assessment) error, mutate func(*models.Assessment)) (*models.Assessment, error) {
	run := func(ctx context.Context, ex executor) (*models.Assessment, error) {
		row := ex.QueryRowContext(ctx,
			`SELECT `+assessmentColumns+` FROM assessments WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
			tenantID.String(), assessmentID.String())
		assessment, err := scanAssessment(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, sentinel.ErrNotFound
			}
			return nil, fmt.Errorf("lock assessment: %w", err)
		}
		if err := validate(assessment); err != nil {
			return nil, err
		}
		mutate(assessment)

		if _, err := ex.ExecContext(ctx, `
			UPDATE assessments
			SET name = $2, owner_id = $3, status = $4, start_date = $5, due_date = $6, updated_at = $7
			WHERE id = $1
		`, assessment.ID.String(), assessment.Name, assessment.OwnerID.String(),
			string(assessment.Status), assessment.StartDate, assessment.DueDate,
			assessment.UpdatedAt); err != nil {
			return nil, fmt.Errorf("update assessment: %w", err)
		}
		return assessment, nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin assessment tx: %w", err)
	}
	assessment, err := run(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assessment tx: %w", err)
	}
	return assessment, nil
}

// ScopeStore implements service.ScopeStore.
type ScopeStore struct {
	db *sql.DB
}

func NewScopeStore(db *sql.DB) *ScopeStore {
	return &ScopeStore{db: db}
}

func (s *ScopeStore) Create(ctx context.Context, scope *models.Scope) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO assessment_scopes (assessment_id, control_id, include_children)
		VALUES ($1, $2, $3)
	`, scope.AssessmentID.String(), scope.ControlID.String(), scope.IncludeChildren)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert scope: %w", err)
	}
	return nil
}

func (s *ScopeStore) ListByAssessment(ctx context.Context, assessmentID id.AssessmentID) ([]*models.Scope, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx, `
		SELECT assessment_id, control_id, include_children
		FROM assessment_scopes WHERE assessment_id = $1
	`, assessmentID.String())
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()

	var out []*models.Scope
	for rows.Next() {
		var (
			scope        models.Scope
			rawAID       string
			rawControlID string
		)
		if err := rows.Scan(&rawAID, &rawControlID, &scope.IncludeChildren); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		aID, err := id.ParseAssessmentID(rawAID)
		if err != nil {
			return nil, err
		}
		controlID, err := id.ParseControlID(rawControlID)
		if err != nil {
			return nil, err
		}
		scope.AssessmentID = aID
		scope.ControlID = controlID
		out = append(out, &scope)
	}
	return out, rows.Err()
}

// QuestionStore implements service.QuestionStore.
type QuestionStore struct {
	db *sql.DB
}

func NewQuestionStore(db *sql.DB) *QuestionStore {
	return &QuestionStore{db: db}
}

const questionColumns = `id, assessment_id, control_id, question_id, question_code,
	question_text, question_type, scale_type, guidance, is_mandatory, sort_order, created_at`

func scanQuestion(row interface{ Scan(...any) error }) (*models.Question, error) {
	var (
		q             models.Question
		rawID         string
		rawAID        string
		rawControlID  string
		rawQuestionID string
	)
	if err := row.Scan(&rawID, &rawAID, &rawControlID, &rawQuestionID, &q.QuestionCode,
		&q.QuestionText, &q.QuestionType, &q.ScaleType, &q.Guidance, &q.IsMandatory,
		&q.SortOrder, &q.CreatedAt); err != nil {
		return nil, err
	}
	questionID, err := id.ParseAssessmentQuestionID(rawID)
	if err != nil {
		return nil, err
	}
	aID, err := id.ParseAssessmentID(rawAID)
	if err != nil {
		return nil, err
	}
	controlID, err := id.ParseControlID(rawControlID)
	if err != nil {
		return nil, err
	}
	bankQuestionID, err := id.ParseQuestionID(rawQuestionID)
	if err != nil {
		return nil, err
	}
	q.ID = questionID
	q.AssessmentID = aID
	q.ControlID = controlID
	q.QuestionID = bankQuestionID
	return &q, nil
}

func (s *QuestionStore) Create(ctx context.Context, question *models.Question) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO assessment_questions (id, assessment_id, control_id, question_id,
			question_code, question_text, question_type, scale_type, guidance,
			is_mandatory, sort_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, question.ID.String(), question.AssessmentID.String(), question.ControlID.String(),
		question.QuestionID.String(), question.QuestionCode, question.QuestionText,
		question.QuestionType, question.ScaleType, question.Guidance,
		question.IsMandatory, question.SortOrder, question.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert assessment question: %w", err)
	}
	return nil
}

func (s *QuestionStore) FindByID(ctx context.Context, assessmentID id.AssessmentID, questionID id.AssessmentQuestionID) (*models.Question, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM assessment_questions WHERE assessment_id = $1 AND id = $2`,
		assessmentID.String(), questionID.String())
	question, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find assessment question: %w", err)
	}
	return question, nil
}

func (s *QuestionStore) ListByAssessment(ctx context.Context, assessmentID id.AssessmentID) ([]*models.Question, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+questionColumns+` FROM assessment_questions
		WHERE assessment_id = $1 ORDER BY control_id, sort_order, question_code`,
		assessmentID.String())
	if err != nil {
		return nil, fmt.Errorf("list assessment questions: %w", err)
	}
	defer rows.Close()

	var out []*models.Question
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment question: %w", err)
		}
		out = append(out, question)
	}
	return out, rows.Err()
}

// AssignmentStore implements service.AssignmentStore.
type AssignmentStore struct {
	db *sql.DB
}

func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

const assignmentColumns = `id, tenant_id, assessment_id, assessment_question_id,
	assignee_id, assigned_by, status, created_at, updated_at`

func scanAssignment(row interface{ Scan(...any) error }) (*models.Assignment, error) {
	var (
		a              models.Assignment
		rawID          string
		rawTenantID    string
		rawAID         string
		rawQuestionID  sql.NullString
		rawAssigneeID  string
		rawAssignedBy  string
		status         string
	)
	if err := row.Scan(&rawID, &rawTenantID, &rawAID, &rawQuestionID, &rawAssigneeID,
		&rawAssignedBy, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	assignmentID, err := id.ParseAssignmentID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return nil, err
	}
	aID, err := id.ParseAssessmentID(rawAID)
	if err != nil {
		return nil, err
	}
	assigneeID, err := id.ParseUserID(rawAssigneeID)
	if err != nil {
		return nil, err
	}
	assignedBy, err := id.ParseUserID(rawAssignedBy)
	if err != nil {
		return nil, err
	}
	a.ID = assignmentID
	a.TenantID = tenantID
	a.AssessmentID = aID
	a.AssigneeID = assigneeID
	a.AssignedBy = assignedBy
	a.Status = models.AssignmentStatus(status)
	if rawQuestionID.Valid {
		questionID, err := id.ParseAssessmentQuestionID(rawQuestionID.String)
		if err != nil {
			return nil, err
		}
		a.QuestionID = &questionID
	}
	return &a, nil
}

func nullQuestionID(questionID *id.AssessmentQuestionID) any {
	if questionID == nil {
		return nil
	}
	return questionID.String()
}

func (s *AssignmentStore) CreateIfAbsent(ctx context.Context, assignment *models.Assignment) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO assignments (id, tenant_id, assessment_id, assessment_question_id,
			assignee_id, assigned_by, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, assignment.ID.String(), assignment.TenantID.String(), assignment.AssessmentID.String(),
		nullQuestionID(assignment.QuestionID), assignment.AssigneeID.String(),
		assignment.AssignedBy.String(), string(assignment.Status),
		assignment.CreatedAt, assignment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (s *AssignmentStore) FindByID(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (*models.Assignment, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), assignmentID.String())
	assignment, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return assignment, nil
}

func (s *AssignmentStore) ListByAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*models.Assignment, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		WHERE tenant_id = $1 AND assessment_id = $2 ORDER BY created_at`,
		tenantID.String(), assessmentID.String())
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, assignment)
	}
	return out, rows.Err()
}

func (s *AssignmentStore) Update(ctx context.Context, assignment *models.Assignment) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE assignments SET status = $2, updated_at = $3 WHERE id = $1
	`, assignment.ID.String(), string(assignment.Status), assignment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return requireRow(res)
}

func (s *AssignmentStore) Delete(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) error {
	res, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM assignments WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), assignmentID.String())
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return requireRow(res)
}
