// Package postgres provides the PostgreSQL question bank stores.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"conforma/internal/questionbank/models"
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

// QuestionStore implements service.QuestionStore.
type QuestionStore struct {
	db *sql.DB
}

func NewQuestionStore(db *sql.DB) *QuestionStore {
	return &QuestionStore{db: db}
}

const questionColumns = `id, tenant_id, code, text, question_type, scale_type,
	guidance, evidence_hints, status, created_at, updated_at`

func scanQuestion(row interface{ Scan(...any) error }) (*models.Question, error) {
	var (
		q            models.Question
		rawID        string
		rawTenantID  string
		questionType string
		scaleType    string
		status       string
	)
	if err := row.Scan(&rawID, &rawTenantID, &q.Code, &q.Text, &questionType, &scaleType,
		&q.Guidance, &q.EvidenceHints, &status, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	questionID, err := id.ParseQuestionID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return nil, err
	}
	q.ID = questionID
	q.TenantID = tenantID
	q.QuestionType = models.QuestionType(questionType)
	q.ScaleType = models.ScaleType(scaleType)
	q.Status = models.QuestionStatus(status)
	return &q, nil
}

func (s *QuestionStore) CreateIfCodeAvailable(ctx context.Context, question *models.Question) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO questions (id, tenant_id, code, text, question_type, scale_type,
			guidance, evidence_hints, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, question.ID.String(), question.TenantID.String(), question.Code, question.Text,
		string(question.QuestionType), string(question.ScaleType), question.Guidance,
		question.EvidenceHints, string(question.Status), question.CreatedAt, question.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *QuestionStore) FindByID(ctx context.Context, tenantID id.TenantID, questionID id.QuestionID) (*models.Question, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), questionID.String())
	question, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select question: %w", err)
	}
	return question, nil
}

func (s *QuestionStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Question, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE tenant_id = $1 ORDER BY code`,
		tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []*models.Question
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, question)
	}
	return out, rows.Err()
}

func (s *QuestionStore) Update(ctx context.Context, question *models.Question) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE questions SET text = $3, guidance = $4, evidence_hints = $5, status = $6, updated_at = $7
		WHERE tenant_id = $1 AND id = $2
	`, question.TenantID.String(), question.ID.String(), question.Text, question.Guidance,
		question.EvidenceHints, string(question.Status), question.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return requireRow(res)
}

// OptionStore implements service.OptionStore.
type OptionStore struct {
	db *sql.DB
}

func NewOptionStore(db *sql.DB) *OptionStore {
	return &OptionStore{db: db}
}

const optionColumns = `id, question_id, value, label, score, sort_order`

func scanOption(row interface{ Scan(...any) error }) (*models.QuestionOption, error) {
	var (
		o             models.QuestionOption
		rawID         string
		rawQuestionID string
	)
	if err := row.Scan(&rawID, &rawQuestionID, &o.Value, &o.Label, &o.Score, &o.SortOrder); err != nil {
		return nil, err
	}
	optionID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, err
	}
	questionID, err := id.ParseQuestionID(rawQuestionID)
	if err != nil {
		return nil, err
	}
	o.ID = optionID
	o.QuestionID = questionID
	return &o, nil
}

func (s *OptionStore) Create(ctx context.Context, option *models.QuestionOption) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO question_options (id, question_id, value, label, score, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, option.ID.String(), option.QuestionID.String(), option.Value, option.Label,
		option.Score, option.SortOrder)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert option: %w", err)
	}
	return nil
}

func (s *OptionStore) ListByQuestion(ctx context.Context, questionID id.QuestionID) ([]*models.QuestionOption, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+optionColumns+` FROM question_options WHERE question_id = $1 ORDER BY sort_order, value`,
		questionID.String())
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	var out []*models.QuestionOption
	for rows.Next() {
		option, err := scanOption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		out = append(out, option)
	}
	return out, rows.Err()
}

func (s *OptionStore) Delete(ctx context.Context, questionID id.QuestionID, optionID uuid.UUID) error {
	res, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM question_options WHERE question_id = $1 AND id = $2`,
		questionID.String(), optionID.String())
	if err != nil {
		return fmt.Errorf("delete option: %w", err)
	}
	return requireRow(res)
}

func (s *OptionStore) DeleteByQuestion(ctx context.Context, questionID id.QuestionID) error {
	_, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM question_options WHERE question_id = $1`, questionID.String())
	if err != nil {
		return fmt.Errorf("delete options: %w", err)
	}
	return nil
}

// MapStore implements service.MapStore.
type MapStore struct {
	db *sql.DB
}

func NewMapStore(db *sql.DB) *MapStore {
	return &MapStore{db: db}
}

const mapColumns = `id, tenant_id, control_id, question_id, is_mandatory, sort_order, created_at`

func scanMap(row interface{ Scan(...any) error }) (*models.ControlQuestionMap, error) {
	var (
		m             models.ControlQuestionMap
		rawID         string
		rawTenantID   string
		rawControlID  string
		rawQuestionID string
	)
	if err := row.Scan(&rawID, &rawTenantID, &rawControlID, &rawQuestionID,
		&m.IsMandatory, &m.SortOrder, &m.CreatedAt); err != nil {
		return nil, err
	}
	mapID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return nil, err
	}
	controlID, err := id.ParseControlID(rawControlID)
	if err != nil {
		return nil, err
	}
	questionID, err := id.ParseQuestionID(rawQuestionID)
	if err != nil {
		return nil, err
	}
	m.ID = mapID
	m.TenantID = tenantID
	m.ControlID = controlID
	m.QuestionID = questionID
	return &m, nil
}

func (s *MapStore) CreateIfAbsent(ctx context.Context, m *models.ControlQuestionMap) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO control_question_maps (id, tenant_id, control_id, question_id, is_mandatory, sort_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID.String(), m.TenantID.String(), m.ControlID.String(), m.QuestionID.String(),
		m.IsMandatory, m.SortOrder, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert mapping: %w", err)
	}
	return nil
}

func (s *MapStore) Delete(ctx context.Context, tenantID id.TenantID, controlID id.ControlID, questionID id.QuestionID) error {
	res, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM control_question_maps WHERE tenant_id = $1 AND control_id = $2 AND question_id = $3`,
		tenantID.String(), controlID.String(), questionID.String())
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return requireRow(res)
}

func (s *MapStore) ListByControl(ctx context.Context, tenantID id.TenantID, controlID id.ControlID) ([]*models.ControlQuestionMap, error) {
	return s.list(ctx,
		`SELECT `+mapColumns+` FROM control_question_maps
		 WHERE tenant_id = $1 AND control_id = $2 ORDER BY sort_order`,
		tenantID.String(), controlID.String())
}

func (s *MapStore) ListByQuestion(ctx context.Context, tenantID id.TenantID, questionID id.QuestionID) ([]*models.ControlQuestionMap, error) {
	return s.list(ctx,
		`SELECT `+mapColumns+` FROM control_question_maps
		 WHERE tenant_id = $1 AND question_id = $2 ORDER BY sort_order`,
		tenantID.String(), questionID.String())
}

func (s *MapStore) ListForControls(ctx context.Context, tenantID id.TenantID, controlIDs []id.ControlID) ([]*models.ControlQuestionMap, error) {
	raw := make([]string, 0, len(controlIDs))
	for _, controlID := range controlIDs {
		raw = append(raw, controlID.String())
	}
	return s.list(ctx,
		`SELECT `+mapColumns+` FROM control_question_maps
		 WHERE tenant_id = $1 AND control_id = ANY($2::uuid[]) ORDER BY control_id, sort_order`,
		tenantID.String(), pq.Array(raw))
}

func (s *MapStore) list(ctx context.Context, query string, args ...any) ([]*models.ControlQuestionMap, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var out []*models.ControlQuestionMap
	for rows.Next() {
		m, err := scanMap(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
