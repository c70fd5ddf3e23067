// Package postgres provides the PostgreSQL response stores.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"conforma/internal/response/models"
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

func nullUserID(userID *id.UserID) any {
	if userID == nil {
		return nil
	}
	return userID.String()
}

// ResponseStore implements service.ResponseStore.
type ResponseStore struct {
	db *sql.DB
}

func NewResponseStore(db *sql.DB) *ResponseStore {
	return &ResponseStore{db: db}
}

const responseColumns = `id, tenant_id, assessment_id, assessment_question_id, status,
	current_version, answer, maturity_score, submitted_by, submitted_at,
	reviewed_by, reviewed_at, created_at, updated_at`

func scanResponse(row interface{ Scan(...any) error }) (*models.Response, error) {
	var (
		r              models.Response
		rawID          string
		rawTenantID    string
		rawAID         string
		rawQuestionID  string
		status         string
		answer         []byte
		maturityScore  sql.NullFloat64
		rawSubmittedBy sql.NullString
		submittedAt    sql.NullTime
		rawReviewedBy  sql.NullString
		reviewedAt     sql.NullTime
	)
	if err := row.Scan(&rawID, &rawTenantID, &rawAID, &rawQuestionID, &status,
		&r.CurrentVersion, &answer, &maturityScore, &rawSubmittedBy, &submittedAt,
		&rawReviewedBy, &reviewedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	responseID, err := id.ParseResponseID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return nil, err
	}
	assessmentID, err := id.ParseAssessmentID(rawAID)
	if err != nil {
		return nil, err
	}
	questionID, err := id.ParseAssessmentQuestionID(rawQuestionID)
	if err != nil {
		return nil, err
	}
	r.ID = responseID
	r.TenantID = tenantID
	r.AssessmentID = assessmentID
	r.QuestionID = questionID
	r.Status = models.ResponseStatus(status)
	r.Answer = answer
	if maturityScore.Valid {
		score := maturityScore.Float64
		r.MaturityScore = &score
	}
	if rawSubmittedBy.Valid {
		userID, err := id.ParseUserID(rawSubmittedBy.String)
		if err != nil {
			return nil, err
		}
		r.SubmittedBy = &userID
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		r.SubmittedAt = &t
	}
	if rawReviewedBy.Valid {
		userID, err := id.ParseUserID(rawReviewedBy.String)
		if err != nil {
			return nil, err
		}
		r.ReviewedBy = &userID
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		r.ReviewedAt = &t
	}
	return &r, nil
}

func (s *ResponseStore) CreateIfAbsent(ctx context.Context, response *models.Response) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO responses (id, tenant_id, assessment_id, assessment_question_id, status,
			current_version, answer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, response.ID.String(), response.TenantID.String(), response.AssessmentID.String(),
		response.QuestionID.String(), string(response.Status), response.CurrentVersion,
		[]byte(response.Answer), response.CreatedAt, response.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

func (s *ResponseStore) FindByID(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID) (*models.Response, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+responseColumns+` FROM responses WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), responseID.String())
	response, err := scanResponse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find response: %w", err)
	}
	return response, nil
}

func (s *ResponseStore) FindByQuestion(ctx context.Context, tenantID id.TenantID, questionID id.AssessmentQuestionID) (*models.Response, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+responseColumns+` FROM responses WHERE tenant_id = $1 AND assessment_question_id = $2`,
		tenantID.String(), questionID.String())
	response, err := scanResponse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find response by question: %w", err)
	}
	return response, nil
}

func (s *ResponseStore) ListByAssessment(ctx context.Context, tenantID id.TenantID, assessmentID id.AssessmentID) ([]*models.Response, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+responseColumns+` FROM responses
		WHERE tenant_id = $1 AND assessment_id = $2 ORDER BY created_at`,
		tenantID.String(), assessmentID.String())
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []*models.Response
	for rows.Next() {
		response, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, response)
	}
	return out, rows.Err()
}

const updateResponseQuery = `
	UPDATE responses
	SET status = $2, current_version = $3, answer = $4, maturity_score = $5,
		submitted_by = $6, submitted_at = $7, reviewed_by = $8, reviewed_at = $9,
		updated_at = $10
	WHERE id = $1`

func responseUpdateArgs(r *models.Response) []any {
	var score any
	if r.MaturityScore != nil {
		score = *r.MaturityScore
	}
	return []any{
		r.ID.String(), string(r.Status), r.CurrentVersion, []byte(r.Answer), score,
		nullUserID(r.SubmittedBy), r.SubmittedAt, nullUserID(r.ReviewedBy), r.ReviewedAt,
		r.UpdatedAt,
	}
}

func (s *ResponseStore) Update(ctx context.Context, response *models.Response) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, updateResponseQuery, responseUpdateArgs(response)...)
	if err != nil {
		return fmt.Errorf("update response: %w", err)
	}
	return requireRow(res)
}

func (s *ResponseStore) Execute(ctx context.Context, tenantID id.TenantID, responseID id.ResponseID,
	validate func(*models.Response) error, mutate func(*models.Response)) (*models.Response, error) {
	run := func(ctx context.Context, ex executor) (*models.Response, error) {
		row := ex.QueryRowContext(ctx,
			`SELECT `+responseColumns+` FROM responses WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
			tenantID.String(), responseID.String())
		response, err := scanResponse(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, sentinel.ErrNotFound
			}
			return nil, fmt.Errorf("lock response: %w", err)
		}
		if err := validate(response); err != nil {
			return nil, err
		}
		mutate(response)

		if _, err := ex.ExecContext(ctx, updateResponseQuery, responseUpdateArgs(response)...); err != nil {
			return nil, fmt.Errorf("update response: %w", err)
		}
		return response, nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin response tx: %w", err)
	}
	response, err := run(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit response tx: %w", err)
	}
	return response, nil
}

// VersionStore implements service.VersionStore.
type VersionStore struct {
	db *sql.DB
}

func NewVersionStore(db *sql.DB) *VersionStore {
	return &VersionStore{db: db}
}

func (s *VersionStore) Create(ctx context.Context, version *models.Version) error {
	var score any
	if version.MaturityScore != nil {
		score = *version.MaturityScore
	}
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO response_versions (id, response_id, version, answer, maturity_score,
			status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, version.ID.String(), version.ResponseID.String(), version.Version,
		[]byte(version.Answer), score, string(version.Status),
		version.CreatedBy.String(), version.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert response version: %w", err)
	}
	return nil
}

func (s *VersionStore) ListByResponse(ctx context.Context, responseID id.ResponseID) ([]*models.Version, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx, `
		SELECT id, response_id, version, answer, maturity_score, status, created_by, created_at
		FROM response_versions WHERE response_id = $1 ORDER BY version
	`, responseID.String())
	if err != nil {
		return nil, fmt.Errorf("list response versions: %w", err)
	}
	defer rows.Close()

	var out []*models.Version
	for rows.Next() {
		var (
			v             models.Version
			rawID         string
			rawResponseID string
			answer        []byte
			score         sql.NullFloat64
			status        string
			rawCreatedBy  string
		)
		if err := rows.Scan(&rawID, &rawResponseID, &v.Version, &answer, &score,
			&status, &rawCreatedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response version: %w", err)
		}
		versionID, err := uuid.Parse(rawID)
		if err != nil {
			return nil, err
		}
		responseID, err := id.ParseResponseID(rawResponseID)
		if err != nil {
			return nil, err
		}
		createdBy, err := id.ParseUserID(rawCreatedBy)
		if err != nil {
			return nil, err
		}
		v.ID = versionID
		v.ResponseID = responseID
		v.Answer = answer
		v.Status = models.ResponseStatus(status)
		v.CreatedBy = createdBy
		if score.Valid {
			f := score.Float64
			v.MaturityScore = &f
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// ReviewStore implements service.ReviewStore.
type ReviewStore struct {
	db *sql.DB
}

func NewReviewStore(db *sql.DB) *ReviewStore {
	return &ReviewStore{db: db}
}

func (s *ReviewStore) Create(ctx context.Context, review *models.Review) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO response_reviews (id, response_id, reviewer_id, decision, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, review.ID.String(), review.ResponseID.String(), review.ReviewerID.String(),
		string(review.Decision), review.Comment, review.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert response review: %w", err)
	}
	return nil
}

func (s *ReviewStore) ListByResponse(ctx context.Context, responseID id.ResponseID) ([]*models.Review, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx, `
		SELECT id, response_id, reviewer_id, decision, comment, created_at
		FROM response_reviews WHERE response_id = $1 ORDER BY created_at
	`, responseID.String())
	if err != nil {
		return nil, fmt.Errorf("list response reviews: %w", err)
	}
	defer rows.Close()

	var out []*models.Review
	for rows.Next() {
		var (
			r             models.Review
			rawID         string
			rawResponseID string
			rawReviewerID string
			decision      string
		)
		if err := rows.Scan(&rawID, &rawResponseID, &rawReviewerID, &decision,
			&r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response review: %w", err)
		}
		reviewID, err := uuid.Parse(rawID)
		if err != nil {
			return nil, err
		}
		responseID, err := id.ParseResponseID(rawResponseID)
		if err != nil {
			return nil, err
		}
		reviewerID, err := id.ParseUserID(rawReviewerID)
		if err != nil {
			return nil, err
		}
		r.ID = reviewID
		r.ResponseID = responseID
		r.ReviewerID = reviewerID
		r.Decision = models.ReviewDecision(decision)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// EvidenceStore implements service.EvidenceStore.
type EvidenceStore struct {
	db *sql.DB
}

func NewEvidenceStore(db *sql.DB) *EvidenceStore {
	return &EvidenceStore{db: db}
}

const evidenceColumns = `id, tenant_id, object_key, file_name, content_type, size_bytes,
	checksum_sha256, status, uploaded_by, validated_by, validated_at, created_at`

func scanEvidence(row interface{ Scan(...any) error }) (*models.Evidence, error) {
	var (
		e              models.Evidence
		rawID          string
		rawTenantID    string
		status         string
		rawUploadedBy  string
		rawValidatedBy sql.NullString
		validatedAt    sql.NullTime
	)
	if err := row.Scan(&rawID, &rawTenantID, &e.ObjectKey, &e.FileName, &e.ContentType,
		&e.SizeBytes, &e.Checksum, &status, &rawUploadedBy, &rawValidatedBy,
		&validatedAt, &e.CreatedAt); err != nil {
		return nil, err
	}
	evidenceID, err := id.ParseEvidenceID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return nil, err
	}
	uploadedBy, err := id.ParseUserID(rawUploadedBy)
	if err != nil {
		return nil, err
	}
	e.ID = evidenceID
	e.TenantID = tenantID
	e.UploadedBy = uploadedBy
	e.Status = models.EvidenceStatus(status)
	if rawValidatedBy.Valid {
		userID, err := id.ParseUserID(rawValidatedBy.String)
		if err != nil {
			return nil, err
		}
		e.ValidatedBy = &userID
	}
	if validatedAt.Valid {
		t := validatedAt.Time
		e.ValidatedAt = &t
	}
	return &e, nil
}

func (s *EvidenceStore) Create(ctx context.Context, evidence *models.Evidence) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO evidence (id, tenant_id, object_key, file_name, content_type, size_bytes,
			checksum_sha256, status, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, evidence.ID.String(), evidence.TenantID.String(), evidence.ObjectKey,
		evidence.FileName, evidence.ContentType, evidence.SizeBytes, evidence.Checksum,
		string(evidence.Status), evidence.UploadedBy.String(), evidence.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

func (s *EvidenceStore) FindByID(ctx context.Context, tenantID id.TenantID, evidenceID id.EvidenceID) (*models.Evidence, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+evidenceColumns+` FROM evidence WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), evidenceID.String())
	evidence, err := scanEvidence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find evidence: %w", err)
	}
	return evidence, nil
}

func (s *EvidenceStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Evidence, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+evidenceColumns+` FROM evidence WHERE tenant_id = $1 ORDER BY created_at`,
		tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	var out []*models.Evidence
	for rows.Next() {
		evidence, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		out = append(out, evidence)
	}
	return out, rows.Err()
}

func (s *EvidenceStore) Update(ctx context.Context, evidence *models.Evidence) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE evidence SET status = $2, validated_by = $3, validated_at = $4 WHERE id = $1
	`, evidence.ID.String(), string(evidence.Status),
		nullUserID(evidence.ValidatedBy), evidence.ValidatedAt)
	if err != nil {
		return fmt.Errorf("update evidence: %w", err)
	}
	return requireRow(res)
}

// LinkStore implements service.LinkStore.
type LinkStore struct {
	db *sql.DB
}

func NewLinkStore(db *sql.DB) *LinkStore {
	return &LinkStore{db: db}
}

func (s *LinkStore) CreateIfAbsent(ctx context.Context, link *models.EvidenceLink) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO response_evidence (response_id, evidence_id) VALUES ($1, $2)
	`, link.ResponseID.String(), link.EvidenceID.String())
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert evidence link: %w", err)
	}
	return nil
}

func (s *LinkStore) Delete(ctx context.Context, responseID id.ResponseID, evidenceID id.EvidenceID) error {
	res, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM response_evidence WHERE response_id = $1 AND evidence_id = $2`,
		responseID.String(), evidenceID.String())
	if err != nil {
		return fmt.Errorf("delete evidence link: %w", err)
	}
	return requireRow(res)
}

func (s *LinkStore) ListByResponse(ctx context.Context, responseID id.ResponseID) ([]id.EvidenceID, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT evidence_id FROM response_evidence WHERE response_id = $1`,
		responseID.String())
	if err != nil {
		return nil, fmt.Errorf("list evidence links: %w", err)
	}
	defer rows.Close()

	var out []id.EvidenceID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan evidence link: %w", err)
		}
		evidenceID, err := id.ParseEvidenceID(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, evidenceID)
	}
	return out, rows.Err()
}
