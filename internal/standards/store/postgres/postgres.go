// Package postgres provides the PostgreSQL standards stores. Standards are
// visible to a tenant when they are global (tenant_id IS NULL) or owned by
// that tenant.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"conforma/internal/standards/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// executor is satisfied by *sql.DB and *sql.Tx.
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

// StandardStore implements service.StandardStore.
type StandardStore struct {
	db *sql.DB
}

func NewStandardStore(db *sql.DB) *StandardStore {
	return &StandardStore{db: db}
}

const standardColumns = `id, tenant_id, scope, code, name, description, owner, created_at, updated_at`

func scanStandard(row interface{ Scan(...any) error }) (*models.Standard, error) {
	var (
		s           models.Standard
		rawID       string
		rawTenantID sql.NullString
		scope       string
	)
	if err := row.Scan(&rawID, &rawTenantID, &scope, &s.Code, &s.Name, &s.Description,
		&s.Owner, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	standardID, err := id.ParseStandardID(rawID)
	if err != nil {
		return nil, err
	}
	s.ID = standardID
	s.Scope = models.StandardScope(scope)
	if rawTenantID.Valid {
		tenantID, err := id.ParseTenantID(rawTenantID.String)
		if err != nil {
			return nil, err
		}
		s.TenantID = &tenantID
	}
	return &s, nil
}

func nullTenantID(tenantID *id.TenantID) any {
	if tenantID == nil {
		return nil
	}
	return tenantID.String()
}

func (s *StandardStore) CreateIfCodeAvailable(ctx context.Context, standard *models.Standard) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO standards (id, tenant_id, scope, code, name, description, owner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, standard.ID.String(), nullTenantID(standard.TenantID), string(standard.Scope),
		standard.Code, standard.Name, standard.Description, standard.Owner,
		standard.CreatedAt, standard.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert standard: %w", err)
	}
	return nil
}

func (s *StandardStore) FindByID(ctx context.Context, standardID id.StandardID) (*models.Standard, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+standardColumns+` FROM standards WHERE id = $1`, standardID.String())
	standard, err := scanStandard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select standard: %w", err)
	}
	return standard, nil
}

func (s *StandardStore) ListVisibleTo(ctx context.Context, tenantID id.TenantID) ([]*models.Standard, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+standardColumns+` FROM standards
		 WHERE tenant_id IS NULL OR tenant_id = $1
		 ORDER BY code`, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("list standards: %w", err)
	}
	defer rows.Close()

	var out []*models.Standard
	for rows.Next() {
		standard, err := scanStandard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan standard: %w", err)
		}
		out = append(out, standard)
	}
	return out, rows.Err()
}

func (s *StandardStore) Update(ctx context.Context, standard *models.Standard) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE standards SET name = $2, description = $3, owner = $4, updated_at = $5
		WHERE id = $1
	`, standard.ID.String(), standard.Name, standard.Description, standard.Owner, standard.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update standard: %w", err)
	}
	return requireRow(res)
}

func (s *StandardStore) Delete(ctx context.Context, standardID id.StandardID) error {
	res, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM standards WHERE id = $1`, standardID.String())
	if err != nil {
		return fmt.Errorf("delete standard: %w", err)
	}
	return requireRow(res)
}

// VersionStore implements service.VersionStore.
type VersionStore struct {
	db *sql.DB
}

func NewVersionStore(db *sql.DB) *VersionStore {
	return &VersionStore{db: db}
}

const versionColumns = `id, standard_id, version, status, locked_at, created_at`

func scanVersion(row interface{ Scan(...any) error }) (*models.StandardVersion, error) {
	var (
		v             models.StandardVersion
		rawID         string
		rawStandardID string
		status        string
		lockedAt      sql.NullTime
	)
	if err := row.Scan(&rawID, &rawStandardID, &v.Version, &status, &lockedAt, &v.CreatedAt); err != nil {
		return nil, err
	}
	versionID, err := id.ParseVersionID(rawID)
	if err != nil {
		return nil, err
	}
	standardID, err := id.ParseStandardID(rawStandardID)
	if err != nil {
		return nil, err
	}
	v.ID = versionID
	v.StandardID = standardID
	v.Status = models.VersionStatus(status)
	if lockedAt.Valid {
		v.LockedAt = &lockedAt.Time
	}
	return &v, nil
}

func (s *VersionStore) CreateIfLabelAvailable(ctx context.Context, version *models.StandardVersion) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO standard_versions (id, standard_id, version, status, locked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, version.ID.String(), version.StandardID.String(), version.Version,
		string(version.Status), version.LockedAt, version.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func (s *VersionStore) FindByID(ctx context.Context, versionID id.VersionID) (*models.StandardVersion, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM standard_versions WHERE id = $1`, versionID.String())
	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select version: %w", err)
	}
	return version, nil
}

func (s *VersionStore) ListByStandard(ctx context.Context, standardID id.StandardID) ([]*models.StandardVersion, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+versionColumns+` FROM standard_versions WHERE standard_id = $1 ORDER BY created_at`,
		standardID.String())
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []*models.StandardVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, version)
	}
	return out, rows.Err()
}

// Execute locks the version row so concurrent lock attempts serialize.
func (s *VersionStore) Execute(ctx context.Context, versionID id.VersionID,
	validate func(*models.StandardVersion) error, mutate func(*models.StandardVersion)) (*models.StandardVersion, error) {
	run := func(ctx context.Context, ex executor) (*models.StandardVersion, error) {
		row := ex.QueryRowContext(ctx,
			`SELECT `+versionColumns+` FROM standard_versions WHERE id = $1 FOR UPDATE`,
			versionID.String())
		version, err := scanVersion(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, sentinel.ErrNotFound
			}
			return nil, fmt.Errorf("lock version: %w", err)
		}
		if err := validate(version); err != nil {
			return nil, err
		}
		mutate(version)

		if _, err := ex.ExecContext(ctx, `
			UPDATE standard_versions SET status = $2, locked_at = $3 WHERE id = $1
		`, version.ID.String(), string(version.Status), version.LockedAt); err != nil {
			return nil, fmt.Errorf("update version: %w", err)
		}
		return version, nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin version tx: %w", err)
	}
	version, err := run(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit version tx: %w", err)
	}
	return version, nil
}

// ControlStore implements service.ControlStore.
type ControlStore struct {
	db *sql.DB
}

func NewControlStore(db *sql.DB) *ControlStore {
	return &ControlStore{db: db}
}

const controlColumns = `id, version_id, parent_id, node_type, code, title, description,
	status, criticality, sort_order, created_at`

func scanControl(row interface{ Scan(...any) error }) (*models.ControlNode, error) {
	var (
		n            models.ControlNode
		rawID        string
		rawVersionID string
		rawParentID  sql.NullString
		nodeType     string
		status       string
	)
	if err := row.Scan(&rawID, &rawVersionID, &rawParentID, &nodeType, &n.Code, &n.Title,
		&n.Description, &status, &n.Criticality, &n.SortOrder, &n.CreatedAt); err != nil {
		return nil, err
	}
	controlID, err := id.ParseControlID(rawID)
	if err != nil {
		return nil, err
	}
	versionID, err := id.ParseVersionID(rawVersionID)
	if err != nil {
		return nil, err
	}
	n.ID = controlID
	n.VersionID = versionID
	n.NodeType = models.NodeType(nodeType)
	n.Status = models.ControlStatus(status)
	if rawParentID.Valid {
		parentID, err := id.ParseControlID(rawParentID.String)
		if err != nil {
			return nil, err
		}
		n.ParentID = &parentID
	}
	return &n, nil
}

func nullControlID(controlID *id.ControlID) any {
	if controlID == nil {
		return nil
	}
	return controlID.String()
}

func (s *ControlStore) CreateIfCodeAvailable(ctx context.Context, node *models.ControlNode) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO control_nodes (id, version_id, parent_id, node_type, code, title,
			description, status, criticality, sort_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, node.ID.String(), node.VersionID.String(), nullControlID(node.ParentID),
		string(node.NodeType), node.Code, node.Title, node.Description,
		string(node.Status), node.Criticality, node.SortOrder, node.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert control: %w", err)
	}
	return nil
}

func (s *ControlStore) FindByID(ctx context.Context, controlID id.ControlID) (*models.ControlNode, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+controlColumns+` FROM control_nodes WHERE id = $1`, controlID.String())
	node, err := scanControl(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select control: %w", err)
	}
	return node, nil
}

func (s *ControlStore) FindByCode(ctx context.Context, versionID id.VersionID, code string) (*models.ControlNode, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+controlColumns+` FROM control_nodes WHERE version_id = $1 AND code = $2`,
		versionID.String(), code)
	node, err := scanControl(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("select control by code: %w", err)
	}
	return node, nil
}

func (s *ControlStore) ListByVersion(ctx context.Context, versionID id.VersionID) ([]*models.ControlNode, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+controlColumns+` FROM control_nodes WHERE version_id = $1 ORDER BY sort_order, code`,
		versionID.String())
	if err != nil {
		return nil, fmt.Errorf("list controls: %w", err)
	}
	defer rows.Close()

	var out []*models.ControlNode
	for rows.Next() {
		node, err := scanControl(rows)
		if err != nil {
			return nil, fmt.Errorf("scan control: %w", err)
		}
		out = append(out, node)
	}
	return out, rows.Err()
}

func (s *ControlStore) Update(ctx context.Context, node *models.ControlNode) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE control_nodes SET parent_id = $2, title = $3, description = $4,
			status = $5, criticality = $6, sort_order = $7
		WHERE id = $1
	`, node.ID.String(), nullControlID(node.ParentID), node.Title, node.Description,
		string(node.Status), node.Criticality, node.SortOrder)
	if err != nil {
		return fmt.Errorf("update control: %w", err)
	}
	return requireRow(res)
}

func (s *ControlStore) Delete(ctx context.Context, controlID id.ControlID) error {
	res, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM control_nodes WHERE id = $1`, controlID.String())
	if err != nil {
		return fmt.Errorf("delete control: %w", err)
	}
	return requireRow(res)
}
