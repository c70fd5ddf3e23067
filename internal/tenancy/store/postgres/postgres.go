// Package postgres provides the PostgreSQL tenancy stores. Tenant scoping is
// enforced in every WHERE clause; a cross-tenant lookup behaves exactly like
// a missing row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"conforma/internal/tenancy/models"
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

// TenantStore implements service.TenantStore.
type TenantStore struct {
	db *sql.DB
}

func NewTenantStore(db *sql.DB) *TenantStore {
	return &TenantStore{db: db}
}

func (s *TenantStore) CreateIfNameAvailable(ctx context.Context, tenant *models.Tenant) error {
	settings, err := json.Marshal(tenant.Settings)
	if err != nil {
		return fmt.Errorf("marshal tenant settings: %w", err)
	}
	_, err = exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO tenants (id, name, status, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tenant.ID.String(), tenant.Name, string(tenant.Status), settings, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

const tenantColumns = `id, name, status, settings, created_at, updated_at`

func scanTenant(row interface{ Scan(...any) error }) (*models.Tenant, error) {
	var (
		t        models.Tenant
		rawID    string
		status   string
		settings []byte
	)
	if err := row.Scan(&rawID, &t.Name, &status, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawID)
	if err != nil {
		return nil, err
	}
	t.ID = tenantID
	t.Status = models.TenantStatus(status)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal tenant settings: %w", err)
		}
	}
	return &t, nil
}

func (s *TenantStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, tenantID.String())
	tenant, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	return tenant, nil
}

func (s *TenantStore) List(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []*models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, tenant)
	}
	return out, rows.Err()
}

// Execute locks the row with FOR UPDATE across validate and mutate. When the
// context already carries a transaction the lock joins it; otherwise a local
// transaction is opened.
func (s *TenantStore) Execute(ctx context.Context, tenantID id.TenantID, validate func(*models.Tenant) error, mutate func(*models.Tenant)) (*models.Tenant, error) {
	run := func(ctx context.Context, ex executor) (*models.Tenant, error) {
		row := ex.QueryRowContext(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE id = $1 FOR UPDATE`, tenantID.String())
		tenant, err := scanTenant(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, sentinel.ErrNotFound
			}
			return nil, fmt.Errorf("lock tenant: %w", err)
		}
		if err := validate(tenant); err != nil {
			return nil, err
		}
		mutate(tenant)

		settings, err := json.Marshal(tenant.Settings)
		if err != nil {
			return nil, fmt.Errorf("marshal tenant settings: %w", err)
		}
		if _, err := ex.ExecContext(ctx, `
			UPDATE tenants SET name = $2, status = $3, settings = $4, updated_at = $5 WHERE id = $1
		`, tenant.ID.String(), tenant.Name, string(tenant.Status), settings, tenant.UpdatedAt); err != nil {
			return nil, fmt.Errorf("update tenant: %w", err)
		}
		return tenant, nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tenant tx: %w", err)
	}
	tenant, err := run(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tenant tx: %w", err)
	}
	return tenant, nil
}

func (s *TenantStore) SetFeatureFlag(ctx context.Context, flag models.FeatureFlag) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO tenant_feature_flags (tenant_id, flag, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, flag) DO UPDATE SET enabled = EXCLUDED.enabled
	`, flag.TenantID.String(), flag.Flag, flag.Enabled)
	if err != nil {
		return fmt.Errorf("upsert feature flag: %w", err)
	}
	return nil
}

func (s *TenantStore) ListFeatureFlags(ctx context.Context, tenantID id.TenantID) ([]models.FeatureFlag, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx, `
		SELECT flag, enabled FROM tenant_feature_flags WHERE tenant_id = $1 ORDER BY flag
	`, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("list feature flags: %w", err)
	}
	defer rows.Close()

	var out []models.FeatureFlag
	for rows.Next() {
		f := models.FeatureFlag{TenantID: tenantID}
		if err := rows.Scan(&f.Flag, &f.Enabled); err != nil {
			return nil, fmt.Errorf("scan feature flag: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// OrganizationStore implements service.OrganizationStore.
type OrganizationStore struct {
	db *sql.DB
}

func NewOrganizationStore(db *sql.DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

const orgColumns = `id, tenant_id, legal_name, sector, regulator, size_band, created_at, updated_at`

func scanOrg(row interface{ Scan(...any) error }) (*models.Organization, error) {
	var (
		o             models.Organization
		rawID, rawTID string
	)
	if err := row.Scan(&rawID, &rawTID, &o.LegalName, &o.Sector, &o.Regulator, &o.SizeBand, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	orgID, err := id.ParseOrgID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTID)
	if err != nil {
		return nil, err
	}
	o.ID, o.TenantID = orgID, tenantID
	return &o, nil
}

func (s *OrganizationStore) CreateIfNameAvailable(ctx context.Context, org *models.Organization) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO organizations (id, tenant_id, legal_name, sector, regulator, size_band, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, org.ID.String(), org.TenantID.String(), org.LegalName, org.Sector, org.Regulator, org.SizeBand, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *OrganizationStore) FindByID(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) (*models.Organization, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1 AND tenant_id = $2`,
		orgID.String(), tenantID.String())
	org, err := scanOrg(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find organization: %w", err)
	}
	return org, nil
}

func (s *OrganizationStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Organization, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE tenant_id = $1 ORDER BY created_at`,
		tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []*models.Organization
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE organizations SET legal_name = $3, sector = $4, regulator = $5, size_band = $6, updated_at = $7
		WHERE id = $1 AND tenant_id = $2
	`, org.ID.String(), org.TenantID.String(), org.LegalName, org.Sector, org.Regulator, org.SizeBand, org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update organization: %w", err)
	}
	return requireRow(res)
}

func (s *OrganizationStore) Delete(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) error {
	res, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM organizations WHERE id = $1 AND tenant_id = $2`,
		orgID.String(), tenantID.String())
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	return requireRow(res)
}

// BusinessUnitStore implements service.BusinessUnitStore.
type BusinessUnitStore struct {
	db *sql.DB
}

func NewBusinessUnitStore(db *sql.DB) *BusinessUnitStore {
	return &BusinessUnitStore{db: db}
}

const unitColumns = `id, tenant_id, organization_id, parent_id, name, status, created_at, updated_at`

func scanUnit(row interface{ Scan(...any) error }) (*models.BusinessUnit, error) {
	var (
		u                     models.BusinessUnit
		rawID, rawTID, rawOID string
		rawParent             sql.NullString
		status                string
	)
	if err := row.Scan(&rawID, &rawTID, &rawOID, &rawParent, &u.Name, &status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	unitID, err := id.ParseBusinessUnitID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.ParseOrgID(rawOID)
	if err != nil {
		return nil, err
	}
	u.ID, u.TenantID, u.OrganizationID = unitID, tenantID, orgID
	u.Status = models.BusinessUnitStatus(status)
	if rawParent.Valid {
		parentID, err := id.ParseBusinessUnitID(rawParent.String)
		if err != nil {
			return nil, err
		}
		u.ParentID = &parentID
	}
	return &u, nil
}

func (s *BusinessUnitStore) CreateIfNameAvailable(ctx context.Context, unit *models.BusinessUnit) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO business_units (id, tenant_id, organization_id, parent_id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, unit.ID.String(), unit.TenantID.String(), unit.OrganizationID.String(), parentArg(unit.ParentID),
		unit.Name, string(unit.Status), unit.CreatedAt, unit.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert business unit: %w", err)
	}
	return nil
}

func (s *BusinessUnitStore) FindByID(ctx context.Context, tenantID id.TenantID, unitID id.BusinessUnitID) (*models.BusinessUnit, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM business_units WHERE id = $1 AND tenant_id = $2`,
		unitID.String(), tenantID.String())
	unit, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find business unit: %w", err)
	}
	return unit, nil
}

func (s *BusinessUnitStore) ListByOrganization(ctx context.Context, tenantID id.TenantID, orgID id.OrgID) ([]*models.BusinessUnit, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+unitColumns+` FROM business_units WHERE tenant_id = $1 AND organization_id = $2 ORDER BY created_at`,
		tenantID.String(), orgID.String())
	if err != nil {
		return nil, fmt.Errorf("list business units: %w", err)
	}
	defer rows.Close()

	var out []*models.BusinessUnit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan business unit: %w", err)
		}
		out = append(out, unit)
	}
	return out, rows.Err()
}

func (s *BusinessUnitStore) Update(ctx context.Context, unit *models.BusinessUnit) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE business_units SET parent_id = $3, name = $4, status = $5, updated_at = $6
		WHERE id = $1 AND tenant_id = $2
	`, unit.ID.String(), unit.TenantID.String(), parentArg(unit.ParentID), unit.Name, string(unit.Status), unit.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update business unit: %w", err)
	}
	return requireRow(res)
}

func (s *BusinessUnitStore) Delete(ctx context.Context, tenantID id.TenantID, unitID id.BusinessUnitID) error {
	res, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM business_units WHERE id = $1 AND tenant_id = $2`,
		unitID.String(), tenantID.String())
	if err != nil {
		return fmt.Errorf("delete business unit: %w", err)
	}
	return requireRow(res)
}

func parentArg(parentID *id.BusinessUnitID) any {
	if parentID == nil {
		return nil
	}
	return parentID.String()
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
