// Package postgres provides the PostgreSQL iam stores. User and role lookups
// carry the tenant id in every WHERE clause; the permission catalog is
// global.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"conforma/internal/iam/models"
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

// UserStore implements service.UserStore.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, tenant_id, email, full_name, password_hash, status,
	failed_logins, locked_until, last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u           models.User
		rawID       string
		rawTenantID string
		status      string
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	if err := row.Scan(&rawID, &rawTenantID, &u.Email, &u.FullName, &u.PasswordHash, &status,
		&u.FailedLogins, &lockedUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return nil, err
	}
	u.ID = userID
	u.TenantID = tenantID
	u.Status = models.UserStatus(status)
	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Time
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}

func (s *UserStore) CreateIfEmailAvailable(ctx context.Context, user *models.User) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, email, full_name, password_hash, status,
			failed_logins, locked_until, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, user.ID.String(), user.TenantID.String(), user.Email, user.FullName, user.PasswordHash,
		string(user.Status), user.FailedLogins, user.LockedUntil, user.LastLoginAt,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, tenantID id.TenantID, userID id.UserID) (*models.User, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), userID.String())
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, tenantID id.TenantID, email string) (*models.User, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND LOWER(email) = LOWER($2)`,
		tenantID.String(), email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

func (s *UserStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.User, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY created_at`,
		tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func (s *UserStore) Update(ctx context.Context, user *models.User) error {
	res, err := exec(ctx, s.db).ExecContext(ctx, `
		UPDATE users SET email = $3, full_name = $4, password_hash = $5, status = $6,
			failed_logins = $7, locked_until = $8, last_login_at = $9, updated_at = $10
		WHERE tenant_id = $1 AND id = $2
	`, user.TenantID.String(), user.ID.String(), user.Email, user.FullName, user.PasswordHash,
		string(user.Status), user.FailedLogins, user.LockedUntil, user.LastLoginAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res)
}

// Execute locks the user row with FOR UPDATE across validate and mutate so
// concurrent logins cannot race the failure counter.
func (s *UserStore) Execute(ctx context.Context, tenantID id.TenantID, email string,
	validate func(*models.User) error, mutate func(*models.User)) (*models.User, error) {
	run := func(ctx context.Context, ex executor) (*models.User, error) {
		row := ex.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND LOWER(email) = LOWER($2) FOR UPDATE`,
			tenantID.String(), email)
		user, err := scanUser(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, sentinel.ErrNotFound
			}
			return nil, fmt.Errorf("lock user: %w", err)
		}
		if err := validate(user); err != nil {
			return nil, err
		}
		mutate(user)

		if _, err := ex.ExecContext(ctx, `
			UPDATE users SET failed_logins = $3, locked_until = $4, last_login_at = $5, updated_at = $6
			WHERE tenant_id = $1 AND id = $2
		`, tenantID.String(), user.ID.String(), user.FailedLogins, user.LockedUntil,
			user.LastLoginAt, user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("update login state: %w", err)
		}
		return user, nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin user tx: %w", err)
	}
	user, err := run(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit user tx: %w", err)
	}
	return user, nil
}

// RoleStore implements service.RoleStore.
type RoleStore struct {
	db *sql.DB
}

func NewRoleStore(db *sql.DB) *RoleStore {
	return &RoleStore{db: db}
}

func scanRole(row interface{ Scan(...any) error }) (*models.Role, error) {
	var (
		r           models.Role
		rawID       string
		rawTenantID string
	)
	if err := row.Scan(&rawID, &rawTenantID, &r.Name, &r.Description, &r.IsSystem, &r.CreatedAt); err != nil {
		return nil, err
	}
	roleID, err := id.ParseRoleID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return nil, err
	}
	r.ID = roleID
	r.TenantID = tenantID
	return &r, nil
}

const roleColumns = `id, tenant_id, name, description, is_system, created_at`

func (s *RoleStore) CreateIfNameAvailable(ctx context.Context, role *models.Role) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO roles (id, tenant_id, name, description, is_system, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, role.ID.String(), role.TenantID.String(), role.Name, role.Description, role.IsSystem, role.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (s *RoleStore) FindByID(ctx context.Context, tenantID id.TenantID, roleID id.RoleID) (*models.Role, error) {
	row := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), roleID.String())
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return role, nil
}

func (s *RoleStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Role, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 ORDER BY created_at`,
		tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (s *RoleStore) Delete(ctx context.Context, tenantID id.TenantID, roleID id.RoleID) error {
	res, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM roles WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), roleID.String())
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return requireRow(res)
}

func (s *RoleStore) GrantPermission(ctx context.Context, roleID id.RoleID, permissionID id.PermissionID) error {
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`, roleID.String(), permissionID.String())
	if err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}
	return nil
}

func (s *RoleStore) RevokePermission(ctx context.Context, roleID id.RoleID, permissionID id.PermissionID) error {
	_, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID.String(), permissionID.String())
	if err != nil {
		return fmt.Errorf("revoke permission: %w", err)
	}
	return nil
}

func (s *RoleStore) ListPermissions(ctx context.Context, roleID id.RoleID) ([]models.Permission, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx, `
		SELECT p.id, p.code, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.code
	`, roleID.String())
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]models.Permission, error) {
	var out []models.Permission
	for rows.Next() {
		var (
			p     models.Permission
			rawID string
		)
		if err := rows.Scan(&rawID, &p.Code, &p.Description); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		pid, err := id.ParsePermissionID(rawID)
		if err != nil {
			return nil, err
		}
		p.ID = pid
		out = append(out, p)
	}
	return out, rows.Err()
}

// PermissionStore implements service.PermissionStore over the global
// catalog.
type PermissionStore struct {
	db *sql.DB
}

func NewPermissionStore(db *sql.DB) *PermissionStore {
	return &PermissionStore{db: db}
}

func (s *PermissionStore) Seed(ctx context.Context, permissions []models.Permission) error {
	for _, p := range permissions {
		pid := p.ID
		if pid.IsNil() {
			pid = id.NewPermissionID()
		}
		if _, err := exec(ctx, s.db).ExecContext(ctx, `
			INSERT INTO permissions (id, code, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description
		`, pid.String(), p.Code, p.Description); err != nil {
			return fmt.Errorf("seed permission %s: %w", p.Code, err)
		}
	}
	return nil
}

func (s *PermissionStore) FindByCode(ctx context.Context, code string) (*models.Permission, error) {
	var (
		p     models.Permission
		rawID string
	)
	err := exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, code, description FROM permissions WHERE code = $1`, code).
		Scan(&rawID, &p.Code, &p.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find permission: %w", err)
	}
	pid, err := id.ParsePermissionID(rawID)
	if err != nil {
		return nil, err
	}
	p.ID = pid
	return &p, nil
}

func (s *PermissionStore) ListAll(ctx context.Context) ([]models.Permission, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx,
		`SELECT id, code, description FROM permissions ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// UserRoleStore implements service.UserRoleStore.
type UserRoleStore struct {
	db *sql.DB
}

func NewUserRoleStore(db *sql.DB) *UserRoleStore {
	return &UserRoleStore{db: db}
}

func (s *UserRoleStore) Assign(ctx context.Context, a *models.UserRole) error {
	var scopeID any
	if a.ScopeID != nil {
		scopeID = a.ScopeID.String()
	}
	_, err := exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO user_roles (id, tenant_id, user_id, role_id, scope_type, scope_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID.String(), a.TenantID.String(), a.UserID.String(), a.RoleID.String(),
		string(a.ScopeType), scopeID, a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert user role: %w", err)
	}
	return nil
}

func (s *UserRoleStore) Remove(ctx context.Context, tenantID id.TenantID, assignmentID uuid.UUID) error {
	res, err := exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM user_roles WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), assignmentID.String())
	if err != nil {
		return fmt.Errorf("delete user role: %w", err)
	}
	return requireRow(res)
}

func (s *UserRoleStore) ListByUser(ctx context.Context, tenantID id.TenantID, userID id.UserID) ([]*models.UserRole, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx, `
		SELECT id, tenant_id, user_id, role_id, scope_type, scope_id, created_at
		FROM user_roles WHERE tenant_id = $1 AND user_id = $2 ORDER BY created_at
	`, tenantID.String(), userID.String())
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	defer rows.Close()

	var out []*models.UserRole
	for rows.Next() {
		var (
			a           models.UserRole
			rawID       string
			rawTenantID string
			rawUserID   string
			rawRoleID   string
			scopeType   string
			scopeID     sql.NullString
		)
		if err := rows.Scan(&rawID, &rawTenantID, &rawUserID, &rawRoleID, &scopeType, &scopeID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		assignmentID, err := uuid.Parse(rawID)
		if err != nil {
			return nil, err
		}
		tid, err := id.ParseTenantID(rawTenantID)
		if err != nil {
			return nil, err
		}
		uid, err := id.ParseUserID(rawUserID)
		if err != nil {
			return nil, err
		}
		rid, err := id.ParseRoleID(rawRoleID)
		if err != nil {
			return nil, err
		}
		a.ID = assignmentID
		a.TenantID = tid
		a.UserID = uid
		a.RoleID = rid
		a.ScopeType = models.ScopeType(scopeType)
		if scopeID.Valid {
			sid, err := uuid.Parse(scopeID.String)
			if err != nil {
				return nil, err
			}
			a.ScopeID = &sid
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ResolvePermissionCodes returns the union of permission codes across all of
// the user's role assignments, regardless of scope.
func (s *UserRoleStore) ResolvePermissionCodes(ctx context.Context, tenantID id.TenantID, userID id.UserID) (map[string]struct{}, error) {
	rows, err := exec(ctx, s.db).QueryContext(ctx, `
		SELECT DISTINCT p.code
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.tenant_id = $1 AND ur.user_id = $2
	`, tenantID.String(), userID.String())
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	defer rows.Close()

	codes := make(map[string]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan permission code: %w", err)
		}
		codes[code] = struct{}{}
	}
	return codes, rows.Err()
}
