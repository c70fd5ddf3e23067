package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"conforma/internal/iam/models"
	iammetrics "conforma/internal/iam/metrics"
	"conforma/pkg/platform/audit"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
)

// UserStore persists user accounts. Execute loads the user by email and
// applies validate then mutate while holding the row, so concurrent logins
// cannot race the failure counter.
type UserStore interface {
	CreateIfEmailAvailable(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, tenantID id.TenantID, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, tenantID id.TenantID, email string) (*models.User, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Execute(ctx context.Context, tenantID id.TenantID, email string,
		validate func(*models.User) error, mutate func(*models.User)) (*models.User, error)
}

// RoleStore persists roles and their permission grants.
type RoleStore interface {
	CreateIfNameAvailable(ctx context.Context, role *models.Role) error
	FindByID(ctx context.Context, tenantID id.TenantID, roleID id.RoleID) (*models.Role, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Role, error)
	Delete(ctx context.Context, tenantID id.TenantID, roleID id.RoleID) error
	GrantPermission(ctx context.Context, roleID id.RoleID, permissionID id.PermissionID) error
	RevokePermission(ctx context.Context, roleID id.RoleID, permissionID id.PermissionID) error
	ListPermissions(ctx context.Context, roleID id.RoleID) ([]models.Permission, error)
}

// PermissionStore holds the global permission catalog.
type PermissionStore interface {
	Seed(ctx context.Context, permissions []models.Permission) error
	FindByCode(ctx context.Context, code string) (*models.Permission, error)
	ListAll(ctx context.Context) ([]models.Permission, error)
}

// UserRoleStore persists role assignments and resolves effective permissions.
type UserRoleStore interface {
	Assign(ctx context.Context, assignment *models.UserRole) error
	Remove(ctx context.Context, tenantID id.TenantID, assignmentID uuid.UUID) error
	ListByUser(ctx context.Context, tenantID id.TenantID, userID id.UserID) ([]*models.UserRole, error)
	ResolvePermissionCodes(ctx context.Context, tenantID id.TenantID, userID id.UserID) (map[string]struct{}, error)
}

// TenantChecker reports whether a tenant may authenticate. Adapted from the
// tenancy service; a suspended or archived tenant blocks every login.
type TenantChecker interface {
	IsTenantActive(ctx context.Context, tenantID id.TenantID) (bool, error)
}

// TokenIssuer mints access tokens. Implemented by the token package.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, tenantID id.TenantID, expiresIn time.Duration) (token string, jti string, err error)
}

// RevocationStore invalidates tokens before expiry.
type RevocationStore interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// LoginLimiter throttles login attempts per caller.
type LoginLimiter interface {
	Allow(key string) bool
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Policy carries the account-lockout and token lifetimes.
type Policy struct {
	AccessTokenTTL  time.Duration
	MaxLoginFails   int
	LockoutDuration time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		AccessTokenTTL:  time.Hour,
		MaxLoginFails:   5,
		LockoutDuration: 30 * time.Minute,
	}
}

// Service implements user, role, and authentication operations.
type Service struct {
	users       UserStore
	roles       RoleStore
	permissions PermissionStore
	userRoles   UserRoleStore
	tenants     TenantChecker
	tokens      TokenIssuer
	revocation  RevocationStore
	limiter     LoginLimiter
	policy      Policy
	auditor     *audit.Recorder
	metrics     *iammetrics.Metrics
	logger      *slog.Logger
	txRunner    TxRunner
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditor(recorder *audit.Recorder) Option {
	return func(s *Service) { s.auditor = recorder }
}

func WithMetrics(m *iammetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.txRunner = tx }
}

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithRevocation(store RevocationStore) Option {
	return func(s *Service) { s.revocation = store }
}

func WithLoginLimiter(l LoginLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

func New(users UserStore, roles RoleStore, permissions PermissionStore, userRoles UserRoleStore,
	tenants TenantChecker, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:       users,
		roles:       roles,
		permissions: permissions,
		userRoles:   userRoles,
		tenants:     tenants,
		tokens:      tokens,
		policy:      DefaultPolicy(),
		logger:      slog.Default(),
		txRunner:    noTx{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Service) record(ctx context.Context, action audit.AuditEvent, objectType, objectID, detail string) error {
	if s.auditor == nil {
		return nil
	}
	return s.auditor.Record(ctx, action, objectType, objectID, detail)
}

func (s *Service) recordForTenant(ctx context.Context, tenantID id.TenantID, action audit.AuditEvent, objectType, objectID, detail string) error {
	if s.auditor == nil {
		return nil
	}
	return s.auditor.RecordForTenant(ctx, tenantID, action, objectType, objectID, detail)
}

func notFound(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}

// ResolvePermissions satisfies the auth middleware's PermissionResolver.
func (s *Service) ResolvePermissions(ctx context.Context, tenantID id.TenantID, userID id.UserID) (map[string]struct{}, error) {
	return s.userRoles.ResolvePermissionCodes(ctx, tenantID, userID)
}

// SeedPermissionCatalog upserts the global catalog. Idempotent; called at
// startup.
func (s *Service) SeedPermissionCatalog(ctx context.Context) error {
	return s.permissions.Seed(ctx, models.PermissionCatalog)
}
