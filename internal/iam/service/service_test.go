package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"conforma/internal/iam/models"
	"conforma/internal/iam/store/memory"
	"conforma/internal/iam/store/revocation"
	"conforma/internal/iam/token"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

type fakeTenantChecker struct {
	active map[id.TenantID]bool
}

func (f *fakeTenantChecker) IsTenantActive(_ context.Context, tenantID id.TenantID) (bool, error) {
	active, ok := f.active[tenantID]
	return ok && active, nil
}

type IAMServiceSuite struct {
	suite.Suite
	svc        *Service
	revocation *revocation.MemoryStore
	tokens     *token.JWTService
	tenants    *fakeTenantChecker
	tenantID   id.TenantID
	ctx        context.Context
}

func (s *IAMServiceSuite) SetupTest() {
	permissions := memory.NewPermissionStore()
	roles := memory.NewRoleStore(permissions)
	s.tenantID = id.NewTenantID()
	s.tenants = &fakeTenantChecker{active: map[id.TenantID]bool{s.tenantID: true}}
	s.tokens = token.NewJWTService("test-signing-key", "conforma", "conforma-api")
	s.revocation = revocation.NewMemoryStore()
	s.svc = New(
		memory.NewUserStore(),
		roles,
		permissions,
		memory.NewUserRoleStore(roles),
		s.tenants,
		s.tokens,
		WithRevocation(s.revocation),
	)
	s.ctx = context.Background()
	s.Require().NoError(s.svc.SeedPermissionCatalog(s.ctx))
}

func TestIAMServiceSuite(t *testing.T) {
	suite.Run(t, new(IAMServiceSuite))
}

const testPassword = "correct-horse-battery"

func (s *IAMServiceSuite) mustCreateUser(email string) *models.User {
	user, err := s.svc.CreateUser(s.ctx, s.tenantID, CreateUserInput{
		Email:    email,
		FullName: "Test User",
		Password: testPassword,
	})
	s.Require().NoError(err)
	return user
}

func (s *IAMServiceSuite) login(email, password string) (*LoginResult, error) {
	return s.svc.Login(s.ctx, LoginInput{TenantID: s.tenantID, Email: email, Password: password})
}

func (s *IAMServiceSuite) TestCreateUser() {
	s.Run("normalizes email to lowercase", func() {
		user := s.mustCreateUser("Alice@Example.COM")
		s.Equal("alice@example.com", user.Email)
		s.Equal(models.UserStatusActive, user.Status)
	})

	s.Run("rejects duplicate email in same tenant", func() {
		s.mustCreateUser("dup@example.com")
		_, err := s.svc.CreateUser(s.ctx, s.tenantID, CreateUserInput{
			Email: "DUP@example.com", Password: testPassword,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects short password", func() {
		_, err := s.svc.CreateUser(s.ctx, s.tenantID, CreateUserInput{
			Email: "short@example.com", Password: "tiny",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *IAMServiceSuite) TestLogin() {
	s.Run("valid credentials yield a token", func() {
		s.mustCreateUser("login@example.com")
		result, err := s.login("login@example.com", testPassword)
		s.Require().NoError(err)
		s.NotEmpty(result.AccessToken)
		s.Equal("Bearer", result.TokenType)

		claims, err := s.tokens.ValidateToken(result.AccessToken)
		s.Require().NoError(err)
		s.Equal(result.User.ID.String(), claims.UserID)
		s.Equal(s.tenantID.String(), claims.TenantID)
	})

	s.Run("wrong password is rejected uniformly", func() {
		s.mustCreateUser("wrongpw@example.com")
		_, err := s.login("wrongpw@example.com", "not-the-password")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown account is rejected uniformly", func() {
		_, err := s.login("ghost@example.com", testPassword)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("inactive user cannot log in", func() {
		user := s.mustCreateUser("inactive@example.com")
		status := models.UserStatusInactive
		_, err := s.svc.UpdateUser(s.ctx, s.tenantID, user.ID, UpdateUserInput{Status: &status})
		s.Require().NoError(err)

		_, err = s.login("inactive@example.com", testPassword)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("non-active tenant blocks active user", func() {
		s.mustCreateUser("blocked@example.com")
		s.tenants.active[s.tenantID] = false
		defer func() { s.tenants.active[s.tenantID] = true }()

		_, err := s.login("blocked@example.com", testPassword)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *IAMServiceSuite) TestAccountLockout() {
	s.mustCreateUser("lockme@example.com")

	for i := 0; i < s.svc.policy.MaxLoginFails; i++ {
		_, err := s.login("lockme@example.com", "bad-password")
		s.Require().Error(err)
	}

	// Correct password no longer helps until the lockout expires.
	_, err := s.login("lockme@example.com", testPassword)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *IAMServiceSuite) TestLogout() {
	s.mustCreateUser("logout@example.com")
	result, err := s.login("logout@example.com", testPassword)
	s.Require().NoError(err)

	claims, err := s.tokens.ValidateToken(result.AccessToken)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Logout(s.ctx, claims.ID, time.Hour))

	revoked, err := s.revocation.IsTokenRevoked(s.ctx, claims.ID)
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *IAMServiceSuite) TestRoles() {
	s.Run("role names are unique per tenant", func() {
		_, err := s.svc.CreateRole(s.ctx, s.tenantID, CreateRoleInput{Name: "Auditor"})
		s.Require().NoError(err)
		_, err = s.svc.CreateRole(s.ctx, s.tenantID, CreateRoleInput{Name: "auditor"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("system roles cannot be modified or deleted", func() {
		system, err := models.NewRole(id.NewRoleID(), s.tenantID, "Tenant Admin", "", true, time.Now())
		s.Require().NoError(err)
		s.Require().NoError(s.svc.roles.CreateIfNameAvailable(s.ctx, system))

		err = s.svc.GrantPermission(s.ctx, s.tenantID, system.ID, "user.create")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		err = s.svc.DeleteRole(s.ctx, s.tenantID, system.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *IAMServiceSuite) TestPermissionResolution() {
	user := s.mustCreateUser("perms@example.com")
	role, err := s.svc.CreateRole(s.ctx, s.tenantID, CreateRoleInput{Name: "Assessor"})
	s.Require().NoError(err)

	s.Require().NoError(s.svc.GrantPermission(s.ctx, s.tenantID, role.ID, "assessment.create"))
	s.Require().NoError(s.svc.GrantPermission(s.ctx, s.tenantID, role.ID, "response.submit"))

	_, err = s.svc.AssignRole(s.ctx, s.tenantID, user.ID, AssignRoleInput{RoleID: role.ID})
	s.Require().NoError(err)

	perms, err := s.svc.ResolvePermissions(s.ctx, s.tenantID, user.ID)
	s.Require().NoError(err)
	s.Contains(perms, "assessment.create")
	s.Contains(perms, "response.submit")
	s.NotContains(perms, "user.create")
}

func (s *IAMServiceSuite) TestRoleAssignmentScope() {
	user := s.mustCreateUser("scoped@example.com")
	role, err := s.svc.CreateRole(s.ctx, s.tenantID, CreateRoleInput{Name: "Unit Lead"})
	s.Require().NoError(err)

	s.Run("non-global scope requires a scope id", func() {
		_, err := s.svc.AssignRole(s.ctx, s.tenantID, user.ID, AssignRoleInput{
			RoleID:    role.ID,
			ScopeType: models.ScopeBusinessUnit,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate assignment conflicts", func() {
		_, err := s.svc.AssignRole(s.ctx, s.tenantID, user.ID, AssignRoleInput{RoleID: role.ID})
		s.Require().NoError(err)
		_, err = s.svc.AssignRole(s.ctx, s.tenantID, user.ID, AssignRoleInput{RoleID: role.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
