package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"conforma/internal/iam/models"
	"conforma/pkg/platform/audit"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

type LoginInput struct {
	TenantID id.TenantID
	Email    string
	Password string
}

type LoginResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        *models.User `json:"user"`
}

// errInvalidCredentials is returned for every authentication failure so a
// caller cannot distinguish a wrong password from a missing account.
var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

// Login authenticates a user and mints an access token. A login on a
// suspended or archived tenant fails even when the account itself is fine.
// Failed attempts count toward the lockout; the row is held across the check
// and the counter update so concurrent attempts cannot skip the lock.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, errInvalidCredentials
	}

	if s.limiter != nil {
		key := in.TenantID.String() + ":" + email + ":" + requestcontext.ClientIP(ctx)
		if !s.limiter.Allow(key) {
			return nil, dErrors.New(dErrors.CodeRateLimited, "too many login attempts")
		}
	}

	active, err := s.tenants.IsTenantActive(ctx, in.TenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve tenant")
	}
	if !active {
		s.logger.WarnContext(ctx, "login rejected - tenant not active",
			"tenant_id", in.TenantID.String(),
		)
		return nil, errInvalidCredentials
	}

	now := requestcontext.Now(ctx)
	var (
		authenticated bool
		newlyLocked   bool
	)
	user, err := s.users.Execute(ctx, in.TenantID, email,
		func(u *models.User) error {
			if u.Status != models.UserStatusActive {
				return errInvalidCredentials
			}
			if u.IsLocked(now) {
				return dErrors.New(dErrors.CodeUnauthorized, "account is locked")
			}
			return nil
		},
		func(u *models.User) {
			if u.CheckPassword(in.Password) {
				authenticated = true
				u.RecordLoginSuccess(now)
				return
			}
			wasLocked := u.IsLocked(now)
			u.RecordLoginFailure(now, s.policy.MaxLoginFails, s.policy.LockoutDuration)
			newlyLocked = !wasLocked && u.IsLocked(now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if !authenticated {
		if auditErr := s.recordForTenant(ctx, in.TenantID, audit.EventLoginFailed, "user", user.ID.String(), email); auditErr != nil {
			return nil, auditErr
		}
		if newlyLocked {
			if auditErr := s.recordForTenant(ctx, in.TenantID, audit.EventAccountLocked, "user", user.ID.String(),
				"locked after repeated login failures"); auditErr != nil {
				return nil, auditErr
			}
		}
		if s.metrics != nil {
			s.metrics.IncrementLogins("failed")
		}
		return nil, errInvalidCredentials
	}

	tokenStr, _, err := s.tokens.GenerateAccessToken(user.ID, user.TenantID, s.policy.AccessTokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	if err := s.recordForTenant(ctx, in.TenantID, audit.EventLoginSucceeded, "user", user.ID.String(), email); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementLogins("succeeded")
	}

	return &LoginResult{
		AccessToken: tokenStr,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.policy.AccessTokenTTL / time.Second),
		User:        user,
	}, nil
}

// Logout revokes the presented token's jti until its natural expiry. A nil
// revocation store makes logout a no-op beyond the audit record.
func (s *Service) Logout(ctx context.Context, jti string, remainingTTL time.Duration) error {
	if s.revocation != nil && jti != "" {
		if remainingTTL <= 0 {
			remainingTTL = time.Minute
		}
		if err := s.revocation.RevokeToken(ctx, jti, remainingTTL); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
		}
	}
	return s.record(ctx, audit.EventTokenRevoked, "token", jti, "logout")
}

// Me returns the authenticated caller's account.
func (s *Service) Me(ctx context.Context) (*models.User, error) {
	return s.GetUser(ctx, requestcontext.TenantID(ctx), requestcontext.UserID(ctx))
}
