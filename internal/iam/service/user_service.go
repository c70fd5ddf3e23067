package service

import (
	"context"
	"errors"
	"strings"

	"conforma/internal/iam/models"
	"conforma/pkg/platform/audit"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

type CreateUserInput struct {
	Email    string
	FullName string
	Password string
}

// CreateUser registers an account under the caller's tenant. Email is
// normalized to lowercase and must be unique within the tenant.
func (s *Service) CreateUser(ctx context.Context, tenantID id.TenantID, in CreateUserInput) (*models.User, error) {
	var user *models.User
	err := s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		u, err := models.NewUser(id.NewUserID(), tenantID, in.Email, in.FullName, in.Password, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}
		if err := s.users.CreateIfEmailAvailable(txCtx, u); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "email already registered for this tenant")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
		}
		if err := s.recordForTenant(txCtx, tenantID, audit.EventUserCreated, "user", u.ID.String(), u.Email); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementUsersCreated()
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, tenantID id.TenantID, userID id.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, tenantID, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, tenantID id.TenantID) ([]*models.User, error) {
	users, err := s.users.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

type UpdateUserInput struct {
	FullName *string
	Status   *models.UserStatus
}

// UpdateUser applies partial updates to the profile and account status.
func (s *Service) UpdateUser(ctx context.Context, tenantID id.TenantID, userID id.UserID, in UpdateUserInput) (*models.User, error) {
	user, err := s.users.FindByID(ctx, tenantID, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}
	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown user status %q", *in.Status)
		}
		user.Status = *in.Status
	}
	user.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

// DeactivateUser marks the account inactive. Accounts are never hard-deleted
// so the audit trail keeps a valid actor reference.
func (s *Service) DeactivateUser(ctx context.Context, tenantID id.TenantID, userID id.UserID) error {
	status := models.UserStatusInactive
	_, err := s.UpdateUser(ctx, tenantID, userID, UpdateUserInput{Status: &status})
	return err
}
