package models

import (
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	UserStatusPending   UserStatus = "pending"
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusPending, UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}

// User is an account scoped to a single tenant. Email is unique per tenant,
// compared case-insensitively.
type User struct {
	ID           id.UserID  `json:"id"`
	TenantID     id.TenantID `json:"tenant_id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	PasswordHash string     `json:"-"`
	Status       UserStatus `json:"status"`
	FailedLogins int        `json:"-"`
	LockedUntil  *time.Time `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

const minPasswordLength = 12

// NewUser builds an active user with a bcrypt-hashed password.
func NewUser(userID id.UserID, tenantID id.TenantID, email, fullName, password string, now time.Time) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid email address")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:           userID,
		TenantID:     tenantID,
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HashPassword enforces the minimum length and bcrypt-hashes the password.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", dErrors.Newf(dErrors.CodeValidation, "password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	return string(hash), nil
}

// CheckPassword compares the stored hash against a candidate password.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// IsLocked reports whether the account lockout window is still open.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// RecordLoginFailure bumps the failure counter and locks the account once it
// reaches maxFails.
func (u *User) RecordLoginFailure(now time.Time, maxFails int, lockout time.Duration) {
	u.FailedLogins++
	if u.FailedLogins >= maxFails {
		until := now.Add(lockout)
		u.LockedUntil = &until
	}
	u.UpdatedAt = now
}

// RecordLoginSuccess resets the failure counter and stamps the login time.
func (u *User) RecordLoginSuccess(now time.Time) {
	u.FailedLogins = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
	u.UpdatedAt = now
}
