package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var userID = id.NewUserID()
var tenantID = id.NewTenantID()
var expiresIn = time.Hour

func Test_GenerateAccessToken(t *testing.T) {
	tokenStr, jti, err := jwtService.GenerateAccessToken(userID, tenantID, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)
	require.NotEmpty(t, jti)

	claims, err := jwtService.ValidateToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, tenantID.String(), claims.TenantID)
	assert.Equal(t, jti, claims.ID)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	tokenStr, _, err := jwtService.GenerateAccessToken(userID, tenantID, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(tokenStr)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewJWTService("another-key", "test-issuer", "test-audience")
	tokenStr, _, err := other.GenerateAccessToken(userID, tenantID, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(tokenStr)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_MiddlewareAdapter(t *testing.T) {
	tokenStr, jti, err := jwtService.GenerateAccessToken(userID, tenantID, expiresIn)
	require.NoError(t, err)

	adapter := NewMiddlewareAdapter(jwtService)
	claims, err := adapter.ValidateToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, tenantID.String(), claims.TenantID)
	assert.Equal(t, jti, claims.JTI)
}
