package token

import (
	authmw "conforma/pkg/platform/middleware/auth"
)

// MiddlewareAdapter bridges the JWT service to the auth middleware's
// TokenValidator interface.
type MiddlewareAdapter struct {
	service *JWTService
}

func NewMiddlewareAdapter(service *JWTService) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.Claims{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		JTI:      claims.ID,
	}, nil
}
