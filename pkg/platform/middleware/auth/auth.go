// Package auth provides the bearer-token middleware chain for tenant-scoped
// API routes. RequireAuth validates the JWT and its revocation status, then
// resolves the caller's permission set; RequirePermission gates individual
// routes on a permission code.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "conforma/pkg/domain"
	request "conforma/pkg/platform/middleware/request"
	"conforma/pkg/requestcontext"
)

// Claims are the token claims the middleware consumes. The token service in
// the iam module produces them.
type Claims struct {
	UserID   string
	TenantID string
	JTI      string
}

// TokenValidator validates a raw bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// RevocationChecker reports whether a token id has been revoked. Backed by
// Redis in production; nil disables the check.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// PermissionResolver resolves the effective permission codes for a user
// within a tenant. Implemented by the iam access service.
type PermissionResolver interface {
	ResolvePermissions(ctx context.Context, tenantID id.TenantID, userID id.UserID) (map[string]struct{}, error)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the Authorization header and populates the context
// with the caller's user id, tenant scope, and permission set. Every failure
// mode returns 401 with the same body so callers cannot probe token state.
func RequireAuth(validator TokenValidator, revocation RevocationChecker, resolver PermissionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			if revocation != nil {
				if claims.JTI == "" {
					logger.WarnContext(ctx, "unauthorized access - missing token jti",
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
					return
				}
				revoked, err := revocation.IsTokenRevoked(ctx, claims.JTI)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check token revocation",
						"error", err,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to validate token")
					return
				}
				if revoked {
					logger.WarnContext(ctx, "unauthorized access - token revoked",
						"jti", claims.JTI,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Token has been revoked")
					return
				}
			}

			userID, err := id.ParseUserID(claims.UserID)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			tenantID, err := id.ParseTenantID(claims.TenantID)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithUserID(ctx, userID)
			ctx = requestcontext.WithTenantID(ctx, tenantID)

			if resolver != nil {
				perms, err := resolver.ResolvePermissions(ctx, tenantID, userID)
				if err != nil {
					logger.ErrorContext(ctx, "failed to resolve permissions",
						"error", err,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to resolve access")
					return
				}
				ctx = requestcontext.WithPermissions(ctx, perms)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission gates a route on a single permission code. Runs after
// RequireAuth; a missing permission set means unauthenticated.
func RequirePermission(code string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.Permissions(ctx) == nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}
			if !requestcontext.HasPermission(ctx, code) {
				logger.WarnContext(ctx, "forbidden - missing permission",
					"permission", code,
					"user_id", requestcontext.UserID(ctx).String(),
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
