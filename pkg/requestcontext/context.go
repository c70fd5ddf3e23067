// Package requestcontext provides HTTP-independent accessors for
// request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
// Tests inject them directly (WithTenantID, WithTime) to run services outside
// the middleware chain.
package requestcontext

import (
	"context"
	"time"

	id "conforma/pkg/domain"
)

type (
	tenantIDKey    struct{}
	userIDKey      struct{}
	permissionsKey struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
)

// TenantID retrieves the authenticated tenant scope from the context.
// Returns the zero value if not set; services must treat that as unauthorized.
func TenantID(ctx context.Context) id.TenantID {
	if tenantID, ok := ctx.Value(tenantIDKey{}).(id.TenantID); ok {
		return tenantID
	}
	return id.TenantID{}
}

// WithTenantID injects the tenant scope into the context.
func WithTenantID(ctx context.Context, tenantID id.TenantID) context.Context {
	return context.WithValue(ctx, tenantIDKey{}, tenantID)
}

// UserID retrieves the authenticated user ID from the context.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(userIDKey{}).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// Permissions retrieves the permission codes resolved for the authenticated
// user. A nil map means permissions were never resolved (unauthenticated path).
func Permissions(ctx context.Context) map[string]struct{} {
	if perms, ok := ctx.Value(permissionsKey{}).(map[string]struct{}); ok {
		return perms
	}
	return nil
}

// HasPermission reports whether the context carries the given permission code.
func HasPermission(ctx context.Context, code string) bool {
	_, ok := Permissions(ctx)[code]
	return ok
}

// WithPermissions injects the resolved permission set into the context.
func WithPermissions(ctx context.Context, perms map[string]struct{}) context.Context {
	return context.WithValue(ctx, permissionsKey{}, perms)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context, falling back to
// time.Now() for non-HTTP contexts (workers, CLI, tests that don't care).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a fixed time into the context. Used by the request-time
// middleware and by tests that assert on timestamps.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// ClientIP retrieves the client IP recorded by the metadata middleware.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the client User-Agent recorded by the metadata middleware.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into the context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}
