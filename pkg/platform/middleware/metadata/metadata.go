// Package metadata extracts client IP and User-Agent from the request and
// stores them in the context. Audit events and the session trail depend on
// both, so this middleware runs early in the chain.
package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"conforma/pkg/requestcontext"
)

// ClientMetadata captures client IP and a normalized User-Agent string.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		ua := NormalizeUserAgent(r.Header.Get("User-Agent"))

		ctx := requestcontext.WithClientMetadata(r.Context(), ip, ua)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NormalizeUserAgent reduces a raw User-Agent header to "Browser x.y on OS"
// so audit rows stay readable. Unparseable agents pass through unchanged.
func NormalizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	parts := name
	if version != "" {
		parts += " " + version
	}
	if os := ua.OS(); os != "" {
		parts += " on " + os
	}
	return parts
}

// ClientIPFromRequest extracts the real client IP, handling proxies and load
// balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...);
	// the first is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" for IPv4 and "[::1]:port" for IPv6.
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
