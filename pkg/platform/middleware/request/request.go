// Package request assigns each inbound request a correlation id. The id is
// echoed in the X-Request-ID response header and threaded through the
// context so log lines and audit events from one request can be joined.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"conforma/pkg/requestcontext"
)

const headerRequestID = "X-Request-ID"

// Middleware honors a caller-supplied X-Request-ID; otherwise it mints one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(headerRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the correlation id from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
