// Package tracing starts an OpenTelemetry span per request. Exporter setup is
// the deployment's concern; with no SDK installed the global tracer is a
// no-op and this middleware costs almost nothing.
package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"conforma/pkg/requestcontext"
)

const tracerName = "conforma/http"

// Middleware wraps each request in a server span named "METHOD path".
func Middleware(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("request.id", requestcontext.RequestID(r.Context())),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
