// Package httptransport assembles the chi router from the module handlers
// and the shared middleware chain. It owns no business logic; each module
// registers its own routes and permission gates.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conforma/internal/assessment"
	"conforma/internal/auditlog"
	"conforma/internal/finding"
	"conforma/internal/iam"
	"conforma/internal/iam/token"
	"conforma/internal/platform/config"
	"conforma/internal/platform/metrics"
	platformmw "conforma/internal/platform/middleware"
	"conforma/internal/questionbank"
	"conforma/internal/reporting"
	"conforma/internal/response"
	"conforma/internal/standards"
	"conforma/internal/tenancy"
	"conforma/pkg/platform/middleware/admin"
	"conforma/pkg/platform/middleware/auth"
	"conforma/pkg/platform/middleware/metadata"
	request "conforma/pkg/platform/middleware/request"
	"conforma/pkg/platform/middleware/requesttime"
	"conforma/pkg/platform/middleware/tracing"
)

const requestTimeout = 60 * time.Second

// Deps carries everything the router composes. Handlers register their own
// routes; the router only decides which middleware wraps which group.
type Deps struct {
	Config config.Config
	Logger *slog.Logger

	HTTPMetrics *metrics.HTTP

	TokenValidator auth.TokenValidator
	Revocation     auth.RevocationChecker
	Permissions    auth.PermissionResolver

	// Ready reports whether downstream dependencies accept traffic. Nil
	// means always ready, which is how the memory-backed setup runs.
	Ready func(ctx context.Context) error

	Tenancy      *tenancy.Handler
	IAM          *iam.Handler
	Standards    *standards.Handler
	QuestionBank *questionbank.Handler
	Assessments  *assessment.Handler
	Responses    *response.Handler
	Findings     *finding.Handler
	Reports      *reporting.Handler
	AuditLog     *auditlog.Handler
}

// NewRouter builds the full route tree: health and metrics endpoints, the
// admin-token surface, the public login route, and the bearer-authenticated
// tenant API under /api/v1.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(tracing.Middleware)
	r.Use(platformmw.Recovery(d.Logger))
	r.Use(platformmw.Logger(d.Logger))
	r.Use(platformmw.Timeout(requestTimeout))
	if d.HTTPMetrics != nil {
		r.Use(d.HTTPMetrics.Middleware)
	}
	if len(d.Config.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.Config.Server.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(d.Ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(d.Config.Server.AdminToken, d.Logger))
		r.Use(platformmw.ContentTypeJSON)
		d.Tenancy.RegisterAdmin(r)
		d.Standards.RegisterAdmin(r)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platformmw.ContentTypeJSON)

		d.IAM.RegisterPublic(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(d.TokenValidator, d.Revocation, d.Permissions, d.Logger))
			d.Tenancy.Register(r)
			d.IAM.Register(r)
			d.Standards.Register(r)
			d.QuestionBank.Register(r)
			d.Assessments.Register(r)
			d.Responses.Register(r)
			d.Findings.Register(r)
			d.Reports.Register(r)
			d.AuditLog.Register(r)
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleReady(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

type tokenValidator struct {
	tokens *token.JWTService
}

// NewTokenValidator adapts the iam token service to the auth middleware's
// claim shape.
func NewTokenValidator(tokens *token.JWTService) auth.TokenValidator {
	return tokenValidator{tokens: tokens}
}

func (v tokenValidator) ValidateToken(raw string) (*auth.Claims, error) {
	claims, err := v.tokens.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	return &auth.Claims{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		JTI:      claims.ID,
	}, nil
}
