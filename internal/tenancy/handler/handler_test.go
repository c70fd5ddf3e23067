package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	adminmw "conforma/pkg/platform/middleware/admin"

	"conforma/internal/tenancy/service"
	"conforma/internal/tenancy/store/memory"
	id "conforma/pkg/domain"
	"conforma/pkg/requestcontext"
)

const adminToken = "secret-token"

func TestAdminTokenRequired(t *testing.T) {
	router, _ := newRouters(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/tenants", nil)
	// No admin token header set
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when admin token missing, got %d", rec.Code)
	}
}

func TestTenantLifecycleViaHandlers(t *testing.T) {
	router, _ := newRouters(t)

	body, _ := json.Marshal(map[string]string{"name": "Acme"})
	req := httptest.NewRequest(http.MethodPost, "/admin/tenants", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", adminToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating tenant, got %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode tenant response: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatalf("expected tenant id in response")
	}
	if created.Status != "trial" {
		t.Fatalf("expected new tenant in trial, got %q", created.Status)
	}

	transitionBody, _ := json.Marshal(map[string]string{"status": "active"})
	transitionReq := httptest.NewRequest(http.MethodPost, "/admin/tenants/"+created.ID.String()+"/status", bytes.NewReader(transitionBody))
	transitionReq.Header.Set("Content-Type", "application/json")
	transitionReq.Header.Set("X-Admin-Token", adminToken)
	transitionRec := httptest.NewRecorder()
	router.ServeHTTP(transitionRec, transitionReq)
	if transitionRec.Code != http.StatusOK {
		t.Fatalf("expected 200 transitioning tenant, got %d: %s", transitionRec.Code, transitionRec.Body.String())
	}

	badBody, _ := json.Marshal(map[string]string{"status": "trial"})
	badReq := httptest.NewRequest(http.MethodPost, "/admin/tenants/"+created.ID.String()+"/status", bytes.NewReader(badBody))
	badReq.Header.Set("Content-Type", "application/json")
	badReq.Header.Set("X-Admin-Token", adminToken)
	badRec := httptest.NewRecorder()
	router.ServeHTTP(badRec, badReq)
	if badRec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown target status, got %d", badRec.Code)
	}

	flagBody, _ := json.Marshal(map[string]bool{"enabled": true})
	flagReq := httptest.NewRequest(http.MethodPut, "/admin/tenants/"+created.ID.String()+"/features/evidence_upload", bytes.NewReader(flagBody))
	flagReq.Header.Set("Content-Type", "application/json")
	flagReq.Header.Set("X-Admin-Token", adminToken)
	flagRec := httptest.NewRecorder()
	router.ServeHTTP(flagRec, flagReq)
	if flagRec.Code != http.StatusOK {
		t.Fatalf("expected 200 setting feature flag, got %d: %s", flagRec.Code, flagRec.Body.String())
	}
}

func TestOrganizationEndpointsScopeByTenant(t *testing.T) {
	_, svc := newRouters(t)

	tenant, err := svc.CreateTenant(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "OrgTenant")
	if err != nil {
		t.Fatalf("failed to seed tenant: %v", err)
	}

	apiRouter := newAPIRouter(t, svc, tenant.ID, "organization.create")

	orgBody, _ := json.Marshal(map[string]string{
		"legal_name": "Initech Ltd",
		"sector":     "financial_services",
		"regulator":  "FCA",
		"size_band":  "medium",
	})
	req := httptest.NewRequest(http.MethodPost, "/organizations", bytes.NewReader(orgBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	apiRouter.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating organization, got %d: %s", rec.Code, rec.Body.String())
	}

	var org struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&org); err != nil {
		t.Fatalf("failed to decode organization response: %v", err)
	}

	// Same caller reads it back.
	getReq := httptest.NewRequest(http.MethodGet, "/organizations/"+org.ID.String(), nil)
	getRec := httptest.NewRecorder()
	apiRouter.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching organization, got %d", getRec.Code)
	}

	// A caller from another tenant sees a 404, not a 403.
	otherRouter := newAPIRouter(t, svc, id.NewTenantID(), "organization.create")
	crossReq := httptest.NewRequest(http.MethodGet, "/organizations/"+org.ID.String(), nil)
	crossRec := httptest.NewRecorder()
	otherRouter.ServeHTTP(crossRec, crossReq)
	if crossRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-tenant read, got %d", crossRec.Code)
	}
}

func TestOrganizationCreateRequiresPermission(t *testing.T) {
	_, svc := newRouters(t)
	tenant, err := svc.CreateTenant(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "Permless")
	if err != nil {
		t.Fatalf("failed to seed tenant: %v", err)
	}

	apiRouter := newAPIRouter(t, svc, tenant.ID) // no permissions granted

	orgBody, _ := json.Marshal(map[string]string{"legal_name": "Hooli Inc"})
	req := httptest.NewRequest(http.MethodPost, "/organizations", bytes.NewReader(orgBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	apiRouter.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without organization.create, got %d", rec.Code)
	}
}

func newRouters(t *testing.T) (http.Handler, *service.Service) {
	t.Helper()
	svc := service.New(memory.NewTenantStore(), memory.NewOrganizationStore(), memory.NewBusinessUnitStore())
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	h := New(svc, logger)
	r := chi.NewRouter()
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(adminmw.RequireAdminToken(adminToken, logger))
		h.RegisterAdmin(ar)
	})
	return r, svc
}

// newAPIRouter mounts the tenant-scoped routes behind a stub auth context.
func newAPIRouter(t *testing.T, svc *service.Service, tenantID id.TenantID, permissions ...string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	perms := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		perms[p] = struct{}{}
	}

	h := New(svc, logger)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithTenantID(req.Context(), tenantID)
			ctx = requestcontext.WithUserID(ctx, id.NewUserID())
			ctx = requestcontext.WithPermissions(ctx, perms)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.Register(r)
	return r
}
