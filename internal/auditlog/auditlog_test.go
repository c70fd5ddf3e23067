package auditlog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	id "conforma/pkg/domain"
	"conforma/pkg/platform/audit"
	auditmemory "conforma/pkg/platform/audit/store/memory"
	"conforma/pkg/requestcontext"
)

func newRouter(t *testing.T, store *auditmemory.Store, tenantID id.TenantID, permissions ...string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	perms := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		perms[p] = struct{}{}
	}

	h := NewHandler(store, logger)
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

func seedEvents(t *testing.T, store *auditmemory.Store, tenantID id.TenantID) {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	events := []audit.Event{
		{Category: audit.CategorySecurity, Timestamp: base, TenantID: tenantID,
			ActorID: id.NewUserID(), Action: "user.login", ObjectType: "user", ObjectID: "u-1"},
		{Category: audit.CategoryCompliance, Timestamp: base.Add(time.Minute), TenantID: tenantID,
			ActorID: id.NewUserID(), Action: "finding.opened", ObjectType: "finding", ObjectID: "f-1"},
		{Category: audit.CategoryCompliance, Timestamp: base.Add(2 * time.Minute), TenantID: tenantID,
			ActorID: id.NewUserID(), Action: "finding.transitioned", ObjectType: "finding", ObjectID: "f-1"},
	}
	for _, e := range events {
		if err := store.Append(context.Background(), e); err != nil {
			t.Fatalf("failed to seed event: %v", err)
		}
	}
}

func listEvents(t *testing.T, router http.Handler, path string) (int, []map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var out []map[string]any
	if rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatalf("failed to decode events: %v", err)
		}
	}
	return rec.Code, out
}

func TestListRequiresPermission(t *testing.T) {
	store := auditmemory.New()
	router := newRouter(t, store, id.NewTenantID()) // no audit.view

	code, _ := listEvents(t, router, "/audit/events")
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 without audit.view, got %d", code)
	}
}

func TestListIsTenantScopedAndNewestFirst(t *testing.T) {
	store := auditmemory.New()
	tenantID := id.NewTenantID()
	seedEvents(t, store, tenantID)
	seedEvents(t, store, id.NewTenantID())

	router := newRouter(t, store, tenantID, "audit.view")
	code, events := listEvents(t, router, "/audit/events")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events for the tenant, got %d", len(events))
	}
	if events[0]["action"] != "finding.transitioned" {
		t.Fatalf("expected newest event first, got %v", events[0]["action"])
	}
}

func TestListFilters(t *testing.T) {
	store := auditmemory.New()
	tenantID := id.NewTenantID()
	seedEvents(t, store, tenantID)
	router := newRouter(t, store, tenantID, "audit.view")

	code, events := listEvents(t, router, "/audit/events?category=security")
	if code != http.StatusOK || len(events) != 1 {
		t.Fatalf("expected one security event, got code=%d len=%d", code, len(events))
	}

	code, events = listEvents(t, router, "/audit/events?object_type=finding&limit=1")
	if code != http.StatusOK || len(events) != 1 {
		t.Fatalf("expected limit to cap finding events at 1, got code=%d len=%d", code, len(events))
	}
	if events[0]["action"] != "finding.transitioned" {
		t.Fatalf("expected the newest finding event, got %v", events[0]["action"])
	}

	code, events = listEvents(t, router, "/audit/events?action=user.login")
	if code != http.StatusOK || len(events) != 1 {
		t.Fatalf("expected one login event, got code=%d len=%d", code, len(events))
	}
}
