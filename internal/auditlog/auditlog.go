// Package auditlog exposes the tenant audit trail over HTTP. Recording
// happens in pkg/platform/audit; this package only reads.
package auditlog

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"conforma/internal/transport/http/shared"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/middleware/auth"
	"conforma/pkg/requestcontext"
)

const defaultLimit = 100

// Lister is satisfied by both audit stores.
type Lister interface {
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]audit.Event, error)
}

type Handler struct {
	events Lister
	logger *slog.Logger
}

func NewHandler(events Lister, logger *slog.Logger) *Handler {
	return &Handler{events: events, logger: logger}
}

// Register mounts the tenant-scoped audit routes.
func (h *Handler) Register(r chi.Router) {
	view := auth.RequirePermission("audit.view", h.logger)

	r.With(view).Get("/audit/events", h.handleList)
}

type eventResponse struct {
	Category   string    `json:"category"`
	Timestamp  time.Time `json:"timestamp"`
	ActorID    string    `json:"actor_id,omitempty"`
	Action     string    `json:"action"`
	ObjectType string    `json:"object_type"`
	ObjectID   string    `json:"object_id"`
	Detail     string    `json:"detail,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultLimit
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	category := q.Get("category")
	action := q.Get("action")
	objectType := q.Get("object_type")

	events, err := h.events.ListByTenant(r.Context(), requestcontext.TenantID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// The memory store appends; postgres returns newest first. Normalize.
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.After(events[j].Timestamp) })

	out := make([]eventResponse, 0, limit)
	for _, e := range events {
		if category != "" && string(e.Category) != category {
			continue
		}
		if action != "" && e.Action != action {
			continue
		}
		if objectType != "" && e.ObjectType != objectType {
			continue
		}
		actor := ""
		if !e.ActorID.IsNil() {
			actor = e.ActorID.String()
		}
		out = append(out, eventResponse{
			Category:   string(e.Category),
			Timestamp:  e.Timestamp,
			ActorID:    actor,
			Action:     e.Action,
			ObjectType: e.ObjectType,
			ObjectID:   e.ObjectID,
			Detail:     e.Detail,
			RequestID:  e.RequestID,
		})
		if len(out) == limit {
			break
		}
	}
	shared.WriteJSON(w, http.StatusOK, out)
}
