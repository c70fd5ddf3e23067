package audit

import (
	"context"
	"log/slog"

	id "conforma/pkg/domain"
	"conforma/pkg/requestcontext"
)

// Recorder is the emission facade handed to services. It fills in
// request-scoped metadata (actor, tenant, request id, client info) from the
// context so call sites only name the action and the object.
//
// Emission is fail-open for operations/security events (logged, never blocks
// the business operation) and fail-closed for compliance events: if a
// compliance event cannot be persisted the operation must not proceed.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record emits an audit event for the given action and object. Compliance
// events return the persistence error; other categories are fail-open.
func (r *Recorder) Record(ctx context.Context, action AuditEvent, objectType, objectID, detail string) error {
	if r == nil || r.store == nil {
		return nil
	}
	event := Event{
		Category:   action.Category(),
		Timestamp:  requestcontext.Now(ctx),
		TenantID:   requestcontext.TenantID(ctx),
		ActorID:    requestcontext.UserID(ctx),
		Action:     string(action),
		ObjectType: objectType,
		ObjectID:   objectID,
		Detail:     detail,
		RequestID:  requestcontext.RequestID(ctx),
		ClientIP:   requestcontext.ClientIP(ctx),
		UserAgent:  requestcontext.UserAgent(ctx),
	}
	err := r.store.Append(ctx, event)
	if err == nil {
		return nil
	}
	if event.Category == CategoryCompliance {
		return err
	}
	if r.logger != nil {
		r.logger.ErrorContext(ctx, "audit append failed",
			"action", event.Action,
			"object_type", objectType,
			"error", err,
		)
	}
	return nil
}

// RecordForTenant is Record for flows where the tenant is not yet in context
// (admin provisioning, login).
func (r *Recorder) RecordForTenant(ctx context.Context, tenantID id.TenantID, action AuditEvent, objectType, objectID, detail string) error {
	return r.Record(requestcontext.WithTenantID(ctx, tenantID), action, objectType, objectID, detail)
}
