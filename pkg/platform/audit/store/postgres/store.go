package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "conforma/pkg/domain"
	audit "conforma/pkg/platform/audit"
	txcontext "conforma/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table in the caller's transaction and
// published to Kafka by the outbox relay; the relay also materializes them
// into audit_events for querying.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event so the consumer can deserialize without a schema registry.
type outboxPayload struct {
	ID         string `json:"ID"`
	Category   string `json:"Category"`
	Timestamp  string `json:"Timestamp"`
	TenantID   string `json:"TenantID,omitempty"`
	ActorID    string `json:"ActorID,omitempty"`
	Action     string `json:"Action"`
	ObjectType string `json:"ObjectType"`
	ObjectID   string `json:"ObjectID,omitempty"`
	Detail     string `json:"Detail,omitempty"`
	RequestID  string `json:"RequestID,omitempty"`
	ClientIP   string `json:"ClientIP,omitempty"`
	UserAgent  string `json:"UserAgent,omitempty"`
}

// Append writes an audit event to the outbox table. It participates in the
// caller's transaction when one is present in context, which is what makes
// compliance events fail-closed with the business write.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Category always derives from the action; the eventCategories map is the
	// source of truth even when the caller filled Category.
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:         eventID.String(),
		Category:   string(category),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		Action:     event.Action,
		ObjectType: event.ObjectType,
		ObjectID:   event.ObjectID,
		Detail:     event.Detail,
		RequestID:  event.RequestID,
		ClientIP:   event.ClientIP,
		UserAgent:  event.UserAgent,
	}
	if !event.TenantID.IsNil() {
		payload.TenantID = event.TenantID.String()
	}
	if !event.ActorID.IsNil() {
		payload.ActorID = event.ActorID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if event.ObjectType != "" && event.ObjectID != "" {
		aggregateType = event.ObjectType
		aggregateID = event.ObjectID
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// AppendWithID materializes a consumed event into audit_events for querying.
// Idempotent: duplicate deliveries are ignored via ON CONFLICT DO NOTHING.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, tenant_id, actor_id, action,
			object_type, object_id, detail, request_id, client_ip, user_agent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	var tenantID, actorID *uuid.UUID
	if !event.TenantID.IsNil() {
		tid := uuid.UUID(event.TenantID)
		tenantID = &tid
	}
	if !event.ActorID.IsNil() {
		aid := uuid.UUID(event.ActorID)
		actorID = &aid
	}

	_, err := s.db.ExecContext(ctx, query,
		eventID,
		string(event.Category),
		event.Timestamp,
		tenantID,
		actorID,
		event.Action,
		event.ObjectType,
		event.ObjectID,
		event.Detail,
		event.RequestID,
		event.ClientIP,
		event.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByTenant returns materialized audit events for a tenant, newest first.
func (s *Store) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, tenant_id, actor_id, action,
		       object_type, object_id, detail, request_id, client_ip, user_agent
		FROM audit_events
		WHERE tenant_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
			tid, aid sql.Null[uuid.UUID]
		)
		if err := rows.Scan(&category, &e.Timestamp, &tid, &aid, &e.Action,
			&e.ObjectType, &e.ObjectID, &e.Detail, &e.RequestID, &e.ClientIP, &e.UserAgent); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		if tid.Valid {
			e.TenantID = id.TenantID(tid.V)
		}
		if aid.Valid {
			e.ActorID = id.UserID(aid.V)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
