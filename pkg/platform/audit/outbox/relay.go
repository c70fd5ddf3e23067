// Package outbox relays audit events from the PostgreSQL outbox table to
// Kafka. Events are written to the outbox inside business transactions; the
// relay publishes them asynchronously so Kafka unavailability never blocks
// request handling, while fail-closed compliance semantics stay intact at the
// outbox write.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	id "conforma/pkg/domain"
	"conforma/pkg/platform/audit"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 100
)

// Materializer copies a published event into the queryable audit_events
// table. Implemented by the postgres audit store.
type Materializer interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

// Relay polls the outbox table, publishes pending entries to Kafka keyed by
// aggregate id so per-object ordering is preserved, and materializes them
// into audit_events.
type Relay struct {
	db           *sql.DB
	client       *kgo.Client
	topic        string
	materializer Materializer
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
}

// Option configures the relay.
type Option func(*Relay)

// WithPollInterval overrides the default 2s poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) { r.pollInterval = d }
}

// WithBatchSize overrides the default 100-row batch.
func WithBatchSize(n int) Option {
	return func(r *Relay) { r.batchSize = n }
}

// New builds a relay. brokers and topic come from config; a nil logger
// silences it.
func New(db *sql.DB, brokers []string, topic string, materializer Materializer, logger *slog.Logger, opts ...Option) (*Relay, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	r := &Relay{
		db:           db,
		client:       client,
		topic:        topic,
		materializer: materializer,
		logger:       logger,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run polls until ctx is cancelled. Safe to run in an errgroup next to the
// HTTP server.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	defer r.client.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				if r.logger != nil {
					r.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
				}
			}
		}
	}
}

type outboxRow struct {
	id          uuid.UUID
	aggregateID string
	payload     []byte
}

// drain publishes one batch of unpublished outbox rows. Rows are locked with
// FOR UPDATE SKIP LOCKED so multiple relay instances never double-publish.
func (r *Relay) drain(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return fmt.Errorf("select outbox rows: %w", err)
	}

	var batch []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.id, &row.aggregateID, &row.payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return tx.Commit()
	}

	records := make([]*kgo.Record, 0, len(batch))
	for _, row := range batch {
		records = append(records, &kgo.Record{
			Topic: r.topic,
			Key:   []byte(row.aggregateID),
			Value: row.payload,
		})
	}
	if err := r.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("publish outbox batch: %w", err)
	}

	for _, row := range batch {
		if err := r.materialize(ctx, row); err != nil && r.logger != nil {
			// Materialization is retried implicitly on the next consumer
			// replay; the published event remains the record of truth.
			r.logger.WarnContext(ctx, "materialize audit event failed", "outbox_id", row.id, "error", err)
		}
	}

	ids := make([]uuid.UUID, 0, len(batch))
	for _, row := range batch {
		ids = append(ids, row.id)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE outbox SET published_at = NOW() WHERE id = ANY($1)
	`, uuidArray(ids)); err != nil {
		return fmt.Errorf("mark outbox rows published: %w", err)
	}
	return tx.Commit()
}

type eventPayload struct {
	ID         string
	Category   string
	Timestamp  string
	TenantID   string
	ActorID    string
	Action     string
	ObjectType string
	ObjectID   string
	Detail     string
	RequestID  string
	ClientIP   string
	UserAgent  string
}

func (r *Relay) materialize(ctx context.Context, row outboxRow) error {
	var p eventPayload
	if err := json.Unmarshal(row.payload, &p); err != nil {
		return fmt.Errorf("decode outbox payload: %w", err)
	}
	eventID, err := uuid.Parse(p.ID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return fmt.Errorf("parse event timestamp: %w", err)
	}

	event := audit.Event{
		Category:   audit.EventCategory(p.Category),
		Timestamp:  ts,
		Action:     p.Action,
		ObjectType: p.ObjectType,
		ObjectID:   p.ObjectID,
		Detail:     p.Detail,
		RequestID:  p.RequestID,
		ClientIP:   p.ClientIP,
		UserAgent:  p.UserAgent,
	}
	if p.TenantID != "" {
		tid, err := id.ParseTenantID(p.TenantID)
		if err != nil {
			return fmt.Errorf("parse tenant id: %w", err)
		}
		event.TenantID = tid
	}
	if p.ActorID != "" {
		aid, err := id.ParseUserID(p.ActorID)
		if err != nil {
			return fmt.Errorf("parse actor id: %w", err)
		}
		event.ActorID = aid
	}
	return r.materializer.AppendWithID(ctx, eventID, event)
}

// uuidArray renders ids as a postgres uuid[] literal accepted by lib/pq.
func uuidArray(ids []uuid.UUID) string {
	out := "{"
	for i, u := range ids {
		if i > 0 {
			out += ","
		}
		out += u.String()
	}
	return out + "}"
}
