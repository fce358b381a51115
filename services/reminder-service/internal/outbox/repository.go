package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/slotsmith/slotsmith/libs/db"
	otelx "github.com/slotsmith/slotsmith/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES (@aggregate_type, @aggregate_id, @event_type, @payload, @traceparent, @tracestate)
	`, pgx.NamedArgs{
		"aggregate_type": evt.AggregateType,
		"aggregate_id":   evt.AggregateID,
		"event_type":     evt.EventType,
		"payload":        evt.Payload,
		"traceparent":    traceparent,
		"tracestate":     tracestate,
	})
	return err
}

type Record struct {
	ID            int64     `db:"id"`
	EventID       string    `db:"event_id"`
	AggregateType string    `db:"aggregate_type"`
	AggregateID   string    `db:"aggregate_id"`
	EventType     string    `db:"event_type"`
	Payload       []byte    `db:"payload"`
	Traceparent   string    `db:"traceparent"`
	Tracestate    string    `db:"tracestate"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Record])
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
