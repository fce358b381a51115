package sync

import (
	"context"
	"time"

	"github.com/slotsmith/slotsmith/libs/db"
)

// PendingReservation is a reservation row awaiting calendar sync, joined with
// the business timezone so event times can be rendered business-local.
type PendingReservation struct {
	ID              string
	BusinessID      string
	ClientName      string
	ClientEmail     string
	ClientPhone     string
	ServiceName     string
	Notes           string
	Day             time.Time
	StartMinute     int
	DurationMin     int
	Status          string
	ExternalEventID string
	Timezone        string
}

// Repository reads the reservations table for unsynced rows and records sync
// results. Cancelled rows surface too: they only need a local acknowledgement
// since remote events are never deleted.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ListUnsynced(ctx context.Context, businessID string, limit int) ([]PendingReservation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT r.id::text, r.business_id::text, r.client_name, r.client_email, r.client_phone,
			r.service_name, r.notes, r.day, r.start_minute, r.duration_minutes, r.status,
			COALESCE(r.external_event_id, ''), COALESCE(p.timezone, 'UTC')
		FROM reservations r
		LEFT JOIN business_profiles p ON p.business_id = r.business_id
		WHERE r.business_id = $1
			AND r.synced = false
			AND r.status IN ('pending', 'confirmed', 'cancelled')
		ORDER BY r.created_at ASC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingReservation
	for rows.Next() {
		var p PendingReservation
		if err := rows.Scan(&p.ID, &p.BusinessID, &p.ClientName, &p.ClientEmail, &p.ClientPhone,
			&p.ServiceName, &p.Notes, &p.Day, &p.StartMinute, &p.DurationMin, &p.Status,
			&p.ExternalEventID, &p.Timezone); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// MarkSynced records the provider event id and sync time. An empty eventID
// acknowledges a cancelled reservation without a remote event.
func (r *Repository) MarkSynced(ctx context.Context, reservationID, eventID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reservations
		SET synced = true,
			synced_at = $2,
			external_event_id = NULLIF($3, '')
		WHERE id = $1
	`, reservationID, at, eventID)
	return err
}
