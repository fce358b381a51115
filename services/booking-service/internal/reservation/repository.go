package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/slotsmith/slotsmith/libs/db"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/domain"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/outbox"
)

var (
	// ErrOverlap maps the reservations_no_overlap exclusion constraint: two
	// active reservations for one employee may never overlap, even under
	// concurrent inserts. The constraint is the authoritative guard; the
	// application-level check only exists for friendlier rejections.
	ErrOverlap  = errors.New("reservation interval overlaps an active reservation")
	ErrNotFound = errors.New("reservation not found")
)

type Repository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outboxRepo: outboxRepo}
}

const reservationColumns = `
	id::text, business_id::text, COALESCE(staff_id::text, ''), COALESCE(client_id::text, ''),
	client_name, client_email, client_phone, service_name, COALESCE(time_block_type_id::text, ''),
	day, start_minute, duration_minutes, price::text, status, notes,
	COALESCE(external_event_id, ''), synced, synced_at, created_at`

// Create persists the reservation and its outbox event in one transaction.
// The exclusion constraint rejects overlapping active intervals; that
// violation is surfaced as ErrOverlap.
func (r *Repository) Create(ctx context.Context, res *domain.Reservation, evt outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO reservations
			(business_id, staff_id, client_id, client_name, client_email, client_phone,
			 service_name, time_block_type_id, day, start_minute, duration_minutes, price, status, notes)
		VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, '')::uuid, $4, $5, $6, $7, NULLIF($8, '')::uuid, $9, $10, $11, $12, $13, $14)
		RETURNING id::text, created_at
	`, res.BusinessID, res.StaffID, res.ClientID, res.ClientName, res.ClientEmail, res.ClientPhone,
		res.ServiceName, res.TimeBlockTypeID, res.Day, res.StartMinute, res.DurationMin, res.Price, res.Status, res.Notes,
	).Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return ErrOverlap
		}
		return err
	}

	evt.AggregateID = res.ID
	if err := r.outboxRepo.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, businessID, id string) (domain.Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE business_id = $1 AND id = $2
	`, businessID, id)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, ErrNotFound
	}
	return res, err
}

// ListActiveDay returns the pending/confirmed reservations of one employee on
// one business-local date, ordered by start.
func (r *Repository) ListActiveDay(ctx context.Context, staffID string, day time.Time) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE staff_id = $1
			AND day = $2
			AND status IN ('pending', 'confirmed')
		ORDER BY start_minute ASC
	`, staffID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (r *Repository) ListByBusiness(ctx context.Context, businessID string, from, to time.Time, limit int) ([]domain.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE business_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day ASC, start_minute ASC
		LIMIT $4
	`, businessID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

// Reschedule rewrites the mutable booking fields. The exclusion constraint is
// re-checked by the database on update, so a concurrent placement into the
// new interval still loses.
func (r *Repository) Reschedule(ctx context.Context, res domain.Reservation, evt outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE reservations
		SET day = $3,
			start_minute = $4,
			duration_minutes = $5,
			service_name = $6,
			notes = $7,
			status = $8,
			synced = false,
			synced_at = NULL
		WHERE business_id = $1 AND id = $2
	`, res.BusinessID, res.ID, res.Day, res.StartMinute, res.DurationMin, res.ServiceName, res.Notes, res.Status)
	if err != nil {
		if isExclusionViolation(err) {
			return ErrOverlap
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	evt.AggregateID = res.ID
	if err := r.outboxRepo.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Cancel marks the reservation cancelled, releasing its interval (the
// exclusion constraint only covers active statuses) and clearing the external
// sync fields.
func (r *Repository) Cancel(ctx context.Context, businessID, id string, evt outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE reservations
		SET status = 'cancelled',
			synced = false,
			synced_at = NULL,
			external_event_id = NULL
		WHERE business_id = $1 AND id = $2 AND status IN ('pending', 'confirmed')
	`, businessID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	evt.AggregateID = id
	if err := r.outboxRepo.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Complete(ctx context.Context, businessID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reservations
		SET status = 'completed'
		WHERE business_id = $1 AND id = $2 AND status IN ('pending', 'confirmed')
	`, businessID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountOpenByStaff backs the staff-deactivation guard: staff with open
// reservations are disabled, never deleted.
func (r *Repository) CountOpenByStaff(ctx context.Context, businessID, staffID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM reservations
		WHERE business_id = $1 AND staff_id = $2 AND status IN ('pending', 'confirmed')
	`, businessID, staffID).Scan(&n)
	return n, err
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var res domain.Reservation
	var syncedAt *time.Time
	err := row.Scan(
		&res.ID,
		&res.BusinessID,
		&res.StaffID,
		&res.ClientID,
		&res.ClientName,
		&res.ClientEmail,
		&res.ClientPhone,
		&res.ServiceName,
		&res.TimeBlockTypeID,
		&res.Day,
		&res.StartMinute,
		&res.DurationMin,
		&res.Price,
		&res.Status,
		&res.Notes,
		&res.ExternalEventID,
		&res.Synced,
		&syncedAt,
		&res.CreatedAt,
	)
	if err != nil {
		return domain.Reservation{}, err
	}
	res.SyncedAt = syncedAt
	return res, nil
}

func scanReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
