package source

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/slotsmith/slotsmith/libs/db"
)

var ErrNotFound = errors.New("reservation not found")

// Reservation is the cross-service read of a reservation row joined with its
// business profile, which is all the reminder planner needs.
type Reservation struct {
	ID           string
	BusinessID   string
	BusinessName string
	ClientName   string
	ClientEmail  string
	ClientPhone  string
	ServiceName  string
	Day          time.Time
	StartMinute  int
	Status       string
	Timezone     string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, id string) (Reservation, error) {
	var res Reservation
	err := r.pool.QueryRow(ctx, `
		SELECT r.id, r.business_id, COALESCE(p.name, ''), r.client_name, r.client_email, r.client_phone,
		       r.service_name, r.day, r.start_minute, r.status, COALESCE(p.timezone, 'UTC')
		FROM reservations r
		LEFT JOIN business_profiles p ON p.business_id = r.business_id
		WHERE r.id = $1
	`, id).Scan(&res.ID, &res.BusinessID, &res.BusinessName, &res.ClientName, &res.ClientEmail, &res.ClientPhone,
		&res.ServiceName, &res.Day, &res.StartMinute, &res.Status, &res.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	if err != nil {
		return Reservation{}, err
	}
	return res, nil
}

// StartsAt places the reservation's start on the business's local clock.
func (res Reservation) StartsAt() time.Time {
	loc, err := time.LoadLocation(res.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return time.Date(res.Day.Year(), res.Day.Month(), res.Day.Day(), 0, res.StartMinute, 0, 0, loc)
}
