package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/slotsmith/slotsmith/libs/db"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/domain"
)

var ErrNotFound = errors.New("schedule entity not found")

// Repository persists the three schedule layers per employee: the recurring
// weekly template, date-specific overrides, and absence periods.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateStaff inserts the employee and seeds a Mon-Fri 09:00-17:00 template.
func (r *Repository) CreateStaff(ctx context.Context, businessID, name string, isActive bool) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO staff (business_id, name, is_active)
		VALUES ($1, $2, $3)
		RETURNING id::text
	`, businessID, name, isActive).Scan(&id)
	if err != nil {
		return "", err
	}

	defaultShifts, _ := json.Marshal([]domain.Shift{{StartMinute: 540, EndMinute: 1020}})
	for wd := 0; wd <= 6; wd++ {
		working := wd >= 1 && wd <= 5
		shifts := defaultShifts
		if !working {
			shifts = []byte(`[]`)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO staff_weekly_hours (staff_id, weekday, is_working, shifts)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (staff_id, weekday) DO NOTHING
		`, id, wd, working, shifts); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetStaff(ctx context.Context, businessID, staffID string) (domain.Staff, error) {
	var s domain.Staff
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, is_active, created_at
		FROM staff
		WHERE business_id = $1 AND id = $2
	`, businessID, staffID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Staff{}, ErrNotFound
	}
	return s, err
}

func (r *Repository) ListStaff(ctx context.Context, businessID string, limit int) ([]domain.Staff, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, name, is_active, created_at
		FROM staff
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Staff
	for rows.Next() {
		var s domain.Staff
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// SetStaffActive soft-disables (or re-enables) an employee. Disabled staff
// keep their reservations; deletion is refused while open reservations exist.
func (r *Repository) SetStaffActive(ctx context.Context, businessID, staffID string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE staff SET is_active = $3 WHERE business_id = $1 AND id = $2
	`, businessID, staffID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteStaff(ctx context.Context, businessID, staffID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM staff WHERE business_id = $1 AND id = $2
	`, businessID, staffID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) UpsertWeeklyHours(ctx context.Context, businessID, staffID string, weekday int, working bool, shifts []domain.Shift) error {
	if err := r.requireStaff(ctx, businessID, staffID); err != nil {
		return err
	}
	if shifts == nil {
		shifts = []domain.Shift{}
	}
	payload, err := json.Marshal(shifts)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO staff_weekly_hours (staff_id, weekday, is_working, shifts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (staff_id, weekday) DO UPDATE
		SET is_working = EXCLUDED.is_working,
			shifts = EXCLUDED.shifts
	`, staffID, weekday, working, payload)
	return err
}

func (r *Repository) ListWeeklyHours(ctx context.Context, businessID, staffID string) (domain.WeeklyTemplate, error) {
	var tpl domain.WeeklyTemplate
	rows, err := r.pool.Query(ctx, `
		SELECT h.weekday, h.is_working, h.shifts
		FROM staff_weekly_hours h
		JOIN staff s ON s.id = h.staff_id
		WHERE s.business_id = $1 AND h.staff_id = $2
		ORDER BY h.weekday ASC
	`, businessID, staffID)
	if err != nil {
		return tpl, err
	}
	defer rows.Close()

	for rows.Next() {
		var weekday int
		var working bool
		var raw []byte
		if err := rows.Scan(&weekday, &working, &raw); err != nil {
			return tpl, err
		}
		if weekday < 0 || weekday > 6 {
			continue
		}
		var shifts []domain.Shift
		if err := json.Unmarshal(raw, &shifts); err != nil {
			return tpl, err
		}
		tpl[weekday] = domain.DayPattern{Working: working, Shifts: shifts}
	}
	return tpl, rows.Err()
}

// UpsertDayOverride stores the full shift list for one date. The row's
// presence replaces the weekly template for that date; an empty list closes
// the day.
func (r *Repository) UpsertDayOverride(ctx context.Context, businessID, staffID string, day time.Time, shifts []domain.Shift) error {
	if err := r.requireStaff(ctx, businessID, staffID); err != nil {
		return err
	}
	if shifts == nil {
		shifts = []domain.Shift{}
	}
	payload, err := json.Marshal(shifts)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO staff_day_overrides (staff_id, day, shifts)
		VALUES ($1, $2, $3)
		ON CONFLICT (staff_id, day) DO UPDATE
		SET shifts = EXCLUDED.shifts,
			updated_at = now()
	`, staffID, day, payload)
	return err
}

func (r *Repository) DeleteDayOverride(ctx context.Context, businessID, staffID string, day time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM staff_day_overrides o
		USING staff s
		WHERE o.staff_id = s.id
		  AND s.business_id = $1
		  AND o.staff_id = $2
		  AND o.day = $3
	`, businessID, staffID, day)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) CreateAbsence(ctx context.Context, businessID, staffID string, a domain.Absence) (string, error) {
	if err := r.requireStaff(ctx, businessID, staffID); err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff_absences (id, staff_id, kind, start_time, end_time, weekly, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, staffID, a.Kind, a.Start, a.End, a.Weekly, a.Note)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListAbsences(ctx context.Context, businessID, staffID string, from, to time.Time, limit int) ([]domain.Absence, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT a.id::text, a.kind, a.start_time, a.end_time, a.weekly, a.note
		FROM staff_absences a
		JOIN staff s ON s.id = a.staff_id
		WHERE s.business_id = $1
			AND a.staff_id = $2
			AND (a.weekly OR (a.end_time > $3 AND a.start_time < $4))
		ORDER BY a.start_time ASC
		LIMIT $5
	`, businessID, staffID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Absence
	for rows.Next() {
		var a domain.Absence
		if err := rows.Scan(&a.ID, &a.Kind, &a.Start, &a.End, &a.Weekly, &a.Note); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) DeleteAbsence(ctx context.Context, businessID, absenceID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM staff_absences a
		USING staff s
		WHERE a.staff_id = s.id
		  AND s.business_id = $1
		  AND a.id = $2
	`, businessID, absenceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ScheduleLayers snapshots every layer relevant to the [from, to] date range
// into one value object, so resolution runs without further I/O.
func (r *Repository) ScheduleLayers(ctx context.Context, businessID, staffID string, from, to time.Time) (domain.ScheduleLayers, error) {
	if err := r.requireStaff(ctx, businessID, staffID); err != nil {
		return domain.ScheduleLayers{}, err
	}

	weekly, err := r.ListWeeklyHours(ctx, businessID, staffID)
	if err != nil {
		return domain.ScheduleLayers{}, err
	}

	overrides := make(map[string][]domain.Shift)
	rows, err := r.pool.Query(ctx, `
		SELECT day, shifts
		FROM staff_day_overrides
		WHERE staff_id = $1 AND day >= $2 AND day <= $3
	`, staffID, from, to)
	if err != nil {
		return domain.ScheduleLayers{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var day time.Time
		var raw []byte
		if err := rows.Scan(&day, &raw); err != nil {
			return domain.ScheduleLayers{}, err
		}
		var shifts []domain.Shift
		if err := json.Unmarshal(raw, &shifts); err != nil {
			return domain.ScheduleLayers{}, err
		}
		overrides[day.Format(domain.DateFormat)] = shifts
	}
	if rows.Err() != nil {
		return domain.ScheduleLayers{}, rows.Err()
	}

	// Widen by a day on both sides so midnight-spanning absences still clip
	// into the range.
	absences, err := r.ListAbsences(ctx, businessID, staffID, from.AddDate(0, 0, -1), to.AddDate(0, 0, 1), 500)
	if err != nil {
		return domain.ScheduleLayers{}, err
	}

	return domain.ScheduleLayers{
		StaffID:   staffID,
		Weekly:    weekly,
		Overrides: overrides,
		Absences:  absences,
	}, nil
}

func (r *Repository) requireStaff(ctx context.Context, businessID, staffID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM staff WHERE id = $1 AND business_id = $2
		)
	`, staffID, businessID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
