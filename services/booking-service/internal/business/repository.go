package business

import (
	"context"
	"time"

	"github.com/slotsmith/slotsmith/libs/db"
)

type Profile struct {
	BusinessID      string    `json:"business_id"`
	Name            string    `json:"name"`
	Timezone        string    `json:"timezone"`
	SlotStepMinutes int       `json:"slot_step_minutes"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOrCreateProfile seeds a default profile on first access so new tenants
// work without an explicit onboarding call.
func (r *Repository) GetOrCreateProfile(ctx context.Context, businessID string) (Profile, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO business_profiles (business_id)
		VALUES ($1)
		ON CONFLICT (business_id) DO NOTHING
	`, businessID)
	if err != nil {
		return Profile{}, err
	}

	var p Profile
	err = r.pool.QueryRow(ctx, `
		SELECT business_id::text, name, timezone, slot_step_minutes, updated_at
		FROM business_profiles
		WHERE business_id = $1
	`, businessID).Scan(&p.BusinessID, &p.Name, &p.Timezone, &p.SlotStepMinutes, &p.UpdatedAt)
	return p, err
}

func (r *Repository) UpdateProfile(ctx context.Context, businessID, name, timezone string, slotStepMinutes int) error {
	if slotStepMinutes <= 0 {
		slotStepMinutes = 15
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO business_profiles (business_id, name, timezone, slot_step_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id) DO UPDATE
		SET name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			slot_step_minutes = EXCLUDED.slot_step_minutes,
			updated_at = now()
	`, businessID, name, timezone, slotStepMinutes)
	return err
}

// Location resolves the business time zone, defaulting to UTC when unset or
// invalid so resolution never fails on a misconfigured profile.
func (r *Repository) Location(ctx context.Context, businessID string) (*time.Location, error) {
	p, err := r.GetOrCreateProfile(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}
