package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/slotsmith/slotsmith/libs/db"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/domain"
)

var ErrNotFound = errors.New("time block type not found")

// Repository stores the reusable time-block definitions of each business.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, blk domain.TimeBlockType) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO time_block_types (id, business_id, name, icon, duration_minutes, paid)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, blk.BusinessID, blk.Name, blk.Icon, blk.DurationMin, blk.Paid)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) Get(ctx context.Context, businessID, id string) (domain.TimeBlockType, error) {
	var blk domain.TimeBlockType
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, icon, duration_minutes, paid, created_at
		FROM time_block_types
		WHERE business_id = $1 AND id = $2
	`, businessID, id).Scan(&blk.ID, &blk.BusinessID, &blk.Name, &blk.Icon, &blk.DurationMin, &blk.Paid, &blk.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TimeBlockType{}, ErrNotFound
	}
	return blk, err
}

func (r *Repository) List(ctx context.Context, businessID string, limit int) ([]domain.TimeBlockType, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, name, icon, duration_minutes, paid, created_at
		FROM time_block_types
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TimeBlockType
	for rows.Next() {
		var blk domain.TimeBlockType
		if err := rows.Scan(&blk.ID, &blk.BusinessID, &blk.Name, &blk.Icon, &blk.DurationMin, &blk.Paid, &blk.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, blk)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, blk domain.TimeBlockType) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_block_types
		SET name = $3, icon = $4, duration_minutes = $5, paid = $6
		WHERE business_id = $1 AND id = $2
	`, blk.BusinessID, blk.ID, blk.Name, blk.Icon, blk.DurationMin, blk.Paid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, businessID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM time_block_types WHERE business_id = $1 AND id = $2
	`, businessID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
