package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/slotsmith/slotsmith/libs/cryptox"
	"github.com/slotsmith/slotsmith/libs/db"
)

var (
	ErrNotConnected = errors.New("no calendar connection for business")
	// ErrStale means another instance rotated the credential first; the
	// caller re-reads and proceeds with the fresher token.
	ErrStale = errors.New("credential generation is stale")
)

// Credential is a decrypted OAuth credential for one business's calendar
// connection. Generation increments on every token rotation and backs the
// compare-and-swap in Rotate.
type Credential struct {
	BusinessID   string
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Generation   int64
	UpdatedAt    time.Time
}

// Repository stores calendar credentials with both tokens encrypted at rest.
type Repository struct {
	pool *db.Pool
	box  *cryptox.Box
}

func NewRepository(pool *db.Pool, box *cryptox.Box) *Repository {
	return &Repository{pool: pool, box: box}
}

// Save establishes or replaces the connection for a business. The access
// token, refresh token, and expiry are written together; a partial update can
// never leave a token paired with the wrong expiry.
func (r *Repository) Save(ctx context.Context, cred Credential) error {
	access, err := r.box.SealString(cred.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := r.box.SealString(cred.RefreshToken)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO calendar_credentials (business_id, provider, access_token_enc, refresh_token_enc, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id) DO UPDATE
		SET provider = EXCLUDED.provider,
			access_token_enc = EXCLUDED.access_token_enc,
			refresh_token_enc = EXCLUDED.refresh_token_enc,
			expires_at = EXCLUDED.expires_at,
			generation = calendar_credentials.generation + 1,
			updated_at = now()
	`, cred.BusinessID, cred.Provider, access, refresh, cred.ExpiresAt)
	return err
}

func (r *Repository) Get(ctx context.Context, businessID string) (Credential, error) {
	var cred Credential
	var accessEnc, refreshEnc []byte
	err := r.pool.QueryRow(ctx, `
		SELECT business_id::text, provider, access_token_enc, refresh_token_enc, expires_at, generation, updated_at
		FROM calendar_credentials
		WHERE business_id = $1
	`, businessID).Scan(&cred.BusinessID, &cred.Provider, &accessEnc, &refreshEnc, &cred.ExpiresAt, &cred.Generation, &cred.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, ErrNotConnected
	}
	if err != nil {
		return Credential{}, err
	}

	if cred.AccessToken, err = r.box.OpenString(accessEnc); err != nil {
		return Credential{}, err
	}
	if cred.RefreshToken, err = r.box.OpenString(refreshEnc); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

// Rotate swaps in refreshed tokens, guarded by the generation the caller read.
// A concurrent refresh wins the row and this call returns ErrStale.
func (r *Repository) Rotate(ctx context.Context, businessID, accessToken, refreshToken string, expiresAt time.Time, expectedGeneration int64) error {
	access, err := r.box.SealString(accessToken)
	if err != nil {
		return err
	}
	refresh, err := r.box.SealString(refreshToken)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE calendar_credentials
		SET access_token_enc = $2,
			refresh_token_enc = $3,
			expires_at = $4,
			generation = generation + 1,
			updated_at = now()
		WHERE business_id = $1 AND generation = $5
	`, businessID, access, refresh, expiresAt, expectedGeneration)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

// ListConnected returns the business ids with an active connection; the sweep
// worker iterates these.
func (r *Repository) ListConnected(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `
		SELECT business_id::text
		FROM calendar_credentials
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) Delete(ctx context.Context, businessID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM calendar_credentials WHERE business_id = $1
	`, businessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotConnected
	}
	return nil
}
