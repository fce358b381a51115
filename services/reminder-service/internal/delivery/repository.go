package delivery

import (
	"context"
	"encoding/json"

	"github.com/slotsmith/slotsmith/libs/db"
)

// Delivery is the audit record of one reminder attempt that reached (or
// failed to reach) a provider.
type Delivery struct {
	ReservationID string
	BusinessID    string
	Channel       string
	Recipient     string
	Payload       map[string]any
	Status        string
	ProviderID    string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, d Delivery) error {
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO reminder_deliveries (reservation_id, business_id, channel, recipient, payload, status, provider_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ReservationID, d.BusinessID, d.Channel, d.Recipient, payload, d.Status, d.ProviderID)
	return err
}
