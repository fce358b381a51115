package cache

import (
	"context"
	"log/slog"
	"time"
)

// Store is the exact-key cache contract the boundary needs. Implemented by
// libs/cachex (Redis) in production and by a map fake in tests.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

const (
	detailTTL = 10 * time.Minute
	// List views embed filter parameters in their keys, so they cannot be
	// invalidated per business; they age out on a short TTL instead.
	ListTTL = 30 * time.Second
)

// Boundary owns every cached derived view keyed by business. Mutations to
// staff, time-block types, or the business record call Invalidate;
// reservation mutations do not (reservations are not embedded in the cached
// detail payload, and availability is never cached).
type Boundary struct {
	store  Store
	logger *slog.Logger
}

func NewBoundary(store Store, logger *slog.Logger) *Boundary {
	return &Boundary{store: store, logger: logger}
}

func detailKey(businessID string) string {
	return "biz:detail:" + businessID
}

func lookupKey(businessID, name string) string {
	return "biz:kv:" + businessID + ":" + name
}

func (b *Boundary) GetDetail(ctx context.Context, businessID string) ([]byte, bool) {
	if b == nil || b.store == nil {
		return nil, false
	}
	val, ok, err := b.store.Get(ctx, detailKey(businessID))
	if err != nil {
		b.logger.Warn("cache get failed", "err", err, "business_id", businessID)
		return nil, false
	}
	return val, ok
}

func (b *Boundary) SetDetail(ctx context.Context, businessID string, payload []byte) {
	if b == nil || b.store == nil {
		return
	}
	if err := b.store.Set(ctx, detailKey(businessID), payload, detailTTL); err != nil {
		b.logger.Warn("cache set failed", "err", err, "business_id", businessID)
	}
}

func (b *Boundary) SetLookup(ctx context.Context, businessID, name string, payload []byte) {
	if b == nil || b.store == nil {
		return
	}
	if err := b.store.Set(ctx, lookupKey(businessID, name), payload, detailTTL); err != nil {
		b.logger.Warn("cache set failed", "err", err, "business_id", businessID, "key", name)
	}
}

func (b *Boundary) GetLookup(ctx context.Context, businessID, name string) ([]byte, bool) {
	if b == nil || b.store == nil {
		return nil, false
	}
	val, ok, err := b.store.Get(ctx, lookupKey(businessID, name))
	if err != nil {
		b.logger.Warn("cache get failed", "err", err, "business_id", businessID, "key", name)
		return nil, false
	}
	return val, ok
}

// Invalidate drops every per-business derived view. Errors are logged, not
// returned: a failed invalidation only extends staleness until the TTL.
func (b *Boundary) Invalidate(ctx context.Context, businessID string) {
	if b == nil || b.store == nil {
		return
	}
	keys := []string{
		detailKey(businessID),
		lookupKey(businessID, "staff"),
		lookupKey(businessID, "time_blocks"),
	}
	if err := b.store.Del(ctx, keys...); err != nil {
		b.logger.Warn("cache invalidation failed", "err", err, "business_id", businessID)
	}
}
