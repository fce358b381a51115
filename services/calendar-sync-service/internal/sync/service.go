package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/calendar"
	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/tokens"
)

// TokenStore is the credential persistence the engine needs.
type TokenStore interface {
	Get(ctx context.Context, businessID string) (tokens.Credential, error)
	Rotate(ctx context.Context, businessID, accessToken, refreshToken string, expiresAt time.Time, expectedGeneration int64) error
	ListConnected(ctx context.Context, limit int) ([]string, error)
}

// Provider is the external calendar API surface the engine uses.
type Provider interface {
	Refresh(ctx context.Context, refreshToken string) (calendar.Token, error)
	UpsertEvent(ctx context.Context, accessToken string, ev calendar.Event) (string, error)
}

// ReservationSource supplies unsynced reservations and records outcomes.
type ReservationSource interface {
	ListUnsynced(ctx context.Context, businessID string, limit int) ([]PendingReservation, error)
	MarkSynced(ctx context.Context, reservationID, eventID string, at time.Time) error
}

// EventError is one failed event inside an otherwise-progressing batch.
type EventError struct {
	ReservationID string `json:"reservation_id"`
	Error         string `json:"error"`
}

// Report summarizes one sync invocation.
type Report struct {
	BusinessID string       `json:"business_id"`
	Total      int          `json:"total"`
	Created    int          `json:"created"`
	Updated    int          `json:"updated"`
	Cancelled  int          `json:"cancelled"`
	Errors     []EventError `json:"errors,omitempty"`
}

// refreshSkew refreshes tokens slightly before expiry so an event call never
// races the expiry boundary.
const refreshSkew = 5 * time.Minute

type Config struct {
	BatchSize    int
	EventTimeout time.Duration
}

// Engine pushes unsynced reservations to the connected calendar. One failing
// event never blocks the rest of the batch; a rejected credential aborts it.
// Failed events are retried on the next invocation, never within the same one.
type Engine struct {
	tokens       TokenStore
	provider     Provider
	reservations ReservationSource
	logger       *slog.Logger
	batchSize    int
	eventTimeout time.Duration
	now          func() time.Time
}

func NewEngine(tokenStore TokenStore, provider Provider, reservations ReservationSource, logger *slog.Logger, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 10 * time.Second
	}
	return &Engine{
		tokens:       tokenStore,
		provider:     provider,
		reservations: reservations,
		logger:       logger,
		batchSize:    cfg.BatchSize,
		eventTimeout: cfg.EventTimeout,
		now:          time.Now,
	}
}

// SyncPending syncs one business's unsynced reservations.
func (e *Engine) SyncPending(ctx context.Context, businessID string) (Report, error) {
	report := Report{BusinessID: businessID}

	cred, err := e.tokens.Get(ctx, businessID)
	if err != nil {
		return report, err
	}
	cred, err = e.freshCredential(ctx, cred)
	if err != nil {
		return report, err
	}

	pending, err := e.reservations.ListUnsynced(ctx, businessID, e.batchSize)
	if err != nil {
		return report, err
	}
	report.Total = len(pending)

	for _, res := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if res.Status == "cancelled" {
			// Remote events are never deleted; the local row just gets
			// acknowledged so the sweep stops picking it up.
			if err := e.reservations.MarkSynced(ctx, res.ID, "", e.now().UTC()); err != nil {
				report.Errors = append(report.Errors, EventError{ReservationID: res.ID, Error: err.Error()})
				continue
			}
			report.Cancelled++
			continue
		}

		eventID, err := e.pushEvent(ctx, cred.AccessToken, res)
		if err != nil {
			var credErr *calendar.CredentialError
			if errors.As(err, &credErr) {
				// The remaining events would all fail the same way.
				return report, err
			}
			e.logger.Warn("event sync failed", "err", err, "reservation_id", res.ID)
			report.Errors = append(report.Errors, EventError{ReservationID: res.ID, Error: err.Error()})
			continue
		}
		if err := e.reservations.MarkSynced(ctx, res.ID, eventID, e.now().UTC()); err != nil {
			report.Errors = append(report.Errors, EventError{ReservationID: res.ID, Error: err.Error()})
			continue
		}
		if res.ExternalEventID != "" {
			report.Updated++
		} else {
			report.Created++
		}
	}
	return report, nil
}

// SyncAll runs SyncPending for every connected business; one failing business
// does not stop the sweep.
func (e *Engine) SyncAll(ctx context.Context) {
	ids, err := e.tokens.ListConnected(ctx, 0)
	if err != nil {
		e.logger.Error("failed to list connected businesses", "err", err)
		return
	}
	for _, businessID := range ids {
		if ctx.Err() != nil {
			return
		}
		report, err := e.SyncPending(ctx, businessID)
		if err != nil {
			e.logger.Error("sync failed", "err", err, "business_id", businessID)
			continue
		}
		if report.Total > 0 {
			e.logger.Info("sync completed",
				"business_id", businessID,
				"total", report.Total,
				"created", report.Created,
				"updated", report.Updated,
				"cancelled", report.Cancelled,
				"errors", len(report.Errors),
			)
		}
	}
}

// freshCredential refreshes the token pair when it is about to expire. A
// refresh failure aborts the batch: every event call would be rejected anyway.
func (e *Engine) freshCredential(ctx context.Context, cred tokens.Credential) (tokens.Credential, error) {
	if e.now().Add(refreshSkew).Before(cred.ExpiresAt) {
		return cred, nil
	}

	tok, err := e.provider.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return cred, fmt.Errorf("token refresh: %w", err)
	}
	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}

	err = e.tokens.Rotate(ctx, cred.BusinessID, tok.AccessToken, refreshToken, tok.ExpiresAt, cred.Generation)
	if errors.Is(err, tokens.ErrStale) {
		// Another instance rotated first; its tokens are the live ones.
		return e.tokens.Get(ctx, cred.BusinessID)
	}
	if err != nil {
		return cred, err
	}

	cred.AccessToken = tok.AccessToken
	cred.RefreshToken = refreshToken
	cred.ExpiresAt = tok.ExpiresAt
	cred.Generation++
	return cred, nil
}

func (e *Engine) pushEvent(ctx context.Context, accessToken string, res PendingReservation) (string, error) {
	loc, err := time.LoadLocation(res.Timezone)
	if err != nil {
		loc = time.UTC
	}
	start := time.Date(res.Day.Year(), res.Day.Month(), res.Day.Day(), 0, res.StartMinute, 0, 0, loc)
	end := start.Add(time.Duration(res.DurationMin) * time.Minute)

	summary := res.ServiceName
	if summary == "" {
		summary = "Reservation"
	}
	if res.ClientName != "" {
		summary += " with " + res.ClientName
	}

	ev := calendar.Event{
		ID:          res.ExternalEventID,
		Summary:     summary,
		Description: eventDescription(res),
		Start:       start,
		End:         end,
	}
	if res.ClientEmail != "" {
		ev.Attendees = []string{res.ClientEmail}
	}

	evCtx, cancel := context.WithTimeout(ctx, e.eventTimeout)
	defer cancel()
	return e.provider.UpsertEvent(evCtx, accessToken, ev)
}

// eventDescription carries the detail that does not belong in the summary
// line: the service, how to reach the client, and any booking notes.
func eventDescription(res PendingReservation) string {
	var lines []string
	if res.ServiceName != "" {
		lines = append(lines, "Service: "+res.ServiceName)
	}
	if res.ClientName != "" {
		lines = append(lines, "Client: "+res.ClientName)
	}
	if res.ClientEmail != "" {
		lines = append(lines, "Email: "+res.ClientEmail)
	}
	if res.ClientPhone != "" {
		lines = append(lines, "Phone: "+res.ClientPhone)
	}
	if res.Notes != "" {
		lines = append(lines, "", res.Notes)
	}
	return strings.Join(lines, "\n")
}
