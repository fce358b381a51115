package sync

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/calendar"
	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/tokens"
)

type fakeTokens struct {
	cred       tokens.Credential
	rotated    int
	staleOnce  bool
	fresher    *tokens.Credential
	gets       int
	rotateErr  error
	lastRotate struct {
		access, refresh string
		generation      int64
	}
}

func (f *fakeTokens) Get(_ context.Context, _ string) (tokens.Credential, error) {
	f.gets++
	if f.fresher != nil && f.gets > 1 {
		return *f.fresher, nil
	}
	return f.cred, nil
}

func (f *fakeTokens) Rotate(_ context.Context, _, access, refresh string, _ time.Time, generation int64) error {
	if f.rotateErr != nil {
		return f.rotateErr
	}
	if f.staleOnce {
		f.staleOnce = false
		return tokens.ErrStale
	}
	f.rotated++
	f.lastRotate.access = access
	f.lastRotate.refresh = refresh
	f.lastRotate.generation = generation
	return nil
}

func (f *fakeTokens) ListConnected(context.Context, int) ([]string, error) {
	return []string{f.cred.BusinessID}, nil
}

type fakeProvider struct {
	refreshed  int
	refreshTok calendar.Token
	refreshErr error
	upserts    []calendar.Event
	usedTokens []string
	upsertErr  map[string]error
}

func (f *fakeProvider) Refresh(context.Context, string) (calendar.Token, error) {
	f.refreshed++
	if f.refreshErr != nil {
		return calendar.Token{}, f.refreshErr
	}
	return f.refreshTok, nil
}

func (f *fakeProvider) UpsertEvent(_ context.Context, accessToken string, ev calendar.Event) (string, error) {
	if err, ok := f.upsertErr[ev.Summary]; ok {
		return "", err
	}
	f.upserts = append(f.upserts, ev)
	f.usedTokens = append(f.usedTokens, accessToken)
	if ev.ID != "" {
		return ev.ID, nil
	}
	return "evt-new", nil
}

type fakeSource struct {
	pending []PendingReservation
	synced  map[string]string
}

func (f *fakeSource) ListUnsynced(_ context.Context, _ string, _ int) ([]PendingReservation, error) {
	return f.pending, nil
}

func (f *fakeSource) MarkSynced(_ context.Context, reservationID, eventID string, _ time.Time) error {
	if f.synced == nil {
		f.synced = make(map[string]string)
	}
	f.synced[reservationID] = eventID
	return nil
}

func validCred() tokens.Credential {
	return tokens.Credential{
		BusinessID:   "biz-1",
		Provider:     "google",
		AccessToken:  "at-live",
		RefreshToken: "rt-live",
		ExpiresAt:    time.Now().Add(time.Hour),
		Generation:   3,
	}
}

func pendingRes(id, summary, status, externalID string) PendingReservation {
	return PendingReservation{
		ID:              id,
		BusinessID:      "biz-1",
		ClientName:      "Ada",
		ClientEmail:     "ada@example.com",
		ServiceName:     summary,
		Day:             time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		StartMinute:     600,
		DurationMin:     60,
		Status:          status,
		Timezone:        "UTC",
		ExternalEventID: externalID,
	}
}

func newTestEngine(ts TokenStore, p Provider, src ReservationSource) *Engine {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewEngine(ts, p, src, logger, Config{})
}

func TestSyncPending_CreatesAndUpdates(t *testing.T) {
	ts := &fakeTokens{cred: validCred()}
	p := &fakeProvider{}
	src := &fakeSource{pending: []PendingReservation{
		pendingRes("r1", "Cut with Ada", "confirmed", ""),
		pendingRes("r2", "Color", "pending", "evt-old"),
	}}
	engine := newTestEngine(ts, p, src)

	report, err := engine.SyncPending(context.Background(), "biz-1")
	if err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if report.Created != 1 || report.Updated != 1 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if src.synced["r1"] != "evt-new" {
		t.Fatalf("r1 synced to %q", src.synced["r1"])
	}
	if src.synced["r2"] != "evt-old" {
		t.Fatalf("r2 synced to %q", src.synced["r2"])
	}
	if p.refreshed != 0 {
		t.Fatalf("fresh credential must not be refreshed")
	}
}

func TestSyncPending_EventCarriesClientDetail(t *testing.T) {
	ts := &fakeTokens{cred: validCred()}
	p := &fakeProvider{}
	res := pendingRes("r1", "Cut", "confirmed", "")
	res.ClientPhone = "+1555123"
	res.Notes = "prefers window seat"
	src := &fakeSource{pending: []PendingReservation{res}}
	engine := newTestEngine(ts, p, src)

	if _, err := engine.SyncPending(context.Background(), "biz-1"); err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if len(p.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(p.upserts))
	}
	ev := p.upserts[0]
	if ev.Summary != "Cut with Ada" {
		t.Fatalf("summary = %q", ev.Summary)
	}
	want := "Service: Cut\nClient: Ada\nEmail: ada@example.com\nPhone: +1555123\n\nprefers window seat"
	if ev.Description != want {
		t.Fatalf("description = %q, want %q", ev.Description, want)
	}
	if len(ev.Attendees) != 1 || ev.Attendees[0] != "ada@example.com" {
		t.Fatalf("attendees = %v", ev.Attendees)
	}
}

func TestSyncPending_OneFailureDoesNotBlockRest(t *testing.T) {
	ts := &fakeTokens{cred: validCred()}
	p := &fakeProvider{upsertErr: map[string]error{
		"Broken with Ada": errors.New("provider 500"),
	}}
	src := &fakeSource{pending: []PendingReservation{
		pendingRes("r1", "Broken", "confirmed", ""),
		pendingRes("r2", "Fine", "confirmed", ""),
	}}
	engine := newTestEngine(ts, p, src)

	report, err := engine.SyncPending(context.Background(), "biz-1")
	if err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if len(report.Errors) != 1 || report.Errors[0].ReservationID != "r1" {
		t.Fatalf("errors = %+v", report.Errors)
	}
	if _, ok := src.synced["r1"]; ok {
		t.Fatalf("failed event must stay unsynced")
	}
	if src.synced["r2"] != "evt-new" {
		t.Fatalf("r2 must still sync, got %q", src.synced["r2"])
	}
}

func TestSyncPending_CredentialErrorAbortsBatch(t *testing.T) {
	ts := &fakeTokens{cred: validCred()}
	p := &fakeProvider{upsertErr: map[string]error{
		"First with Ada": &calendar.CredentialError{StatusCode: http.StatusUnauthorized},
	}}
	src := &fakeSource{pending: []PendingReservation{
		pendingRes("r1", "First", "confirmed", ""),
		pendingRes("r2", "Second", "confirmed", ""),
	}}
	engine := newTestEngine(ts, p, src)

	_, err := engine.SyncPending(context.Background(), "biz-1")
	var credErr *calendar.CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialError, got %v", err)
	}
	if len(src.synced) != 0 {
		t.Fatalf("no rows may be marked synced, got %v", src.synced)
	}
	if len(p.upserts) != 0 {
		t.Fatalf("batch must abort before further events, got %d upserts", len(p.upserts))
	}
}

func TestSyncPending_RefreshesExpiringToken(t *testing.T) {
	cred := validCred()
	cred.ExpiresAt = time.Now().Add(time.Minute)
	ts := &fakeTokens{cred: cred}
	p := &fakeProvider{refreshTok: calendar.Token{
		AccessToken: "at-fresh",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	src := &fakeSource{pending: []PendingReservation{pendingRes("r1", "Cut", "confirmed", "")}}
	engine := newTestEngine(ts, p, src)

	if _, err := engine.SyncPending(context.Background(), "biz-1"); err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if p.refreshed != 1 || ts.rotated != 1 {
		t.Fatalf("refreshed = %d, rotated = %d", p.refreshed, ts.rotated)
	}
	if ts.lastRotate.generation != cred.Generation {
		t.Fatalf("rotate generation = %d, want %d", ts.lastRotate.generation, cred.Generation)
	}
	// Provider omitted a new refresh token, so the old one is kept.
	if ts.lastRotate.refresh != "rt-live" {
		t.Fatalf("refresh token = %q", ts.lastRotate.refresh)
	}
	if len(p.usedTokens) != 1 || p.usedTokens[0] != "at-fresh" {
		t.Fatalf("events must use refreshed token, got %v", p.usedTokens)
	}
}

func TestSyncPending_StaleRotationUsesWinner(t *testing.T) {
	cred := validCred()
	cred.ExpiresAt = time.Now().Add(time.Minute)
	fresher := validCred()
	fresher.AccessToken = "at-winner"
	fresher.Generation = cred.Generation + 1
	ts := &fakeTokens{cred: cred, staleOnce: true, fresher: &fresher}
	p := &fakeProvider{refreshTok: calendar.Token{AccessToken: "at-loser", ExpiresAt: time.Now().Add(time.Hour)}}
	src := &fakeSource{pending: []PendingReservation{pendingRes("r1", "Cut", "confirmed", "")}}
	engine := newTestEngine(ts, p, src)

	if _, err := engine.SyncPending(context.Background(), "biz-1"); err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if len(p.usedTokens) != 1 || p.usedTokens[0] != "at-winner" {
		t.Fatalf("must use the winning instance's token, got %v", p.usedTokens)
	}
}

func TestSyncPending_RefreshFailureAbortsBatch(t *testing.T) {
	cred := validCred()
	cred.ExpiresAt = time.Now().Add(-time.Minute)
	ts := &fakeTokens{cred: cred}
	p := &fakeProvider{refreshErr: errors.New("network down")}
	src := &fakeSource{pending: []PendingReservation{pendingRes("r1", "Cut", "confirmed", "")}}
	engine := newTestEngine(ts, p, src)

	if _, err := engine.SyncPending(context.Background(), "biz-1"); err == nil {
		t.Fatalf("expected error")
	}
	if len(src.synced) != 0 || len(p.upserts) != 0 {
		t.Fatalf("nothing may be synced after refresh failure")
	}
}

func TestSyncPending_CancelledAcknowledgedLocally(t *testing.T) {
	ts := &fakeTokens{cred: validCred()}
	p := &fakeProvider{}
	src := &fakeSource{pending: []PendingReservation{pendingRes("r1", "Cut", "cancelled", "evt-1")}}
	engine := newTestEngine(ts, p, src)

	report, err := engine.SyncPending(context.Background(), "biz-1")
	if err != nil {
		t.Fatalf("SyncPending: %v", err)
	}
	if report.Cancelled != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(p.upserts) != 0 {
		t.Fatalf("cancelled rows must not reach the provider")
	}
	if got, ok := src.synced["r1"]; !ok || got != "" {
		t.Fatalf("cancelled row must be acknowledged with no event id, got %q (%v)", got, ok)
	}
}
