package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:      baseURL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/callback",
	})
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %s", got)
		}
		if got := r.PostForm.Get("code"); got != "auth-code" {
			t.Errorf("code = %s", got)
		}
		if got := r.PostForm.Get("client_secret"); got != "client-secret" {
			t.Errorf("client_secret = %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	tok, err := newTestClient(srv.URL).ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if tok.AccessToken != "at-1" || tok.RefreshToken != "rt-1" {
		t.Fatalf("token = %+v", tok)
	}
	if until := time.Until(tok.ExpiresAt); until < 55*time.Minute || until > 65*time.Minute {
		t.Fatalf("expires_at not ~1h out: %v", tok.ExpiresAt)
	}
}

func TestRefresh_InvalidGrantIsCredentialError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Refresh(context.Background(), "rt-revoked")
	var credErr *CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialError, got %v", err)
	}
	if credErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", credErr.StatusCode)
	}
}

func TestUpsertEvent_CreateAndUpdate(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody eventBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "evt-1"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	ev := Event{
		Summary:   "Haircut with Ada",
		Start:     start,
		End:       start.Add(time.Hour),
		Attendees: []string{"ada@example.com", ""},
	}

	id, err := c.UpsertEvent(context.Background(), "at-1", ev)
	if err != nil {
		t.Fatalf("UpsertEvent: %v", err)
	}
	if id != "evt-1" {
		t.Fatalf("id = %s", id)
	}
	if gotMethod != http.MethodPost || gotPath != "/v3/calendars/primary/events" {
		t.Fatalf("create request = %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer at-1" {
		t.Fatalf("auth = %s", gotAuth)
	}
	if len(gotBody.Attendees) != 1 || gotBody.Attendees[0].Email != "ada@example.com" {
		t.Fatalf("attendees = %+v", gotBody.Attendees)
	}
	if len(gotBody.Reminders.Overrides) != 2 {
		t.Fatalf("reminders = %+v", gotBody.Reminders)
	}
	if gotBody.Reminders.Overrides[0].Method != "email" || gotBody.Reminders.Overrides[0].Minutes != 24*60 {
		t.Fatalf("email reminder = %+v", gotBody.Reminders.Overrides[0])
	}

	ev.ID = "evt-1"
	if _, err := c.UpsertEvent(context.Background(), "at-1", ev); err != nil {
		t.Fatalf("UpsertEvent update: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/v3/calendars/primary/events/evt-1" {
		t.Fatalf("update request = %s %s", gotMethod, gotPath)
	}
}

func TestUpsertEvent_UnauthorizedIsCredentialError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).UpsertEvent(context.Background(), "expired", Event{Summary: "x", Start: time.Now(), End: time.Now().Add(time.Hour)})
	var credErr *CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialError, got %v", err)
	}
}

func TestAuthURL(t *testing.T) {
	c := newTestClient("https://calendar.example.com")
	u := c.AuthURL("biz-1")
	for _, want := range []string{"client_id=client-id", "state=biz-1", "response_type=code"} {
		if !strings.Contains(u, want) {
			t.Fatalf("auth url %q missing %q", u, want)
		}
	}
}
