// calendar-sim is a stand-in calendar provider for local development. It
// serves the OAuth token endpoint and the event upsert endpoints that
// calendar-sync-service talks to, keeping state in memory.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

type event struct {
	ID          string          `json:"id"`
	Summary     string          `json:"summary"`
	Description string          `json:"description"`
	Start       json.RawMessage `json:"start"`
	End         json.RawMessage `json:"end"`
}

type server struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID int
	events map[string]event
	tokens map[string]bool
}

func main() {
	var (
		addr      = flag.String("addr", getenv("ADDR", ":9099"), "listen address")
		failEvery = flag.Int("fail-every", 0, "reject every Nth event upsert with a 500 (0 disables)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "calendar-sim")
	s := &server{
		logger: logger,
		events: map[string]event{},
		tokens: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", s.handleToken)
	mux.HandleFunc("/v3/calendars/primary/events", withFailure(*failEvery, s.handleCreate))
	mux.HandleFunc("/v3/calendars/primary/events/", withFailure(*failEvery, s.handleUpdate))
	mux.HandleFunc("/debug/events", s.handleDump)
	mux.HandleFunc("/debug/expire", s.handleExpire)

	logger.Info("calendar-sim listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func withFailure(every int, next http.HandlerFunc) http.HandlerFunc {
	var mu sync.Mutex
	var n int
	return func(w http.ResponseWriter, r *http.Request) {
		if every > 0 {
			mu.Lock()
			n++
			fail := n%every == 0
			mu.Unlock()
			if fail {
				http.Error(w, "simulated provider outage", http.StatusInternalServerError)
				return
			}
		}
		next(w, r)
	}
}

func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	grant := r.PostFormValue("grant_type")
	switch grant {
	case "authorization_code":
		if r.PostFormValue("code") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
			return
		}
	case "refresh_token":
		if r.PostFormValue("refresh_token") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	s.mu.Lock()
	s.nextID++
	access := fmt.Sprintf("at-sim-%d", s.nextID)
	refresh := fmt.Sprintf("rt-sim-%d", s.nextID)
	s.tokens[access] = true
	s.mu.Unlock()

	s.logger.Info("token issued", "grant_type", grant)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (s *server) authorize(w http.ResponseWriter, r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return false
	}
	return true
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	var ev event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.nextID++
	ev.ID = fmt.Sprintf("evt-sim-%d", s.nextID)
	s.events[ev.ID] = ev
	s.mu.Unlock()

	s.logger.Info("event created", "id", ev.ID, "summary", ev.Summary)
	writeJSON(w, http.StatusOK, ev)
}

func (s *server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v3/calendars/primary/events/")
	if id == "" {
		http.Error(w, "event id required", http.StatusBadRequest)
		return
	}
	var ev event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	ev.ID = id

	s.mu.Lock()
	s.events[id] = ev
	s.mu.Unlock()

	s.logger.Info("event updated", "id", id, "summary", ev.Summary)
	writeJSON(w, http.StatusOK, ev)
}

func (s *server) handleDump(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// handleExpire invalidates every issued access token so refresh and reconnect
// paths can be exercised locally.
func (s *server) handleExpire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	s.tokens = map[string]bool{}
	s.mu.Unlock()
	s.logger.Info("access tokens expired", "at", time.Now().UTC().Format(time.RFC3339))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
