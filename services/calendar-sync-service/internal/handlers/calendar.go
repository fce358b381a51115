package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/calendar"
	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/sync"
	"github.com/slotsmith/slotsmith/services/calendar-sync-service/internal/tokens"
)

// CalendarHandler exposes the connection lifecycle (OAuth connect, callback,
// disconnect, status) and a manual sync trigger.
type CalendarHandler struct {
	client   *calendar.Client
	tokens   *tokens.Repository
	engine   *sync.Engine
	provider string
	logger   *slog.Logger
}

func NewCalendarHandler(client *calendar.Client, tokenRepo *tokens.Repository, engine *sync.Engine, provider string, logger *slog.Logger) *CalendarHandler {
	if provider == "" {
		provider = "google"
	}
	return &CalendarHandler{
		client:   client,
		tokens:   tokenRepo,
		engine:   engine,
		provider: provider,
		logger:   logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// Connect redirects the business owner to the provider's consent screen.
func (h *CalendarHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, h.client.AuthURL(businessID), http.StatusFound)
}

// Callback finishes the OAuth flow: code is exchanged for tokens and the
// credential is stored encrypted.
func (h *CalendarHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	businessID := strings.TrimSpace(r.URL.Query().Get("state"))
	if code == "" || businessID == "" {
		http.Error(w, "code and state required", http.StatusBadRequest)
		return
	}

	tok, err := h.client.ExchangeCode(r.Context(), code)
	if err != nil {
		var credErr *calendar.CredentialError
		if errors.As(err, &credErr) {
			http.Error(w, "authorization code rejected", http.StatusBadRequest)
			return
		}
		h.logger.Error("code exchange failed", "err", err, "business_id", businessID)
		http.Error(w, "calendar provider unavailable", http.StatusBadGateway)
		return
	}

	err = h.tokens.Save(r.Context(), tokens.Credential{
		BusinessID:   businessID,
		Provider:     h.provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	})
	if err != nil {
		h.logger.Error("failed to store credential", "err", err, "business_id", businessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"business_id": businessID,
		"provider":    h.provider,
		"status":      "connected",
	})
}

type syncRequest struct {
	BusinessID string `json:"business_id"`
}

// Sync answers POST /api/v1/calendar/sync: an on-demand sync of the business's
// unsynced reservations, returning the per-event report.
func (h *CalendarHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	if req.BusinessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	report, err := h.engine.SyncPending(r.Context(), req.BusinessID)
	if err != nil {
		if errors.Is(err, tokens.ErrNotConnected) {
			http.Error(w, "no calendar connected", http.StatusNotFound)
			return
		}
		var credErr *calendar.CredentialError
		if errors.As(err, &credErr) {
			http.Error(w, "calendar credential rejected; reconnect required", http.StatusConflict)
			return
		}
		h.logger.Error("sync failed", "err", err, "business_id", req.BusinessID)
		http.Error(w, "sync failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *CalendarHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	cred, err := h.tokens.Get(r.Context(), businessID)
	if errors.Is(err, tokens.ErrNotConnected) {
		writeJSON(w, http.StatusOK, map[string]any{"business_id": businessID, "connected": false})
		return
	}
	if err != nil {
		h.logger.Error("failed to load credential", "err", err, "business_id", businessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"business_id": businessID,
		"connected":   true,
		"provider":    cred.Provider,
		"expires_at":  cred.ExpiresAt.UTC().Format(time.RFC3339),
		"updated_at":  cred.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *CalendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	if req.BusinessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	if err := h.tokens.Delete(r.Context(), req.BusinessID); err != nil {
		if errors.Is(err, tokens.ErrNotConnected) {
			http.Error(w, "no calendar connected", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete credential", "err", err, "business_id", req.BusinessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"business_id": req.BusinessID, "status": "disconnected"})
}
