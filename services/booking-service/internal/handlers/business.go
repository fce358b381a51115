package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slotsmith/slotsmith/services/booking-service/internal/business"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/cache"
)

type BusinessHandler struct {
	repo   *business.Repository
	cache  *cache.Boundary
	logger *slog.Logger
}

func NewBusinessHandler(repo *business.Repository, cacheBoundary *cache.Boundary, logger *slog.Logger) *BusinessHandler {
	return &BusinessHandler{repo: repo, cache: cacheBoundary, logger: logger}
}

type businessProfileItem struct {
	BusinessID      string `json:"business_id"`
	Name            string `json:"name"`
	Timezone        string `json:"timezone"`
	SlotStepMinutes int    `json:"slot_step_minutes"`
	UpdatedAt       string `json:"updated_at"`
}

// Get serves the profile through the cache boundary; a miss reads the row and
// repopulates.
func (h *BusinessHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	if cached, ok := h.cache.GetDetail(r.Context(), businessID); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cached)
		return
	}

	profile, err := h.repo.GetOrCreateProfile(r.Context(), businessID)
	if err != nil {
		h.logger.Error("failed to load business profile", "err", err, "business_id", businessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	body, err := json.Marshal(businessProfileItem{
		BusinessID:      profile.BusinessID,
		Name:            profile.Name,
		Timezone:        profile.Timezone,
		SlotStepMinutes: profile.SlotStepMinutes,
		UpdatedAt:       profile.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	h.cache.SetDetail(r.Context(), businessID, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type updateProfileRequest struct {
	BusinessID      string `json:"business_id"`
	Name            string `json:"name"`
	Timezone        string `json:"timezone"`
	SlotStepMinutes int    `json:"slot_step_minutes"`
}

func (h *BusinessHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.BusinessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			http.Error(w, "unknown timezone", http.StatusBadRequest)
			return
		}
	}

	if err := h.repo.UpdateProfile(r.Context(), req.BusinessID, strings.TrimSpace(req.Name), req.Timezone, req.SlotStepMinutes); err != nil {
		h.logger.Error("failed to update business profile", "err", err, "business_id", req.BusinessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.cache.Invalidate(r.Context(), req.BusinessID)
	writeJSON(w, http.StatusOK, map[string]string{"business_id": req.BusinessID})
}
