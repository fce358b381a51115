package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slotsmith/slotsmith/services/booking-service/internal/cache"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/catalog"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/domain"
)

type CatalogHandler struct {
	repo   *catalog.Repository
	cache  *cache.Boundary
	logger *slog.Logger
}

func NewCatalogHandler(repo *catalog.Repository, cacheBoundary *cache.Boundary, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{repo: repo, cache: cacheBoundary, logger: logger}
}

type timeBlockRequest struct {
	BusinessID  string `json:"business_id"`
	BlockID     string `json:"block_id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	DurationMin int    `json:"duration_minutes"`
	Paid        bool   `json:"paid"`
}

type timeBlockItem struct {
	BlockID     string `json:"block_id"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	DurationMin int    `json:"duration_minutes"`
	Paid        bool   `json:"paid"`
	CreatedAt   string `json:"created_at"`
}

func (h *CatalogHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := h.decode(w, r, false)
	if !ok {
		return
	}

	id, err := h.repo.Create(r.Context(), domain.TimeBlockType{
		BusinessID:  req.BusinessID,
		Name:        req.Name,
		Icon:        req.Icon,
		DurationMin: req.DurationMin,
		Paid:        req.Paid,
	})
	if err != nil {
		h.logger.Error("failed to create time block type", "err", err, "business_id", req.BusinessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.cache.Invalidate(r.Context(), req.BusinessID)
	writeJSON(w, http.StatusCreated, map[string]string{"block_id": id})
}

func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	if cached, ok := h.cache.GetLookup(r.Context(), businessID, "time_blocks"); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cached)
		return
	}

	blocks, err := h.repo.List(r.Context(), businessID, 200)
	if err != nil {
		h.logger.Error("failed to list time block types", "err", err, "business_id", businessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	items := make([]timeBlockItem, 0, len(blocks))
	for _, blk := range blocks {
		items = append(items, timeBlockItem{
			BlockID:     blk.ID,
			Name:        blk.Name,
			Icon:        blk.Icon,
			DurationMin: blk.DurationMin,
			Paid:        blk.Paid,
			CreatedAt:   blk.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	h.cache.SetLookup(r.Context(), businessID, "time_blocks", body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *CatalogHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := h.decode(w, r, true)
	if !ok {
		return
	}

	err := h.repo.Update(r.Context(), domain.TimeBlockType{
		ID:          req.BlockID,
		BusinessID:  req.BusinessID,
		Name:        req.Name,
		Icon:        req.Icon,
		DurationMin: req.DurationMin,
		Paid:        req.Paid,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.cache.Invalidate(r.Context(), req.BusinessID)
	writeJSON(w, http.StatusOK, map[string]string{"block_id": req.BlockID})
}

func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req timeBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.BlockID = strings.TrimSpace(req.BlockID)
	if req.BusinessID == "" || req.BlockID == "" {
		http.Error(w, "business_id and block_id required", http.StatusBadRequest)
		return
	}

	if err := h.repo.Delete(r.Context(), req.BusinessID, req.BlockID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.cache.Invalidate(r.Context(), req.BusinessID)
	writeJSON(w, http.StatusOK, map[string]string{"block_id": req.BlockID, "status": "deleted"})
}

func (h *CatalogHandler) decode(w http.ResponseWriter, r *http.Request, needID bool) (timeBlockRequest, bool) {
	var req timeBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return req, false
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.BlockID = strings.TrimSpace(req.BlockID)
	req.Name = strings.TrimSpace(req.Name)
	if req.BusinessID == "" || req.Name == "" {
		http.Error(w, "business_id and name required", http.StatusBadRequest)
		return req, false
	}
	if needID && req.BlockID == "" {
		http.Error(w, "block_id required", http.StatusBadRequest)
		return req, false
	}
	if req.DurationMin <= 0 || req.DurationMin > 24*60 {
		http.Error(w, "duration_minutes must be within one day", http.StatusBadRequest)
		return req, false
	}
	return req, true
}
