package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotsmith/slotsmith/services/booking-service/internal/availability"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/business"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/domain"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/placement"
)

type AvailabilityHandler struct {
	svc      *placement.Service
	profiles *business.Repository
	logger   *slog.Logger
	now      func() time.Time
}

func NewAvailabilityHandler(svc *placement.Service, profiles *business.Repository, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, profiles: profiles, logger: logger, now: time.Now}
}

type intervalItem struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

type dayAvailabilityItem struct {
	Date     string         `json:"date"`
	Nominal  []intervalItem `json:"nominal"`
	Bookable []intervalItem `json:"bookable"`
}

// Resolve answers GET /v1/availability. The view parameter expands the anchor
// date into a day, week, or month of per-date availability.
func (h *AvailabilityHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if businessID == "" || staffID == "" || dateStr == "" {
		http.Error(w, "business_id, staff_id, and date are required", http.StatusBadRequest)
		return
	}

	view, err := availability.ParseViewType(strings.TrimSpace(r.URL.Query().Get("view")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loc, err := h.profiles.Location(r.Context(), businessID)
	if err != nil {
		h.logger.Error("failed to load business profile", "err", err, "business_id", businessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	anchor, err := time.ParseInLocation(domain.DateFormat, dateStr, loc)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	dates := view.Dates(anchor, loc)
	items := make([]dayAvailabilityItem, 0, len(dates))
	for _, day := range dates {
		avail, err := h.svc.ResolveDay(r.Context(), businessID, staffID, day)
		if err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		items = append(items, dayAvailabilityItem{
			Date:     day.Format(domain.DateFormat),
			Nominal:  toIntervalItems(avail.Nominal),
			Bookable: toIntervalItems(avail.Bookable),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type slotListItem struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Slots answers GET /v1/availability/slots: the concrete start offsets where a
// booking of the requested duration fits on one date. Slots in the past are
// dropped when the date is the business-local today.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if businessID == "" || staffID == "" || dateStr == "" {
		http.Error(w, "business_id, staff_id, and date are required", http.StatusBadRequest)
		return
	}

	durationMin := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 24*60 {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
		durationMin = n
	}
	if durationMin == 0 {
		http.Error(w, "duration_minutes is required", http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.GetOrCreateProfile(r.Context(), businessID)
	if err != nil {
		h.logger.Error("failed to load business profile", "err", err, "business_id", businessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	loc, err := h.profiles.Location(r.Context(), businessID)
	if err != nil {
		h.logger.Error("failed to load business profile", "err", err, "business_id", businessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	day, err := time.ParseInLocation(domain.DateFormat, dateStr, loc)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	avail, err := h.svc.ResolveDay(r.Context(), businessID, staffID, day)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	nowMinute := -1
	now := h.now().In(loc)
	if now.Format(domain.DateFormat) == day.Format(domain.DateFormat) {
		nowMinute = now.Hour()*60 + now.Minute()
	}

	step := profile.SlotStepMinutes
	if step <= 0 {
		step = 15
	}
	slots := availability.Slots(avail.Bookable, durationMin, step, nowMinute)
	items := make([]slotListItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotListItem{StartMinute: s.StartMinute, EndMinute: s.EndMinute})
	}
	writeJSON(w, http.StatusOK, items)
}

func toIntervalItems(in []availability.Interval) []intervalItem {
	out := make([]intervalItem, 0, len(in))
	for _, iv := range in {
		out = append(out, intervalItem{StartMinute: iv.StartMinute, EndMinute: iv.EndMinute})
	}
	return out
}
