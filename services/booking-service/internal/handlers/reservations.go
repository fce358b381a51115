package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotsmith/slotsmith/services/booking-service/internal/domain"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/placement"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/reservation"
)

type ReservationHandler struct {
	svc    *placement.Service
	repo   *reservation.Repository
	logger *slog.Logger
}

func NewReservationHandler(svc *placement.Service, repo *reservation.Repository, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{svc: svc, repo: repo, logger: logger}
}

type placeReservationRequest struct {
	BusinessID      string `json:"business_id"`
	StaffID         string `json:"staff_id"`
	ClientID        string `json:"client_id"`
	ClientName      string `json:"client_name"`
	ClientEmail     string `json:"client_email"`
	ClientPhone     string `json:"client_phone"`
	ServiceName     string `json:"service_name"`
	TimeBlockTypeID string `json:"time_block_type_id"`
	Date            string `json:"date"`
	StartMinute     int    `json:"start_minute"`
	DurationMin     int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Notes           string `json:"notes"`
	Confirmed       bool   `json:"confirmed"`
}

type reservationItem struct {
	ReservationID string `json:"reservation_id"`
	StaffID       string `json:"staff_id,omitempty"`
	ClientID      string `json:"client_id,omitempty"`
	ClientName    string `json:"client_name,omitempty"`
	ServiceName   string `json:"service_name,omitempty"`
	Date          string `json:"date"`
	StartMinute   int    `json:"start_minute"`
	DurationMin   int    `json:"duration_minutes"`
	Price         string `json:"price,omitempty"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	Synced        bool   `json:"synced"`
	CreatedAt     string `json:"created_at"`
}

func toReservationItem(res domain.Reservation) reservationItem {
	return reservationItem{
		ReservationID: res.ID,
		StaffID:       res.StaffID,
		ClientID:      res.ClientID,
		ClientName:    res.ClientName,
		ServiceName:   res.ServiceName,
		Date:          res.Day.Format(domain.DateFormat),
		StartMinute:   res.StartMinute,
		DurationMin:   res.DurationMin,
		Price:         res.Price,
		Status:        string(res.Status),
		Notes:         res.Notes,
		Synced:        res.Synced,
		CreatedAt:     res.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Place answers POST /v1/reservations for both the business dashboard and the
// public booking page; public callers go through the rate-limited route.
func (h *ReservationHandler) Place(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req placeReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.ClientName = strings.TrimSpace(req.ClientName)
	if req.BusinessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	day, err := time.Parse(domain.DateFormat, strings.TrimSpace(req.Date))
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	res, err := h.svc.Place(r.Context(), placement.PlaceInput{
		BusinessID:      req.BusinessID,
		StaffID:         req.StaffID,
		ClientID:        strings.TrimSpace(req.ClientID),
		ClientName:      req.ClientName,
		ClientEmail:     strings.TrimSpace(req.ClientEmail),
		ClientPhone:     strings.TrimSpace(req.ClientPhone),
		ServiceName:     strings.TrimSpace(req.ServiceName),
		Day:             day,
		StartMinute:     req.StartMinute,
		DurationMin:     req.DurationMin,
		Price:           strings.TrimSpace(req.Price),
		Notes:           req.Notes,
		TimeBlockTypeID: strings.TrimSpace(req.TimeBlockTypeID),
		Confirmed:       req.Confirmed,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationItem(res))
}

func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	from, err := parseDateParam(r, "from", time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		http.Error(w, "invalid from, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := parseDateParam(r, "to", from.AddDate(0, 1, 0))
	if err != nil {
		http.Error(w, "invalid to, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	list, err := h.repo.ListByBusiness(r.Context(), businessID, from, to, limit)
	if err != nil {
		h.logger.Error("failed to list reservations", "err", err, "business_id", businessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	items := make([]reservationItem, 0, len(list))
	for _, res := range list {
		items = append(items, toReservationItem(res))
	}
	writeJSON(w, http.StatusOK, items)
}

type updateReservationRequest struct {
	BusinessID    string  `json:"business_id"`
	ReservationID string  `json:"reservation_id"`
	Date          *string `json:"date"`
	StartMinute   *int    `json:"start_minute"`
	DurationMin   *int    `json:"duration_minutes"`
	ServiceName   *string `json:"service_name"`
	Notes         *string `json:"notes"`
	Confirm       *bool   `json:"confirm"`
}

// Update answers POST /v1/reservations/update. Moving the reservation in time
// re-runs the full placement check against everyone else's intervals.
func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ReservationID = strings.TrimSpace(req.ReservationID)
	if req.BusinessID == "" || req.ReservationID == "" {
		http.Error(w, "business_id and reservation_id required", http.StatusBadRequest)
		return
	}

	patch := placement.Patch{
		StartMinute: req.StartMinute,
		DurationMin: req.DurationMin,
		ServiceName: req.ServiceName,
		Notes:       req.Notes,
		Confirm:     req.Confirm,
	}
	if req.Date != nil {
		day, err := time.Parse(domain.DateFormat, strings.TrimSpace(*req.Date))
		if err != nil {
			http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		patch.Day = &day
	}

	res, err := h.svc.Update(r.Context(), req.BusinessID, req.ReservationID, patch)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationItem(res))
}

type reservationActionRequest struct {
	BusinessID    string `json:"business_id"`
	ReservationID string `json:"reservation_id"`
}

func decodeActionRequest(w http.ResponseWriter, r *http.Request) (reservationActionRequest, bool) {
	var req reservationActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return req, false
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ReservationID = strings.TrimSpace(req.ReservationID)
	if req.BusinessID == "" || req.ReservationID == "" {
		http.Error(w, "business_id and reservation_id required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// Cancel answers POST /v1/reservations/cancel. The freed interval is bookable
// again as soon as the call returns.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeActionRequest(w, r)
	if !ok {
		return
	}
	if err := h.svc.Cancel(r.Context(), req.BusinessID, req.ReservationID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"reservation_id": req.ReservationID,
		"status":         string(domain.StatusCancelled),
	})
}

func (h *ReservationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodeActionRequest(w, r)
	if !ok {
		return
	}
	if err := h.repo.Complete(r.Context(), req.BusinessID, req.ReservationID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"reservation_id": req.ReservationID,
		"status":         string(domain.StatusCompleted),
	})
}

func parseDateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(domain.DateFormat, raw)
}
