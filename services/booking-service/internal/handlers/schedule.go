package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotsmith/slotsmith/services/booking-service/internal/availability"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/cache"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/domain"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/reservation"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/schedule"
)

// ScheduleHandler owns the employee schedule surface: staff records, the
// weekly template, per-date overrides, and absences.
type ScheduleHandler struct {
	repo         *schedule.Repository
	reservations *reservation.Repository
	cache        *cache.Boundary
	logger       *slog.Logger
}

func NewScheduleHandler(repo *schedule.Repository, reservations *reservation.Repository, cacheBoundary *cache.Boundary, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{repo: repo, reservations: reservations, cache: cacheBoundary, logger: logger}
}

type shiftItem struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

func toShifts(items []shiftItem) ([]domain.Shift, error) {
	shifts := make([]domain.Shift, 0, len(items))
	for _, it := range items {
		if it.StartMinute < 0 || it.EndMinute > 24*60 {
			return nil, availability.Validationf("shift [%d,%d) outside day bounds", it.StartMinute, it.EndMinute)
		}
		if it.EndMinute <= it.StartMinute {
			return nil, availability.Validationf("shift [%d,%d) is inverted or empty", it.StartMinute, it.EndMinute)
		}
		shifts = append(shifts, domain.Shift{StartMinute: it.StartMinute, EndMinute: it.EndMinute})
	}
	return shifts, nil
}

func fromShifts(shifts []domain.Shift) []shiftItem {
	out := make([]shiftItem, 0, len(shifts))
	for _, s := range shifts {
		out = append(out, shiftItem{StartMinute: s.StartMinute, EndMinute: s.EndMinute})
	}
	return out
}

type createStaffRequest struct {
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
}

type staffItem struct {
	StaffID   string `json:"staff_id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

func (h *ScheduleHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.Name = strings.TrimSpace(req.Name)
	if req.BusinessID == "" || req.Name == "" {
		http.Error(w, "business_id and name required", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateStaff(r.Context(), req.BusinessID, req.Name, true)
	if err != nil {
		h.logger.Error("failed to create staff", "err", err, "business_id", req.BusinessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.cache.Invalidate(r.Context(), req.BusinessID)
	writeJSON(w, http.StatusCreated, map[string]string{"staff_id": id})
}

func (h *ScheduleHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	if cached, ok := h.cache.GetLookup(r.Context(), businessID, "staff"); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cached)
		return
	}

	staff, err := h.repo.ListStaff(r.Context(), businessID, 200)
	if err != nil {
		h.logger.Error("failed to list staff", "err", err, "business_id", businessID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	items := make([]staffItem, 0, len(staff))
	for _, s := range staff {
		items = append(items, staffItem{
			StaffID:   s.ID,
			Name:      s.Name,
			IsActive:  s.IsActive,
			CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	h.cache.SetLookup(r.Context(), businessID, "staff", body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type staffActionRequest struct {
	BusinessID string `json:"business_id"`
	StaffID    string `json:"staff_id"`
	Active     *bool  `json:"active"`
}

func (h *ScheduleHandler) SetStaffActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req staffActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.BusinessID == "" || req.StaffID == "" || req.Active == nil {
		http.Error(w, "business_id, staff_id, and active required", http.StatusBadRequest)
		return
	}

	if err := h.repo.SetStaffActive(r.Context(), req.BusinessID, req.StaffID, *req.Active); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.cache.Invalidate(r.Context(), req.BusinessID)
	writeJSON(w, http.StatusOK, map[string]any{"staff_id": req.StaffID, "active": *req.Active})
}

// DeleteStaff refuses to remove an employee who still has open reservations;
// the caller deactivates instead, which keeps history and frees the roster.
func (h *ScheduleHandler) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req staffActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.BusinessID == "" || req.StaffID == "" {
		http.Error(w, "business_id and staff_id required", http.StatusBadRequest)
		return
	}

	open, err := h.reservations.CountOpenByStaff(r.Context(), req.BusinessID, req.StaffID)
	if err != nil {
		h.logger.Error("failed to count open reservations", "err", err, "staff_id", req.StaffID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if open > 0 {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error: fmt.Sprintf("staff has %d open reservations; deactivate instead of deleting", open),
		})
		return
	}

	if err := h.repo.DeleteStaff(r.Context(), req.BusinessID, req.StaffID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.cache.Invalidate(r.Context(), req.BusinessID)
	writeJSON(w, http.StatusOK, map[string]string{"staff_id": req.StaffID, "status": "deleted"})
}

type weeklyHoursRequest struct {
	BusinessID string      `json:"business_id"`
	StaffID    string      `json:"staff_id"`
	Weekday    int         `json:"weekday"`
	Working    bool        `json:"working"`
	Shifts     []shiftItem `json:"shifts"`
}

// UpsertWeeklyHours answers POST /v1/schedule/weekly: one weekday entry of the
// recurring template. weekday follows time.Weekday, 0 is Sunday.
func (h *ScheduleHandler) UpsertWeeklyHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req weeklyHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.BusinessID == "" || req.StaffID == "" {
		http.Error(w, "business_id and staff_id required", http.StatusBadRequest)
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		http.Error(w, "weekday must be 0 (Sunday) through 6 (Saturday)", http.StatusBadRequest)
		return
	}

	shifts, err := toShifts(req.Shifts)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if req.Working && len(shifts) == 0 {
		http.Error(w, "a working day needs at least one shift", http.StatusBadRequest)
		return
	}

	if err := h.repo.UpsertWeeklyHours(r.Context(), req.BusinessID, req.StaffID, req.Weekday, req.Working, shifts); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff_id": req.StaffID, "weekday": req.Weekday})
}

type weeklyHoursItem struct {
	Weekday int         `json:"weekday"`
	Working bool        `json:"working"`
	Shifts  []shiftItem `json:"shifts"`
}

func (h *ScheduleHandler) GetWeeklyHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	if businessID == "" || staffID == "" {
		http.Error(w, "business_id and staff_id required", http.StatusBadRequest)
		return
	}

	weekly, err := h.repo.ListWeeklyHours(r.Context(), businessID, staffID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	items := make([]weeklyHoursItem, 0, len(weekly))
	for wd, pattern := range weekly {
		items = append(items, weeklyHoursItem{
			Weekday: wd,
			Working: pattern.Working,
			Shifts:  fromShifts(pattern.Shifts),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type dayOverrideRequest struct {
	BusinessID string      `json:"business_id"`
	StaffID    string      `json:"staff_id"`
	Date       string      `json:"date"`
	Shifts     []shiftItem `json:"shifts"`
}

// UpsertDayOverride answers POST /v1/schedule/override. The override fully
// replaces the weekly template for that date; an empty shift list closes the
// day.
func (h *ScheduleHandler) UpsertDayOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dayOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.BusinessID == "" || req.StaffID == "" {
		http.Error(w, "business_id and staff_id required", http.StatusBadRequest)
		return
	}
	day, err := time.Parse(domain.DateFormat, strings.TrimSpace(req.Date))
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	shifts, err := toShifts(req.Shifts)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	if err := h.repo.UpsertDayOverride(r.Context(), req.BusinessID, req.StaffID, day, shifts); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"staff_id": req.StaffID, "date": req.Date})
}

func (h *ScheduleHandler) DeleteDayOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dayOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.BusinessID == "" || req.StaffID == "" {
		http.Error(w, "business_id and staff_id required", http.StatusBadRequest)
		return
	}
	day, err := time.Parse(domain.DateFormat, strings.TrimSpace(req.Date))
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	if err := h.repo.DeleteDayOverride(r.Context(), req.BusinessID, req.StaffID, day); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"staff_id": req.StaffID, "date": req.Date, "status": "deleted"})
}

type createAbsenceRequest struct {
	BusinessID string `json:"business_id"`
	StaffID    string `json:"staff_id"`
	Kind       string `json:"kind"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Weekly     bool   `json:"weekly"`
	Note       string `json:"note"`
}

type absenceItem struct {
	AbsenceID string `json:"absence_id"`
	Kind      string `json:"kind"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Weekly    bool   `json:"weekly"`
	Note      string `json:"note,omitempty"`
}

func (h *ScheduleHandler) CreateAbsence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createAbsenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.BusinessID == "" || req.StaffID == "" {
		http.Error(w, "business_id and staff_id required", http.StatusBadRequest)
		return
	}

	kind := domain.AbsenceKind(strings.TrimSpace(req.Kind))
	switch kind {
	case domain.AbsenceVacation, domain.AbsenceSickLeave, domain.AbsenceDayOff, domain.AbsenceOther:
	case "":
		kind = domain.AbsenceOther
	default:
		http.Error(w, "unknown absence kind", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Start))
	if err != nil {
		http.Error(w, "invalid start, want RFC3339", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.End))
	if err != nil {
		http.Error(w, "invalid end, want RFC3339", http.StatusBadRequest)
		return
	}
	if !end.After(start) {
		http.Error(w, "end must be after start", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateAbsence(r.Context(), req.BusinessID, req.StaffID, domain.Absence{
		Kind:   kind,
		Start:  start,
		End:    end,
		Weekly: req.Weekly,
		Note:   strings.TrimSpace(req.Note),
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"absence_id": id})
}

func (h *ScheduleHandler) ListAbsences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	if businessID == "" || staffID == "" {
		http.Error(w, "business_id and staff_id required", http.StatusBadRequest)
		return
	}

	from, err := parseDateParam(r, "from", time.Now().UTC())
	if err != nil {
		http.Error(w, "invalid from, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := parseDateParam(r, "to", from.AddDate(0, 3, 0))
	if err != nil {
		http.Error(w, "invalid to, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	limit := 200
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	absences, err := h.repo.ListAbsences(r.Context(), businessID, staffID, from, to, limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	items := make([]absenceItem, 0, len(absences))
	for _, a := range absences {
		items = append(items, absenceItem{
			AbsenceID: a.ID,
			Kind:      string(a.Kind),
			Start:     a.Start.UTC().Format(time.RFC3339),
			End:       a.End.UTC().Format(time.RFC3339),
			Weekly:    a.Weekly,
			Note:      a.Note,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type deleteAbsenceRequest struct {
	BusinessID string `json:"business_id"`
	AbsenceID  string `json:"absence_id"`
}

func (h *ScheduleHandler) DeleteAbsence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req deleteAbsenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.AbsenceID = strings.TrimSpace(req.AbsenceID)
	if req.BusinessID == "" || req.AbsenceID == "" {
		http.Error(w, "business_id and absence_id required", http.StatusBadRequest)
		return
	}

	if err := h.repo.DeleteAbsence(r.Context(), req.BusinessID, req.AbsenceID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"absence_id": req.AbsenceID, "status": "deleted"})
}
