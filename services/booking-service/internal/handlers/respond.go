package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/slotsmith/slotsmith/services/booking-service/internal/availability"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/catalog"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/placement"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/reservation"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/schedule"
)

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

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// writeDomainError maps the scheduling error taxonomy onto HTTP statuses:
// rejections are 409 (overlap) or 422, malformed input is 400, broken stored
// schedule data is 409, missing rows are 404. Anything else is a plain 500
// with the detail kept in the log.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var rejected *placement.RejectedError
	var invalid *availability.ValidationError
	var integrity *availability.IntegrityError

	switch {
	case errors.As(err, &rejected):
		status := http.StatusUnprocessableEntity
		if rejected.Reason == placement.ReasonOverlap {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorResponse{Error: rejected.Error(), Reason: string(rejected.Reason)})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: invalid.Error()})
	case errors.As(err, &integrity):
		writeJSON(w, http.StatusConflict, errorResponse{Error: integrity.Error()})
	case errors.Is(err, placement.ErrNotActive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, reservation.ErrNotFound),
		errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
