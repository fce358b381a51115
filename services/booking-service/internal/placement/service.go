package placement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slotsmith/slotsmith/services/booking-service/internal/availability"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/domain"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/outbox"
	"github.com/slotsmith/slotsmith/services/booking-service/internal/reservation"
)

// Reason is the rejection code returned to callers so they can tell "outside
// working hours" apart from "slot already taken".
type Reason string

const (
	ReasonOutsideAvailability Reason = "OUTSIDE_AVAILABILITY"
	ReasonOverlap             Reason = "OVERLAP"
	ReasonInvalidDuration     Reason = "INVALID_DURATION"
)

// RejectedError is a placement rejection. It is an expected outcome, not a
// fault: nothing has been persisted when it is returned.
type RejectedError struct {
	Reason Reason
	detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("placement rejected (%s): %s", e.Reason, e.detail)
}

func rejectedf(reason Reason, format string, args ...any) error {
	return &RejectedError{Reason: reason, detail: fmt.Sprintf(format, args...)}
}

var ErrNotActive = errors.New("reservation is not pending or confirmed")

// ScheduleSource supplies an employee's layered schedule as a snapshot value.
type ScheduleSource interface {
	ScheduleLayers(ctx context.Context, businessID, staffID string, from, to time.Time) (domain.ScheduleLayers, error)
}

// ReservationStore is the authoritative set of booked intervals. Create and
// Reschedule must reject overlapping active intervals atomically (the
// Postgres implementation relies on an exclusion constraint) and return
// reservation.ErrOverlap when they do.
type ReservationStore interface {
	Create(ctx context.Context, res *domain.Reservation, evt outbox.Event) error
	Get(ctx context.Context, businessID, id string) (domain.Reservation, error)
	ListActiveDay(ctx context.Context, staffID string, day time.Time) ([]domain.Reservation, error)
	Reschedule(ctx context.Context, res domain.Reservation, evt outbox.Event) error
	Cancel(ctx context.Context, businessID, id string, evt outbox.Event) error
}

// BlockCatalog resolves linked time-block types for duration validation.
type BlockCatalog interface {
	Get(ctx context.Context, businessID, id string) (domain.TimeBlockType, error)
}

// BusinessDirectory resolves the business-local time zone.
type BusinessDirectory interface {
	Location(ctx context.Context, businessID string) (*time.Location, error)
}

// Service validates proposed reservations against resolved availability and
// the reservation store. All checks are side-effect free; the single persist
// happens last, with the store's overlap guard as the concurrent-write
// backstop.
type Service struct {
	schedules    ScheduleSource
	reservations ReservationStore
	blocks       BlockCatalog
	businesses   BusinessDirectory
	logger       *slog.Logger
}

func NewService(schedules ScheduleSource, reservations ReservationStore, blocks BlockCatalog, businesses BusinessDirectory, logger *slog.Logger) *Service {
	return &Service{
		schedules:    schedules,
		reservations: reservations,
		blocks:       blocks,
		businesses:   businesses,
		logger:       logger,
	}
}

type PlaceInput struct {
	BusinessID      string
	StaffID         string
	ClientID        string
	ClientName      string
	ClientEmail     string
	ClientPhone     string
	ServiceName     string
	Day             time.Time
	StartMinute     int
	DurationMin     int
	Price           string
	Notes           string
	TimeBlockTypeID string
	// Confirmed is set when the business itself places the reservation;
	// public bookings start as pending.
	Confirmed bool
}

// Place runs the full conflict & placement check and persists on success.
func (s *Service) Place(ctx context.Context, in PlaceInput) (domain.Reservation, error) {
	if in.BusinessID == "" {
		return domain.Reservation{}, availability.Validationf("business id is required")
	}
	if err := s.checkDuration(ctx, in.BusinessID, in.TimeBlockTypeID, in.DurationMin); err != nil {
		return domain.Reservation{}, err
	}
	if in.StartMinute < 0 || in.StartMinute >= 24*60 {
		return domain.Reservation{}, availability.Validationf("start_minute %d outside day bounds", in.StartMinute)
	}

	if in.StaffID != "" {
		if err := s.checkAgainstSchedule(ctx, in.BusinessID, in.StaffID, in.Day, in.StartMinute, in.StartMinute+in.DurationMin, ""); err != nil {
			return domain.Reservation{}, err
		}
	}

	status := domain.StatusPending
	if in.Confirmed {
		status = domain.StatusConfirmed
	}
	res := domain.Reservation{
		BusinessID:      in.BusinessID,
		StaffID:         in.StaffID,
		ClientID:        in.ClientID,
		ClientName:      in.ClientName,
		ClientEmail:     in.ClientEmail,
		ClientPhone:     in.ClientPhone,
		ServiceName:     in.ServiceName,
		TimeBlockTypeID: in.TimeBlockTypeID,
		Day:             dateOnly(in.Day),
		StartMinute:     in.StartMinute,
		DurationMin:     in.DurationMin,
		Price:           in.Price,
		Status:          status,
		Notes:           in.Notes,
	}

	evt := outbox.Event{
		AggregateType: "reservation",
		EventType:     outbox.EventReservationCreated,
		Payload:       eventPayload(res),
	}
	if err := s.reservations.Create(ctx, &res, evt); err != nil {
		if errors.Is(err, reservation.ErrOverlap) {
			// Lost the race against a concurrent placement.
			return domain.Reservation{}, rejectedf(ReasonOverlap, "interval was taken concurrently")
		}
		return domain.Reservation{}, err
	}
	return res, nil
}

type Patch struct {
	Day         *time.Time
	StartMinute *int
	DurationMin *int
	ServiceName *string
	Notes       *string
	Confirm     *bool
}

// Update re-runs the full placement check for the patched interval, excluding
// the reservation's own prior interval from the overlap set.
func (s *Service) Update(ctx context.Context, businessID, id string, patch Patch) (domain.Reservation, error) {
	res, err := s.reservations.Get(ctx, businessID, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !res.Status.Active() {
		return domain.Reservation{}, ErrNotActive
	}

	if patch.Day != nil {
		res.Day = dateOnly(*patch.Day)
	}
	if patch.StartMinute != nil {
		res.StartMinute = *patch.StartMinute
	}
	if patch.DurationMin != nil {
		res.DurationMin = *patch.DurationMin
	}
	if patch.ServiceName != nil {
		res.ServiceName = *patch.ServiceName
	}
	if patch.Notes != nil {
		res.Notes = *patch.Notes
	}
	if patch.Confirm != nil && *patch.Confirm {
		res.Status = domain.StatusConfirmed
	}

	// The persisted block link keeps constraining the duration on reschedule.
	if err := s.checkDuration(ctx, businessID, res.TimeBlockTypeID, res.DurationMin); err != nil {
		return domain.Reservation{}, err
	}
	if res.StartMinute < 0 || res.StartMinute >= 24*60 {
		return domain.Reservation{}, availability.Validationf("start_minute %d outside day bounds", res.StartMinute)
	}
	if res.StaffID != "" {
		if err := s.checkAgainstSchedule(ctx, businessID, res.StaffID, res.Day, res.StartMinute, res.EndMinute(), res.ID); err != nil {
			return domain.Reservation{}, err
		}
	}

	evt := outbox.Event{
		AggregateType: "reservation",
		EventType:     outbox.EventReservationUpdated,
		Payload:       eventPayload(res),
	}
	if err := s.reservations.Reschedule(ctx, res, evt); err != nil {
		if errors.Is(err, reservation.ErrOverlap) {
			return domain.Reservation{}, rejectedf(ReasonOverlap, "interval was taken concurrently")
		}
		return domain.Reservation{}, err
	}
	return res, nil
}

// Cancel releases the interval immediately; the next Resolve call reflects it.
func (s *Service) Cancel(ctx context.Context, businessID, id string) error {
	res, err := s.reservations.Get(ctx, businessID, id)
	if err != nil {
		return err
	}
	evt := outbox.Event{
		AggregateType: "reservation",
		EventType:     outbox.EventReservationCancelled,
		Payload:       eventPayload(res),
	}
	return s.reservations.Cancel(ctx, businessID, id, evt)
}

// ResolveDay computes the employee's availability for one date, with active
// reservations subtracted from the bookable list.
func (s *Service) ResolveDay(ctx context.Context, businessID, staffID string, day time.Time) (availability.Availability, error) {
	day = dateOnly(day)
	loc, err := s.businesses.Location(ctx, businessID)
	if err != nil {
		return availability.Availability{}, err
	}
	layers, err := s.schedules.ScheduleLayers(ctx, businessID, staffID, day, day)
	if err != nil {
		return availability.Availability{}, err
	}
	existing, err := s.reservations.ListActiveDay(ctx, staffID, day)
	if err != nil {
		return availability.Availability{}, err
	}
	return availability.Resolve(layers, day, loc, bookedIntervals(existing, ""))
}

func (s *Service) checkDuration(ctx context.Context, businessID, blockTypeID string, durationMin int) error {
	if durationMin <= 0 {
		return rejectedf(ReasonInvalidDuration, "duration must be positive, got %d", durationMin)
	}
	if durationMin > 24*60 {
		return rejectedf(ReasonInvalidDuration, "duration exceeds one day")
	}
	if blockTypeID != "" {
		blk, err := s.blocks.Get(ctx, businessID, blockTypeID)
		if err != nil {
			return err
		}
		if durationMin != blk.DurationMin {
			return rejectedf(ReasonInvalidDuration, "duration %d does not match time block %q (%d)", durationMin, blk.Name, blk.DurationMin)
		}
	}
	return nil
}

// checkAgainstSchedule performs steps 1-3 of the placement check: resolve
// bookable availability, report overlaps with existing active reservations,
// and require full containment in one bookable interval. excludeID removes
// the reservation's own interval when re-checking an update.
func (s *Service) checkAgainstSchedule(ctx context.Context, businessID, staffID string, day time.Time, startMinute, endMinute int, excludeID string) error {
	day = dateOnly(day)
	if endMinute > 24*60 {
		return rejectedf(ReasonOutsideAvailability, "reservation crosses the day boundary")
	}

	loc, err := s.businesses.Location(ctx, businessID)
	if err != nil {
		return err
	}
	layers, err := s.schedules.ScheduleLayers(ctx, businessID, staffID, day, day)
	if err != nil {
		return err
	}
	existing, err := s.reservations.ListActiveDay(ctx, staffID, day)
	if err != nil {
		return err
	}

	booked := bookedIntervals(existing, excludeID)
	for _, b := range booked {
		if startMinute < b.EndMinute && b.StartMinute < endMinute {
			return rejectedf(ReasonOverlap, "interval [%d,%d) overlaps an active reservation", startMinute, endMinute)
		}
	}

	avail, err := availability.Resolve(layers, day, loc, booked)
	if err != nil {
		return err
	}
	if !availability.Contains(avail.Bookable, startMinute, endMinute) {
		return rejectedf(ReasonOutsideAvailability, "interval [%d,%d) is outside bookable availability", startMinute, endMinute)
	}
	return nil
}

func bookedIntervals(existing []domain.Reservation, excludeID string) []availability.Interval {
	out := make([]availability.Interval, 0, len(existing))
	for _, r := range existing {
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if !r.Status.Active() {
			continue
		}
		out = append(out, availability.Interval{StartMinute: r.StartMinute, EndMinute: r.EndMinute()})
	}
	return out
}

func eventPayload(res domain.Reservation) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":               res.ID,
		"business_id":      res.BusinessID,
		"staff_id":         res.StaffID,
		"day":              res.Day.Format(domain.DateFormat),
		"start_minute":     res.StartMinute,
		"duration_minutes": res.DurationMin,
		"status":           string(res.Status),
		"service_name":     res.ServiceName,
	})
	return payload
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
