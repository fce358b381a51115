package domain

import "time"

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// Active reports whether the reservation blocks its interval. Only pending
// and confirmed reservations participate in overlap checks.
func (s ReservationStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Reservation is a booked interval on one business-local day. StaffID is
// empty for unassigned bookings; ClientID is empty for walk-ins, in which
// case only the denormalized contact fields identify the client.
type Reservation struct {
	ID          string
	BusinessID  string
	StaffID     string
	ClientID    string
	ClientName  string
	ClientEmail string
	ClientPhone string
	ServiceName string
	// TimeBlockTypeID links the reservation to the catalog entry whose
	// duration it must keep matching across reschedules. Empty for free-form
	// bookings.
	TimeBlockTypeID string
	Day             time.Time // midnight, business-local date
	StartMinute int
	DurationMin int
	Price       string
	Status      ReservationStatus
	Notes       string

	ExternalEventID string
	Synced          bool
	SyncedAt        *time.Time

	CreatedAt time.Time
}

func (r Reservation) EndMinute() int {
	return r.StartMinute + r.DurationMin
}
