package outbox

// Event is the domain event envelope written to the outbox table in the same
// transaction as the reservation mutation. The Kafka topic name equals
// EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventReservationCreated   = "booking.reservation.created.v1"
	EventReservationUpdated   = "booking.reservation.updated.v1"
	EventReservationCancelled = "booking.reservation.cancelled.v1"
)
