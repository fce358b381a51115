package outbox

// Event is the envelope written to the outbox table in the same transaction
// as the reminder state change. The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventReminderSent   = "reminder.sent.v1"
	EventReminderFailed = "reminder.failed.v1"
	EventReminderDLQ    = "reminder.dlq.v1"
)
