package jobs

import (
	"fmt"
	"time"
)

const defaultMaxAttempts = 5

// Appointment is the reservation snapshot a reminder is planned from.
type Appointment struct {
	ReservationID string
	BusinessID    string
	BusinessName  string
	ClientName    string
	ClientEmail   string
	ClientPhone   string
	ServiceName   string
	StartsAt      time.Time
}

// Plan builds the reminder job for an appointment. Email wins over SMS when
// both contacts exist. Returns false when there is nobody to notify or the
// reminder moment has already passed.
func Plan(app Appointment, lead time.Duration, now time.Time) (Job, bool) {
	channel, recipient := "", ""
	switch {
	case app.ClientEmail != "":
		channel, recipient = "email", app.ClientEmail
	case app.ClientPhone != "":
		channel, recipient = "sms", app.ClientPhone
	default:
		return Job{}, false
	}

	remindAt := app.StartsAt.Add(-lead)
	if !remindAt.After(now) {
		return Job{}, false
	}

	return Job{
		// The key ties the job to the reservation's current start time, so a
		// reschedule produces a fresh job instead of colliding with the old one.
		IdempotencyKey: fmt.Sprintf("reservation:%s:%d", app.ReservationID, app.StartsAt.Unix()),
		ReservationID:  app.ReservationID,
		BusinessID:     app.BusinessID,
		Channel:        channel,
		Recipient:      recipient,
		RemindAt:       remindAt,
		MaxAttempts:    defaultMaxAttempts,
		TemplateData: map[string]any{
			"business_name": app.BusinessName,
			"client_name":   app.ClientName,
			"service_name":  app.ServiceName,
			"starts_at":     app.StartsAt.UTC().Format(time.RFC3339),
		},
	}, true
}
