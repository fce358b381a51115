package domain

import "time"

// TimeBlockType is a named, reusable non-appointment duration definition
// (break, cleanup, training). Pure reference data owned by one business.
type TimeBlockType struct {
	ID          string
	BusinessID  string
	Name        string
	Icon        string
	DurationMin int
	Paid        bool
	CreatedAt   time.Time
}
