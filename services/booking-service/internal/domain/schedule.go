package domain

import "time"

// DateFormat is the wire/storage format for schedule dates (business-local).
const DateFormat = "2006-01-02"

// Shift is a working interval within a single day, expressed as minutes from
// local midnight. Half-open: [StartMinute, EndMinute).
type Shift struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// DayPattern is one weekday entry of the recurring template. A non-working
// day carries no shifts.
type DayPattern struct {
	Working bool    `json:"working"`
	Shifts  []Shift `json:"shifts,omitempty"`
}

// WeeklyTemplate is indexed by time.Weekday (0 = Sunday).
type WeeklyTemplate [7]DayPattern

type AbsenceKind string

const (
	AbsenceVacation  AbsenceKind = "vacation"
	AbsenceSickLeave AbsenceKind = "sick_leave"
	AbsenceDayOff    AbsenceKind = "day_off"
	AbsenceOther     AbsenceKind = "other"
)

// Absence is a datetime range during which the employee is unavailable
// regardless of schedule. Ranges may span midnight. A Weekly absence repeats
// every seven days from its start (e.g. a standing Tuesday appointment).
type Absence struct {
	ID     string
	Kind   AbsenceKind
	Start  time.Time
	End    time.Time
	Weekly bool
	Note   string
}

// ScheduleLayers is the full layered schedule of one employee, loaded as a
// value so that availability resolution runs over an immutable snapshot.
// Overrides are keyed by DateFormat strings; an entry fully replaces the
// weekly template for that date (it is never merged with it).
type ScheduleLayers struct {
	StaffID   string
	Weekly    WeeklyTemplate
	Overrides map[string][]Shift
	Absences  []Absence
}

type Staff struct {
	ID         string
	BusinessID string
	Name       string
	IsActive   bool
	CreatedAt  time.Time
}
