package availability

import (
	"fmt"
	"time"

	"github.com/slotsmith/slotsmith/services/booking-service/internal/domain"
)

const minutesPerDay = 24 * 60

// Interval is a half-open [StartMinute, EndMinute) window within one
// business-local day.
type Interval struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Availability is the resolved picture for one employee and one date.
// Nominal is the working time before reservations are subtracted (used for
// reporting, e.g. paid hours); Bookable additionally excludes booked
// intervals. Both lists are disjoint and sorted by start.
type Availability struct {
	Nominal  []Interval
	Bookable []Interval
}

// ValidationError marks malformed input intervals (inverted or zero-length).
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Validationf lets callers report malformed scheduling input with the same
// error type Resolve uses, so HTTP handlers map both to a 400.
func Validationf(format string, args ...any) error {
	return validationErrorf(format, args...)
}

// IntegrityError marks schedule data that violates the stored invariants
// (overlapping or unordered shifts within one day). It is never repaired
// silently; the caller has to fix the source data.
type IntegrityError struct {
	msg string
}

func (e *IntegrityError) Error() string { return e.msg }

func integrityErrorf(format string, args ...any) error {
	return &IntegrityError{msg: fmt.Sprintf(format, args...)}
}

// Resolve merges an employee's schedule layers into the availability for one
// date. Precedence: a day override fully replaces the weekly template entry
// (never merged with it); absences are subtracted from the base, splitting
// intervals where needed; booked reservations are subtracted from the result
// to produce Bookable. Pure computation: all inputs are pre-fetched values.
func Resolve(layers domain.ScheduleLayers, day time.Time, loc *time.Location, booked []Interval) (Availability, error) {
	if loc == nil {
		loc = time.UTC
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	shifts, err := baseShifts(layers, dayStart)
	if err != nil {
		return Availability{}, err
	}

	nominal := shifts
	for _, a := range layers.Absences {
		for _, cut := range absenceWindows(a, dayStart) {
			nominal = subtract(nominal, cut)
		}
	}

	bookable := nominal
	for _, b := range booked {
		bookable = subtract(bookable, b)
	}

	return Availability{Nominal: nominal, Bookable: bookable}, nil
}

// baseShifts picks the day's source layer and validates it into intervals.
func baseShifts(layers domain.ScheduleLayers, dayStart time.Time) ([]Interval, error) {
	var shifts []domain.Shift
	source := "weekly template"
	if ov, ok := layers.Overrides[dayStart.Format(domain.DateFormat)]; ok {
		shifts = ov
		source = "day override"
	} else {
		pattern := layers.Weekly[int(dayStart.Weekday())]
		if !pattern.Working {
			return nil, nil
		}
		shifts = pattern.Shifts
	}

	out := make([]Interval, 0, len(shifts))
	prevEnd := -1
	for i, s := range shifts {
		if s.StartMinute < 0 || s.EndMinute > minutesPerDay {
			return nil, validationErrorf("%s shift %d out of day bounds: [%d,%d)", source, i, s.StartMinute, s.EndMinute)
		}
		if s.StartMinute >= s.EndMinute {
			return nil, validationErrorf("%s shift %d inverted or empty: [%d,%d)", source, i, s.StartMinute, s.EndMinute)
		}
		if s.StartMinute < prevEnd {
			return nil, integrityErrorf("%s shifts overlap or are unordered at index %d", source, i)
		}
		prevEnd = s.EndMinute
		out = append(out, Interval{StartMinute: s.StartMinute, EndMinute: s.EndMinute})
	}
	return out, nil
}

// absenceWindows projects an absence onto the queried date, clipped to
// [0, minutesPerDay). A weekly absence is translated by whole weeks; the
// adjacent occurrences are considered too so spans crossing midnight into the
// queried date are not missed.
func absenceWindows(a domain.Absence, dayStart time.Time) []Interval {
	if !a.End.After(a.Start) {
		return nil
	}

	occurrences := [][2]time.Time{{a.Start, a.End}}
	if a.Weekly {
		weeks := int(dayStart.Sub(a.Start).Hours() / (24 * 7))
		occurrences = occurrences[:0]
		for _, k := range []int{weeks - 1, weeks, weeks + 1} {
			start := a.Start.AddDate(0, 0, 7*k)
			if start.Before(a.Start) {
				// The recurrence begins at the stored period; nothing
				// repeats before it.
				continue
			}
			occurrences = append(occurrences, [2]time.Time{start, a.End.AddDate(0, 0, 7*k)})
		}
	}

	dayEnd := dayStart.AddDate(0, 0, 1)
	var out []Interval
	for _, occ := range occurrences {
		start, end := occ[0], occ[1]
		if !end.After(dayStart) || !start.Before(dayEnd) {
			continue
		}
		cut := Interval{
			StartMinute: clampMinute(floorMinutes(start.Sub(dayStart))),
			EndMinute:   clampMinute(ceilMinutes(end.Sub(dayStart))),
		}
		if cut.StartMinute < cut.EndMinute {
			out = append(out, cut)
		}
	}
	return out
}

// subtract removes cut from every interval, splitting where the cut lands in
// the middle. Input order is preserved; output stays disjoint and sorted.
func subtract(intervals []Interval, cut Interval) []Interval {
	if cut.StartMinute >= cut.EndMinute {
		return intervals
	}
	out := make([]Interval, 0, len(intervals)+1)
	for _, iv := range intervals {
		if cut.EndMinute <= iv.StartMinute || cut.StartMinute >= iv.EndMinute {
			out = append(out, iv)
			continue
		}
		if cut.StartMinute > iv.StartMinute {
			out = append(out, Interval{StartMinute: iv.StartMinute, EndMinute: cut.StartMinute})
		}
		if cut.EndMinute < iv.EndMinute {
			out = append(out, Interval{StartMinute: cut.EndMinute, EndMinute: iv.EndMinute})
		}
	}
	return out
}

// Contains reports whether [startMinute, endMinute) fits entirely inside a
// single interval of the list.
func Contains(intervals []Interval, startMinute, endMinute int) bool {
	for _, iv := range intervals {
		if startMinute >= iv.StartMinute && endMinute <= iv.EndMinute {
			return true
		}
	}
	return false
}

// TotalMinutes sums the length of all intervals.
func TotalMinutes(intervals []Interval) int {
	total := 0
	for _, iv := range intervals {
		total += iv.EndMinute - iv.StartMinute
	}
	return total
}

func floorMinutes(d time.Duration) int {
	if d < 0 {
		return -int((-d + time.Minute - 1) / time.Minute)
	}
	return int(d / time.Minute)
}

func ceilMinutes(d time.Duration) int {
	if d < 0 {
		return -int(-d / time.Minute)
	}
	return int((d + time.Minute - 1) / time.Minute)
}

func clampMinute(m int) int {
	if m < 0 {
		return 0
	}
	if m > minutesPerDay {
		return minutesPerDay
	}
	return m
}
