package availability

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/slotsmith/slotsmith/services/booking-service/internal/domain"
)

// monday is 2026-02-02, a Monday.
var monday = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

func weeklyNineToFive() domain.WeeklyTemplate {
	var w domain.WeeklyTemplate
	for wd := 1; wd <= 5; wd++ {
		w[wd] = domain.DayPattern{Working: true, Shifts: []domain.Shift{{StartMinute: 9 * 60, EndMinute: 17 * 60}}}
	}
	return w
}

func TestResolve_RecurringMonday(t *testing.T) {
	layers := domain.ScheduleLayers{StaffID: "s1", Weekly: weeklyNineToFive()}

	got, err := Resolve(layers, monday, time.UTC, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []Interval{{StartMinute: 540, EndMinute: 1020}}
	if !reflect.DeepEqual(got.Nominal, want) {
		t.Fatalf("nominal = %v, want %v", got.Nominal, want)
	}
	if !reflect.DeepEqual(got.Bookable, want) {
		t.Fatalf("bookable = %v, want %v", got.Bookable, want)
	}
}

func TestResolve_ClosedWeekday(t *testing.T) {
	sunday := monday.AddDate(0, 0, -1)
	layers := domain.ScheduleLayers{StaffID: "s1", Weekly: weeklyNineToFive()}

	got, err := Resolve(layers, sunday, time.UTC, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got.Nominal) != 0 || len(got.Bookable) != 0 {
		t.Fatalf("expected empty availability on closed day, got %+v", got)
	}
}

func TestResolve_OverrideReplacesRecurring(t *testing.T) {
	layers := domain.ScheduleLayers{
		StaffID: "s1",
		Weekly:  weeklyNineToFive(),
		Overrides: map[string][]domain.Shift{
			"2026-02-02": {{StartMinute: 10 * 60, EndMinute: 14 * 60}},
		},
	}

	got, err := Resolve(layers, monday, time.UTC, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []Interval{{StartMinute: 600, EndMinute: 840}}
	if !reflect.DeepEqual(got.Nominal, want) {
		t.Fatalf("nominal = %v, want %v (override must replace, not merge)", got.Nominal, want)
	}
}

func TestResolve_EmptyOverrideClosesDay(t *testing.T) {
	layers := domain.ScheduleLayers{
		StaffID:   "s1",
		Weekly:    weeklyNineToFive(),
		Overrides: map[string][]domain.Shift{"2026-02-02": {}},
	}

	got, err := Resolve(layers, monday, time.UTC, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got.Nominal) != 0 {
		t.Fatalf("empty override should close the day, got %v", got.Nominal)
	}
}

func TestResolve_AbsenceSplitsInterval(t *testing.T) {
	layers := domain.ScheduleLayers{
		StaffID: "s1",
		Weekly:  weeklyNineToFive(),
		Absences: []domain.Absence{{
			Kind:  domain.AbsenceOther,
			Start: monday.Add(12 * time.Hour),
			End:   monday.Add(13 * time.Hour),
		}},
	}

	got, err := Resolve(layers, monday, time.UTC, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []Interval{{StartMinute: 540, EndMinute: 720}, {StartMinute: 780, EndMinute: 1020}}
	if !reflect.DeepEqual(got.Nominal, want) {
		t.Fatalf("nominal = %v, want %v", got.Nominal, want)
	}
}

func TestResolve_AbsenceSpanningMidnightIsClipped(t *testing.T) {
	// Sunday 22:00 through Monday 10:30: only the Monday part applies.
	layers := domain.ScheduleLayers{
		StaffID: "s1",
		Weekly:  weeklyNineToFive(),
		Absences: []domain.Absence{{
			Kind:  domain.AbsenceSickLeave,
			Start: monday.Add(-2 * time.Hour),
			End:   monday.Add(10*time.Hour + 30*time.Minute),
		}},
	}

	got, err := Resolve(layers, monday, time.UTC, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []Interval{{StartMinute: 630, EndMinute: 1020}}
	if !reflect.DeepEqual(got.Nominal, want) {
		t.Fatalf("nominal = %v, want %v", got.Nominal, want)
	}
}

func TestResolve_WeeklyAbsenceRepeats(t *testing.T) {
	// A standing Monday 09:00-10:00 absence created three weeks earlier.
	layers := domain.ScheduleLayers{
		StaffID: "s1",
		Weekly:  weeklyNineToFive(),
		Absences: []domain.Absence{{
			Kind:   domain.AbsenceOther,
			Start:  monday.AddDate(0, 0, -21).Add(9 * time.Hour),
			End:    monday.AddDate(0, 0, -21).Add(10 * time.Hour),
			Weekly: true,
		}},
	}

	got, err := Resolve(layers, monday, time.UTC, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []Interval{{StartMinute: 600, EndMinute: 1020}}
	if !reflect.DeepEqual(got.Nominal, want) {
		t.Fatalf("nominal = %v, want %v", got.Nominal, want)
	}
}

func TestResolve_WeeklyAbsenceNotProjectedBeforeStart(t *testing.T) {
	// A standing Monday 09:00-10:00 absence beginning NEXT Monday must not
	// touch this Monday.
	layers := domain.ScheduleLayers{
		StaffID: "s1",
		Weekly:  weeklyNineToFive(),
		Absences: []domain.Absence{{
			Kind:   domain.AbsenceOther,
			Start:  monday.AddDate(0, 0, 7).Add(9 * time.Hour),
			End:    monday.AddDate(0, 0, 7).Add(10 * time.Hour),
			Weekly: true,
		}},
	}

	got, err := Resolve(layers, monday, time.UTC, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []Interval{{StartMinute: 540, EndMinute: 1020}}
	if !reflect.DeepEqual(got.Nominal, want) {
		t.Fatalf("nominal = %v, want %v (recurrence starts next week)", got.Nominal, want)
	}

	// On the recurrence's own first day it does apply.
	got, err = Resolve(layers, monday.AddDate(0, 0, 7), time.UTC, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want = []Interval{{StartMinute: 600, EndMinute: 1020}}
	if !reflect.DeepEqual(got.Nominal, want) {
		t.Fatalf("nominal on first occurrence = %v, want %v", got.Nominal, want)
	}
}

func TestResolve_BookedSubtractedFromBookableOnly(t *testing.T) {
	layers := domain.ScheduleLayers{StaffID: "s1", Weekly: weeklyNineToFive()}
	booked := []Interval{{StartMinute: 540, EndMinute: 600}}

	got, err := Resolve(layers, monday, time.UTC, booked)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(got.Nominal, []Interval{{StartMinute: 540, EndMinute: 1020}}) {
		t.Fatalf("nominal must keep booked time, got %v", got.Nominal)
	}
	if !reflect.DeepEqual(got.Bookable, []Interval{{StartMinute: 600, EndMinute: 1020}}) {
		t.Fatalf("bookable = %v", got.Bookable)
	}
}

func TestResolve_InvertedShiftRejected(t *testing.T) {
	var weekly domain.WeeklyTemplate
	weekly[1] = domain.DayPattern{Working: true, Shifts: []domain.Shift{{StartMinute: 600, EndMinute: 600}}}
	layers := domain.ScheduleLayers{StaffID: "s1", Weekly: weekly}

	_, err := Resolve(layers, monday, time.UTC, nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
}

func TestResolve_OverlappingShiftsAreIntegrityError(t *testing.T) {
	var weekly domain.WeeklyTemplate
	weekly[1] = domain.DayPattern{Working: true, Shifts: []domain.Shift{
		{StartMinute: 540, EndMinute: 720},
		{StartMinute: 700, EndMinute: 1020},
	}}
	layers := domain.ScheduleLayers{StaffID: "s1", Weekly: weekly}

	_, err := Resolve(layers, monday, time.UTC, nil)
	var iErr *IntegrityError
	if !errors.As(err, &iErr) {
		t.Fatalf("err = %v, want *IntegrityError (overlaps must not be auto-merged)", err)
	}
}

func TestResolve_OutputDisjointSortedAndIdempotent(t *testing.T) {
	layers := domain.ScheduleLayers{
		StaffID: "s1",
		Weekly:  weeklyNineToFive(),
		Absences: []domain.Absence{
			{Start: monday.Add(11 * time.Hour), End: monday.Add(12 * time.Hour)},
			{Start: monday.Add(15 * time.Hour), End: monday.Add(15*time.Hour + 30*time.Minute)},
		},
	}
	booked := []Interval{{StartMinute: 540, EndMinute: 570}, {StartMinute: 780, EndMinute: 840}}

	first, err := Resolve(layers, monday, time.UTC, booked)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, list := range [][]Interval{first.Nominal, first.Bookable} {
		for i := 1; i < len(list); i++ {
			if list[i].StartMinute < list[i-1].EndMinute {
				t.Fatalf("intervals not disjoint/sorted: %v", list)
			}
		}
	}

	second, err := Resolve(layers, monday, time.UTC, booked)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Resolve is not idempotent: %+v vs %+v", first, second)
	}
}

func TestResolve_LocalTimezoneClipsAbsence(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	localMonday := time.Date(2026, 2, 2, 0, 0, 0, 0, loc)
	layers := domain.ScheduleLayers{
		StaffID: "s1",
		Weekly:  weeklyNineToFive(),
		Absences: []domain.Absence{{
			// 07:00-09:30 UTC = 09:00-11:30 local.
			Start: time.Date(2026, 2, 2, 7, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 2, 2, 9, 30, 0, 0, time.UTC),
		}},
	}

	got, err := Resolve(layers, localMonday, loc, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []Interval{{StartMinute: 690, EndMinute: 1020}}
	if !reflect.DeepEqual(got.Nominal, want) {
		t.Fatalf("nominal = %v, want %v", got.Nominal, want)
	}
}

func TestSlots_RespectsBusyAndNow(t *testing.T) {
	bookable := []Interval{{StartMinute: 540, EndMinute: 600}, {StartMinute: 630, EndMinute: 660}}

	slots := Slots(bookable, 30, 30, -1)
	want := []Interval{{StartMinute: 540, EndMinute: 570}, {StartMinute: 570, EndMinute: 600}, {StartMinute: 630, EndMinute: 660}}
	if !reflect.DeepEqual(slots, want) {
		t.Fatalf("slots = %v, want %v", slots, want)
	}

	slots = Slots(bookable, 30, 30, 571)
	want = []Interval{{StartMinute: 630, EndMinute: 660}}
	if !reflect.DeepEqual(slots, want) {
		t.Fatalf("slots with now = %v, want %v", slots, want)
	}
}
