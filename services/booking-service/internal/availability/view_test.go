package availability

import (
	"testing"
	"time"
)

func TestViewDates_Day(t *testing.T) {
	anchor := time.Date(2026, 2, 4, 15, 30, 0, 0, time.UTC)
	dates := ViewDay.Dates(anchor, time.UTC)
	if len(dates) != 1 {
		t.Fatalf("expected 1 date, got %d", len(dates))
	}
	if !dates[0].Equal(time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %s", dates[0])
	}
}

func TestViewDates_WeekStartsMonday(t *testing.T) {
	// 2026-02-04 is a Wednesday.
	anchor := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	dates := ViewWeek.Dates(anchor, time.UTC)
	if len(dates) != 7 {
		t.Fatalf("expected 7 dates, got %d", len(dates))
	}
	if dates[0].Weekday() != time.Monday {
		t.Fatalf("week starts on %s, want Monday", dates[0].Weekday())
	}
	if !dates[0].Equal(time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first date = %s", dates[0])
	}
}

func TestViewDates_MonthCoversWholeMonth(t *testing.T) {
	anchor := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	dates := ViewMonth.Dates(anchor, time.UTC)
	if len(dates) != 28 {
		t.Fatalf("February 2026 has 28 days, got %d", len(dates))
	}
	if dates[0].Day() != 1 || dates[len(dates)-1].Day() != 28 {
		t.Fatalf("month range = %s .. %s", dates[0], dates[len(dates)-1])
	}
}

func TestParseViewType(t *testing.T) {
	if v, err := ParseViewType(""); err != nil || v != ViewDay {
		t.Fatalf("empty view = %v, %v", v, err)
	}
	if _, err := ParseViewType("year"); err == nil {
		t.Fatalf("expected error for unknown view")
	}
}
