package availability

import (
	"fmt"
	"time"
)

// ViewType selects how a calendar range is expanded around an anchor date.
// The closed set mirrors the calendar views the UI layer offers; the engine
// only ever expands dates, presentation stays outside.
type ViewType string

const (
	ViewDay   ViewType = "day"
	ViewWeek  ViewType = "week"
	ViewMonth ViewType = "month"
)

func ParseViewType(raw string) (ViewType, error) {
	switch ViewType(raw) {
	case ViewDay, ViewWeek, ViewMonth:
		return ViewType(raw), nil
	case "":
		return ViewDay, nil
	default:
		return "", fmt.Errorf("unknown view type %q", raw)
	}
}

// Dates expands the anchor date into the dates covered by the view, in order.
// Weeks start on Monday. All returned values are local midnights.
func (v ViewType) Dates(anchor time.Time, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	day := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, loc)

	switch v {
	case ViewWeek:
		offset := (int(day.Weekday()) + 6) % 7
		monday := day.AddDate(0, 0, -offset)
		dates := make([]time.Time, 7)
		for i := range dates {
			dates[i] = monday.AddDate(0, 0, i)
		}
		return dates
	case ViewMonth:
		first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, loc)
		next := first.AddDate(0, 1, 0)
		var dates []time.Time
		for d := first; d.Before(next); d = d.AddDate(0, 0, 1) {
			dates = append(dates, d)
		}
		return dates
	default:
		return []time.Time{day}
	}
}
