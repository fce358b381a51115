package availability

// Slots returns the offsets (as intervals of length durationMin) at which a
// booking fits inside the given bookable windows, stepping by stepMin.
// Offsets starting before nowMinute are skipped; pass a negative nowMinute
// when the date is not today.
func Slots(bookable []Interval, durationMin, stepMin, nowMinute int) []Interval {
	if durationMin <= 0 || stepMin <= 0 {
		return nil
	}

	var slots []Interval
	for _, win := range bookable {
		for start := win.StartMinute; start+durationMin <= win.EndMinute; start += stepMin {
			if start < nowMinute {
				continue
			}
			slots = append(slots, Interval{StartMinute: start, EndMinute: start + durationMin})
		}
	}
	return slots
}
