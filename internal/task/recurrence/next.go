package recurrence

import "time"

// Next returns the due date following due for pattern p.
//
// Time of day and location are preserved. None (or an unknown pattern)
// returns due unchanged; callers only pass recurring patterns.
func Next(due time.Time, p Pattern) time.Time {
	switch p {
	case Daily:
		return addDays(due, 1)
	case Weekly:
		return addDays(due, 7)
	case Biweekly:
		return addDays(due, 14)
	case Monthly:
		return addMonths(due, 1)
	case Yearly:
		return addMonths(due, 12)
	default:
		return due
	}
}

// Occurrences returns the next n due dates after due, each derived from the
// previous one. Clamping therefore compounds: Jan 31 monthly yields Feb 28,
// Mar 28, Apr 28, ...
func Occurrences(due time.Time, p Pattern, n int) []time.Time {
	if n <= 0 || !p.Recurring() {
		return nil
	}
	out := make([]time.Time, 0, n)
	cur := due
	for i := 0; i < n; i++ {
		cur = Next(cur, p)
		out = append(out, cur)
	}
	return out
}

// DaysIn returns the number of days in month m of year y.
func DaysIn(y int, m time.Month) int {
	// Day 0 of the following month normalizes to the last day of m.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func addDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d+n, hh, mm, ss, t.Nanosecond(), t.Location())
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	// Normalize the target month first (time.Date handles month overflow
	// into the year), then clamp the day.
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	ty, tm := first.Year(), first.Month()
	if last := DaysIn(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, hh, mm, ss, t.Nanosecond(), t.Location())
}
