package core

import (
	"fmt"
	"time"
)

// Advance computes the next due date after t for the given frequency.
//
// Month-based frequencies keep the day-of-month and clamp to the last day of
// the target month when it is shorter (Jan 31 + one month is Feb 28/29).
// Annual advancement clamps Feb 29 to Feb 28 in non-leap target years.
// An unknown frequency is a caller contract violation, not a recoverable
// runtime condition.
func Advance(t time.Time, f Frequency) (time.Time, error) {
	switch f {
	case Weekly:
		return t.AddDate(0, 0, 7), nil
	case Monthly:
		return addMonthsClamped(t, 1), nil
	case Bimonthly:
		return addMonthsClamped(t, 2), nil
	case Quarterly:
		return addMonthsClamped(t, 3), nil
	case Semiannual:
		return addMonthsClamped(t, 6), nil
	case Annual:
		return addMonthsClamped(t, 12), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, string(f))
	}
}

// addMonthsClamped adds calendar months without the day-overflow
// normalization of time.AddDate (which would turn Jan 31 + 1 month into
// Mar 2/3).
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hour, min, sec := t.Clock()

	target := time.Date(y, m+time.Month(months), 1, hour, min, sec, t.Nanosecond(), t.Location())
	if last := daysIn(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// TruncateToDay zeroes the time-of-day components of t in the given location.
// The same location must be used on every write and compare path so that the
// same-day equality check in the on-create flow and the day interval of the
// catch-up sweep agree on where a day starts. A nil location means time.Local.
func TruncateToDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DayInterval returns the half-open interval [start of day, start of next
// day) containing t, in the given location.
func DayInterval(t time.Time, loc *time.Location) (start, end time.Time) {
	start = TruncateToDay(t, loc)
	return start, start.AddDate(0, 0, 1)
}
