package timeutil

import "time"

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// StartOfDay returns the start of the day (midnight) in UTC
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in UTC
func EndOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 23, 59, 59, 999999999, time.UTC)
}

// AddDays adds n calendar days
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n).UTC()
}

// AddMonths adds n calendar months, clamping the day-of-month to the last
// day of the target month. time.Time.AddDate normalizes instead (Jan 31 + 1
// month = Mar 3), which is wrong for billing schedules: a subscription
// anchored on the 31st must bill on Feb 28, not drift into March.
func AddMonths(t time.Time, n int) time.Time {
	t = t.UTC()
	year, month, day := t.Date()

	target := time.Date(year, month+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// AddYears adds n calendar years with the same day clamping as AddMonths
// (Feb 29 + 1 year = Feb 28)
func AddYears(t time.Time, n int) time.Time {
	return AddMonths(t, n*12)
}

func daysInMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
