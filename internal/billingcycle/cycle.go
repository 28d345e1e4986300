// Package billingcycle implements calendar-month billing arithmetic.
//
// Renewals and calendar-period purchases advance by whole months pinned
// to a day-of-month anchor; upgrade bonus days are a day-count credit
// and are added linearly instead (see AddDays).
package billingcycle

import "time"

// ClampAnchor bounds an anchor day to the 1..31 range. A zero or
// negative day falls back to 1.
func ClampAnchor(day int) int {
	if day < 1 {
		return 1
	}
	if day > 31 {
		return 31
	}
	return day
}

// AddCalendarMonths advances base by the given number of calendar
// months, landing on min(anchorDay, days in target month). An anchor of
// 31 lands on the 28th/29th/30th in shorter months and never drifts
// into the following month. The time of day of base is preserved.
func AddCalendarMonths(base time.Time, months int, anchorDay int) time.Time {
	anchorDay = ClampAnchor(anchorDay)

	year := base.Year()
	month := int(base.Month()) + months
	for month > 12 {
		month -= 12
		year++
	}
	for month < 1 {
		month += 12
		year--
	}

	day := anchorDay
	if last := daysInMonth(year, time.Month(month)); day > last {
		day = last
	}

	return time.Date(
		year, time.Month(month), day,
		base.Hour(), base.Minute(), base.Second(), base.Nanosecond(),
		base.Location(),
	)
}

// AddDays advances base by a whole day count. Used for bonus-day
// upgrade credit, which is deliberately not calendar-month aligned.
func AddDays(base time.Time, days int) time.Time {
	return base.AddDate(0, 0, days)
}

// RemainingDays returns the number of whole-or-partial days between now
// and expiry, rounded up and clamped at zero.
func RemainingDays(now, expiry time.Time) int {
	if !expiry.After(now) {
		return 0
	}
	remaining := expiry.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
