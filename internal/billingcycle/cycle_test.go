package billingcycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddCalendarMonthsMonthEndStickiness(t *testing.T) {
	// Anchor 31 lands on the last day of shorter months and never
	// drifts into the following month.
	assert.Equal(t, date(2024, time.February, 29), AddCalendarMonths(date(2024, time.January, 31), 1, 31))
	assert.Equal(t, date(2023, time.February, 28), AddCalendarMonths(date(2023, time.January, 31), 1, 31))
	assert.Equal(t, date(2023, time.April, 30), AddCalendarMonths(date(2023, time.March, 31), 1, 31))
}

func TestAddCalendarMonthsAnchorRestores(t *testing.T) {
	// After passing through a short month the anchor day comes back.
	feb := AddCalendarMonths(date(2023, time.January, 31), 1, 31)
	assert.Equal(t, date(2023, time.February, 28), feb)
	mar := AddCalendarMonths(feb, 1, 31)
	assert.Equal(t, date(2023, time.March, 31), mar)
}

func TestAddCalendarMonthsYearCarry(t *testing.T) {
	assert.Equal(t, date(2025, time.January, 15), AddCalendarMonths(date(2024, time.December, 15), 1, 15))
	assert.Equal(t, date(2025, time.November, 30), AddCalendarMonths(date(2024, time.November, 30), 12, 30))
}

func TestAddCalendarMonthsPreservesTimeOfDay(t *testing.T) {
	base := time.Date(2024, time.January, 31, 13, 45, 12, 0, time.UTC)
	got := AddCalendarMonths(base, 1, 31)
	assert.Equal(t, time.Date(2024, time.February, 29, 13, 45, 12, 0, time.UTC), got)
}

func TestRemainingDays(t *testing.T) {
	now := date(2024, time.June, 1)

	assert.Equal(t, 0, RemainingDays(now, now))
	assert.Equal(t, 0, RemainingDays(now, now.Add(-time.Hour)))
	assert.Equal(t, 1, RemainingDays(now, now.Add(time.Hour)))
	assert.Equal(t, 20, RemainingDays(now, now.AddDate(0, 0, 20)))
	assert.Equal(t, 21, RemainingDays(now, now.AddDate(0, 0, 20).Add(time.Minute)))
}

func TestClampAnchor(t *testing.T) {
	assert.Equal(t, 1, ClampAnchor(0))
	assert.Equal(t, 1, ClampAnchor(-4))
	assert.Equal(t, 31, ClampAnchor(40))
	assert.Equal(t, 17, ClampAnchor(17))
}
