package clock

import "time"

// FakeClock is a manually advanced Clock for billing-date and proration
// tests, which depend on exact day boundaries.
type FakeClock struct {
	now time.Time
}

// NewFakeClock pins the clock at t. Times are normalized to UTC, the
// zone all billing arithmetic runs in.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward, e.g. into the next billing cycle.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
