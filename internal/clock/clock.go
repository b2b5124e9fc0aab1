// Package clock resolves calendar days in the business timezone so that
// ledger keys and report ranges agree regardless of the server's UTC offset.
package clock

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used for ledger keys.
const DateLayout = "2006-01-02"

// Clock provides the current time and calendar day in a fixed location.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New loads the named timezone. Asia/Jakarta falls back to a fixed WIB
// offset when the tz database is unavailable.
func New(timezone string) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		if timezone != "Asia/Jakarta" {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		loc = time.FixedZone("WIB", 7*60*60)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// NewFixed returns a clock frozen at t, for tests.
func NewFixed(loc *time.Location, t time.Time) *Clock {
	return &Clock{loc: loc, now: func() time.Time { return t }}
}

// Location returns the business timezone.
func (c *Clock) Location() *time.Location { return c.loc }

// Now returns the current time in the business timezone.
func (c *Clock) Now() time.Time { return c.now().In(c.loc) }

// Today returns the current calendar day as YYYY-MM-DD.
func (c *Clock) Today() string { return c.Now().Format(DateLayout) }

// Yesterday returns the prior calendar day as YYYY-MM-DD.
func (c *Clock) Yesterday() string { return c.Now().AddDate(0, 0, -1).Format(DateLayout) }

// DayOf returns the business day t falls on as YYYY-MM-DD.
func (c *Clock) DayOf(t time.Time) string { return t.In(c.loc).Format(DateLayout) }

// ParseDay parses a YYYY-MM-DD string as midnight in the business timezone.
func (c *Clock) ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, c.loc)
}

// DayRange returns [start, end) for the given calendar day.
func (c *Clock) DayRange(day string) (time.Time, time.Time, error) {
	start, err := c.ParseDay(day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

// IsPast reports whether day is strictly before today.
func (c *Clock) IsPast(day string) bool {
	return day < c.Today()
}

// IsFuture reports whether day is strictly after today.
func (c *Clock) IsFuture(day string) bool {
	return day > c.Today()
}
