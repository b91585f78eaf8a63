// Package marketclock computes real-world market session times: whether the
// session is open right now, and when a named daily event (open, close,
// daily-data cutoff) next occurs.
package marketclock

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// minutes returns the time of day as minutes since midnight.
func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

var (
	// Session bounds in the exchange's local zone.
	SessionOpenTime  = TimeOfDay{Hour: 4, Minute: 30}
	SessionCloseTime = TimeOfDay{Hour: 20, Minute: 0}

	// DailyDataTime is when the previous session's historical data becomes
	// final upstream. It is defined in UTC, not the exchange zone.
	DailyDataTime = TimeOfDay{Hour: 9, Minute: 0}
)

// MarketZoneName is the exchange's IANA zone.
const MarketZoneName = "America/New_York"

type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Clock for the exchange zone.
func New() (*Clock, error) {
	loc, err := time.LoadLocation(MarketZoneName)
	if err != nil {
		return nil, fmt.Errorf("load market zone: %w", err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// NewWithNow returns a Clock whose current time comes from nowFn. Used by
// tests and run-once tooling.
func NewWithNow(loc *time.Location, nowFn func() time.Time) *Clock {
	return &Clock{loc: loc, now: nowFn}
}

// Location returns the exchange zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current time in the exchange zone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the current session date, midnight in the exchange zone.
func (c *Clock) Today() time.Time {
	now := c.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
}

// SessionOpen reports whether the market is trading right now: a weekday,
// strictly between the session open and close times.
func (c *Clock) SessionOpen() bool {
	now := c.Now()
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mins := now.Hour()*60 + now.Minute()
	return mins > SessionOpenTime.minutes() && mins < SessionCloseTime.minutes()
}

// NextOccurrence returns the next instant at or after now whose time of day
// equals tod in loc. A time of day equal to the current one counts as
// already passed, so the result always lies in the future. With
// skipWeekends, candidates landing on Saturday or Sunday advance to the
// next weekday.
func (c *Clock) NextOccurrence(tod TimeOfDay, loc *time.Location, skipWeekends bool) time.Time {
	now := c.now().In(loc)
	candidate := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour, tod.Minute, 0, 0, loc)
	if nowMins := now.Hour()*60 + now.Minute(); nowMins >= tod.minutes() {
		candidate = candidate.AddDate(0, 0, 1)
	}
	if skipWeekends {
		for candidate.Weekday() == time.Saturday || candidate.Weekday() == time.Sunday {
			candidate = candidate.AddDate(0, 0, 1)
		}
	}
	return candidate
}

// NextOpen returns the next session open.
func (c *Clock) NextOpen() time.Time {
	return c.NextOccurrence(SessionOpenTime, c.loc, true)
}

// NextClose returns the next session close.
func (c *Clock) NextClose() time.Time {
	return c.NextOccurrence(SessionCloseTime, c.loc, true)
}

// NextDailyData returns the next daily-data cutoff, computed in UTC.
func (c *Clock) NextDailyData() time.Time {
	return c.NextOccurrence(DailyDataTime, time.UTC, true)
}

// UntilOpen returns how long until the next session open.
func (c *Clock) UntilOpen() time.Duration {
	return c.NextOpen().Sub(c.Now())
}
