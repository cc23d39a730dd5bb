// Package market_hours classifies instants into US equity trading sessions.
package market_hours

import (
	"fmt"
	"time"
	_ "time/tzdata" // embedded zone database for hosts without /usr/share/zoneinfo
)

// Session is the trading session an instant falls into
type Session string

const (
	SessionClosed     Session = "CLOSED"
	SessionPreMarket  Session = "PRE_MARKET"
	SessionOpen       Session = "OPEN"
	SessionAfterHours Session = "AFTER_HOURS"
)

// DefaultTimezone is the market's local timezone
const DefaultTimezone = "America/New_York"

// Session boundaries as offsets from local midnight
const (
	preMarketOpen   = 4 * time.Hour
	regularOpen     = 9*time.Hour + 30*time.Minute
	regularClose    = 16 * time.Hour
	afterHoursClose = 20 * time.Hour
)

// IsOpen reports whether the session is regular trading hours
func (s Session) IsOpen() bool {
	return s == SessionOpen
}

// IsTradable reports whether orders can be routed in the session (extended hours included)
func (s Session) IsTradable() bool {
	return s == SessionPreMarket || s == SessionOpen || s == SessionAfterHours
}

// SessionAt classifies a wall-clock time of day on the given weekday.
// The caller is responsible for expressing t in the market timezone.
// Intervals are half-open: 09:30:00 is OPEN, 16:00:00 is AFTER_HOURS.
func SessionAt(t time.Time, weekday time.Weekday) Session {
	if weekday == time.Saturday || weekday == time.Sunday {
		return SessionClosed
	}

	tod := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())

	switch {
	case tod >= regularOpen && tod < regularClose:
		return SessionOpen
	case tod >= preMarketOpen && tod < regularOpen:
		return SessionPreMarket
	case tod >= regularClose && tod < afterHoursClose:
		return SessionAfterHours
	default:
		return SessionClosed
	}
}

// Clock reports the current session in the market timezone
type Clock struct {
	loc      *time.Location
	holidays *HolidayCalendar
	nowFn    func() time.Time
}

// Option configures a Clock
type Option func(*Clock)

// WithNow overrides the time source (tests)
func WithNow(fn func() time.Time) Option {
	return func(c *Clock) { c.nowFn = fn }
}

// WithHolidays closes the market on full-day exchange holidays
func WithHolidays(cal *HolidayCalendar) Option {
	return func(c *Clock) { c.holidays = cal }
}

// NewClock creates a clock for the named IANA timezone (empty = America/New_York)
func NewClock(timezone string, opts ...Option) (*Clock, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load market timezone %s: %w", timezone, err)
	}

	c := &Clock{
		loc:   loc,
		nowFn: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Location returns the market timezone
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in the market timezone
func (c *Clock) Now() time.Time {
	return c.nowFn().In(c.loc)
}

// SessionFor classifies an arbitrary instant
func (c *Clock) SessionFor(t time.Time) Session {
	local := t.In(c.loc)
	if c.holidays != nil && c.holidays.IsHoliday(local) {
		return SessionClosed
	}
	return SessionAt(local, local.Weekday())
}

// Session returns the current session
func (c *Clock) Session() Session {
	return c.SessionFor(c.nowFn())
}

// IsOpen reports whether regular hours are in progress
func (c *Clock) IsOpen() bool {
	return c.Session().IsOpen()
}

// IsTradable reports whether any session (pre, regular, after) is in progress
func (c *Clock) IsTradable() bool {
	return c.Session().IsTradable()
}
