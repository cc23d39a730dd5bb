package market_hours

import (
	"sync"
	"time"
)

// HolidayCalendar answers whether a date is a full-day NYSE holiday.
// Holidays are computed per year on first use and cached.
type HolidayCalendar struct {
	mu    sync.Mutex
	years map[int]map[string]struct{}
}

// NewHolidayCalendar creates an empty, lazily filled calendar
func NewHolidayCalendar() *HolidayCalendar {
	return &HolidayCalendar{years: make(map[int]map[string]struct{})}
}

// IsHoliday reports whether the calendar date of t (in t's location) is a holiday
func (h *HolidayCalendar) IsHoliday(t time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	days, ok := h.years[t.Year()]
	if !ok {
		days = make(map[string]struct{})
		for _, d := range USHolidays(t.Year()) {
			days[d.Format("2006-01-02")] = struct{}{}
		}
		h.years[t.Year()] = days
	}

	_, found := days[t.Format("2006-01-02")]
	return found
}

// USHolidays returns the observed NYSE full-day holidays for a year
func USHolidays(year int) []time.Time {
	return []time.Time{
		observed(date(year, time.January, 1)),
		nthWeekday(year, time.January, time.Monday, 3),  // Martin Luther King Jr. Day
		nthWeekday(year, time.February, time.Monday, 3), // Presidents Day
		easterSunday(year).AddDate(0, 0, -2),            // Good Friday
		lastWeekday(year, time.May, time.Monday),        // Memorial Day
		observed(date(year, time.June, 19)),
		observed(date(year, time.July, 4)),
		nthWeekday(year, time.September, time.Monday, 1),  // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
		observed(date(year, time.December, 25)),
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// easterSunday uses the anonymous Gregorian computus
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451

	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1

	return date(year, time.Month(month), day)
}

// nthWeekday finds the nth (1-based) occurrence of weekday in the month
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := date(year, month, 1)
	offset := int(weekday - first.Weekday())
	if offset < 0 {
		offset += 7
	}
	return first.AddDate(0, 0, offset+(n-1)*7)
}

func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	last := date(year, month+1, 0)
	back := int(last.Weekday() - weekday)
	if back < 0 {
		back += 7
	}
	return last.AddDate(0, 0, -back)
}

// observed moves Saturday holidays to Friday and Sunday holidays to Monday
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}
