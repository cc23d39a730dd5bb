package market_hours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUSHolidays_2024(t *testing.T) {
	expected := []string{
		"2024-01-01",
		"2024-01-15",
		"2024-02-19",
		"2024-03-29",
		"2024-05-27",
		"2024-06-19",
		"2024-07-04",
		"2024-09-02",
		"2024-11-28",
		"2024-12-25",
	}

	got := make([]string, 0, len(expected))
	for _, d := range USHolidays(2024) {
		got = append(got, d.Format("2006-01-02"))
	}
	assert.Equal(t, expected, got)
}

func TestEasterSunday(t *testing.T) {
	tests := []struct {
		year     int
		expected time.Time
	}{
		{2024, date(2024, time.March, 31)},
		{2025, date(2025, time.April, 20)},
		{2026, date(2026, time.April, 5)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, easterSunday(tt.year), "year %d", tt.year)
	}
}

func TestObserved(t *testing.T) {
	// July 4th 2026 falls on a Saturday
	assert.Equal(t, date(2026, time.July, 3), observed(date(2026, time.July, 4)))
	// Christmas 2022 fell on a Sunday
	assert.Equal(t, date(2022, time.December, 26), observed(date(2022, time.December, 25)))
	assert.Equal(t, date(2024, time.June, 19), observed(date(2024, time.June, 19)))
}

func TestHolidayCalendar_IsHoliday(t *testing.T) {
	nyTZ, _ := time.LoadLocation(DefaultTimezone)
	cal := NewHolidayCalendar()

	assert.True(t, cal.IsHoliday(time.Date(2024, 11, 28, 10, 0, 0, 0, nyTZ)))
	assert.False(t, cal.IsHoliday(time.Date(2024, 11, 27, 10, 0, 0, 0, nyTZ)))
	assert.True(t, cal.IsHoliday(time.Date(2026, 7, 3, 12, 0, 0, 0, nyTZ)))
}
