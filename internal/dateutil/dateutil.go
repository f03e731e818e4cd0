// Package dateutil provides calendar-date and time-of-day values for the
// booking flow. Dates are compared at calendar granularity, never as
// instants, to avoid off-by-one-day drift near midnight in non-UTC locales.
package dateutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CalendarDate is a date without a time component.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseCalendarDate parses a YYYY-MM-DD string. The string is split into
// components directly rather than routed through time.Parse with a location,
// so the result is the same regardless of the local timezone.
func ParseCalendarDate(s string) (CalendarDate, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return CalendarDate{}, fmt.Errorf("invalid calendar date %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) != 4 {
		return CalendarDate{}, fmt.Errorf("invalid year in %q", s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return CalendarDate{}, fmt.Errorf("invalid month in %q", s)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil || day < 1 || day > 31 {
		return CalendarDate{}, fmt.Errorf("invalid day in %q", s)
	}
	d := CalendarDate{Year: year, Month: time.Month(month), Day: day}
	// Reject dates like Feb 30 by round-tripping through time.Date.
	if d.At(time.UTC).Day() != day {
		return CalendarDate{}, fmt.Errorf("no such day: %q", s)
	}
	return d, nil
}

// DateOf truncates an instant to its calendar date in t's location.
func DateOf(t time.Time) CalendarDate {
	return CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Today returns the current calendar date in the local timezone.
func Today() CalendarDate {
	return DateOf(time.Now())
}

// String renders the date as YYYY-MM-DD.
func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// At returns midnight of the date in the given location.
func (d CalendarDate) At(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// IsZero reports whether the date is the zero value.
func (d CalendarDate) IsZero() bool {
	return d == CalendarDate{}
}

// AddDays steps the date by n days, delegating month and year boundaries to
// the time package.
func (d CalendarDate) AddDays(n int) CalendarDate {
	return DateOf(d.At(time.UTC).AddDate(0, 0, n))
}

// Before reports whether d is earlier than other.
func (d CalendarDate) Before(other CalendarDate) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is later than other.
func (d CalendarDate) After(other CalendarDate) bool {
	return other.Before(d)
}

// ClampToNotBefore returns floor when d is earlier than floor, d otherwise.
// The day stepper uses this so stepping backward never goes before today.
func ClampToNotBefore(d, floor CalendarDate) CalendarDate {
	if d.Before(floor) {
		return floor
	}
	return d
}

// Label renders a date relative to today: "Today", "Tomorrow", or a
// long-form date like "Wednesday, January 8, 2025".
func Label(d, today CalendarDate) string {
	switch d {
	case today:
		return "Today"
	case today.AddDays(1):
		return "Tomorrow"
	}
	return d.At(time.UTC).Format("Monday, January 2, 2006")
}

// MarshalJSON renders the date as a YYYY-MM-DD JSON string.
func (d CalendarDate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON parses a YYYY-MM-DD JSON string. Some API responses carry a
// full timestamp; anything after the date portion is ignored.
func (d *CalendarDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if len(s) > 10 {
		s = s[:10]
	}
	parsed, err := ParseCalendarDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a wall-clock time within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an HH:MM string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// String renders the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Format12 renders the time in 12-hour form: 00:00 is "12:00 AM",
// 12:00 is "12:00 PM", 13:05 is "1:05 PM".
func (t TimeOfDay) Format12() string {
	period := "AM"
	if t.Hour >= 12 {
		period = "PM"
	}
	hour := t.Hour % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d %s", hour, t.Minute, period)
}

// MarshalJSON renders the time as an HH:MM JSON string.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON parses an HH:MM JSON string.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Before reports whether t is earlier in the day than other.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	if t.Hour != other.Hour {
		return t.Hour < other.Hour
	}
	return t.Minute < other.Minute
}

// On composes the time of day with a calendar date in the given location.
func (t TimeOfDay) On(d CalendarDate, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}
