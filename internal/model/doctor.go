package model

import (
	"fmt"
	"time"

	"carelink/internal/dateutil"
)

// Doctor represents a bookable practitioner as published by the portal API.
// ID is the canonical identifier everywhere in this codebase; the create
// endpoint's legacy "doctorUserId" field is populated from it at the wire
// boundary only.
type Doctor struct {
	ID           string          `json:"id"`
	FirstName    string          `json:"firstName"`
	LastName     string          `json:"lastName"`
	Specialty    string          `json:"specialty"`
	Bio          string          `json:"bio,omitempty"`
	WorkingHours map[string]any  `json:"workingHours,omitempty"`
	Vacations    []VacationRange `json:"vacations,omitempty"`
	IsActive     bool            `json:"isActive"`
	AcceptsVideo bool            `json:"acceptsVideo,omitempty"`
	Rating       float64         `json:"rating,omitempty"`
	Languages    []string        `json:"languages,omitempty"`
}

// DisplayName returns the doctor's name with the customary title.
func (d *Doctor) DisplayName() string {
	return fmt.Sprintf("Dr. %s %s", d.FirstName, d.LastName)
}

// IsOnVacation reports whether today falls inside any vacation range.
// Comparison is at calendar-date granularity, end date inclusive.
func (d *Doctor) IsOnVacation(today dateutil.CalendarDate) bool {
	for _, v := range d.Vacations {
		if v.Contains(today) {
			return true
		}
	}
	return false
}

// NextVacation returns the vacation range with the earliest start among
// ranges that are currently active or in the future. Past vacations are
// excluded. Ties keep list order. The second return is false when no such
// range exists.
func (d *Doctor) NextVacation(today dateutil.CalendarDate) (VacationRange, bool) {
	var next VacationRange
	found := false
	for _, v := range d.Vacations {
		if v.End.Before(today) {
			continue
		}
		if !found || v.Start.Before(next.Start) {
			next = v
			found = true
		}
	}
	return next, found
}

// VacationRange is an inclusive start/end calendar-date interval during
// which a doctor is unavailable for booking.
type VacationRange struct {
	Start  dateutil.CalendarDate `json:"startDate"`
	End    dateutil.CalendarDate `json:"endDate"`
	Reason string                `json:"reason,omitempty"`
}

// Contains reports whether the date falls within the range, end inclusive.
func (v VacationRange) Contains(d dateutil.CalendarDate) bool {
	return !d.Before(v.Start) && !d.After(v.End)
}

// Format renders the range for display: a single date when start and end
// coincide, "Jan 10-12" within one month, and "Jan 30 - Feb 2" otherwise.
// The year is appended only when it differs from today's year.
func (v VacationRange) Format(today dateutil.CalendarDate) string {
	const md = "Jan 2"

	start := v.Start.At(time.UTC)
	end := v.End.At(time.UTC)

	startStr := start.Format(md)
	if v.Start.Year != today.Year {
		startStr = start.Format("Jan 2, 2006")
	}

	if v.Start == v.End {
		return startStr
	}

	if v.Start.Year == v.End.Year && v.Start.Month == v.End.Month {
		return fmt.Sprintf("%s-%d", start.Format(md), v.End.Day)
	}

	endStr := end.Format(md)
	if v.End.Year != today.Year {
		endStr = end.Format("Jan 2, 2006")
	}
	return fmt.Sprintf("%s - %s", startStr, endStr)
}
