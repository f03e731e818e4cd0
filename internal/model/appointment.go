package model

import (
	"time"

	"carelink/internal/dateutil"
)

// AppointmentStatus is the server-owned lifecycle state of an appointment.
// Transitions happen entirely on the backend; the client only reads the
// status and issues cancel or reschedule requests.
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// IsUpcoming reports whether the appointment can still take place.
func (s AppointmentStatus) IsUpcoming() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// AppointmentType pairs a visit kind with its fixed duration. This is static
// configuration, not server data.
type AppointmentType struct {
	ID       string
	Name     string
	Duration time.Duration
}

// AppointmentTypes is the fixed set of bookable visit kinds.
var AppointmentTypes = []AppointmentType{
	{ID: "consultation", Name: "General Consultation", Duration: 30 * time.Minute},
	{ID: "followup", Name: "Follow-up Visit", Duration: 20 * time.Minute},
	{ID: "checkup", Name: "Routine Checkup", Duration: 45 * time.Minute},
	{ID: "urgent", Name: "Urgent Care", Duration: 15 * time.Minute},
}

// TypeByID looks up an appointment type. The second return is false for an
// unknown ID.
func TypeByID(id string) (AppointmentType, bool) {
	for _, t := range AppointmentTypes {
		if t.ID == id {
			return t, true
		}
	}
	return AppointmentType{}, false
}

// PersonSummary is the condensed doctor or patient view embedded in an
// appointment.
type PersonSummary struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Specialty string `json:"specialty,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Appointment is a booked visit as returned by the portal API. The client
// treats it as read-only.
type Appointment struct {
	ID          string            `json:"id"`
	StartTime   time.Time         `json:"startTime"`
	EndTime     time.Time         `json:"endTime"`
	Status      AppointmentStatus `json:"status"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Fee         float64           `json:"fee,omitempty"`
	Doctor      PersonSummary     `json:"doctor"`
	Patient     PersonSummary     `json:"patient"`
}

// Availability is the set of open slots for one doctor on one date. Slots
// are unique and ascending; each is the start of a bookable interval whose
// duration comes from the chosen appointment type.
type Availability struct {
	DoctorID string                `json:"-"`
	Date     dateutil.CalendarDate `json:"date"`
	Slots    []dateutil.TimeOfDay  `json:"availableSlots"`
}

// HasSlots reports whether at least one slot is open.
func (a *Availability) HasSlots() bool {
	return a != nil && len(a.Slots) > 0
}

// HasSlot reports whether the given time is among the open slots.
func (a *Availability) HasSlot(t dateutil.TimeOfDay) bool {
	if a == nil {
		return false
	}
	for _, s := range a.Slots {
		if s == t {
			return true
		}
	}
	return false
}
