package booking

import (
	"errors"
	"time"

	"carelink/internal/dateutil"
	"carelink/internal/model"
	"carelink/internal/portalapi"
)

// Draft is the mutable accumulator a wizard fills in over one booking
// session. It is owned by exactly one wizard and is never persisted: it is
// discarded on success, cancel, or navigation away.
type Draft struct {
	DoctorID string
	Date     dateutil.CalendarDate
	Slot     dateutil.TimeOfDay
	SlotSet  bool
	TypeID   string
	Reason   string
	Notes    string

	// RescheduleID, when set, is the existing appointment this draft moves
	// instead of creating a new one.
	RescheduleID string
}

// Submittable reports whether every required field is set.
func (d *Draft) Submittable() bool {
	return d.DoctorID != "" && !d.Date.IsZero() && d.SlotSet && d.TypeID != "" && d.Reason != ""
}

// ErrDraftIncomplete is returned when a create request is built from a draft
// with required fields missing.
var ErrDraftIncomplete = errors.New("booking draft is incomplete")

// BuildCreateRequest converts a completed draft into the wire request.
// The chosen date and slot are composed as a wall-clock time and interpreted
// as UTC: that is the convention the deployed scheduling server expects, and
// it is fixed here rather than left to the caller's timezone. The end time
// is the start plus the chosen type's fixed duration.
func BuildCreateRequest(d Draft) (portalapi.CreateAppointmentRequest, error) {
	if !d.Submittable() {
		return portalapi.CreateAppointmentRequest{}, ErrDraftIncomplete
	}
	typ, ok := model.TypeByID(d.TypeID)
	if !ok {
		return portalapi.CreateAppointmentRequest{}, errors.New("unknown appointment type: " + d.TypeID)
	}

	start := d.Slot.On(d.Date, time.UTC)
	return portalapi.CreateAppointmentRequest{
		DoctorUserID: d.DoctorID,
		StartTime:    start,
		EndTime:      start.Add(typ.Duration),
		Type:         d.TypeID,
		Title:        d.Reason,
		Description:  d.Notes,
	}, nil
}
