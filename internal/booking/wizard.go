// Package booking drives the multi-step appointment booking flow: a linear
// wizard over a configurable step list, the draft it accumulates, and the
// submission of the finished draft to the portal API.
package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"carelink/internal/dateutil"
	"carelink/internal/metrics"
	"carelink/internal/model"
	"carelink/internal/portalapi"
)

// Step identifies one screen of the wizard.
type Step string

const (
	StepDoctor   Step = "doctor"
	StepDateTime Step = "datetime"
	StepType     Step = "type"
	StepDetails  Step = "details"
	StepConfirm  Step = "confirm"
)

// DefaultSteps is the doctor-first ordering. Alternate orderings are just a
// different list; the wizard itself only walks a linear index.
var DefaultSteps = []Step{StepDoctor, StepDateTime, StepType, StepDetails, StepConfirm}

var (
	// ErrIncompleteStep means the current step's required fields are not
	// filled in. It is a local validation error: callers re-prompt and never
	// surface it as a failure.
	ErrIncompleteStep = errors.New("current step is incomplete")

	// ErrSubmitInFlight means a submission is already running; the duplicate
	// call is dropped so one draft creates at most one appointment.
	ErrSubmitInFlight = errors.New("submission already in flight")

	// ErrAlreadySubmitted means the wizard already reached its terminal
	// success state.
	ErrAlreadySubmitted = errors.New("booking already submitted")

	// ErrSlotNotAvailable means the selected time is not among the open
	// slots currently shown.
	ErrSlotNotAvailable = errors.New("slot is not available on the viewed date")
)

// SubmitFunc performs the create-appointment call.
type SubmitFunc func(ctx context.Context, req portalapi.CreateAppointmentRequest) (*model.Appointment, error)

// Wizard is the state machine of one booking session. All methods are meant
// for a single logical caller; the bot serializes access per chat.
type Wizard struct {
	steps Steps
	idx   int

	draft      Draft
	viewedDate dateutil.CalendarDate
	avail      *model.Availability

	// submitMu guards the in-flight flag and result: the double-click guard
	// must hold across goroutines even though the rest of the wizard is
	// serialized by its session.
	submitMu   sync.Mutex
	submitting bool
	submitted  *model.Appointment

	now func() time.Time
}

// Steps is an ordered step list.
type Steps []Step

func (s Steps) indexOf(step Step) int {
	for i, st := range s {
		if st == step {
			return i
		}
	}
	return -1
}

// NewWizard starts a booking session at the first step. A nil or empty step
// list uses DefaultSteps.
func NewWizard(steps Steps) *Wizard {
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	w := &Wizard{steps: steps, now: time.Now}
	w.viewedDate = dateutil.DateOf(w.now())
	return w
}

// NewPrefilled starts a session deep-linked from a doctor card's slot
// button: doctor, date, and time are supplied, and the wizard opens on the
// type step.
func NewPrefilled(doctorID string, date dateutil.CalendarDate, slot dateutil.TimeOfDay) *Wizard {
	w := NewWizard(DefaultSteps)
	w.draft.DoctorID = doctorID
	w.draft.Date = date
	w.draft.Slot = slot
	w.draft.SlotSet = true
	w.viewedDate = date
	if i := w.steps.indexOf(StepType); i >= 0 {
		w.idx = i
	}
	return w
}

// NewReschedule starts a session that moves an existing appointment to a new
// time. Doctor, visit type, reason and notes carry over from the original,
// and the wizard opens on the date/time step so the patient mostly just picks
// a new slot.
func NewReschedule(a *model.Appointment) *Wizard {
	w := NewWizard(DefaultSteps)
	w.draft.DoctorID = a.Doctor.ID
	w.draft.RescheduleID = a.ID
	if _, ok := model.TypeByID(a.Type); ok {
		w.draft.TypeID = a.Type
	}
	w.draft.Reason = a.Title
	w.draft.Notes = a.Description
	if i := w.steps.indexOf(StepDateTime); i >= 0 {
		w.idx = i
	}
	return w
}

// Current returns the step the wizard is on. After successful submission it
// returns StepConfirm with Submitted() non-nil.
func (w *Wizard) Current() Step {
	return w.steps[w.idx]
}

// Draft returns a copy of the accumulated selections.
func (w *Wizard) Draft() Draft {
	return w.draft
}

// Submitted returns the created appointment once the wizard has reached its
// terminal success state, nil before that.
func (w *Wizard) Submitted() *model.Appointment {
	return w.submitted
}

// stepComplete reports whether a step's required fields are set.
func (w *Wizard) stepComplete(step Step) bool {
	switch step {
	case StepDoctor:
		return w.draft.DoctorID != ""
	case StepDateTime:
		return !w.draft.Date.IsZero() && w.draft.SlotSet
	case StepType:
		return w.draft.TypeID != ""
	case StepDetails:
		return w.draft.Reason != ""
	default:
		return true
	}
}

// Advance moves to the next step. It is refused with ErrIncompleteStep when
// the current step's required fields are empty; the state is unchanged.
func (w *Wizard) Advance() error {
	if !w.stepComplete(w.Current()) {
		return ErrIncompleteStep
	}
	if w.idx < len(w.steps)-1 {
		w.idx++
	}
	return nil
}

// Retreat moves to the previous step. At the first step it is a no-op and
// returns false.
func (w *Wizard) Retreat() bool {
	if w.idx == 0 {
		return false
	}
	w.idx--
	return true
}

// SetDoctor records the chosen doctor. Changing doctors discards any slot
// selection and availability from the previous one.
func (w *Wizard) SetDoctor(id string) {
	if w.draft.DoctorID == id {
		return
	}
	w.draft.DoctorID = id
	w.draft.Date = dateutil.CalendarDate{}
	w.draft.Slot = dateutil.TimeOfDay{}
	w.draft.SlotSet = false
	w.avail = nil
	w.viewedDate = dateutil.DateOf(w.now())
}

// ViewedDate is the date whose slots are currently shown.
func (w *Wizard) ViewedDate() dateutil.CalendarDate {
	return w.viewedDate
}

// SetViewedDate navigates the slot view to a date, clamped to not go before
// today. A previously chosen slot belonging to a different date is cleared:
// a chosen slot is only valid paired with the currently viewed date.
func (w *Wizard) SetViewedDate(d dateutil.CalendarDate) {
	d = dateutil.ClampToNotBefore(d, dateutil.DateOf(w.now()))
	if d == w.viewedDate {
		return
	}
	w.viewedDate = d
	w.avail = nil
	if w.draft.SlotSet && w.draft.Date != d {
		w.draft.Slot = dateutil.TimeOfDay{}
		w.draft.SlotSet = false
		w.draft.Date = dateutil.CalendarDate{}
	}
}

// StepDay moves the viewed date by delta days (the ‹/› stepper).
func (w *Wizard) StepDay(delta int) {
	w.SetViewedDate(w.viewedDate.AddDays(delta))
}

// ApplyAvailability installs a fetch result, unless it is stale: results are
// keyed by (doctor, date) and only applied when both still match the current
// view, so an older response can never overwrite a newer one after the user
// has navigated on.
func (w *Wizard) ApplyAvailability(a *model.Availability) bool {
	if a == nil || a.DoctorID != w.draft.DoctorID || a.Date != w.viewedDate {
		return false
	}
	w.avail = a
	return true
}

// Availability returns the slots currently shown, nil while loading.
func (w *Wizard) Availability() *model.Availability {
	return w.avail
}

// SelectSlot chooses a slot on the viewed date. The slot must be among the
// applied availability's open slots.
func (w *Wizard) SelectSlot(t dateutil.TimeOfDay) error {
	if !w.avail.HasSlot(t) {
		return ErrSlotNotAvailable
	}
	w.draft.Date = w.viewedDate
	w.draft.Slot = t
	w.draft.SlotSet = true
	return nil
}

// SetType records the appointment type; unknown IDs are refused.
func (w *Wizard) SetType(id string) error {
	if _, ok := model.TypeByID(id); !ok {
		return ErrIncompleteStep
	}
	w.draft.TypeID = id
	return nil
}

// SetReason records the required visit reason.
func (w *Wizard) SetReason(reason string) {
	w.draft.Reason = reason
}

// SetNotes records the optional notes.
func (w *Wizard) SetNotes(notes string) {
	w.draft.Notes = notes
}

// Submit builds the create request from the draft and performs it. Exactly
// one call runs at a time: a duplicate while one is in flight returns
// ErrSubmitInFlight without a second network call.
//
// Outcomes:
//   - success: the wizard reaches its terminal state, the draft is final;
//   - slot conflict (409): the wizard returns to the date/time step with the
//     slot cleared so the caller refetches availability and re-prompts;
//   - auth expired (401): state unchanged, the error propagates to the
//     global session-expiry handler;
//   - anything else: state unchanged, the draft is kept for retry.
func (w *Wizard) Submit(ctx context.Context, submit SubmitFunc) (*model.Appointment, error) {
	w.submitMu.Lock()
	if w.submitted != nil {
		w.submitMu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	if w.submitting {
		w.submitMu.Unlock()
		return nil, ErrSubmitInFlight
	}
	req, err := BuildCreateRequest(w.draft)
	if err != nil {
		w.submitMu.Unlock()
		return nil, err
	}
	w.submitting = true
	w.submitMu.Unlock()

	appt, err := submit(ctx, req)

	w.submitMu.Lock()
	defer w.submitMu.Unlock()
	w.submitting = false
	if err != nil {
		switch {
		case portalapi.IsConflict(err):
			metrics.IncBookingCreated("conflict")
			w.returnToDateTime()
		case portalapi.IsAuthExpired(err):
			metrics.IncBookingCreated("auth_expired")
		default:
			metrics.IncBookingCreated("error")
		}
		return nil, err
	}

	metrics.IncBookingCreated("success")
	w.submitted = appt
	return appt, nil
}

// returnToDateTime bounces the wizard back to slot selection after a
// conflict. The taken slot is cleared; the rest of the draft survives.
func (w *Wizard) returnToDateTime() {
	w.viewedDate = w.draft.Date
	w.draft.Slot = dateutil.TimeOfDay{}
	w.draft.SlotSet = false
	w.draft.Date = dateutil.CalendarDate{}
	w.avail = nil
	if i := w.steps.indexOf(StepDateTime); i >= 0 {
		w.idx = i
	}
}
