package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"carelink/internal/availability"
	"carelink/internal/booking"
	"carelink/internal/dateutil"
	"carelink/internal/export"
	"carelink/internal/model"
	"carelink/internal/portalapi"
)

func (b *Bot) handleDoctors(ctx context.Context, chatID int64) {
	doctors, err := b.api.GetDoctors(ctx, portalapi.DoctorFilter{})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("doctor list failed")
		b.reply(chatID, "Couldn't load the doctor list. Try again in a moment.")
		return
	}
	if len(doctors) == 0 {
		b.reply(chatID, "No doctors are available right now.")
		return
	}

	today := dateutil.Today()
	ids := make([]string, 0, len(doctors))
	for _, d := range doctors {
		if d.IsActive {
			ids = append(ids, d.ID)
		}
	}
	previews := make(map[string]availability.Preview, len(ids))
	for _, p := range b.resolver.PreviewDoctors(ctx, ids) {
		previews[p.DoctorID] = p
	}

	for i := range doctors {
		d := &doctors[i]
		if !d.IsActive {
			continue
		}
		b.replyWithKeyboard(chatID, doctorCardText(d, previews[d.ID], today), doctorCardKeyboard(d, previews[d.ID]))
	}
}

func (b *Bot) startBooking(ctx context.Context, chatID int64) {
	if !b.requireLink(ctx, chatID) {
		return
	}
	w := booking.NewWizard(nil)
	b.wizards.Put(chatID, w)
	b.reply(chatID, "Let's book an appointment. First, pick a doctor.")
	b.handleDoctors(ctx, chatID)
}

// startPrefilled begins a booking with doctor, date and slot already chosen,
// entering the flow at the visit-type step.
func (b *Bot) startPrefilled(ctx context.Context, chatID int64, doctorID string, date dateutil.CalendarDate, slot dateutil.TimeOfDay) {
	if !b.requireLink(ctx, chatID) {
		return
	}
	w := booking.NewPrefilled(doctorID, date, slot)
	b.wizards.Put(chatID, w)
	b.renderStep(ctx, chatID)
}

func (b *Bot) requireLink(ctx context.Context, chatID int64) bool {
	token, err := b.sessions.Token(ctx, chatID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("token lookup failed")
		b.reply(chatID, "Something went wrong. Try again.")
		return false
	}
	if token == "" {
		b.reply(chatID, "Link your patient account first: /link <token>")
		return false
	}
	return true
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.RequestTimeout)
	defer cancel()

	b.answerCallback(cb.ID)
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data

	switch {
	case strings.HasPrefix(data, "doctor:"):
		b.onDoctorPicked(ctx, chatID, strings.TrimPrefix(data, "doctor:"))
	case strings.HasPrefix(data, "quick:"):
		b.onQuickSlot(ctx, chatID, strings.TrimPrefix(data, "quick:"))
	case strings.HasPrefix(data, "slot:"):
		b.onSlotPicked(ctx, chatID, strings.TrimPrefix(data, "slot:"))
	case strings.HasPrefix(data, "type:"):
		b.onTypePicked(ctx, chatID, strings.TrimPrefix(data, "type:"))
	case strings.HasPrefix(data, "cancelappt:"):
		b.onCancelAppointment(ctx, chatID, strings.TrimPrefix(data, "cancelappt:"))
	case strings.HasPrefix(data, "resched:"):
		b.onReschedule(ctx, chatID, strings.TrimPrefix(data, "resched:"))
	case data == "day:prev":
		b.onDayStep(ctx, chatID, -1)
	case data == "day:next":
		b.onDayStep(ctx, chatID, +1)
	case data == "day:retry":
		b.onDayStep(ctx, chatID, 0)
	case data == "details:skip":
		b.onDetailsDone(ctx, chatID)
	case data == "back":
		b.onBack(ctx, chatID)
	case data == "confirm":
		b.onConfirm(ctx, chatID)
	case data == "abort":
		b.wizards.Delete(chatID)
		b.reply(chatID, "Booking cancelled.")
	default:
		zerolog.Ctx(ctx).Warn().Str("data", data).Msg("unknown callback")
	}
}

func (b *Bot) withWizard(chatID int64, fn func(w *booking.Wizard)) bool {
	s := b.wizards.Get(chatID)
	if s == nil {
		b.reply(chatID, "No booking in progress. Start one with /book.")
		return false
	}
	s.Lock()
	defer s.Unlock()
	fn(s.Wizard)
	return true
}

func (b *Bot) onDoctorPicked(ctx context.Context, chatID int64, doctorID string) {
	if !b.requireLink(ctx, chatID) {
		return
	}
	// Tapping a doctor card always (re)starts the flow at slot selection.
	w := booking.NewWizard(nil)
	w.SetDoctor(doctorID)
	_ = w.Advance()
	b.wizards.Put(chatID, w)
	b.renderStep(ctx, chatID)
}

// onQuickSlot handles the slot buttons on a doctor card. Payload is
// "<doctorID>|<date>|<HH:MM>".
func (b *Bot) onQuickSlot(ctx context.Context, chatID int64, payload string) {
	parts := strings.SplitN(payload, "|", 3)
	if len(parts) != 3 {
		return
	}
	date, err := dateutil.ParseCalendarDate(parts[1])
	if err != nil {
		return
	}
	slot, err := dateutil.ParseTimeOfDay(parts[2])
	if err != nil {
		return
	}
	b.startPrefilled(ctx, chatID, parts[0], date, slot)
}

func (b *Bot) onDayStep(ctx context.Context, chatID int64, delta int) {
	var doctorID string
	var date dateutil.CalendarDate
	ok := b.withWizard(chatID, func(w *booking.Wizard) {
		if delta != 0 {
			w.StepDay(delta)
		}
		doctorID = w.Draft().DoctorID
		date = w.ViewedDate()
	})
	if !ok {
		return
	}
	b.loadAndShowDay(ctx, chatID, doctorID, date)
}

// loadAndShowDay fetches availability for one day and renders the slot grid.
// The result is applied through the wizard so a response for a day the
// patient has already stepped away from is dropped.
func (b *Bot) loadAndShowDay(ctx context.Context, chatID int64, doctorID string, date dateutil.CalendarDate) {
	avail, err := b.resolver.Fetch(ctx, doctorID, date)
	s := b.wizards.Get(chatID)
	if s == nil {
		// The booking ended (cancelled or timed out) while the fetch was in
		// flight; nobody is waiting for this day anymore.
		return
	}
	if err != nil {
		if portalapi.IsAuthExpired(err) {
			b.handleSessionExpired(ctx, chatID)
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Str("doctor_id", doctorID).Msg("availability fetch failed")
		b.replyWithKeyboard(chatID, "Couldn't load available times. Your selections are kept.",
			retryKeyboard())
		return
	}

	s.Lock()
	applied := s.Wizard.ApplyAvailability(avail)
	s.Unlock()
	if !applied {
		// The patient moved on while we were fetching.
		return
	}

	today := dateutil.Today()
	label := dateutil.Label(date, today)
	if !avail.HasSlots() {
		text := fmt.Sprintf("No open times on %s. Try another day.", label)
		if earliest, found, err := b.resolver.FindEarliestAvailable(ctx, doctorID, b.opts.SearchWindowDays); err == nil && found {
			text = fmt.Sprintf("No open times on %s. The earliest opening is %s.",
				label, strings.ToLower(dateutil.Label(earliest.Date, today)))
		}
		b.replyWithKeyboard(chatID, text,
			dayStepperKeyboard(date, today, b.opts.BookingWindowDays, nil))
		return
	}
	b.replyWithKeyboard(chatID,
		fmt.Sprintf("Available times on %s:", label),
		dayStepperKeyboard(date, today, b.opts.BookingWindowDays, avail.Slots))
}

func (b *Bot) onSlotPicked(ctx context.Context, chatID int64, raw string) {
	slot, err := dateutil.ParseTimeOfDay(raw)
	if err != nil {
		return
	}
	var selErr error
	ok := b.withWizard(chatID, func(w *booking.Wizard) {
		if selErr = w.SelectSlot(slot); selErr == nil {
			selErr = w.Advance()
		}
	})
	if !ok {
		return
	}
	if selErr != nil {
		b.reply(chatID, "That time is no longer open. Pick another.")
		b.onDayStep(ctx, chatID, 0)
		return
	}
	b.renderStep(ctx, chatID)
}

func (b *Bot) onTypePicked(ctx context.Context, chatID int64, typeID string) {
	var err error
	ok := b.withWizard(chatID, func(w *booking.Wizard) {
		if err = w.SetType(typeID); err == nil {
			err = w.Advance()
		}
	})
	if !ok {
		return
	}
	if err != nil {
		b.reply(chatID, "Pick a visit type from the buttons.")
		return
	}
	b.renderStep(ctx, chatID)
}

// handleWizardText feeds free text into the details step. Anywhere else it
// is ignored with a gentle hint.
func (b *Bot) handleWizardText(ctx context.Context, chatID int64, text string) {
	s := b.wizards.Get(chatID)
	if s == nil {
		b.reply(chatID, "Not sure what you mean. Try /help.")
		return
	}
	s.Lock()
	w := s.Wizard
	if w.Current() != booking.StepDetails {
		s.Unlock()
		b.reply(chatID, "Use the buttons above to continue your booking, or /cancel to stop.")
		return
	}
	if w.Draft().Reason == "" {
		w.SetReason(text)
		s.Unlock()
		b.replyWithKeyboard(chatID, "Anything else the doctor should know? Send a note or skip.", skipKeyboard())
		return
	}
	w.SetNotes(text)
	err := w.Advance()
	s.Unlock()
	if err != nil {
		b.reply(chatID, "Please describe the reason for your visit first.")
		return
	}
	b.renderStep(ctx, chatID)
}

func (b *Bot) onDetailsDone(ctx context.Context, chatID int64) {
	var err error
	ok := b.withWizard(chatID, func(w *booking.Wizard) {
		err = w.Advance()
	})
	if !ok {
		return
	}
	if err != nil {
		b.reply(chatID, "Please describe the reason for your visit first.")
		return
	}
	b.renderStep(ctx, chatID)
}

func (b *Bot) onBack(ctx context.Context, chatID int64) {
	ok := b.withWizard(chatID, func(w *booking.Wizard) {
		w.Retreat()
	})
	if !ok {
		return
	}
	b.renderStep(ctx, chatID)
}

// renderStep sends the prompt and keyboard for the wizard's current step.
func (b *Bot) renderStep(ctx context.Context, chatID int64) {
	s := b.wizards.Get(chatID)
	if s == nil {
		return
	}
	s.Lock()
	step := s.Wizard.Current()
	draft := s.Wizard.Draft()
	doctorID := draft.DoctorID
	date := s.Wizard.ViewedDate()
	s.Unlock()

	switch step {
	case booking.StepDoctor:
		b.handleDoctors(ctx, chatID)
	case booking.StepDateTime:
		b.loadAndShowDay(ctx, chatID, doctorID, date)
	case booking.StepType:
		b.replyWithKeyboard(chatID, "What kind of visit is this?", typeKeyboard())
	case booking.StepDetails:
		if draft.Reason != "" {
			// Carried over from a reschedule; only the optional note is open.
			b.replyWithKeyboard(chatID, "Anything else the doctor should know? Send a note or skip.", skipKeyboard())
			return
		}
		b.reply(chatID, "Briefly, what is the reason for your visit?")
	case booking.StepConfirm:
		b.replyWithKeyboard(chatID, confirmText(draft, dateutil.Today()), confirmKeyboard())
	}
}

func (b *Bot) onConfirm(ctx context.Context, chatID int64) {
	s := b.wizards.Get(chatID)
	if s == nil {
		b.reply(chatID, "No booking in progress. Start one with /book.")
		return
	}

	s.Lock()
	w := s.Wizard
	draft := w.Draft()
	ts := b.sessions.TokenSource(chatID)
	submit := func(ctx context.Context, req portalapi.CreateAppointmentRequest) (*model.Appointment, error) {
		if draft.RescheduleID != "" {
			return b.api.RescheduleAppointment(ctx, ts, draft.RescheduleID, req.StartTime, req.EndTime)
		}
		return b.api.CreateAppointment(ctx, ts, req)
	}
	_, err := w.Submit(ctx, submit)
	s.Unlock()

	switch {
	case err == nil:
		b.resolver.Invalidate(ctx, draft.DoctorID, draft.Date)
		b.wizards.Delete(chatID)
		verb := "Booked"
		if draft.RescheduleID != "" {
			verb = "Rescheduled"
		}
		b.reply(chatID, fmt.Sprintf("%s: %s at %s. See you then!\nUse /appointments to review or cancel.",
			verb, dateutil.Label(draft.Date, dateutil.Today()), draft.Slot.Format12()))
	case err == booking.ErrAlreadySubmitted || err == booking.ErrSubmitInFlight:
		// Double tap on the confirm button; the first submit stands.
	case portalapi.IsConflict(err):
		b.reply(chatID, "That time was just taken by someone else. Pick another.")
		fresh, ferr := b.resolver.Refetch(ctx, draft.DoctorID, draft.Date)
		if ferr == nil {
			b.withWizard(chatID, func(w *booking.Wizard) {
				w.ApplyAvailability(fresh)
			})
		}
		b.onDayStep(ctx, chatID, 0)
	case portalapi.IsAuthExpired(err):
		b.handleSessionExpired(ctx, chatID)
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("appointment submit failed")
		b.replyWithKeyboard(chatID, "Couldn't complete the booking. Nothing was lost; try again.", confirmKeyboard())
	}
}

func (b *Bot) handleAppointments(ctx context.Context, chatID int64) {
	if !b.requireLink(ctx, chatID) {
		return
	}
	page, err := b.api.GetPatientAppointments(ctx, b.sessions.TokenSource(chatID), portalapi.AppointmentFilter{
		Start: time.Now(),
		Limit: 20,
	})
	if err != nil {
		if portalapi.IsAuthExpired(err) {
			b.handleSessionExpired(ctx, chatID)
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Msg("appointment list failed")
		b.reply(chatID, "Couldn't load your appointments. Try again in a moment.")
		return
	}
	if len(page.Items) == 0 {
		b.reply(chatID, "You have no upcoming appointments. Book one with /book.")
		return
	}
	for i := range page.Items {
		a := &page.Items[i]
		b.replyWithKeyboard(chatID, appointmentText(a), appointmentKeyboard(a))
	}
}

// onReschedule re-enters the booking flow for an existing appointment: the
// original's doctor and details seed the wizard, and confirming moves the
// appointment instead of creating a second one.
func (b *Bot) onReschedule(ctx context.Context, chatID int64, id string) {
	if !b.requireLink(ctx, chatID) {
		return
	}
	appt, err := b.api.GetAppointment(ctx, b.sessions.TokenSource(chatID), id)
	if err != nil {
		if portalapi.IsAuthExpired(err) {
			b.handleSessionExpired(ctx, chatID)
			return
		}
		if portalapi.IsNotFound(err) {
			b.reply(chatID, "That appointment is already gone.")
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Str("appointment_id", id).Msg("reschedule lookup failed")
		b.reply(chatID, "Couldn't load that appointment. Try again.")
		return
	}
	if !appt.Status.IsUpcoming() {
		b.reply(chatID, "Only upcoming appointments can be rescheduled.")
		return
	}
	b.wizards.Put(chatID, booking.NewReschedule(appt))
	b.reply(chatID, "Pick a new time for your appointment.")
	b.renderStep(ctx, chatID)
}

func (b *Bot) onCancelAppointment(ctx context.Context, chatID int64, id string) {
	if err := b.api.CancelAppointment(ctx, b.sessions.TokenSource(chatID), id); err != nil {
		if portalapi.IsAuthExpired(err) {
			b.handleSessionExpired(ctx, chatID)
			return
		}
		if portalapi.IsNotFound(err) {
			b.reply(chatID, "That appointment is already gone.")
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Str("appointment_id", id).Msg("cancel failed")
		b.reply(chatID, "Couldn't cancel the appointment. Try again.")
		return
	}
	b.reply(chatID, "Appointment cancelled.")
}

func (b *Bot) handleExport(ctx context.Context, chatID int64) {
	if !b.requireLink(ctx, chatID) {
		return
	}
	page, err := b.api.GetPatientAppointments(ctx, b.sessions.TokenSource(chatID), portalapi.AppointmentFilter{
		Limit: 200,
	})
	if err != nil {
		if portalapi.IsAuthExpired(err) {
			b.handleSessionExpired(ctx, chatID)
			return
		}
		zerolog.Ctx(ctx).Error().Err(err).Msg("export fetch failed")
		b.reply(chatID, "Couldn't load your history. Try again in a moment.")
		return
	}

	var buf bytes.Buffer
	if err := export.Appointments(&buf, page.Items); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("export build failed")
		b.reply(chatID, "Couldn't build the export file.")
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  export.Filename(time.Now()),
		Bytes: buf.Bytes(),
	})
	doc.Caption = fmt.Sprintf("%d appointments", len(page.Items))
	if _, err := b.tg.Send(doc); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("document send failed")
	}
}

func confirmText(d booking.Draft, today dateutil.CalendarDate) string {
	var sb strings.Builder
	sb.WriteString("Please confirm your appointment:\n\n")
	fmt.Fprintf(&sb, "Date: %s\n", dateutil.Label(d.Date, today))
	fmt.Fprintf(&sb, "Time: %s\n", d.Slot.Format12())
	if t, ok := model.TypeByID(d.TypeID); ok {
		fmt.Fprintf(&sb, "Visit: %s (%d min)\n", t.Name, int(t.Duration.Minutes()))
	}
	if d.Reason != "" {
		fmt.Fprintf(&sb, "Reason: %s\n", d.Reason)
	}
	if d.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", d.Notes)
	}
	return sb.String()
}

func appointmentText(a *model.Appointment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", a.StartTime.Format("Monday, January 2 at 3:04 PM"))
	if a.Doctor.LastName != "" {
		fmt.Fprintf(&sb, "Dr. %s %s\n", a.Doctor.FirstName, a.Doctor.LastName)
	}
	if t, ok := model.TypeByID(a.Type); ok {
		fmt.Fprintf(&sb, "%s\n", t.Name)
	}
	fmt.Fprintf(&sb, "Status: %s", a.Status)
	return sb.String()
}
