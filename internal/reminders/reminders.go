// Package reminders sends each patient a one-time message ahead of every
// upcoming appointment. Sent reminders are recorded so a restart never
// repeats them.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"carelink/internal/dateutil"
	"carelink/internal/metrics"
	"carelink/internal/model"
	"carelink/internal/portalapi"
	"carelink/internal/session"
)

// Notifier delivers a reminder message to a chat.
type Notifier interface {
	Notify(chatID int64, text string) error
}

// AppointmentSource lists a chat's appointments starting before the cutoff.
type AppointmentSource interface {
	UpcomingAppointments(ctx context.Context, chatID int64, until time.Time) ([]model.Appointment, error)
}

// Ledger tracks linked chats and which reminders were already sent.
type Ledger interface {
	LinkedChats(ctx context.Context) ([]int64, error)
	WasReminded(ctx context.Context, chatID int64, appointmentID string) (bool, error)
	MarkReminded(ctx context.Context, chatID int64, appointmentID string) error
	PruneReminders(ctx context.Context, before time.Time) (int64, error)
}

// Config controls the reminder loop.
type Config struct {
	Enabled bool
	// CheckInterval is how often upcoming appointments are scanned.
	CheckInterval time.Duration
	// Lead is how far before the start time a reminder goes out.
	Lead time.Duration
	// RetentionDays is how long sent-reminder records are kept.
	RetentionDays int
}

func (c *Config) withDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 15 * time.Minute
	}
	if c.Lead <= 0 {
		c.Lead = 24 * time.Hour
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 7
	}
}

// Service is the reminder loop.
type Service struct {
	config   Config
	source   AppointmentSource
	ledger   Ledger
	notifier Notifier
	logger   *zerolog.Logger
	now      func() time.Time
}

func New(cfg Config, source AppointmentSource, ledger Ledger, notifier Notifier, logger *zerolog.Logger) *Service {
	cfg.withDefaults()
	return &Service{
		config:   cfg,
		source:   source,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Start runs the scan loop until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("reminders disabled")
		return
	}
	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Dur("lead", s.config.Lead).
		Msg("reminder service started")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce scans every linked chat and sends the reminders that are due.
func (s *Service) RunOnce(ctx context.Context) {
	chats, err := s.ledger.LinkedChats(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("linked chat scan failed")
		return
	}

	now := s.now()
	for _, chatID := range chats {
		if err := s.remindChat(ctx, chatID, now); err != nil {
			s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("reminder scan failed for chat")
		}
	}

	cutoff := now.AddDate(0, 0, -s.config.RetentionDays)
	if pruned, err := s.ledger.PruneReminders(ctx, cutoff); err != nil {
		s.logger.Error().Err(err).Msg("reminder prune failed")
	} else if pruned > 0 {
		s.logger.Debug().Int64("pruned", pruned).Msg("old reminder records dropped")
	}
}

func (s *Service) remindChat(ctx context.Context, chatID int64, now time.Time) error {
	appts, err := s.source.UpcomingAppointments(ctx, chatID, now.Add(s.config.Lead))
	if err != nil {
		// An expired credential is not the reminder loop's problem to fix;
		// the chat is skipped until the patient re-links.
		if portalapi.IsAuthExpired(err) {
			return nil
		}
		metrics.IncReminderSent("error")
		return err
	}

	for i := range appts {
		a := &appts[i]
		if !a.Status.IsUpcoming() || a.StartTime.Before(now) {
			continue
		}
		sent, err := s.ledger.WasReminded(ctx, chatID, a.ID)
		if err != nil {
			return err
		}
		if sent {
			metrics.IncReminderSent("skipped")
			continue
		}
		if err := s.notifier.Notify(chatID, reminderText(a, now)); err != nil {
			metrics.IncReminderSent("error")
			s.logger.Error().Err(err).Int64("chat_id", chatID).Str("appointment_id", a.ID).
				Msg("reminder send failed")
			continue
		}
		if err := s.ledger.MarkReminded(ctx, chatID, a.ID); err != nil {
			return err
		}
		metrics.IncReminderSent("sent")
	}
	return nil
}

func reminderText(a *model.Appointment, now time.Time) string {
	when := a.StartTime.Format("Monday, January 2 at 3:04 PM")
	// Appointment times are wall-clock values carried as UTC; compare whole
	// calendar dates so a check running near midnight in a non-UTC zone does
	// not mislabel the day.
	if dateutil.DateOf(a.StartTime.In(time.UTC)) == dateutil.DateOf(now) {
		when = "today at " + a.StartTime.Format("3:04 PM")
	}
	text := fmt.Sprintf("Reminder: you have an appointment %s", when)
	if a.Doctor.LastName != "" {
		text += fmt.Sprintf(" with Dr. %s %s", a.Doctor.FirstName, a.Doctor.LastName)
	}
	return text + ".\nUse /appointments to review or cancel."
}

// PortalSource lists upcoming appointments through the portal API using each
// chat's stored credential.
type PortalSource struct {
	Client   *portalapi.Client
	Sessions *session.Store
}

func (p *PortalSource) UpcomingAppointments(ctx context.Context, chatID int64, until time.Time) ([]model.Appointment, error) {
	page, err := p.Client.GetPatientAppointments(ctx, p.Sessions.TokenSource(chatID), portalapi.AppointmentFilter{
		Start: time.Now(),
		End:   until,
		Limit: 50,
	})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}
