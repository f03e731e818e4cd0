package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink/internal/availability"
	"carelink/internal/booking"
	"carelink/internal/dateutil"
	"carelink/internal/model"
	"carelink/internal/portalapi"
	"carelink/internal/session"
)

type fakeTelegram struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeTelegram) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeTelegram) SelfUser() tgbotapi.User {
	return tgbotapi.User{UserName: "carelink_test_bot"}
}

func (f *fakeTelegram) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	if m, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig); ok {
		return m.Text
	}
	return ""
}

// stubFetcher serves one canned slot set, or one error, for any day.
type stubFetcher struct {
	slots []dateutil.TimeOfDay
	err   error
}

func (f *stubFetcher) GetAvailability(_ context.Context, doctorID string, d dateutil.CalendarDate) (*model.Availability, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Availability{DoctorID: doctorID, Date: d, Slots: f.slots}, nil
}

func newTestBot(t *testing.T) (*Bot, *fakeTelegram) {
	t.Helper()
	return newTestBotWith(t, "http://127.0.0.1:0", nil)
}

func newTestBotWith(t *testing.T, apiURL string, f availability.Fetcher) (*Bot, *fakeTelegram) {
	t.Helper()
	store, err := session.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tg := &fakeTelegram{}
	logger := zerolog.Nop()
	api := portalapi.NewClient(apiURL, time.Second)
	resolver := availability.NewResolver(f, time.Minute)
	return NewWithTelegramClient(tg, api, resolver, store, Options{}, &logger), tg
}

func msgUpdate(chatID int64, text string) *tgbotapi.Update {
	return &tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text: text,
			From: &tgbotapi.User{ID: chatID},
			Chat: &tgbotapi.Chat{ID: chatID},
		},
	}
}

func TestStartCommandShowsMenu(t *testing.T) {
	b, tg := newTestBot(t)
	b.handleUpdate(context.Background(), msgUpdate(1, "/start"))
	assert.Contains(t, tg.lastText(), "/book")
	assert.Contains(t, tg.lastText(), "/appointments")
}

func TestLinkCommand(t *testing.T) {
	b, tg := newTestBot(t)
	ctx := context.Background()

	t.Run("MissingToken", func(t *testing.T) {
		b.handleUpdate(ctx, msgUpdate(2, "/link"))
		assert.Contains(t, tg.lastText(), "Usage: /link")
	})

	t.Run("SavesToken", func(t *testing.T) {
		b.handleUpdate(ctx, msgUpdate(2, "/link tok-abc"))
		assert.Contains(t, tg.lastText(), "linked")

		tok, err := b.sessions.Token(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "tok-abc", tok)
	})

	t.Run("LogoutDropsToken", func(t *testing.T) {
		b.handleUpdate(ctx, msgUpdate(2, "/logout"))
		tok, err := b.sessions.Token(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, tok)
	})
}

func TestBookRequiresLinkedAccount(t *testing.T) {
	b, tg := newTestBot(t)
	b.handleUpdate(context.Background(), msgUpdate(3, "/book"))
	assert.Contains(t, tg.lastText(), "/link")
	assert.Nil(t, b.wizards.Get(3))
}

func TestUnknownTextWithoutSession(t *testing.T) {
	b, tg := newTestBot(t)
	b.handleUpdate(context.Background(), msgUpdate(4, "hello there"))
	assert.Contains(t, tg.lastText(), "/help")
}

func TestDoctorCardText(t *testing.T) {
	today := dateutil.CalendarDate{Year: 2025, Month: 1, Day: 8}
	doc := &model.Doctor{
		ID:        "d1",
		FirstName: "Sarah",
		LastName:  "Johnson",
		Specialty: "Cardiology",
		Vacations: []model.VacationRange{
			{
				Start: dateutil.CalendarDate{Year: 2025, Month: 1, Day: 10},
				End:   dateutil.CalendarDate{Year: 2025, Month: 1, Day: 12},
			},
		},
	}

	t.Run("WithPreview", func(t *testing.T) {
		p := availability.Preview{
			DoctorID: "d1",
			Found:    true,
			Date:     today,
			Slots:    []dateutil.TimeOfDay{{Hour: 9, Minute: 30}},
		}
		text := doctorCardText(doc, p, today)
		assert.Contains(t, text, "Dr. Sarah Johnson")
		assert.Contains(t, text, "Cardiology")
		assert.Contains(t, text, "Away Jan 10-12")
		assert.Contains(t, text, "Next openings today")
	})

	t.Run("NoOpenings", func(t *testing.T) {
		text := doctorCardText(doc, availability.Preview{DoctorID: "d1"}, today)
		assert.Contains(t, text, "No openings")
	})

	t.Run("FetchError", func(t *testing.T) {
		p := availability.Preview{DoctorID: "d1", Err: assert.AnError}
		text := doctorCardText(doc, p, today)
		assert.Contains(t, text, "Availability unknown")
	})
}

func TestDoctorCardKeyboardQuickSlots(t *testing.T) {
	doc := &model.Doctor{ID: "d1", FirstName: "Sarah", LastName: "Johnson"}
	p := availability.Preview{
		DoctorID: "d1",
		Found:    true,
		Date:     dateutil.CalendarDate{Year: 2025, Month: 1, Day: 8},
		Slots: []dateutil.TimeOfDay{
			{Hour: 9, Minute: 30},
			{Hour: 14, Minute: 0},
		},
	}
	kb := doctorCardKeyboard(doc, p)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "quick:d1|2025-01-08|09:30", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "doctor:d1", *kb.InlineKeyboard[1][0].CallbackData)
}

func TestDayStepperKeyboard(t *testing.T) {
	today := dateutil.CalendarDate{Year: 2025, Month: 1, Day: 8}
	slots := []dateutil.TimeOfDay{
		{Hour: 9, Minute: 0}, {Hour: 9, Minute: 30}, {Hour: 10, Minute: 0},
		{Hour: 10, Minute: 30}, {Hour: 11, Minute: 0},
	}

	t.Run("Today", func(t *testing.T) {
		kb := dayStepperKeyboard(today, today, 30, slots)
		// 2 slot rows of up to 4, nav row, cancel row.
		require.Len(t, kb.InlineKeyboard, 4)
		assert.Len(t, kb.InlineKeyboard[0], 4)
		assert.Len(t, kb.InlineKeyboard[1], 1)
		nav := kb.InlineKeyboard[2]
		require.Len(t, nav, 1)
		assert.Equal(t, "day:next", *nav[0].CallbackData)
	})

	t.Run("MidWindow", func(t *testing.T) {
		kb := dayStepperKeyboard(today.AddDays(3), today, 30, nil)
		nav := kb.InlineKeyboard[0]
		require.Len(t, nav, 2)
		assert.Equal(t, "day:prev", *nav[0].CallbackData)
		assert.Equal(t, "day:next", *nav[1].CallbackData)
	})

	t.Run("Horizon", func(t *testing.T) {
		kb := dayStepperKeyboard(today.AddDays(29), today, 30, nil)
		nav := kb.InlineKeyboard[0]
		require.Len(t, nav, 1)
		assert.Equal(t, "day:prev", *nav[0].CallbackData)
	})
}

func TestTypeKeyboardListsAllTypes(t *testing.T) {
	kb := typeKeyboard()
	require.Len(t, kb.InlineKeyboard, len(model.AppointmentTypes)+1)
	assert.Contains(t, kb.InlineKeyboard[0][0].Text, "min)")
	assert.Equal(t, "type:"+model.AppointmentTypes[0].ID, *kb.InlineKeyboard[0][0].CallbackData)
}

func TestConfirmText(t *testing.T) {
	today := dateutil.CalendarDate{Year: 2025, Month: 1, Day: 8}
	d := booking.Draft{
		DoctorID: "d1",
		Date:     today,
		Slot:     dateutil.TimeOfDay{Hour: 9, Minute: 30},
		SlotSet:  true,
		TypeID:   "consultation",
		Reason:   "chest pain",
	}
	text := confirmText(d, today)
	assert.Contains(t, text, "Date: Today")
	assert.Contains(t, text, "Time: 9:30 AM")
	assert.Contains(t, text, "General Consultation (30 min)")
	assert.Contains(t, text, "Reason: chest pain")
}

func TestAppointmentText(t *testing.T) {
	a := &model.Appointment{
		ID:        "a1",
		StartTime: time.Date(2025, 1, 8, 9, 30, 0, 0, time.UTC),
		Status:    model.StatusScheduled,
		Type:      "consultation",
		Doctor:    model.PersonSummary{FirstName: "Sarah", LastName: "Johnson"},
	}
	text := appointmentText(a)
	assert.Contains(t, text, "Wednesday, January 8 at 9:30 AM")
	assert.Contains(t, text, "Dr. Sarah Johnson")
	assert.True(t, strings.Contains(text, "scheduled"))
}

func TestAppointmentKeyboardActions(t *testing.T) {
	kb := appointmentKeyboard(&model.Appointment{ID: "a1"})
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "resched:a1", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "cancelappt:a1", *kb.InlineKeyboard[0][1].CallbackData)
}

func TestRescheduleReentersBooking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/appointments/a1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "a1",
			"startTime": "2025-01-08T09:30:00Z",
			"status": "scheduled",
			"type": "checkup",
			"title": "Knee pain",
			"doctor": {"id": "d1", "firstName": "Sarah", "lastName": "Johnson"}
		}`))
	}))
	defer srv.Close()

	b, tg := newTestBotWith(t, srv.URL, &stubFetcher{slots: []dateutil.TimeOfDay{{Hour: 9, Minute: 30}}})
	ctx := context.Background()
	require.NoError(t, b.sessions.Link(ctx, 7, "tok", "Pat"))

	b.onReschedule(ctx, 7, "a1")

	s := b.wizards.Get(7)
	require.NotNil(t, s)
	d := s.Wizard.Draft()
	assert.Equal(t, "a1", d.RescheduleID)
	assert.Equal(t, "d1", d.DoctorID)
	assert.Equal(t, booking.StepDateTime, s.Wizard.Current())
	assert.Contains(t, tg.lastText(), "Available times")
}

func TestDayLoadAfterBookingEndedIsSilent(t *testing.T) {
	ctx := context.Background()
	today := dateutil.Today()

	// No wizard exists for the chat in either case: the result of the
	// in-flight fetch is dropped without a message.
	t.Run("FetchError", func(t *testing.T) {
		b, tg := newTestBotWith(t, "http://127.0.0.1:0", &stubFetcher{err: errors.New("portal down")})
		b.loadAndShowDay(ctx, 7, "d1", today)
		assert.Empty(t, tg.sent)
	})

	t.Run("FetchSuccess", func(t *testing.T) {
		b, tg := newTestBotWith(t, "http://127.0.0.1:0", &stubFetcher{slots: []dateutil.TimeOfDay{{Hour: 9}}})
		b.loadAndShowDay(ctx, 7, "d1", today)
		assert.Empty(t, tg.sent)
	})

	t.Run("ActiveBookingStillSeesTheError", func(t *testing.T) {
		b, tg := newTestBotWith(t, "http://127.0.0.1:0", &stubFetcher{err: errors.New("portal down")})
		w := booking.NewWizard(nil)
		w.SetDoctor("d1")
		require.NoError(t, w.Advance())
		b.wizards.Put(7, w)
		b.loadAndShowDay(ctx, 7, "d1", today)
		assert.Contains(t, tg.lastText(), "Couldn't load available times")
	})
}
