// Package bot is the Telegram front-end of the patient portal: doctor
// discovery, the booking wizard, the appointment list, and history export.
package bot

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"carelink/internal/availability"
	"carelink/internal/booking"
	"carelink/internal/portalapi"
	"carelink/internal/session"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// Options configures the bot's booking behavior.
type Options struct {
	// SearchWindowDays bounds the earliest-availability preview on cards.
	SearchWindowDays int
	// BookingWindowDays bounds how far ahead the day stepper goes.
	BookingWindowDays int
	// SessionTimeout is the wizard idle expiry.
	SessionTimeout time.Duration
	// RequestTimeout bounds each portal API call made from a handler.
	RequestTimeout time.Duration
}

func (o *Options) withDefaults() {
	if o.SearchWindowDays <= 0 {
		o.SearchWindowDays = availability.DefaultSearchWindowDays
	}
	if o.BookingWindowDays <= 0 {
		o.BookingWindowDays = 30
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = 30 * time.Minute
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
}

// Bot wires the portal client, resolver, and session stores to Telegram.
type Bot struct {
	tg       telegramClient
	api      *portalapi.Client
	resolver *availability.Resolver
	sessions *session.Store
	wizards  *booking.SessionStore
	opts     Options
	logger   *zerolog.Logger
}

// New creates a bot connected to Telegram.
func New(token string, api *portalapi.Client, resolver *availability.Resolver, sessions *session.Store, opts Options, logger *zerolog.Logger) (*Bot, error) {
	tgAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return NewWithTelegramClient(&realTelegramClient{api: tgAPI}, api, resolver, sessions, opts, logger), nil
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, api *portalapi.Client, resolver *availability.Resolver, sessions *session.Store, opts Options, logger *zerolog.Logger) *Bot {
	opts.withDefaults()
	return &Bot{
		tg:       tg,
		api:      api,
		resolver: resolver,
		sessions: sessions,
		wizards:  booking.NewSessionStore(opts.SessionTimeout),
		opts:     opts,
		logger:   logger,
	}
}

// Start polls updates until the context is cancelled. Each update runs on
// its own goroutine so a slow portal call never blocks other chats; per-chat
// ordering is restored by the wizard session lock.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("portal bot authorized")

	cleanup := time.NewTicker(5 * time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			if removed := b.wizards.Cleanup(); removed > 0 {
				b.logger.Debug().Int("removed", removed).Msg("expired booking sessions dropped")
			}
		case update := <-updates:
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			updateCtx := l.WithContext(ctx)
			go b.handleUpdate(updateCtx, &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	defer func() {
		if r := recover(); r != nil {
			l.Error().Interface("panic", r).Msg("update handler panicked")
		}
	}()

	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Str("text", update.Message.Text).
			Msg("handling message")
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.RequestTimeout)
	defer cancel()

	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID

	switch {
	case strings.HasPrefix(text, "/start"):
		b.wizards.Delete(chatID)
		b.reply(chatID, "Welcome to the patient portal.\n\n"+
			"/doctors — find a doctor\n"+
			"/book — book an appointment\n"+
			"/appointments — your appointments\n"+
			"/export — download your history\n"+
			"/link <token> — link your patient account\n"+
			"/logout — unlink")
	case strings.HasPrefix(text, "/link"):
		b.handleLink(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/link")))
	case strings.HasPrefix(text, "/logout"):
		b.handleLogout(ctx, chatID)
	case strings.HasPrefix(text, "/doctors"):
		b.handleDoctors(ctx, chatID)
	case strings.HasPrefix(text, "/book"):
		b.startBooking(ctx, chatID)
	case strings.HasPrefix(text, "/appointments"):
		b.handleAppointments(ctx, chatID)
	case strings.HasPrefix(text, "/export"):
		b.handleExport(ctx, chatID)
	case strings.HasPrefix(text, "/cancel"):
		b.wizards.Delete(chatID)
		b.reply(chatID, "Booking cancelled.")
	case strings.HasPrefix(text, "/help"):
		b.reply(chatID, "Commands: /doctors, /book, /appointments, /export, /link, /logout, /cancel")
	default:
		b.handleWizardText(ctx, chatID, text)
	}
}

func (b *Bot) handleLink(ctx context.Context, chatID int64, token string) {
	if token == "" {
		b.reply(chatID, "Usage: /link <token>\nGet your token from the portal's profile page.")
		return
	}
	if err := b.sessions.Link(ctx, chatID, token, ""); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("link failed")
		b.reply(chatID, "Could not save your session. Try again.")
		return
	}
	b.reply(chatID, "Account linked. You can now book appointments.")
}

func (b *Bot) handleLogout(ctx context.Context, chatID int64) {
	if err := b.sessions.Unlink(ctx, chatID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("unlink failed")
	}
	b.wizards.Delete(chatID)
	b.reply(chatID, "Account unlinked.")
}

// handleSessionExpired is the single place expired credentials funnel to:
// the stored token is dropped and the patient is asked to re-link.
func (b *Bot) handleSessionExpired(ctx context.Context, chatID int64) {
	if err := b.sessions.Unlink(ctx, chatID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("unlink after expiry failed")
	}
	b.reply(chatID, "Your session has expired. Use /link <token> to sign in again.")
}

// Notify sends a plain message outside any conversation flow, used by the
// reminder service.
func (b *Bot) Notify(chatID int64, text string) error {
	_, err := b.tg.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (b *Bot) answerCallback(id string) {
	_, _ = b.tg.Request(tgbotapi.NewCallback(id, ""))
}
