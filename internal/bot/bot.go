package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/lawclinic/helpdesk-bot/internal/convo"
	"github.com/lawclinic/helpdesk-bot/internal/db"
	"github.com/lawclinic/helpdesk-bot/internal/lifecycle"
	"github.com/lawclinic/helpdesk-bot/internal/logger"
	"github.com/lawclinic/helpdesk-bot/internal/models"
	"github.com/lawclinic/helpdesk-bot/internal/taxonomy"
	"github.com/lawclinic/helpdesk-bot/internal/translator"
)

type Bot struct {
	api         *tgbotapi.BotAPI
	messenger   Messenger
	store       db.Store
	trackers    convo.Trackers
	engine      *lifecycle.Engine
	taxonomy    *taxonomy.Service
	translator  *translator.Translator
	adminChat   int64 // administrators channel
	studentChat int64 // responder pool channel
}

type Config struct {
	Token       string
	AdminChat   int64
	StudentChat int64
}

func New(cfg Config, store db.Store, trackers convo.Trackers, trans *translator.Translator) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	slog.Info("authorized on account", "username", api.Self.UserName)

	b := NewWithMessenger(cfg, &telegram{api: api}, store, trackers, trans)
	b.api = api
	return b, nil
}

// NewWithMessenger builds a bot that sends through m. Run is unavailable;
// updates are fed with Handle.
func NewWithMessenger(cfg Config, m Messenger, store db.Store, trackers convo.Trackers, trans *translator.Translator) *Bot {
	return &Bot{
		messenger: m,
		store:     store,
		trackers:  trackers,
		engine: lifecycle.New(store, trackers, lifecycle.Config{
			AdminChat:   cfg.AdminChat,
			StudentChat: cfg.StudentChat,
		}),
		taxonomy:    taxonomy.NewService(store),
		translator:  trans,
		adminChat:   cfg.AdminChat,
		studentChat: cfg.StudentChat,
	}
}

// Run polls for updates and handles them one at a time until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot has no telegram connection")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			in, ok := inboundFromUpdate(update)
			if !ok {
				continue
			}
			b.Handle(ctx, in)
		}
	}
}

// Handle processes one inbound unit to completion. Failures, panics
// included, end in a localized reply and never escape.
func (b *Bot) Handle(ctx context.Context, in Inbound) {
	ctx = logger.WithFields(ctx, logger.Fields{
		UpdateID:  uuid.NewString(),
		ActorID:   in.From.TelegramID,
		ChatID:    in.ChatID,
		Component: "dispatch",
	})
	t := &turn{in: in, locale: b.translator.DefaultLocale()}

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "handler panicked", "panic", r, "stack", string(debug.Stack()))
			b.fail(ctx, t, fmt.Errorf("panic: %v", r))
		}
		b.ack(ctx, t, "")
	}()

	if err := b.dispatch(ctx, t); err != nil {
		b.fail(ctx, t, err)
	}
}

// turn is the per-update dispatch state.
type turn struct {
	in     Inbound
	user   *models.User
	locale string
	acked  bool
}

// chatLocale is the locale of replies posted to the chat the update came
// from. Group chats are read by many people and use the default locale.
func (b *Bot) chatLocale(t *turn) string {
	if t.in.Private {
		return t.locale
	}
	return b.translator.DefaultLocale()
}

// fail maps err to a localized notice. Button presses get it as a toast,
// everything else as a reply.
func (b *Bot) fail(ctx context.Context, t *turn, err error) {
	var key string
	switch {
	case errors.Is(err, models.ErrNotFound):
		key = "not_found"
	case errors.Is(err, models.ErrStatusMismatch):
		key = "already_handled"
	case errors.Is(err, models.ErrStateMismatch):
		key = "start_over"
	case errors.Is(err, models.ErrUnauthorized):
		key = "not_allowed"
		logger.Audit(ctx, "unauthorized", "command", t.in.Command, "data", t.in.Data)
	case errors.Is(err, models.ErrAssignmentBusy):
		key = "assignment_busy"
	case errors.Is(err, models.ErrSubmissionLimit):
		key = "submission_limit"
	case errors.Is(err, models.ErrValidation):
		key = "empty_input"
	default:
		key = "error_general"
		slog.ErrorContext(ctx, "handler failed", "error", err)
	}
	if key != "error_general" {
		slog.InfoContext(ctx, "request refused", "reason", key, "error", err)
	}

	if t.in.Kind == KindButton && !t.acked {
		b.ack(ctx, t, b.translator.T(t.locale, key, nil))
		return
	}
	if _, sendErr := b.messenger.Send(ctx, t.in.ChatID, b.translator.T(b.chatLocale(t), key, nil), nil); sendErr != nil {
		slog.ErrorContext(ctx, "failed to send error notice", "error", sendErr)
	}
}

// ack answers the pressed button once.
func (b *Bot) ack(ctx context.Context, t *turn, text string) {
	if t.in.Kind != KindButton || t.acked {
		return
	}
	t.acked = true
	if err := b.messenger.AnswerCallback(ctx, t.in.CallbackID, text); err != nil {
		slog.WarnContext(ctx, "failed to answer callback", "error", err)
	}
}

// reply sends key to the chat of the update.
func (b *Bot) reply(ctx context.Context, t *turn, key string, args translator.Args, markup *Markup) error {
	_, err := b.messenger.Send(ctx, t.in.ChatID, b.translator.T(b.chatLocale(t), key, args), markup)
	return err
}

// replace rewrites the message carrying the pressed button. When the edit
// fails the text is sent as a new message.
func (b *Bot) replace(ctx context.Context, t *turn, text string, inline [][]Button) {
	err := b.messenger.Edit(ctx, t.in.Message, text, inline)
	if err == nil {
		return
	}
	slog.WarnContext(ctx, "failed to edit message, sending a new one", "error", err)

	var markup *Markup
	if len(inline) > 0 {
		markup = &Markup{Inline: inline}
	}
	if _, err := b.messenger.Send(ctx, t.in.Message.ChatID, text, markup); err != nil {
		slog.ErrorContext(ctx, "failed to send replacement message", "error", err)
	}
}

// retire removes the buttons from the pressed message and appends the
// rendered mark. When the edit fails the mark alone is sent instead.
func (b *Bot) retire(ctx context.Context, t *turn, markKey string, args translator.Args) {
	mark := ""
	if markKey != "" {
		mark = b.translator.T(b.chatLocale(t), markKey, args)
	}
	text := t.in.MessageText
	if mark != "" {
		text = strings.TrimRight(text, "\n") + "\n\n" + mark
	}

	err := b.messenger.Edit(ctx, t.in.Message, text, nil)
	if err == nil {
		return
	}
	slog.WarnContext(ctx, "failed to retire controls", "error", err)
	if mark == "" {
		return
	}
	if _, err := b.messenger.Send(ctx, t.in.Message.ChatID, mark, nil); err != nil {
		slog.ErrorContext(ctx, "failed to send status message", "error", err)
	}
}

// deliver sends the notices produced by a transition. Delivery is best
// effort: the transition has already been stored.
func (b *Bot) deliver(ctx context.Context, notices []lifecycle.Notice) {
	for _, n := range notices {
		locale := b.translator.Resolve(n.Locale)

		var markup *Markup
		switch {
		case len(n.Controls) > 0:
			markup = &Markup{Inline: b.controls(locale, n.Controls)}
		case n.Menu != lifecycle.MenuNone:
			markup = b.keyboard(locale, menus[n.Menu])
		}

		if _, err := b.messenger.Send(ctx, n.ChatID, b.translator.T(locale, n.Key, n.Args), markup); err != nil {
			slog.WarnContext(ctx, "failed to deliver notice", "key", n.Key, "chat", n.ChatID, "error", err)
		}
	}
}

func (b *Bot) controls(locale string, rows [][]lifecycle.Control) [][]Button {
	out := make([][]Button, 0, len(rows))
	for _, row := range rows {
		buttons := make([]Button, 0, len(row))
		for _, c := range row {
			buttons = append(buttons, Button{Text: b.translator.T(locale, c.Label, nil), Data: c.Token.String()})
		}
		out = append(out, buttons)
	}
	return out
}
