package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lawclinic/helpdesk-bot/internal/models"
)

// MessageRef identifies a sent message so that it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is an inline button carrying an action token.
type Button struct {
	Text string
	Data string
}

// Markup is the keyboard attached to an outgoing message. At most one of
// the fields is used, in declaration order.
type Markup struct {
	Inline      [][]Button
	Reply       [][]string
	RemoveReply bool
	ForceReply  bool
}

// Messenger is the outbound side of the transport.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, markup *Markup) (MessageRef, error)
	// Edit replaces the text and inline keyboard of a message. A nil
	// keyboard removes the buttons.
	Edit(ctx context.Context, ref MessageRef, text string, inline [][]Button) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type telegram struct {
	api *tgbotapi.BotAPI
}

func (t *telegram) Send(_ context.Context, chatID int64, text string, markup *Markup) (MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		switch {
		case len(markup.Inline) > 0:
			msg.ReplyMarkup = inlineKeyboard(markup.Inline)
		case len(markup.Reply) > 0:
			msg.ReplyMarkup = replyKeyboard(markup.Reply)
		case markup.RemoveReply:
			msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		case markup.ForceReply:
			msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true, Selective: true}
		}
	}

	sent, err := t.api.Send(msg)
	if err != nil {
		return MessageRef{}, fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (t *telegram) Edit(_ context.Context, ref MessageRef, text string, inline [][]Button) error {
	var edit tgbotapi.Chattable
	if len(inline) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, ref.MessageID, text, inlineKeyboard(inline))
	} else {
		edit = tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	}
	if _, err := t.api.Request(edit); err != nil {
		return fmt.Errorf("edit message %d in %d: %w", ref.MessageID, ref.ChatID, err)
	}
	return nil
}

func (t *telegram) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func inlineKeyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

func replyKeyboard(rows [][]string) tgbotapi.ReplyKeyboardMarkup {
	keyboard := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		keyboard = append(keyboard, tgbotapi.NewKeyboardButtonRow(buttons...))
	}
	markup := tgbotapi.NewReplyKeyboard(keyboard...)
	markup.ResizeKeyboard = true
	return markup
}

// Kind classifies an inbound unit.
type Kind int

const (
	KindText Kind = iota
	KindCommand
	KindButton
)

// Inbound is one update reduced to what the dispatcher needs.
type Inbound struct {
	Kind         Kind
	UpdateID     int
	ChatID       int64
	Private      bool
	From         models.User // Language is left empty; see LanguageCode
	LanguageCode string      // reported by the client

	Command string
	Args    string
	Text    string

	Data        string
	CallbackID  string
	Message     MessageRef // message carrying the pressed button
	MessageText string
}

// inboundFromUpdate converts an update. Updates without a sender, such as
// channel posts or inline-mode callbacks, are skipped.
func inboundFromUpdate(u tgbotapi.Update) (Inbound, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return Inbound{}, false
		}
		in := Inbound{
			Kind:        KindButton,
			UpdateID:    u.UpdateID,
			ChatID:      cq.Message.Chat.ID,
			Private:     cq.Message.Chat.IsPrivate(),
			Data:        cq.Data,
			CallbackID:  cq.ID,
			Message:     MessageRef{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID},
			MessageText: cq.Message.Text,
		}
		in.From, in.LanguageCode = profile(cq.From)
		return in, true

	case u.Message != nil:
		msg := u.Message
		if msg.From == nil || msg.Chat == nil {
			return Inbound{}, false
		}
		in := Inbound{
			Kind:     KindText,
			UpdateID: u.UpdateID,
			ChatID:   msg.Chat.ID,
			Private:  msg.Chat.IsPrivate(),
			Text:     msg.Text,
		}
		if msg.IsCommand() {
			in.Kind = KindCommand
			in.Command = msg.Command()
			in.Args = msg.CommandArguments()
		}
		in.From, in.LanguageCode = profile(msg.From)
		return in, true
	}
	return Inbound{}, false
}

func profile(u *tgbotapi.User) (models.User, string) {
	return models.User{
		TelegramID: u.ID,
		Username:   u.UserName,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}, u.LanguageCode
}
