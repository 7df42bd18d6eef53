package bot

import (
	"context"

	"github.com/lawclinic/helpdesk-bot/internal/action"
	"github.com/lawclinic/helpdesk-bot/internal/logger"
	"github.com/lawclinic/helpdesk-bot/internal/models"
)

func (b *Bot) handleLanguageMenu(ctx context.Context, t *turn) error {
	row := make([]Button, 0, len(b.translator.Locales()))
	for _, locale := range b.translator.Locales() {
		row = append(row, Button{
			Text: b.translator.T(locale, "language_name", nil),
			Data: action.NewLanguage(locale).String(),
		})
	}
	return b.reply(ctx, t, "language_select", nil, &Markup{Inline: [][]Button{row}})
}

// handleSetLanguage stores the chosen locale and resends the menu so that
// the reply keyboard labels follow the new language.
func (b *Bot) handleSetLanguage(ctx context.Context, t *turn, locale string) error {
	if !b.translator.Supported(locale) {
		return models.ErrNotFound
	}
	if err := b.store.SetUserLanguage(ctx, t.user.TelegramID, locale); err != nil {
		return err
	}
	logger.Audit(ctx, "language_changed", "user_id", t.user.TelegramID, "locale", locale)

	t.user.Language = locale
	t.locale = locale
	b.replace(ctx, t, b.translator.T(locale, "language_changed", nil), nil)
	if !t.in.Private {
		return nil
	}
	return b.reply(ctx, t, "main_menu", nil, b.homeMenu(t))
}
