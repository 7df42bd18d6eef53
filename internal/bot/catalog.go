package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/lawclinic/helpdesk-bot/internal/action"
	"github.com/lawclinic/helpdesk-bot/internal/convo"
	"github.com/lawclinic/helpdesk-bot/internal/models"
	"github.com/lawclinic/helpdesk-bot/internal/taxonomy"
	"github.com/lawclinic/helpdesk-bot/internal/translator"
)

// Category and FAQ administration.

const faqButtonLength = 60

func (b *Bot) button(t *turn, labelKey string, tok action.Token) Button {
	return Button{Text: b.translator.T(b.chatLocale(t), labelKey, nil), Data: tok.String()}
}

func (b *Bot) cancelRow(t *turn) []Button {
	return []Button{b.button(t, "ctl_cancel", action.New(action.Cancel))}
}

func (b *Bot) handleAddCategory(ctx context.Context, t *turn) error {
	if err := requireAdmin(t); err != nil {
		return err
	}
	if err := b.trackers.Admin.Begin(ctx, t.user.TelegramID, convo.FlowEnteringCategoryName, convo.Payload{}); err != nil {
		return err
	}
	return b.reply(ctx, t, "enter_category_name", nil, &Markup{Inline: [][]Button{b.cancelRow(t)}})
}

func (b *Bot) handleAddFAQ(ctx context.Context, t *turn) error {
	if err := requireAdmin(t); err != nil {
		return err
	}
	if err := b.trackers.Admin.Begin(ctx, t.user.TelegramID, convo.FlowEnteringFAQQuestion, convo.Payload{}); err != nil {
		return err
	}
	return b.reply(ctx, t, "enter_faq_question", nil, &Markup{Inline: [][]Button{b.cancelRow(t)}})
}

// handleListCategories offers every category as a button of kind.
func (b *Bot) handleListCategories(ctx context.Context, t *turn, promptKey string, kind action.Kind) error {
	if err := requireAdmin(t); err != nil {
		return err
	}
	rows, err := b.categoryButtons(ctx, t, func(c models.Category) action.Token { return action.New(kind, c.ID) })
	if err != nil {
		return err
	}
	if rows == nil {
		return b.reply(ctx, t, "no_categories_admin", nil, nil)
	}
	return b.reply(ctx, t, promptKey, nil, &Markup{Inline: rows})
}

// categoryButtons returns one row per category plus a cancel row, or nil
// when there are no categories.
func (b *Bot) categoryButtons(ctx context.Context, t *turn, token func(models.Category) action.Token) ([][]Button, error) {
	categories, err := b.taxonomy.Categories(ctx)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return nil, nil
	}
	rows := make([][]Button, 0, len(categories)+1)
	for _, c := range categories {
		rows = append(rows, []Button{{Text: c.Name + " " + c.Hashtag, Data: token(c).String()}})
	}
	return append(rows, b.cancelRow(t)), nil
}

func (b *Bot) onTaxonomyState(ctx context.Context, t *turn, st convo.State) (bool, error) {
	id := t.user.TelegramID
	text := strings.TrimSpace(t.in.Text)

	switch st.Flow {
	case convo.FlowEnteringCategoryName:
		if err := b.taxonomy.CheckName(ctx, text, 0); err != nil {
			if errors.Is(err, taxonomy.ErrNameTaken) {
				return true, b.reply(ctx, t, "category_name_taken", nil, nil)
			}
			return true, err
		}
		if _, err := b.trackers.Admin.Advance(ctx, id, convo.FlowEnteringCategoryName, convo.FlowEnteringCategoryHashtag,
			func(p *convo.Payload) { p.Name = text }); err != nil {
			return true, err
		}
		return true, b.reply(ctx, t, "enter_category_hashtag", nil, nil)

	case convo.FlowEnteringCategoryHashtag:
		c, err := b.taxonomy.CreateCategory(ctx, st.Payload.Name, text)
		switch {
		case errors.Is(err, taxonomy.ErrHashtagTaken):
			return true, b.reply(ctx, t, "category_hashtag_taken", nil, nil)
		case errors.Is(err, taxonomy.ErrNameTaken):
			b.endAdminFlow(ctx, id)
			return true, b.reply(ctx, t, "category_name_taken", nil, nil)
		case err != nil:
			return true, err
		}
		b.endAdminFlow(ctx, id)
		return true, b.reply(ctx, t, "category_created", translator.Args{"Name": c.Name, "Hashtag": c.Hashtag}, nil)

	case convo.FlowEnteringNewCategoryName:
		old, err := b.taxonomy.RenameCategory(ctx, st.Payload.CategoryID, text)
		if errors.Is(err, taxonomy.ErrNameTaken) {
			return true, b.reply(ctx, t, "category_name_taken", nil, nil)
		}
		b.endAdminFlow(ctx, id)
		if err != nil {
			return true, err
		}
		return true, b.reply(ctx, t, "category_renamed", translator.Args{"Old": old, "New": text}, nil)

	case convo.FlowEnteringNewCategoryHashtag:
		old, err := b.taxonomy.ChangeHashtag(ctx, st.Payload.CategoryID, text)
		if errors.Is(err, taxonomy.ErrHashtagTaken) {
			return true, b.reply(ctx, t, "category_hashtag_taken", nil, nil)
		}
		b.endAdminFlow(ctx, id)
		if err != nil {
			return true, err
		}
		return true, b.reply(ctx, t, "category_hashtag_changed",
			translator.Args{"Old": old, "New": taxonomy.NormalizeHashtag(text)}, nil)

	case convo.FlowEnteringFAQQuestion:
		if text == "" {
			return true, models.ErrValidation
		}
		if _, err := b.trackers.Admin.Advance(ctx, id, convo.FlowEnteringFAQQuestion, convo.FlowEnteringFAQAnswer,
			func(p *convo.Payload) { p.Question = text }); err != nil {
			return true, err
		}
		return true, b.reply(ctx, t, "enter_faq_answer", nil, nil)

	case convo.FlowEnteringFAQAnswer:
		if text == "" {
			return true, models.ErrValidation
		}
		rows, err := b.categoryButtons(ctx, t, func(c models.Category) action.Token {
			return action.New(action.SelectFAQCategory, c.ID)
		})
		if err != nil {
			return true, err
		}
		if rows == nil {
			b.endAdminFlow(ctx, id)
			return true, b.reply(ctx, t, "no_categories_admin", nil, nil)
		}
		if _, err := b.trackers.Admin.Advance(ctx, id, convo.FlowEnteringFAQAnswer, convo.FlowPickingFAQCategory,
			func(p *convo.Payload) { p.Answer = text }); err != nil {
			return true, err
		}
		return true, b.reply(ctx, t, "choose_faq_category", nil, &Markup{Inline: rows})

	case convo.FlowEnteringNewFAQQuestion:
		err := b.taxonomy.UpdateFAQQuestion(ctx, st.Payload.FAQID, text)
		if errors.Is(err, models.ErrValidation) {
			return true, err
		}
		b.endAdminFlow(ctx, id)
		if err != nil {
			return true, err
		}
		return true, b.reply(ctx, t, "faq_question_updated", nil, nil)

	case convo.FlowEnteringNewFAQAnswer:
		err := b.taxonomy.UpdateFAQAnswer(ctx, st.Payload.FAQID, text)
		if errors.Is(err, models.ErrValidation) {
			return true, err
		}
		b.endAdminFlow(ctx, id)
		if err != nil {
			return true, err
		}
		return true, b.reply(ctx, t, "faq_answer_updated", nil, nil)
	}
	return false, nil
}

func (b *Bot) onTaxonomyButton(ctx context.Context, t *turn, tok action.Token) error {
	if err := requireAdmin(t); err != nil {
		return err
	}
	locale := b.chatLocale(t)

	switch tok.Kind {
	case action.EditCategory:
		c, err := b.taxonomy.Category(ctx, tok.ID)
		if err != nil {
			return err
		}
		b.replace(ctx, t, b.translator.T(locale, "edit_category_menu", translator.Args{"Name": c.Name, "Hashtag": c.Hashtag}),
			[][]Button{
				{b.button(t, "ctl_edit_name", action.New(action.EditCategoryName, c.ID))},
				{b.button(t, "ctl_edit_hashtag", action.New(action.EditCategoryHashtag, c.ID))},
				b.cancelRow(t),
			})

	case action.EditCategoryName, action.EditCategoryHashtag:
		c, err := b.taxonomy.Category(ctx, tok.ID)
		if err != nil {
			return err
		}
		flow, key, current := convo.FlowEnteringNewCategoryName, "enter_new_category_name", c.Name
		if tok.Kind == action.EditCategoryHashtag {
			flow, key, current = convo.FlowEnteringNewCategoryHashtag, "enter_new_category_hashtag", c.Hashtag
		}
		if err := b.trackers.Admin.Begin(ctx, t.user.TelegramID, flow, convo.Payload{CategoryID: c.ID}); err != nil {
			return err
		}
		b.retire(ctx, t, "", nil)
		return b.reply(ctx, t, key, translator.Args{"Current": current}, nil)

	case action.DeleteCategory:
		c, err := b.taxonomy.Category(ctx, tok.ID)
		if err != nil {
			return err
		}
		b.replace(ctx, t, b.translator.T(locale, "confirm_delete_category", translator.Args{"Name": c.Name, "Hashtag": c.Hashtag}),
			[][]Button{
				{b.button(t, "ctl_confirm_delete", action.New(action.ConfirmDeleteCategory, c.ID))},
				b.cancelRow(t),
			})

	case action.ConfirmDeleteCategory:
		c, err := b.taxonomy.Category(ctx, tok.ID)
		if err != nil {
			return err
		}
		deleted, err := b.taxonomy.DeleteCategory(ctx, c.ID)
		var blocked *models.ActiveRequestsError
		if errors.As(err, &blocked) {
			b.replace(ctx, t, b.translator.T(locale, "category_delete_blocked",
				translator.Args{"Name": c.Name, "Count": blocked.Count}), nil)
			return nil
		}
		if err != nil {
			return err
		}
		b.replace(ctx, t, b.translator.T(locale, "category_deleted", translator.Args{"Name": c.Name, "FAQs": deleted}), nil)

	case action.SelectFAQCategory:
		st, ok, err := b.trackers.Admin.Current(ctx, t.user.TelegramID)
		if err != nil {
			return err
		}
		if !ok || st.Flow != convo.FlowPickingFAQCategory {
			return models.ErrStateMismatch
		}
		c, err := b.taxonomy.Category(ctx, tok.ID)
		if err != nil {
			return err
		}
		if _, err := b.taxonomy.CreateFAQ(ctx, st.Payload.Question, st.Payload.Answer, c.ID); err != nil {
			return err
		}
		b.endAdminFlow(ctx, t.user.TelegramID)
		b.replace(ctx, t, b.translator.T(locale, "faq_created", translator.Args{"Category": c.Name}), nil)

	case action.EditFAQSelectCategory, action.DeleteFAQSelectCategory:
		faqs, err := b.taxonomy.FAQs(ctx, tok.ID)
		if err != nil {
			return err
		}
		if len(faqs) == 0 {
			b.replace(ctx, t, b.translator.T(locale, "no_faqs_in_category", nil), nil)
			return nil
		}
		next, key := action.EditFAQ, "choose_faq_edit"
		if tok.Kind == action.DeleteFAQSelectCategory {
			next, key = action.DeleteFAQ, "choose_faq_delete"
		}
		rows := make([][]Button, 0, len(faqs)+1)
		for _, f := range faqs {
			rows = append(rows, []Button{{
				Text: translator.Truncate(f.Question, faqButtonLength),
				Data: action.New(next, f.ID).String(),
			}})
		}
		b.replace(ctx, t, b.translator.T(locale, key, nil), append(rows, b.cancelRow(t)))

	case action.EditFAQ:
		f, err := b.taxonomy.FAQ(ctx, tok.ID)
		if err != nil {
			return err
		}
		b.replace(ctx, t, b.translator.T(locale, "edit_faq_menu", translator.Args{"Question": f.Question}),
			[][]Button{
				{b.button(t, "ctl_edit_question", action.New(action.EditFAQQuestion, f.ID))},
				{b.button(t, "ctl_edit_answer", action.New(action.EditFAQAnswer, f.ID))},
				{b.button(t, "ctl_edit_category", action.New(action.EditFAQCategory, f.ID))},
				b.cancelRow(t),
			})

	case action.EditFAQQuestion, action.EditFAQAnswer:
		f, err := b.taxonomy.FAQ(ctx, tok.ID)
		if err != nil {
			return err
		}
		flow, key, current := convo.FlowEnteringNewFAQQuestion, "enter_new_faq_question", f.Question
		if tok.Kind == action.EditFAQAnswer {
			flow, key, current = convo.FlowEnteringNewFAQAnswer, "enter_new_faq_answer", f.Answer
		}
		if err := b.trackers.Admin.Begin(ctx, t.user.TelegramID, flow, convo.Payload{FAQID: f.ID}); err != nil {
			return err
		}
		b.retire(ctx, t, "", nil)
		return b.reply(ctx, t, key, translator.Args{"Current": current}, nil)

	case action.EditFAQCategory:
		f, err := b.taxonomy.FAQ(ctx, tok.ID)
		if err != nil {
			return err
		}
		current := "—"
		if c, err := b.taxonomy.Category(ctx, f.CategoryID); err == nil {
			current = c.Name
		}
		rows, err := b.categoryButtons(ctx, t, func(c models.Category) action.Token {
			return action.New(action.SetFAQCategory, f.ID, c.ID)
		})
		if err != nil {
			return err
		}
		b.replace(ctx, t, b.translator.T(locale, "choose_new_faq_category", translator.Args{"Current": current}), rows)

	case action.SetFAQCategory:
		c, err := b.taxonomy.SetFAQCategory(ctx, tok.ID, tok.ID2)
		if err != nil {
			return err
		}
		b.replace(ctx, t, b.translator.T(locale, "faq_category_updated", translator.Args{"Category": c.Name}), nil)

	case action.DeleteFAQ:
		f, err := b.taxonomy.FAQ(ctx, tok.ID)
		if err != nil {
			return err
		}
		b.replace(ctx, t, b.translator.T(locale, "confirm_delete_faq", translator.Args{"Question": f.Question}),
			[][]Button{
				{b.button(t, "ctl_confirm_delete", action.New(action.ConfirmDeleteFAQ, f.ID))},
				b.cancelRow(t),
			})

	case action.ConfirmDeleteFAQ:
		if err := b.taxonomy.DeleteFAQ(ctx, tok.ID); err != nil {
			return err
		}
		b.replace(ctx, t, b.translator.T(locale, "faq_deleted", nil), nil)
	}
	return nil
}

// handleCancelButton drops the admin flow started from an inline menu.
func (b *Bot) handleCancelButton(ctx context.Context, t *turn) error {
	res, err := b.engine.AbandonReason(ctx, t.user.TelegramID)
	if err != nil {
		return err
	}
	b.deliver(ctx, res.Notices)
	if err := b.trackers.Admin.End(ctx, t.user.TelegramID); err != nil {
		return err
	}
	b.replace(ctx, t, b.translator.T(b.chatLocale(t), "operation_cancelled", nil), nil)
	return nil
}

func (b *Bot) endAdminFlow(ctx context.Context, adminID int64) {
	if err := b.trackers.Admin.End(ctx, adminID); err != nil {
		slog.WarnContext(ctx, "failed to end admin flow", "error", err)
	}
}
