package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/lawclinic/helpdesk-bot/internal/convo"
	"github.com/lawclinic/helpdesk-bot/internal/models"
	"github.com/lawclinic/helpdesk-bot/internal/translator"
)

func (b *Bot) handleStart(ctx context.Context, t *turn) error {
	if err := b.trackers.Requester.End(ctx, t.user.TelegramID); err != nil {
		return err
	}

	key := "welcome_guest"
	switch {
	case t.user.IsAdmin():
		key = "welcome_admin"
	case t.user.IsStudent():
		key = "welcome_student"
	}
	return b.reply(ctx, t, key, nil, b.homeMenu(t))
}

func (b *Bot) handleHelp(ctx context.Context, t *turn) error {
	key := "help_user"
	switch {
	case t.user.IsAdmin():
		key = "help_admin"
	case t.user.IsStudent():
		key = "help_student"
	}
	return b.reply(ctx, t, key, nil, b.homeMenu(t))
}

// handleCancel drops every flow of the sender. An abandoned decline puts
// the request's controls back in the administrators channel.
func (b *Bot) handleCancel(ctx context.Context, t *turn) error {
	res, err := b.engine.AbandonReason(ctx, t.user.TelegramID)
	if err != nil {
		return err
	}
	b.deliver(ctx, res.Notices)
	if err := b.trackers.EndAll(ctx, t.user.TelegramID); err != nil {
		return err
	}
	return b.reply(ctx, t, "operation_cancelled", nil, b.homeMenu(t))
}

func (b *Bot) handleBack(ctx context.Context, t *turn) error {
	if err := b.trackers.Requester.End(ctx, t.user.TelegramID); err != nil {
		return err
	}
	return b.reply(ctx, t, "main_menu", nil, b.homeMenu(t))
}

func (b *Bot) handleAskQuestion(ctx context.Context, t *turn) error {
	return b.beginCategoryPick(ctx, t, convo.FlowSelectingCategory, "choose_category")
}

func (b *Bot) handleFAQ(ctx context.Context, t *turn) error {
	return b.beginCategoryPick(ctx, t, convo.FlowSelectingFAQCategory, "faq_choose_category")
}

func (b *Bot) beginCategoryPick(ctx context.Context, t *turn, flow convo.Flow, promptKey string) error {
	categories, err := b.taxonomy.Categories(ctx)
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		return b.reply(ctx, t, "no_categories", nil, b.homeMenu(t))
	}
	if err := b.trackers.Requester.Begin(ctx, t.user.TelegramID, flow, convo.Payload{}); err != nil {
		return err
	}
	return b.reply(ctx, t, promptKey, nil, b.categoryKeyboard(t, categories))
}

// categoryKeyboard lays category names out two per row, followed by Back.
func (b *Bot) categoryKeyboard(t *turn, categories []models.Category) *Markup {
	rows := make([][]string, 0, len(categories)/2+2)
	for i := 0; i < len(categories); i += 2 {
		row := []string{categories[i].Name}
		if i+1 < len(categories) {
			row = append(row, categories[i+1].Name)
		}
		rows = append(rows, row)
	}
	rows = append(rows, []string{b.translator.T(t.locale, "btn_back", nil)})
	return &Markup{Reply: rows}
}

func (b *Bot) faqKeyboard(t *turn, faqs []models.FAQ) *Markup {
	rows := make([][]string, 0, len(faqs)+1)
	for _, f := range faqs {
		rows = append(rows, []string{f.Question})
	}
	rows = append(rows, []string{b.translator.T(t.locale, "btn_back", nil)})
	return &Markup{Reply: rows}
}

func (b *Bot) onRequesterState(ctx context.Context, t *turn, st convo.State) (bool, error) {
	id := t.user.TelegramID
	text := strings.TrimSpace(t.in.Text)

	switch st.Flow {
	case convo.FlowSelectingCategory:
		category, err := b.store.FindCategoryByName(ctx, text)
		if errors.Is(err, models.ErrNotFound) {
			return true, b.beginCategoryPick(ctx, t, convo.FlowSelectingCategory, "choose_category")
		}
		if err != nil {
			return true, err
		}
		if _, err := b.trackers.Requester.Advance(ctx, id, convo.FlowSelectingCategory, convo.FlowEnteringRequest,
			func(p *convo.Payload) { p.CategoryID = category.ID }); err != nil {
			return true, err
		}
		return true, b.reply(ctx, t, "enter_request_text", translator.Args{"Category": category.Name},
			b.keyboard(t.locale, backMenu))

	case convo.FlowEnteringRequest:
		if text == "" {
			return true, models.ErrValidation
		}
		next, err := b.trackers.Requester.Advance(ctx, id, convo.FlowEnteringRequest, convo.FlowConfirmingRequest,
			func(p *convo.Payload) { p.Text = text })
		if err != nil {
			return true, err
		}
		category, err := b.taxonomy.Category(ctx, next.Payload.CategoryID)
		if err != nil {
			return true, err
		}
		return true, b.reply(ctx, t, "confirm_request",
			translator.Args{"Category": category.Name, "Text": next.Payload.Text},
			b.keyboard(t.locale, requestMenu))

	case convo.FlowSelectingFAQCategory:
		category, err := b.store.FindCategoryByName(ctx, text)
		if errors.Is(err, models.ErrNotFound) {
			return true, b.beginCategoryPick(ctx, t, convo.FlowSelectingFAQCategory, "faq_choose_category")
		}
		if err != nil {
			return true, err
		}
		faqs, err := b.taxonomy.FAQs(ctx, category.ID)
		if err != nil {
			return true, err
		}
		if len(faqs) == 0 {
			return true, b.reply(ctx, t, "faq_empty", nil, nil)
		}
		if _, err := b.trackers.Requester.Advance(ctx, id, convo.FlowSelectingFAQCategory, convo.FlowSelectingFAQ,
			func(p *convo.Payload) { p.CategoryID = category.ID }); err != nil {
			return true, err
		}
		return true, b.reply(ctx, t, "faq_choose_question", nil, b.faqKeyboard(t, faqs))

	case convo.FlowSelectingFAQ:
		faqs, err := b.taxonomy.FAQs(ctx, st.Payload.CategoryID)
		if err != nil {
			return true, err
		}
		for _, f := range faqs {
			if f.Question == text {
				return true, b.reply(ctx, t, "faq_entry",
					translator.Args{"Question": f.Question, "Answer": f.Answer}, nil)
			}
		}
		return true, b.reply(ctx, t, "faq_choose_question", nil, b.faqKeyboard(t, faqs))
	}
	return false, nil
}

func (b *Bot) handleConfirmRequest(ctx context.Context, t *turn) error {
	id := t.user.TelegramID
	st, ok, err := b.trackers.Requester.Current(ctx, id)
	if err != nil {
		return err
	}
	if !ok || st.Flow != convo.FlowConfirmingRequest {
		return models.ErrStateMismatch
	}

	res, err := b.engine.Submit(ctx, t.user, st.Payload.CategoryID, st.Payload.Text)
	switch {
	case errors.Is(err, models.ErrSubmissionLimit):
		if err := b.trackers.Requester.End(ctx, id); err != nil {
			return err
		}
		return b.reply(ctx, t, "submission_limit", nil, b.homeMenu(t))
	case err != nil:
		return err
	}

	b.deliver(ctx, res.Notices)
	return b.reply(ctx, t, "request_submitted", nil, b.homeMenu(t))
}

func (b *Bot) handleEditRequest(ctx context.Context, t *turn) error {
	next, err := b.trackers.Requester.Advance(ctx, t.user.TelegramID, convo.FlowConfirmingRequest, convo.FlowEnteringRequest,
		func(p *convo.Payload) { p.Text = "" })
	if err != nil {
		return err
	}
	category, err := b.taxonomy.Category(ctx, next.Payload.CategoryID)
	if err != nil {
		return err
	}
	return b.reply(ctx, t, "enter_request_text", translator.Args{"Category": category.Name},
		b.keyboard(t.locale, backMenu))
}

func (b *Bot) handleMyRequests(ctx context.Context, t *turn) error {
	requests, err := b.store.ListRequests(ctx, models.RequestFilter{RequesterID: &t.user.TelegramID})
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		return b.reply(ctx, t, "my_requests_empty", nil, b.homeMenu(t))
	}

	names, err := b.categoryNames(ctx)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(b.translator.T(t.locale, "my_requests_header", nil))
	for _, r := range requests {
		sb.WriteString("\n")
		sb.WriteString(b.translator.T(t.locale, "my_request_line", translator.Args{
			"ID":       r.ID,
			"Category": names[r.CategoryID],
			"Status":   b.statusText(t.locale, r.Status),
		}))
	}

	_, err = b.messenger.Send(ctx, t.in.ChatID, sb.String(), b.homeMenu(t))
	return err
}

func (b *Bot) categoryNames(ctx context.Context) (map[int64]string, error) {
	categories, err := b.taxonomy.Categories(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names, nil
}

func (b *Bot) statusText(locale string, s models.RequestStatus) string {
	return b.translator.T(locale, "status_"+string(s), nil)
}
