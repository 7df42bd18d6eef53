package bot

import (
	"context"
	"log/slog"

	"github.com/lawclinic/helpdesk-bot/internal/action"
	"github.com/lawclinic/helpdesk-bot/internal/lifecycle"
	"github.com/lawclinic/helpdesk-bot/internal/logger"
	"github.com/lawclinic/helpdesk-bot/internal/models"
)

// Reply keyboards, as rows of catalog keys.
var (
	mainMenu          = [][]string{{"btn_ask_question", "btn_faq"}, {"btn_my_requests"}, {"btn_help", "btn_language"}}
	studentMenu       = [][]string{{"btn_current_assignment"}, {"btn_reject_assignment"}, {"btn_help", "btn_language"}}
	answerConfirmMenu = [][]string{{"btn_confirm_answer", "btn_edit_answer"}, {"btn_reject_assignment"}}
	requestMenu       = [][]string{{"btn_confirm", "btn_edit"}, {"btn_back"}}
	backMenu          = [][]string{{"btn_back"}}
)

var menus = map[lifecycle.Menu][][]string{
	lifecycle.MenuMain:          mainMenu,
	lifecycle.MenuStudent:       studentMenu,
	lifecycle.MenuAnswerConfirm: answerConfirmMenu,
}

// labelKeys are the reply-keyboard labels recognized in free text.
var labelKeys = []string{
	"btn_ask_question",
	"btn_faq",
	"btn_my_requests",
	"btn_help",
	"btn_language",
	"btn_back",
	"btn_confirm",
	"btn_edit",
	"btn_current_assignment",
	"btn_confirm_answer",
	"btn_edit_answer",
	"btn_reject_assignment",
}

func (b *Bot) keyboard(locale string, rows [][]string) *Markup {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		labels := make([]string, 0, len(row))
		for _, key := range row {
			labels = append(labels, b.translator.T(locale, key, nil))
		}
		out = append(out, labels)
	}
	return &Markup{Reply: out}
}

// homeMenu is the keyboard shown when no flow is in progress.
func (b *Bot) homeMenu(t *turn) *Markup {
	if !t.in.Private {
		return nil
	}
	if t.user.IsStudent() && t.user.CurrentAssignmentID != nil {
		return b.keyboard(t.locale, studentMenu)
	}
	return b.keyboard(t.locale, mainMenu)
}

// dispatch routes the update to exactly one handler. Buttons and commands
// are unambiguous. Free text is matched against the labels of the user's
// locale before any conversation state is consulted, so a leftover flow
// cannot swallow a menu press.
func (b *Bot) dispatch(ctx context.Context, t *turn) error {
	user, err := b.store.EnsureUser(ctx, &t.in.From)
	if err != nil {
		return err
	}
	t.user = user
	t.locale = b.translator.Resolve(user.Language, t.in.LanguageCode)

	switch t.in.Kind {
	case KindButton:
		return b.onButton(ctx, t)
	case KindCommand:
		return b.onCommand(ctx, t)
	}

	if key, ok := b.matchLabel(t); ok {
		return b.onLabel(ctx, t, key)
	}
	if handled, err := b.onState(ctx, t); handled || err != nil {
		return err
	}
	if t.in.Private {
		return b.reply(ctx, t, "unhandled", nil, nil)
	}
	return nil
}

func (b *Bot) matchLabel(t *turn) (string, bool) {
	if !t.in.Private {
		return "", false
	}
	for _, key := range labelKeys {
		if t.in.Text == b.translator.T(t.locale, key, nil) {
			return key, true
		}
	}
	return "", false
}

func (b *Bot) onCommand(ctx context.Context, t *turn) error {
	switch t.in.Command {
	case "start":
		return b.handleStart(ctx, t)
	case "help":
		return b.handleHelp(ctx, t)
	case "cancel":
		return b.handleCancel(ctx, t)
	case "language":
		return b.handleLanguageMenu(ctx, t)
	case "getadmin":
		return b.handleGetAdmin(ctx, t)
	case "approve":
		return b.handleApproveStudent(ctx, t)
	case "revoke":
		return b.handleRevokeStudent(ctx, t)
	case "add_category":
		return b.handleAddCategory(ctx, t)
	case "edit_category":
		return b.handleListCategories(ctx, t, "choose_category_edit", action.EditCategory)
	case "delete_category":
		return b.handleListCategories(ctx, t, "choose_category_delete", action.DeleteCategory)
	case "add_faq":
		return b.handleAddFAQ(ctx, t)
	case "edit_faq":
		return b.handleListCategories(ctx, t, "choose_faq_category_edit", action.EditFAQSelectCategory)
	case "delete_faq":
		return b.handleListCategories(ctx, t, "choose_faq_category_delete", action.DeleteFAQSelectCategory)
	}
	if t.in.Private {
		return b.reply(ctx, t, "unhandled", nil, nil)
	}
	return nil
}

func (b *Bot) onLabel(ctx context.Context, t *turn, key string) error {
	switch key {
	case "btn_ask_question":
		return b.handleAskQuestion(ctx, t)
	case "btn_faq":
		return b.handleFAQ(ctx, t)
	case "btn_my_requests":
		return b.handleMyRequests(ctx, t)
	case "btn_help":
		return b.handleHelp(ctx, t)
	case "btn_language":
		return b.handleLanguageMenu(ctx, t)
	case "btn_back":
		return b.handleBack(ctx, t)
	case "btn_confirm":
		return b.handleConfirmRequest(ctx, t)
	case "btn_edit":
		return b.handleEditRequest(ctx, t)
	case "btn_current_assignment":
		return b.handleCurrentAssignment(ctx, t)
	case "btn_confirm_answer":
		return b.handleConfirmAnswer(ctx, t)
	case "btn_edit_answer":
		return b.handleReviseAnswer(ctx, t)
	case "btn_reject_assignment":
		return b.handleRejectCurrent(ctx, t)
	}
	return nil
}

// onState routes free text by the sender's active flow. Requester and
// student flows only live in private chats; admin flows follow the admin
// into the administrators channel.
func (b *Bot) onState(ctx context.Context, t *turn) (bool, error) {
	id := t.user.TelegramID

	if t.in.Private {
		st, ok, err := b.trackers.Requester.Current(ctx, id)
		if err != nil {
			return true, err
		}
		if ok {
			return b.onRequesterState(ctx, t, st)
		}
	}

	st, ok, err := b.trackers.Admin.Current(ctx, id)
	if err != nil {
		return true, err
	}
	if ok {
		return b.onAdminState(ctx, t, st)
	}

	if t.in.Private {
		st, ok, err := b.trackers.Student.Current(ctx, id)
		if err != nil {
			return true, err
		}
		if ok {
			return b.onStudentState(ctx, t, st)
		}
	}
	return false, nil
}

func (b *Bot) onButton(ctx context.Context, t *turn) error {
	tok, err := action.Parse(t.in.Data)
	if err != nil {
		slog.WarnContext(ctx, "ignoring malformed button", "data", t.in.Data, "error", err)
		return nil
	}

	switch tok.Kind {
	case action.ApproveRequest, action.DeclineRequest, action.ApproveAnswer, action.DeclineAnswer,
		action.TakeRequest, action.EditAnswer, action.RejectAssignment:
		ctx = logger.WithFields(ctx, logger.Fields{RequestID: tok.ID})
	}

	switch tok.Kind {
	case action.ApproveRequest:
		return b.handleApproveRequest(ctx, t, tok.ID)
	case action.DeclineRequest:
		return b.handleDeclineRequest(ctx, t, tok.ID)
	case action.ApproveAnswer:
		return b.handleApproveAnswer(ctx, t, tok.ID)
	case action.DeclineAnswer:
		return b.handleDeclineAnswer(ctx, t, tok.ID)
	case action.TakeRequest:
		return b.handleTake(ctx, t, tok.ID)
	case action.EditAnswer:
		return b.handleEditAnswer(ctx, t, tok.ID)
	case action.RejectAssignment:
		return b.handleRejectAssignment(ctx, t, tok.ID)
	case action.Language:
		return b.handleSetLanguage(ctx, t, tok.Locale)
	case action.Cancel:
		return b.handleCancelButton(ctx, t)
	}
	return b.onTaxonomyButton(ctx, t, tok)
}

// requireAdmin fails closed for anyone but an administrator.
func requireAdmin(t *turn) error {
	if !t.user.IsAdmin() {
		return models.ErrUnauthorized
	}
	return nil
}
