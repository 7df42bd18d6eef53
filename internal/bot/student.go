package bot

import (
	"context"
	"errors"

	"github.com/lawclinic/helpdesk-bot/internal/convo"
	"github.com/lawclinic/helpdesk-bot/internal/models"
	"github.com/lawclinic/helpdesk-bot/internal/translator"
)

// handleTake claims a request from the responder pool broadcast. Only
// presses made in the pool channel count.
func (b *Bot) handleTake(ctx context.Context, t *turn, requestID int64) error {
	if t.in.ChatID != b.studentChat {
		return models.ErrUnauthorized
	}
	res, err := b.engine.Take(ctx, t.user, requestID)
	if err != nil {
		return err
	}

	b.retire(ctx, t, "taken_mark", translator.Args{"Student": t.user.DisplayName()})
	b.deliver(ctx, res.Notices)
	b.ack(ctx, t, b.translator.T(t.locale, "take_done", nil))
	return nil
}

func (b *Bot) onStudentState(ctx context.Context, t *turn, st convo.State) (bool, error) {
	if st.Flow != convo.FlowWritingAnswer {
		return false, nil
	}
	next, err := b.engine.DraftAnswer(ctx, t.user.TelegramID, t.in.Text)
	if err != nil {
		return true, err
	}
	return true, b.reply(ctx, t, "confirm_answer", translator.Args{"Answer": next.Payload.Answer},
		b.keyboard(t.locale, answerConfirmMenu))
}

func (b *Bot) handleConfirmAnswer(ctx context.Context, t *turn) error {
	res, err := b.engine.SubmitAnswer(ctx, t.user)
	if err != nil {
		return err
	}
	b.deliver(ctx, res.Notices)
	return b.reply(ctx, t, "answer_submitted", nil, b.keyboard(t.locale, studentMenu))
}

func (b *Bot) handleReviseAnswer(ctx context.Context, t *turn) error {
	st, err := b.engine.ReviseAnswer(ctx, t.user.TelegramID)
	if err != nil {
		return err
	}
	return b.reply(ctx, t, "write_answer_prompt", translator.Args{"ID": st.Payload.RequestID},
		b.keyboard(t.locale, studentMenu))
}

// handleEditAnswer reopens the answer flow from the controls sent with a
// declined answer.
func (b *Bot) handleEditAnswer(ctx context.Context, t *turn, requestID int64) error {
	r, err := b.engine.EditAnswer(ctx, t.user, requestID)
	if err != nil {
		return err
	}
	b.retire(ctx, t, "", nil)
	return b.reply(ctx, t, "write_answer_prompt", translator.Args{"ID": r.ID}, b.keyboard(t.locale, studentMenu))
}

func (b *Bot) handleRejectAssignment(ctx context.Context, t *turn, requestID int64) error {
	if err := b.rejectAssignment(ctx, t, requestID); err != nil {
		return err
	}
	b.retire(ctx, t, "", nil)
	return nil
}

// handleRejectCurrent gives up the request the student currently holds.
func (b *Bot) handleRejectCurrent(ctx context.Context, t *turn) error {
	if t.user.CurrentAssignmentID == nil {
		return b.reply(ctx, t, "no_assignment", nil, b.homeMenu(t))
	}
	return b.rejectAssignment(ctx, t, *t.user.CurrentAssignmentID)
}

func (b *Bot) rejectAssignment(ctx context.Context, t *turn, requestID int64) error {
	res, err := b.engine.RejectAssignment(ctx, t.user, requestID)
	if err != nil {
		return err
	}
	t.user.CurrentAssignmentID = nil

	b.deliver(ctx, res.Notices)
	return b.reply(ctx, t, "assignment_rejected", translator.Args{"ID": requestID}, b.homeMenu(t))
}

func (b *Bot) handleCurrentAssignment(ctx context.Context, t *turn) error {
	r, err := b.engine.CurrentAssignment(ctx, t.user.TelegramID)
	if errors.Is(err, models.ErrNotFound) {
		return b.reply(ctx, t, "no_assignment", nil, b.homeMenu(t))
	}
	if err != nil {
		return err
	}

	category := "—"
	if c, err := b.taxonomy.Category(ctx, r.CategoryID); err == nil {
		category = c.Name
	}
	return b.reply(ctx, t, "current_assignment", translator.Args{
		"ID":       r.ID,
		"Status":   b.statusText(t.locale, r.Status),
		"Category": category,
		"Text":     r.Text,
	}, b.homeMenu(t))
}
