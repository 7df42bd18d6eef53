package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/lawclinic/helpdesk-bot/internal/convo"
	"github.com/lawclinic/helpdesk-bot/internal/logger"
	"github.com/lawclinic/helpdesk-bot/internal/models"
	"github.com/lawclinic/helpdesk-bot/internal/translator"
)

// handleGetAdmin grants the administrator role to whoever asks from the
// administrators channel.
func (b *Bot) handleGetAdmin(ctx context.Context, t *turn) error {
	if t.in.ChatID != b.adminChat {
		logger.Audit(ctx, "unauthorized", "command", t.in.Command)
		return b.reply(ctx, t, "admin_chat_only", nil, nil)
	}
	if err := b.store.SetUserRole(ctx, t.user.TelegramID, models.RoleAdmin); err != nil {
		return err
	}
	logger.Audit(ctx, "role_granted", "user_id", t.user.TelegramID, "role", string(models.RoleAdmin))
	return b.reply(ctx, t, "became_admin", translator.Args{"Name": t.user.DisplayName()}, nil)
}

func (b *Bot) handleApproveStudent(ctx context.Context, t *turn) error {
	if err := requireAdmin(t); err != nil {
		return err
	}
	id, err := parseID(t.in.Args)
	if err != nil {
		return b.reply(ctx, t, "approve_usage", nil, nil)
	}

	target, err := b.store.EnsureUser(ctx, &models.User{TelegramID: id})
	if err != nil {
		return err
	}
	if target.IsAdmin() {
		return models.ErrUnauthorized
	}
	if err := b.store.SetUserRole(ctx, id, models.RoleStudent); err != nil {
		return err
	}
	logger.Audit(ctx, "role_granted", "user_id", id, "role", string(models.RoleStudent))
	return b.reply(ctx, t, "student_approved", translator.Args{"ID": id}, nil)
}

// handleRevokeStudent returns an idle student to guest.
func (b *Bot) handleRevokeStudent(ctx context.Context, t *turn) error {
	if err := requireAdmin(t); err != nil {
		return err
	}
	id, err := parseID(t.in.Args)
	if err != nil {
		return b.reply(ctx, t, "revoke_usage", nil, nil)
	}

	target, err := b.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !target.IsStudent() {
		return models.ErrNotFound
	}
	if target.CurrentAssignmentID != nil {
		return b.reply(ctx, t, "revoke_busy", translator.Args{"ID": id}, nil)
	}
	if err := b.store.SetUserRole(ctx, id, models.RoleGuest); err != nil {
		return err
	}
	if err := b.trackers.Student.End(ctx, id); err != nil {
		return err
	}
	logger.Audit(ctx, "role_revoked", "user_id", id, "role", string(models.RoleStudent))
	return b.reply(ctx, t, "student_revoked", translator.Args{"ID": id}, nil)
}

func (b *Bot) handleApproveRequest(ctx context.Context, t *turn, requestID int64) error {
	if err := requireAdmin(t); err != nil {
		return err
	}
	res, err := b.engine.Approve(ctx, requestID)
	if err != nil {
		return err
	}

	b.retire(ctx, t, "approved_mark", nil)
	b.deliver(ctx, res.Notices)
	b.ack(ctx, t, b.translator.T(t.locale, "request_approved_done", nil))
	return nil
}

func (b *Bot) handleDeclineRequest(ctx context.Context, t *turn, requestID int64) error {
	if err := requireAdmin(t); err != nil {
		return err
	}
	if err := b.engine.BeginDecline(ctx, t.user.TelegramID, requestID); err != nil {
		return err
	}

	b.retire(ctx, t, "decline_in_progress_mark", nil)
	return b.reply(ctx, t, "enter_decline_reason", translator.Args{"ID": requestID}, &Markup{ForceReply: true})
}

func (b *Bot) handleApproveAnswer(ctx context.Context, t *turn, requestID int64) error {
	if err := requireAdmin(t); err != nil {
		return err
	}
	res, err := b.engine.ApproveAnswer(ctx, requestID)
	if err != nil {
		return err
	}

	b.retire(ctx, t, "answer_approved_mark", nil)
	b.deliver(ctx, res.Notices)
	b.ack(ctx, t, b.translator.T(t.locale, "answer_approved_done", nil))
	return nil
}

func (b *Bot) handleDeclineAnswer(ctx context.Context, t *turn, requestID int64) error {
	if err := requireAdmin(t); err != nil {
		return err
	}
	if err := b.engine.BeginDeclineAnswer(ctx, t.user.TelegramID, requestID); err != nil {
		return err
	}

	b.retire(ctx, t, "answer_decline_in_progress_mark", nil)
	return b.reply(ctx, t, "enter_answer_decline_reason", translator.Args{"ID": requestID}, &Markup{ForceReply: true})
}

func (b *Bot) onAdminState(ctx context.Context, t *turn, st convo.State) (bool, error) {
	switch st.Flow {
	case convo.FlowEnteringDeclineReason:
		res, err := b.engine.Decline(ctx, t.user.TelegramID, t.in.Text)
		if err != nil {
			return true, err
		}
		b.deliver(ctx, res.Notices)
		return true, b.confirmOutsideAdminChat(ctx, t, "request_declined_done", res.Request.ID)

	case convo.FlowEnteringAnswerDeclineReason:
		res, err := b.engine.DeclineAnswer(ctx, t.user.TelegramID, t.in.Text)
		if err != nil {
			return true, err
		}
		b.deliver(ctx, res.Notices)
		return true, b.confirmOutsideAdminChat(ctx, t, "answer_declined_done", res.Request.ID)
	}
	return b.onTaxonomyState(ctx, t, st)
}

// confirmOutsideAdminChat acknowledges a decline typed outside the
// administrators channel, which already received the outcome notice.
func (b *Bot) confirmOutsideAdminChat(ctx context.Context, t *turn, key string, requestID int64) error {
	if t.in.ChatID == b.adminChat {
		return nil
	}
	return b.reply(ctx, t, key, translator.Args{"ID": requestID}, nil)
}

func parseID(args string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(args), 10, 64)
}
