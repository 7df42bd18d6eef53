// Package lifecycle drives a request through its states:
//
//	pending -> approved -> assigned -> answered -> closed
//	pending -> declined
//	answered -> assigned            (answer declined, assignee resubmits)
//	assigned|answered -> approved   (assignee gives the request up)
//
// Every operation re-reads the request, checks the transition against
// models.Transitions and writes with a conditional update on the status it
// read. A second press on a stale button therefore fails with
// models.ErrStatusMismatch before any side effect is produced.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lawclinic/helpdesk-bot/internal/convo"
	"github.com/lawclinic/helpdesk-bot/internal/db"
	"github.com/lawclinic/helpdesk-bot/internal/logger"
	"github.com/lawclinic/helpdesk-bot/internal/models"
	"github.com/lawclinic/helpdesk-bot/internal/translator"
)

type Config struct {
	AdminChat   int64
	StudentChat int64
}

type Engine struct {
	store    db.Store
	trackers convo.Trackers
	cfg      Config
}

// Result is the request after a transition and the notices to deliver.
type Result struct {
	Request *models.Request
	Notices []Notice
}

func New(store db.Store, trackers convo.Trackers, cfg Config) *Engine {
	return &Engine{store: store, trackers: trackers, cfg: cfg}
}

// Submit creates a pending request. A requester may hold at most one
// request in an active status.
func (e *Engine) Submit(ctx context.Context, requester *models.User, categoryID int64, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.ErrValidation
	}
	status, err := models.Next(models.EventSubmit, "")
	if err != nil {
		return nil, err
	}

	category, err := e.store.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load category %d: %w", categoryID, err)
	}

	active, err := e.store.CountRequests(ctx, models.RequestFilter{
		RequesterID: &requester.TelegramID,
		Statuses:    models.ActiveStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("count active requests: %w", err)
	}
	if active > 0 {
		return nil, models.ErrSubmissionLimit
	}

	r := &models.Request{
		RequesterID: requester.TelegramID,
		CategoryID:  categoryID,
		Text:        text,
		Status:      status,
	}
	if err := e.store.CreateRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if err := e.trackers.Requester.End(ctx, requester.TelegramID); err != nil {
		slog.WarnContext(ctx, "failed to end requester flow", "error", err)
	}
	logger.Audit(ctx, "request_submitted", "request_id", r.ID, "category_id", categoryID)

	return &Result{Request: r, Notices: []Notice{e.triage(r, category, requester.DisplayName())}}, nil
}

// Approve moves a pending request to approved and offers it to students.
func (e *Engine) Approve(ctx context.Context, requestID int64) (*Result, error) {
	r, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := e.apply(ctx, r, models.EventApprove, nil); err != nil {
		return nil, err
	}

	category := e.category(ctx, r.CategoryID)
	return &Result{Request: r, Notices: []Notice{
		{
			ChatID: r.RequesterID,
			Locale: e.locale(ctx, r.RequesterID),
			Key:    "request_approved_user",
			Args:   translator.Args{"Category": category.Name},
		},
		e.offer(r, category),
	}}, nil
}

// BeginDecline checks that the request can still be declined and asks the
// admin for a reason.
func (e *Engine) BeginDecline(ctx context.Context, adminID, requestID int64) error {
	return e.beginReason(ctx, adminID, requestID, models.EventDecline, convo.FlowEnteringDeclineReason)
}

// Decline completes the decline started by BeginDecline with reason.
func (e *Engine) Decline(ctx context.Context, adminID int64, reason string) (*Result, error) {
	r, err := e.finishReason(ctx, adminID, reason, models.EventDecline, convo.FlowEnteringDeclineReason)
	if err != nil {
		return nil, err
	}

	category := e.category(ctx, r.CategoryID)
	return &Result{Request: r, Notices: []Notice{
		{
			ChatID: r.RequesterID,
			Locale: e.locale(ctx, r.RequesterID),
			Key:    "request_declined_user",
			Args:   translator.Args{"Category": category.Name, "Reason": r.AdminComment},
		},
		{
			ChatID: e.cfg.AdminChat,
			Key:    "admin_request_declined",
			Args:   translator.Args{"ID": r.ID, "Reason": r.AdminComment},
		},
	}}, nil
}

// Take assigns an approved request to student. The student's current
// assignment is claimed first so that a student never holds two requests;
// the claim is released again if the request write loses a race.
func (e *Engine) Take(ctx context.Context, student *models.User, requestID int64) (*Result, error) {
	if !student.IsStudent() {
		return nil, models.ErrUnauthorized
	}
	r, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if _, err := models.Next(models.EventTake, r.Status); err != nil {
		return nil, err
	}

	fresh, err := e.store.GetUser(ctx, student.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	if fresh.CurrentAssignmentID != nil {
		return nil, models.ErrAssignmentBusy
	}
	if err := e.store.AssignUser(ctx, student.TelegramID, r.ID); err != nil {
		return nil, err
	}

	err = e.apply(ctx, r, models.EventTake, func(r *models.Request) {
		assignee := student.TelegramID
		r.AssigneeID = &assignee
		r.AnswerText = ""
		r.AdminComment = ""
	})
	if err != nil {
		if releaseErr := e.store.ReleaseUser(ctx, student.TelegramID, r.ID); releaseErr != nil {
			slog.ErrorContext(ctx, "failed to release assignment after lost take", "error", releaseErr)
		}
		return nil, err
	}

	if err := e.beginAnswer(ctx, student.TelegramID, r.ID); err != nil {
		return nil, err
	}

	category := e.category(ctx, r.CategoryID)
	return &Result{Request: r, Notices: []Notice{{
		ChatID: student.TelegramID,
		Locale: student.Language,
		Key:    "assignment_taken",
		Args:   translator.Args{"ID": r.ID, "Category": category.Name, "Text": r.Text},
		Menu:   MenuStudent,
	}}}, nil
}

// DraftAnswer stores text as the student's answer draft awaiting confirmation.
func (e *Engine) DraftAnswer(ctx context.Context, studentID int64, text string) (convo.State, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return convo.State{}, models.ErrValidation
	}
	return e.trackers.Student.Advance(ctx, studentID, convo.FlowWritingAnswer, convo.FlowConfirmingAnswer,
		func(p *convo.Payload) { p.Answer = text })
}

// ReviseAnswer discards the draft and waits for a new answer text.
func (e *Engine) ReviseAnswer(ctx context.Context, studentID int64) (convo.State, error) {
	return e.trackers.Student.Advance(ctx, studentID, convo.FlowConfirmingAnswer, convo.FlowWritingAnswer,
		func(p *convo.Payload) { p.Answer = "" })
}

// SubmitAnswer sends the confirmed draft for admin review.
func (e *Engine) SubmitAnswer(ctx context.Context, student *models.User) (*Result, error) {
	st, ok, err := e.trackers.Student.Current(ctx, student.TelegramID)
	if err != nil {
		return nil, err
	}
	if !ok || st.Flow != convo.FlowConfirmingAnswer {
		return nil, models.ErrStateMismatch
	}
	defer e.end(ctx, e.trackers.Student, student.TelegramID)

	r, err := e.load(ctx, st.Payload.RequestID)
	if err != nil {
		return nil, err
	}
	if !r.IsAssignee(student.TelegramID) {
		return nil, models.ErrUnauthorized
	}
	err = e.apply(ctx, r, models.EventSubmitAnswer, func(r *models.Request) {
		r.AnswerText = st.Payload.Answer
	})
	if err != nil {
		return nil, err
	}

	category := e.category(ctx, r.CategoryID)
	return &Result{Request: r, Notices: []Notice{e.review(r, category, student.DisplayName())}}, nil
}

// EditAnswer reopens the answer flow for the assignee of a request whose
// answer was declined.
func (e *Engine) EditAnswer(ctx context.Context, student *models.User, requestID int64) (*models.Request, error) {
	r, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !r.IsAssignee(student.TelegramID) {
		return nil, models.ErrUnauthorized
	}
	if _, err := models.Next(models.EventSubmitAnswer, r.Status); err != nil {
		return nil, err
	}
	if err := e.beginAnswer(ctx, student.TelegramID, r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

// beginAnswer starts the answer flow. A requester flow left open by the
// same user is ended, otherwise it would take the answer text first.
func (e *Engine) beginAnswer(ctx context.Context, studentID, requestID int64) error {
	if err := e.trackers.Student.Begin(ctx, studentID, convo.FlowWritingAnswer,
		convo.Payload{RequestID: requestID}); err != nil {
		return fmt.Errorf("begin answer flow: %w", err)
	}
	e.end(ctx, e.trackers.Requester, studentID)
	return nil
}

// ApproveAnswer closes the request, frees the assignee and delivers the
// answer to the requester.
func (e *Engine) ApproveAnswer(ctx context.Context, requestID int64) (*Result, error) {
	r, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.AssigneeID == nil {
		return nil, fmt.Errorf("request %d has no assignee: %w", r.ID, models.ErrStatusMismatch)
	}
	assignee := *r.AssigneeID

	if err := e.apply(ctx, r, models.EventApproveAnswer, nil); err != nil {
		return nil, err
	}
	e.release(ctx, assignee, r.ID)

	category := e.category(ctx, r.CategoryID)
	return &Result{Request: r, Notices: []Notice{
		{
			ChatID: r.RequesterID,
			Locale: e.locale(ctx, r.RequesterID),
			Key:    "request_answered_user",
			Args:   translator.Args{"Category": category.Name, "Answer": r.AnswerText},
		},
		{
			ChatID: assignee,
			Locale: e.locale(ctx, assignee),
			Key:    "answer_approved_student",
			Args:   translator.Args{"ID": r.ID},
			Menu:   MenuMain,
		},
	}}, nil
}

// BeginDeclineAnswer checks that the answer is still under review and asks
// the admin for a comment.
func (e *Engine) BeginDeclineAnswer(ctx context.Context, adminID, requestID int64) error {
	return e.beginReason(ctx, adminID, requestID, models.EventDeclineAnswer, convo.FlowEnteringAnswerDeclineReason)
}

// DeclineAnswer returns the request to its assignee with the admin comment.
// The assignee keeps the request and may resubmit or give it up.
func (e *Engine) DeclineAnswer(ctx context.Context, adminID int64, reason string) (*Result, error) {
	r, err := e.finishReason(ctx, adminID, reason, models.EventDeclineAnswer, convo.FlowEnteringAnswerDeclineReason)
	if err != nil {
		return nil, err
	}

	category := e.category(ctx, r.CategoryID)
	notices := []Notice{{
		ChatID: e.cfg.AdminChat,
		Key:    "admin_answer_declined",
		Args:   translator.Args{"ID": r.ID, "Reason": r.AdminComment},
	}}
	if r.AssigneeID != nil {
		notices = append([]Notice{{
			ChatID:   *r.AssigneeID,
			Locale:   e.locale(ctx, *r.AssigneeID),
			Key:      "answer_declined_student",
			Args:     translator.Args{"ID": r.ID, "Category": category.Name, "Reason": r.AdminComment},
			Controls: resubmitControls(r.ID),
		}}, notices...)
	}
	return &Result{Request: r, Notices: notices}, nil
}

// RejectAssignment returns the request to the approved pool, clearing the
// assignee, the answer and the admin comment, and offers it to students again.
func (e *Engine) RejectAssignment(ctx context.Context, student *models.User, requestID int64) (*Result, error) {
	r, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !r.IsAssignee(student.TelegramID) {
		return nil, models.ErrUnauthorized
	}
	err = e.apply(ctx, r, models.EventRejectAssignment, func(r *models.Request) {
		r.AssigneeID = nil
		r.AnswerText = ""
		r.AdminComment = ""
	})
	if err != nil {
		return nil, err
	}
	e.release(ctx, student.TelegramID, r.ID)
	e.end(ctx, e.trackers.Student, student.TelegramID)

	return &Result{Request: r, Notices: []Notice{e.offer(r, e.category(ctx, r.CategoryID))}}, nil
}

// CurrentAssignment returns the request the student holds, or ErrNotFound.
func (e *Engine) CurrentAssignment(ctx context.Context, studentID int64) (*models.Request, error) {
	u, err := e.store.GetUser(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if u.CurrentAssignmentID == nil {
		return nil, models.ErrNotFound
	}
	return e.load(ctx, *u.CurrentAssignmentID)
}

// AbandonReason ends an admin's decline flow without declining. The
// triage or review controls were retired when the decline started, so they
// are posted again while the request still awaits that decision.
func (e *Engine) AbandonReason(ctx context.Context, adminID int64) (*Result, error) {
	st, ok, err := e.trackers.Admin.Current(ctx, adminID)
	if err != nil {
		return nil, err
	}
	var event models.Event
	switch {
	case ok && st.Flow == convo.FlowEnteringDeclineReason:
		event = models.EventDecline
	case ok && st.Flow == convo.FlowEnteringAnswerDeclineReason:
		event = models.EventDeclineAnswer
	default:
		return &Result{}, nil
	}
	if err := e.trackers.Admin.End(ctx, adminID); err != nil {
		return nil, err
	}

	r, err := e.load(ctx, st.Payload.RequestID)
	if errors.Is(err, models.ErrNotFound) {
		return &Result{}, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := models.Next(event, r.Status); err != nil {
		return &Result{Request: r}, nil
	}
	logger.Audit(ctx, "decline_abandoned", "request_id", r.ID, "status", string(r.Status))

	category := e.category(ctx, r.CategoryID)
	if event == models.EventDecline {
		return &Result{Request: r, Notices: []Notice{e.triage(r, category, e.displayName(ctx, r.RequesterID))}}, nil
	}
	student := "—"
	if r.AssigneeID != nil {
		student = e.displayName(ctx, *r.AssigneeID)
	}
	return &Result{Request: r, Notices: []Notice{e.review(r, category, student)}}, nil
}

func (e *Engine) beginReason(ctx context.Context, adminID, requestID int64, event models.Event, flow convo.Flow) error {
	r, err := e.load(ctx, requestID)
	if err != nil {
		return err
	}
	if _, err := models.Next(event, r.Status); err != nil {
		return err
	}
	return e.trackers.Admin.Begin(ctx, adminID, flow, convo.Payload{RequestID: r.ID})
}

// finishReason applies event to the request remembered in the admin's flow,
// storing reason as the admin comment. The flow ends whatever the outcome,
// except for an empty reason which leaves the admin in the flow to retry.
func (e *Engine) finishReason(ctx context.Context, adminID int64, reason string, event models.Event, flow convo.Flow) (*models.Request, error) {
	st, ok, err := e.trackers.Admin.Current(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !ok || st.Flow != flow {
		return nil, models.ErrStateMismatch
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.ErrValidation
	}
	defer e.end(ctx, e.trackers.Admin, adminID)

	r, err := e.load(ctx, st.Payload.RequestID)
	if err != nil {
		return nil, err
	}
	err = e.apply(ctx, r, event, func(r *models.Request) {
		r.AdminComment = reason
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// apply checks event against the request's current status, mutates r and
// writes it only if the stored status is still the one that was read.
func (e *Engine) apply(ctx context.Context, r *models.Request, event models.Event, mutate func(*models.Request)) error {
	from := r.Status
	to, err := models.Next(event, from)
	if err != nil {
		return err
	}
	r.Status = to
	if mutate != nil {
		mutate(r)
	}
	if err := e.store.UpdateRequest(ctx, r, from); err != nil {
		return fmt.Errorf("%s request %d: %w", event, r.ID, err)
	}
	logger.Audit(ctx, "request_"+string(event), "request_id", r.ID, "from", string(from), "to", string(to))
	return nil
}

func (e *Engine) load(ctx context.Context, requestID int64) (*models.Request, error) {
	r, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request %d: %w", requestID, err)
	}
	return r, nil
}

func (e *Engine) triage(r *models.Request, category *models.Category, requester string) Notice {
	return Notice{
		ChatID: e.cfg.AdminChat,
		Key:    "admin_new_request",
		Args: translator.Args{
			"ID":        r.ID,
			"Category":  category.Name,
			"Hashtag":   category.Hashtag,
			"Requester": requester,
			"Text":      r.Text,
		},
		Controls: triageControls(r.ID),
	}
}

func (e *Engine) review(r *models.Request, category *models.Category, student string) Notice {
	return Notice{
		ChatID: e.cfg.AdminChat,
		Key:    "admin_answer_review",
		Args: translator.Args{
			"ID":       r.ID,
			"Category": category.Name,
			"Student":  student,
			"Question": r.Text,
			"Answer":   r.AnswerText,
		},
		Controls: reviewControls(r.ID),
	}
}

func (e *Engine) offer(r *models.Request, category *models.Category) Notice {
	return Notice{
		ChatID: e.cfg.StudentChat,
		Key:    "student_new_request",
		Args: translator.Args{
			"ID":       r.ID,
			"Category": category.Name,
			"Hashtag":  category.Hashtag,
			"Text":     r.Text,
		},
		Controls: takeControls(r.ID),
	}
}

// category returns the request's category, or a placeholder when it can no
// longer be loaded so that notices still go out.
func (e *Engine) category(ctx context.Context, categoryID int64) *models.Category {
	c, err := e.store.GetCategory(ctx, categoryID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.WarnContext(ctx, "failed to load category", "category_id", categoryID, "error", err)
		}
		return &models.Category{ID: categoryID, Name: "—"}
	}
	return c
}

func (e *Engine) displayName(ctx context.Context, telegramID int64) string {
	u, err := e.store.GetUser(ctx, telegramID)
	if err != nil {
		return strconv.FormatInt(telegramID, 10)
	}
	return u.DisplayName()
}

func (e *Engine) locale(ctx context.Context, telegramID int64) string {
	u, err := e.store.GetUser(ctx, telegramID)
	if err != nil {
		return ""
	}
	return u.Language
}

// release frees the student's assignment. Failures are only logged; the
// status change is already stored.
func (e *Engine) release(ctx context.Context, studentID, requestID int64) {
	if err := e.store.ReleaseUser(ctx, studentID, requestID); err != nil {
		slog.ErrorContext(ctx, "failed to release assignment", "student_id", studentID, "error", err)
	}
}

func (e *Engine) end(ctx context.Context, tracker convo.Tracker, actorID int64) {
	if err := tracker.End(ctx, actorID); err != nil {
		slog.WarnContext(ctx, "failed to end flow", "actor_id", actorID, "error", err)
	}
}
