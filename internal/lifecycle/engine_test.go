package lifecycle_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lawclinic/helpdesk-bot/internal/action"
	"github.com/lawclinic/helpdesk-bot/internal/convo"
	"github.com/lawclinic/helpdesk-bot/internal/db"
	"github.com/lawclinic/helpdesk-bot/internal/lifecycle"
	"github.com/lawclinic/helpdesk-bot/internal/models"
)

const (
	adminChat   int64 = -1001
	studentChat int64 = -1002
	adminID     int64 = 500
)

// unreleasable is a store whose ReleaseUser always fails.
type unreleasable struct {
	db.Store
}

func (unreleasable) ReleaseUser(context.Context, int64, int64) error {
	return errors.New("connection reset")
}

var _ = Describe("Engine", func() {
	var (
		ctx       context.Context
		store     *db.DB
		trackers  convo.Trackers
		engine    *lifecycle.Engine
		category  *models.Category
		requester *models.User
		alice     *models.User
		bob       *models.User
	)

	newUser := func(telegramID int64, role models.Role) *models.User {
		_, err := store.EnsureUser(ctx, &models.User{TelegramID: telegramID, FirstName: "user"})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.SetUserRole(ctx, telegramID, role)).To(Succeed())
		u, err := store.GetUser(ctx, telegramID)
		Expect(err).NotTo(HaveOccurred())
		return u
	}

	status := func(requestID int64) models.RequestStatus {
		r, err := store.GetRequest(ctx, requestID)
		Expect(err).NotTo(HaveOccurred())
		return r.Status
	}

	// expectExclusiveAssignments checks that each student's current
	// assignment is set exactly when one held request names them.
	expectExclusiveAssignments := func(students ...*models.User) {
		for _, s := range students {
			u, err := store.GetUser(ctx, s.TelegramID)
			Expect(err).NotTo(HaveOccurred())
			held, err := store.ListRequests(ctx, models.RequestFilter{
				AssigneeID: &s.TelegramID,
				Statuses:   models.HoldingStatuses,
			})
			Expect(err).NotTo(HaveOccurred())

			if u.CurrentAssignmentID == nil {
				Expect(held).To(BeEmpty())
			} else {
				Expect(held).To(HaveLen(1))
				Expect(held[0].ID).To(Equal(*u.CurrentAssignmentID))
			}
		}
	}

	submit := func() *models.Request {
		res, err := engine.Submit(ctx, requester, category.ID, "My landlord keeps the deposit")
		Expect(err).NotTo(HaveOccurred())
		return res.Request
	}

	approved := func() *models.Request {
		r := submit()
		_, err := engine.Approve(ctx, r.ID)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	taken := func(student *models.User) *models.Request {
		r := approved()
		_, err := engine.Take(ctx, student, r.ID)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	answered := func(student *models.User, text string) *models.Request {
		r := taken(student)
		_, err := engine.DraftAnswer(ctx, student.TelegramID, text)
		Expect(err).NotTo(HaveOccurred())
		_, err = engine.SubmitAnswer(ctx, student)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = db.New(":memory:", "")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		trackers = convo.NewMemoryTrackers()
		engine = lifecycle.New(store, trackers, lifecycle.Config{AdminChat: adminChat, StudentChat: studentChat})

		category = &models.Category{Name: "Housing", Hashtag: "#housing"}
		Expect(store.CreateCategory(ctx, category)).To(Succeed())

		requester = newUser(100, models.RoleGuest)
		alice = newUser(200, models.RoleStudent)
		bob = newUser(300, models.RoleStudent)
	})

	Describe("Submit", func() {
		It("should create a pending request and notify the admin channel", func() {
			res, err := engine.Submit(ctx, requester, category.ID, "  My landlord keeps the deposit  ")

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Request.Status).To(Equal(models.StatusPending))
			Expect(res.Request.Text).To(Equal("My landlord keeps the deposit"))
			Expect(res.Notices).To(HaveLen(1))
			Expect(res.Notices[0].ChatID).To(Equal(adminChat))
			Expect(res.Notices[0].Key).To(Equal("admin_new_request"))
			Expect(res.Notices[0].Controls[0][0].Token).To(Equal(action.New(action.ApproveRequest, res.Request.ID)))
			Expect(res.Notices[0].Controls[0][1].Token).To(Equal(action.New(action.DeclineRequest, res.Request.ID)))
		})

		It("should allow one active request per requester", func() {
			r := submit()

			_, err := engine.Submit(ctx, requester, category.ID, "another question")
			Expect(err).To(MatchError(models.ErrSubmissionLimit))

			Expect(engine.BeginDecline(ctx, adminID, r.ID)).To(Succeed())
			_, err = engine.Decline(ctx, adminID, "out of scope")
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Submit(ctx, requester, category.ID, "another question")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should reject empty text and unknown categories", func() {
			_, err := engine.Submit(ctx, requester, category.ID, "   ")
			Expect(err).To(MatchError(models.ErrValidation))

			_, err = engine.Submit(ctx, requester, 404, "question")
			Expect(err).To(MatchError(models.ErrNotFound))
		})
	})

	Describe("Approve", func() {
		It("should notify the requester and offer the request to students", func() {
			r := submit()

			res, err := engine.Approve(ctx, r.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Request.Status).To(Equal(models.StatusApproved))
			Expect(res.Notices).To(HaveLen(2))
			Expect(res.Notices[0].ChatID).To(Equal(requester.TelegramID))
			Expect(res.Notices[1].ChatID).To(Equal(studentChat))
			Expect(res.Notices[1].Controls[0][0].Token).To(Equal(action.New(action.TakeRequest, r.ID)))
		})

		It("should change the status once when pressed twice", func() {
			r := submit()

			first, err := engine.Approve(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Notices).To(HaveLen(2))

			second, err := engine.Approve(ctx, r.ID)
			Expect(err).To(MatchError(models.ErrStatusMismatch))
			Expect(second).To(BeNil())
			Expect(status(r.ID)).To(Equal(models.StatusApproved))
		})

		It("should report a missing request as not found", func() {
			_, err := engine.Approve(ctx, 404)
			Expect(err).To(MatchError(models.ErrNotFound))
		})
	})

	Describe("Decline", func() {
		It("should store the reason and notify both sides", func() {
			r := submit()
			Expect(engine.BeginDecline(ctx, adminID, r.ID)).To(Succeed())

			res, err := engine.Decline(ctx, adminID, "Not a legal question")

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Request.Status).To(Equal(models.StatusDeclined))
			Expect(res.Request.AdminComment).To(Equal("Not a legal question"))
			Expect(res.Notices).To(HaveLen(2))
			Expect(res.Notices[0].ChatID).To(Equal(requester.TelegramID))
			Expect(res.Notices[1].ChatID).To(Equal(adminChat))

			_, ok, err := trackers.Admin.Current(ctx, adminID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should refuse a reason without a decline in progress", func() {
			_, err := engine.Decline(ctx, adminID, "reason")
			Expect(err).To(MatchError(models.ErrStateMismatch))
		})

		It("should keep the flow when the reason is empty", func() {
			r := submit()
			Expect(engine.BeginDecline(ctx, adminID, r.ID)).To(Succeed())

			_, err := engine.Decline(ctx, adminID, " ")
			Expect(err).To(MatchError(models.ErrValidation))

			st, ok, err := trackers.Admin.Current(ctx, adminID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(st.Flow).To(Equal(convo.FlowEnteringDeclineReason))
		})

		It("should refuse a request approved while the reason was typed", func() {
			r := submit()
			Expect(engine.BeginDecline(ctx, adminID, r.ID)).To(Succeed())
			_, err := engine.Approve(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Decline(ctx, adminID, "too late")

			Expect(err).To(MatchError(models.ErrStatusMismatch))
			Expect(status(r.ID)).To(Equal(models.StatusApproved))
			_, ok, err := trackers.Admin.Current(ctx, adminID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("should not start on a handled request", func() {
			r := approved()
			Expect(engine.BeginDecline(ctx, adminID, r.ID)).To(MatchError(models.ErrStatusMismatch))
		})
	})

	Describe("Take", func() {
		It("should assign the request and open the answer flow", func() {
			r := approved()

			res, err := engine.Take(ctx, alice, r.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Request.Status).To(Equal(models.StatusAssigned))
			Expect(*res.Request.AssigneeID).To(Equal(alice.TelegramID))
			Expect(res.Notices).To(HaveLen(1))
			Expect(res.Notices[0].ChatID).To(Equal(alice.TelegramID))
			Expect(res.Notices[0].Menu).To(Equal(lifecycle.MenuStudent))

			st, ok, err := trackers.Student.Current(ctx, alice.TelegramID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(st.Flow).To(Equal(convo.FlowWritingAnswer))
			Expect(st.Payload.RequestID).To(Equal(r.ID))
			expectExclusiveAssignments(alice, bob)
		})

		It("should let only one student take a request", func() {
			r := approved()

			_, err := engine.Take(ctx, alice, r.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = engine.Take(ctx, bob, r.ID)
			Expect(err).To(MatchError(models.ErrStatusMismatch))

			expectExclusiveAssignments(alice, bob)
		})

		It("should refuse a second assignment for a busy student", func() {
			taken(alice)
			other := &models.User{TelegramID: 101}
			_, err := store.EnsureUser(ctx, other)
			Expect(err).NotTo(HaveOccurred())
			res, err := engine.Submit(ctx, other, category.ID, "second question")
			Expect(err).NotTo(HaveOccurred())
			_, err = engine.Approve(ctx, res.Request.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Take(ctx, alice, res.Request.ID)

			Expect(err).To(MatchError(models.ErrAssignmentBusy))
			Expect(status(res.Request.ID)).To(Equal(models.StatusApproved))
			expectExclusiveAssignments(alice, bob)
		})

		It("should refuse users without the student role", func() {
			r := approved()
			_, err := engine.Take(ctx, requester, r.ID)
			Expect(err).To(MatchError(models.ErrUnauthorized))
		})
	})

	Describe("answering", func() {
		It("should submit the confirmed draft for review", func() {
			r := taken(alice)

			_, err := engine.DraftAnswer(ctx, alice.TelegramID, "You can claim it back in court.")
			Expect(err).NotTo(HaveOccurred())
			res, err := engine.SubmitAnswer(ctx, alice)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Request.ID).To(Equal(r.ID))
			Expect(res.Request.Status).To(Equal(models.StatusAnswered))
			Expect(res.Request.AnswerText).To(Equal("You can claim it back in court."))
			Expect(res.Notices[0].ChatID).To(Equal(adminChat))
			Expect(res.Notices[0].Controls[0][0].Token).To(Equal(action.New(action.ApproveAnswer, r.ID)))
			expectExclusiveAssignments(alice)
		})

		It("should refuse to submit without a confirmed draft", func() {
			taken(alice)
			_, err := engine.SubmitAnswer(ctx, alice)
			Expect(err).To(MatchError(models.ErrStateMismatch))
		})

		It("should return to writing when the draft is revised", func() {
			taken(alice)
			_, err := engine.DraftAnswer(ctx, alice.TelegramID, "draft")
			Expect(err).NotTo(HaveOccurred())

			st, err := engine.ReviseAnswer(ctx, alice.TelegramID)

			Expect(err).NotTo(HaveOccurred())
			Expect(st.Flow).To(Equal(convo.FlowWritingAnswer))
			Expect(st.Payload.Answer).To(BeEmpty())
		})

		It("should close the request and free the student on approval", func() {
			r := answered(alice, "You can claim it back in court.")

			res, err := engine.ApproveAnswer(ctx, r.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Request.Status).To(Equal(models.StatusClosed))
			Expect(res.Notices).To(HaveLen(2))
			Expect(res.Notices[0].ChatID).To(Equal(requester.TelegramID))
			Expect(res.Notices[0].Args["Answer"]).To(Equal("You can claim it back in court."))
			Expect(res.Notices[1].ChatID).To(Equal(alice.TelegramID))

			_, err = engine.ApproveAnswer(ctx, r.ID)
			Expect(err).To(MatchError(models.ErrStatusMismatch))
			expectExclusiveAssignments(alice)

			u, err := store.GetUser(ctx, alice.TelegramID)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.CurrentAssignmentID).To(BeNil())
		})

		It("should let the assignee resubmit after an answer is declined", func() {
			r := answered(alice, "first answer")

			Expect(engine.BeginDeclineAnswer(ctx, adminID, r.ID)).To(Succeed())
			res, err := engine.DeclineAnswer(ctx, adminID, "Cite the article")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Request.Status).To(Equal(models.StatusAssigned))
			Expect(res.Request.AdminComment).To(Equal("Cite the article"))
			Expect(res.Notices[0].ChatID).To(Equal(alice.TelegramID))
			Expect(res.Notices[0].Controls[0][0].Token).To(Equal(action.New(action.EditAnswer, r.ID)))
			Expect(res.Notices[0].Controls[0][1].Token).To(Equal(action.New(action.RejectAssignment, r.ID)))
			expectExclusiveAssignments(alice)

			_, err = engine.EditAnswer(ctx, alice, r.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = engine.DraftAnswer(ctx, alice.TelegramID, "second answer")
			Expect(err).NotTo(HaveOccurred())
			resubmitted, err := engine.SubmitAnswer(ctx, alice)

			Expect(err).NotTo(HaveOccurred())
			Expect(resubmitted.Request.Status).To(Equal(models.StatusAnswered))
			Expect(resubmitted.Request.AnswerText).To(Equal("second answer"))
			expectExclusiveAssignments(alice)
		})

		It("should not reopen the answer flow for another student", func() {
			r := answered(alice, "answer")
			Expect(engine.BeginDeclineAnswer(ctx, adminID, r.ID)).To(Succeed())
			_, err := engine.DeclineAnswer(ctx, adminID, "no")
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.EditAnswer(ctx, bob, r.ID)
			Expect(err).To(MatchError(models.ErrUnauthorized))
		})
	})

	Describe("RejectAssignment", func() {
		It("should return the request to the pool with its work cleared", func() {
			r := answered(alice, "answer")
			Expect(engine.BeginDeclineAnswer(ctx, adminID, r.ID)).To(Succeed())
			_, err := engine.DeclineAnswer(ctx, adminID, "comment")
			Expect(err).NotTo(HaveOccurred())

			res, err := engine.RejectAssignment(ctx, alice, r.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Request.Status).To(Equal(models.StatusApproved))
			Expect(res.Request.AssigneeID).To(BeNil())
			Expect(res.Request.AnswerText).To(BeEmpty())
			Expect(res.Request.AdminComment).To(BeEmpty())
			Expect(res.Notices[0].ChatID).To(Equal(studentChat))
			Expect(res.Notices[0].Controls[0][0].Token).To(Equal(action.New(action.TakeRequest, r.ID)))
			expectExclusiveAssignments(alice, bob)

			stored, err := store.GetRequest(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.AssigneeID).To(BeNil())
			Expect(stored.AnswerText).To(BeEmpty())

			retaken, err := engine.Take(ctx, bob, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retaken.Request.Status).To(Equal(models.StatusAssigned))
			expectExclusiveAssignments(alice, bob)
		})

		It("should let the same student take the request again", func() {
			r := taken(alice)

			_, err := engine.RejectAssignment(ctx, alice, r.ID)
			Expect(err).NotTo(HaveOccurred())
			_, ok, err := trackers.Student.Current(ctx, alice.TelegramID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			_, err = engine.Take(ctx, alice, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(status(r.ID)).To(Equal(models.StatusAssigned))
		})

		It("should refuse anyone but the assignee", func() {
			r := taken(alice)
			_, err := engine.RejectAssignment(ctx, bob, r.ID)
			Expect(err).To(MatchError(models.ErrUnauthorized))
			Expect(status(r.ID)).To(Equal(models.StatusAssigned))
		})
	})

	Describe("leftover requester flows", func() {
		expectNoRequesterFlow := func(u *models.User) {
			_, ok, err := trackers.Requester.Current(ctx, u.TelegramID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		}

		It("should end them when a student takes a request", func() {
			r := approved()
			Expect(trackers.Requester.Begin(ctx, alice.TelegramID, convo.FlowSelectingCategory, convo.Payload{})).To(Succeed())

			_, err := engine.Take(ctx, alice, r.ID)

			Expect(err).NotTo(HaveOccurred())
			expectNoRequesterFlow(alice)
			_, err = engine.DraftAnswer(ctx, alice.TelegramID, "You can claim it back in court.")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should end them when a declined answer is reopened", func() {
			r := answered(alice, "answer")
			Expect(engine.BeginDeclineAnswer(ctx, adminID, r.ID)).To(Succeed())
			_, err := engine.DeclineAnswer(ctx, adminID, "Cite the article")
			Expect(err).NotTo(HaveOccurred())
			Expect(trackers.Requester.Begin(ctx, alice.TelegramID, convo.FlowSelectingFAQCategory, convo.Payload{})).To(Succeed())

			_, err = engine.EditAnswer(ctx, alice, r.ID)

			Expect(err).NotTo(HaveOccurred())
			expectNoRequesterFlow(alice)
		})
	})

	Context("when the assignment cannot be released", func() {
		var failing *lifecycle.Engine

		BeforeEach(func() {
			failing = lifecycle.New(unreleasable{Store: store}, trackers,
				lifecycle.Config{AdminChat: adminChat, StudentChat: studentChat})
		})

		It("should still deliver the approved answer", func() {
			r := answered(alice, "You can claim it back in court.")

			res, err := failing.ApproveAnswer(ctx, r.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(status(r.ID)).To(Equal(models.StatusClosed))
			Expect(res.Notices).To(HaveLen(2))
			Expect(res.Notices[0].Args["Answer"]).To(Equal("You can claim it back in court."))
		})

		It("should still offer a rejected request again", func() {
			r := taken(alice)

			res, err := failing.RejectAssignment(ctx, alice, r.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(status(r.ID)).To(Equal(models.StatusApproved))
			Expect(res.Notices).To(HaveLen(1))
			Expect(res.Notices[0].Controls[0][0].Token).To(Equal(action.New(action.TakeRequest, r.ID)))
		})
	})

	Describe("AbandonReason", func() {
		expectNoAdminFlow := func() {
			_, ok, err := trackers.Admin.Current(ctx, adminID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		}

		It("should post the triage controls again", func() {
			r := submit()
			Expect(engine.BeginDecline(ctx, adminID, r.ID)).To(Succeed())

			res, err := engine.AbandonReason(ctx, adminID)

			Expect(err).NotTo(HaveOccurred())
			Expect(status(r.ID)).To(Equal(models.StatusPending))
			Expect(res.Notices).To(HaveLen(1))
			Expect(res.Notices[0].ChatID).To(Equal(adminChat))
			Expect(res.Notices[0].Key).To(Equal("admin_new_request"))
			Expect(res.Notices[0].Controls[0][0].Token).To(Equal(action.New(action.ApproveRequest, r.ID)))
			Expect(res.Notices[0].Controls[0][1].Token).To(Equal(action.New(action.DeclineRequest, r.ID)))
			expectNoAdminFlow()
		})

		It("should post the review controls again", func() {
			r := answered(alice, "answer")
			Expect(engine.BeginDeclineAnswer(ctx, adminID, r.ID)).To(Succeed())

			res, err := engine.AbandonReason(ctx, adminID)

			Expect(err).NotTo(HaveOccurred())
			Expect(status(r.ID)).To(Equal(models.StatusAnswered))
			Expect(res.Notices).To(HaveLen(1))
			Expect(res.Notices[0].Key).To(Equal("admin_answer_review"))
			Expect(res.Notices[0].Args["Answer"]).To(Equal("answer"))
			Expect(res.Notices[0].Controls[0][0].Token).To(Equal(action.New(action.ApproveAnswer, r.ID)))
			expectNoAdminFlow()
		})

		It("should post nothing for a request decided meanwhile", func() {
			r := submit()
			Expect(engine.BeginDecline(ctx, adminID, r.ID)).To(Succeed())
			_, err := engine.Approve(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())

			res, err := engine.AbandonReason(ctx, adminID)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Notices).To(BeEmpty())
			expectNoAdminFlow()
		})

		It("should leave other admin flows alone", func() {
			Expect(trackers.Admin.Begin(ctx, adminID, convo.FlowEnteringCategoryName, convo.Payload{})).To(Succeed())

			res, err := engine.AbandonReason(ctx, adminID)

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Notices).To(BeEmpty())
			st, ok, err := trackers.Admin.Current(ctx, adminID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(st.Flow).To(Equal(convo.FlowEnteringCategoryName))
		})
	})

	Describe("CurrentAssignment", func() {
		It("should return the held request", func() {
			r := taken(alice)

			current, err := engine.CurrentAssignment(ctx, alice.TelegramID)
			Expect(err).NotTo(HaveOccurred())
			Expect(current.ID).To(Equal(r.ID))

			_, err = engine.CurrentAssignment(ctx, bob.TelegramID)
			Expect(err).To(MatchError(models.ErrNotFound))
		})
	})
})
