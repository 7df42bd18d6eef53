// Package storetest holds the behaviour shared by every db.Store
// implementation. Call Behaviour inside a Describe of the implementation's
// suite.
package storetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lawclinic/helpdesk-bot/internal/db"
	"github.com/lawclinic/helpdesk-bot/internal/models"
)

// Behaviour registers the shared Store tests. newStore is called before each
// test and must return an empty store; it may Skip when the backend is missing.
func Behaviour(newStore func() db.Store) {
	var (
		ctx   context.Context
		store db.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
	})

	newRequest := func(requesterID, categoryID int64, status models.RequestStatus) *models.Request {
		r := &models.Request{RequesterID: requesterID, CategoryID: categoryID, Text: "question", Status: status}
		Expect(store.CreateRequest(ctx, r)).To(Succeed())
		return r
	}

	Describe("EnsureUser", func() {
		It("should create a guest on first contact", func() {
			u, err := store.EnsureUser(ctx, &models.User{TelegramID: 10, Username: "alice", FirstName: "Alice"})

			Expect(err).NotTo(HaveOccurred())
			Expect(u.Role).To(Equal(models.RoleGuest))
			Expect(u.Username).To(Equal("alice"))
			Expect(u.CurrentAssignmentID).To(BeNil())
		})

		It("should return the stored user afterwards", func() {
			_, err := store.EnsureUser(ctx, &models.User{TelegramID: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.SetUserRole(ctx, 10, models.RoleStudent)).To(Succeed())
			Expect(store.SetUserLanguage(ctx, 10, "en")).To(Succeed())

			u, err := store.EnsureUser(ctx, &models.User{TelegramID: 10, Language: "ru"})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Role).To(Equal(models.RoleStudent))
			Expect(u.Language).To(Equal("en"))
		})

		It("should report a missing user as not found", func() {
			_, err := store.GetUser(ctx, 404)
			Expect(err).To(MatchError(models.ErrNotFound))
			Expect(store.SetUserRole(ctx, 404, models.RoleAdmin)).To(MatchError(models.ErrNotFound))
			Expect(store.SetUserLanguage(ctx, 404, "en")).To(MatchError(models.ErrNotFound))
		})
	})

	Describe("AssignUser", func() {
		BeforeEach(func() {
			_, err := store.EnsureUser(ctx, &models.User{TelegramID: 20})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should claim an idle user once", func() {
			Expect(store.AssignUser(ctx, 20, 1)).To(Succeed())
			Expect(store.AssignUser(ctx, 20, 2)).To(MatchError(models.ErrAssignmentBusy))

			u, err := store.GetUser(ctx, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(*u.CurrentAssignmentID).To(Equal(int64(1)))
		})

		It("should release only the matching assignment", func() {
			Expect(store.AssignUser(ctx, 20, 1)).To(Succeed())

			Expect(store.ReleaseUser(ctx, 20, 2)).To(Succeed())
			u, err := store.GetUser(ctx, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.CurrentAssignmentID).NotTo(BeNil())

			Expect(store.ReleaseUser(ctx, 20, 1)).To(Succeed())
			u, err = store.GetUser(ctx, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.CurrentAssignmentID).To(BeNil())
		})

		It("should allow a new claim after a release", func() {
			Expect(store.AssignUser(ctx, 20, 1)).To(Succeed())
			Expect(store.ReleaseUser(ctx, 20, 1)).To(Succeed())

			Expect(store.AssignUser(ctx, 20, 2)).To(Succeed())
		})

		It("should report an unknown user as not found", func() {
			Expect(store.AssignUser(ctx, 404, 1)).To(MatchError(models.ErrNotFound))
		})
	})

	Describe("UpdateRequest", func() {
		It("should write when the stored status matches", func() {
			r := newRequest(1, 1, models.StatusAnswered)
			assignee := int64(20)
			r.Status = models.StatusAssigned
			r.AssigneeID = &assignee
			r.AdminComment = "cite the statute"

			Expect(store.UpdateRequest(ctx, r, models.StatusAnswered)).To(Succeed())

			stored, err := store.GetRequest(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(models.StatusAssigned))
			Expect(*stored.AssigneeID).To(Equal(assignee))
			Expect(stored.AdminComment).To(Equal("cite the statute"))
		})

		It("should clear the assignee", func() {
			r := newRequest(1, 1, models.StatusAssigned)
			assignee := int64(20)
			r.AssigneeID = &assignee
			Expect(store.UpdateRequest(ctx, r, models.StatusAssigned)).To(Succeed())

			r.Status = models.StatusApproved
			r.AssigneeID = nil
			Expect(store.UpdateRequest(ctx, r, models.StatusAssigned)).To(Succeed())

			stored, err := store.GetRequest(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.AssigneeID).To(BeNil())
		})

		It("should refuse a stale status without writing", func() {
			r := newRequest(1, 1, models.StatusApproved)
			r.Status = models.StatusDeclined

			Expect(store.UpdateRequest(ctx, r, models.StatusPending)).To(MatchError(models.ErrStatusMismatch))

			stored, err := store.GetRequest(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(models.StatusApproved))
		})

		It("should let only the first of two writers with the same expectation win", func() {
			r := newRequest(1, 1, models.StatusPending)

			approve := *r
			approve.Status = models.StatusApproved
			decline := *r
			decline.Status = models.StatusDeclined

			Expect(store.UpdateRequest(ctx, &approve, models.StatusPending)).To(Succeed())
			Expect(store.UpdateRequest(ctx, &decline, models.StatusPending)).To(MatchError(models.ErrStatusMismatch))

			stored, err := store.GetRequest(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(models.StatusApproved))
		})

		It("should report a missing request as not found", func() {
			r := &models.Request{ID: 404, Status: models.StatusApproved}
			Expect(store.UpdateRequest(ctx, r, models.StatusPending)).To(MatchError(models.ErrNotFound))
			_, err := store.GetRequest(ctx, 404)
			Expect(err).To(MatchError(models.ErrNotFound))
		})
	})

	Describe("ListRequests", func() {
		It("should filter by requester and status, newest first", func() {
			first := newRequest(1, 1, models.StatusClosed)
			second := newRequest(1, 1, models.StatusPending)
			newRequest(2, 1, models.StatusPending)

			all, err := store.ListRequests(ctx, models.RequestFilter{RequesterID: &first.RequesterID})
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
			Expect(all[0].ID).To(Equal(second.ID))
			Expect(all[1].ID).To(Equal(first.ID))

			active, err := store.CountRequests(ctx, models.RequestFilter{
				RequesterID: &first.RequesterID,
				Statuses:    models.ActiveStatuses,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(Equal(int64(1)))
		})

		It("should filter by category", func() {
			newRequest(1, 7, models.StatusPending)
			newRequest(2, 8, models.StatusPending)

			category := int64(7)
			count, err := store.CountRequests(ctx, models.RequestFilter{CategoryID: &category})
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})
	})

	Describe("PurgeRequests", func() {
		It("should delete only finished requests past the cutoff", func() {
			closed := newRequest(1, 1, models.StatusClosed)
			declined := newRequest(2, 1, models.StatusDeclined)
			pending := newRequest(3, 1, models.StatusPending)

			purged, err := store.PurgeRequests(ctx, time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(purged).To(BeZero())

			purged, err = store.PurgeRequests(ctx, -time.Hour)
			Expect(err).NotTo(HaveOccurred())
			Expect(purged).To(Equal(int64(2)))

			_, err = store.GetRequest(ctx, closed.ID)
			Expect(err).To(MatchError(models.ErrNotFound))
			_, err = store.GetRequest(ctx, declined.ID)
			Expect(err).To(MatchError(models.ErrNotFound))
			_, err = store.GetRequest(ctx, pending.ID)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("categories and FAQ entries", func() {
		It("should find categories by name and hashtag", func() {
			c := &models.Category{Name: "Housing", Hashtag: "#housing"}
			Expect(store.CreateCategory(ctx, c)).To(Succeed())
			Expect(c.ID).NotTo(BeZero())

			byName, err := store.FindCategoryByName(ctx, "Housing")
			Expect(err).NotTo(HaveOccurred())
			Expect(byName.ID).To(Equal(c.ID))

			byTag, err := store.FindCategoryByHashtag(ctx, "#housing")
			Expect(err).NotTo(HaveOccurred())
			Expect(byTag.ID).To(Equal(c.ID))

			_, err = store.FindCategoryByName(ctx, "Tax")
			Expect(err).To(MatchError(models.ErrNotFound))
		})

		It("should rename and delete categories", func() {
			c := &models.Category{Name: "Housing", Hashtag: "#housing"}
			Expect(store.CreateCategory(ctx, c)).To(Succeed())

			c.Name = "Tenancy"
			Expect(store.UpdateCategory(ctx, c)).To(Succeed())
			stored, err := store.GetCategory(ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Name).To(Equal("Tenancy"))

			Expect(store.DeleteCategory(ctx, c.ID)).To(Succeed())
			Expect(store.DeleteCategory(ctx, c.ID)).To(MatchError(models.ErrNotFound))
			Expect(store.UpdateCategory(ctx, c)).To(MatchError(models.ErrNotFound))
		})

		It("should list categories by name", func() {
			for _, name := range []string{"Labour", "Family", "Housing"} {
				Expect(store.CreateCategory(ctx, &models.Category{Name: name, Hashtag: "#" + name})).To(Succeed())
			}

			categories, err := store.ListCategories(ctx)
			Expect(err).NotTo(HaveOccurred())
			names := make([]string, 0, len(categories))
			for _, c := range categories {
				names = append(names, c.Name)
			}
			Expect(names).To(Equal([]string{"Family", "Housing", "Labour"}))
		})

		It("should delete every FAQ entry of a category", func() {
			housing := &models.Category{Name: "Housing", Hashtag: "#housing"}
			labour := &models.Category{Name: "Labour", Hashtag: "#labour"}
			Expect(store.CreateCategory(ctx, housing)).To(Succeed())
			Expect(store.CreateCategory(ctx, labour)).To(Succeed())
			for _, f := range []*models.FAQ{
				{Question: "Can I be evicted in winter?", Answer: "Yes.", CategoryID: housing.ID},
				{Question: "Who pays for repairs?", Answer: "The landlord.", CategoryID: housing.ID},
				{Question: "How long is a probation period?", Answer: "Three months.", CategoryID: labour.ID},
			} {
				Expect(store.CreateFAQ(ctx, f)).To(Succeed())
			}

			deleted, err := store.DeleteFAQsByCategory(ctx, housing.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(int64(2)))

			remaining, err := store.ListFAQs(ctx, labour.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(remaining).To(HaveLen(1))
		})

		It("should move and delete a FAQ entry", func() {
			f := &models.FAQ{Question: "Who pays for repairs?", Answer: "The landlord.", CategoryID: 1}
			Expect(store.CreateFAQ(ctx, f)).To(Succeed())

			f.CategoryID = 2
			Expect(store.UpdateFAQ(ctx, f)).To(Succeed())
			stored, err := store.GetFAQ(ctx, f.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.CategoryID).To(Equal(int64(2)))

			Expect(store.DeleteFAQ(ctx, f.ID)).To(Succeed())
			_, err = store.GetFAQ(ctx, f.ID)
			Expect(err).To(MatchError(models.ErrNotFound))
			Expect(store.DeleteFAQ(ctx, f.ID)).To(MatchError(models.ErrNotFound))
		})
	})
}
