package models_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lawclinic/helpdesk-bot/internal/models"
)

var _ = Describe("Next", func() {
	DescribeTable("allowed transitions",
		func(event models.Event, from, to models.RequestStatus) {
			next, err := models.Next(event, from)
			Expect(err).NotTo(HaveOccurred())
			Expect(next).To(Equal(to))
		},
		Entry("submit", models.EventSubmit, models.RequestStatus(""), models.StatusPending),
		Entry("approve", models.EventApprove, models.StatusPending, models.StatusApproved),
		Entry("decline", models.EventDecline, models.StatusPending, models.StatusDeclined),
		Entry("take", models.EventTake, models.StatusApproved, models.StatusAssigned),
		Entry("submit answer", models.EventSubmitAnswer, models.StatusAssigned, models.StatusAnswered),
		Entry("approve answer", models.EventApproveAnswer, models.StatusAnswered, models.StatusClosed),
		Entry("decline answer", models.EventDeclineAnswer, models.StatusAnswered, models.StatusAssigned),
		Entry("reject assigned", models.EventRejectAssignment, models.StatusAssigned, models.StatusApproved),
		Entry("reject answered", models.EventRejectAssignment, models.StatusAnswered, models.StatusApproved),
	)

	It("should refuse every other pair", func() {
		all := []models.RequestStatus{"", models.StatusPending, models.StatusApproved, models.StatusAssigned,
			models.StatusAnswered, models.StatusClosed, models.StatusDeclined}

		allowed := 0
		for event := range models.Transitions {
			for _, from := range all {
				_, err := models.Next(event, from)
				if err == nil {
					allowed++
					continue
				}
				Expect(errors.Is(err, models.ErrStatusMismatch)).To(BeTrue(), fmt.Sprintf("%s from %q", event, from))
			}
		}
		Expect(allowed).To(Equal(9))
	})

	It("should refuse unknown events", func() {
		_, err := models.Next("escalate", models.StatusPending)
		Expect(err).To(MatchError(models.ErrStatusMismatch))
	})

	It("should never leave a terminal status", func() {
		for event := range models.Transitions {
			for _, from := range []models.RequestStatus{models.StatusClosed, models.StatusDeclined} {
				Expect(from.IsTerminal()).To(BeTrue())
				_, err := models.Next(event, from)
				Expect(err).To(HaveOccurred())
			}
		}
	})
})

var _ = Describe("ActiveRequestsError", func() {
	It("should unwrap to ErrActiveRequests and carry the count", func() {
		err := fmt.Errorf("delete category: %w", &models.ActiveRequestsError{Count: 2})

		var active *models.ActiveRequestsError
		Expect(errors.As(err, &active)).To(BeTrue())
		Expect(active.Count).To(Equal(int64(2)))
		Expect(errors.Is(err, models.ErrActiveRequests)).To(BeTrue())
	})
})
