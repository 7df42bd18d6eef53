package convo_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/lawclinic/helpdesk-bot/internal/convo"
	"github.com/lawclinic/helpdesk-bot/internal/models"
)

const actor int64 = 1001

// trackerBehaviour is shared by every Tracker implementation.
func trackerBehaviour(newTracker func() convo.Tracker) {
	var (
		ctx     context.Context
		tracker convo.Tracker
	)

	BeforeEach(func() {
		ctx = context.Background()
		tracker = newTracker()
	})

	It("should report no state for an unknown actor", func() {
		_, ok, err := tracker.Current(ctx, actor)

		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should return the flow started by Begin", func() {
		Expect(tracker.Begin(ctx, actor, convo.FlowEnteringCategoryName, convo.Payload{})).To(Succeed())

		st, ok, err := tracker.Current(ctx, actor)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(st.Flow).To(Equal(convo.FlowEnteringCategoryName))
	})

	It("should replace a flow in progress on Begin", func() {
		Expect(tracker.Begin(ctx, actor, convo.FlowEnteringCategoryName, convo.Payload{Name: "old"})).To(Succeed())
		Expect(tracker.Begin(ctx, actor, convo.FlowEnteringFAQQuestion, convo.Payload{})).To(Succeed())

		st, _, err := tracker.Current(ctx, actor)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Flow).To(Equal(convo.FlowEnteringFAQQuestion))
		Expect(st.Payload.Name).To(BeEmpty())
	})

	Context("when advancing", func() {
		BeforeEach(func() {
			Expect(tracker.Begin(ctx, actor, convo.FlowEnteringCategoryName, convo.Payload{})).To(Succeed())
		})

		It("should move to the next phase and apply the patch", func() {
			st, err := tracker.Advance(ctx, actor, convo.FlowEnteringCategoryName, convo.FlowEnteringCategoryHashtag,
				func(p *convo.Payload) { p.Name = "Family law" })

			Expect(err).NotTo(HaveOccurred())
			Expect(st.Flow).To(Equal(convo.FlowEnteringCategoryHashtag))
			Expect(st.Payload.Name).To(Equal("Family law"))

			stored, _, err := tracker.Current(ctx, actor)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(Equal(st))
		})

		It("should refuse an unexpected phase and keep the state", func() {
			_, err := tracker.Advance(ctx, actor, convo.FlowEnteringCategoryHashtag, convo.FlowEnteringCategoryName, nil)

			Expect(err).To(MatchError(models.ErrStateMismatch))
			st, _, err := tracker.Current(ctx, actor)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Flow).To(Equal(convo.FlowEnteringCategoryName))
		})
	})

	It("should refuse to advance an actor without state", func() {
		_, err := tracker.Advance(ctx, actor, convo.FlowEnteringCategoryName, convo.FlowEnteringCategoryHashtag, nil)

		Expect(err).To(MatchError(models.ErrStateMismatch))
		_, ok, err := tracker.Current(ctx, actor)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should drop the state on End", func() {
		Expect(tracker.Begin(ctx, actor, convo.FlowWritingAnswer, convo.Payload{RequestID: 5})).To(Succeed())
		Expect(tracker.End(ctx, actor)).To(Succeed())

		_, ok, err := tracker.Current(ctx, actor)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})
}

var _ = Describe("Memory tracker", func() {
	trackerBehaviour(func() convo.Tracker { return convo.NewMemory() })
})

var _ = Describe("Redis tracker", func() {
	var client *redis.Client

	BeforeEach(func() {
		url := os.Getenv("REDIS_URL")
		if url == "" {
			Skip("REDIS_URL not set")
		}
		opts, err := redis.ParseURL(url)
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(opts)
		DeferCleanup(func() {
			client.Del(context.Background(), "helpdesk:convo:test:1001")
			client.Close()
		})
	})

	trackerBehaviour(func() convo.Tracker { return convo.NewRedis(client, "test", time.Minute) })
})

var _ = Describe("Trackers", func() {
	It("should keep the three keyspaces independent", func() {
		ctx := context.Background()
		trackers := convo.NewMemoryTrackers()

		Expect(trackers.Requester.Begin(ctx, actor, convo.FlowEnteringRequest, convo.Payload{})).To(Succeed())
		Expect(trackers.Student.Begin(ctx, actor, convo.FlowWritingAnswer, convo.Payload{})).To(Succeed())

		_, ok, err := trackers.Admin.Current(ctx, actor)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		st, ok, err := trackers.Student.Current(ctx, actor)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(st.Flow).To(Equal(convo.FlowWritingAnswer))
	})

	It("should end every keyspace on EndAll", func() {
		ctx := context.Background()
		trackers := convo.NewMemoryTrackers()
		Expect(trackers.Requester.Begin(ctx, actor, convo.FlowEnteringRequest, convo.Payload{})).To(Succeed())
		Expect(trackers.Admin.Begin(ctx, actor, convo.FlowEnteringDeclineReason, convo.Payload{})).To(Succeed())

		Expect(trackers.EndAll(ctx, actor)).To(Succeed())

		for _, tr := range []convo.Tracker{trackers.Requester, trackers.Admin, trackers.Student} {
			_, ok, err := tr.Current(ctx, actor)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		}
	})
})
