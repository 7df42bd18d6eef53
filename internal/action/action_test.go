package action_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lawclinic/helpdesk-bot/internal/action"
)

var _ = Describe("Token", func() {
	Describe("Parse", func() {
		It("should decode a single id", func() {
			tok, err := action.Parse("approve_request:42")

			Expect(err).NotTo(HaveOccurred())
			Expect(tok.Kind).To(Equal(action.ApproveRequest))
			Expect(tok.ID).To(Equal(int64(42)))
			Expect(tok.ID2).To(BeZero())
		})

		It("should decode two ids", func() {
			tok, err := action.Parse("set_faq_category:7:1893402551128064000")

			Expect(err).NotTo(HaveOccurred())
			Expect(tok.Kind).To(Equal(action.SetFAQCategory))
			Expect(tok.ID).To(Equal(int64(7)))
			Expect(tok.ID2).To(Equal(int64(1893402551128064000)))
		})

		It("should decode a bare verb", func() {
			tok, err := action.Parse("cancel")

			Expect(err).NotTo(HaveOccurred())
			Expect(tok.Kind).To(Equal(action.Cancel))
		})

		It("should decode a language choice", func() {
			tok, err := action.Parse("lang:ru")

			Expect(err).NotTo(HaveOccurred())
			Expect(tok.Kind).To(Equal(action.Language))
			Expect(tok.Locale).To(Equal("ru"))
		})

		DescribeTable("rejects malformed payloads",
			func(data string) {
				_, err := action.Parse(data)
				Expect(err).To(MatchError(action.ErrMalformed))
			},
			Entry("unknown verb", "launch:1"),
			Entry("empty payload", ""),
			Entry("missing id", "take_request"),
			Entry("extra id", "take_request:1:2"),
			Entry("non-numeric id", "take_request:abc"),
			Entry("missing second id", "set_faq_category:1"),
			Entry("id on a bare verb", "cancel:1"),
			Entry("empty locale", "lang:"),
		)
	})

	Describe("String", func() {
		DescribeTable("composes the wire form",
			func(tok action.Token, want string) {
				Expect(tok.String()).To(Equal(want))

				parsed, err := action.Parse(want)
				Expect(err).NotTo(HaveOccurred())
				Expect(parsed).To(Equal(tok))
			},
			Entry("request control", action.New(action.TakeRequest, 1893402551128064000), "take_request:1893402551128064000"),
			Entry("two ids", action.New(action.SetFAQCategory, 3, 9), "set_faq_category:3:9"),
			Entry("bare verb", action.New(action.Cancel), "cancel"),
			Entry("language", action.NewLanguage("en"), "lang:en"),
		)

		It("should fit in a Telegram callback payload", func() {
			tok := action.New(action.SetFAQCategory, 1<<62, 1<<62)
			Expect(len(tok.String())).To(BeNumerically("<=", 64))
		})
	})
})
