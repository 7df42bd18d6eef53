package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lawclinic/helpdesk-bot/internal/logger"
)

var _ = Describe("ContextHandler", func() {
	var (
		buf bytes.Buffer
		log *slog.Logger
	)

	record := func() map[string]any {
		var out map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &out)).To(Succeed())
		return out
	}

	BeforeEach(func() {
		buf.Reset()
		log = slog.New(logger.NewContextHandler(slog.NewJSONHandler(&buf, nil)))
	})

	It("should add the fields carried by the context", func() {
		ctx := logger.WithFields(context.Background(), logger.Fields{UpdateID: "u-1", ActorID: 42, ChatID: -7})
		ctx = logger.WithFields(ctx, logger.Fields{RequestID: 9, Component: "dispatch"})

		log.InfoContext(ctx, "handled")

		out := record()
		Expect(out).To(HaveKeyWithValue("update_id", "u-1"))
		Expect(out).To(HaveKeyWithValue("actor_id", BeNumerically("==", 42)))
		Expect(out).To(HaveKeyWithValue("chat_id", BeNumerically("==", -7)))
		Expect(out).To(HaveKeyWithValue("request_id", BeNumerically("==", 9)))
		Expect(out).To(HaveKeyWithValue("component", "dispatch"))
	})

	It("should omit unset fields", func() {
		log.InfoContext(context.Background(), "idle")

		out := record()
		Expect(out).NotTo(HaveKey("update_id"))
		Expect(out).NotTo(HaveKey("request_id"))
	})

	It("should keep the handler when attributes are added", func() {
		ctx := logger.WithFields(context.Background(), logger.Fields{ActorID: 5})

		log.With("component", "purge").InfoContext(ctx, "purged")

		Expect(record()).To(HaveKeyWithValue("actor_id", BeNumerically("==", 5)))
	})
})

var _ = Describe("Audit", func() {
	It("should log the event with its attributes in the audit group", func() {
		var buf bytes.Buffer
		previous := slog.Default()
		DeferCleanup(slog.SetDefault, previous)
		slog.SetDefault(slog.New(logger.NewContextHandler(slog.NewJSONHandler(&buf, nil))))

		logger.Audit(context.Background(), "request_approve", "request_id", int64(3))

		var out map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &out)).To(Succeed())
		Expect(out).To(HaveKeyWithValue("msg", "request_approve"))
		Expect(out).To(HaveKeyWithValue("audit", HaveKeyWithValue("request_id", BeNumerically("==", 3))))
	})
})
