package db_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lawclinic/helpdesk-bot/internal/db"
	"github.com/lawclinic/helpdesk-bot/internal/db/storetest"
	"github.com/lawclinic/helpdesk-bot/internal/models"
)

var _ = Describe("DB", func() {
	storetest.Behaviour(func() db.Store {
		store, err := db.New(":memory:", "")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)
		return store
	})

	It("should keep data across reopening the same file", func() {
		ctx := context.Background()
		path := filepath.Join(GinkgoT().TempDir(), "helpdesk.db")

		store, err := db.New(path, "")
		Expect(err).NotTo(HaveOccurred())
		_, err = store.EnsureUser(ctx, &models.User{TelegramID: 10, FirstName: "Alice"})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Close()).To(Succeed())

		store, err = db.New(path, "")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		u, err := store.GetUser(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(u.FirstName).To(Equal("Alice"))
	})
})
