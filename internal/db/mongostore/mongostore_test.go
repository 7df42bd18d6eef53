package mongostore_test

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lawclinic/helpdesk-bot/internal/db"
	"github.com/lawclinic/helpdesk-bot/internal/db/mongostore"
	"github.com/lawclinic/helpdesk-bot/internal/db/storetest"
)

// Each test gets its own database, dropped afterwards.
var _ = Describe("Store", func() {
	storetest.Behaviour(func() db.Store {
		uri := os.Getenv("MONGO_URI")
		if uri == "" {
			Skip("MONGO_URI not set")
		}
		ctx := context.Background()
		database := "helpdesk_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

		store, err := mongostore.New(ctx, uri, database)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		admin, err := mongo.Connect(options.Client().ApplyURI(uri))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(admin.Database(database).Drop(context.Background())).To(Succeed())
			Expect(admin.Disconnect(context.Background())).To(Succeed())
		})

		return store
	})
})
