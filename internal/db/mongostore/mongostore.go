// Package mongostore implements db.Store on a MongoDB database.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lawclinic/helpdesk-bot/internal/db"
	"github.com/lawclinic/helpdesk-bot/internal/id"
	"github.com/lawclinic/helpdesk-bot/internal/models"
)

type Store struct {
	client     *mongo.Client
	users      *mongo.Collection
	categories *mongo.Collection
	faqs       *mongo.Collection
	requests   *mongo.Collection
}

var _ db.Store = (*Store)(nil)

// New connects to uri, verifies the connection and ensures indexes.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	mdb := client.Database(database)
	s := &Store{
		client:     client,
		users:      mdb.Collection("users"),
		categories: mdb.Collection("categories"),
		faqs:       mdb.Collection("faqs"),
		requests:   mdb.Collection("requests"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.faqs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "category_id", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := s.requests.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "requester_id", Value: 1}}},
		{Keys: bson.D{{Key: "assignee_id", Value: 1}}},
		{Keys: bson.D{{Key: "category_id", Value: 1}}},
	})
	return err
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any) (*T, error) {
	var out T
	err := coll.FindOne(ctx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func updateOne(ctx context.Context, coll *mongo.Collection, filter, update any) error {
	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func deleteOne(ctx context.Context, coll *mongo.Collection, filter any) error {
	res, err := coll.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Users

func (s *Store) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	doc, err := findOne[userDoc](ctx, s.users, bson.M{"_id": telegramID})
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (s *Store) EnsureUser(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now()
	role := u.Role
	if role == "" {
		role = models.RoleGuest
	}
	insert := bson.M{
		"username":   u.Username,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"language":   u.Language,
		"role":       string(role),
		"created_at": now,
		"updated_at": now,
	}
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": u.TelegramID},
		bson.M{"$setOnInsert": insert},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUser(ctx, u.TelegramID)
}

func (s *Store) SetUserRole(ctx context.Context, telegramID int64, role models.Role) error {
	return updateOne(ctx, s.users, bson.M{"_id": telegramID},
		bson.M{"$set": bson.M{"role": string(role), "updated_at": time.Now()}})
}

func (s *Store) SetUserLanguage(ctx context.Context, telegramID int64, language string) error {
	return updateOne(ctx, s.users, bson.M{"_id": telegramID},
		bson.M{"$set": bson.M{"language": language, "updated_at": time.Now()}})
}

func (s *Store) AssignUser(ctx context.Context, telegramID, requestID int64) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": telegramID, "current_assignment_id": nil},
		bson.M{"$set": bson.M{"current_assignment_id": requestID, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetUser(ctx, telegramID); err != nil {
			return err
		}
		return models.ErrAssignmentBusy
	}
	return nil
}

func (s *Store) ReleaseUser(ctx context.Context, telegramID, requestID int64) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": telegramID, "current_assignment_id": requestID},
		bson.M{"$set": bson.M{"current_assignment_id": nil, "updated_at": time.Now()}},
	)
	return err
}

// Categories

func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	if c.ID == 0 {
		c.ID = id.New()
	}
	c.CreatedAt = time.Now()
	_, err := s.categories.InsertOne(ctx, categoryFromModel(c))
	return err
}

func (s *Store) GetCategory(ctx context.Context, categoryID int64) (*models.Category, error) {
	doc, err := findOne[categoryDoc](ctx, s.categories, bson.M{"_id": categoryID})
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (s *Store) FindCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	doc, err := findOne[categoryDoc](ctx, s.categories, bson.M{"name": name})
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (s *Store) FindCategoryByHashtag(ctx context.Context, hashtag string) (*models.Category, error) {
	doc, err := findOne[categoryDoc](ctx, s.categories, bson.M{"hashtag": hashtag})
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	cursor, err := s.categories.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []categoryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	categories := make([]models.Category, 0, len(docs))
	for i := range docs {
		categories = append(categories, *docs[i].model())
	}
	return categories, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c *models.Category) error {
	return updateOne(ctx, s.categories, bson.M{"_id": c.ID},
		bson.M{"$set": bson.M{"name": c.Name, "hashtag": c.Hashtag}})
}

func (s *Store) DeleteCategory(ctx context.Context, categoryID int64) error {
	return deleteOne(ctx, s.categories, bson.M{"_id": categoryID})
}

// FAQs

func (s *Store) CreateFAQ(ctx context.Context, f *models.FAQ) error {
	if f.ID == 0 {
		f.ID = id.New()
	}
	f.CreatedAt = time.Now()
	_, err := s.faqs.InsertOne(ctx, faqFromModel(f))
	return err
}

func (s *Store) GetFAQ(ctx context.Context, faqID int64) (*models.FAQ, error) {
	doc, err := findOne[faqDoc](ctx, s.faqs, bson.M{"_id": faqID})
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (s *Store) ListFAQs(ctx context.Context, categoryID int64) ([]models.FAQ, error) {
	cursor, err := s.faqs.Find(ctx, bson.M{"category_id": categoryID},
		options.Find().SetSort(bson.D{{Key: "question", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []faqDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	faqs := make([]models.FAQ, 0, len(docs))
	for i := range docs {
		faqs = append(faqs, *docs[i].model())
	}
	return faqs, nil
}

func (s *Store) UpdateFAQ(ctx context.Context, f *models.FAQ) error {
	return updateOne(ctx, s.faqs, bson.M{"_id": f.ID},
		bson.M{"$set": bson.M{"question": f.Question, "answer": f.Answer, "category_id": f.CategoryID}})
}

func (s *Store) DeleteFAQ(ctx context.Context, faqID int64) error {
	return deleteOne(ctx, s.faqs, bson.M{"_id": faqID})
}

func (s *Store) DeleteFAQsByCategory(ctx context.Context, categoryID int64) (int64, error) {
	res, err := s.faqs.DeleteMany(ctx, bson.M{"category_id": categoryID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Requests

func (s *Store) CreateRequest(ctx context.Context, r *models.Request) error {
	if r.ID == 0 {
		r.ID = id.New()
	}
	if r.Status == "" {
		r.Status = models.StatusPending
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	_, err := s.requests.InsertOne(ctx, requestFromModel(r))
	return err
}

func (s *Store) GetRequest(ctx context.Context, requestID int64) (*models.Request, error) {
	doc, err := findOne[requestDoc](ctx, s.requests, bson.M{"_id": requestID})
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (s *Store) UpdateRequest(ctx context.Context, r *models.Request, expected models.RequestStatus) error {
	r.UpdatedAt = time.Now()
	res, err := s.requests.UpdateOne(ctx,
		bson.M{"_id": r.ID, "status": string(expected)},
		bson.M{"$set": bson.M{
			"status":        string(r.Status),
			"admin_comment": r.AdminComment,
			"assignee_id":   r.AssigneeID,
			"answer_text":   r.AnswerText,
			"updated_at":    r.UpdatedAt,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetRequest(ctx, r.ID); err != nil {
			return err
		}
		return models.ErrStatusMismatch
	}
	return nil
}

func requestFilter(f models.RequestFilter) bson.M {
	filter := bson.M{}
	if f.RequesterID != nil {
		filter["requester_id"] = *f.RequesterID
	}
	if f.AssigneeID != nil {
		filter["assignee_id"] = *f.AssigneeID
	}
	if f.CategoryID != nil {
		filter["category_id"] = *f.CategoryID
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	return filter
}

func (s *Store) ListRequests(ctx context.Context, f models.RequestFilter) ([]models.Request, error) {
	cursor, err := s.requests.Find(ctx, requestFilter(f),
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []requestDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	requests := make([]models.Request, 0, len(docs))
	for i := range docs {
		requests = append(requests, *docs[i].model())
	}
	return requests, nil
}

func (s *Store) CountRequests(ctx context.Context, f models.RequestFilter) (int64, error) {
	return s.requests.CountDocuments(ctx, requestFilter(f))
}

func (s *Store) PurgeRequests(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.requests.DeleteMany(ctx, bson.M{
		"status":     bson.M{"$in": []string{string(models.StatusClosed), string(models.StatusDeclined)}},
		"updated_at": bson.M{"$lt": time.Now().Add(-olderThan)},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
