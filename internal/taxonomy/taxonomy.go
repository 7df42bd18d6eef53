// Package taxonomy manages categories and FAQ entries.
//
// Uniqueness of category names and hashtags is checked with a lookup before
// each write; there is no storage-level constraint.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/lawclinic/helpdesk-bot/internal/db"
	"github.com/lawclinic/helpdesk-bot/internal/logger"
	"github.com/lawclinic/helpdesk-bot/internal/models"
)

const (
	MaxNameLength     = 64
	MaxHashtagLength  = 64
	MaxQuestionLength = 1024
	MaxAnswerLength   = 4000
)

var (
	ErrNameTaken    = fmt.Errorf("category name %w", models.ErrConflict)
	ErrHashtagTaken = fmt.Errorf("category hashtag %w", models.ErrConflict)
)

type Service struct {
	store db.Store
}

func NewService(store db.Store) *Service {
	return &Service{store: store}
}

// NormalizeHashtag trims s and prefixes it with the hashtag marker.
func NormalizeHashtag(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, models.HashtagMarker) {
		s = models.HashtagMarker + s
	}
	return s
}

func validateText(value string, max int) error {
	if err := validation.Validate(strings.TrimSpace(value),
		validation.Required,
		validation.RuneLength(1, max),
	); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return nil
}

// CheckName returns ErrNameTaken when another category than exceptID uses name.
func (s *Service) CheckName(ctx context.Context, name string, exceptID int64) error {
	if err := validateText(name, MaxNameLength); err != nil {
		return err
	}
	existing, err := s.store.FindCategoryByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != exceptID {
		return ErrNameTaken
	}
	return nil
}

// CheckHashtag returns ErrHashtagTaken when another category than exceptID
// uses the normalized hashtag.
func (s *Service) CheckHashtag(ctx context.Context, hashtag string, exceptID int64) error {
	hashtag = NormalizeHashtag(hashtag)
	if err := validateText(strings.TrimPrefix(hashtag, models.HashtagMarker), MaxHashtagLength); err != nil {
		return err
	}
	existing, err := s.store.FindCategoryByHashtag(ctx, hashtag)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != exceptID {
		return ErrHashtagTaken
	}
	return nil
}

func (s *Service) CreateCategory(ctx context.Context, name, hashtag string) (*models.Category, error) {
	if err := s.CheckName(ctx, name, 0); err != nil {
		return nil, err
	}
	if err := s.CheckHashtag(ctx, hashtag, 0); err != nil {
		return nil, err
	}

	c := &models.Category{Name: strings.TrimSpace(name), Hashtag: NormalizeHashtag(hashtag)}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	logger.Audit(ctx, "category_created", "category_id", c.ID, "name", c.Name, "hashtag", c.Hashtag)
	return c, nil
}

// RenameCategory sets a new name and returns the old one.
func (s *Service) RenameCategory(ctx context.Context, categoryID int64, name string) (string, error) {
	if err := s.CheckName(ctx, name, categoryID); err != nil {
		return "", err
	}
	c, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return "", err
	}
	old := c.Name
	c.Name = strings.TrimSpace(name)
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return "", fmt.Errorf("update category: %w", err)
	}
	logger.Audit(ctx, "category_renamed", "category_id", c.ID, "old", old, "new", c.Name)
	return old, nil
}

// ChangeHashtag sets a new hashtag and returns the old one.
func (s *Service) ChangeHashtag(ctx context.Context, categoryID int64, hashtag string) (string, error) {
	if err := s.CheckHashtag(ctx, hashtag, categoryID); err != nil {
		return "", err
	}
	c, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return "", err
	}
	old := c.Hashtag
	c.Hashtag = NormalizeHashtag(hashtag)
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return "", fmt.Errorf("update category: %w", err)
	}
	logger.Audit(ctx, "category_hashtag_changed", "category_id", c.ID, "old", old, "new", c.Hashtag)
	return old, nil
}

// DeleteCategory refuses with *models.ActiveRequestsError while requests in
// an active status reference the category. Otherwise it deletes the
// category's FAQ entries and then the category, returning the number of FAQ
// entries removed.
func (s *Service) DeleteCategory(ctx context.Context, categoryID int64) (int64, error) {
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		return 0, err
	}

	active, err := s.store.CountRequests(ctx, models.RequestFilter{
		CategoryID: &categoryID,
		Statuses:   models.ActiveStatuses,
	})
	if err != nil {
		return 0, fmt.Errorf("count active requests: %w", err)
	}
	if active > 0 {
		return 0, &models.ActiveRequestsError{Count: active}
	}

	deleted, err := s.store.DeleteFAQsByCategory(ctx, categoryID)
	if err != nil {
		return 0, fmt.Errorf("delete faqs: %w", err)
	}
	if err := s.store.DeleteCategory(ctx, categoryID); err != nil {
		return deleted, fmt.Errorf("delete category: %w", err)
	}
	logger.Audit(ctx, "category_deleted", "category_id", categoryID, "faqs_deleted", deleted)
	return deleted, nil
}

func (s *Service) Category(ctx context.Context, categoryID int64) (*models.Category, error) {
	return s.store.GetCategory(ctx, categoryID)
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	return s.store.ListCategories(ctx)
}

// FAQ entries

func (s *Service) CreateFAQ(ctx context.Context, question, answer string, categoryID int64) (*models.FAQ, error) {
	if err := validateText(question, MaxQuestionLength); err != nil {
		return nil, err
	}
	if err := validateText(answer, MaxAnswerLength); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	f := &models.FAQ{
		Question:   strings.TrimSpace(question),
		Answer:     strings.TrimSpace(answer),
		CategoryID: categoryID,
	}
	if err := s.store.CreateFAQ(ctx, f); err != nil {
		return nil, fmt.Errorf("create faq: %w", err)
	}
	logger.Audit(ctx, "faq_created", "faq_id", f.ID, "category_id", categoryID)
	return f, nil
}

func (s *Service) FAQ(ctx context.Context, faqID int64) (*models.FAQ, error) {
	return s.store.GetFAQ(ctx, faqID)
}

func (s *Service) FAQs(ctx context.Context, categoryID int64) ([]models.FAQ, error) {
	return s.store.ListFAQs(ctx, categoryID)
}

func (s *Service) UpdateFAQQuestion(ctx context.Context, faqID int64, question string) error {
	if err := validateText(question, MaxQuestionLength); err != nil {
		return err
	}
	return s.updateFAQ(ctx, faqID, func(f *models.FAQ) { f.Question = strings.TrimSpace(question) })
}

func (s *Service) UpdateFAQAnswer(ctx context.Context, faqID int64, answer string) error {
	if err := validateText(answer, MaxAnswerLength); err != nil {
		return err
	}
	return s.updateFAQ(ctx, faqID, func(f *models.FAQ) { f.Answer = strings.TrimSpace(answer) })
}

func (s *Service) SetFAQCategory(ctx context.Context, faqID, categoryID int64) (*models.Category, error) {
	c, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if err := s.updateFAQ(ctx, faqID, func(f *models.FAQ) { f.CategoryID = categoryID }); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) DeleteFAQ(ctx context.Context, faqID int64) error {
	if err := s.store.DeleteFAQ(ctx, faqID); err != nil {
		return err
	}
	logger.Audit(ctx, "faq_deleted", "faq_id", faqID)
	return nil
}

func (s *Service) updateFAQ(ctx context.Context, faqID int64, mutate func(*models.FAQ)) error {
	f, err := s.store.GetFAQ(ctx, faqID)
	if err != nil {
		return err
	}
	mutate(f)
	if err := s.store.UpdateFAQ(ctx, f); err != nil {
		return fmt.Errorf("update faq: %w", err)
	}
	return nil
}
