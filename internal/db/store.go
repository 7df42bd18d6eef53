package db

import (
	"context"
	"time"

	"github.com/lawclinic/helpdesk-bot/internal/models"
)

// Store is the persistence boundary used by the bot. Lookups of missing
// records return models.ErrNotFound. There are no transactions; callers
// rely on the conditional writes UpdateRequest and AssignUser instead.
type Store interface {
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	// EnsureUser returns the stored user, creating it as a guest on first contact.
	EnsureUser(ctx context.Context, u *models.User) (*models.User, error)
	SetUserRole(ctx context.Context, telegramID int64, role models.Role) error
	SetUserLanguage(ctx context.Context, telegramID int64, language string) error
	// AssignUser sets the user's current assignment only if it is empty,
	// otherwise it returns models.ErrAssignmentBusy.
	AssignUser(ctx context.Context, telegramID, requestID int64) error
	// ReleaseUser clears the current assignment if it still points at requestID.
	ReleaseUser(ctx context.Context, telegramID, requestID int64) error

	CreateCategory(ctx context.Context, c *models.Category) error
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	FindCategoryByName(ctx context.Context, name string) (*models.Category, error)
	FindCategoryByHashtag(ctx context.Context, hashtag string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	UpdateCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, id int64) error

	CreateFAQ(ctx context.Context, f *models.FAQ) error
	GetFAQ(ctx context.Context, id int64) (*models.FAQ, error)
	ListFAQs(ctx context.Context, categoryID int64) ([]models.FAQ, error)
	UpdateFAQ(ctx context.Context, f *models.FAQ) error
	DeleteFAQ(ctx context.Context, id int64) error
	DeleteFAQsByCategory(ctx context.Context, categoryID int64) (int64, error)

	CreateRequest(ctx context.Context, r *models.Request) error
	GetRequest(ctx context.Context, id int64) (*models.Request, error)
	// UpdateRequest writes all mutable fields of r only if the stored status
	// still equals expected, otherwise it returns models.ErrStatusMismatch.
	UpdateRequest(ctx context.Context, r *models.Request, expected models.RequestStatus) error
	ListRequests(ctx context.Context, f models.RequestFilter) ([]models.Request, error)
	CountRequests(ctx context.Context, f models.RequestFilter) (int64, error)
	// PurgeRequests deletes closed and declined requests not updated within olderThan.
	PurgeRequests(ctx context.Context, olderThan time.Duration) (int64, error)

	Close() error
}
