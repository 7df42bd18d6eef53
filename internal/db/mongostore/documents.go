package mongostore

import (
	"time"

	"github.com/lawclinic/helpdesk-bot/internal/models"
)

type userDoc struct {
	TelegramID          int64     `bson:"_id"`
	Username            string    `bson:"username"`
	FirstName           string    `bson:"first_name"`
	LastName            string    `bson:"last_name"`
	Language            string    `bson:"language"`
	Role                string    `bson:"role"`
	CurrentAssignmentID *int64    `bson:"current_assignment_id"`
	CreatedAt           time.Time `bson:"created_at"`
	UpdatedAt           time.Time `bson:"updated_at"`
}

func (d *userDoc) model() *models.User {
	return &models.User{
		TelegramID:          d.TelegramID,
		Username:            d.Username,
		FirstName:           d.FirstName,
		LastName:            d.LastName,
		Language:            d.Language,
		Role:                models.Role(d.Role),
		CurrentAssignmentID: d.CurrentAssignmentID,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

type categoryDoc struct {
	ID        int64     `bson:"_id"`
	Name      string    `bson:"name"`
	Hashtag   string    `bson:"hashtag"`
	CreatedAt time.Time `bson:"created_at"`
}

func categoryFromModel(c *models.Category) categoryDoc {
	return categoryDoc{ID: c.ID, Name: c.Name, Hashtag: c.Hashtag, CreatedAt: c.CreatedAt}
}

func (d *categoryDoc) model() *models.Category {
	return &models.Category{ID: d.ID, Name: d.Name, Hashtag: d.Hashtag, CreatedAt: d.CreatedAt}
}

type faqDoc struct {
	ID         int64     `bson:"_id"`
	Question   string    `bson:"question"`
	Answer     string    `bson:"answer"`
	CategoryID int64     `bson:"category_id"`
	CreatedAt  time.Time `bson:"created_at"`
}

func faqFromModel(f *models.FAQ) faqDoc {
	return faqDoc{ID: f.ID, Question: f.Question, Answer: f.Answer, CategoryID: f.CategoryID, CreatedAt: f.CreatedAt}
}

func (d *faqDoc) model() *models.FAQ {
	return &models.FAQ{ID: d.ID, Question: d.Question, Answer: d.Answer, CategoryID: d.CategoryID, CreatedAt: d.CreatedAt}
}

type requestDoc struct {
	ID           int64     `bson:"_id"`
	RequesterID  int64     `bson:"requester_id"`
	CategoryID   int64     `bson:"category_id"`
	Text         string    `bson:"text"`
	Status       string    `bson:"status"`
	AdminComment string    `bson:"admin_comment"`
	AssigneeID   *int64    `bson:"assignee_id"`
	AnswerText   string    `bson:"answer_text"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func requestFromModel(r *models.Request) requestDoc {
	return requestDoc{
		ID:           r.ID,
		RequesterID:  r.RequesterID,
		CategoryID:   r.CategoryID,
		Text:         r.Text,
		Status:       string(r.Status),
		AdminComment: r.AdminComment,
		AssigneeID:   r.AssigneeID,
		AnswerText:   r.AnswerText,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (d *requestDoc) model() *models.Request {
	return &models.Request{
		ID:           d.ID,
		RequesterID:  d.RequesterID,
		CategoryID:   d.CategoryID,
		Text:         d.Text,
		Status:       models.RequestStatus(d.Status),
		AdminComment: d.AdminComment,
		AssigneeID:   d.AssigneeID,
		AnswerText:   d.AnswerText,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
