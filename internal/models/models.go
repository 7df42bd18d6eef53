package models

import "time"

type Role string

const (
	RoleGuest   Role = "guest"
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// User is any chat participant known to the bot, keyed by Telegram user ID.
type User struct {
	TelegramID          int64
	Username            string
	FirstName           string
	LastName            string
	Language            string // empty until detected or chosen
	Role                Role
	CurrentAssignmentID *int64 // request held by a student, nil when idle
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// DisplayName returns "@username" when known, otherwise first and last name.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

// Category groups requests and FAQ entries. Name and hashtag are unique.
type Category struct {
	ID        int64
	Name      string
	Hashtag   string // always starts with HashtagMarker
	CreatedAt time.Time
}

const HashtagMarker = "#"

// FAQ is a canned question/answer pair shown for self-service lookup.
type FAQ struct {
	ID         int64
	Question   string
	Answer     string
	CategoryID int64
	CreatedAt  time.Time
}

// Request is a legal question submitted by a user.
type Request struct {
	ID           int64
	RequesterID  int64
	CategoryID   int64
	Text         string
	Status       RequestStatus
	AdminComment string // most recent decline reason
	AssigneeID   *int64 // student working on the request
	AnswerText   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAssignee reports whether the given user currently holds the request.
func (r *Request) IsAssignee(telegramID int64) bool {
	return r.AssigneeID != nil && *r.AssigneeID == telegramID
}

// RequestFilter narrows request queries. Zero fields are ignored.
type RequestFilter struct {
	RequesterID *int64
	AssigneeID  *int64
	CategoryID  *int64
	Statuses    []RequestStatus
}
