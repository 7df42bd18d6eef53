package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lawclinic/helpdesk-bot/internal/id"
	"github.com/lawclinic/helpdesk-bot/internal/models"
)

type DB struct {
	conn *sql.DB
}

var _ Store = (*DB)(nil)

// New opens the SQLite database at dbPath. When encryptionKey is set the
// connection is keyed for SQLCipher builds.
func New(dbPath string, encryptionKey string) (*DB, error) {
	connStr := dbPath
	if encryptionKey != "" {
		connStr = fmt.Sprintf("%s?_pragma_key=%s&_pragma_cipher_page_size=4096", dbPath, encryptionKey)
	}

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		telegram_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'guest',
		current_assignment_id INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		hashtag TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS faqs (
		id INTEGER PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		category_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY,
		requester_id INTEGER NOT NULL,
		category_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		admin_comment TEXT NOT NULL DEFAULT '',
		assignee_id INTEGER,
		answer_text TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_faqs_category ON faqs(category_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_requester ON requests(requester_id);
	CREATE INDEX IF NOT EXISTS idx_requests_assignee ON requests(assignee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_category ON requests(category_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Users

const userColumns = `telegram_id, username, first_name, last_name, language, role,
	current_assignment_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var assignment sql.NullInt64
	err := row.Scan(&u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Language,
		&u.Role, &assignment, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if assignment.Valid {
		u.CurrentAssignmentID = &assignment.Int64
	}
	return &u, nil
}

// GetUser retrieves a user by Telegram ID
func (db *DB) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID)
	return scanUser(row)
}

func (db *DB) EnsureUser(ctx context.Context, u *models.User) (*models.User, error) {
	existing, err := db.GetUser(ctx, u.TelegramID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	role := u.Role
	if role == "" {
		role = models.RoleGuest
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (telegram_id, username, first_name, last_name, language, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.TelegramID, u.Username, u.FirstName, u.LastName, u.Language, role, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return db.GetUser(ctx, u.TelegramID)
}

func (db *DB) SetUserRole(ctx context.Context, telegramID int64, role models.Role) error {
	return db.execOne(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE telegram_id = ?`,
		role, time.Now(), telegramID)
}

func (db *DB) SetUserLanguage(ctx context.Context, telegramID int64, language string) error {
	return db.execOne(ctx,
		`UPDATE users SET language = ?, updated_at = ? WHERE telegram_id = ?`,
		language, time.Now(), telegramID)
}

func (db *DB) AssignUser(ctx context.Context, telegramID, requestID int64) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET current_assignment_id = ?, updated_at = ?
		 WHERE telegram_id = ? AND current_assignment_id IS NULL`,
		requestID, time.Now(), telegramID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := db.GetUser(ctx, telegramID); err != nil {
			return err
		}
		return models.ErrAssignmentBusy
	}
	return nil
}

func (db *DB) ReleaseUser(ctx context.Context, telegramID, requestID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE users SET current_assignment_id = NULL, updated_at = ?
		 WHERE telegram_id = ? AND current_assignment_id = ?`,
		time.Now(), telegramID, requestID,
	)
	return err
}

// Categories

func scanCategory(row interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	err := row.Scan(&c.ID, &c.Name, &c.Hashtag, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) CreateCategory(ctx context.Context, c *models.Category) error {
	if c.ID == 0 {
		c.ID = id.New()
	}
	c.CreatedAt = time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO categories (id, name, hashtag, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Hashtag, c.CreatedAt,
	)
	return err
}

func (db *DB) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	return scanCategory(db.conn.QueryRowContext(ctx,
		`SELECT id, name, hashtag, created_at FROM categories WHERE id = ?`, id))
}

func (db *DB) FindCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	return scanCategory(db.conn.QueryRowContext(ctx,
		`SELECT id, name, hashtag, created_at FROM categories WHERE name = ? LIMIT 1`, name))
}

func (db *DB) FindCategoryByHashtag(ctx context.Context, hashtag string) (*models.Category, error) {
	return scanCategory(db.conn.QueryRowContext(ctx,
		`SELECT id, name, hashtag, created_at FROM categories WHERE hashtag = ? LIMIT 1`, hashtag))
}

// ListCategories returns all categories ordered by name
func (db *DB) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, hashtag, created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

func (db *DB) UpdateCategory(ctx context.Context, c *models.Category) error {
	return db.execOne(ctx,
		`UPDATE categories SET name = ?, hashtag = ? WHERE id = ?`,
		c.Name, c.Hashtag, c.ID)
}

func (db *DB) DeleteCategory(ctx context.Context, id int64) error {
	return db.execOne(ctx, `DELETE FROM categories WHERE id = ?`, id)
}

// FAQs

func scanFAQ(row interface{ Scan(...any) error }) (*models.FAQ, error) {
	var f models.FAQ
	err := row.Scan(&f.ID, &f.Question, &f.Answer, &f.CategoryID, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (db *DB) CreateFAQ(ctx context.Context, f *models.FAQ) error {
	if f.ID == 0 {
		f.ID = id.New()
	}
	f.CreatedAt = time.Now()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO faqs (id, question, answer, category_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.Question, f.Answer, f.CategoryID, f.CreatedAt,
	)
	return err
}

func (db *DB) GetFAQ(ctx context.Context, id int64) (*models.FAQ, error) {
	return scanFAQ(db.conn.QueryRowContext(ctx,
		`SELECT id, question, answer, category_id, created_at FROM faqs WHERE id = ?`, id))
}

// ListFAQs returns the FAQ entries of a category ordered by question
func (db *DB) ListFAQs(ctx context.Context, categoryID int64) ([]models.FAQ, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, question, answer, category_id, created_at FROM faqs
		 WHERE category_id = ? ORDER BY question ASC`, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var faqs []models.FAQ
	for rows.Next() {
		f, err := scanFAQ(rows)
		if err != nil {
			return nil, err
		}
		faqs = append(faqs, *f)
	}
	return faqs, rows.Err()
}

func (db *DB) UpdateFAQ(ctx context.Context, f *models.FAQ) error {
	return db.execOne(ctx,
		`UPDATE faqs SET question = ?, answer = ?, category_id = ? WHERE id = ?`,
		f.Question, f.Answer, f.CategoryID, f.ID)
}

func (db *DB) DeleteFAQ(ctx context.Context, id int64) error {
	return db.execOne(ctx, `DELETE FROM faqs WHERE id = ?`, id)
}

func (db *DB) DeleteFAQsByCategory(ctx context.Context, categoryID int64) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM faqs WHERE category_id = ?`, categoryID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Requests

const requestColumns = `id, requester_id, category_id, text, status, admin_comment,
	assignee_id, answer_text, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (*models.Request, error) {
	var r models.Request
	var assignee sql.NullInt64
	err := row.Scan(&r.ID, &r.RequesterID, &r.CategoryID, &r.Text, &r.Status, &r.AdminComment,
		&assignee, &r.AnswerText, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if assignee.Valid {
		r.AssigneeID = &assignee.Int64
	}
	return &r, nil
}

// CreateRequest stores a new request in pending status
func (db *DB) CreateRequest(ctx context.Context, r *models.Request) error {
	if r.ID == 0 {
		r.ID = id.New()
	}
	if r.Status == "" {
		r.Status = models.StatusPending
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO requests (id, requester_id, category_id, text, status, admin_comment, assignee_id, answer_text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequesterID, r.CategoryID, r.Text, r.Status, r.AdminComment,
		nullableID(r.AssigneeID), r.AnswerText, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

// GetRequest retrieves a request by ID
func (db *DB) GetRequest(ctx context.Context, id int64) (*models.Request, error) {
	return scanRequest(db.conn.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id))
}

func (db *DB) UpdateRequest(ctx context.Context, r *models.Request, expected models.RequestStatus) error {
	r.UpdatedAt = time.Now()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE requests SET status = ?, admin_comment = ?, assignee_id = ?, answer_text = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		r.Status, r.AdminComment, nullableID(r.AssigneeID), r.AnswerText, r.UpdatedAt,
		r.ID, expected,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := db.GetRequest(ctx, r.ID); err != nil {
			return err
		}
		return models.ErrStatusMismatch
	}
	return nil
}

func buildRequestFilter(f models.RequestFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.RequesterID != nil {
		clauses = append(clauses, "requester_id = ?")
		args = append(args, *f.RequesterID)
	}
	if f.AssigneeID != nil {
		clauses = append(clauses, "assignee_id = ?")
		args = append(args, *f.AssigneeID)
	}
	if f.CategoryID != nil {
		clauses = append(clauses, "category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if len(f.Statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Statuses)), ", ")
		clauses = append(clauses, "status IN ("+placeholders+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListRequests returns matching requests, newest first
func (db *DB) ListRequests(ctx context.Context, f models.RequestFilter) ([]models.Request, error) {
	where, args := buildRequestFilter(f)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM requests`+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

func (db *DB) CountRequests(ctx context.Context, f models.RequestFilter) (int64, error) {
	where, args := buildRequestFilter(f)
	var count int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`+where, args...).Scan(&count)
	return count, err
}

// PurgeRequests deletes finished requests older than the specified duration
func (db *DB) PurgeRequests(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM requests WHERE status IN (?, ?) AND updated_at < ?`,
		models.StatusClosed, models.StatusDeclined, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// execOne runs a single-row statement and maps "no rows affected" to ErrNotFound.
func (db *DB) execOne(ctx context.Context, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

func nullableID(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
