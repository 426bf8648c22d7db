package store

import (
	"context"
	"fmt"

	"puzzlehunt/internal/models"
)

const userColumns = `id, username, display_name, email, password_hash, is_admin,
	email_notifications, notify_new_issues, notify_new_hints, created_at`

// CreateUser inserts u and fills in its id and created_at. A taken username
// or email yields ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO users (username, display_name, email, password_hash, is_admin,
			email_notifications, notify_new_issues, notify_new_hints)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		u.Username, u.DisplayName, u.Email, u.PasswordHash, u.IsAdmin,
		u.EmailNotifications, u.NotifyNewIssues, u.NotifyNewHints,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", conflict(err))
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id int) (models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return u, notFound(err)
}

func (s *Store) UserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	return u, notFound(err)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1)`, email)
	return u, notFound(err)
}

func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := s.db.GetContext(ctx, &taken, `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1)`, username)
	return taken, err
}

func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	var taken bool
	err := s.db.GetContext(ctx, &taken, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email)=lower($1))`, email)
	return taken, err
}

// Preferences are the user-editable profile settings.
type Preferences struct {
	DisplayName        string
	EmailNotifications bool
	NotifyNewIssues    bool
	NotifyNewHints     bool
}

func (s *Store) UpdatePreferences(ctx context.Context, userID int, p Preferences) error {
	return affectedOne(s.db.ExecContext(ctx, `
		UPDATE users SET display_name=$1, email_notifications=$2, notify_new_issues=$3, notify_new_hints=$4
		WHERE id=$5`,
		p.DisplayName, p.EmailNotifications, p.NotifyNewIssues, p.NotifyNewHints, userID))
}

func (s *Store) UpdatePassword(ctx context.Context, userID int, hash string) error {
	return affectedOne(s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, hash, userID))
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY id`)
	return users, err
}

func (s *Store) DeleteUser(ctx context.Context, id int) error {
	return affectedOne(s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id))
}

// NewIssueRecipients returns every user opted in to new-issue mail.
func (s *Store) NewIssueRecipients(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, `
		SELECT `+userColumns+` FROM users
		WHERE email_notifications AND notify_new_issues
		ORDER BY id`)
	return users, err
}

// NewHintRecipients returns opted-in users who have submitted at least once
// for the puzzle.
func (s *Store) NewHintRecipients(ctx context.Context, puzzleID int) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, `
		SELECT `+userColumns+` FROM users u
		WHERE u.email_notifications AND u.notify_new_hints
		  AND EXISTS (SELECT 1 FROM submissions s WHERE s.user_id = u.id AND s.puzzle_id = $1)
		ORDER BY u.id`, puzzleID)
	return users, err
}
