package models

import "time"

type User struct {
	ID                 int       `db:"id" json:"id"`
	Username           string    `db:"username" json:"username"`
	DisplayName        string    `db:"display_name" json:"display_name"`
	Email              string    `db:"email" json:"email"`
	PasswordHash       string    `db:"password_hash" json:"-"`
	IsAdmin            bool      `db:"is_admin" json:"is_admin"`
	EmailNotifications bool      `db:"email_notifications" json:"email_notifications"`
	NotifyNewIssues    bool      `db:"notify_new_issues" json:"notify_new_issues"`
	NotifyNewHints     bool      `db:"notify_new_hints" json:"notify_new_hints"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Issue is a time-gated bundle of puzzles. NotifiedAt is set once the
// new-issue announcement has been claimed.
type Issue struct {
	ID          int        `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	PDFFilename *string    `db:"pdf_filename" json:"pdf_filename,omitempty"`
	AvailableAt time.Time  `db:"available_at" json:"available_at"`
	NotifiedAt  *time.Time `db:"notified_at" json:"-"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

type Puzzle struct {
	ID          int       `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	AnswerHash  string    `db:"answer_hash" json:"-"` // bcrypt digest of the normalized answer
	IssueID     *int      `db:"issue_id" json:"issue_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Hint unlocks at the start of UnlockDate (UTC calendar day).
type Hint struct {
	ID         int        `db:"id" json:"id"`
	PuzzleID   int        `db:"puzzle_id" json:"puzzle_id"`
	HintText   string     `db:"hint_text" json:"hint_text"`
	UnlockDate time.Time  `db:"unlock_date" json:"unlock_date"`
	NotifiedAt *time.Time `db:"notified_at" json:"-"`
}

type Submission struct {
	ID              int       `db:"id" json:"id"`
	UserID          int       `db:"user_id" json:"user_id"`
	PuzzleID        int       `db:"puzzle_id" json:"puzzle_id"`
	SubmittedAnswer string    `db:"submitted_answer" json:"submitted_answer"`
	IsCorrect       bool      `db:"is_correct" json:"is_correct"`
	SubmittedAt     time.Time `db:"submitted_at" json:"submitted_at"`
}
