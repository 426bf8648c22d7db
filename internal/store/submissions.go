package store

import (
	"context"
	"fmt"
	"time"

	"puzzlehunt/internal/models"
)

// CreateSubmission appends an attempt. Submissions are never updated. A
// second correct submission for the same user and puzzle fails with
// ErrConflict.
func (s *Store) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO submissions (user_id, puzzle_id, submitted_answer, is_correct)
		VALUES ($1, $2, $3, $4)
		RETURNING id, submitted_at`,
		sub.UserID, sub.PuzzleID, sub.SubmittedAnswer, sub.IsCorrect,
	).Scan(&sub.ID, &sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("create submission: %w", conflict(err))
	}
	return nil
}

func (s *Store) HasCorrectSubmission(ctx context.Context, userID, puzzleID int) (bool, error) {
	var ok bool
	err := s.db.GetContext(ctx, &ok, `
		SELECT EXISTS (SELECT 1 FROM submissions WHERE user_id=$1 AND puzzle_id=$2 AND is_correct)`,
		userID, puzzleID)
	return ok, err
}

// SolvedPuzzleIDs returns the set of puzzles the user has answered correctly.
func (s *Store) SolvedPuzzleIDs(ctx context.Context, userID int) (map[int]bool, error) {
	var ids []int
	if err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT puzzle_id FROM submissions WHERE user_id=$1 AND is_correct`, userID); err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// SubmissionView is a submission joined with the names shown next to it.
type SubmissionView struct {
	models.Submission
	PuzzleTitle string `db:"puzzle_title" json:"puzzle_title"`
	Username    string `db:"username" json:"username,omitempty"`
}

const submissionViewQuery = `
	SELECT s.id, s.user_id, s.puzzle_id, s.submitted_answer, s.is_correct, s.submitted_at,
		p.title AS puzzle_title, u.username
	FROM submissions s
	JOIN puzzles p ON p.id = s.puzzle_id
	JOIN users u ON u.id = s.user_id`

// SubmissionsByUser returns the user's most recent attempts. correctOnly
// restricts the list to solves.
func (s *Store) SubmissionsByUser(ctx context.Context, userID int, correctOnly bool, limit int) ([]SubmissionView, error) {
	out := []SubmissionView{}
	err := s.db.SelectContext(ctx, &out, submissionViewQuery+`
		WHERE s.user_id=$1 AND (s.is_correct OR NOT $2)
		ORDER BY s.submitted_at DESC, s.id DESC
		LIMIT $3`, userID, correctOnly, limit)
	return out, err
}

func (s *Store) RecentSubmissions(ctx context.Context, limit int) ([]SubmissionView, error) {
	out := []SubmissionView{}
	err := s.db.SelectContext(ctx, &out, submissionViewQuery+`
		ORDER BY s.submitted_at DESC, s.id DESC
		LIMIT $1`, limit)
	return out, err
}

// UserStats are the per-user totals shown on the dashboard.
type UserStats struct {
	TotalSubmissions   int `db:"total_submissions" json:"total_submissions"`
	CorrectSubmissions int `db:"correct_submissions" json:"correct_submissions"`
	SolvedPuzzles      int `db:"solved_puzzles" json:"solved_puzzles"`
	TotalPuzzles       int `db:"total_puzzles" json:"total_puzzles"`
}

func (s *Store) UserStats(ctx context.Context, userID int) (UserStats, error) {
	var st UserStats
	err := s.db.GetContext(ctx, &st, `
		SELECT
			COUNT(*) AS total_submissions,
			COUNT(*) FILTER (WHERE is_correct) AS correct_submissions,
			COUNT(DISTINCT puzzle_id) FILTER (WHERE is_correct) AS solved_puzzles,
			(SELECT COUNT(*) FROM puzzles) AS total_puzzles
		FROM submissions
		WHERE user_id = $1`, userID)
	return st, err
}

// IssueProgress is one issue with the user's solve count.
type IssueProgress struct {
	IssueID     int       `db:"issue_id" json:"issue_id"`
	Title       string    `db:"title" json:"title"`
	AvailableAt time.Time `db:"available_at" json:"available_at"`
	PuzzleCount int       `db:"puzzle_count" json:"puzzle_count"`
	SolvedCount int       `db:"solved_count" json:"solved_count"`
}

// Percentage is the solved share in [0, 100]; 0 for an empty issue.
func (p IssueProgress) Percentage() float64 {
	if p.PuzzleCount == 0 {
		return 0
	}
	return float64(p.SolvedCount) / float64(p.PuzzleCount) * 100
}

func (s *Store) IssueProgress(ctx context.Context, userID int) ([]IssueProgress, error) {
	out := []IssueProgress{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT i.id AS issue_id, i.title, i.available_at,
			COUNT(DISTINCT p.id) AS puzzle_count,
			COUNT(DISTINCT s.puzzle_id) AS solved_count
		FROM issues i
		LEFT JOIN puzzles p ON p.issue_id = i.id
		LEFT JOIN submissions s ON s.puzzle_id = p.id AND s.user_id = $1 AND s.is_correct
		GROUP BY i.id, i.title, i.available_at
		ORDER BY i.available_at, i.id`, userID)
	return out, err
}

// Overview holds site-wide counters for the admin dashboard.
type Overview struct {
	TotalUsers         int `db:"total_users" json:"total_users"`
	TotalPuzzles       int `db:"total_puzzles" json:"total_puzzles"`
	TotalIssues        int `db:"total_issues" json:"total_issues"`
	TotalSubmissions   int `db:"total_submissions" json:"total_submissions"`
	CorrectSubmissions int `db:"correct_submissions" json:"correct_submissions"`
}

func (s *Store) Overview(ctx context.Context) (Overview, error) {
	var o Overview
	err := s.db.GetContext(ctx, &o, `
		SELECT
			(SELECT COUNT(*) FROM users) AS total_users,
			(SELECT COUNT(*) FROM puzzles) AS total_puzzles,
			(SELECT COUNT(*) FROM issues) AS total_issues,
			(SELECT COUNT(*) FROM submissions) AS total_submissions,
			(SELECT COUNT(*) FROM submissions WHERE is_correct) AS correct_submissions`)
	return o, err
}

func (s *Store) RecentUsers(ctx context.Context, limit int) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY id DESC LIMIT $1`, limit)
	return users, err
}
