package store

import (
	"context"
	"fmt"
	"time"

	"puzzlehunt/internal/models"
	"puzzlehunt/internal/timegate"
)

const (
	issueColumns  = `id, title, description, pdf_filename, available_at, notified_at, created_at`
	puzzleColumns = `id, title, description, answer_hash, issue_id, created_at`
	hintColumns   = `id, puzzle_id, hint_text, unlock_date, notified_at`
)

func (s *Store) ListIssues(ctx context.Context) ([]models.Issue, error) {
	issues := []models.Issue{}
	err := s.db.SelectContext(ctx, &issues, `SELECT `+issueColumns+` FROM issues ORDER BY available_at, id`)
	return issues, err
}

func (s *Store) IssueByID(ctx context.Context, id int) (models.Issue, error) {
	var is models.Issue
	err := s.db.GetContext(ctx, &is, `SELECT `+issueColumns+` FROM issues WHERE id=$1`, id)
	return is, notFound(err)
}

func (s *Store) CreateIssue(ctx context.Context, is *models.Issue) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO issues (title, description, pdf_filename, available_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		is.Title, is.Description, is.PDFFilename, is.AvailableAt.UTC(),
	).Scan(&is.ID, &is.CreatedAt)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// UpdateIssue saves the editable fields. Moving available_at past now
// clears the announcement marker so the issue is announced again when it
// goes live.
func (s *Store) UpdateIssue(ctx context.Context, is models.Issue, now time.Time) error {
	return affectedOne(s.db.ExecContext(ctx, `
		UPDATE issues
		SET title=$1, description=$2, pdf_filename=$3, available_at=$4,
			notified_at = CASE WHEN $4::timestamptz > $5::timestamptz THEN NULL ELSE notified_at END
		WHERE id=$6`,
		is.Title, is.Description, is.PDFFilename, is.AvailableAt.UTC(), now.UTC(), is.ID))
}

func (s *Store) DeleteIssue(ctx context.Context, id int) error {
	return affectedOne(s.db.ExecContext(ctx, `DELETE FROM issues WHERE id=$1`, id))
}

// PendingIssues returns issues that are live at now and have not been
// announced, oldest first.
func (s *Store) PendingIssues(ctx context.Context, now time.Time) ([]models.Issue, error) {
	issues := []models.Issue{}
	err := s.db.SelectContext(ctx, &issues, `
		SELECT `+issueColumns+` FROM issues
		WHERE available_at <= $1 AND notified_at IS NULL
		ORDER BY available_at, id`, now.UTC())
	return issues, err
}

// ClaimIssue marks the issue as announced. It reports false if another
// caller got there first.
func (s *Store) ClaimIssue(ctx context.Context, id int, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE issues SET notified_at=$1 WHERE id=$2 AND notified_at IS NULL`, at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) ReleaseIssue(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE issues SET notified_at=NULL WHERE id=$1`, id)
	return err
}

func (s *Store) ListPuzzles(ctx context.Context) ([]models.Puzzle, error) {
	puzzles := []models.Puzzle{}
	err := s.db.SelectContext(ctx, &puzzles, `SELECT `+puzzleColumns+` FROM puzzles ORDER BY id`)
	return puzzles, err
}

func (s *Store) PuzzlesByIssue(ctx context.Context, issueID int) ([]models.Puzzle, error) {
	puzzles := []models.Puzzle{}
	err := s.db.SelectContext(ctx, &puzzles, `SELECT `+puzzleColumns+` FROM puzzles WHERE issue_id=$1 ORDER BY id`, issueID)
	return puzzles, err
}

func (s *Store) PuzzleByID(ctx context.Context, id int) (models.Puzzle, error) {
	var p models.Puzzle
	err := s.db.GetContext(ctx, &p, `SELECT `+puzzleColumns+` FROM puzzles WHERE id=$1`, id)
	return p, notFound(err)
}

func (s *Store) CreatePuzzle(ctx context.Context, p *models.Puzzle) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO puzzles (title, description, answer_hash, issue_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		p.Title, p.Description, p.AnswerHash, p.IssueID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create puzzle: %w", err)
	}
	return nil
}

func (s *Store) UpdatePuzzle(ctx context.Context, p models.Puzzle) error {
	return affectedOne(s.db.ExecContext(ctx, `
		UPDATE puzzles SET title=$1, description=$2, answer_hash=$3, issue_id=$4 WHERE id=$5`,
		p.Title, p.Description, p.AnswerHash, p.IssueID, p.ID))
}

func (s *Store) DeletePuzzle(ctx context.Context, id int) error {
	return affectedOne(s.db.ExecContext(ctx, `DELETE FROM puzzles WHERE id=$1`, id))
}

func (s *Store) ListHints(ctx context.Context) ([]models.Hint, error) {
	hints := []models.Hint{}
	err := s.db.SelectContext(ctx, &hints, `SELECT `+hintColumns+` FROM hints ORDER BY puzzle_id, unlock_date, id`)
	return hints, err
}

func (s *Store) HintByID(ctx context.Context, id int) (models.Hint, error) {
	var h models.Hint
	err := s.db.GetContext(ctx, &h, `SELECT `+hintColumns+` FROM hints WHERE id=$1`, id)
	return h, notFound(err)
}

// UnlockedHints returns the puzzle's hints whose unlock date is on or before
// today, oldest first.
func (s *Store) UnlockedHints(ctx context.Context, puzzleID int, today time.Time) ([]models.Hint, error) {
	hints := []models.Hint{}
	err := s.db.SelectContext(ctx, &hints, `
		SELECT `+hintColumns+` FROM hints
		WHERE puzzle_id=$1 AND unlock_date <= $2::date
		ORDER BY unlock_date, id`, puzzleID, today.UTC().Format(timegate.DateLayout))
	return hints, err
}

func (s *Store) CreateHint(ctx context.Context, h *models.Hint) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO hints (puzzle_id, hint_text, unlock_date)
		VALUES ($1, $2, $3::date)
		RETURNING id`,
		h.PuzzleID, h.HintText, h.UnlockDate.UTC().Format(timegate.DateLayout),
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("create hint: %w", err)
	}
	return nil
}

// UpdateHint saves the editable fields and clears the announcement marker
// when the unlock date moves past today.
func (s *Store) UpdateHint(ctx context.Context, h models.Hint, today time.Time) error {
	return affectedOne(s.db.ExecContext(ctx, `
		UPDATE hints
		SET puzzle_id=$1, hint_text=$2, unlock_date=$3::date,
			notified_at = CASE WHEN $3::date > $4::date THEN NULL ELSE notified_at END
		WHERE id=$5`,
		h.PuzzleID, h.HintText, h.UnlockDate.UTC().Format(timegate.DateLayout), today.UTC().Format(timegate.DateLayout), h.ID))
}

func (s *Store) DeleteHint(ctx context.Context, id int) error {
	return affectedOne(s.db.ExecContext(ctx, `DELETE FROM hints WHERE id=$1`, id))
}

// PendingHints returns hints unlocked on or before today that have not been
// announced.
func (s *Store) PendingHints(ctx context.Context, today time.Time) ([]models.Hint, error) {
	hints := []models.Hint{}
	err := s.db.SelectContext(ctx, &hints, `
		SELECT `+hintColumns+` FROM hints
		WHERE unlock_date <= $1::date AND notified_at IS NULL
		ORDER BY unlock_date, id`, today.UTC().Format(timegate.DateLayout))
	return hints, err
}

func (s *Store) ClaimHint(ctx context.Context, id int, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE hints SET notified_at=$1 WHERE id=$2 AND notified_at IS NULL`, at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) ReleaseHint(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE hints SET notified_at=NULL WHERE id=$1`, id)
	return err
}
