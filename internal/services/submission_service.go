package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"puzzlehunt/internal/answer"
	"puzzlehunt/internal/metrics"
	"puzzlehunt/internal/models"
	"puzzlehunt/internal/store"
	"puzzlehunt/internal/timegate"
)

var (
	ErrAlreadySolved = errors.New("puzzle already solved")
	ErrPuzzleLocked  = errors.New("puzzle not yet available")
	ErrEmptyAnswer   = errors.New("answer is empty")
)

// SubmissionStore is the persistence the submission flow needs.
type SubmissionStore interface {
	PuzzleByID(ctx context.Context, id int) (models.Puzzle, error)
	IssueByID(ctx context.Context, id int) (models.Issue, error)
	HasCorrectSubmission(ctx context.Context, userID, puzzleID int) (bool, error)
	CreateSubmission(ctx context.Context, sub *models.Submission) error
}

type SubmissionService struct {
	store   SubmissionStore
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewSubmissionService(st SubmissionStore, logger *zap.Logger, m *metrics.Metrics) *SubmissionService {
	return &SubmissionService{
		store:   st,
		logger:  logger.Named("submissions"),
		metrics: m,
		now:     time.Now,
	}
}

// Gate returns the puzzle's issue (nil for a standalone puzzle). It returns
// ErrPuzzleLocked together with the issue while the issue is not yet
// available.
func (s *SubmissionService) Gate(ctx context.Context, p models.Puzzle) (*models.Issue, error) {
	if p.IssueID == nil {
		return nil, nil
	}
	issue, err := s.store.IssueByID(ctx, *p.IssueID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load issue %d: %w", *p.IssueID, err)
	}
	if !timegate.IsVisible(s.now(), issue.AvailableAt) {
		return &issue, ErrPuzzleLocked
	}
	return &issue, nil
}

// Submit checks raw against the puzzle's answer and records the attempt,
// correct or not. A user who already solved the puzzle gets
// ErrAlreadySolved and nothing is recorded.
func (s *SubmissionService) Submit(ctx context.Context, userID, puzzleID int, raw string) (models.Submission, error) {
	if strings.TrimSpace(raw) == "" {
		return models.Submission{}, ErrEmptyAnswer
	}
	p, err := s.store.PuzzleByID(ctx, puzzleID)
	if err != nil {
		return models.Submission{}, err
	}
	if _, err := s.Gate(ctx, p); err != nil {
		s.metrics.SubmissionsProcessed.WithLabelValues("locked").Inc()
		return models.Submission{}, err
	}

	solved, err := s.store.HasCorrectSubmission(ctx, userID, puzzleID)
	if err != nil {
		return models.Submission{}, fmt.Errorf("check solved: %w", err)
	}
	if solved {
		s.metrics.SubmissionsProcessed.WithLabelValues("already_solved").Inc()
		return models.Submission{}, ErrAlreadySolved
	}

	sub := models.Submission{
		UserID:          userID,
		PuzzleID:        puzzleID,
		SubmittedAnswer: raw,
		IsCorrect:       answer.Verify(p.AnswerHash, answer.Normalize(raw)),
	}
	if err := s.store.CreateSubmission(ctx, &sub); err != nil {
		if sub.IsCorrect && errors.Is(err, store.ErrConflict) {
			// A concurrent request recorded the solve first.
			s.metrics.SubmissionsProcessed.WithLabelValues("already_solved").Inc()
			return models.Submission{}, ErrAlreadySolved
		}
		return models.Submission{}, err
	}

	outcome := "incorrect"
	if sub.IsCorrect {
		outcome = "correct"
	}
	s.metrics.SubmissionsProcessed.WithLabelValues(outcome).Inc()
	s.logger.Info("answer submitted",
		zap.Int("user_id", userID),
		zap.Int("puzzle_id", puzzleID),
		zap.Bool("correct", sub.IsCorrect),
	)
	return sub, nil
}
