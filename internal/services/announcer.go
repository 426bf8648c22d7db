package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"puzzlehunt/internal/metrics"
	"puzzlehunt/internal/models"
)

// ClaimStore persists which issues and hints have been announced.
type ClaimStore interface {
	ClaimIssue(ctx context.Context, id int, at time.Time) (bool, error)
	ReleaseIssue(ctx context.Context, id int) error
	ClaimHint(ctx context.Context, id int, at time.Time) (bool, error)
	ReleaseHint(ctx context.Context, id int) error
	PuzzleByID(ctx context.Context, id int) (models.Puzzle, error)
}

// ContentNotifier fans an announcement out to its recipients.
type ContentNotifier interface {
	NewIssue(ctx context.Context, issue models.Issue) (int, error)
	NewHint(ctx context.Context, puzzle models.Puzzle, hint models.Hint) (int, error)
}

// Announcer sends each new-issue and new-hint notification at most once.
// The marker is claimed before dispatch; if nothing could be queued the
// claim is released so a later attempt can retry. Once claimed, the fan-out
// runs to the end even if the caller's context is cancelled.
type Announcer struct {
	store    ClaimStore
	notifier ContentNotifier
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewAnnouncer(st ClaimStore, n ContentNotifier, logger *zap.Logger, m *metrics.Metrics) *Announcer {
	return &Announcer{store: st, notifier: n, logger: logger.Named("announcer"), metrics: m}
}

// AnnounceIssue reports whether this call performed the announcement.
func (a *Announcer) AnnounceIssue(ctx context.Context, issue models.Issue, now time.Time) (bool, error) {
	ok, err := a.store.ClaimIssue(ctx, issue.ID, now)
	if err != nil {
		return false, fmt.Errorf("claim issue %d: %w", issue.ID, err)
	}
	if !ok {
		return false, nil
	}

	queued, err := a.notifier.NewIssue(context.WithoutCancel(ctx), issue)
	if err != nil && queued == 0 {
		if rerr := a.store.ReleaseIssue(context.WithoutCancel(ctx), issue.ID); rerr != nil {
			a.logger.Error("release issue claim", zap.Int("issue_id", issue.ID), zap.Error(rerr))
		}
		return false, fmt.Errorf("announce issue %d: %w", issue.ID, err)
	}
	if err != nil {
		a.logger.Warn("issue announced with failures", zap.Int("issue_id", issue.ID), zap.Error(err))
	}
	a.metrics.PollerAnnouncements.WithLabelValues("issue").Inc()
	a.logger.Info("issue announced",
		zap.Int("issue_id", issue.ID),
		zap.String("title", issue.Title),
		zap.Int("recipients", queued),
	)
	return true, nil
}

func (a *Announcer) AnnounceHint(ctx context.Context, hint models.Hint, now time.Time) (bool, error) {
	puzzle, err := a.store.PuzzleByID(ctx, hint.PuzzleID)
	if err != nil {
		return false, fmt.Errorf("load puzzle %d for hint %d: %w", hint.PuzzleID, hint.ID, err)
	}
	ok, err := a.store.ClaimHint(ctx, hint.ID, now)
	if err != nil {
		return false, fmt.Errorf("claim hint %d: %w", hint.ID, err)
	}
	if !ok {
		return false, nil
	}

	queued, err := a.notifier.NewHint(context.WithoutCancel(ctx), puzzle, hint)
	if err != nil && queued == 0 {
		if rerr := a.store.ReleaseHint(context.WithoutCancel(ctx), hint.ID); rerr != nil {
			a.logger.Error("release hint claim", zap.Int("hint_id", hint.ID), zap.Error(rerr))
		}
		return false, fmt.Errorf("announce hint %d: %w", hint.ID, err)
	}
	if err != nil {
		a.logger.Warn("hint announced with failures", zap.Int("hint_id", hint.ID), zap.Error(err))
	}
	a.metrics.PollerAnnouncements.WithLabelValues("hint").Inc()
	a.logger.Info("hint announced",
		zap.Int("hint_id", hint.ID),
		zap.Int("puzzle_id", puzzle.ID),
		zap.Int("recipients", queued),
	)
	return true, nil
}
