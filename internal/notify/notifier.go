package notify

import (
	"context"
	"fmt"

	"puzzlehunt/internal/models"
)

// Directory looks up who should hear about new content.
type Directory interface {
	// NewIssueRecipients returns users opted in to new-issue mail.
	NewIssueRecipients(ctx context.Context) ([]models.User, error)
	// NewHintRecipients returns opted-in users with at least one
	// submission for the puzzle.
	NewHintRecipients(ctx context.Context, puzzleID int) ([]models.User, error)
}

// Notifier applies the recipient rules of each category on top of a
// Dispatcher.
type Notifier struct {
	dir        Directory
	dispatcher *Dispatcher
}

func NewNotifier(dir Directory, d *Dispatcher) *Notifier {
	return &Notifier{dir: dir, dispatcher: d}
}

func (n *Notifier) NewIssue(ctx context.Context, issue models.Issue) (int, error) {
	users, err := n.dir.NewIssueRecipients(ctx)
	if err != nil {
		return 0, fmt.Errorf("new issue recipients: %w", err)
	}
	return n.dispatcher.Dispatch(ctx, CategoryNewIssue, Content{Issue: &issue}, users)
}

func (n *Notifier) NewHint(ctx context.Context, puzzle models.Puzzle, hint models.Hint) (int, error) {
	users, err := n.dir.NewHintRecipients(ctx, puzzle.ID)
	if err != nil {
		return 0, fmt.Errorf("new hint recipients: %w", err)
	}
	return n.dispatcher.Dispatch(ctx, CategoryNewHint, Content{Puzzle: &puzzle, Hint: &hint}, users)
}

func (n *Notifier) Welcome(ctx context.Context, u models.User) error {
	_, err := n.dispatcher.Dispatch(ctx, CategoryWelcome, Content{}, []models.User{u})
	return err
}

func (n *Notifier) PasswordReset(ctx context.Context, u models.User, resetURL string) error {
	_, err := n.dispatcher.Dispatch(ctx, CategoryPasswordReset, Content{ResetURL: resetURL}, []models.User{u})
	return err
}
