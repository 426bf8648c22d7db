package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"puzzlehunt/internal/answer"
	"puzzlehunt/internal/app"
	"puzzlehunt/internal/db"
	"puzzlehunt/internal/models"
	"puzzlehunt/internal/store"
	"puzzlehunt/internal/timegate"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo users, issues, puzzles and hints",
		Long: `Load a small demo data set: a player and an admin, one live issue and
one issue a week out, two puzzles and two hints. Seeding is refused when the
database already has users.

Demo logins: user1/password and admin/adminpass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			conn, err := app.OpenDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.RunMigrations(ctx, conn); err != nil {
				return fmt.Errorf("failed migrations: %w", err)
			}

			if err := seed(ctx, store.New(conn), time.Now()); err != nil {
				return err
			}
			logger.Info("database seeded")
			fmt.Fprintln(cmd.OutOrStdout(), "database seeded with demo data")
			return nil
		},
	}
}

type seedStore interface {
	Overview(ctx context.Context) (store.Overview, error)
	CreateUser(ctx context.Context, u *models.User) error
	CreateIssue(ctx context.Context, is *models.Issue) error
	CreatePuzzle(ctx context.Context, p *models.Puzzle) error
	CreateHint(ctx context.Context, h *models.Hint) error
}

var errAlreadySeeded = errors.New("database already has users; refusing to seed")

func seed(ctx context.Context, st seedStore, now time.Time) error {
	o, err := st.Overview(ctx)
	if err != nil {
		return err
	}
	if o.TotalUsers > 0 {
		return errAlreadySeeded
	}

	users := []struct {
		username, display, email, password string
		admin                              bool
	}{
		{"user1", "Alice", "alice@example.com", "password", false},
		{"admin", "Admin", "admin@example.com", "adminpass", true},
	}
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if err := st.CreateUser(ctx, &models.User{
			Username:           u.username,
			DisplayName:        u.display,
			Email:              u.email,
			PasswordHash:       string(hash),
			IsAdmin:            u.admin,
			EmailNotifications: true,
			NotifyNewIssues:    true,
			NotifyNewHints:     true,
		}); err != nil {
			return err
		}
	}

	live := models.Issue{
		Title:       "Issue 1: Summer Edition",
		Description: "A set of summer-themed puzzles.",
		PDFFilename: ptr("issue1.pdf"),
		AvailableAt: now.Add(-24 * time.Hour),
	}
	upcoming := models.Issue{
		Title:       "Issue 2: Hidden Future",
		Description: "Available next week.",
		PDFFilename: ptr("issue2.pdf"),
		AvailableAt: now.Add(7 * 24 * time.Hour),
	}
	for _, is := range []*models.Issue{&live, &upcoming} {
		if err := st.CreateIssue(ctx, is); err != nil {
			return err
		}
	}

	puzzles := []struct {
		title, description, answer string
	}{
		{"Riddle of the Sphinx", "What walks on four legs in the morning...", "a man"},
		{"Reverse Me", "What word becomes shorter when you add two letters?", "short"},
	}
	ids := make([]int, 0, len(puzzles))
	for _, p := range puzzles {
		digest, err := answer.Digest(answer.Normalize(p.answer))
		if err != nil {
			return err
		}
		pz := models.Puzzle{Title: p.title, Description: p.description, AnswerHash: digest, IssueID: &live.ID}
		if err := st.CreatePuzzle(ctx, &pz); err != nil {
			return err
		}
		ids = append(ids, pz.ID)
	}

	today := timegate.Today(now)
	hints := []models.Hint{
		{PuzzleID: ids[0], HintText: "Think of life stages.", UnlockDate: today.AddDate(0, 0, -1)},
		{PuzzleID: ids[1], HintText: "It's a play on the word itself.", UnlockDate: today.AddDate(0, 0, 2)},
	}
	for i := range hints {
		if err := st.CreateHint(ctx, &hints[i]); err != nil {
			return err
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
