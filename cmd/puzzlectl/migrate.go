package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"puzzlehunt/internal/app"
	"puzzlehunt/internal/db"
	"puzzlehunt/internal/models"
	"puzzlehunt/internal/store"
)

const adminPasswordEnv = "PUZZLECTL_ADMIN_PASSWORD"

func migrateCmd() *cobra.Command {
	var adminEmail, adminPassword string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and the default admin account",
		Long: `Apply the database schema and make sure an admin account exists for
SITE_ADMIN_EMAIL (or --admin-email). The admin password comes from
--admin-password, then ` + adminPasswordEnv + `; when neither is set a random
password is generated and printed once.

Examples:
  puzzlectl migrate
  puzzlectl migrate --admin-email ops@example.com --admin-password s3cret`,
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
			logger.Info("schema up to date")

			if adminEmail == "" {
				adminEmail = cfg.SiteAdminEmail
			}
			if adminEmail == "" {
				adminEmail = "admin@example.com"
			}
			if adminPassword == "" {
				adminPassword = os.Getenv(adminPasswordEnv)
			}
			return ensureAdmin(ctx, cmd, store.New(conn), logger, adminEmail, adminPassword)
		},
	}

	cmd.Flags().StringVar(&adminEmail, "admin-email", "", "Admin account email (default SITE_ADMIN_EMAIL)")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "Password for a newly created admin")
	return cmd
}

type adminStore interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// ensureAdmin creates the admin account unless a user with that email
// already exists.
func ensureAdmin(ctx context.Context, cmd *cobra.Command, st adminStore, logger *zap.Logger, email, password string) error {
	existing, err := st.UserByEmail(ctx, email)
	if err == nil {
		logger.Info("admin user already exists", zap.String("email", email), zap.Bool("is_admin", existing.IsAdmin))
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	generated := password == ""
	if generated {
		password = uuid.NewString()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := models.User{
		Username:           "admin",
		DisplayName:        "Admin",
		Email:              email,
		PasswordHash:       string(hash),
		IsAdmin:            true,
		EmailNotifications: true,
		NotifyNewIssues:    true,
		NotifyNewHints:     true,
	}
	if err := st.CreateUser(ctx, &admin); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("username %q is taken by another account; create the admin manually", admin.Username)
		}
		return err
	}
	logger.Info("default admin user created", zap.String("email", email), zap.Int("user_id", admin.ID))
	if generated {
		fmt.Fprintf(cmd.OutOrStdout(), "admin password: %s\nChange it after the first login.\n", password)
	}
	return nil
}
