package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"puzzlehunt/internal/app"
	"puzzlehunt/internal/models"
	"puzzlehunt/internal/notify"
)

func testEmailCmd() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "test-email",
		Short: "Send a test message through the configured mail transport",
		Long: `Render the welcome message and deliver it synchronously through
MAIL_TRANSPORT, reporting any delivery error. The recipient defaults to SITE_ADMIN_EMAIL.

Examples:
  puzzlectl test-email
  MAIL_TRANSPORT=smtp puzzlectl test-email --to you@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadEnv()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if to == "" {
				to = cfg.SiteAdminEmail
			}
			if to == "" {
				return errors.New("no recipient: pass --to or set SITE_ADMIN_EMAIL")
			}

			sender, err := app.NewSender(cfg, logger)
			if err != nil {
				return err
			}
			renderer, err := notify.NewRenderer(cfg.SiteName, cfg.SiteURL)
			if err != nil {
				return err
			}
			recipient := models.User{Username: "test", DisplayName: "Mail test", Email: to}
			subject, body, err := renderer.Render(notify.CategoryWelcome, recipient, notify.Content{})
			if err != nil {
				return err
			}
			msg := notify.Message{
				ID:       uuid.NewString(),
				Category: notify.CategoryWelcome,
				To:       to,
				ToName:   recipient.DisplayName,
				Subject:  "[test] " + subject,
				HTML:     body,
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Mail.SendTimeout)
			defer cancel()
			if err := sender.Send(ctx, msg); err != nil {
				return fmt.Errorf("send via %s: %w", sender.Name(), err)
			}

			logger.Info("test email sent",
				zap.String("transport", sender.Name()),
				zap.String("message_id", msg.ID),
				zap.String("to", to),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "test message sent to %s via %s\n", to, sender.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Recipient address (default SITE_ADMIN_EMAIL)")
	return cmd
}
