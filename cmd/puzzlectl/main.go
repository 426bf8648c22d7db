// puzzlectl is the maintenance CLI for a puzzle hunt deployment.
//
// Usage:
//
//	puzzlectl migrate --admin-password s3cret
//	puzzlectl seed
//	puzzlectl test-email --to you@example.com
//	puzzlectl hash-answer "A Man"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"puzzlehunt/internal/app"
	"puzzlehunt/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "puzzlectl",
		Short: "Maintain a puzzle hunt deployment",
		Long: `puzzlectl prepares the database, loads demo content and checks
mail delivery. It reads the same environment (and .env file) as the server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(testEmailCmd())
	rootCmd.AddCommand(hashAnswerCmd())
	return rootCmd
}

// loadEnv reads and validates the config and builds a logger from it.
func loadEnv() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := app.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
