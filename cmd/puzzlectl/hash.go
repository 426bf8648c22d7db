package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"puzzlehunt/internal/answer"
)

func hashAnswerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-answer ANSWER...",
		Short: "Print the normalized form and digest of an answer",
		Long: `Normalize an answer the way submissions are normalized and print its
digest, ready to be stored as a puzzle's answer_hash.

Examples:
  puzzlectl hash-answer "A Man"
  puzzlectl hash-answer It\'s a trap!`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized := answer.Normalize(strings.Join(args, " "))
			digest, err := answer.Digest(normalized)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "normalized: %s\ndigest:     %s\n", normalized, digest)
			return nil
		},
	}
}
