package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/spigell/resumax/internal/chat"
	"github.com/spigell/resumax/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored transcript of a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		user, _ := cmd.Flags().GetString("user")

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		log, err := newLogger("stderr")
		if err != nil {
			return fmt.Errorf("creating a logger: %w", err)
		}
		defer log.Sync()

		a, err := newApplication(ctx, log, false)
		if err != nil {
			return err
		}
		defer a.Close()

		return printHistory(ctx, cmd.OutOrStdout(), a.repo, user)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringP("user", "u", defaultCLIUser, "user id to print the transcript of")
}

func printHistory(ctx context.Context, out io.Writer, repo *store.Repository, user string) error {
	turns, err := repo.Transcript(ctx, user)
	if err != nil {
		return err
	}

	if len(turns) == 0 {
		fmt.Fprintf(out, "no chat history for %q\n", user)
		return nil
	}

	for _, t := range turns {
		label := "You"
		if t.Role == chat.RoleModel {
			label = "Advisor"
		}

		stamp := "-"
		if !t.Timestamp.IsZero() {
			stamp = t.Timestamp.Local().Format(time.DateTime)
		}

		fmt.Fprintf(out, "[%s] %s: %s\n", stamp, label, t.Content)
	}

	return nil
}
