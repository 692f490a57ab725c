package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/resumax/internal/advisor"
)

const (
	defaultCLIUser = "cli-user"
	exitCommand    = "/exit"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the advisor in the terminal",
	Long:  "Talk to the advisor in the terminal. The conversation is stored like any other chat, type /exit to leave.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		user, _ := cmd.Flags().GetString("user")
		return chatLoop(cmd.Context(), cmd.OutOrStdout(), user)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("user", "u", defaultCLIUser, "user id the conversation is stored under")
}

func chatLoop(ctx context.Context, out io.Writer, user string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// keep log lines away from the conversation
	log, err := newLogger("stderr")
	if err != nil {
		return fmt.Errorf("creating a logger: %w", err)
	}
	defer log.Sync()

	a, err := newApplication(ctx, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	input := promptui.Prompt{
		Label: "You",
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("say something")
			}
			return nil
		},
	}

	fmt.Fprintf(out, "Chatting as %q, type %s to leave.\n\n", user, exitCommand)

	for {
		message, err := input.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if strings.TrimSpace(message) == exitCommand {
			return nil
		}

		reply, err := a.advisor.Reply(ctx, advisor.Request{UserID: user, Message: message})
		if err != nil {
			log.Error("chat turn failed", zap.Error(err))
			fmt.Fprintf(out, "Advisor is unavailable right now: %v\n\n", err)
			continue
		}

		fmt.Fprintf(out, "Advisor: %s\n\n", reply.Text)
	}
}
