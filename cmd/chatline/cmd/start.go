package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/wesm/chatline/internal/tui"
)

var startCmd = &cobra.Command{
	Use:   "start <user-id>",
	Short: "Start or resume a conversation with a user",
	Long: `Find the conversation with a user, creating it when none exists, and
print its messages. Full-width digits are accepted.

To continue in the chat widget instead, use 'chatline tui --with <user-id>'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := tui.NormalizeUserID(args[0])
		if userID == "" {
			return errors.New("user id is empty")
		}

		client, err := newClient(logger)
		if err != nil {
			return err
		}
		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		th, err := client.StartConversation(cmd.Context(), userID)
		if err != nil {
			return err
		}
		printThread(cmd.OutOrStdout(), th, formatter)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
