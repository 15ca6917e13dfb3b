package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesm/chatline/internal/chatapi"
)

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> [message...]",
	Short: "Send a message to a conversation",
	Long: `Send a message to an existing conversation. The message is the
remaining arguments joined by spaces; with none, it is read from stdin.

Examples:
  chatline send 7 see you at eight
  echo "on my way" | chatline send 7`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := strings.Join(args[1:], " ")
		if len(args) == 1 {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read message: %w", err)
			}
			body = string(data)
		}
		body = strings.TrimSpace(body)
		if body == "" {
			return errors.New("message is empty")
		}

		client, err := newClient(logger)
		if err != nil {
			return err
		}
		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		msg, err := client.SendMessage(cmd.Context(), chatapi.ID(strings.TrimSpace(args[0])), body)
		if err != nil {
			return err
		}
		logger.Debug("message sent", "conversation", args[0], "id", msg.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "Sent message %s at %s\n", msg.ID, formatter.Format(msg.CreatedAt))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
