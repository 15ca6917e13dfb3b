package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/wesm/chatline/internal/chatapi"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>...",
	Short: "Delete conversations",
	Long: `Delete one or more conversations from your list. The other
participant keeps their copy. Asks for confirmation unless --yes is given.

Examples:
  chatline delete 7 9
  chatline delete 7 --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]chatapi.ID, 0, len(args))
		for _, a := range args {
			if a = strings.TrimSpace(a); a != "" {
				ids = append(ids, chatapi.ID(a))
			}
		}
		if len(ids) == 0 {
			return errors.New("no conversation ids given")
		}

		client, err := newClient(logger)
		if err != nil {
			return err
		}

		title := fmt.Sprintf("Delete %d conversation(s)?", len(ids))
		ok, err := confirm(cmd, title, "They disappear from your list. This cannot be undone.")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}

		if err := client.DeleteConversations(cmd.Context(), ids); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d conversation(s).\n", len(ids))
		return nil
	},
}

var deleteMessageCmd = &cobra.Command{
	Use:   "delete-message <message-id>",
	Short: "Delete one of your messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(logger)
		if err != nil {
			return err
		}

		ok, err := confirm(cmd, "Delete message "+args[0]+"?", "Only messages you sent can be deleted.")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}

		if err := client.DeleteMessage(cmd.Context(), chatapi.ID(strings.TrimSpace(args[0]))); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Deleted message.")
		return nil
	},
}

// confirm asks a yes/no question on the terminal. --yes answers for the
// user; without a terminal the question cannot be asked.
func confirm(cmd *cobra.Command, title, description string) (bool, error) {
	if deleteYes {
		return true, nil
	}
	if !isTerminal(cmd.OutOrStdout()) {
		return false, errors.New("refusing to delete without confirmation; pass --yes when not running in a terminal")
	}

	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("confirm: %w", err)
	}
	return ok, nil
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(deleteMessageCmd)
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
	deleteMessageCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
}
