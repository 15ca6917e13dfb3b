package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesm/chatline/internal/chatapi"
	"github.com/wesm/chatline/internal/timefmt"
	"github.com/wesm/chatline/internal/tui"
)

var openJSON bool

var openCmd = &cobra.Command{
	Use:   "open <conversation-id>",
	Short: "Print the messages of a conversation",
	Long: `Print the messages of a conversation in order, oldest first.
Opening a conversation marks it read.

Examples:
  chatline open 7
  chatline open 7 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(logger)
		if err != nil {
			return err
		}
		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		th, err := client.LoadThread(cmd.Context(), chatapi.ID(strings.TrimSpace(args[0])))
		if err != nil {
			return err
		}

		if openJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(th)
		}
		printThread(cmd.OutOrStdout(), th, formatter)
		return nil
	},
}

// printThread writes a thread as "time name: body" lines.
func printThread(out io.Writer, th *chatapi.Thread, f *timefmt.Formatter) {
	other := tui.SanitizeLine(th.OtherUsername)
	if other == "" {
		other = "Chat"
	}
	fmt.Fprintf(out, "Conversation %s with %s\n\n", th.ConversationID, other)

	if len(th.Messages) == 0 {
		fmt.Fprintln(out, "No messages in this conversation.")
		return
	}
	for _, msg := range th.Messages {
		name := other
		if msg.FromMe {
			name = "You"
		}
		body := strings.ReplaceAll(tui.SanitizeBody(msg.Body), "\n", "\n    ")
		fmt.Fprintf(out, "%s  %s: %s\n", f.Format(msg.CreatedAt), name, body)
	}
}

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().BoolVar(&openJSON, "json", false, "Output as JSON")
}
