package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wesm/chatline/internal/chatapi"
	"github.com/wesm/chatline/internal/timefmt"
	"github.com/wesm/chatline/internal/tui"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Long: `List your conversations, most recent first.

Unread conversations are marked with ●. When output is piped, rows are
printed as tab-separated fields without a header.

Examples:
  chatline list
  chatline list --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(logger)
		if err != nil {
			return err
		}
		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		convs, err := client.ListConversations(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if listJSON {
			return outputConversationsJSON(out, convs)
		}
		if len(convs) == 0 {
			fmt.Fprintln(out, cfg.Display.EmptyText)
			return nil
		}
		if isTerminal(out) {
			outputConversationsTable(out, convs, formatter)
		} else {
			outputConversationsPlain(out, convs, formatter)
		}
		return nil
	},
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func outputConversationsTable(out io.Writer, convs []chatapi.Conversation, f *timefmt.Formatter) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\t\tNAME\tLAST MESSAGE\tTIME")
	fmt.Fprintln(w, "──\t\t────\t────────────\t────")

	unread := 0
	for _, c := range convs {
		dot := ""
		if c.Unread {
			dot = "●"
			unread++
		}
		last := tui.SanitizeLine(c.LastMessage)
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, dot, tui.SanitizeLine(c.OtherUsername), last, f.Format(c.LastCreatedAt))
	}

	w.Flush()
	fmt.Fprintf(out, "\n%d conversation(s), %d unread\n", len(convs), unread)
}

func outputConversationsPlain(out io.Writer, convs []chatapi.Conversation, f *timefmt.Formatter) {
	for _, c := range convs {
		fmt.Fprintf(out, "%s\t%t\t%s\t%s\t%s\n",
			c.ID, c.Unread, tui.SanitizeLine(c.OtherUsername), tui.SanitizeLine(c.LastMessage), f.Format(c.LastCreatedAt))
	}
}

func outputConversationsJSON(out io.Writer, convs []chatapi.Conversation) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(convs)
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
}
