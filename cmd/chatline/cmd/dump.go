package cmd

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/chatline/internal/chatapi"
)

var dumpConcurrency int

// dumpEntry is one conversation with its messages. Thread is nil when it
// could not be loaded.
type dumpEntry struct {
	Conversation chatapi.Conversation `json:"conversation"`
	Thread       *chatapi.Thread      `json:"thread"`
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write every conversation and its messages as JSON",
	Long: `Fetch the conversation list and every thread, then write them to
stdout as one JSON document. Threads are fetched in parallel; a thread that
fails to load is logged and written with "thread": null.

Loading a thread marks it read, like opening it in the widget.

Examples:
  chatline dump > backup.json
  chatline dump --concurrency 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(logger)
		if err != nil {
			return err
		}

		entries, err := dumpAll(cmd.Context(), client, dumpConcurrency, logger)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}

// dumpAll loads the list and then every thread with at most concurrency
// requests in flight. Individual thread failures are logged, not fatal.
func dumpAll(ctx context.Context, svc chatapi.Service, concurrency int, log *slog.Logger) ([]dumpEntry, error) {
	convs, err := svc.ListConversations(ctx)
	if err != nil {
		return nil, err
	}

	if concurrency < 1 {
		concurrency = 1
	}
	entries := make([]dumpEntry, len(convs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, c := range convs {
		entries[i].Conversation = c
		g.Go(func() error {
			th, err := svc.LoadThread(ctx, c.ID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Log but don't fail the dump - allow partial results
				log.Warn("failed to load thread", "conversation", c.ID, "error", err)
				return nil
			}
			entries[i].Thread = th
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debug("dump complete", "conversations", len(entries))
	return entries, nil
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().IntVar(&dumpConcurrency, "concurrency", 4, "threads fetched in parallel")
}
