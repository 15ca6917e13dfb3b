package cmd

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/wesm/chatline/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server exposing the chat tools",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets an MCP client read and answer your conversations with tools
like list_conversations, get_thread, send_message, start_conversation,
delete_conversations and delete_message. Requests use the session from
[api] in config.toml.

Add to an MCP client config:
  {
    "mcpServers": {
      "chatline": {
        "command": "chatline",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(logger)
		if err != nil {
			return err
		}
		return mcpserver.Serve(cmd.Context(), client, Version)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
