// Package mcp exposes the chat backend as Model Context Protocol tools
// served over stdio.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wesm/chatline/internal/chatapi"
)

// Tool name constants.
const (
	ToolListConversations   = "list_conversations"
	ToolGetThread           = "get_thread"
	ToolSendMessage         = "send_message"
	ToolStartConversation   = "start_conversation"
	ToolDeleteConversations = "delete_conversations"
	ToolDeleteMessage       = "delete_message"
)

func withConversationID() mcp.ToolOption {
	return mcp.WithString("conversation_id",
		mcp.Required(),
		mcp.Description("Conversation ID (from list_conversations)"),
	)
}

// NewServer creates an MCP server with the chat tools registered.
func NewServer(svc chatapi.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"chatline",
		version,
		server.WithToolCapabilities(false),
	)

	h := &handlers{svc: svc}

	s.AddTool(listConversationsTool(), h.listConversations)
	s.AddTool(getThreadTool(), h.getThread)
	s.AddTool(sendMessageTool(), h.sendMessage)
	s.AddTool(startConversationTool(), h.startConversation)
	s.AddTool(deleteConversationsTool(), h.deleteConversations)
	s.AddTool(deleteMessageTool(), h.deleteMessage)
	return s
}

// Serve serves the chat tools over stdio. It blocks until stdin is closed
// or the context is cancelled.
func Serve(ctx context.Context, svc chatapi.Service, version string) error {
	stdio := server.NewStdioServer(NewServer(svc, version))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func listConversationsTool() mcp.Tool {
	return mcp.NewTool(ToolListConversations,
		mcp.WithDescription("List the signed-in user's conversations, most recent first, with the last message and an unread flag."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithBoolean("unread_only",
			mcp.Description("Only conversations with unread messages"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default 50)"),
		),
	)
}

func getThreadTool() mcp.Tool {
	return mcp.NewTool(ToolGetThread,
		mcp.WithDescription("Get every message of a conversation, oldest first. Opening a thread marks it read."),
		mcp.WithReadOnlyHintAnnotation(false),
		withConversationID(),
	)
}

func sendMessageTool() mcp.Tool {
	return mcp.NewTool(ToolSendMessage,
		mcp.WithDescription("Send a message in an existing conversation."),
		withConversationID(),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Message text"),
		),
	)
}

func startConversationTool() mcp.Tool {
	return mcp.NewTool(ToolStartConversation,
		mcp.WithDescription("Open the conversation with a user, creating it if needed, and return its thread."),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("ID of the other user"),
		),
	)
}

func deleteConversationsTool() mcp.Tool {
	return mcp.NewTool(ToolDeleteConversations,
		mcp.WithDescription("Delete conversations for the signed-in user. The other participant keeps their copy."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithArray("conversation_ids",
			mcp.Required(),
			mcp.Description("Conversation IDs to delete"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

func deleteMessageTool() mcp.Tool {
	return mcp.NewTool(ToolDeleteMessage,
		mcp.WithDescription("Delete one of the signed-in user's own messages."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("Message ID (from get_thread)"),
		),
	)
}
