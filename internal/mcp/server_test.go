package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/chatline/internal/chatapi"
	"github.com/wesm/chatline/internal/chatapi/chatapitest"
)

// toolHandler is the function signature for MCP tool handler methods.
type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// callToolDirect invokes a handler directly with the given arguments and returns the raw result.
func callToolDirect(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", r.Content[0])
	}
	return tc.Text
}

// runTool invokes a handler, asserts no error, and unmarshals the JSON result into T.
func runTool[T any](t *testing.T, name string, fn toolHandler, args map[string]any) T {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, r))
	}
	var out T
	if err := json.Unmarshal([]byte(resultText(t, r)), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return out
}

// runToolExpectError invokes a handler and asserts it returns an error result.
func runToolExpectError(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if !r.IsError {
		t.Fatal("expected error result")
	}
	return r
}

func newMock() *chatapitest.MockService {
	return &chatapitest.MockService{
		Conversations: []chatapi.Conversation{
			{ID: "1", OtherUsername: "alice", LastMessage: "hi", Unread: false},
			{ID: "2", OtherUsername: "bob", LastMessage: "see you", Unread: true},
			{ID: "3", OtherUsername: "carol", LastMessage: "ok", Unread: true},
		},
		Threads: map[chatapi.ID]*chatapi.Thread{
			"2": {ConversationID: "2", OtherUsername: "bob", Messages: []chatapi.Message{
				{ID: "m1", Body: "see you", CreatedAt: "2024-03-01 12:30:00"},
			}},
		},
	}
}

func TestListConversations(t *testing.T) {
	h := &handlers{svc: newMock()}

	t.Run("all", func(t *testing.T) {
		convs := runTool[[]chatapi.Conversation](t, ToolListConversations, h.listConversations, map[string]any{})
		if len(convs) != 3 {
			t.Fatalf("len = %d, want 3", len(convs))
		}
	})

	t.Run("unread only", func(t *testing.T) {
		convs := runTool[[]chatapi.Conversation](t, ToolListConversations, h.listConversations, map[string]any{"unread_only": true})
		if len(convs) != 2 || convs[0].OtherUsername != "bob" || convs[1].OtherUsername != "carol" {
			t.Fatalf("unexpected result: %+v", convs)
		}
	})

	t.Run("limit", func(t *testing.T) {
		convs := runTool[[]chatapi.Conversation](t, ToolListConversations, h.listConversations, map[string]any{"limit": float64(1)})
		if len(convs) != 1 || convs[0].ID != "1" {
			t.Fatalf("unexpected result: %+v", convs)
		}
	})

	t.Run("backend error", func(t *testing.T) {
		failing := &handlers{svc: &chatapitest.MockService{
			ListConversationsFunc: func(context.Context) ([]chatapi.Conversation, error) {
				return nil, errors.New("boom")
			},
		}}
		r := runToolExpectError(t, ToolListConversations, failing.listConversations, map[string]any{})
		if !strings.Contains(resultText(t, r), "boom") {
			t.Errorf("error text = %q", resultText(t, r))
		}
	})
}

func TestGetThread(t *testing.T) {
	h := &handlers{svc: newMock()}

	t.Run("string id", func(t *testing.T) {
		th := runTool[chatapi.Thread](t, ToolGetThread, h.getThread, map[string]any{"conversation_id": "2"})
		if th.OtherUsername != "bob" || len(th.Messages) != 1 {
			t.Fatalf("unexpected thread: %+v", th)
		}
	})

	t.Run("numeric id", func(t *testing.T) {
		th := runTool[chatapi.Thread](t, ToolGetThread, h.getThread, map[string]any{"conversation_id": float64(2)})
		if th.ConversationID != "2" {
			t.Fatalf("ConversationID = %q, want 2", th.ConversationID)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		runToolExpectError(t, ToolGetThread, h.getThread, map[string]any{})
	})

	t.Run("fractional id", func(t *testing.T) {
		runToolExpectError(t, ToolGetThread, h.getThread, map[string]any{"conversation_id": 1.5})
	})
}

func TestSendMessage(t *testing.T) {
	mock := newMock()
	h := &handlers{svc: mock}

	msg := runTool[chatapi.Message](t, ToolSendMessage, h.sendMessage, map[string]any{"conversation_id": "2", "body": "on my way"})
	if msg.Body != "on my way" || !msg.FromMe {
		t.Errorf("unexpected message: %+v", msg)
	}

	runToolExpectError(t, ToolSendMessage, h.sendMessage, map[string]any{"conversation_id": "2", "body": "   "})
	runToolExpectError(t, ToolSendMessage, h.sendMessage, map[string]any{"body": "hi"})

	if n := mock.CallCount("SendMessage"); n != 1 {
		t.Errorf("SendMessage called %d times, want 1", n)
	}
}

func TestStartConversation(t *testing.T) {
	mock := newMock()
	h := &handlers{svc: mock}

	th := runTool[chatapi.Thread](t, ToolStartConversation, h.startConversation, map[string]any{"user_id": "１２"})
	if th.ConversationID != "c-12" {
		t.Errorf("ConversationID = %q, want c-12", th.ConversationID)
	}

	runToolExpectError(t, ToolStartConversation, h.startConversation, map[string]any{"user_id": "  "})
	runToolExpectError(t, ToolStartConversation, h.startConversation, map[string]any{})
}

func TestDeleteConversations(t *testing.T) {
	mock := newMock()
	h := &handlers{svc: mock}

	got := runTool[struct {
		Deleted []chatapi.ID `json:"deleted"`
	}](t, ToolDeleteConversations, h.deleteConversations, map[string]any{"conversation_ids": []any{"1", float64(3)}})
	if len(got.Deleted) != 2 {
		t.Fatalf("deleted = %v, want 2 ids", got.Deleted)
	}

	calls := mock.Calls()
	last := calls[len(calls)-1]
	if last.Method != "DeleteConversations" || len(last.IDs) != 2 || last.IDs[0] != "1" || last.IDs[1] != "3" {
		t.Errorf("last call = %+v", last)
	}

	runToolExpectError(t, ToolDeleteConversations, h.deleteConversations, map[string]any{"conversation_ids": []any{}})
	runToolExpectError(t, ToolDeleteConversations, h.deleteConversations, map[string]any{"conversation_ids": []any{true}})
}

func TestDeleteMessage(t *testing.T) {
	mock := newMock()
	mock.DeleteMessageFunc = func(_ context.Context, id chatapi.ID) error {
		if id == "m9" {
			return &chatapi.StatusError{StatusCode: 403}
		}
		return nil
	}
	h := &handlers{svc: mock}

	runTool[struct {
		Deleted chatapi.ID `json:"deleted"`
	}](t, ToolDeleteMessage, h.deleteMessage, map[string]any{"message_id": "m1"})
	runToolExpectError(t, ToolDeleteMessage, h.deleteMessage, map[string]any{"message_id": "m9"})
}

func TestLimitArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want int
	}{
		{"default", map[string]any{}, 50},
		{"value", map[string]any{"limit": float64(5)}, 5},
		{"negative", map[string]any{"limit": float64(-1)}, 0},
		{"nan", map[string]any{"limit": math.NaN()}, 0},
		{"clamped", map[string]any{"limit": float64(5000)}, maxLimit},
		{"inf", map[string]any{"limit": math.Inf(1)}, maxLimit},
		{"wrong type", map[string]any{"limit": "5"}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := limitArg(tt.args, "limit", 50); got != tt.want {
				t.Errorf("limitArg() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := NewServer(newMock(), "test")

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	for _, name := range []string{
		ToolListConversations, ToolGetThread, ToolSendMessage,
		ToolStartConversation, ToolDeleteConversations, ToolDeleteMessage,
	} {
		if !strings.Contains(string(data), `"`+name+`"`) {
			t.Errorf("tool %s not registered in %s", name, data)
		}
	}
}
