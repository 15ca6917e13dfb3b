package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/chatline/internal/chatapi"
	"github.com/wesm/chatline/internal/tui"
)

const maxLimit = 1000

type handlers struct {
	svc chatapi.Service
}

// getIDArg extracts a required id. JSON numbers are accepted as well as
// strings, since the backend emits integer ids.
func getIDArg(args map[string]any, key string) (chatapi.ID, error) {
	id, ok := toID(args[key])
	if !ok || id == "" {
		return "", fmt.Errorf("%s parameter is required", key)
	}
	return id, nil
}

func toID(v any) (chatapi.ID, bool) {
	switch v := v.(type) {
	case string:
		return chatapi.ID(strings.TrimSpace(v)), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return "", false
		}
		return chatapi.ID(fmt.Sprintf("%.0f", v)), true
	}
	return "", false
}

func (h *handlers) listConversations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	convs, err := h.svc.ListConversations(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}

	if v, ok := args["unread_only"].(bool); ok && v {
		unread := convs[:0]
		for _, c := range convs {
			if c.Unread {
				unread = append(unread, c)
			}
		}
		convs = unread
	}
	if limit := limitArg(args, "limit", 50); len(convs) > limit {
		convs = convs[:limit]
	}
	return jsonResult(convs)
}

func (h *handlers) getThread(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := getIDArg(req.GetArguments(), "conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	th, err := h.svc.LoadThread(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load thread failed: %v", err)), nil
	}
	return jsonResult(th)
}

func (h *handlers) sendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, err := getIDArg(args, "conversation_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, _ := args["body"].(string)
	if strings.TrimSpace(body) == "" {
		return mcp.NewToolResultError("body parameter is required"), nil
	}

	msg, err := h.svc.SendMessage(ctx, id, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("send failed: %v", err)), nil
	}
	return jsonResult(msg)
}

func (h *handlers) startConversation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	raw, ok := toID(args["user_id"])
	if !ok {
		return mcp.NewToolResultError("user_id parameter is required"), nil
	}
	id := tui.NormalizeUserID(string(raw))
	if id == "" {
		return mcp.NewToolResultError("user_id parameter is required"), nil
	}

	th, err := h.svc.StartConversation(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", err)), nil
	}
	return jsonResult(th)
}

func (h *handlers) deleteConversations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := req.GetArguments()["conversation_ids"].([]any)
	if !ok || len(raw) == 0 {
		return mcp.NewToolResultError("conversation_ids parameter is required"), nil
	}
	ids := make([]chatapi.ID, 0, len(raw))
	for _, v := range raw {
		id, ok := toID(v)
		if !ok || id == "" {
			return mcp.NewToolResultError(fmt.Sprintf("invalid conversation id %v", v)), nil
		}
		ids = append(ids, id)
	}

	if err := h.svc.DeleteConversations(ctx, ids); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return jsonResult(struct {
		Deleted []chatapi.ID `json:"deleted"`
	}{ids})
}

func (h *handlers) deleteMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := getIDArg(req.GetArguments(), "message_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := h.svc.DeleteMessage(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return jsonResult(struct {
		Deleted chatapi.ID `json:"deleted"`
	}{id})
}

// limitArg extracts a non-negative integer limit from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxLimit.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
