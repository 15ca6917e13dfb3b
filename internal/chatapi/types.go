// Package chatapi provides an HTTP client for the chat endpoints of the
// social backend.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an opaque identifier. The backend emits integers, but ids are
// never interpreted on the client, so both JSON numbers and strings decode.
type ID string

// UnmarshalJSON accepts a JSON number, a JSON string, or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON encodes integer-looking ids as JSON numbers so they round
// trip to the backend the way they arrived.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isInteger() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) isInteger() bool {
	if id == "" {
		return false
	}
	n, err := strconv.ParseInt(string(id), 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == string(id)
}

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// Conversation is one row of the conversation list.
type Conversation struct {
	ID            ID     `json:"id"`
	OtherUserID   ID     `json:"other_user_id,omitempty"`
	OtherUsername string `json:"other_username"`
	OtherAvatar   string `json:"other_avatar"`
	LastMessage   string `json:"last_message"`
	LastCreatedAt string `json:"last_created_at"`
	Unread        bool   `json:"unread"`
}

// Message is a single chat message as seen by the viewer.
type Message struct {
	ID        ID     `json:"id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at,omitempty"`
	FromMe    bool   `json:"from_me"`
}

// Thread is the response of the load-thread and start endpoints.
type Thread struct {
	ConversationID ID        `json:"conversation_id"`
	OtherUserID    ID        `json:"other_user_id,omitempty"`
	OtherUsername  string    `json:"other_username"`
	Messages       []Message `json:"messages"`
}

// Service is the chat backend surface the widget depends on.
type Service interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	LoadThread(ctx context.Context, conversationID ID) (*Thread, error)
	SendMessage(ctx context.Context, conversationID ID, body string) (*Message, error)
	StartConversation(ctx context.Context, otherUserID ID) (*Thread, error)
	DeleteConversations(ctx context.Context, ids []ID) error
	DeleteMessage(ctx context.Context, messageID ID) error
}

// AnyUnread reports whether any conversation has unread messages.
func AnyUnread(convs []Conversation) bool {
	for _, c := range convs {
		if c.Unread {
			return true
		}
	}
	return false
}
