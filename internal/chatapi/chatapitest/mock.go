// Package chatapitest provides shared test doubles for the chatapi.Service interface.
package chatapitest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wesm/chatline/internal/chatapi"
)

// Call records one invocation of a MockService method.
type Call struct {
	Method string
	ID     chatapi.ID   // conversation, user or message id, when the method takes one
	IDs    []chatapi.ID // DeleteConversations argument
	Body   string       // SendMessage argument
}

// MockService implements chatapi.Service for testing. Each method delegates
// to an optional function field; when the field is nil, canned data is
// returned. Every call is recorded.
type MockService struct {
	Conversations []chatapi.Conversation
	Threads       map[chatapi.ID]*chatapi.Thread

	// Optional overrides for per-test behavior.
	ListConversationsFunc   func(context.Context) ([]chatapi.Conversation, error)
	LoadThreadFunc          func(context.Context, chatapi.ID) (*chatapi.Thread, error)
	SendMessageFunc         func(context.Context, chatapi.ID, string) (*chatapi.Message, error)
	StartConversationFunc   func(context.Context, chatapi.ID) (*chatapi.Thread, error)
	DeleteConversationsFunc func(context.Context, []chatapi.ID) error
	DeleteMessageFunc       func(context.Context, chatapi.ID) error

	mu     sync.Mutex
	calls  []Call
	nextID int
}

// Compile-time check.
var _ chatapi.Service = (*MockService)(nil)

func (m *MockService) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

// Calls returns a copy of the recorded calls.
func (m *MockService) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times method was called.
func (m *MockService) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockService) ListConversations(ctx context.Context) ([]chatapi.Conversation, error) {
	m.record(Call{Method: "ListConversations"})
	if m.ListConversationsFunc != nil {
		return m.ListConversationsFunc(ctx)
	}
	out := make([]chatapi.Conversation, len(m.Conversations))
	copy(out, m.Conversations)
	return out, nil
}

func (m *MockService) LoadThread(ctx context.Context, id chatapi.ID) (*chatapi.Thread, error) {
	m.record(Call{Method: "LoadThread", ID: id})
	if m.LoadThreadFunc != nil {
		return m.LoadThreadFunc(ctx, id)
	}
	if th, ok := m.Threads[id]; ok {
		cp := *th
		cp.Messages = append([]chatapi.Message(nil), th.Messages...)
		return &cp, nil
	}
	return &chatapi.Thread{ConversationID: id}, nil
}

func (m *MockService) SendMessage(ctx context.Context, id chatapi.ID, body string) (*chatapi.Message, error) {
	m.record(Call{Method: "SendMessage", ID: id, Body: body})
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, id, body)
	}
	m.mu.Lock()
	m.nextID++
	n := m.nextID
	m.mu.Unlock()
	return &chatapi.Message{
		ID:        chatapi.ID(fmt.Sprintf("sent-%d", n)),
		Body:      body,
		CreatedAt: "2024-03-01 12:30:00",
		FromMe:    true,
	}, nil
}

func (m *MockService) StartConversation(ctx context.Context, otherUserID chatapi.ID) (*chatapi.Thread, error) {
	m.record(Call{Method: "StartConversation", ID: otherUserID})
	if m.StartConversationFunc != nil {
		return m.StartConversationFunc(ctx, otherUserID)
	}
	return &chatapi.Thread{
		ConversationID: chatapi.ID("c-" + string(otherUserID)),
		OtherUserID:    otherUserID,
		OtherUsername:  "user" + string(otherUserID),
	}, nil
}

func (m *MockService) DeleteConversations(ctx context.Context, ids []chatapi.ID) error {
	m.record(Call{Method: "DeleteConversations", IDs: append([]chatapi.ID(nil), ids...)})
	if m.DeleteConversationsFunc != nil {
		return m.DeleteConversationsFunc(ctx, ids)
	}
	return nil
}

func (m *MockService) DeleteMessage(ctx context.Context, id chatapi.ID) error {
	m.record(Call{Method: "DeleteMessage", ID: id})
	if m.DeleteMessageFunc != nil {
		return m.DeleteMessageFunc(ctx, id)
	}
	return nil
}
