// Package devserver implements the chat REST backend so the client can be
// run and tested without the real web application. State lives in memory
// (Store) or in a SQLite file (SQLStore).
package devserver

import (
	"errors"
	"strconv"
	"time"

	"github.com/wesm/chatline/internal/chatapi"
)

// TimestampLayout is how the backend renders timestamps: naive UTC, the
// way SQLite CURRENT_TIMESTAMP prints them.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrForbidden            = errors.New("forbidden")
	ErrSelfConversation     = errors.New("cannot message yourself")
	ErrEmptyBody            = errors.New("empty body")
	ErrEmptyUsername        = errors.New("empty username")
)

// User is a seeded account. The session cookie value is the username.
type User struct {
	ID       int64
	Username string
	Avatar   string
}

// Backend is the chat state the server serves. Every method acts on
// behalf of userID, the session user.
type Backend interface {
	AddUser(username string) (*User, error)
	UserByName(username string) (*User, error)
	Users() ([]User, error)

	// ListConversations returns the user's non-hidden conversations, most
	// recently active first.
	ListConversations(userID int64) ([]chatapi.Conversation, error)
	// LoadThread returns the visible history and marks it read.
	LoadThread(userID, convID int64) (*chatapi.Thread, error)
	// StartConversation finds or creates the conversation with
	// otherUserID, un-hides it for userID, and marks it read.
	StartConversation(userID, otherUserID int64) (*chatapi.Thread, error)
	SendMessage(userID, convID int64, body string) (*chatapi.Message, error)
	// DeleteConversations hides conversations for userID only and reports
	// how many were hidden.
	DeleteConversations(userID int64, ids []int64) (int, error)
	DeleteMessage(userID, messageID int64) error
}

// Compile-time checks.
var (
	_ Backend = (*Store)(nil)
	_ Backend = (*SQLStore)(nil)
)

func formatID(id int64) chatapi.ID {
	return chatapi.ID(strconv.FormatInt(id, 10))
}

func parseID(id chatapi.ID) (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}
