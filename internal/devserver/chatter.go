package devserver

import (
	"context"
	"fmt"
	"sync"
)

var chatterLines = []string{
	"are you around?",
	"just saw this, ha",
	"ok!",
	"let me check and get back to you",
	"お疲れさまです",
	"see you tomorrow 👋",
}

// Chatter posts canned messages on behalf of users so a running dev
// server has fresh unread traffic. Post matches scheduler.PostFunc.
type Chatter struct {
	b Backend

	mu   sync.Mutex
	next int
}

// NewChatter creates a Chatter writing through b.
func NewChatter(b Backend) *Chatter {
	return &Chatter{b: b}
}

func (c *Chatter) line() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := chatterLines[c.next%len(chatterLines)]
	c.next++
	return l
}

// Post sends the next canned line from username into their most recent
// conversation. A user with no conversations starts one with the
// lowest-id other user.
func (c *Chatter) Post(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := c.b.UserByName(username)
	if err != nil {
		return fmt.Errorf("chatter user %q: %w", username, err)
	}

	convID, err := c.target(u)
	if err != nil {
		return err
	}
	if _, err := c.b.SendMessage(u.ID, convID, c.line()); err != nil {
		return fmt.Errorf("chatter send: %w", err)
	}
	return nil
}

func (c *Chatter) target(u *User) (int64, error) {
	convs, err := c.b.ListConversations(u.ID)
	if err != nil {
		return 0, err
	}
	if len(convs) > 0 {
		id, ok := parseID(convs[0].ID)
		if !ok {
			return 0, fmt.Errorf("conversation id %q is not numeric", convs[0].ID)
		}
		return id, nil
	}

	users, err := c.b.Users()
	if err != nil {
		return 0, err
	}
	for _, other := range users {
		if other.ID == u.ID {
			continue
		}
		th, err := c.b.StartConversation(u.ID, other.ID)
		if err != nil {
			return 0, fmt.Errorf("chatter start: %w", err)
		}
		id, ok := parseID(th.ConversationID)
		if !ok {
			return 0, fmt.Errorf("conversation id %q is not numeric", th.ConversationID)
		}
		return id, nil
	}
	return 0, fmt.Errorf("chatter user %q has nobody to talk to", u.Username)
}
