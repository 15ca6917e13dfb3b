package devserver

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wesm/chatline/internal/chatapi"
)

type conversation struct {
	id        int64
	user1     int64 // lower id of the pair
	user2     int64
	createdAt time.Time
}

func (c *conversation) has(userID int64) bool {
	return c.user1 == userID || c.user2 == userID
}

func (c *conversation) other(userID int64) int64 {
	if c.user1 == userID {
		return c.user2
	}
	return c.user1
}

type message struct {
	id             int64
	conversationID int64
	senderID       int64
	body           string
	createdAt      time.Time
}

// memberKey addresses per-user conversation state.
type memberKey struct {
	conversationID int64
	userID         int64
}

type memberState struct {
	hidden    bool
	clearedAt time.Time // zero means never cleared
}

// Store is an in-memory Backend. It is safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users      map[int64]*User
	byName     map[string]int64
	convs      map[int64]*conversation
	pairs      map[[2]int64]int64
	messages   []*message
	states     map[memberKey]*memberState
	lastRead   map[memberKey]time.Time
	nextUserID int64
	nextConvID int64
	nextMsgID  int64
}

// NewStore creates an empty store. now supplies the clock; nil means
// time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:      now,
		users:    make(map[int64]*User),
		byName:   make(map[string]int64),
		convs:    make(map[int64]*conversation),
		pairs:    make(map[[2]int64]int64),
		states:   make(map[memberKey]*memberState),
		lastRead: make(map[memberKey]time.Time),
	}
}

// AddUser creates a user, or returns the existing one with that name.
func (s *Store) AddUser(username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}
	if id, ok := s.byName[username]; ok {
		return s.users[id], nil
	}
	s.nextUserID++
	u := &User{ID: s.nextUserID, Username: username}
	s.users[u.ID] = u
	s.byName[username] = u.ID
	return u, nil
}

// UserByName looks up a user by username.
func (s *Store) UserByName(username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.users[id], nil
}

// Users returns all users ordered by id.
func (s *Store) Users() ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// state returns the per-user state of a conversation, creating it.
// Caller holds s.mu.
func (s *Store) state(convID, userID int64) *memberState {
	k := memberKey{convID, userID}
	st, ok := s.states[k]
	if !ok {
		st = &memberState{}
		s.states[k] = st
	}
	return st
}

// visibleMessages returns the conversation's messages newer than the
// user's clear mark, oldest first. Caller holds s.mu.
func (s *Store) visibleMessages(convID, userID int64) []chatapi.Message {
	cleared := s.state(convID, userID).clearedAt
	out := []chatapi.Message{}
	for _, m := range s.messages {
		if m.conversationID != convID {
			continue
		}
		if !cleared.IsZero() && !m.createdAt.After(cleared) {
			continue
		}
		out = append(out, chatapi.Message{
			ID:        formatID(m.id),
			Body:      m.body,
			CreatedAt: formatTime(m.createdAt),
			FromMe:    m.senderID == userID,
		})
	}
	return out
}

// lastMessage returns the newest message of a conversation, or nil.
// Caller holds s.mu.
func (s *Store) lastMessage(convID int64) *message {
	var last *message
	for _, m := range s.messages {
		if m.conversationID == convID && (last == nil || !m.createdAt.Before(last.createdAt)) {
			last = m
		}
	}
	return last
}

// ListConversations implements Backend.
func (s *Store) ListConversations(userID int64) ([]chatapi.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type row struct {
		conv *conversation
		last *message
	}
	var rows []row
	for _, c := range s.convs {
		if !c.has(userID) {
			continue
		}
		if st, ok := s.states[memberKey{c.id, userID}]; ok && st.hidden {
			continue
		}
		rows = append(rows, row{conv: c, last: s.lastMessage(c.id)})
	}

	// Conversations without messages sort last, then by creation.
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.last != nil && b.last != nil && !a.last.createdAt.Equal(b.last.createdAt):
			return a.last.createdAt.After(b.last.createdAt)
		case (a.last == nil) != (b.last == nil):
			return a.last != nil
		case !a.conv.createdAt.Equal(b.conv.createdAt):
			return a.conv.createdAt.After(b.conv.createdAt)
		default:
			return a.conv.id > b.conv.id
		}
	})

	out := make([]chatapi.Conversation, 0, len(rows))
	for _, r := range rows {
		other := s.users[r.conv.other(userID)]
		cv := chatapi.Conversation{
			ID:            formatID(r.conv.id),
			OtherUserID:   formatID(other.ID),
			OtherUsername: other.Username,
			OtherAvatar:   other.Avatar,
			Unread:        s.unread(r.conv.id, userID),
		}
		if r.last != nil {
			cv.LastMessage = r.last.body
			cv.LastCreatedAt = formatTime(r.last.createdAt)
		}
		out = append(out, cv)
	}
	return out, nil
}

// unread reports whether the counterpart wrote after the user's last read.
// Caller holds s.mu.
func (s *Store) unread(convID, userID int64) bool {
	readAt, hasRead := s.lastRead[memberKey{convID, userID}]
	for _, m := range s.messages {
		if m.conversationID != convID || m.senderID == userID {
			continue
		}
		if !hasRead || m.createdAt.After(readAt) {
			return true
		}
	}
	return false
}

// LoadThread returns the visible history of a conversation and marks it
// read for the user.
func (s *Store) LoadThread(userID, convID int64) (*chatapi.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[convID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	if !c.has(userID) {
		return nil, ErrForbidden
	}
	return s.openThread(c, userID), nil
}

// openThread builds the thread response and records the read mark.
// Caller holds s.mu.
func (s *Store) openThread(c *conversation, userID int64) *chatapi.Thread {
	other := s.users[c.other(userID)]
	th := &chatapi.Thread{
		ConversationID: formatID(c.id),
		OtherUserID:    formatID(other.ID),
		OtherUsername:  other.Username,
		Messages:       s.visibleMessages(c.id, userID),
	}
	s.lastRead[memberKey{c.id, userID}] = s.now().UTC()
	return th
}

// StartConversation finds or creates the conversation between userID and
// otherUserID, un-hides it for userID, and marks it read.
func (s *Store) StartConversation(userID, otherUserID int64) (*chatapi.Thread, error) {
	if userID == otherUserID {
		return nil, ErrSelfConversation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[otherUserID]; !ok {
		return nil, ErrUserNotFound
	}

	pair := [2]int64{userID, otherUserID}
	if pair[0] > pair[1] {
		pair[0], pair[1] = pair[1], pair[0]
	}
	convID, ok := s.pairs[pair]
	if !ok {
		s.nextConvID++
		convID = s.nextConvID
		s.convs[convID] = &conversation{
			id:        convID,
			user1:     pair[0],
			user2:     pair[1],
			createdAt: s.now().UTC(),
		}
		s.pairs[pair] = convID
	}

	s.state(convID, otherUserID)
	s.state(convID, userID).hidden = false
	return s.openThread(s.convs[convID], userID), nil
}

// SendMessage appends a message from userID. The conversation reappears
// for the recipient if they had hidden it.
func (s *Store) SendMessage(userID, convID int64, body string) (*chatapi.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[convID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	if !c.has(userID) {
		return nil, ErrForbidden
	}

	s.nextMsgID++
	m := &message{
		id:             s.nextMsgID,
		conversationID: convID,
		senderID:       userID,
		body:           body,
		createdAt:      s.now().UTC(),
	}
	s.messages = append(s.messages, m)
	s.state(convID, c.other(userID)).hidden = false

	return &chatapi.Message{
		ID:        formatID(m.id),
		Body:      m.body,
		CreatedAt: formatTime(m.createdAt),
		FromMe:    true,
	}, nil
}

// DeleteConversations hides the given conversations for userID, clears
// their history for that user, and drops the read mark. Ids the user is
// not a member of are skipped. It returns how many were hidden.
func (s *Store) DeleteConversations(userID int64, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	n := 0
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		c, ok := s.convs[id]
		if !ok || !c.has(userID) || seen[id] {
			continue
		}
		seen[id] = true
		st := s.state(id, userID)
		st.hidden = true
		st.clearedAt = now
		delete(s.lastRead, memberKey{id, userID})
		n++
	}
	return n, nil
}

// DeleteMessage removes a message. Only its sender may delete it.
func (s *Store) DeleteMessage(userID, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.messages {
		if m.id != messageID {
			continue
		}
		if m.senderID != userID {
			return ErrForbidden
		}
		if c, ok := s.convs[m.conversationID]; !ok || !c.has(userID) {
			return ErrForbidden
		}
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		return nil
	}
	return ErrMessageNotFound
}
