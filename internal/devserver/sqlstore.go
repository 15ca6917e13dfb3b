package devserver

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/wesm/chatline/internal/chatapi"
	"github.com/wesm/chatline/internal/fileutil"
)

//go:embed schema.sql
var schemaFS embed.FS

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// SQLStore is a Backend kept in a SQLite file, laid out like the web
// app's own database so a dev server can be restarted without losing
// conversations.
type SQLStore struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// isSQLiteError checks if err is a sqlite3.Error with a message containing substr.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// OpenSQL opens or creates the database at dbPath and initializes the
// schema. now supplies the clock; nil means time.Now.
func OpenSQL(dbPath string, now func() time.Time) (*SQLStore, error) {
	if now == nil {
		now = time.Now
	}

	// Ensure directory exists
	if err := fileutil.MkdirPrivate(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers, like the single-process web app.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLStore{db: db, dbPath: dbPath, now: now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLStore) Path() string {
	return s.dbPath
}

func (s *SQLStore) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("execute schema.sql: %w", err)
	}
	return nil
}

// withTx executes fn within a database transaction. If fn returns an error,
// the transaction is rolled back; otherwise it is committed.
func (s *SQLStore) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) timestamp() string {
	return formatTime(s.now())
}

// AddUser creates a user, or returns the existing one with that name.
func (s *SQLStore) AddUser(username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}
	_, err := s.db.Exec(`INSERT INTO users (username) VALUES (?)`, username)
	if err != nil && !isSQLiteError(err, "UNIQUE constraint failed") {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.UserByName(username)
}

// UserByName looks up a user by username.
func (s *SQLStore) UserByName(username string) (*User, error) {
	var u User
	err := s.db.QueryRow(`SELECT id, username, avatar_path FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.Avatar)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Users returns all users ordered by id.
func (s *SQLStore) Users() ([]User, error) {
	rows, err := s.db.Query(`SELECT id, username, avatar_path FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Avatar); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListConversations implements Backend.
func (s *SQLStore) ListConversations(userID int64) ([]chatapi.Conversation, error) {
	rows, err := s.db.Query(`
		SELECT c.id, u.id, u.username, u.avatar_path,
		       COALESCE(lm.body, ''), COALESCE(lm.created_at, ''),
		       EXISTS (
		         SELECT 1 FROM messages m
		         WHERE m.conversation_id = c.id
		           AND m.sender_id != ?
		           AND (r.last_read_at IS NULL OR m.created_at > r.last_read_at)
		       )
		FROM conversations c
		JOIN users u
		  ON u.id = CASE WHEN c.user1_id = ? THEN c.user2_id ELSE c.user1_id END
		LEFT JOIN conversation_states st
		  ON st.conversation_id = c.id AND st.user_id = ?
		LEFT JOIN conversation_reads r
		  ON r.conversation_id = c.id AND r.user_id = ?
		LEFT JOIN messages lm ON lm.id = (
		  SELECT m2.id FROM messages m2
		  WHERE m2.conversation_id = c.id
		  ORDER BY m2.created_at DESC, m2.id DESC
		  LIMIT 1
		)
		WHERE (c.user1_id = ? OR c.user2_id = ?)
		  AND COALESCE(st.hidden, 0) = 0
		ORDER BY lm.id IS NULL, lm.created_at DESC, c.created_at DESC, c.id DESC`,
		userID, userID, userID, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []chatapi.Conversation{}
	for rows.Next() {
		var (
			convID, otherID int64
			cv              chatapi.Conversation
		)
		if err := rows.Scan(&convID, &otherID, &cv.OtherUsername, &cv.OtherAvatar,
			&cv.LastMessage, &cv.LastCreatedAt, &cv.Unread); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		cv.ID = formatID(convID)
		cv.OtherUserID = formatID(otherID)
		out = append(out, cv)
	}
	return out, rows.Err()
}

// members returns the two participants of a conversation.
func members(q querier, convID int64) (user1, user2 int64, err error) {
	err = q.QueryRow(`SELECT user1_id, user2_id FROM conversations WHERE id = ?`, convID).Scan(&user1, &user2)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrConversationNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("get conversation: %w", err)
	}
	return user1, user2, nil
}

// counterpart checks membership and returns the other participant.
func counterpart(q querier, convID, userID int64) (int64, error) {
	user1, user2, err := members(q, convID)
	if err != nil {
		return 0, err
	}
	switch userID {
	case user1:
		return user2, nil
	case user2:
		return user1, nil
	}
	return 0, ErrForbidden
}

// ensureState creates the per-user state row if it is missing.
func ensureState(q querier, convID, userID int64) error {
	_, err := q.Exec(`
		INSERT OR IGNORE INTO conversation_states (conversation_id, user_id, hidden, cleared_at)
		VALUES (?, ?, 0, NULL)`, convID, userID)
	if err != nil {
		return fmt.Errorf("ensure conversation state: %w", err)
	}
	return nil
}

func setHidden(q querier, convID, userID int64, hidden bool) error {
	if err := ensureState(q, convID, userID); err != nil {
		return err
	}
	_, err := q.Exec(`UPDATE conversation_states SET hidden = ? WHERE conversation_id = ? AND user_id = ?`,
		hidden, convID, userID)
	if err != nil {
		return fmt.Errorf("update conversation state: %w", err)
	}
	return nil
}

// openThread builds the thread response and records the read mark.
func (s *SQLStore) openThread(q querier, convID, userID, otherID int64) (*chatapi.Thread, error) {
	th := &chatapi.Thread{
		ConversationID: formatID(convID),
		OtherUserID:    formatID(otherID),
		Messages:       []chatapi.Message{},
	}
	if err := q.QueryRow(`SELECT username FROM users WHERE id = ?`, otherID).Scan(&th.OtherUsername); err != nil {
		return nil, fmt.Errorf("get counterpart: %w", err)
	}

	rows, err := q.Query(`
		SELECT m.id, m.body, m.created_at, m.sender_id
		FROM messages m
		LEFT JOIN conversation_states st
		  ON st.conversation_id = m.conversation_id AND st.user_id = ?
		WHERE m.conversation_id = ?
		  AND (st.cleared_at IS NULL OR m.created_at > st.cleared_at)
		ORDER BY m.created_at, m.id`, userID, convID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	for rows.Next() {
		var (
			id, senderID int64
			msg          chatapi.Message
		)
		if err := rows.Scan(&id, &msg.Body, &msg.CreatedAt, &senderID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ID = formatID(id)
		msg.FromMe = senderID == userID
		th.Messages = append(th.Messages, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	_, err = q.Exec(`
		INSERT INTO conversation_reads (conversation_id, user_id, last_read_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET last_read_at = excluded.last_read_at`,
		convID, userID, s.timestamp())
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return th, nil
}

// LoadThread implements Backend.
func (s *SQLStore) LoadThread(userID, convID int64) (*chatapi.Thread, error) {
	var th *chatapi.Thread
	err := s.withTx(func(tx *sql.Tx) error {
		otherID, err := counterpart(tx, convID, userID)
		if err != nil {
			return err
		}
		th, err = s.openThread(tx, convID, userID, otherID)
		return err
	})
	return th, err
}

// StartConversation implements Backend.
func (s *SQLStore) StartConversation(userID, otherUserID int64) (*chatapi.Thread, error) {
	if userID == otherUserID {
		return nil, ErrSelfConversation
	}

	var th *chatapi.Thread
	err := s.withTx(func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, otherUserID).Scan(&exists); err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if !exists {
			return ErrUserNotFound
		}

		user1, user2 := userID, otherUserID
		if user1 > user2 {
			user1, user2 = user2, user1
		}
		var convID int64
		err := tx.QueryRow(`SELECT id FROM conversations WHERE user1_id = ? AND user2_id = ?`, user1, user2).Scan(&convID)
		if errors.Is(err, sql.ErrNoRows) {
			res, err := tx.Exec(`INSERT INTO conversations (user1_id, user2_id, created_at) VALUES (?, ?, ?)`,
				user1, user2, s.timestamp())
			if err != nil {
				return fmt.Errorf("insert conversation: %w", err)
			}
			if convID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("conversation id: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("find conversation: %w", err)
		}

		if err := ensureState(tx, convID, otherUserID); err != nil {
			return err
		}
		if err := setHidden(tx, convID, userID, false); err != nil {
			return err
		}
		th, err = s.openThread(tx, convID, userID, otherUserID)
		return err
	})
	return th, err
}

// SendMessage implements Backend. The conversation reappears for the
// recipient if they had hidden it.
func (s *SQLStore) SendMessage(userID, convID int64, body string) (*chatapi.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	var msg *chatapi.Message
	err := s.withTx(func(tx *sql.Tx) error {
		otherID, err := counterpart(tx, convID, userID)
		if err != nil {
			return err
		}
		createdAt := s.timestamp()
		res, err := tx.Exec(`INSERT INTO messages (conversation_id, sender_id, body, created_at) VALUES (?, ?, ?, ?)`,
			convID, userID, body, createdAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("message id: %w", err)
		}
		if err := setHidden(tx, convID, otherID, false); err != nil {
			return err
		}
		msg = &chatapi.Message{
			ID:        formatID(id),
			Body:      body,
			CreatedAt: createdAt,
			FromMe:    true,
		}
		return nil
	})
	return msg, err
}

// DeleteConversations implements Backend. Ids the user is not a member of
// are skipped.
func (s *SQLStore) DeleteConversations(userID int64, ids []int64) (int, error) {
	n := 0
	err := s.withTx(func(tx *sql.Tx) error {
		now := s.timestamp()
		seen := make(map[int64]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if _, err := counterpart(tx, id, userID); err != nil {
				if errors.Is(err, ErrConversationNotFound) || errors.Is(err, ErrForbidden) {
					continue
				}
				return err
			}
			if err := ensureState(tx, id, userID); err != nil {
				return err
			}
			if _, err := tx.Exec(`
				UPDATE conversation_states SET hidden = 1, cleared_at = ?
				WHERE conversation_id = ? AND user_id = ?`, now, id, userID); err != nil {
				return fmt.Errorf("hide conversation: %w", err)
			}
			if _, err := tx.Exec(`DELETE FROM conversation_reads WHERE conversation_id = ? AND user_id = ?`, id, userID); err != nil {
				return fmt.Errorf("drop read mark: %w", err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteMessage implements Backend. Only the sender may delete.
func (s *SQLStore) DeleteMessage(userID, messageID int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		var convID, senderID int64
		err := tx.QueryRow(`SELECT conversation_id, sender_id FROM messages WHERE id = ?`, messageID).Scan(&convID, &senderID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMessageNotFound
		}
		if err != nil {
			return fmt.Errorf("get message: %w", err)
		}
		if senderID != userID {
			return ErrForbidden
		}
		if _, err := counterpart(tx, convID, userID); err != nil {
			if errors.Is(err, ErrConversationNotFound) {
				return ErrForbidden
			}
			return err
		}
		if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, messageID); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		return nil
	})
}
