package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository is the Postgres Store.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) CreateOrGetDirect(ctx context.Context, a, b string) (*Conversation, error) {
	key := directKey(a, b)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// The unique direct_key makes a concurrent create of the same pair wait
	// for the winner and then do nothing.
	id := uuid.NewString()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, is_group, direct_key, updated_at)
		VALUES ($1, FALSE, $2, $3) ON CONFLICT (direct_key) DO NOTHING`,
		id, key, r.now())
	if err != nil {
		return nil, fmt.Errorf("insert direct conversation: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("insert direct conversation: %w", err)
	}

	if created == 1 {
		if err := insertParticipants(ctx, tx, id, []string{a, b}); err != nil {
			return nil, err
		}
	} else {
		if err := tx.QueryRowContext(ctx, "SELECT id FROM conversations WHERE direct_key = $1", key).Scan(&id); err != nil {
			return nil, fmt.Errorf("find direct conversation: %w", err)
		}
	}

	c, err := loadConversation(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func (r *Repository) CreateGroup(ctx context.Context, name string, participants []string) (*Conversation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO conversations (id, name, is_group, updated_at) VALUES ($1, $2, TRUE, $3)",
		id, nullString(cleanName(name)), r.now())
	if err != nil {
		return nil, fmt.Errorf("insert group conversation: %w", err)
	}
	if err := insertParticipants(ctx, tx, id, participants); err != nil {
		return nil, err
	}

	c, err := loadConversation(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func (r *Repository) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return loadConversation(ctx, r.db, id)
}

func (r *Repository) AppendMessage(ctx context.Context, m *Message) (*Conversation, error) {
	urls, err := json.Marshal(m.FileURLs)
	if err != nil {
		return nil, fmt.Errorf("encode file urls: %w", err)
	}
	if m.FileURLs == nil {
		urls = []byte("[]")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Updating first locks the conversation row and tells us whether it exists.
	lm := lastMessageOf(m)
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations
		SET last_message_type = $2, last_message_text = $3, last_message_sender = $4,
			last_message_at = $5, updated_at = $5
		WHERE id = $1`,
		m.ConversationID, string(lm.Type), nullString(lm.Text), lm.SenderID, lm.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("update last message: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("update last message: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("append message to %s: %w", m.ConversationID, ErrNotFound)
	}

	text := sql.NullString{String: m.Text, Valid: m.Type == MessageText}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, type, text, file_urls, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ConversationID, m.SenderID, string(m.Type), text, string(urls), m.Status, m.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversation_seen WHERE conversation_id = $1", m.ConversationID); err != nil {
		return nil, fmt.Errorf("reset seen: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO conversation_seen (conversation_id, user_id) VALUES ($1, $2)",
		m.ConversationID, m.SenderID); err != nil {
		return nil, fmt.Errorf("reset seen: %w", err)
	}

	c, err := loadConversation(ctx, tx, m.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func (r *Repository) MarkSeen(ctx context.Context, conversationID, userID string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)", conversationID).Scan(&exists); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	if !exists {
		return fmt.Errorf("mark seen %s: %w", conversationID, ErrNotFound)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversation_seen (conversation_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// ListConversations loads every conversation of userID in three queries:
// the conversation rows, then all participants, then all seen markers.
func (r *Repository) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.is_group, c.avatar_url, c.last_message_type, c.last_message_text,
			c.last_message_sender, c.last_message_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants me ON me.conversation_id = c.id
		WHERE me.user_id = $1
		ORDER BY c.updated_at DESC, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []*Conversation{}
	byID := make(map[string]*Conversation)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		out = append(out, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	err = r.collectPairs(ctx, byID, func(c *Conversation, id string) { c.Participants = append(c.Participants, id) },
		`SELECT p.conversation_id, p.user_id FROM conversation_participants p
		JOIN conversation_participants me ON me.conversation_id = p.conversation_id
		WHERE me.user_id = $1
		ORDER BY p.conversation_id, p.position`, userID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	err = r.collectPairs(ctx, byID, func(c *Conversation, id string) { c.SeenBy = append(c.SeenBy, id) },
		`SELECT s.conversation_id, s.user_id FROM conversation_seen s
		JOIN conversation_participants me ON me.conversation_id = s.conversation_id
		WHERE me.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list seen: %w", err)
	}
	return out, nil
}

// collectPairs runs a (conversation_id, user_id) query and hands each row to
// add. Rows for conversations outside byID are skipped.
func (r *Repository) collectPairs(ctx context.Context, byID map[string]*Conversation, add func(*Conversation, string), query string, args ...any) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var convID, userID string
		if err := rows.Scan(&convID, &userID); err != nil {
			return err
		}
		if c, ok := byID[convID]; ok {
			add(c, userID)
		}
	}
	return rows.Err()
}

func (r *Repository) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, type, text, file_urls, status, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`, conversationID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		var (
			m    Message
			typ  string
			text sql.NullString
			urls string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &typ, &text, &urls, &m.Status, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = MessageType(typ)
		m.Text = text.String
		if err := json.Unmarshal([]byte(urls), &m.FileURLs); err != nil {
			return nil, fmt.Errorf("decode file urls of %s: %w", m.ID, err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func loadConversation(ctx context.Context, q querier, id string) (*Conversation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, is_group, avatar_url, last_message_type, last_message_text,
			last_message_sender, last_message_at, updated_at
		FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get conversation %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		"SELECT user_id FROM conversation_participants WHERE conversation_id = $1 ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	if c.Participants, err = collectStrings(rows); err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	rows, err = q.QueryContext(ctx,
		"SELECT user_id FROM conversation_seen WHERE conversation_id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("load seen: %w", err)
	}
	if c.SeenBy, err = collectStrings(rows); err != nil {
		return nil, fmt.Errorf("load seen: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		c                                    Conversation
		name, avatar, lmType, lmText, sender sql.NullString
		lmAt                                 sql.NullTime
	)
	if err := row.Scan(&c.ID, &name, &c.IsGroup, &avatar, &lmType, &lmText, &sender, &lmAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Name = name.String
	c.AvatarURL = avatar.String
	if lmType.Valid {
		c.LastMessage = &LastMessage{
			Type:      MessageType(lmType.String),
			Text:      lmText.String,
			SenderID:  sender.String,
			Timestamp: lmAt.Time,
		}
	}
	return &c, nil
}

func insertParticipants(ctx context.Context, tx *sql.Tx, conversationID string, userIDs []string) error {
	values := make([]string, len(userIDs))
	args := make([]any, 0, len(userIDs)*2+1)
	args = append(args, conversationID)
	for i, id := range userIDs {
		values[i] = fmt.Sprintf("($1, $%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, id, i)
	}
	query := "INSERT INTO conversation_participants (conversation_id, user_id, position) VALUES " + strings.Join(values, ", ")
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert participants: %w", err)
	}
	return nil
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
