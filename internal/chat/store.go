package chat

import (
	"context"
	"strings"
)

// Store persists conversations and messages. Repository (Postgres) and
// MemoryStore implement it with the same semantics.
type Store interface {
	// CreateOrGetDirect returns the unique non-group conversation between a
	// and b, creating it with participants [a, b] if needed.
	CreateOrGetDirect(ctx context.Context, a, b string) (*Conversation, error)
	CreateGroup(ctx context.Context, name string, participants []string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// AppendMessage stores m and, atomically with it, sets the
	// conversation's last message and updated_at and resets its seen set
	// to the sender. ErrNotFound if the conversation does not exist.
	AppendMessage(ctx context.Context, m *Message) (*Conversation, error)
	MarkSeen(ctx context.Context, conversationID, userID string) error
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
	ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]*Message, error)
}

// directKey identifies the unordered participant pair of a direct chat.
func directKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

func lastMessageOf(m *Message) *LastMessage {
	lm := &LastMessage{
		Type:      m.Type,
		SenderID:  m.SenderID,
		Timestamp: m.Timestamp,
	}
	if m.Type == MessageText {
		lm.Text = m.Text
	}
	return lm
}

func cleanName(name string) string {
	return strings.TrimSpace(name)
}
