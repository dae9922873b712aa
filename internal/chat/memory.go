package chat

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps conversations and messages in process. All operations
// take one lock, which also makes CreateOrGetDirect race free.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	direct        map[string]string // directKey -> conversation id
	messages      map[string][]*Message
	now           func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		direct:        make(map[string]string),
		messages:      make(map[string][]*Message),
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *MemoryStore) CreateOrGetDirect(_ context.Context, a, b string) (*Conversation, error) {
	key := directKey(a, b)

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.direct[key]; ok {
		return cloneConversation(s.conversations[id]), nil
	}
	c := &Conversation{
		ID:           uuid.NewString(),
		Participants: []string{a, b},
		UpdatedAt:    s.now(),
	}
	s.conversations[c.ID] = c
	s.direct[key] = c.ID
	return cloneConversation(c), nil
}

func (s *MemoryStore) CreateGroup(_ context.Context, name string, participants []string) (*Conversation, error) {
	c := &Conversation{
		ID:           uuid.NewString(),
		Name:         cleanName(name),
		IsGroup:      true,
		Participants: slices.Clone(participants),
		UpdatedAt:    s.now(),
	}
	s.mu.Lock()
	s.conversations[c.ID] = c
	s.mu.Unlock()
	return cloneConversation(c), nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("get conversation %s: %w", id, ErrNotFound)
	}
	return cloneConversation(c), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, m *Message) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[m.ConversationID]
	if !ok {
		return nil, fmt.Errorf("append message to %s: %w", m.ConversationID, ErrNotFound)
	}

	stored := *m
	stored.FileURLs = slices.Clone(m.FileURLs)
	s.messages[c.ID] = append(s.messages[c.ID], &stored)

	c.LastMessage = lastMessageOf(m)
	c.UpdatedAt = m.Timestamp
	c.SeenBy = []string{m.SenderID}
	return cloneConversation(c), nil
}

func (s *MemoryStore) MarkSeen(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("mark seen %s: %w", conversationID, ErrNotFound)
	}
	if !c.SeenByUser(userID) {
		c.SeenBy = append(c.SeenBy, userID)
	}
	return nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID string) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Conversation
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string, offset, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[conversationID]

	// Stored in append order; newest first, insertion order breaks ties.
	ordered := make([]*Message, len(all))
	for i, m := range all {
		ordered[len(all)-1-i] = m
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.After(ordered[j].Timestamp)
	})

	offset = max(offset, 0)
	if offset >= len(ordered) {
		return []*Message{}, nil
	}
	end := min(offset+limit, len(ordered))
	out := make([]*Message, 0, end-offset)
	for _, m := range ordered[offset:end] {
		cp := *m
		cp.FileURLs = slices.Clone(m.FileURLs)
		out = append(out, &cp)
	}
	return out, nil
}

func cloneConversation(c *Conversation) *Conversation {
	cp := *c
	cp.Participants = slices.Clone(c.Participants)
	cp.SeenBy = slices.Clone(c.SeenBy)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	return &cp
}
