package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"relo/internal/apperr"
	"relo/internal/httpx"
	"relo/internal/user"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
)

// Publisher pushes a stored message to the other participants. It reports
// how many live connections accepted it and never fails.
type Publisher interface {
	MessageSent(ctx context.Context, msg *MessageView, conv *Conversation) int
}

// ProfileResolver is implemented by user.Service.
type ProfileResolver interface {
	Resolve(ctx context.Context, ref user.Ref) (*user.Profile, error)
	ResolveMany(ctx context.Context, ids []string) (map[string]*user.Profile, error)
}

type Service struct {
	store     Store
	users     ProfileResolver
	publisher Publisher
	log       *slog.Logger
	now       func() time.Time
}

func NewService(store Store, users ProfileResolver, publisher Publisher, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		users:     users,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// CreateConversation finds or creates a conversation for callerID and the
// requested participants. The caller is always a participant.
func (s *Service) CreateConversation(ctx context.Context, callerID string, req *CreateConversationRequest) (*ConversationView, error) {
	participants := []string{}
	for _, id := range req.ParticipantIDs {
		if id != callerID && !slices.Contains(participants, id) {
			participants = append(participants, id)
		}
	}
	profiles, err := s.users.ResolveMany(ctx, append(slices.Clone(participants), callerID))
	if err != nil {
		return nil, err
	}
	for _, id := range participants {
		if _, ok := profiles[id]; !ok {
			return nil, apperr.Validation(fmt.Sprintf("unknown participant %s", id), nil)
		}
	}
	participants = append(participants, callerID)

	var conv *Conversation
	switch {
	case req.IsGroup:
		if len(participants) < 2 {
			return nil, apperr.Validation("a group needs at least one other participant", nil)
		}
		conv, err = s.store.CreateGroup(ctx, req.Name, participants)
	case len(participants) == 2:
		conv, err = s.CreateOrGetDirect(ctx, callerID, participants[0])
	default:
		return nil, apperr.Validation("a direct conversation needs exactly one other participant", nil)
	}
	if err != nil {
		return nil, err
	}
	return NewConversationView(conv, profiles), nil
}

// CreateOrGetDirect returns the single direct conversation between a and b.
func (s *Service) CreateOrGetDirect(ctx context.Context, a, b string) (*Conversation, error) {
	if a == b {
		return nil, apperr.Validation("cannot start a conversation with yourself", nil)
	}
	conv, err := s.store.CreateOrGetDirect(ctx, a, b)
	if err != nil {
		return nil, apperr.Internal("create conversation", err)
	}
	return conv, nil
}

func (s *Service) GetConversation(ctx context.Context, callerID, conversationID string) (*ConversationView, error) {
	conv, err := s.participantConversation(ctx, callerID, conversationID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.users.ResolveMany(ctx, conv.Participants)
	if err != nil {
		return nil, err
	}
	return NewConversationView(conv, profiles), nil
}

func (s *Service) ListConversations(ctx context.Context, callerID string) ([]*ConversationView, error) {
	convs, err := s.store.ListConversations(ctx, callerID)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, c := range convs {
		for _, p := range c.Participants {
			if !slices.Contains(ids, p) {
				ids = append(ids, p)
			}
		}
	}
	profiles, err := s.users.ResolveMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*ConversationView, 0, len(convs))
	for _, c := range convs {
		out = append(out, NewConversationView(c, profiles))
	}
	return out, nil
}

func (s *Service) ListMessages(ctx context.Context, callerID, conversationID string, offset, limit int) ([]*MessageView, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	limit = min(limit, MaxMessageLimit)
	offset = max(offset, 0)

	conv, err := s.participantConversation(ctx, callerID, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conv.ID, offset, limit)
	if err != nil {
		return nil, err
	}

	profiles, err := s.users.ResolveMany(ctx, conv.Participants)
	if err != nil {
		return nil, err
	}
	out := make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessageView(m, profiles[m.SenderID]))
	}
	return out, nil
}

// SendMessage stores the message and only then publishes it. A failed or
// dropped push never fails the call.
func (s *Service) SendMessage(ctx context.Context, callerID, conversationID string, req *SendMessageRequest) (*MessageView, error) {
	if err := validateAttachments(req); err != nil {
		return nil, err
	}
	if _, err := s.participantConversation(ctx, callerID, conversationID); err != nil {
		return nil, err
	}

	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       callerID,
		Type:           req.Type,
		FileURLs:       req.FileURLs,
		Timestamp:      s.now(),
		Status:         StatusSent,
	}
	if req.Type == MessageText {
		msg.Text = req.Text
	}

	conv, err := s.store.AppendMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("conversation", err)
		}
		return nil, err
	}

	sender, err := s.users.Resolve(ctx, user.Ref{ID: callerID})
	if err != nil {
		s.log.Warn("resolve sender", "user_id", callerID, "error", err)
	}
	view := NewMessageView(msg, sender)
	delivered := s.publisher.MessageSent(ctx, view, conv)
	s.log.Debug("message sent", "conversation_id", conv.ID, "message_id", msg.ID, "delivered", delivered)
	return view, nil
}

func (s *Service) MarkSeen(ctx context.Context, callerID, conversationID string) error {
	if _, err := s.participantConversation(ctx, callerID, conversationID); err != nil {
		return err
	}
	if err := s.store.MarkSeen(ctx, conversationID, callerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("conversation", err)
		}
		return err
	}
	return nil
}

func (s *Service) participantConversation(ctx context.Context, callerID, conversationID string) (*Conversation, error) {
	if err := httpx.ValidateVar("conversation id", conversationID, "required,uuid"); err != nil {
		return nil, err
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("conversation", err)
		}
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, apperr.Forbidden("not a participant of this conversation", nil)
	}
	return conv, nil
}

func validateAttachments(req *SendMessageRequest) error {
	switch req.Type {
	case MessageText:
		if strings.TrimSpace(req.Text) == "" {
			return apperr.Validation("text is required for text messages", nil)
		}
		if len(req.FileURLs) > 0 {
			return apperr.Validation("text messages cannot carry files", nil)
		}
	case MessageAudio, MessageFile:
		if len(req.FileURLs) != 1 {
			return apperr.Validation(fmt.Sprintf("%s messages need exactly one file url", req.Type), nil)
		}
	case MessageMedia:
		if len(req.FileURLs) == 0 {
			return apperr.Validation("media messages need at least one file url", nil)
		}
	default:
		return apperr.Validation(fmt.Sprintf("unknown message type %q", req.Type), nil)
	}
	return nil
}
