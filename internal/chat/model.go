package chat

import (
	"errors"
	"slices"
	"time"

	"relo/internal/user"
)

var ErrNotFound = errors.New("conversation not found")

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageAudio MessageType = "audio"
	MessageFile  MessageType = "file"
	MessageMedia MessageType = "media"

	StatusSent = "sent"
)

// LastMessage is the denormalized snapshot kept on a conversation.
type LastMessage struct {
	Type      MessageType `json:"content_type"`
	Text      string      `json:"text,omitempty"`
	SenderID  string      `json:"sender_id"`
	Timestamp time.Time   `json:"timestamp"`
}

type Conversation struct {
	ID           string
	Name         string
	IsGroup      bool
	Participants []string // display order
	AvatarURL    string
	LastMessage  *LastMessage
	UpdatedAt    time.Time
	SeenBy       []string
}

func (c *Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

func (c *Conversation) SeenByUser(userID string) bool {
	return slices.Contains(c.SeenBy, userID)
}

type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Type           MessageType
	Text           string
	FileURLs       []string
	Timestamp      time.Time
	Status         string
}

// ---------------------------------------------
// API models
// ---------------------------------------------

type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" validate:"dive,uuid"`
	IsGroup        bool     `json:"is_group"`
	Name           string   `json:"name" validate:"max=100"`
}

type SendMessageRequest struct {
	Type     MessageType `json:"type" validate:"required,oneof=text audio file media"`
	Text     string      `json:"text" validate:"required_if=Type text,max=4000"`
	FileURLs []string    `json:"file_urls" validate:"dive,url"`
}

// MessageContent mirrors what clients render: text for text messages,
// url/path for single attachments and paths for media.
type MessageContent struct {
	Type  MessageType `json:"type"`
	Text  string      `json:"text,omitempty"`
	URL   string      `json:"url,omitempty"`
	Path  string      `json:"path,omitempty"`
	Paths []string    `json:"paths,omitempty"`
}

type MessageView struct {
	ID             string         `json:"id"`
	Content        MessageContent `json:"content"`
	SenderID       string         `json:"senderId"`
	ConversationID string         `json:"conversationId"`
	CreatedAt      time.Time      `json:"createdAt"`
	Status         string         `json:"status"`
	AvatarURL      string         `json:"avatarUrl"`
}

type ConversationView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name,omitempty"`
	IsGroup      bool            `json:"isGroup"`
	Participants []*user.Profile `json:"participants"`
	AvatarURL    string          `json:"avatarUrl,omitempty"`
	LastMessage  *LastMessage    `json:"lastMessage"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	SeenIDs      []string        `json:"seenIds"`
}

// NewMessageView renders m. The sender must already be resolved.
func NewMessageView(m *Message, sender *user.Profile) *MessageView {
	content := MessageContent{Type: m.Type}
	if m.Type == MessageText {
		content.Text = m.Text
	} else if len(m.FileURLs) > 0 {
		content.URL = m.FileURLs[0]
		content.Path = m.FileURLs[0]
		content.Paths = m.FileURLs
	}
	v := &MessageView{
		ID:             m.ID,
		Content:        content,
		SenderID:       m.SenderID,
		ConversationID: m.ConversationID,
		CreatedAt:      m.Timestamp,
		Status:         m.Status,
	}
	if sender != nil {
		v.AvatarURL = sender.AvatarURL
	}
	return v
}

// NewConversationView renders c with participant profiles from profiles.
// Participants without a profile (deleted users) are skipped.
func NewConversationView(c *Conversation, profiles map[string]*user.Profile) *ConversationView {
	participants := make([]*user.Profile, 0, len(c.Participants))
	for _, id := range c.Participants {
		if p, ok := profiles[id]; ok {
			participants = append(participants, p)
		}
	}
	seen := c.SeenBy
	if seen == nil {
		seen = []string{}
	}
	return &ConversationView{
		ID:           c.ID,
		Name:         c.Name,
		IsGroup:      c.IsGroup,
		Participants: participants,
		AvatarURL:    c.AvatarURL,
		LastMessage:  c.LastMessage,
		UpdatedAt:    c.UpdatedAt,
		SeenIDs:      seen,
	}
}
