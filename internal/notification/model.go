package notification

import (
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("notification not found")

type Type string

const (
	TypeFriendRequest Type = "friend_request"
	TypeLike          Type = "like"
	TypeComment       Type = "comment"
	TypeMessage       Type = "message"
	TypePostShare     Type = "post_share"
	TypePostReaction  Type = "post_reaction"
	TypePostComment   Type = "post_comment"
)

// Notification is one row addressed to RecipientID. Sender fields are
// denormalized at creation time.
type Notification struct {
	ID           string
	RecipientID  string
	SenderID     string
	SenderName   string
	SenderAvatar string
	Type         Type
	RelatedID    string
	Content      string
	IsRead       bool
	CreatedAt    time.Time
}

// refersToPost reports whether RelatedID is a post id.
func (n *Notification) refersToPost() bool {
	switch n.Type {
	case TypeLike, TypeComment:
		return true
	}
	return strings.Contains(string(n.Type), "post") || strings.Contains(string(n.Type), "share")
}

type ListOptions struct {
	Limit      int
	Skip       int
	UnreadOnly bool
}

// ---------------------------------------------
// API models
// ---------------------------------------------

type View struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      Type              `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata"`
	IsRead    bool              `json:"isRead"`
	CreatedAt time.Time         `json:"createdAt"`
}

type CountResponse struct {
	Count int `json:"count"`
}

func NewView(n *Notification) *View {
	meta := map[string]string{
		"senderId": n.SenderID,
		"avatar":   n.SenderAvatar,
	}
	if n.RelatedID != "" {
		if n.refersToPost() {
			meta["postId"] = n.RelatedID
		} else {
			meta["relatedId"] = n.RelatedID
		}
	}
	return &View{
		ID:        n.ID,
		UserID:    n.RecipientID,
		Type:      n.Type,
		Title:     n.SenderName,
		Message:   n.Content,
		Metadata:  meta,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
