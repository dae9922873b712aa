// Package event turns domain events into stored notifications and live
// pushes. Storage always happens first; delivery is best effort.
package event

import (
	"context"
	"log/slog"

	"relo/internal/chat"
	"relo/internal/notification"
	"relo/internal/observability"
	"relo/internal/realtime"
	"relo/internal/user"
)

// Sender is implemented by realtime.Registry.
type Sender interface {
	SendTo(userID string, env realtime.Envelope) bool
}

// NotificationWriter is implemented by notification.Service.
type NotificationWriter interface {
	Create(ctx context.Context, n *notification.Notification) (*notification.Notification, error)
}

type Publisher struct {
	sender        Sender
	notifications NotificationWriter
	log           *slog.Logger
	metrics       *observability.Metrics
}

var _ chat.Publisher = (*Publisher)(nil)

func NewPublisher(sender Sender, notifications NotificationWriter, log *slog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		sender:        sender,
		notifications: notifications,
		log:           log,
		metrics:       metrics,
	}
}

type ConversationSummary struct {
	ParticipantCount int `json:"participantCount"`
}

type NewMessagePayload struct {
	Message      *chat.MessageView   `json:"message"`
	Conversation ConversationSummary `json:"conversation"`
}

// ActivityPayload is pushed for post and friend activity.
type ActivityPayload struct {
	Type            string `json:"type"`
	UserID          string `json:"userId"`
	UserDisplayName string `json:"userDisplayName"`
	Avatar          string `json:"avatar"`
	PostID          string `json:"postId,omitempty"`
	RequestID       string `json:"requestId,omitempty"`
}

// MessageSent pushes msg to every participant of conv except its sender and
// returns how many live connections took it.
func (p *Publisher) MessageSent(_ context.Context, msg *chat.MessageView, conv *chat.Conversation) int {
	env := realtime.Envelope{
		Type: realtime.TypeNewMessage,
		Payload: NewMessagePayload{
			Message:      msg,
			Conversation: ConversationSummary{ParticipantCount: len(conv.Participants)},
		},
	}

	delivered := 0
	for _, id := range conv.Participants {
		if id == msg.SenderID {
			continue
		}
		if p.sender.SendTo(id, env) {
			delivered++
		}
	}
	return delivered
}

// PostReacted notifies the author of postID that actor reacted to it.
func (p *Publisher) PostReacted(ctx context.Context, actor *user.Profile, authorID, postID string) (bool, error) {
	return p.activity(ctx, activity{
		kind:      notification.TypePostReaction,
		envType:   realtime.TypePostReaction,
		actor:     actor,
		recipient: authorID,
		relatedID: postID,
		content:   "reacted to your post",
	})
}

// PostCommented notifies the author of postID about a new comment.
func (p *Publisher) PostCommented(ctx context.Context, actor *user.Profile, authorID, postID string) (bool, error) {
	return p.activity(ctx, activity{
		kind:      notification.TypePostComment,
		envType:   realtime.TypePostComment,
		actor:     actor,
		recipient: authorID,
		relatedID: postID,
		content:   "commented on your post",
	})
}

// PostShared notifies the original author. sharePostID is the id of the new
// post that wraps the shared one.
func (p *Publisher) PostShared(ctx context.Context, actor *user.Profile, originalAuthorID, sharePostID string) (bool, error) {
	return p.activity(ctx, activity{
		kind:      notification.TypePostShare,
		envType:   realtime.TypePostShare,
		actor:     actor,
		recipient: originalAuthorID,
		relatedID: sharePostID,
		content:   "shared your post",
	})
}

func (p *Publisher) FriendRequested(ctx context.Context, actor *user.Profile, addresseeID, requestID string) (bool, error) {
	return p.activity(ctx, activity{
		kind:      notification.TypeFriendRequest,
		envType:   realtime.TypeFriendRequest,
		actor:     actor,
		recipient: addresseeID,
		relatedID: requestID,
		content:   "sent you a friend request",
	})
}

type activity struct {
	kind      notification.Type
	envType   string
	actor     *user.Profile
	recipient string
	relatedID string
	content   string
}

// activity stores the notification and then pushes it. Acting on your own
// content produces nothing.
func (p *Publisher) activity(ctx context.Context, a activity) (bool, error) {
	if a.recipient == a.actor.ID {
		return false, nil
	}

	_, err := p.notifications.Create(ctx, &notification.Notification{
		RecipientID:  a.recipient,
		SenderID:     a.actor.ID,
		SenderName:   a.actor.DisplayName,
		SenderAvatar: a.actor.AvatarURL,
		Type:         a.kind,
		RelatedID:    a.relatedID,
		Content:      a.content,
	})
	if err != nil {
		return false, err
	}
	p.metrics.Notifications.WithLabelValues(string(a.kind)).Inc()

	payload := ActivityPayload{
		Type:            a.envType,
		UserID:          a.actor.ID,
		UserDisplayName: a.actor.DisplayName,
		Avatar:          a.actor.AvatarURL,
	}
	if a.kind == notification.TypeFriendRequest {
		payload.RequestID = a.relatedID
	} else {
		payload.PostID = a.relatedID
	}

	delivered := p.sender.SendTo(a.recipient, realtime.Envelope{Type: a.envType, Payload: payload})
	p.log.Debug("activity published", "type", a.envType, "recipient", a.recipient, "delivered", delivered)
	return delivered, nil
}
