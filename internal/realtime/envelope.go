package realtime

// Envelope types pushed to clients.
const (
	TypeNewMessage    = "new_message"
	TypePostShare     = "post_share"
	TypePostReaction  = "post_reaction"
	TypePostComment   = "post_comment"
	TypeFriendRequest = "friend_request"
)

// Envelope is one transient push event. It is never persisted.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
