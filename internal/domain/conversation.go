package domain

import (
	"time"
)

// Conversation is the client's denormalized view of a thread. UnreadCount
// is derived locally from the viewer's read watermark, never sent by the
// backend.
type Conversation struct {
	ID             string           `json:"id"`
	Type           ConversationType `json:"type"`
	ParticipantIDs []string         `json:"participant_ids"`
	Subject        *string          `json:"subject,omitempty"`
	AvatarURL      *string          `json:"avatar_url,omitempty"`
	LastMessage    *MessageSummary  `json:"last_message,omitempty"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	UnreadCount    int              `json:"unread_count"`
	CreatedAt      time.Time        `json:"created_at"`
}

// MessageSummary is the preview shown in the conversation list.
type MessageSummary struct {
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Preview   string    `json:"preview"`
	SentAt    time.Time `json:"sent_at"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DirectPeer returns the other participant of a DM from the viewer's side.
func (c *Conversation) DirectPeer(viewerID string) (string, bool) {
	if c.Type != ConversationTypeDM {
		return "", false
	}
	for _, id := range c.ParticipantIDs {
		if id != viewerID {
			return id, true
		}
	}
	return "", false
}

// Presence is the last known online state of a user.
type Presence struct {
	UserID     string    `json:"user_id"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
