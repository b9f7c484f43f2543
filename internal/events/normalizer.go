package events

import (
	"encoding/json"
	"time"

	"verdant-sync/internal/domain"
	"verdant-sync/pkg/logger"
)

// Normalizer converts raw push payloads into the internal event
// vocabulary. Normalization is deterministic: the same raw payload always
// yields the same event, which is what makes dedup in the store possible.
// Anything unknown or malformed is dropped with a warning; a bad payload
// must never take the sync loop down.
type Normalizer struct {
	log *logger.Logger
}

func NewNormalizer(log *logger.Logger) *Normalizer {
	return &Normalizer{log: log}
}

type wireMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	MediaURLs      []string   `json:"media_urls"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at"`
}

type wireReceipt struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	UptoMessageID  string    `json:"upto_message_id"`
	ReadAt         time.Time `json:"read_at"`
}

type wirePresence struct {
	UserID   string    `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

type wireConversation struct {
	ID             string                  `json:"id"`
	Type           domain.ConversationType `json:"type"`
	ParticipantIDs []string                `json:"participant_ids"`
	Subject        *string                 `json:"subject"`
	AvatarURL      *string                 `json:"avatar_url"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// Normalize maps one raw push payload onto the event vocabulary. The
// second return is false when the payload should be ignored.
func (n *Normalizer) Normalize(raw []byte) (Event, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		n.log.Warnf("push: dropping undecodable payload: %v", err)
		return nil, false
	}

	switch env.EventType {
	case EventTypeMessageCreated, EventTypeMessageUpdated:
		var m wireMessage
		if err := json.Unmarshal(env.Payload, &m); err != nil || m.ID == "" || m.ConversationID == "" {
			n.log.Warnf("push: dropping malformed %s payload", env.EventType)
			return nil, false
		}
		return MessageReceived{
			ConversationID: m.ConversationID,
			Message: domain.Message{
				ID:             m.ID,
				ConversationID: m.ConversationID,
				SenderID:       m.SenderID,
				Content:        m.Content,
				MediaURLs:      m.MediaURLs,
				CreatedAt:      m.CreatedAt,
				ReadAt:         m.ReadAt,
				State:          domain.StateConfirmed,
			},
		}, true

	case EventTypeReceiptRead:
		var r wireReceipt
		if err := json.Unmarshal(env.Payload, &r); err != nil || r.ConversationID == "" || r.UserID == "" {
			n.log.Warnf("push: dropping malformed %s payload", env.EventType)
			return nil, false
		}
		readAt := r.ReadAt
		if readAt.IsZero() {
			readAt = env.OccurredAt
		}
		return MessageRead{
			ConversationID: r.ConversationID,
			ReaderID:       r.UserID,
			UptoMessageID:  r.UptoMessageID,
			ReadAt:         readAt,
		}, true

	case EventTypePresenceOnline, EventTypePresenceOffline, EventTypePresenceLastSeenUpdated:
		var p wirePresence
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.UserID == "" {
			n.log.Warnf("push: dropping malformed %s payload", env.EventType)
			return nil, false
		}
		online := p.IsOnline && env.EventType != EventTypePresenceOffline
		return PresenceChanged{
			UserID:     p.UserID,
			Online:     online,
			LastSeenAt: p.LastSeen,
		}, true

	case EventTypeConversationCreated, EventTypeConversationUpdated:
		var c wireConversation
		if err := json.Unmarshal(env.Payload, &c); err != nil || c.ID == "" {
			n.log.Warnf("push: dropping malformed %s payload", env.EventType)
			return nil, false
		}
		lastActivity := c.UpdatedAt
		if lastActivity.IsZero() {
			lastActivity = c.CreatedAt
		}
		return ConversationUpsert{
			Conversation: domain.Conversation{
				ID:             c.ID,
				Type:           c.Type,
				ParticipantIDs: c.ParticipantIDs,
				Subject:        c.Subject,
				AvatarURL:      c.AvatarURL,
				CreatedAt:      c.CreatedAt,
				LastActivityAt: lastActivity,
			},
		}, true

	case EventTypeHeartbeat:
		// Keeps the liveness window open, carries no state.
		return nil, false

	default:
		n.log.Warnf("push: dropping unknown event type %q", env.EventType)
		return nil, false
	}
}
