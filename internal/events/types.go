package events

import (
	"time"

	"verdant-sync/internal/domain"
)

// Event type constants carried on the push channel, format: domain.action.
const (
	EventTypeMessageCreated = "message.created"
	EventTypeMessageUpdated = "message.updated"
	EventTypeReceiptRead    = "receipt.read"

	EventTypePresenceOnline          = "presence.online"
	EventTypePresenceOffline         = "presence.offline"
	EventTypePresenceLastSeenUpdated = "presence.last_seen_updated"

	EventTypeConversationCreated = "conversation.created"
	EventTypeConversationUpdated = "conversation.updated"

	EventTypeHeartbeat = "system.heartbeat"
)

// Push channel prefixes. A viewer subscribes to its user channel plus one
// channel per conversation it participates in.
const (
	ChannelPrefixConversation = "channel:conversation:"
	ChannelPrefixUser         = "channel:user:"
	ChannelPrefixPresence     = "channel:presence:"
)

// Normalized event vocabulary. Everything the sync loop applies to the
// store is one of these shapes.

type Event interface {
	EventName() string
}

// MessageReceived carries a server-confirmed message, from steady-state
// push or from a reconciliation pass.
type MessageReceived struct {
	ConversationID string
	Message        domain.Message
}

func (MessageReceived) EventName() string { return "message_received" }

// MessageRead advances a reader's watermark up to a message.
type MessageRead struct {
	ConversationID string
	ReaderID       string
	UptoMessageID  string
	ReadAt         time.Time
}

func (MessageRead) EventName() string { return "message_read" }

// PresenceChanged reports a user's online state.
type PresenceChanged struct {
	UserID     string
	Online     bool
	LastSeenAt time.Time
}

func (PresenceChanged) EventName() string { return "presence_changed" }

// ConversationUpsert surfaces a new or updated conversation. Also produced
// synthetically during the reconnect reconciliation pass so full reloads
// travel the same merge path as incremental events.
type ConversationUpsert struct {
	Conversation domain.Conversation
}

func (ConversationUpsert) EventName() string { return "conversation_upsert" }
