package domain

import (
	"time"
	"unicode/utf8"
)

// Message is one entry in a conversation. ID is the server-assigned
// identifier; it is empty while the message is optimistic (LocalSeq > 0,
// State PENDING or FAILED). Once confirmed a message is immutable except
// for ReadAt.
type Message struct {
	ID             string       `json:"id,omitempty"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	Content        string       `json:"content"`
	MediaURLs      []string     `json:"media_urls,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	ReadAt         *time.Time   `json:"read_at,omitempty"`
	LocalSeq       int64        `json:"local_seq,omitempty"`
	State          MessageState `json:"state"`
}

// Confirmed reports whether the message has a server identity.
func (m *Message) Confirmed() bool {
	return m.ID != "" && m.State == StateConfirmed
}

// Preview returns the conversation-list preview text for the message.
func (m *Message) Preview() string {
	if m.Content != "" {
		const max = 120
		if len(m.Content) > max {
			// Back up to a rune boundary so the cut never emits a split
			// multi-byte character.
			cut := max
			for cut > 0 && !utf8.RuneStart(m.Content[cut]) {
				cut--
			}
			return m.Content[:cut]
		}
		return m.Content
	}
	if len(m.MediaURLs) > 0 {
		return "[attachment]"
	}
	return ""
}

// Draft is the caller-supplied payload of a send command.
type Draft struct {
	Content   string   `json:"content"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// Empty reports whether the draft carries neither text nor attachments.
func (d Draft) Empty() bool {
	return d.Content == "" && len(d.MediaURLs) == 0
}

// Before reports whether m sorts ahead of other in a conversation:
// by CreatedAt, ties broken by server id so replicas agree.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
