package gateway

import (
	"context"

	"verdant-sync/internal/domain"
)

// DefaultPageSize is the number of messages fetched per history page.
const DefaultPageSize = 50

// Gateway is the typed surface of the hosted backend. Every method is
// blocking, honors its context, and fails with one of the taxonomy errors
// from pkg/errors (network, auth, validation, not-found).
type Gateway interface {
	// ListConversations returns every conversation the viewer participates
	// in, most recently active first.
	ListConversations(ctx context.Context) ([]domain.Conversation, error)

	// ListMessages returns one reverse-chronological page. beforeCursor is
	// the id of the oldest message already held; empty means newest page.
	ListMessages(ctx context.Context, conversationID, beforeCursor string, limit int) ([]domain.Message, error)

	// SendMessage persists a message and returns the server-confirmed
	// entity with its assigned id and timestamp.
	SendMessage(ctx context.Context, conversationID string, draft domain.Draft) (domain.Message, error)

	// MarkRead advances the viewer's read watermark.
	MarkRead(ctx context.Context, conversationID, uptoMessageID string) error

	// StartDirectConversation finds or creates the DM with peerID. The
	// backend enforces uniqueness on the unordered participant pair, so
	// repeated calls return the same conversation id.
	StartDirectConversation(ctx context.Context, peerID string) (string, error)
}
