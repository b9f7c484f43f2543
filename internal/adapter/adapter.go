package adapter

import (
	"context"
	"time"

	"verdant-sync/internal/domain"
	"verdant-sync/internal/gateway"
	"verdant-sync/internal/store"
	verdant_errors "verdant-sync/pkg/errors"
	"verdant-sync/pkg/logger"
)

// Adapter is the surface the UI talks to: read-only projections over the
// store and command pass-through. No merge logic lives here; every
// mutation goes through the store's defined entry points.
type Adapter struct {
	store *store.Store
	gw    gateway.Gateway
	log   *logger.Logger
}

func New(st *store.Store, gw gateway.Gateway, log *logger.Logger) *Adapter {
	return &Adapter{store: st, gw: gw, log: log}
}

// Subscribe registers fn to run synchronously after every store change,
// so views re-render without polling.
func (a *Adapter) Subscribe(fn func()) {
	a.store.OnChange(fn)
}

// Conversations is the sorted conversation list view.
func (a *Adapter) Conversations() []domain.Conversation {
	return a.store.Conversations()
}

// Thread returns the chronological messages of one conversation.
func (a *Adapter) Thread(conversationID string) []domain.Message {
	return a.store.Messages(conversationID)
}

// UnreadBadge is the total unread count across conversations.
func (a *Adapter) UnreadBadge() int {
	return a.store.UnreadTotal()
}

// Presence returns the last known presence of a user.
func (a *Adapter) Presence(userID string) (domain.Presence, bool) {
	return a.store.Presence(userID)
}

// OpenConversation makes a conversation the active thread and pulls its
// first page if the local sequence is empty.
func (a *Adapter) OpenConversation(ctx context.Context, conversationID string) error {
	a.store.SetActiveConversation(conversationID)
	if len(a.store.Messages(conversationID)) > 0 {
		return nil
	}
	return a.LoadOlder(ctx, conversationID)
}

// CloseConversation clears the active thread. In-flight pagination for it
// becomes moot; late results are discarded at apply time.
func (a *Adapter) CloseConversation() {
	a.store.SetActiveConversation("")
}

// LoadOlder fetches the page before the oldest held message. A result
// arriving after the user navigated elsewhere is dropped, by checking the
// active conversation at apply time rather than racing a cancellation.
func (a *Adapter) LoadOlder(ctx context.Context, conversationID string) error {
	cursor := a.store.OldestMessageID(conversationID)
	page, err := a.gw.ListMessages(ctx, conversationID, cursor, gateway.DefaultPageSize)
	if err != nil {
		if verdant_errors.IsNotFound(err) {
			a.store.RemoveConversation(conversationID)
		}
		return err
	}
	if a.store.ActiveConversationID() != conversationID {
		a.log.Debugf("adapter: dropping stale history page for %s", conversationID)
		return nil
	}
	a.store.PrependHistory(conversationID, page)
	return nil
}

// Send issues a message optimistically and resolves it against the
// gateway outcome. The send is detached from ctx cancellation: once
// issued it completes or explicitly fails, regardless of UI navigation,
// because the recipient may receive it either way. On failure the entry
// stays in the thread flagged failed, for retry or discard.
func (a *Adapter) Send(ctx context.Context, conversationID string, draft domain.Draft) (int64, error) {
	if draft.Empty() {
		return 0, verdant_errors.Validation("adapter.send", verdant_errors.ErrEmptyMessage)
	}

	localSeq, _ := a.store.ApplyLocalSend(conversationID, draft)

	msg, err := a.gw.SendMessage(context.WithoutCancel(ctx), conversationID, draft)
	if err != nil {
		a.store.ReconcileSend(localSeq, domain.Message{}, err)
		return localSeq, err
	}
	a.store.ReconcileSend(localSeq, msg, nil)
	return localSeq, nil
}

// RetrySend re-submits a failed optimistic message.
func (a *Adapter) RetrySend(ctx context.Context, localSeq int64) error {
	conversationID, draft, ok := a.store.RetrySend(localSeq)
	if !ok {
		return verdant_errors.NotFound("adapter.retry_send", nil)
	}
	msg, err := a.gw.SendMessage(context.WithoutCancel(ctx), conversationID, draft)
	if err != nil {
		a.store.ReconcileSend(localSeq, domain.Message{}, err)
		return err
	}
	a.store.ReconcileSend(localSeq, msg, nil)
	return nil
}

// DiscardSend drops a failed optimistic message.
func (a *Adapter) DiscardSend(localSeq int64) error {
	if !a.store.DiscardSend(localSeq) {
		return verdant_errors.NotFound("adapter.discard_send", nil)
	}
	return nil
}

// MarkRead zeroes the conversation's unread count locally and pushes the
// watermark to the backend so the viewer's other sessions follow.
func (a *Adapter) MarkRead(ctx context.Context, conversationID string) error {
	upto := a.store.MarkConversationRead(conversationID)
	if upto == "" {
		return nil
	}
	if err := a.gw.MarkRead(ctx, conversationID, upto); err != nil {
		if verdant_errors.IsNotFound(err) {
			a.store.RemoveConversation(conversationID)
		}
		return err
	}
	return nil
}

// StartDirectChat finds or creates the DM with peerID and surfaces it
// immediately, messages or not, so the UI can open an empty thread.
func (a *Adapter) StartDirectChat(ctx context.Context, peerID string) (string, error) {
	conversationID, err := a.gw.StartDirectConversation(ctx, peerID)
	if err != nil {
		return "", err
	}
	a.store.UpsertStartedConversation(conversationID, peerID, time.Now())
	return conversationID, nil
}
