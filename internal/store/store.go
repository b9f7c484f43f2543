package store

import (
	"sort"
	"sync"
	"time"

	"verdant-sync/internal/domain"
	"verdant-sync/internal/events"
	"verdant-sync/pkg/logger"
)

// Store is the single mutable source of truth for the client's view of
// conversations, messages and unread counts. Push events, reconciliation
// batches and user commands all funnel through its mutation methods; every
// mutation runs under one lock, so processing order is serialized even
// though logical message order is decided by created-at insertion.
type Store struct {
	mu sync.Mutex

	viewerID string
	log      *logger.Logger

	conversations map[string]*domain.Conversation
	messages      map[string][]domain.Message
	serverIDs     map[string]map[string]struct{} // conversation id -> set of known server message ids
	watermarks    map[string]time.Time           // viewer's read watermark per conversation
	presence      map[string]domain.Presence

	activeConversationID string

	localSeq   int64
	localConv  map[int64]string // local seq -> owning conversation
	reconciled map[int64]struct{}

	listeners []func()
	dirty     bool
}

func New(viewerID string, log *logger.Logger) *Store {
	return &Store{
		viewerID:      viewerID,
		log:           log,
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]domain.Message),
		serverIDs:     make(map[string]map[string]struct{}),
		watermarks:    make(map[string]time.Time),
		presence:      make(map[string]domain.Presence),
		localConv:     make(map[int64]string),
		reconciled:    make(map[int64]struct{}),
	}
}

func (s *Store) ViewerID() string { return s.viewerID }

// OnChange registers a listener invoked synchronously after every mutation
// that changed state. Listeners run with the store unlocked, so they may
// read derived views; they must not call mutation methods.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// notify marks the running mutation as a visible change. Listeners fire
// from unlock, once the mutex is released.
func (s *Store) notify() {
	s.dirty = true
}

// unlock releases the mutex, then runs listeners if the mutation changed
// state. Mutation methods defer this in place of s.mu.Unlock so a
// listener reading Conversations or UnreadTotal cannot deadlock.
func (s *Store) unlock() {
	dirty := s.dirty
	s.dirty = false
	listeners := s.listeners
	s.mu.Unlock()
	if dirty {
		for _, fn := range listeners {
			fn()
		}
	}
}

// ApplyEvent merges one normalized event. It never fails: events the store
// cannot use are logged and ignored so the sync loop stays alive.
func (s *Store) ApplyEvent(ev events.Event) {
	s.mu.Lock()
	defer s.unlock()

	changed := false
	switch e := ev.(type) {
	case events.MessageReceived:
		changed = s.applyMessageReceived(e)
	case events.MessageRead:
		changed = s.applyMessageRead(e)
	case events.PresenceChanged:
		s.presence[e.UserID] = domain.Presence{
			UserID:     e.UserID,
			Online:     e.Online,
			LastSeenAt: e.LastSeenAt,
		}
		changed = true
	case events.ConversationUpsert:
		changed = s.upsertConversation(e.Conversation)
	default:
		if ev != nil {
			s.log.Warnf("store: ignoring unhandled event %q", ev.EventName())
		}
	}

	if changed {
		s.notify()
	}
}

func (s *Store) applyMessageReceived(e events.MessageReceived) bool {
	msg := e.Message
	if msg.ID == "" || e.ConversationID == "" {
		s.log.Warnf("store: ignoring message event without identifiers")
		return false
	}

	ids := s.serverIDs[e.ConversationID]
	if ids == nil {
		ids = make(map[string]struct{})
		s.serverIDs[e.ConversationID] = ids
	}
	if _, dup := ids[msg.ID]; dup {
		// Push streams redeliver; the server id is the dedup key.
		return false
	}
	ids[msg.ID] = struct{}{}

	s.ensureConversation(e.ConversationID, msg.SenderID)
	s.insertOrdered(e.ConversationID, msg)
	s.touchConversation(e.ConversationID, &msg)
	s.recomputeUnread(e.ConversationID)
	return true
}

// insertOrdered places msg at its created-at position, not at the tail:
// a late-arriving older message lands where it belongs.
func (s *Store) insertOrdered(conversationID string, msg domain.Message) {
	seq := s.messages[conversationID]
	i := sort.Search(len(seq), func(i int) bool {
		return msg.Before(&seq[i])
	})
	seq = append(seq, domain.Message{})
	copy(seq[i+1:], seq[i:])
	seq[i] = msg
	s.messages[conversationID] = seq
}

func (s *Store) applyMessageRead(e events.MessageRead) bool {
	seq, ok := s.messages[e.ConversationID]
	if !ok {
		return false
	}

	// Resolve the watermark to the target message's timestamp when we hold
	// it; fall back to the event's read time otherwise.
	upto := e.ReadAt
	for i := range seq {
		if seq[i].ID == e.UptoMessageID {
			upto = seq[i].CreatedAt
			break
		}
	}

	if e.ReaderID == s.viewerID {
		// The viewer's other session read the thread; our badge follows.
		if upto.After(s.watermarks[e.ConversationID]) {
			s.watermarks[e.ConversationID] = upto
			s.recomputeUnread(e.ConversationID)
			return true
		}
		return false
	}

	// A peer read our messages: record ReadAt on what we sent, nothing
	// about our own unread count changes.
	changed := false
	for i := range seq {
		if seq[i].SenderID != s.viewerID || seq[i].ReadAt != nil {
			continue
		}
		if seq[i].CreatedAt.After(upto) {
			break
		}
		at := upto
		seq[i].ReadAt = &at
		changed = true
	}
	return changed
}

func (s *Store) upsertConversation(conv domain.Conversation) bool {
	existing, ok := s.conversations[conv.ID]
	if !ok {
		c := conv
		s.conversations[conv.ID] = &c
		return true
	}

	// Server fields win; locally derived state survives the merge.
	existing.Type = conv.Type
	if len(conv.ParticipantIDs) > 0 {
		existing.ParticipantIDs = conv.ParticipantIDs
	}
	if conv.Subject != nil {
		existing.Subject = conv.Subject
	}
	if conv.AvatarURL != nil {
		existing.AvatarURL = conv.AvatarURL
	}
	if conv.LastActivityAt.After(existing.LastActivityAt) {
		existing.LastActivityAt = conv.LastActivityAt
	}
	return true
}

func (s *Store) ensureConversation(conversationID, senderID string) {
	if _, ok := s.conversations[conversationID]; ok {
		return
	}
	// A message can arrive for a conversation we have not listed yet, e.g.
	// a peer opened a new DM. Hold a stub until the upsert fills it in.
	participants := []string{s.viewerID}
	if senderID != "" && senderID != s.viewerID {
		participants = append(participants, senderID)
	}
	s.conversations[conversationID] = &domain.Conversation{
		ID:             conversationID,
		Type:           domain.ConversationTypeDM,
		ParticipantIDs: participants,
	}
}

func (s *Store) touchConversation(conversationID string, msg *domain.Message) {
	conv := s.conversations[conversationID]
	if msg.CreatedAt.After(conv.LastActivityAt) {
		conv.LastActivityAt = msg.CreatedAt
	}
	if conv.LastMessage == nil || !msg.CreatedAt.Before(conv.LastMessage.SentAt) {
		conv.LastMessage = &domain.MessageSummary{
			MessageID: msg.ID,
			SenderID:  msg.SenderID,
			Preview:   msg.Preview(),
			SentAt:    msg.CreatedAt,
		}
	}
}

// recomputeUnread recounts peer messages past the viewer's watermark.
// Counting beats incremental bookkeeping here: reordered delivery and
// watermark moves would otherwise need compensating adjustments.
func (s *Store) recomputeUnread(conversationID string) {
	conv, ok := s.conversations[conversationID]
	if !ok {
		return
	}
	watermark := s.watermarks[conversationID]
	count := 0
	for i := range s.messages[conversationID] {
		m := &s.messages[conversationID][i]
		if m.SenderID == s.viewerID || m.State != domain.StateConfirmed {
			continue
		}
		// Server-supplied read state counts: a page fetched after restart
		// already knows what this viewer has read.
		if m.ReadAt != nil {
			continue
		}
		if m.CreatedAt.After(watermark) {
			count++
		}
	}
	conv.UnreadCount = count
}

// ApplyLocalSend records an optimistic message for a send command and
// returns its local sequence number. The entry stays visible until it is
// reconciled or discarded; it never silently vanishes.
func (s *Store) ApplyLocalSend(conversationID string, draft domain.Draft) (int64, domain.Message) {
	s.mu.Lock()
	defer s.unlock()

	s.localSeq++
	seq := s.localSeq
	msg := domain.Message{
		ConversationID: conversationID,
		SenderID:       s.viewerID,
		Content:        draft.Content,
		MediaURLs:      draft.MediaURLs,
		CreatedAt:      time.Now(),
		LocalSeq:       seq,
		State:          domain.StatePending,
	}

	s.ensureConversation(conversationID, s.viewerID)
	s.insertOrdered(conversationID, msg)
	s.localConv[seq] = conversationID

	s.notify()
	return seq, msg
}

// ReconcileSend resolves an optimistic entry with the gateway outcome.
// On success the pending entry is replaced in place by the confirmed
// message; if the push channel already delivered the same server id, the
// pending entry is dropped and the response is a no-op. On failure the
// entry is kept and flagged failed so the user can retry or discard.
func (s *Store) ReconcileSend(localSeq int64, confirmed domain.Message, sendErr error) {
	s.mu.Lock()
	defer s.unlock()

	if _, done := s.reconciled[localSeq]; done {
		return
	}

	conversationID, ok := s.localConv[localSeq]
	if !ok {
		return
	}

	if sendErr != nil {
		if i := s.findLocal(conversationID, localSeq); i >= 0 {
			seq := s.messages[conversationID]
			seq[i].State = domain.StateFailed
			s.notify()
		}
		return
	}

	s.reconciled[localSeq] = struct{}{}
	delete(s.localConv, localSeq)

	i := s.findLocal(conversationID, localSeq)

	ids := s.serverIDs[conversationID]
	if ids == nil {
		ids = make(map[string]struct{})
		s.serverIDs[conversationID] = ids
	}
	if _, present := ids[confirmed.ID]; present {
		// Own echo already arrived over push and won the race.
		if i >= 0 {
			s.removeAt(conversationID, i)
			s.notify()
		}
		return
	}
	ids[confirmed.ID] = struct{}{}

	confirmed.State = domain.StateConfirmed
	confirmed.LocalSeq = 0
	if i >= 0 {
		// Swap the optimistic entry for the server entity in place. The
		// slot only moves if the server timestamp says it must.
		s.messages[conversationID][i] = confirmed
		s.resortAt(conversationID, i)
	} else {
		s.insertOrdered(conversationID, confirmed)
	}

	s.touchConversation(conversationID, &confirmed)
	s.recomputeUnread(conversationID)
	s.notify()
}

// RetrySend flips a failed entry back to pending and hands the caller its
// draft for re-submission. Returns false if localSeq is not a failed send.
func (s *Store) RetrySend(localSeq int64) (string, domain.Draft, bool) {
	s.mu.Lock()
	defer s.unlock()

	conversationID, ok := s.localConv[localSeq]
	if !ok {
		return "", domain.Draft{}, false
	}
	i := s.findLocal(conversationID, localSeq)
	if i < 0 {
		return "", domain.Draft{}, false
	}
	seq := s.messages[conversationID]
	if seq[i].State != domain.StateFailed {
		return "", domain.Draft{}, false
	}
	seq[i].State = domain.StatePending
	draft := domain.Draft{Content: seq[i].Content, MediaURLs: seq[i].MediaURLs}
	s.notify()
	return conversationID, draft, true
}

// DiscardSend removes a failed optimistic entry.
func (s *Store) DiscardSend(localSeq int64) bool {
	s.mu.Lock()
	defer s.unlock()

	conversationID, ok := s.localConv[localSeq]
	if !ok {
		return false
	}
	i := s.findLocal(conversationID, localSeq)
	if i < 0 || s.messages[conversationID][i].State != domain.StateFailed {
		return false
	}
	s.removeAt(conversationID, i)
	delete(s.localConv, localSeq)
	s.notify()
	return true
}

// MarkConversationRead advances the viewer's watermark to the newest
// message and zeroes the conversation's unread count. Other conversations
// are untouched.
func (s *Store) MarkConversationRead(conversationID string) (uptoMessageID string) {
	s.mu.Lock()
	defer s.unlock()

	seq := s.messages[conversationID]
	for i := len(seq) - 1; i >= 0; i-- {
		if seq[i].State != domain.StateConfirmed {
			continue
		}
		if seq[i].CreatedAt.After(s.watermarks[conversationID]) {
			s.watermarks[conversationID] = seq[i].CreatedAt
		}
		uptoMessageID = seq[i].ID
		break
	}
	s.recomputeUnread(conversationID)
	s.notify()
	return uptoMessageID
}

// PrependHistory merges an older page fetched via pagination. It shares
// the ordered-insert and dedup path with live events, so redelivered
// history is harmless.
func (s *Store) PrependHistory(conversationID string, page []domain.Message) {
	s.mu.Lock()
	defer s.unlock()

	ids := s.serverIDs[conversationID]
	if ids == nil {
		ids = make(map[string]struct{})
		s.serverIDs[conversationID] = ids
	}

	changed := false
	for _, msg := range page {
		if msg.ID == "" {
			continue
		}
		if _, dup := ids[msg.ID]; dup {
			continue
		}
		ids[msg.ID] = struct{}{}
		s.ensureConversation(conversationID, msg.SenderID)
		s.insertOrdered(conversationID, msg)
		changed = true
	}
	if changed {
		s.recomputeUnread(conversationID)
		s.notify()
	}
}

// UpsertStartedConversation surfaces a DM the viewer just started, even
// before a first message exists, so the empty thread shows in the list.
// Re-opening an existing DM just bumps it to the top.
func (s *Store) UpsertStartedConversation(conversationID, peerID string, at time.Time) {
	s.mu.Lock()
	defer s.unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		s.conversations[conversationID] = &domain.Conversation{
			ID:             conversationID,
			Type:           domain.ConversationTypeDM,
			ParticipantIDs: []string{s.viewerID, peerID},
			CreatedAt:      at,
			LastActivityAt: at,
		}
		s.notify()
		return
	}
	if at.After(conv.LastActivityAt) {
		conv.LastActivityAt = at
		s.notify()
	}
}

// RemoveConversation evicts a conversation the backend no longer knows.
func (s *Store) RemoveConversation(conversationID string) {
	s.mu.Lock()
	defer s.unlock()

	delete(s.conversations, conversationID)
	delete(s.messages, conversationID)
	delete(s.serverIDs, conversationID)
	delete(s.watermarks, conversationID)
	for seq, conv := range s.localConv {
		if conv == conversationID {
			delete(s.localConv, seq)
		}
	}
	if s.activeConversationID == conversationID {
		s.activeConversationID = ""
	}
	s.notify()
}

func (s *Store) SetActiveConversation(conversationID string) {
	s.mu.Lock()
	s.activeConversationID = conversationID
	s.mu.Unlock()
}

func (s *Store) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeConversationID
}

// Conversations returns the conversation list sorted by last activity,
// most recent first. The slice and its entries are copies.
func (s *Store) Conversations() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Messages returns the chronological message sequence for a conversation.
func (s *Store) Messages(conversationID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.messages[conversationID]
	out := make([]domain.Message, len(seq))
	copy(out, seq)
	return out
}

// UnreadTotal is the badge count across all conversations.
func (s *Store) UnreadTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, conv := range s.conversations {
		total += conv.UnreadCount
	}
	return total
}

// Presence returns the last known presence for userID.
func (s *Store) Presence(userID string) (domain.Presence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presence[userID]
	return p, ok
}

// OldestMessageID returns the pagination cursor for a conversation.
func (s *Store) OldestMessageID(conversationID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[conversationID] {
		if m.State == domain.StateConfirmed {
			return m.ID
		}
	}
	return ""
}

func (s *Store) findLocal(conversationID string, localSeq int64) int {
	for i := range s.messages[conversationID] {
		if s.messages[conversationID][i].LocalSeq == localSeq {
			return i
		}
	}
	return -1
}

func (s *Store) removeAt(conversationID string, i int) {
	seq := s.messages[conversationID]
	s.messages[conversationID] = append(seq[:i], seq[i+1:]...)
}

// resortAt restores order after an in-place replacement whose server
// timestamp disagrees with the optimistic slot.
func (s *Store) resortAt(conversationID string, i int) {
	seq := s.messages[conversationID]
	for i > 0 && seq[i].Before(&seq[i-1]) {
		seq[i], seq[i-1] = seq[i-1], seq[i]
		i--
	}
	for i < len(seq)-1 && seq[i+1].Before(&seq[i]) {
		seq[i], seq[i+1] = seq[i+1], seq[i]
		i++
	}
}
