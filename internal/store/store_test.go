package store

import (
	"errors"
	"testing"
	"time"

	"verdant-sync/internal/domain"
	"verdant-sync/internal/events"
	verdant_errors "verdant-sync/pkg/errors"
	"verdant-sync/pkg/logger"
)

const (
	viewerID = "viewer-1"
	peerID   = "peer-1"
	convID   = "conv-1"
)

func newTestStore() *Store {
	return New(viewerID, logger.NewNop())
}

func serverMsg(id, sender string, at int64, content string) domain.Message {
	return domain.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       sender,
		Content:        content,
		CreatedAt:      time.Unix(at, 0),
		State:          domain.StateConfirmed,
	}
}

func received(m domain.Message) events.MessageReceived {
	return events.MessageReceived{ConversationID: m.ConversationID, Message: m}
}

func messageIDs(t *testing.T, s *Store, conversationID string) []string {
	t.Helper()
	msgs := s.Messages(conversationID)
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	s := newTestStore()
	m := serverMsg("m1", peerID, 10, "hi")

	s.ApplyEvent(received(m))
	s.ApplyEvent(received(m))
	s.ApplyEvent(received(m))

	if got := len(s.Messages(convID)); got != 1 {
		t.Fatalf("expected 1 message after redelivery, got %d", got)
	}
	if s.Conversations()[0].UnreadCount != 1 {
		t.Fatalf("expected unread 1, got %d", s.Conversations()[0].UnreadCount)
	}
}

func TestReorderedDeliveryLandsInCreatedAtOrder(t *testing.T) {
	s := newTestStore()
	m1 := serverMsg("m1", peerID, 10, "first")
	m2 := serverMsg("m2", peerID, 20, "second")

	s.ApplyEvent(received(m2))
	s.ApplyEvent(received(m1))

	ids := messageIDs(t, s, convID)
	if len(ids) != 2 || ids[0] != "m1" || ids[1] != "m2" {
		t.Fatalf("expected [m1 m2], got %v", ids)
	}
}

func TestTimestampTieBrokenByID(t *testing.T) {
	s := newTestStore()
	mb := serverMsg("b", peerID, 10, "")
	ma := serverMsg("a", peerID, 10, "")

	s.ApplyEvent(received(mb))
	s.ApplyEvent(received(ma))

	ids := messageIDs(t, s, convID)
	if ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("expected [a b], got %v", ids)
	}
}

func TestOptimisticReconciliationReplacesInPlace(t *testing.T) {
	s := newTestStore()
	s.ApplyEvent(received(serverMsg("m1", peerID, 10, "hello")))

	localSeq, _ := s.ApplyLocalSend(convID, domain.Draft{Content: "reply"})

	msgs := s.Messages(convID)
	if len(msgs) != 2 || msgs[1].State != domain.StatePending {
		t.Fatalf("expected pending optimistic entry at tail, got %+v", msgs)
	}

	confirmed := serverMsg("m2", viewerID, time.Now().Unix(), "reply")
	s.ReconcileSend(localSeq, confirmed, nil)

	msgs = s.Messages(convID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after reconcile, got %d", len(msgs))
	}
	if msgs[1].ID != "m2" || msgs[1].State != domain.StateConfirmed || msgs[1].LocalSeq != 0 {
		t.Fatalf("expected confirmed m2 in the optimistic slot, got %+v", msgs[1])
	}
}

func TestOwnEchoPushBeatsGatewayResponse(t *testing.T) {
	s := newTestStore()
	localSeq, _ := s.ApplyLocalSend(convID, domain.Draft{Content: "hello"})

	echo := serverMsg("m9", viewerID, time.Now().Unix(), "hello")
	s.ApplyEvent(received(echo))

	// The gateway response loses the race and must be a no-op.
	s.ReconcileSend(localSeq, echo, nil)
	s.ReconcileSend(localSeq, echo, nil)

	msgs := s.Messages(convID)
	if len(msgs) != 1 || msgs[0].ID != "m9" {
		t.Fatalf("expected exactly one m9, got %v", messageIDs(t, s, convID))
	}
}

func TestTwoIdenticalTextsStayTwoMessages(t *testing.T) {
	s := newTestStore()
	seqA, _ := s.ApplyLocalSend(convID, domain.Draft{Content: "same"})
	seqB, _ := s.ApplyLocalSend(convID, domain.Draft{Content: "same"})

	s.ReconcileSend(seqA, serverMsg("ma", viewerID, 100, "same"), nil)
	s.ReconcileSend(seqB, serverMsg("mb", viewerID, 101, "same"), nil)

	if got := len(s.Messages(convID)); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}
}

func TestFailedSendStaysVisibleAndCountsUntouched(t *testing.T) {
	s := newTestStore()
	s.ApplyEvent(received(serverMsg("m1", peerID, 10, "hi")))
	before := s.Conversations()[0]

	localSeq, _ := s.ApplyLocalSend(convID, domain.Draft{Content: "hello"})
	s.ReconcileSend(localSeq, domain.Message{}, verdant_errors.Network("test", errors.New("boom")))

	msgs := s.Messages(convID)
	if len(msgs) != 2 {
		t.Fatalf("expected failed entry kept, got %d messages", len(msgs))
	}
	if msgs[1].State != domain.StateFailed {
		t.Fatalf("expected FAILED state, got %s", msgs[1].State)
	}

	after := s.Conversations()[0]
	if after.UnreadCount != before.UnreadCount {
		t.Fatalf("unread changed on failed send: %d -> %d", before.UnreadCount, after.UnreadCount)
	}
	if !after.LastActivityAt.Equal(before.LastActivityAt) {
		t.Fatalf("last activity changed on failed send")
	}
}

func TestRetryAfterFailure(t *testing.T) {
	s := newTestStore()
	localSeq, _ := s.ApplyLocalSend(convID, domain.Draft{Content: "hello"})
	s.ReconcileSend(localSeq, domain.Message{}, verdant_errors.Network("test", errors.New("boom")))

	gotConv, draft, ok := s.RetrySend(localSeq)
	if !ok || gotConv != convID || draft.Content != "hello" {
		t.Fatalf("retry returned (%q, %+v, %v)", gotConv, draft, ok)
	}
	if s.Messages(convID)[0].State != domain.StatePending {
		t.Fatalf("expected entry back to PENDING")
	}

	s.ReconcileSend(localSeq, serverMsg("m5", viewerID, 50, "hello"), nil)
	msgs := s.Messages(convID)
	if len(msgs) != 1 || msgs[0].ID != "m5" {
		t.Fatalf("expected confirmed m5 after retry, got %v", messageIDs(t, s, convID))
	}
}

func TestDiscardFailedSend(t *testing.T) {
	s := newTestStore()
	localSeq, _ := s.ApplyLocalSend(convID, domain.Draft{Content: "hello"})

	if s.DiscardSend(localSeq) {
		t.Fatalf("pending sends must not be discardable")
	}
	s.ReconcileSend(localSeq, domain.Message{}, verdant_errors.Network("test", errors.New("boom")))
	if !s.DiscardSend(localSeq) {
		t.Fatalf("failed send should be discardable")
	}
	if got := len(s.Messages(convID)); got != 0 {
		t.Fatalf("expected empty thread, got %d messages", got)
	}
}

func TestUnreadAccountingAndMarkRead(t *testing.T) {
	s := newTestStore()
	other := "conv-2"

	s.ApplyEvent(received(serverMsg("m1", peerID, 10, "a")))
	s.ApplyEvent(received(serverMsg("m2", peerID, 20, "b")))
	s.ApplyEvent(events.MessageReceived{ConversationID: other, Message: domain.Message{
		ID: "x1", ConversationID: other, SenderID: peerID,
		CreatedAt: time.Unix(30, 0), State: domain.StateConfirmed,
	}})

	if total := s.UnreadTotal(); total != 3 {
		t.Fatalf("expected badge 3, got %d", total)
	}

	upto := s.MarkConversationRead(convID)
	if upto != "m2" {
		t.Fatalf("expected watermark message m2, got %q", upto)
	}

	for _, conv := range s.Conversations() {
		switch conv.ID {
		case convID:
			if conv.UnreadCount != 0 {
				t.Fatalf("expected conv-1 unread 0, got %d", conv.UnreadCount)
			}
		case other:
			if conv.UnreadCount != 1 {
				t.Fatalf("mark-read leaked into conv-2: unread %d", conv.UnreadCount)
			}
		}
	}
}

// Scenario from the sync contract: [A(t=1), B(t=3) unread], mark read,
// then D(t=5) arrives.
func TestMarkReadThenNewMessageScenario(t *testing.T) {
	s := newTestStore()
	s.ApplyEvent(received(serverMsg("A", viewerID, 1, "hi")))
	s.ApplyEvent(received(serverMsg("B", peerID, 3, "hey")))

	if s.Conversations()[0].UnreadCount != 1 {
		t.Fatalf("expected unread 1 before mark-read")
	}

	s.MarkConversationRead(convID)
	if s.Conversations()[0].UnreadCount != 0 {
		t.Fatalf("expected unread 0 after mark-read")
	}

	s.ApplyEvent(received(serverMsg("D", peerID, 5, "yo")))

	ids := messageIDs(t, s, convID)
	if len(ids) != 3 || ids[0] != "A" || ids[1] != "B" || ids[2] != "D" {
		t.Fatalf("expected [A B D], got %v", ids)
	}
	if s.Conversations()[0].UnreadCount != 1 {
		t.Fatalf("expected unread 1 after D, got %d", s.Conversations()[0].UnreadCount)
	}
}

func TestOwnSessionReadEventAdvancesWatermark(t *testing.T) {
	s := newTestStore()
	s.ApplyEvent(received(serverMsg("m1", peerID, 10, "a")))
	s.ApplyEvent(received(serverMsg("m2", peerID, 20, "b")))

	// Another session of the viewer read up to m2.
	s.ApplyEvent(events.MessageRead{
		ConversationID: convID,
		ReaderID:       viewerID,
		UptoMessageID:  "m2",
		ReadAt:         time.Unix(25, 0),
	})

	if got := s.Conversations()[0].UnreadCount; got != 0 {
		t.Fatalf("expected unread 0 after own-session read, got %d", got)
	}
}

func TestPeerReadEventDoesNotTouchViewerUnread(t *testing.T) {
	s := newTestStore()
	s.ApplyEvent(received(serverMsg("m1", peerID, 10, "a")))
	s.ApplyEvent(received(serverMsg("m2", viewerID, 20, "b")))

	s.ApplyEvent(events.MessageRead{
		ConversationID: convID,
		ReaderID:       peerID,
		UptoMessageID:  "m2",
		ReadAt:         time.Unix(25, 0),
	})

	if got := s.Conversations()[0].UnreadCount; got != 1 {
		t.Fatalf("peer read changed viewer unread: got %d, want 1", got)
	}
	// The viewer's sent message picks up its seen timestamp.
	msgs := s.Messages(convID)
	if msgs[1].ReadAt == nil {
		t.Fatalf("expected ReadAt set on viewer's message after peer read")
	}
}

func TestConversationSurfacingOrder(t *testing.T) {
	s := newTestStore()
	s.ApplyEvent(events.MessageReceived{ConversationID: "conv-a", Message: domain.Message{
		ID: "a1", ConversationID: "conv-a", SenderID: peerID,
		CreatedAt: time.Unix(10, 0), State: domain.StateConfirmed,
	}})
	s.ApplyEvent(events.MessageReceived{ConversationID: "conv-b", Message: domain.Message{
		ID: "b1", ConversationID: "conv-b", SenderID: peerID,
		CreatedAt: time.Unix(20, 0), State: domain.StateConfirmed,
	}})

	convs := s.Conversations()
	if convs[0].ID != "conv-b" {
		t.Fatalf("expected conv-b first, got %s", convs[0].ID)
	}

	s.ApplyEvent(events.MessageReceived{ConversationID: "conv-a", Message: domain.Message{
		ID: "a2", ConversationID: "conv-a", SenderID: peerID,
		CreatedAt: time.Unix(30, 0), State: domain.StateConfirmed,
	}})
	if s.Conversations()[0].ID != "conv-a" {
		t.Fatalf("expected conv-a bumped to top")
	}
}

func TestStartedConversationSurfacesWithoutMessages(t *testing.T) {
	s := newTestStore()
	s.ApplyEvent(received(serverMsg("m1", peerID, 10, "old")))

	s.UpsertStartedConversation("conv-new", "peer-2", time.Unix(100, 0))

	convs := s.Conversations()
	if convs[0].ID != "conv-new" {
		t.Fatalf("expected fresh empty DM on top, got %s", convs[0].ID)
	}
	if convs[0].UnreadCount != 0 || convs[0].LastMessage != nil {
		t.Fatalf("expected empty-state conversation, got %+v", convs[0])
	}
}

func TestPrependHistoryDedupsAndKeepsActivity(t *testing.T) {
	s := newTestStore()
	s.ApplyEvent(received(serverMsg("m3", peerID, 30, "new")))
	activity := s.Conversations()[0].LastActivityAt

	s.PrependHistory(convID, []domain.Message{
		serverMsg("m2", peerID, 20, "older"),
		serverMsg("m1", peerID, 10, "oldest"),
		serverMsg("m3", peerID, 30, "new"), // overlap with live page
	})

	ids := messageIDs(t, s, convID)
	if len(ids) != 3 || ids[0] != "m1" || ids[1] != "m2" || ids[2] != "m3" {
		t.Fatalf("expected [m1 m2 m3], got %v", ids)
	}
	if !s.Conversations()[0].LastActivityAt.Equal(activity) {
		t.Fatalf("history prefix must not change last activity")
	}
}

func TestRemoveConversation(t *testing.T) {
	s := newTestStore()
	s.ApplyEvent(received(serverMsg("m1", peerID, 10, "hi")))
	s.SetActiveConversation(convID)

	s.RemoveConversation(convID)

	if len(s.Conversations()) != 0 || len(s.Messages(convID)) != 0 {
		t.Fatalf("expected conversation evicted")
	}
	if s.ActiveConversationID() != "" {
		t.Fatalf("expected active conversation cleared")
	}
}

func TestMalformedEventIsIgnored(t *testing.T) {
	s := newTestStore()
	// No identifiers at all; ApplyEvent must swallow it.
	s.ApplyEvent(events.MessageReceived{})
	s.ApplyEvent(nil)

	if len(s.Conversations()) != 0 {
		t.Fatalf("malformed event created state")
	}
}

func TestChangeListenerFires(t *testing.T) {
	s := newTestStore()
	calls := 0
	s.OnChange(func() { calls++ })

	s.ApplyEvent(received(serverMsg("m1", peerID, 10, "hi")))
	if calls != 1 {
		t.Fatalf("expected 1 notification, got %d", calls)
	}

	// Redelivery changes nothing and must not notify.
	s.ApplyEvent(received(serverMsg("m1", peerID, 10, "hi")))
	if calls != 1 {
		t.Fatalf("expected no notification on no-op, got %d", calls)
	}
}

// Listeners exist to re-render views, so they read the derived views from
// inside the callback.
func TestChangeListenerCanReadDerivedViews(t *testing.T) {
	s := newTestStore()
	var badge int
	var convs int
	s.OnChange(func() {
		badge = s.UnreadTotal()
		convs = len(s.Conversations())
	})

	done := make(chan struct{})
	go func() {
		s.ApplyEvent(received(serverMsg("m1", peerID, 10, "hi")))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("listener reading derived views blocked the mutation")
	}

	if badge != 1 || convs != 1 {
		t.Fatalf("listener observed badge=%d convs=%d, want 1 and 1", badge, convs)
	}
}
