package events

import (
	"reflect"
	"testing"
	"time"

	"verdant-sync/pkg/logger"
)

func TestNormalizeMessageCreated(t *testing.T) {
	n := NewNormalizer(logger.NewNop())
	raw := []byte(`{
		"event_type": "message.created",
		"aggregate_type": "message",
		"aggregate_id": "m1",
		"occurred_at": "2026-08-30T10:00:00Z",
		"payload": {
			"id": "m1",
			"conversation_id": "c1",
			"sender_id": "u2",
			"content": "hello",
			"media_urls": ["https://cdn.example/a.jpg"],
			"created_at": "2026-08-30T10:00:00Z"
		}
	}`)

	ev, ok := n.Normalize(raw)
	if !ok {
		t.Fatalf("expected event")
	}
	mr, ok := ev.(MessageReceived)
	if !ok {
		t.Fatalf("expected MessageReceived, got %T", ev)
	}
	if mr.ConversationID != "c1" || mr.Message.ID != "m1" || mr.Message.SenderID != "u2" {
		t.Fatalf("unexpected event: %+v", mr)
	}
	if len(mr.Message.MediaURLs) != 1 {
		t.Fatalf("media urls lost in normalization")
	}
}

func TestNormalizeReceiptRead(t *testing.T) {
	n := NewNormalizer(logger.NewNop())
	raw := []byte(`{
		"event_type": "receipt.read",
		"occurred_at": "2026-08-30T10:05:00Z",
		"payload": {"conversation_id": "c1", "user_id": "u1", "upto_message_id": "m3"}
	}`)

	ev, ok := n.Normalize(raw)
	if !ok {
		t.Fatalf("expected event")
	}
	rd := ev.(MessageRead)
	if rd.ReaderID != "u1" || rd.UptoMessageID != "m3" {
		t.Fatalf("unexpected event: %+v", rd)
	}
	// Missing read_at falls back to the envelope timestamp.
	want := time.Date(2026, 8, 30, 10, 5, 0, 0, time.UTC)
	if !rd.ReadAt.Equal(want) {
		t.Fatalf("read_at fallback wrong: %v", rd.ReadAt)
	}
}

func TestNormalizePresence(t *testing.T) {
	n := NewNormalizer(logger.NewNop())

	online, ok := n.Normalize([]byte(`{
		"event_type": "presence.online",
		"payload": {"user_id": "u2", "is_online": true, "last_seen": "2026-08-30T09:00:00Z"}
	}`))
	if !ok || !online.(PresenceChanged).Online {
		t.Fatalf("expected online presence, got %+v", online)
	}

	offline, ok := n.Normalize([]byte(`{
		"event_type": "presence.offline",
		"payload": {"user_id": "u2", "is_online": true, "last_seen": "2026-08-30T09:30:00Z"}
	}`))
	if !ok || offline.(PresenceChanged).Online {
		t.Fatalf("offline event must win over payload flag, got %+v", offline)
	}
}

func TestNormalizeConversationCreated(t *testing.T) {
	n := NewNormalizer(logger.NewNop())
	raw := []byte(`{
		"event_type": "conversation.created",
		"payload": {
			"id": "c9",
			"type": "DM",
			"participant_ids": ["u1", "u2"],
			"created_at": "2026-08-30T08:00:00Z"
		}
	}`)

	ev, ok := n.Normalize(raw)
	if !ok {
		t.Fatalf("expected event")
	}
	up := ev.(ConversationUpsert)
	if up.Conversation.ID != "c9" || len(up.Conversation.ParticipantIDs) != 2 {
		t.Fatalf("unexpected upsert: %+v", up)
	}
	if up.Conversation.LastActivityAt.IsZero() {
		t.Fatalf("last activity should fall back to created_at")
	}
}

func TestMalformedPayloadsAreDroppedNotFatal(t *testing.T) {
	n := NewNormalizer(logger.NewNop())
	cases := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"event_type": "message.created", "payload": "not-an-object"}`),
		[]byte(`{"event_type": "message.created", "payload": {"content": "missing ids"}}`),
		[]byte(`{"event_type": "some.future.event", "payload": {}}`),
		[]byte(`{"event_type": "system.heartbeat"}`),
		[]byte(`{}`),
	}
	for _, raw := range cases {
		if ev, ok := n.Normalize(raw); ok {
			t.Fatalf("payload %s produced event %+v", raw, ev)
		}
	}
}

func TestNormalizationIsDeterministic(t *testing.T) {
	n := NewNormalizer(logger.NewNop())
	raw := []byte(`{
		"event_type": "message.created",
		"payload": {"id": "m1", "conversation_id": "c1", "sender_id": "u2", "content": "x", "created_at": "2026-08-30T10:00:00Z"}
	}`)

	a, okA := n.Normalize(raw)
	b, okB := n.Normalize(raw)
	if !okA || !okB || !reflect.DeepEqual(a, b) {
		t.Fatalf("same payload produced different events: %+v vs %+v", a, b)
	}
}
