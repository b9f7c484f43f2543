package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"verdant-sync/internal/auth"
	verdant_errors "verdant-sync/pkg/errors"
	"verdant-sync/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 45 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WebsocketTransport dials the backend's realtime endpoint and forwards
// every text frame. Pings keep the read deadline moving; a connection that
// stops answering is surfaced as a network error so the controller can
// back off and redial.
type WebsocketTransport struct {
	url     string
	session *auth.Session
	log     *logger.Logger
}

func NewWebsocketTransport(url string, session *auth.Session, log *logger.Logger) *WebsocketTransport {
	return &WebsocketTransport{url: url, session: session, log: log}
}

type subscribeCommand struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

func (t *WebsocketTransport) Connect(ctx context.Context, channels []string, sink Sink) error {
	token, err := t.session.Token()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, header)
	if err != nil {
		return verdant_errors.Network("push.ws.dial", err)
	}
	defer conn.Close()

	cmd := subscribeCommand{Type: "subscribe", Channels: channels}
	data, _ := json.Marshal(cmd)
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return verdant_errors.Network("push.ws.subscribe", err)
	}
	sink.Connected()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Writer side: periodic pings plus teardown on ctx cancel.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return verdant_errors.Network("push.ws.read", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		sink.Payload(payload)
	}
}
