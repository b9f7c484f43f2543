package push

import (
	"context"
)

// Sink receives transport callbacks. Connected fires once per successful
// attempt, after the subscription handshake; Payload fires for every raw
// frame, heartbeats included.
type Sink interface {
	Connected()
	Payload(raw []byte)
}

// Transport is one attempt at a live push subscription. Connect blocks
// until the connection drops or ctx is canceled, and returns the reason.
// Reconnection policy lives in the sync controller, not here.
type Transport interface {
	Connect(ctx context.Context, channels []string, sink Sink) error
}
