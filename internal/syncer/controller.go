package syncer

import (
	"context"
	"sync"
	"time"

	"verdant-sync/internal/events"
	"verdant-sync/internal/gateway"
	"verdant-sync/internal/push"
	"verdant-sync/internal/store"
	verdant_errors "verdant-sync/pkg/errors"
	"verdant-sync/pkg/logger"
)

// State of the push subscription.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
)

// Controller owns the push subscription lifecycle: connect, watch
// liveness, feed normalized events into the store, and run one full
// reconciliation pass after every (re)connect so nothing missed while
// offline stays missing. It exists independently of any UI view, which
// keeps background unread counts correct with no conversation open.
type Controller struct {
	transport  push.Transport
	normalizer *events.Normalizer
	store      *store.Store
	gw         gateway.Gateway
	log        *logger.Logger

	recon          *reconnector
	livenessWindow time.Duration

	mu       sync.Mutex
	state    State
	watchdog *time.Timer
	cancelFn context.CancelFunc
	authErr  error

	// OnAuthError is invoked when the session is rejected; the controller
	// stops instead of retrying a dead token.
	OnAuthError func(error)
}

type Config struct {
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	LivenessWindow time.Duration
}

func NewController(transport push.Transport, normalizer *events.Normalizer, st *store.Store, gw gateway.Gateway, cfg Config, log *logger.Logger) *Controller {
	window := cfg.LivenessWindow
	if window <= 0 {
		window = 45 * time.Second
	}
	return &Controller{
		transport:      transport,
		normalizer:     normalizer,
		store:          st,
		gw:             gw,
		log:            log,
		recon:          newReconnector(cfg.BackoffBase, cfg.BackoffCap),
		livenessWindow: window,
		state:          StateDisconnected,
	}
}

// State returns the current connection state for UI indicators.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run blocks, maintaining the subscription until ctx is canceled or the
// session is rejected. Optimistic sends keep queuing through the store
// while Run is reconnecting; they flush via the reconciliation pass.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.setState(StateConnecting)
		connCtx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		c.cancelFn = cancel
		c.mu.Unlock()

		err := c.transport.Connect(connCtx, c.channels(), (*sink)(c))
		cancel()
		c.stopWatchdog()
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.mu.Lock()
		if c.authErr != nil {
			err = c.authErr
		}
		c.mu.Unlock()
		if verdant_errors.IsAuth(err) {
			c.log.Errorf("sync: session rejected: %v", err)
			if c.OnAuthError != nil {
				c.OnAuthError(err)
			}
			return err
		}

		delay := c.recon.nextDelay()
		c.log.Warnf("sync: connection dropped (%v), retrying in %s", err, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// channels lists the push channels the viewer cares about: its own user
// channel plus one per known conversation. New conversations picked up by
// a reconciliation pass are covered on the next (re)connect; meanwhile the
// user channel carries anything addressed to the viewer.
func (c *Controller) channels() []string {
	convs := c.store.Conversations()
	channels := make([]string, 0, len(convs)+1)
	channels = append(channels, events.ChannelPrefixUser+c.store.ViewerID())
	for _, conv := range convs {
		channels = append(channels, events.ChannelPrefixConversation+conv.ID)
	}
	return channels
}

// sink adapts the controller to the transport callback interface without
// exporting the methods on Controller itself.
type sink Controller

func (s *sink) Connected() {
	c := (*Controller)(s)
	c.setState(StateConnected)
	c.recon.markConnected()
	c.resetWatchdog()
	go c.reconcile(context.Background())
}

func (s *sink) Payload(raw []byte) {
	c := (*Controller)(s)
	c.resetWatchdog()
	ev, ok := c.normalizer.Normalize(raw)
	if !ok {
		return
	}
	c.store.ApplyEvent(ev)
}

// resetWatchdog arms the liveness timer. A subscription that stays silent
// past the window, heartbeats included, is treated as dropped.
func (c *Controller) resetWatchdog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	cancel := c.cancelFn
	c.watchdog = time.AfterFunc(c.livenessWindow, func() {
		c.log.Warnf("sync: no traffic for %s, dropping connection", c.livenessWindow)
		if cancel != nil {
			cancel()
		}
	})
}

func (c *Controller) stopWatchdog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

// reconcile closes the gap accumulated while disconnected: every listed
// conversation and its newest page are replayed as synthetic events
// through the exact merge path live push uses. Redelivery is harmless by
// the store's dedup rule, so overlap with concurrent push is fine.
func (c *Controller) reconcile(ctx context.Context) {
	convs, err := c.gw.ListConversations(ctx)
	if err != nil {
		c.reconcileFailed(err)
		return
	}

	for _, conv := range convs {
		c.store.ApplyEvent(events.ConversationUpsert{Conversation: conv})
	}

	for _, conv := range convs {
		msgs, err := c.gw.ListMessages(ctx, conv.ID, "", gateway.DefaultPageSize)
		if err != nil {
			if verdant_errors.IsNotFound(err) {
				c.store.RemoveConversation(conv.ID)
				continue
			}
			c.reconcileFailed(err)
			return
		}
		// Pages arrive newest first; apply oldest first.
		for i := len(msgs) - 1; i >= 0; i-- {
			c.store.ApplyEvent(events.MessageReceived{
				ConversationID: conv.ID,
				Message:        msgs[i],
			})
		}
	}
}

func (c *Controller) reconcileFailed(err error) {
	if verdant_errors.IsAuth(err) {
		// Run surfaces the auth failure once the connection tears down.
		c.mu.Lock()
		c.authErr = err
		cancel := c.cancelFn
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	c.log.Warnf("sync: reconciliation pass failed: %v", err)
}
