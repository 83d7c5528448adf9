// Package realtime maintains the single live socket connection to the
// push-event backend. The connection is bound to one subscription key (the
// active restaurant room); changing the key tears the connection down and
// opens a new one, and every delivered event is merged into the order cache
// and surfaced as a notification before any caller-supplied handler runs.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/restomate/restokit/domain"
	"github.com/restomate/restokit/notify"
	"github.com/restomate/restokit/ordercache"
	"github.com/restomate/restokit/session"
)

// State is the lifecycle state of the channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateTornDown is terminal: entered on Close or when the
	// subscription key is changed to empty (logout).
	StateTornDown
)

// Handler receives typed channel events. All methods are called from the
// channel's reader goroutine; implementations must not block.
type Handler interface {
	OnConnected(room string)
	OnDisconnected(room string, err error)
	OnOrderCreated(order domain.Order)
	OnOrderUpdated(order domain.Order)
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultToastTTL         = 6 * time.Second
)

// statusToasts maps order statuses to the update toast shown when an
// orderUpdate event arrives.
var statusToasts = map[domain.OrderStatus]string{
	domain.OrderStatusConfirmed: "Order confirmed.",
	domain.OrderStatusPreparing: "Order is being prepared.",
	domain.OrderStatusReady:     "Order is ready.",
	domain.OrderStatusDelivered: "Order delivered.",
	domain.OrderStatusCancelled: "Order was cancelled.",
}

// Channel owns the websocket connection. At most one physical connection
// exists at any time, always bound to the most recently requested room.
type Channel struct {
	url     string
	store   session.Store
	cache   *ordercache.Store
	toasts  *notify.Queue
	handler Handler
	dialer  *websocket.Dialer

	mu    sync.Mutex
	state State
	room  string
	conn  *websocket.Conn
	// gen invalidates reader goroutines of torn-down connections: a
	// reader only mutates channel state while its generation is current.
	gen uint64
}

// Option configures a Channel.
type Option func(*Channel)

// WithHandler registers the typed event handler.
func WithHandler(h Handler) Option {
	return func(c *Channel) { c.handler = h }
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// NewChannel creates a disconnected channel. url is the websocket endpoint
// of the push backend.
func NewChannel(url string, store session.Store, cache *ordercache.Store, toasts *notify.Queue, opts ...Option) *Channel {
	c := &Channel{
		url:    url,
		store:  store,
		cache:  cache,
		toasts: toasts,
		dialer: &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		state:  StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Room returns the currently bound subscription key.
func (c *Channel) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.room
}

// JoinRoom binds the channel to a subscription key. If a connection is
// already open it is torn down first, so exactly one connection and one
// join message exist per key change. An empty room tears the channel down
// for good.
func (c *Channel) JoinRoom(ctx context.Context, room string) error {
	if room == "" {
		c.Close()
		return nil
	}

	cred, err := c.store.Current(ctx)
	if err != nil {
		return fmt.Errorf("reading credential: %w", err)
	}
	if cred == nil || cred.AccessToken == "" {
		return fmt.Errorf("cannot join room %q: no credential stored", room)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateTornDown {
		return fmt.Errorf("channel is torn down")
	}
	if c.state == StateConnected && c.room == room {
		return nil
	}

	c.teardownLocked()
	c.state = StateConnecting
	c.room = room

	// The handshake carries the current access token so the backend can
	// scope this connection before the join message arrives.
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.AccessToken)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck
	}
	if err != nil {
		c.state = StateDisconnected
		return fmt.Errorf("dialing realtime backend: %w", err)
	}

	join, err := joinMessage(room)
	if err != nil {
		conn.Close() //nolint:errcheck
		c.state = StateDisconnected
		return fmt.Errorf("encoding join message: %w", err)
	}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close() //nolint:errcheck
		c.state = StateDisconnected
		return fmt.Errorf("sending join message: %w", err)
	}

	c.conn = conn
	c.state = StateConnected
	c.gen++

	log.Ctx(ctx).Info().Str("room", room).Msg("realtime channel connected")

	if c.handler != nil {
		c.handler.OnConnected(room)
	}

	go c.readLoop(c.gen, conn, room)

	return nil
}

// Close tears the channel down permanently.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.state = StateTornDown
	c.room = ""
}

// teardownLocked closes any open connection and invalidates its reader.
// Callers must hold c.mu.
func (c *Channel) teardownLocked() {
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck
		c.conn = nil
	}
	// Bump the generation so a reader blocked on the closed connection
	// cannot flip state or double-notify once it wakes up.
	c.gen++
}

// readLoop consumes frames until the connection dies. It belongs to one
// physical connection; the generation check makes it a silent no-op once
// that connection has been replaced.
func (c *Channel) readLoop(gen uint64, conn *websocket.Conn, room string) {
	ctx := context.Background()

	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			stale := c.gen != gen
			if !stale {
				c.conn = nil
				c.state = StateDisconnected
			}
			c.mu.Unlock()

			if stale {
				return
			}

			log.Ctx(ctx).Warn().Err(err).Str("room", room).Msg("realtime connection lost")

			if c.handler != nil {
				c.handler.OnDisconnected(room, err)
			}
			return
		}

		c.dispatch(ctx, room, &msg)
	}
}

func (c *Channel) dispatch(ctx context.Context, room string, msg *wireMessage) {
	switch msg.Event {
	case eventNewOrder:
		var order domain.Order
		if err := json.Unmarshal(msg.Data, &order); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("malformed newOrder event")
			return
		}
		c.handleCreated(ctx, room, order)

	case eventOrderUpdate:
		var order domain.Order
		if err := json.Unmarshal(msg.Data, &order); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("malformed orderUpdate event")
			return
		}
		c.handleUpdated(ctx, room, order)

	default:
		log.Ctx(ctx).Debug().Str("event", msg.Event).Msg("ignoring unknown realtime event")
	}
}

// handleCreated merges the snapshot and raises the new-order notification
// before the caller-supplied handler sees the event.
func (c *Channel) handleCreated(ctx context.Context, room string, order domain.Order) {
	c.cache.Merge(ctx, ordercache.Key{Room: room}, domain.OrderEvent{Order: order, Kind: domain.EventCreated})

	if c.toasts != nil {
		c.toasts.Enqueue(fmt.Sprintf("New order #%d received", order.Number), notify.SeveritySuccess, defaultToastTTL)
	}

	if c.handler != nil {
		c.handler.OnOrderCreated(order)
	}
}

func (c *Channel) handleUpdated(ctx context.Context, room string, order domain.Order) {
	c.cache.Merge(ctx, ordercache.Key{Room: room}, domain.OrderEvent{Order: order, Kind: domain.EventUpdated})

	if c.toasts != nil {
		if msg, ok := statusToasts[order.Status]; ok {
			c.toasts.Enqueue(fmt.Sprintf("Order #%d: %s", order.Number, msg), notify.SeverityInfo, defaultToastTTL)
		}
	}

	if c.handler != nil {
		c.handler.OnOrderUpdated(order)
	}
}
