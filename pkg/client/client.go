package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/roomsync-dev/roomsync/pkg/protocol"
)

// ConnState is the session's position in the connection lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected // participant id assigned, no room
	StateJoining
	StateInRoom
	StateLeaving
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoining:
		return "joining"
	case StateInRoom:
		return "in_room"
	case StateLeaving:
		return "leaving"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// DeliveryMode selects how an application event reaches the other
// participants.
type DeliveryMode int

const (
	// Immediate executes the local handler first, then broadcasts the
	// event to the other participants as an already-happened fact.
	Immediate DeliveryMode = iota

	// ServerRelayed sends the event to the server only; local execution
	// happens when the server's relayed copy comes back, so every
	// participant, sender included, executes it on the same path.
	ServerRelayed

	// Buffered behaves like Immediate, but the server retains the event
	// and replays it to participants who join the room later.
	Buffered
)

func (m DeliveryMode) tag() string {
	switch m {
	case ServerRelayed:
		return protocol.TypeEventRelayed
	case Buffered:
		return protocol.TypeEventBuffered
	default:
		return protocol.TypeEventImmediate
	}
}

// Client is one participant's session against the coordination server. It
// owns the room state, the entity directory, the event registry, and the
// stream synchronizer, and funnels every state mutation through a single
// dispatch goroutine.
type Client struct {
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics

	requester Requester
	dialer    Dialer

	dispatchCh chan func()
	done       chan struct{}
	closed     atomic.Bool

	routes map[string]func(data json.RawMessage)

	// Session state below is owned by the dispatch goroutine.
	state    ConnState
	playerID string
	room     *protocol.Room
	roomName string
	conn     Conn
	connGen  uint64 // bumped per link attempt; stale close signals are ignored

	directory *Directory
	registry  *Registry
	batcher   *Batcher
	cb        Callbacks
	streamOn  bool

	flushTicker *time.Ticker
	streamTimer *time.Timer

	latencyBits atomic.Uint64
}

// New creates a client and starts its dispatch loop. Close releases it.
func New(cfg *Config, cb Callbacks) *Client {
	cfg = cfg.withDefaults()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	c := &Client{
		cfg:        cfg,
		logger:     cfg.Logger,
		metrics:    newMetrics(cfg.Registerer),
		requester:  newHTTPRequester(httpClient),
		dialer:     newWSDialer(cfg.RequestTimeout, cfg.WriteTimeout),
		dispatchCh: make(chan func(), cfg.DispatchBuffer),
		done:       make(chan struct{}),
		directory:  NewDirectory(),
		registry:   NewRegistry(),
		batcher:    NewBatcher(cfg.BatchLimit),
		cb:         cb,
		streamOn:   !cfg.StreamDisabled,
	}
	c.routes = c.buildRoutes()

	go c.runLoop()
	return c
}

// Dispatch queues fn onto the dispatch goroutine. This is the only safe way
// to reach session state from outside callbacks and event handlers.
func (c *Client) Dispatch(fn func()) {
	if c.closed.Load() {
		return
	}
	select {
	case c.dispatchCh <- fn:
	case <-c.done:
	}
}

// Close shuts the client down: the room link is closed, timers stop, and
// the dispatch loop exits. The client cannot be reused afterwards.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.dispatchCh <- func() {
		if c.conn != nil {
			c.conn.Close()
		}
		c.connGen++
		c.stopFlushTimer()
		c.stopStreamTimer()
		c.room = nil
		c.playerID = ""
		c.state = StateDisconnected
		close(c.done)
	}
}

// RegisterEvent binds a named handler with its argument schema. Call at
// composition time, before events can arrive. Registering a name twice
// replaces the earlier handler: last registration wins.
func (c *Client) RegisterEvent(name string, schema []ArgKind, fn Handler) error {
	return c.registry.Register(name, schema, fn)
}

// Connect performs the connect handshake. An empty username is replaced by
// an auto-generated one (NamePrefix plus a random 4-digit suffix). The
// result arrives via OnConnected or OnError.
func (c *Client) Connect(username string) {
	if username == "" {
		username = fmt.Sprintf("%s%04d", c.cfg.NamePrefix, rand.Intn(10000))
	}
	c.Dispatch(func() {
		if c.playerID != "" {
			c.logger.Warn("connect ignored, already connected", "player_id", c.playerID)
			return
		}
		c.state = StateConnecting

		form := url.Values{}
		form.Set(protocol.FieldName, username)
		go c.request("connect", func(ctx context.Context) ([]byte, error) {
			return c.requester.PostForm(ctx, c.serverURL(protocol.RouteConnect), form)
		}, func(body []byte, err error) {
			if err != nil {
				c.state = StateDisconnected
				c.logger.Error("connect failed", "error", err)
				c.cb.failed("connect", err)
				return
			}
			var ack protocol.ConnectAck
			if err := json.Unmarshal(body, &ack); err != nil {
				c.state = StateDisconnected
				c.logger.Error("connect response malformed", "error", err)
				c.cb.failed("connect", err)
				return
			}
			c.playerID = ack.PlayerID
			c.state = StateConnected
			c.logger = c.cfg.Logger.With("player_id", ack.PlayerID)
			c.logger.Info("connected", "name", username)
			c.cb.connected()
		})
	})
}

// CreateRoom asks the server to create a room. Requires a connected
// session. The result arrives via OnRoomCreated or OnError.
func (c *Client) CreateRoom(name string, maxPlayers int) {
	c.createRoom(name, maxPlayers, nil)
}

func (c *Client) createRoom(name string, maxPlayers int, then func()) {
	c.Dispatch(func() {
		if c.playerID == "" {
			c.logger.Error("create room requires a connected session")
			c.cb.failed("create-room", ErrNotConnected)
			return
		}

		form := url.Values{}
		form.Set(protocol.FieldRoomName, name)
		form.Set(protocol.FieldPlayerID, c.playerID)
		form.Set(protocol.FieldMaxPlayers, fmt.Sprint(maxPlayers))
		go c.request("create-room", func(ctx context.Context) ([]byte, error) {
			return c.requester.PostForm(ctx, c.serverURL(protocol.RouteCreateRoom), form)
		}, func(body []byte, err error) {
			if err != nil {
				c.logger.Error("create room failed", "room", name, "error", err)
				c.cb.failed("create-room", err)
				return
			}
			var room protocol.Room
			if err := json.Unmarshal(body, &room); err != nil {
				c.logger.Error("create room response malformed", "error", err)
				c.cb.failed("create-room", err)
				return
			}
			c.room = &room
			c.logger.Info("room created", "room", room.Name, "max_players", room.MaxPlayers)
			c.cb.roomCreated(room)
			if then != nil {
				then()
			}
		})
	})
}

// JoinRoom opens the room link. Requires a connected session. On transport
// close the link is redialed up to ReconnectAttempts times with
// ReconnectDelay between attempts; when attempts are exhausted the session
// stays disconnected and OnDisconnected is the last signal.
func (c *Client) JoinRoom(name string) {
	c.Dispatch(func() {
		if c.playerID == "" {
			c.logger.Error("join room requires a connected session")
			c.cb.failed("join-room", ErrNotConnected)
			return
		}
		c.roomName = name
		c.state = StateJoining
		c.joinAttempt(name, c.cfg.ReconnectAttempts)
	})
}

// CreateOrJoinRoom lists rooms and joins the one matching name, creating it
// first when absent. This is a convenience, not an atomic operation: another
// participant can create or fill the room between the list result and our
// request, in which case the later call fails normally.
func (c *Client) CreateOrJoinRoom(name string, maxPlayers int) {
	c.RoomList(func(rooms []protocol.Room, err error) {
		if err != nil {
			c.cb.failed("create-or-join-room", err)
			return
		}
		for _, room := range rooms {
			if room.Name == name {
				c.JoinRoom(name)
				return
			}
		}
		c.createRoom(name, maxPlayers, func() { c.JoinRoom(name) })
	})
}

// RoomList fetches the rooms currently open on the server. fn runs on the
// dispatch goroutine. Requires a connected session.
func (c *Client) RoomList(fn func(rooms []protocol.Room, err error)) {
	c.Dispatch(func() {
		if c.playerID == "" {
			c.logger.Error("room list requires a connected session")
			fn(nil, ErrNotConnected)
			return
		}
		go c.request("get-room-list", func(ctx context.Context) ([]byte, error) {
			return c.requester.Get(ctx, c.serverURL(protocol.RouteGetRoomList))
		}, func(body []byte, err error) {
			if err != nil {
				c.logger.Error("room list failed", "error", err)
				fn(nil, err)
				return
			}
			var rooms []protocol.Room
			if err := json.Unmarshal(body, &rooms); err != nil {
				c.logger.Error("room list response malformed", "error", err)
				fn(nil, err)
				return
			}
			fn(rooms, nil)
		})
	})
}

// LeaveRoom closes the room link and clears the current room.
func (c *Client) LeaveRoom() {
	c.Dispatch(func() {
		if c.room == nil && c.conn == nil {
			c.logger.Error("leave room while not in one")
			c.cb.failed("leave-room", ErrNotInRoom)
			return
		}
		c.state = StateLeaving
		c.room = nil
		if c.conn != nil {
			c.conn.Close()
			return
		}
		c.stopFlushTimer()
		c.stopStreamTimer()
		c.state = StateConnected
	})
}

// Disconnect leaves the room if in one and clears the participant
// identifier. A reconnect attempt in flight is abandoned.
func (c *Client) Disconnect() {
	c.Dispatch(func() {
		c.room = nil
		c.playerID = ""
		conn := c.conn
		c.state = StateDisconnected
		if conn != nil {
			conn.Close()
			return
		}
		c.connGen++
		c.stopFlushTimer()
		c.stopStreamTimer()
	})
}

// CallEvent raises a named application event from the given entity. The
// name must be registered: the sender executes the event too, either
// synchronously before any frame is sent (Immediate, Buffered) or when the
// server's relayed copy comes back (ServerRelayed). Dispatch-goroutine only.
func (c *Client) CallEvent(entityID int, name string, mode DeliveryMode, args ...any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if _, ok := c.registry.lookup(name); !ok {
		return fmt.Errorf("%w: %q", ErrHandlerNotFound, name)
	}
	event := protocol.Event{Name: name, Args: args, SenderID: entityID}

	if mode == Immediate || mode == Buffered {
		wire, err := rewireEvent(event)
		if err != nil {
			return err
		}
		c.handleEvent(wire)
	}

	c.metrics.eventsSent.Inc()
	return c.sendReliable(mode.tag(), event)
}

// rewireEvent round-trips an event through its wire encoding so local
// execution narrows arguments exactly like a remote receiver would.
func rewireEvent(event protocol.Event) (protocol.Event, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return protocol.Event{}, fmt.Errorf("client: encode event %q: %w", event.Name, err)
	}
	var wire protocol.Event
	if err := json.Unmarshal(data, &wire); err != nil {
		return protocol.Event{}, fmt.Errorf("client: re-decode event %q: %w", event.Name, err)
	}
	return wire, nil
}

// Instantiate requests a networked spawn of a template. The request carries
// placeholder id 0; the entity joins the directory when the server's
// confirmation arrives with the authoritative id. Dispatch-goroutine only.
func (c *Client) Instantiate(template string, position, rotation protocol.Vec3) error {
	if c.cfg.Spawner == nil {
		c.logger.Error("instantiate without a spawner")
		return ErrNoSpawner
	}
	if !c.cfg.Spawner.Has(template) {
		c.logger.Error("entity template not found", "template", template)
		return ErrUnknownTemplate
	}
	return c.sendReliable(protocol.TypeInstantiate, protocol.EntityState{
		PrefabName: template,
		CreatorID:  c.playerID,
		Position:   position,
		Rotation:   rotation,
	})
}

// DestroyEntity requests a networked destroy of an entity this client can
// see. The entity leaves the directory when the confirmation arrives.
// Dispatch-goroutine only.
func (c *Client) DestroyEntity(entityID int) error {
	if c.directory.Get(entityID) == nil {
		c.logger.Error("destroy of unknown entity", "entity_id", entityID)
		return ErrEntityNotFound
	}
	return c.sendReliable(protocol.TypeDestroy, protocol.Destroy{ID: entityID})
}

// SetStreamEnabled toggles stream sending and consumption at runtime.
// Events and room management are unaffected.
func (c *Client) SetStreamEnabled(enabled bool) {
	c.Dispatch(func() { c.streamOn = enabled })
}

// PlayerID returns the participant identifier, empty before the handshake.
// Dispatch-goroutine only.
func (c *Client) PlayerID() string {
	return c.playerID
}

// Room returns a copy of the current room, or nil. Dispatch-goroutine only.
func (c *Client) Room() *protocol.Room {
	if c.room == nil {
		return nil
	}
	room := *c.room
	return &room
}

// State returns the connection state. Dispatch-goroutine only.
func (c *Client) State() ConnState {
	return c.state
}

// IsAuthority reports whether this participant created the current room.
// Dispatch-goroutine only.
func (c *Client) IsAuthority() bool {
	return c.room != nil && c.room.CreatorID == c.playerID
}

// Directory returns the entity directory. Dispatch-goroutine only.
func (c *Client) Directory() *Directory {
	return c.directory
}

// Latency returns the latest one-way delay estimate in milliseconds. Each
// pong overwrites the previous value. Safe from any goroutine.
func (c *Client) Latency() float64 {
	return math.Float64frombits(c.latencyBits.Load())
}

func (c *Client) setLatency(ms float64) {
	c.latencyBits.Store(math.Float64bits(ms))
	c.metrics.latencyMs.Set(ms)
}

func (c *Client) serverURL(route string) string {
	return protocol.ServerURL(c.cfg.ServerAddr, c.cfg.Secure, route)
}

// request runs a one-shot call off the dispatch goroutine and delivers the
// result back onto it.
func (c *Client) request(op string, do func(context.Context) ([]byte, error), done func(body []byte, err error)) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	body, err := do(ctx)
	if err != nil {
		err = fmt.Errorf("%s: %w", op, err)
	}
	c.Dispatch(func() { done(body, err) })
}
